// Package ollama is an entity recogniser that asks a local LLM, served by
// Ollama or any OpenAI-compatible endpoint, to list the sensitive strings
// of a text.
//
// The model returns strings verbatim rather than offsets because small
// models get offsets wrong; the detector locates every occurrence itself.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Peterrvisserr/WOOBARNEVELD/detect"
	"github.com/Peterrvisserr/WOOBARNEVELD/observability"
)

// DefaultTimeout bounds one completion on a CPU-only host.
const DefaultTimeout = 120 * time.Second

// ErrModelMissing is returned by Ready when the server does not serve the
// configured model.
var ErrModelMissing = errors.New("model not available")

const systemPrompt = `Extract personal data from the Dutch text. Return a JSON array of objects {"text": ..., "label": ...} where text is copied exactly from the input and label is one of PERSON, ORGANIZATION, LOCATION, DATE, FACILITY. Return [] if nothing is found.

Personal data includes full names, addresses, places of residence, birth dates, employers and institutions tied to a person.

Do NOT return common words, job titles alone, amounts or document dates.

Return ONLY the JSON array. No explanation.

Example:
Input: "Geachte heer De Vries, u woont sinds 2019 in Barneveld."
Output: [{"text": "De Vries", "label": "PERSON"}, {"text": "Barneveld", "label": "LOCATION"}]`

// Client calls the chat completions endpoint.
type Client struct {
	base   string
	model  string
	http   *http.Client
	logger observability.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithLogger sets the logger.
func WithLogger(l observability.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client. baseURL is the server root, e.g.
// "http://localhost:11434".
func New(baseURL, model string, opts ...Option) *Client {
	c := &Client{
		base:   strings.TrimRight(baseURL, "/"),
		model:  model,
		http:   &http.Client{Timeout: DefaultTimeout},
		logger: observability.NopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	// Think asks reasoning models to answer directly.
	Think bool `json:"think"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content          string `json:"content"`
			Reasoning        string `json:"reasoning"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type finding struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// Analyze asks the model for the sensitive strings of text. Entities carry
// no offsets. It is safe for concurrent use.
func (c *Client) Analyze(ctx context.Context, text string) ([]detect.Entity, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: "Text:\n" + text + "\n/no_think"},
		},
		MaxTokens: 4096,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ollama: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, fmt.Errorf("ollama: decode: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, nil
	}
	choice := chat.Choices[0]
	if choice.FinishReason == "length" {
		c.logger.Warn("ollama response truncated by token limit", observability.String("model", c.model))
	}
	// Reasoning models may leave content empty and answer in the reasoning
	// field.
	raw := strings.TrimSpace(choice.Message.Content)
	if raw == "" {
		raw = strings.TrimSpace(choice.Message.Reasoning)
	}
	if raw == "" {
		raw = strings.TrimSpace(choice.Message.ReasoningContent)
	}
	findings, err := parseFindings(raw)
	if err != nil {
		return nil, fmt.Errorf("ollama: parse answer: %w", err)
	}
	out := make([]detect.Entity, 0, len(findings))
	for _, f := range findings {
		if strings.TrimSpace(f.Text) == "" {
			continue
		}
		out = append(out, detect.Entity{Text: f.Text, Label: f.Label, Start: -1, End: -1})
	}
	c.logger.Debug("ollama entities", observability.Int("count", len(out)))
	return out, nil
}

// parseFindings accepts an array of objects or of bare strings. Bare
// strings get the label OTHER.
func parseFindings(s string) ([]finding, error) {
	s = extractJSONArray(stripCodeFence(stripThinkBlock(s)))
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil, err
	}
	out := make([]finding, 0, len(items))
	for _, item := range items {
		var f finding
		if err := json.Unmarshal(item, &f); err == nil {
			out = append(out, f)
			continue
		}
		var text string
		if err := json.Unmarshal(item, &text); err == nil {
			out = append(out, finding{Text: text, Label: string(detect.LabelOther)})
		}
	}
	return out, nil
}

type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Ready checks that the server lists the configured model.
func (c *Client) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/v1/models", nil)
	if err != nil {
		return fmt.Errorf("ollama: request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama: models status %d", resp.StatusCode)
	}
	var models modelList
	if err := json.NewDecoder(resp.Body).Decode(&models); err != nil {
		return fmt.Errorf("ollama: decode models: %w", err)
	}
	for _, m := range models.Data {
		if m.ID == c.model {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrModelMissing, c.model)
}

// stripThinkBlock removes a <think>...</think> block ahead of the answer.
func stripThinkBlock(s string) string {
	const open, close = "<think>", "</think>"
	start := strings.Index(s, open)
	if start < 0 {
		return s
	}
	end := strings.Index(s, close)
	if end < 0 {
		return strings.TrimSpace(s[:start])
	}
	return strings.TrimSpace(s[:start] + s[end+len(close):])
}

// stripCodeFence removes ```json ... ``` wrappers.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return s
}

// extractJSONArray returns the outermost [...] of s.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	if start < 0 {
		return s
	}
	end := strings.LastIndex(s, "]")
	if end < start {
		return s
	}
	return s[start : end+1]
}
