// Package spacy is an entity recogniser backed by a spaCy sidecar that
// serves POST /classify and GET /health over HTTP. The sidecar runs a Dutch
// pipeline such as nl_core_news_sm.
package spacy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Peterrvisserr/WOOBARNEVELD/detect"
	"github.com/Peterrvisserr/WOOBARNEVELD/observability"
)

// DefaultTimeout bounds one request.
const DefaultTimeout = 10 * time.Second

// Client calls the sidecar.
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

// WithModel asks the sidecar for a specific pipeline.
func WithModel(name string) Option { return func(c *Client) { c.model = name } }

// WithLogger sets the logger.
func WithLogger(l observability.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for baseURL, e.g. "http://localhost:8001".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base:   strings.TrimRight(baseURL, "/"),
		http:   &http.Client{Timeout: DefaultTimeout},
		logger: observability.NopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type classifyRequest struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

type classifyResponse struct {
	Spans []nerSpan `json:"spans"`
}

// nerSpan offsets count characters, as spaCy's start_char and end_char do.
type nerSpan struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Analyze sends text to the sidecar. It is safe for concurrent use.
func (c *Client) Analyze(ctx context.Context, text string) ([]detect.Entity, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	body, err := json.Marshal(classifyRequest{Text: text, Model: c.model})
	if err != nil {
		return nil, fmt.Errorf("spacy: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/classify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("spacy: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("spacy: sidecar unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("spacy: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("spacy: decode: %w", err)
	}
	offsets := byteOffsets(text)
	out := make([]detect.Entity, 0, len(result.Spans))
	for _, s := range result.Spans {
		e := detect.Entity{Text: s.Text, Label: s.Label, Start: -1, End: -1}
		if s.Start >= 0 && s.Start < s.End && s.End < len(offsets) {
			e.Start, e.End = offsets[s.Start], offsets[s.End]
		}
		out = append(out, e)
	}
	c.logger.Debug("spacy entities", observability.Int("count", len(out)))
	return out, nil
}

// Ready checks that the sidecar answers its health endpoint.
func (c *Client) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/health", nil)
	if err != nil {
		return fmt.Errorf("spacy: request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("spacy: sidecar unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("spacy: health status %d", resp.StatusCode)
	}
	return nil
}

// byteOffsets maps character offsets to byte offsets, including the end
// of text.
func byteOffsets(text string) []int {
	out := make([]int, 0, utf8.RuneCountInString(text)+1)
	for i := range text {
		out = append(out, i)
	}
	return append(out, len(text))
}
