package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func chatServer(t *testing.T, content, reasoning string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Model != "qwen2.5:3b" || len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected request %+v", req)
		}
		resp := map[string]any{
			"choices": []map[string]any{{
				"message":       map[string]string{"content": content, "reasoning": reasoning},
				"finish_reason": "stop",
			}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		reasoning string
		want      int
		label     string
	}{
		{"objects", `[{"text":"Jan Jansen","label":"PERSON"},{"text":"Barneveld","label":"LOCATION"}]`, "", 2, "PERSON"},
		{"code fence", "```json\n[{\"text\":\"Jan Jansen\",\"label\":\"PERSON\"}]\n```", "", 1, "PERSON"},
		{"think block", "<think>names?</think>[\"Jan Jansen\"]", "", 1, "OTHER"},
		{"answer in reasoning", "", `sure: [{"text":"Jan Jansen","label":"PER"}]`, 1, "PER"},
		{"empty array", "[]", "", 0, ""},
		{"blank values", `[{"text":"  ","label":"PERSON"}]`, "", 0, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := chatServer(t, tc.content, tc.reasoning)
			defer srv.Close()
			got, err := New(srv.URL, "qwen2.5:3b").Analyze(context.Background(), "Jan Jansen woont in Barneveld")
			if err != nil {
				t.Fatalf("analyze: %v", err)
			}
			if len(got) != tc.want {
				t.Fatalf("expected %d entities, got %+v", tc.want, got)
			}
			if tc.want > 0 && (got[0].Text != "Jan Jansen" || got[0].Label != tc.label || got[0].Start != -1) {
				t.Fatalf("unexpected entity %+v", got[0])
			}
		})
	}
}

func TestAnalyzeUnparsable(t *testing.T) {
	srv := chatServer(t, "I could not find anything.", "")
	defer srv.Close()
	if _, err := New(srv.URL, "qwen2.5:3b").Analyze(context.Background(), "Jan Jansen"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"id":"qwen2.5:3b"}]}`))
	}))
	defer srv.Close()
	if err := New(srv.URL, "qwen2.5:3b").Ready(context.Background()); err != nil {
		t.Fatalf("ready: %v", err)
	}
	if err := New(srv.URL, "llama3").Ready(context.Background()); !errors.Is(err, ErrModelMissing) {
		t.Fatalf("expected ErrModelMissing, got %v", err)
	}
}
