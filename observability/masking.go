package observability

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// MaskValue replaces attribute values that may hold document text.
const MaskValue = "***REDACTED***"

// maskedKeys name attributes that carry text taken from a document.
var maskedKeys = map[string]bool{
	"span":    true,
	"spans":   true,
	"text":    true,
	"content": true,
	"literal": true,
	"match":   true,
	"entity":  true,
}

// MaskingHandler wraps an slog.Handler and masks attributes that could
// carry personal data found in a document, so it never reaches the logs.
type MaskingHandler struct {
	handler slog.Handler
}

// NewMaskingHandler wraps handler. A nil handler uses slog.Default().Handler().
func NewMaskingHandler(handler slog.Handler) *MaskingHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &MaskingHandler{handler: handler}
}

func (h *MaskingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *MaskingHandler) Handle(ctx context.Context, r slog.Record) error {
	masked := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		masked.AddAttrs(maskAttr(a))
		return true
	})
	return h.handler.Handle(ctx, masked)
}

func (h *MaskingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = maskAttr(a)
	}
	return &MaskingHandler{handler: h.handler.WithAttrs(out)}
}

func (h *MaskingHandler) WithGroup(name string) slog.Handler {
	return &MaskingHandler{handler: h.handler.WithGroup(name)}
}

func maskAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		out := make([]slog.Attr, len(group))
		for i, ga := range group {
			out[i] = maskAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}
	if maskedKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, MaskValue)
	}
	return a
}

// NewLogger builds a masked text or JSON logger writing to w.
func NewLogger(w io.Writer, level slog.Level, json bool) Logger {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if json {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return NewSlogLogger(slog.New(NewMaskingHandler(h)))
}
