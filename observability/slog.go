package observability

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

type slogLogger struct {
	l *slog.Logger
}

// NewSlogLogger adapts a *slog.Logger. A nil logger uses slog.Default().
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return slogLogger{l: l}
}

func (s slogLogger) Debug(msg string, fields ...Field) { s.log(slog.LevelDebug, msg, fields) }
func (s slogLogger) Info(msg string, fields ...Field)  { s.log(slog.LevelInfo, msg, fields) }
func (s slogLogger) Warn(msg string, fields ...Field)  { s.log(slog.LevelWarn, msg, fields) }
func (s slogLogger) Error(msg string, fields ...Field) { s.log(slog.LevelError, msg, fields) }

func (s slogLogger) With(fields ...Field) Logger {
	return slogLogger{l: s.l.With(attrsAny(fields)...)}
}

func (s slogLogger) log(level slog.Level, msg string, fields []Field) {
	s.l.LogAttrs(context.Background(), level, msg, attrs(fields)...)
}

func attrs(fields []Field) []slog.Attr {
	out := make([]slog.Attr, 0, len(fields))
	for _, f := range fields {
		out = append(out, attr(f))
	}
	return out
}

func attrsAny(fields []Field) []any {
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		out = append(out, attr(f))
	}
	return out
}

func attr(f Field) slog.Attr {
	switch v := f.Value().(type) {
	case string:
		return slog.String(f.Key(), v)
	case int:
		return slog.Int(f.Key(), v)
	case int64:
		return slog.Int64(f.Key(), v)
	case bool:
		return slog.Bool(f.Key(), v)
	case time.Duration:
		return slog.Duration(f.Key(), v)
	case error:
		if v == nil {
			return slog.String(f.Key(), "<nil>")
		}
		return slog.String(f.Key(), v.Error())
	default:
		return slog.Any(f.Key(), v)
	}
}

// ParseLevel maps a configured level name to a slog level. Unknown names
// mean info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
