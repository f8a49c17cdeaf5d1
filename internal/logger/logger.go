package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ContextKey is a type for context keys used by the logger
type ContextKey string

const (
	// RequestIDKey is the context key for request IDs
	RequestIDKey ContextKey = "request_id"
	// SessionIDKey is the context key for live filter session IDs
	SessionIDKey ContextKey = "session_id"
)

var defaultLogger *slog.Logger

// Init initializes the global logger with the specified level and format.
// format is "json" or "text"; empty selects JSON in production and text
// everywhere else.
func Init(levelStr, format string) {
	defaultLogger = slog.New(newHandler(os.Stdout, levelStr, format))
	slog.SetDefault(defaultLogger)
}

func newHandler(w io.Writer, levelStr, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(levelStr)}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return slog.NewJSONHandler(w, opts)
	case "text":
		return slog.NewTextHandler(w, opts)
	}
	if os.Getenv("ENV") == "production" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// parseLevel converts a string log level to slog.Level
func parseLevel(levelStr string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
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

// Get returns the default logger
func Get() *slog.Logger {
	if defaultLogger == nil {
		Init("info", "")
	}
	return defaultLogger
}

// FromContext returns the default logger annotated with the request and
// session ids carried by ctx.
func FromContext(ctx context.Context) *slog.Logger {
	l := Get()
	if ctx == nil {
		return l
	}
	if id, ok := ctx.Value(RequestIDKey).(string); ok && id != "" {
		l = l.With("request_id", id)
	}
	if id, ok := ctx.Value(SessionIDKey).(string); ok && id != "" {
		l = l.With("session_id", id)
	}
	return l
}

// WithComponent returns a logger with a component label
func WithComponent(component string) *slog.Logger {
	return Get().With("component", component)
}

func DebugContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).DebugContext(ctx, msg, args...)
}

func InfoContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).InfoContext(ctx, msg, args...)
}

func WarnContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).WarnContext(ctx, msg, args...)
}

func ErrorContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).ErrorContext(ctx, msg, args...)
}
