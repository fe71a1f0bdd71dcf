// Package logger provides structured logging utilities.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/m-mizutani/clog"
)

type contextKey struct{}

var requestIDKey = contextKey{}

// Logger wraps slog.Logger with additional context.
type Logger struct {
	*slog.Logger
}

// New creates a new logger with the specified level and format.
func New(level, format string) *Logger {
	return NewWithWriter(level, format, os.Stdout)
}

// NewWithWriter creates a logger that writes to w.
// Supported formats are "json", "console" and "text" (the default).
func NewWithWriter(level, format string, w io.Writer) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	switch format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "console":
		handler = clog.New(
			clog.WithWriter(w),
			clog.WithLevel(opts.Level.Level()),
			clog.WithTimeFmt("15:04:05"),
			clog.WithSource(false),
		)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// ContextWithRequestID stores a request ID for later log correlation.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request ID stored in ctx, if any.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithContext returns a logger with context values.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if reqID := RequestIDFromContext(ctx); reqID != "" {
		return &Logger{
			Logger: l.With("request_id", reqID),
		}
	}
	return l
}

// WithQuery returns a logger tagged with the client-supplied query ID.
func (l *Logger) WithQuery(id int) *Logger {
	return &Logger{
		Logger: l.With("query_id", id),
	}
}

// WithError returns a logger with error context.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{
		Logger: l.With("error", err.Error()),
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Default returns the default logger.
func Default() *Logger {
	return New("info", "text")
}

// Discard returns a logger that drops every record.
func Discard() *Logger {
	return NewWithWriter("error", "text", io.Discard)
}
