// Package logger configures the process-wide slog logger and derives
// component and document scoped loggers from it.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type contextKey struct{}

// Setup installs a text or json handler on stdout as the default logger.
func Setup(level string, format string) {
	SetupTo(os.Stdout, level, format)
}

// SetupTo is Setup writing to w.
func SetupTo(w io.Writer, level string, format string) {
	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}
	switch format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func WithDocID(ctx context.Context, docID string) context.Context {
	return context.WithValue(ctx, contextKey{}, docID)
}

func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if docID, ok := ctx.Value(contextKey{}).(string); ok {
		logger = logger.With("doc_id", docID)
	}
	return logger
}

func WithComponent(component string) *slog.Logger {
	return slog.Default().With("component", component)
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
