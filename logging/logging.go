// Package logging configures structured logging with log/slog.
//
// Every CLI invocation is an operation with its own id; loggers taken from
// the operation context carry it as "op_id" so the log lines of one run
// can be correlated.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// Setup installs the default slog logger writing to w and returns it.
//
// Level values: "debug", "info", "warn", "error" (default: "info").
// Format values: "text", "json" (default: "text").
func Setup(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel converts a string log level to slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

type opKey struct{}

// WithOperation returns a context carrying a fresh operation id.
func WithOperation(ctx context.Context) (context.Context, string) {
	id := uuid.NewString()
	return context.WithValue(ctx, opKey{}, id), id
}

// OperationID returns the operation id of ctx, or "".
func OperationID(ctx context.Context) string {
	id, _ := ctx.Value(opKey{}).(string)
	return id
}

// FromContext returns the default logger enriched with the operation id
// of ctx.
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if id := OperationID(ctx); id != "" {
		logger = logger.With("op_id", id)
	}
	return logger
}
