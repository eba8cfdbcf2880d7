// Package logging provides structured logging configuration using log/slog.
//
// Loggers obtained through FromContext carry the chi request id (for
// invocations started over HTTP) and the ingestion invocation id, so every
// line written while handling one object can be correlated.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const ctxKeyInvocationID contextKey = "invocation_id"

// Setup configures the global slog logger based on level and format.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
func Setup(level, format string) {
	slog.SetDefault(New(os.Stdout, level, format))
}

// New builds a logger writing to w. Exposed so tests can capture output.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
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

// WithInvocation stores the ingestion invocation id in ctx.
func WithInvocation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyInvocationID, id)
}

// InvocationID returns the invocation id stored in ctx, or "".
func InvocationID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyInvocationID).(string); ok {
		return v
	}
	return ""
}

// FromContext returns the default logger enriched with the request id and
// invocation id found in ctx.
func FromContext(ctx context.Context) *slog.Logger {
	return Enrich(ctx, slog.Default())
}

// Enrich adds the request id and invocation id found in ctx to logger.
func Enrich(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	if id := InvocationID(ctx); id != "" {
		logger = logger.With("invocation_id", id)
	}
	return logger
}

// WithFields returns a context logger with additional structured fields.
//
//	log := logging.WithFields(ctx, "bucket", ev.Bucket, "key", ev.Key)
//	log.Info("invocation started")
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
