// Package logging provides small helpers around log/slog: context-scoped
// loggers, consistent HTTP request logging, and safe resource cleanup.
package logging

import (
	"context"
	"io"
	"log/slog"
)

type contextKey string

const loggerKey contextKey = "logger"

// WithLogger stores a logger in the context for downstream handlers.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the logger stored by WithLogger, falling back to
// slog.Default when the context carries none.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// LogHTTPRequest logs a completed HTTP request at info level with the
// standard method/path/status/duration attributes plus any extras.
func LogHTTPRequest(logger *slog.Logger, method, path string, status int, durationMillis float64, extra ...any) {
	if logger == nil {
		return
	}
	attrs := []any{
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("duration_ms", durationMillis),
	}
	attrs = append(attrs, extra...)
	logger.Info("http request", attrs...)
}

// LogError logs an error with a message at error level.
func LogError(logger *slog.Logger, msg string, err error, extra ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{slog.Any("error", err)}
	attrs = append(attrs, extra...)
	logger.Error(msg, attrs...)
}

// LogOperation logs a named operation at info level.
func LogOperation(logger *slog.Logger, operation string, extra ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{slog.String("operation", operation)}
	attrs = append(attrs, extra...)
	logger.Info("operation", attrs...)
}

// SafeCloseWithLogging closes a resource and logs a failure instead of
// silently discarding it. Intended for defer statements on response bodies
// and similar cleanup where the error is not actionable.
func SafeCloseWithLogging(c io.Closer, logger *slog.Logger, resource string) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		LogError(logger, "failed to close resource", err, slog.String("resource", resource))
	}
}
