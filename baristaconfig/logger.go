package baristaconfig

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger builds the process logger: JSON in production and staging,
// text elsewhere.
func NewLogger(cfg ServerConfig, w io.Writer, version string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}

	var handler slog.Handler
	switch cfg.Env {
	case "production", "staging":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With(
		slog.String("app", "barista"),
		slog.String("version", version),
		slog.String("env", cfg.Env),
	)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
