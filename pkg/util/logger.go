package util

import (
	"log/slog"
	"os"
)

// NewLogger returns a slog.Logger tagged with the process name. Development
// gets human-readable text at debug level; everything else ships JSON.
func NewLogger(env, service string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	var handler slog.Handler
	if env == "development" {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler).With("service", service)
}
