package logger

import (
	"log/slog"
	"os"
)

// New returns the structured logger used across the service. Level defaults to
// info; set LOG_LEVEL=debug to see per-strategy extraction detail.
func New() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
