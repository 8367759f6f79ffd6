package util

import (
	"log/slog"
	"os"
	"strings"
)

// InitSlog installs the process-wide slog handler: text to stderr, with
// the level taken from the LOG_LEVEL environment variable
// (debug/info/warn/error). Unset or unrecognized values mean info; a
// database node should always log, so unlike a one-shot CLI there is no
// silent default.
func InitSlog() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
