package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// SetupLogging configures the global slog default logger from level/format
// strings ("debug"/"info"/"warn"/"error", "text"/"json"). All log output
// goes to os.Stderr to keep stdout clean for piped JSONL output.
func SetupLogging(level, format string) {
	SetupLoggingWithWriter(level, format, os.Stderr)
}

// SetupLoggingWithWriter is SetupLogging with an explicit writer, used by
// tests to capture log output instead of writing to os.Stderr.
func SetupLoggingWithWriter(level, format string, w io.Writer) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

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

// NewLogger returns a child logger derived from the global default logger
// with a "component" attribute, so log lines can be filtered by subsystem.
func NewLogger(component string) *slog.Logger {
	return slog.Default().With("component", component)
}
