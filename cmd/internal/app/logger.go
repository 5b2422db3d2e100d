package app

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the app-wide logger type (slog).
type Logger = *slog.Logger

// NewLogger creates the process logger: JSON by default, the pretty text
// handler when cfg asks for it. It also becomes slog's default.
func NewLogger(cfg Config) *slog.Logger {
	log := newLogger(os.Stdout, cfg, EnvBool("EATSOON_LOG_COLOR", true))
	slog.SetDefault(log)
	return log
}

func newLogger(w io.Writer, cfg Config, color bool) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     parseLogLevel(cfg.LogLevel),
		AddSource: true,
	}
	if cfg.prettyLogs() {
		return slog.New(newPrettyHandler(w, opts, color))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
