package logging

import (
	"log/slog"
	"os"
)

// Init installs the default slog logger at LOG_LEVEL, or at fallback when
// LOG_LEVEL is unset or unknown.
func Init(fallback slog.Level) {
	slog.SetDefault(New(os.Getenv("LOG_LEVEL"), fallback))
}

// New returns a text logger on stderr.
func New(levelName string, fallback slog.Level) *slog.Logger {
	return slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: ParseLevel(levelName, fallback),
		}),
	)
}

// ParseLevel maps LOG_LEVEL values to slog levels.
func ParseLevel(name string, fallback slog.Level) slog.Level {
	switch name {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "production", "prod":
		return slog.LevelError
	default:
		return fallback
	}
}
