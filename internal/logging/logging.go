package logging

import (
	"log/slog"
	"os"
)

// Init installs a text slog handler on stderr as the default logger. The
// level comes from LOG_LEVEL and falls back to def when unset or unknown.
// The server passes slog.LevelInfo; the call client passes slog.LevelError so
// the terminal UI stays clean.
func Init(def slog.Level) {
	slog.SetDefault(slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: Level(def),
		}),
	))
}

// Level resolves LOG_LEVEL to a slog level.
func Level(def slog.Level) slog.Level {
	l, ok := os.LookupEnv("LOG_LEVEL")
	if !ok {
		return def
	}
	switch l {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "production", "prod":
		return slog.LevelError
	}
	return def
}
