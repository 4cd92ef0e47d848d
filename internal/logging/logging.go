// Package logging configures the client-side slog default logger. The
// relay server logs through logrus and does not use this package.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// DefaultLevel keeps gameplay output clean unless the player asks for
// more; verbose connection logs would scribble over the board render.
const DefaultLevel = slog.LevelError

// ParseLevel maps a LOG_LEVEL value to a slog level. Unknown values fall
// back to DefaultLevel.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "production", "prod":
		return slog.LevelError
	default:
		return DefaultLevel
	}
}

// Init installs a text handler on stderr at the level named by the
// LOG_LEVEL environment variable.
func Init() {
	logger := slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: ParseLevel(os.Getenv("LOG_LEVEL")),
		}),
	)
	slog.SetDefault(logger)
}
