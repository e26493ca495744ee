package runtime

import (
	"fmt"
	"log/slog"
	"os"
)

// DefaultLogger returns the process logger: text on stderr at info.
func DefaultLogger() *slog.Logger {
	return NewLogger(slog.LevelInfo)
}

// NewLogger returns a stderr text logger at the given level.
func NewLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// ParseLevel maps "debug", "info", "warn" or "error" to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
