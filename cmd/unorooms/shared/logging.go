package shared

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// parseLevel maps a configured level name to a zerolog level. The debug
// flag wins over configuration; unknown names fall back to info.
func parseLevel(name string, debug bool) zerolog.Level {
	if debug {
		return zerolog.DebugLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// SetupLogger configures zerolog with pretty console output
func SetupLogger(levelName string, debug bool) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(parseLevel(levelName, debug)).
		With().
		Timestamp().
		Logger()
}

// SetupStructuredLogger configures zerolog for structured (JSON) output
func SetupStructuredLogger(levelName string, debug bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	return zerolog.New(os.Stderr).
		Level(parseLevel(levelName, debug)).
		With().
		Timestamp().
		Logger()
}
