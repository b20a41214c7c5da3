// README: Root zerolog logger construction.
package infra

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns the process logger; an unknown level falls back to info.
func NewLogger(level, service string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).
		Level(lvl).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}
