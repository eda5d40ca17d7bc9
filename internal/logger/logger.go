// Package logger builds the process-wide zerolog.Logger.
package logger

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Config controls logger construction.
type Config struct {
	Level  string
	Pretty bool
}

// New builds a zerolog.Logger from Config, defaulting to info level.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var w = os.Stdout
	var logger zerolog.Logger
	if cfg.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"})
	} else {
		logger = zerolog.New(w)
	}

	return logger.Level(level).With().Timestamp().Caller().Logger()
}
