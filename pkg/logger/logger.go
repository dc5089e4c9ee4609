// Package logger builds the zerolog loggers used across EquityScope.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logger configuration.
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // human-readable console output for development
}

// New creates the root logger. Every module derives its sub-logger from
// this one, so the service field tags all output. Unknown level names fall
// back to info.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = os.Stdout
	ctx := zerolog.New(output).With().Timestamp().Str("service", "equityscope")
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
		// Caller locations only in development; production output stays
		// lean for ingestion.
		ctx = zerolog.New(output).With().Timestamp().Caller()
	}
	return ctx.Logger()
}

// SetGlobalLogger routes the zerolog package-level logger through l.
func SetGlobalLogger(l zerolog.Logger) {
	log.Logger = l
}
