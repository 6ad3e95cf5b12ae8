// Package logger wraps zerolog with service-level context fields.
package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls logger construction.
type Config struct {
	Level       string // trace|debug|info|warn|error; defaults to info
	Environment string // "development" enables console output
	ServiceName string
	Version     string
}

// Logger embeds zerolog.Logger so call sites use the fluent API directly.
type Logger struct {
	zerolog.Logger
}

// New builds a logger with service identity fields attached to every line.
func New(cfg Config) *Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var out = os.Stdout
	base := zerolog.New(out)
	if cfg.Environment == "development" {
		base = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}

	l := base.Level(level).With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("version", cfg.Version).
		Logger()

	return &Logger{Logger: l}
}
