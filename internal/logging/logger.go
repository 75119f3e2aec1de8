// Package logging provides the structured zerolog setup shared by every
// broker-fabric component, modeled on the teacher's
// internal/shared/monitoring/logger.go. It also defines the named event
// vocabulary spec.md §4 uses throughout (broker_recovering_state,
// subscription_added, window_processed, ...), turning the Python source's
// log_event(logger, event_type, payload) helper (core/utils.py) into
// discrete zerolog calls instead of a generic dict-of-fields sink.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level is the minimum severity a logger emits.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format selects the output encoding.
type Format string

const (
	FormatJSON   Format = "json"
	FormatPretty Format = "pretty"
)

// Config configures New.
type Config struct {
	Level   Level
	Format  Format
	Service string // defaults to "pubsub-fabric"
}

// New builds a zerolog.Logger configured for the given level/format, with
// a timestamp, caller info, and a constant "service" field — the same
// shape the teacher's NewLogger produces.
func New(cfg Config) zerolog.Logger {
	var output io.Writer = os.Stdout

	level := zerolog.InfoLevel
	switch cfg.Level {
	case LevelDebug:
		level = zerolog.DebugLevel
	case LevelWarn:
		level = zerolog.WarnLevel
	case LevelError:
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == FormatPretty {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	service := cfg.Service
	if service == "" {
		service = "pubsub-fabric"
	}

	return zerolog.New(output).With().
		Timestamp().
		Caller().
		Str("service", service).
		Logger()
}
