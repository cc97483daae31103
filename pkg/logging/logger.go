// Package logging configures the zerolog global logger and hands out
// per-component loggers.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel is a level name as accepted from LOG_LEVEL or --log-level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Component names used as the "component" field.
const (
	ComponentTracker = "jira-client"
	ComponentCache   = "cache"
	ComponentWorklog = "worklog"
	ComponentServer  = "server"
)

// Config holds logger configuration.
type Config struct {
	Level LogLevel

	// Pretty switches from JSON lines to colored console output.
	Pretty bool

	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns JSON logging at info level on stderr.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// Setup installs the global logger described by cfg and returns it.
// Durations are logged in milliseconds. An unknown level falls back to
// info and is reported on the new logger.
func Setup(cfg Config) zerolog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	level, err := ParseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)
	zerolog.DurationFieldUnit = time.Millisecond

	out := cfg.Output
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: time.TimeOnly}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	if err != nil {
		log.Logger.Warn().Err(err).Msg("Falling back to info level")
	}
	return log.Logger
}

// ParseLevel maps a level name, case-insensitively, to a zerolog level.
// The empty name is info.
func ParseLevel(level LogLevel) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "info", "":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// NewLogger returns a child of the global logger tagged with component.
// Loggers created before Setup keep the writer that was global at the time.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Level guidelines
//
// Debug: cache hits and misses, stale worklog entries, search pages.
// Info: tracker calls, stage completion with counts, server lifecycle.
// Warn: cache errors (the call falls through to the tracker), degraded user
// lookups, HTTP responses with status 5xx.
// Error: aborted worklog pipelines, configuration errors.
//
// Common fields: operation, key, status_code, duration, error_class, tier,
// project, min_date, max_date, stage.
