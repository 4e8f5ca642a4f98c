// Package logging provides a zerolog wrapper with opinionated defaults and
// per-component sub-loggers for the pipeline.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the project-wide logging type.
type Logger = zerolog.Logger

// Options configures the root logger.
type Options struct {
	Level  string // trace, debug, info, warn, error
	Format string // "console" or "json"
	Writer io.Writer
}

var (
	once sync.Once
	root zerolog.Logger
)

// FromEnv builds Options from LOG_LEVEL and LOG_FORMAT.
func FromEnv() Options {
	return Options{
		Level:  strings.ToLower(os.Getenv("LOG_LEVEL")),
		Format: strings.ToLower(os.Getenv("LOG_FORMAT")),
	}
}

// Init configures zerolog and builds the root logger. Safe to call once;
// later calls are ignored.
func Init(opt Options) {
	once.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339

		var w io.Writer = os.Stderr
		if opt.Writer != nil {
			w = opt.Writer
		}
		if opt.Format != "json" {
			w = zerolog.ConsoleWriter{Out: w, TimeFormat: "2006-01-02 15:04:05"}
		}

		root = zerolog.New(w).Level(parseLevel(opt.Level)).With().
			Timestamp().
			Str("service", "scholarwatch").
			Logger()
	})
}

// Get returns the process-wide root logger, initialising from the
// environment if Init has not been called.
func Get() Logger {
	Init(FromEnv())
	return root
}

// Component returns a sub-logger tagged with a component name.
func Component(name string) Logger {
	return Get().With().Str("component", name).Logger()
}

func parseLevel(s string) zerolog.Level {
	switch s {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "", "info":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}
