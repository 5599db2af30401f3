// Package logging provides zerolog-based structured logging
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var initOnce sync.Once

// Init configures the global logger. level is one of "trace", "debug",
// "info", "warn", "error"; unknown values fall back to "info". When
// console is true, output is human-readable instead of JSON.
func Init(level string, console bool) {
	initOnce.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339

		var out io.Writer = os.Stderr
		if console {
			out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
		}

		log.Logger = zerolog.New(out).With().Timestamp().Logger()
		zerolog.SetGlobalLevel(parseLevel(level))
	})
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithComponent returns a logger tagged with a component name
func WithComponent(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
