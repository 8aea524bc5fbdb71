// Package logging provides component-scoped loggers for repofs.
//
// The log level is taken from the LOG_LEVEL environment variable
// (trace, debug, info, warn, error) and defaults to info. Setting
// FUSE_DEBUG enables debug logging regardless of LOG_LEVEL.
package logging

import (
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	base zerolog.Logger
	once sync.Once
)

func root() zerolog.Logger {
	once.Do(func() {
		level := zerolog.InfoLevel
		if env := os.Getenv("LOG_LEVEL"); env != "" {
			if parsed, err := zerolog.ParseLevel(strings.ToLower(env)); err == nil {
				level = parsed
			}
		}
		if os.Getenv("FUSE_DEBUG") != "" {
			level = zerolog.DebugLevel
		}
		zerolog.SetGlobalLevel(level)

		writer := zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02T15:04:05",
		}
		base = zerolog.New(writer).With().Timestamp().Logger()
	})
	return base
}

// New returns a logger tagged with the given component name.
func New(component string) zerolog.Logger {
	return root().With().Str("component", component).Logger()
}

// SetDebug lowers the global level to debug. Wired to the --verbose
// flag by the CLI.
func SetDebug() {
	root()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}
