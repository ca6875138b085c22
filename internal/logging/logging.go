// Package logging configures the global zerolog logger and hands out
// component-scoped child loggers.
package logging

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Options captures the logger configuration resolved from config and flags.
type Options struct {
	Verbose bool
	Output  io.Writer // optional writer (defaults to os.Stderr)
	Console bool      // human-readable console output instead of JSON
}

var (
	once sync.Once
	base zerolog.Logger
)

// Configure initialises the global logger exactly once. Later calls are
// no-ops, which keeps test processes from fighting over global state.
func Configure(opts Options) {
	once.Do(func() {
		level := zerolog.InfoLevel
		if opts.Verbose {
			level = zerolog.DebugLevel
		}
		if env := os.Getenv("LOG_LEVEL"); env != "" {
			if parsed, err := zerolog.ParseLevel(env); err == nil {
				level = parsed
			}
		}
		zerolog.SetGlobalLevel(level)
		zerolog.TimeFieldFormat = time.RFC3339

		writer := opts.Output
		if writer == nil {
			writer = os.Stderr
		}
		if opts.Console {
			writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: "15:04:05"}
		}

		base = zerolog.New(writer).With().Timestamp().Logger()
	})
}

func logger() zerolog.Logger {
	Configure(Options{})
	return base
}

// Base returns the configured base logger instance.
func Base() zerolog.Logger {
	return logger()
}

// WithComponent returns a child logger annotated with the given component name.
func WithComponent(component string) zerolog.Logger {
	return logger().With().Str("component", component).Logger()
}

// WithFile returns a child logger annotated with a component and input path,
// the standard shape for per-file pipeline log lines.
func WithFile(component, path string) zerolog.Logger {
	return logger().With().Str("component", component).Str("file", path).Logger()
}

// IsTerminal reports whether f is attached to a TTY (character device).
// Used to pick console output over JSON for interactive runs.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
