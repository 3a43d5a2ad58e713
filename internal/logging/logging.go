// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package logging configures the zerolog logger used across grant-engine.
// Terminals get the console writer; pipes and LOG_FORMAT=json get JSON lines.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

var defaultLogger = createDefaultLogger()

// Options controls logger construction from CLI flags.
type Options struct {
	// Verbose lowers the level to debug.
	Verbose bool

	// Format is "console", "json", or "" to auto-detect.
	Format string

	// Out defaults to os.Stderr.
	Out io.Writer
}

func createDefaultLogger() zerolog.Logger {
	return NewFromOptions(Options{Format: os.Getenv("LOG_FORMAT")})
}

// NewFromOptions builds a logger. The level comes from LOG_LEVEL or DEBUG
// unless Verbose forces debug.
func NewFromOptions(opts Options) zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	var w io.Writer = out
	if useConsole(opts.Format, out) {
		w = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.Kitchen,
			NoColor:    os.Getenv("NO_COLOR") != "",
		}
	}

	level := levelFromEnv()
	if opts.Verbose {
		level = zerolog.DebugLevel
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Default returns the process-wide logger.
func Default() *zerolog.Logger {
	return &defaultLogger
}

// SetDefault replaces the process-wide logger.
func SetDefault(l zerolog.Logger) {
	defaultLogger = l
}

// New returns a logger writing JSON lines to w at the default level.
func New(w io.Writer) zerolog.Logger {
	return zerolog.New(w).Level(defaultLogger.GetLevel()).With().Timestamp().Logger()
}

func useConsole(format string, out io.Writer) bool {
	switch strings.ToLower(format) {
	case "json":
		return false
	case "console", "text", "pretty":
		return true
	}
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func levelFromEnv() zerolog.Level {
	s := os.Getenv("LOG_LEVEL")
	if s == "" {
		if os.Getenv("DEBUG") != "" {
			return zerolog.DebugLevel
		}
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
