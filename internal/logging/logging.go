// Package logging sets up the engine's structured logger. Every
// component takes a zerolog.Logger from its constructor and attaches
// its own contextual fields (attempt_id, process_id, worktree) rather
// than logging free text, per SPEC_FULL.md's ambient-stack section.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options controls how the root logger is built.
type Options struct {
	// Level is a zerolog level name ("debug", "info", "warn", "error").
	// Defaults to "info" if empty or unparseable.
	Level string
	// Pretty selects zerolog.ConsoleWriter's human-readable output for
	// local development; false emits one JSON object per line, the
	// shape log aggregation in production expects.
	Pretty bool
}

// New builds the root logger per opts.
func New(opts Options) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var w io.Writer = os.Stderr
	if opts.Pretty {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
