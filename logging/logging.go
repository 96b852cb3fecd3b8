// Package logging wires up the engine's structured logger. Every
// component obtains a named sub-logger so operation-completion
// summary lines are greppable by component and carry
// numeric fields instead of being buried in a formatted string.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// New builds the root logger for the given level name ("debug",
// "info", "warn", "error"), writing human-readable console output
// when stderr is a terminal and JSON otherwise.
func New(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var w io.Writer = os.Stderr
	if isatty.IsTerminal(os.Stderr.Fd()) {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// Component returns a sub-logger tagged with the owning component's
// name, used throughout clipindex/objectindex/search/responders/etc.
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}
