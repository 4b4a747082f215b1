// Package logx wires up structured logging once at process start and
// passes the resulting zerolog.Logger by reference to every component that
// needs it, rather than exposing a package-level singleton (spec.md §9's
// "global state avoidance" ambient rule).
//
// Grounded on github.com/rs/zerolog's use in Basekick-Labs-arc's
// internal/wal package, which threads a zerolog.Logger field through its
// structs instead of calling a global log.Logger().
package logx

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// DefaultLevel is the level used by the run command unless overridden.
const DefaultLevel = zerolog.InfoLevel

// New builds the process-wide Logger, writing human-readable console output
// to w (typically os.Stderr, keeping stdout free for the JSON report per
// spec.md §6).
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(console).Level(level).With().Timestamp().Logger()
}

// Default returns a Logger writing to os.Stderr at info level, for call
// sites that don't have one threaded through yet (tests, package init).
func Default() zerolog.Logger {
	return New(os.Stderr, DefaultLevel)
}
