// Package ulog provides the structured logging interface used across
// the ledger core. It mirrors the teacher's ulogger.Logger call shape
// (Debugf/Infof/Warnf/Errorf with a bracketed component tag) without
// the teacher's own ulogger source, which the retrieval pack did not
// carry. Backed by zerolog rather than a process-global logger: every
// component receives one by constructor injection.
package ulog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the structured logging surface every component takes by
// constructor injection. No package-level default is exposed; callers
// build one with New and pass it down.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	// With returns a derived logger that tags every line with component.
	With(component string) Logger
}

type zeroLogger struct {
	zl zerolog.Logger
}

// New builds a Logger writing level-tagged JSON lines to w.
func New(w io.Writer, level zerolog.Level) Logger {
	zl := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return &zeroLogger{zl: zl}
}

// NewConsole builds a Logger writing to stderr, suitable for CLI use.
func NewConsole(level zerolog.Level) Logger {
	return New(os.Stderr, level)
}

func (l *zeroLogger) Debugf(format string, args ...interface{}) {
	l.zl.Debug().Msgf(format, args...)
}

func (l *zeroLogger) Infof(format string, args ...interface{}) {
	l.zl.Info().Msgf(format, args...)
}

func (l *zeroLogger) Warnf(format string, args ...interface{}) {
	l.zl.Warn().Msgf(format, args...)
}

func (l *zeroLogger) Errorf(format string, args ...interface{}) {
	l.zl.Error().Msgf(format, args...)
}

func (l *zeroLogger) With(component string) Logger {
	return &zeroLogger{zl: l.zl.With().Str("component", component).Logger()}
}

// Nop returns a Logger that discards everything, for tests.
func Nop() Logger {
	return New(io.Discard, zerolog.Disabled)
}
