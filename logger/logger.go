// Package logger provides a minimal leveled logging facade backed by zerolog.
//
// Components depend on Interface only, so callers can swap in their own
// implementation without touching the rest of the library.
package logger

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// --------------------------------------------------------------------------------
// Types

// Interface is the logging contract consumed throughout the library.
//
// All methods accept a printf-style format string.
type Interface interface {
	Debug(format string, v ...any)
	Info(format string, v ...any)
	Warn(format string, v ...any)
	Error(format string, v ...any)
}

// Logger implements Interface on top of a zerolog.Logger.
type Logger struct {
	zl zerolog.Logger
}

var _ Interface = (*Logger)(nil)

// --------------------------------------------------------------------------------
// Initialization

// New creates a Logger writing to out at the given level.
//
// Recognized levels: "debug", "info", "warn", "error". It returns an
// error for an unknown level string.
func New(level string, out io.Writer) (*Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	zl := zerolog.New(out).Level(lvl).With().Timestamp().Logger()

	return &Logger{zl: zl}, nil
}

// FromZerolog wraps an existing zerolog.Logger.
func FromZerolog(zl zerolog.Logger) *Logger {
	return &Logger{zl: zl}
}

// --------------------------------------------------------------------------------
// Interface Methods

// Debug logs at debug level.
func (l *Logger) Debug(format string, v ...any) {
	l.zl.Debug().Msgf(format, v...)
}

// Info logs at info level.
func (l *Logger) Info(format string, v ...any) {
	l.zl.Info().Msgf(format, v...)
}

// Warn logs at warn level.
func (l *Logger) Warn(format string, v ...any) {
	l.zl.Warn().Msgf(format, v...)
}

// Error logs at error level.
func (l *Logger) Error(format string, v ...any) {
	l.zl.Error().Msgf(format, v...)
}

// --------------------------------------------------------------------------------
// Helpers

// Nop returns a logger that discards everything. Useful in tests.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}
