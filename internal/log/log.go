// Package log builds the charmbracelet loggers handed to the engine, the
// match controller and the adapters.
package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// New returns a stdout logger with the given prefix and level name
// (debug, info, warn, error). Unknown or empty levels mean info.
func New(prefix, level string) *log.Logger {
	return NewWriter(os.Stdout, prefix, level)
}

// NewWriter is New with an explicit destination.
func NewWriter(w io.Writer, prefix, level string) *log.Logger {
	logger := log.New(w)
	logger.SetPrefix(prefix)
	logger.SetReportTimestamp(true)
	logger.SetTimeFormat(time.DateTime)
	logger.SetLevel(ParseLevel(level))
	return logger
}

// ParseLevel maps a config level name onto a log level.
func ParseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// Discard drops everything. Used by tests.
func Discard() *log.Logger {
	return log.New(io.Discard)
}
