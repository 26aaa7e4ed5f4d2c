// Package logging builds the structured logger shared by the engine and
// the MCP server. Output goes to stderr: stdout carries the stdio transport.
package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// New returns a timestamped logger at the given level ("debug", "info",
// "warn", "error"). Unknown levels fall back to info.
func New(level string) *log.Logger {
	return NewWithWriter(os.Stderr, level)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, level string) *log.Logger {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	return log.NewWithOptions(w, log.Options{
		ReportCaller:    false,
		ReportTimestamp: true,
		Level:           lvl,
		Prefix:          "evolve",
	})
}

// Discard returns a logger that drops everything. Used in tests.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

// CloseError logs an error from a close operation if the error is not nil.
func CloseError(logger *log.Logger, resource string, err error) {
	if err != nil {
		logger.Warn("failed to close resource", "resource", resource, "error", err)
	}
}
