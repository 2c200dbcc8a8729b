// Package logging wires package-scoped loggers to a shared
// pion/logging factory.
package logging

import (
	"github.com/pion/logging"
)

var loggerFactory = logging.NewDefaultLoggerFactory()

// DefaultFactory returns the process-wide logger factory.
func DefaultFactory() logging.LoggerFactory {
	return loggerFactory
}

// NewLogger returns a leveled logger for the given scope.
func NewLogger(scope string) logging.LeveledLogger {
	return loggerFactory.NewLogger(scope)
}
