// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package newrelic

import (
	"io"

	"github.com/newrelic/go-agent-core/internal/logger"
	"github.com/rs/zerolog"
)

// Logger is the interface that groups the logging methods used by the agent.
// Loggers must be safe for use in multiple goroutines.
type Logger interface {
	Error(msg string, context map[string]interface{})
	Warn(msg string, context map[string]interface{})
	Info(msg string, context map[string]interface{})
	Debug(msg string, context map[string]interface{})
	DebugEnabled() bool
}

// NewLogger creates a basic Logger at info level.
func NewLogger(w io.Writer) Logger {
	return logger.New(w, false)
}

// NewDebugLogger creates a basic Logger at debug level.
func NewDebugLogger(w io.Writer) Logger {
	return logger.New(w, true)
}

// ZerologLogger adapts an existing zerolog logger.  Debug messages are
// written when the zerolog level allows them.
func ZerologLogger(l *zerolog.Logger) Logger {
	return logger.Zerolog(l)
}

func newFileLogger(location string, debug bool) (Logger, error) {
	return logger.NewFile(location, debug)
}
