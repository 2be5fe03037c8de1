// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package logger provides the agent's default logging on top of zerolog.
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger matches newrelic.Logger to allow implementations to be passed to
// internal packages.
type Logger interface {
	Error(msg string, context map[string]interface{})
	Warn(msg string, context map[string]interface{})
	Info(msg string, context map[string]interface{})
	Debug(msg string, context map[string]interface{})
	DebugEnabled() bool
}

// ShimLogger implements Logger and does nothing.
type ShimLogger struct {
	// IsDebugEnabled is returned by DebugEnabled.
	IsDebugEnabled bool
}

// Error does nothing.
func (s ShimLogger) Error(string, map[string]interface{}) {}

// Warn does nothing.
func (s ShimLogger) Warn(string, map[string]interface{}) {}

// Info does nothing.
func (s ShimLogger) Info(string, map[string]interface{}) {}

// Debug does nothing.
func (s ShimLogger) Debug(string, map[string]interface{}) {}

// DebugEnabled returns IsDebugEnabled.
func (s ShimLogger) DebugEnabled() bool { return s.IsDebugEnabled }

type zerologShim struct{ logger *zerolog.Logger }

func (s *zerologShim) Error(msg string, c map[string]interface{}) {
	s.logger.Error().Fields(c).Msg(msg)
}
func (s *zerologShim) Warn(msg string, c map[string]interface{}) {
	s.logger.Warn().Fields(c).Msg(msg)
}
func (s *zerologShim) Info(msg string, c map[string]interface{}) {
	s.logger.Info().Fields(c).Msg(msg)
}
func (s *zerologShim) Debug(msg string, c map[string]interface{}) {
	s.logger.Debug().Fields(c).Msg(msg)
}
func (s *zerologShim) DebugEnabled() bool {
	return s.logger.GetLevel() <= zerolog.DebugLevel
}

// Zerolog turns a *zerolog.Logger into a Logger.
func Zerolog(l *zerolog.Logger) Logger {
	if nil == l {
		return ShimLogger{}
	}
	return &zerologShim{logger: l}
}

// New creates a JSON logger writing to w.  Debug messages are written only
// when debug is true.
func New(w io.Writer, debug bool) Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	l := zerolog.New(w).Level(level).With().
		Timestamp().
		Int("pid", os.Getpid()).
		Str("component", "newrelic").
		Logger()
	return Zerolog(&l)
}

// NewFile creates a logger for a location which is a file path, "stdout" or
// "stderr".  Files are opened for appending.
func NewFile(location string, debug bool) (Logger, error) {
	var w io.Writer
	switch location {
	case "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		f, err := os.OpenFile(location, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0666)
		if nil != err {
			return nil, err
		}
		w = f
	}
	return New(w, debug), nil
}
