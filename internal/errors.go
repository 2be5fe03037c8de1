// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package internal

import (
	"bytes"
	"fmt"
	"time"

	"github.com/newrelic/go-agent-core/internal/jsonx"
)

const (
	// PanicErrorClass is the error type for errors generated by panics.
	PanicErrorClass = "panic"
	// HighSecurityErrorMsg replaces error messages when high security mode
	// is enabled.
	HighSecurityErrorMsg = "Message removed by New Relic high_security setting"
)

// ErrorLevel is the severity of an error reported by level.  The values
// match the runtime error constants of the instrumented language.
type ErrorLevel int

// Error levels.
const (
	E_ERROR             ErrorLevel = 1
	E_WARNING           ErrorLevel = 2
	E_PARSE             ErrorLevel = 4
	E_NOTICE            ErrorLevel = 8
	E_CORE_ERROR        ErrorLevel = 16
	E_CORE_WARNING      ErrorLevel = 32
	E_COMPILE_ERROR     ErrorLevel = 64
	E_COMPILE_WARNING   ErrorLevel = 128
	E_USER_ERROR        ErrorLevel = 256
	E_USER_WARNING      ErrorLevel = 512
	E_USER_NOTICE       ErrorLevel = 1024
	E_STRICT            ErrorLevel = 2048
	E_RECOVERABLE_ERROR ErrorLevel = 4096
	E_DEPRECATED        ErrorLevel = 8192
	E_USER_DEPRECATED   ErrorLevel = 16384
)

var errorLevelNames = map[ErrorLevel]string{
	E_ERROR:             "E_ERROR",
	E_WARNING:           "E_WARNING",
	E_PARSE:             "E_PARSE",
	E_NOTICE:            "E_NOTICE",
	E_CORE_ERROR:        "E_CORE_ERROR",
	E_CORE_WARNING:      "E_CORE_WARNING",
	E_COMPILE_ERROR:     "E_COMPILE_ERROR",
	E_COMPILE_WARNING:   "E_COMPILE_WARNING",
	E_USER_ERROR:        "E_USER_ERROR",
	E_USER_WARNING:      "E_USER_WARNING",
	E_USER_NOTICE:       "E_USER_NOTICE",
	E_STRICT:            "E_STRICT",
	E_RECOVERABLE_ERROR: "E_RECOVERABLE_ERROR",
	E_DEPRECATED:        "E_DEPRECATED",
	E_USER_DEPRECATED:   "E_USER_DEPRECATED",
}

func (l ErrorLevel) String() string {
	if s, ok := errorLevelNames[l]; ok {
		return s
	}
	return fmt.Sprintf("Error(%d)", int(l))
}

// ErrorLevelFromString parses a level name such as "E_WARNING".
func ErrorLevelFromString(s string) (ErrorLevel, bool) {
	for l, name := range errorLevelNames {
		if name == s {
			return l, true
		}
	}
	return 0, false
}

// error priorities
const (
	priorityUncaught       = 100
	priorityAPIPrioritized = 99
	priorityFatal          = 50
	priorityAPI            = 50
	priorityRecoverable    = 45
	priorityWarning        = 40
	priorityNotice         = 30
	priorityStrict         = 20
	priorityDeprecated     = 10
	priorityUnknown        = 0
)

func (l ErrorLevel) priority() int {
	switch l {
	case E_ERROR, E_PARSE, E_CORE_ERROR, E_COMPILE_ERROR, E_USER_ERROR:
		return priorityFatal
	case E_RECOVERABLE_ERROR:
		return priorityRecoverable
	case E_WARNING, E_CORE_WARNING, E_COMPILE_WARNING, E_USER_WARNING:
		return priorityWarning
	case E_NOTICE, E_USER_NOTICE:
		return priorityNotice
	case E_STRICT:
		return priorityStrict
	case E_DEPRECATED, E_USER_DEPRECATED:
		return priorityDeprecated
	}
	return priorityUnknown
}

// ErrorKind describes how an error was reported.
type ErrorKind int

// Error kinds.
const (
	// ErrorKindLevel errors are reported with a severity level.
	ErrorKindLevel ErrorKind = iota
	// ErrorKindAPI errors are reported through NoticeError.
	ErrorKindAPI
	// ErrorKindUncaught errors are uncaught exceptions or panics.
	ErrorKindUncaught
)

// ErrorCandidate is an error offered to a transaction.
type ErrorCandidate struct {
	Kind       ErrorKind
	Level      ErrorLevel
	Class      string
	Message    string
	Stack      StackTrace
	Attributes map[string]interface{}
	When       time.Time
	// SpanID is the guid of the segment active when the error was noticed.
	SpanID string
}

// ErrorRecord is the error kept for a transaction.
type ErrorRecord struct {
	ErrorCandidate
	priority int
}

// Priority returns the record's priority.
func (e *ErrorRecord) Priority() int { return e.priority }

// ErrorRecorder keeps the single most important error of a transaction.
type ErrorRecorder struct {
	held *ErrorRecord
	// seen counts every considered error, whether or not it was kept.
	seen uint64
}

// ErrorRecorderConfig controls ErrorRecorder.Consider.
type ErrorRecorderConfig struct {
	Enabled             bool
	HighSecurity        bool
	PrioritizeAPIErrors bool
}

func candidatePriority(c *ErrorCandidate, prioritizeAPI bool) int {
	switch c.Kind {
	case ErrorKindUncaught:
		return priorityUncaught
	case ErrorKindAPI:
		if prioritizeAPI {
			return priorityAPIPrioritized
		}
		return priorityAPI
	}
	return c.Level.priority()
}

// Consider offers an error.  It returns true if the error is now the held
// error.  A held uncaught exception is never replaced; otherwise the
// candidate replaces the held error only if its priority is strictly
// higher.
func (r *ErrorRecorder) Consider(cfg ErrorRecorderConfig, c ErrorCandidate) bool {
	if !cfg.Enabled {
		return false
	}
	r.seen++
	if cfg.HighSecurity {
		c.Message = HighSecurityErrorMsg
	}
	p := candidatePriority(&c, cfg.PrioritizeAPIErrors)
	if nil != r.held {
		if ErrorKindUncaught == r.held.Kind {
			return false
		}
		if p <= r.held.priority {
			return false
		}
	}
	r.held = &ErrorRecord{ErrorCandidate: c, priority: p}
	return true
}

// Finalize returns the held error, or nil when none was considered.
func (r *ErrorRecorder) Finalize() *ErrorRecord {
	if nil == r {
		return nil
	}
	return r.held
}

// Seen returns the number of errors considered.
func (r *ErrorRecorder) Seen() uint64 {
	if nil == r {
		return 0
	}
	return r.seen
}

// harvestError is an error trace ready for harvest.
type harvestError struct {
	ErrorRecord
	txnName    string
	txnGUID    string
	requestURI string
	attrs      *Attributes
	intrinsics orderedAttributes
}

func (h *harvestError) WriteJSON(buf *bytes.Buffer) {
	buf.WriteByte('[')
	jsonx.AppendFloat(buf, timeToFloatMilliseconds(h.When))
	buf.WriteByte(',')
	jsonx.AppendString(buf, h.txnName)
	buf.WriteByte(',')
	jsonx.AppendString(buf, h.Message)
	buf.WriteByte(',')
	jsonx.AppendString(buf, h.Class)
	buf.WriteByte(',')

	buf.WriteByte('{')
	w := jsonFieldsWriter{buf: buf}
	if nil != h.Stack {
		w.writerField("stack_trace", h.Stack)
	}
	if "" != h.requestURI {
		w.stringField("request_uri", h.requestURI)
	}
	var agent, user *orderedAttributes
	if nil != h.attrs {
		agent, user = &h.attrs.Agent, &h.attrs.User
	}
	w.addKey("agentAttributes")
	agent.writeJSON(buf, destError)
	w.addKey("userAttributes")
	writeErrorUserAttributes(buf, user, h.Attributes)
	w.addKey("intrinsics")
	h.intrinsics.writeJSON(buf, destError)
	buf.WriteByte('}')

	buf.WriteByte(',')
	jsonx.AppendString(buf, h.txnGUID)
	buf.WriteByte(']')
}

// writeErrorUserAttributes writes the transaction's user attributes followed
// by those attached to the error itself.
func writeErrorUserAttributes(buf *bytes.Buffer, user *orderedAttributes, extra map[string]interface{}) {
	merged := orderedAttributes{}
	if nil != user {
		for _, key := range user.keys {
			merged.set(key, user.values[key])
		}
	}
	for _, key := range sortedKeys(extra) {
		merged.set(key, attributeValue{value: extra[key], destinations: destError})
	}
	merged.writeJSON(buf, destError)
}

// MarshalJSON is used for testing.
func (h *harvestError) MarshalJSON() ([]byte, error) {
	buf := &bytes.Buffer{}
	h.WriteJSON(buf)
	return buf.Bytes(), nil
}

type harvestErrors []*harvestError

func newHarvestErrors(max int) harvestErrors {
	return make([]*harvestError, 0, max)
}

func (errors *harvestErrors) add(e *harvestError) {
	if len(*errors) < cap(*errors) {
		*errors = append(*errors, e)
	}
}

func (errors harvestErrors) Data(agentRunID string, harvestStart time.Time) ([]byte, error) {
	if 0 == len(errors) {
		return nil, nil
	}
	estimate := 1024 * len(errors)
	buf := bytes.NewBuffer(make([]byte, 0, estimate))
	buf.WriteByte('[')
	jsonx.AppendString(buf, agentRunID)
	buf.WriteByte(',')
	buf.WriteByte('[')
	for i, e := range errors {
		if i > 0 {
			buf.WriteByte(',')
		}
		e.WriteJSON(buf)
	}
	buf.WriteByte(']')
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// MergeIntoHarvest is a no-op: error traces are not retried.
func (errors harvestErrors) MergeIntoHarvest(h *Harvest) {}

func (errors harvestErrors) EndpointMethod() string {
	return cmdErrorData
}
