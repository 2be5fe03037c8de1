// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package internal

import (
	"bytes"
	"path"
	"runtime"
	"strconv"

	"github.com/newrelic/go-agent-core/internal/jsonx"
)

// StackFrame is a single resolved frame of a stack trace.
type StackFrame struct {
	Name string
	File string
	Line int64
}

// StackTrace is a list of resolved frames, innermost first.
type StackTrace []StackFrame

// GetStackTrace captures the current goroutine's stack.  skipFrames is the
// number of callers above GetStackTrace's caller to omit.
func GetStackTrace(skipFrames int) StackTrace {
	skip := 2 // skips runtime.Callers and this function
	skip += skipFrames

	callers := make([]uintptr, maxStackTraceFrames)
	written := runtime.Callers(skip, callers)
	return StackTraceFromPCs(callers[:written])
}

// StackTraceFromPCs resolves program counters, such as those of a
// github.com/pkg/errors stack, into frames.
func StackTraceFromPCs(pcs []uintptr) StackTrace {
	if 0 == len(pcs) {
		return nil
	}
	if len(pcs) > maxStackTraceFrames {
		pcs = pcs[:maxStackTraceFrames]
	}
	st := make(StackTrace, 0, len(pcs))
	frames := runtime.CallersFrames(pcs)
	for {
		f, more := frames.Next()
		st = append(st, StackFrame{
			Name: f.Function,
			File: f.File,
			Line: int64(f.Line),
		})
		if !more {
			break
		}
	}
	return st
}

// TopFunction returns the base name of the innermost frame's function.
func (st StackTrace) TopFunction() string {
	if 0 == len(st) {
		return ""
	}
	return path.Base(st[0].Name)
}

func (f StackFrame) String() string {
	// Format designed to match the Ruby agent.
	name := f.Name
	if "" == name {
		name = "unknown"
	}
	return f.File + ":" + strconv.FormatInt(f.Line, 10) + ":in `" + path.Base(name) + "'"
}

// WriteJSON writes the frames as an array of strings.
func (st StackTrace) WriteJSON(buf *bytes.Buffer) {
	buf.WriteByte('[')
	for i, f := range st {
		if i > 0 {
			buf.WriteByte(',')
		}
		jsonx.AppendString(buf, f.String())
	}
	buf.WriteByte(']')
}

// MarshalJSON prepares JSON in the format expected by the collector.
func (st StackTrace) MarshalJSON() ([]byte, error) {
	buf := &bytes.Buffer{}
	st.WriteJSON(buf)
	return buf.Bytes(), nil
}
