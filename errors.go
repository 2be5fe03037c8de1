// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package newrelic

import (
	"fmt"
	"runtime"

	"github.com/newrelic/go-agent-core/internal"
	"github.com/pkg/errors"
)

const maxStackTraceFrames = 100

// StackTracer can be implemented by errors to provide a stack trace when using
// Transaction.NoticeError.
type StackTracer interface {
	StackTrace() []uintptr
}

// ErrorClasser can be implemented by errors to provide a custom class when
// using Transaction.NoticeError.
type ErrorClasser interface {
	ErrorClass() string
}

// ErrorAttributer can be implemented by errors to provide extra context when
// using Transaction.NoticeError.
type ErrorAttributer interface {
	ErrorAttributes() map[string]interface{}
}

// Error is an error that implements ErrorClasser, ErrorAttributer, and
// StackTracer.  Use it with Transaction.NoticeError to directly control error
// message, class, stacktrace, and attributes.
type Error struct {
	// Message is the error message which will be returned by the Error()
	// method.
	Message string
	// Class indicates how the error may be aggregated.
	Class string
	// Attributes are attached to traced errors and error events for
	// additional context.  These attributes are validated just like those
	// added to `Transaction.AddAttribute`.
	Attributes map[string]interface{}
	// Stack is the stack trace.  Assign this field using NewStackTrace,
	// or leave it nil to indicate that Transaction.NoticeError should
	// generate one.
	Stack []uintptr
}

// NewStackTrace generates a stack trace which can be assigned to the Error
// struct's Stack field or returned by an error that implements the StackTracer
// interface.
func NewStackTrace() []uintptr {
	callers := make([]uintptr, maxStackTraceFrames)
	// Skip runtime.Callers and NewStackTrace.
	written := runtime.Callers(2, callers)
	return callers[:written]
}

func (e Error) Error() string { return e.Message }

// ErrorClass implements the ErrorClasser interface.
func (e Error) ErrorClass() string { return e.Class }

// ErrorAttributes implements the ErrorAttributes interface.
func (e Error) ErrorAttributes() map[string]interface{} { return e.Attributes }

// StackTrace implements the StackTracer interface.
func (e Error) StackTrace() []uintptr { return e.Stack }

// pkgStackTracer is implemented by the errors of github.com/pkg/errors.
type pkgStackTracer interface {
	StackTrace() errors.StackTrace
}

// errorClass prefers an ErrorClasser on the error itself, then on its
// github.com/pkg/errors cause, then the type of the cause.
func errorClass(err error) string {
	if ec, ok := err.(ErrorClasser); ok {
		if class := ec.ErrorClass(); "" != class {
			return class
		}
	}
	cause := errors.Cause(err)
	if ec, ok := cause.(ErrorClasser); ok {
		if class := ec.ErrorClass(); "" != class {
			return class
		}
	}
	return fmt.Sprintf("%T", cause)
}

// deepestPkgStackTrace returns the stack recorded closest to the origin of a
// github.com/pkg/errors chain.
func deepestPkgStackTrace(err error) errors.StackTrace {
	var last pkgStackTracer
	for nil != err {
		if st, ok := err.(pkgStackTracer); ok {
			last = st
		}
		cause, ok := err.(interface{ Cause() error })
		if !ok {
			break
		}
		err = cause.Cause()
	}
	if nil == last {
		return nil
	}
	return last.StackTrace()
}

// errorStackTrace returns the stack of err, or the current stack with skip
// callers of errorStackTrace omitted.
func errorStackTrace(err error, skip int) internal.StackTrace {
	if st, ok := err.(StackTracer); ok {
		if pcs := st.StackTrace(); len(pcs) > 0 {
			return internal.StackTraceFromPCs(pcs)
		}
	}
	if st := deepestPkgStackTrace(err); len(st) > 0 {
		pcs := make([]uintptr, len(st))
		for i, frame := range st {
			pcs[i] = uintptr(frame)
		}
		return internal.StackTraceFromPCs(pcs)
	}
	return internal.GetStackTrace(skip + 1)
}

// errorAttributes validates the attributes of an ErrorAttributer.
func errorAttributes(err error) (map[string]interface{}, error) {
	ea, ok := err.(ErrorAttributer)
	if !ok {
		return nil, nil
	}
	attrs := ea.ErrorAttributes()
	if 0 == len(attrs) {
		return nil, nil
	}
	valid := make(map[string]interface{}, len(attrs))
	for key, val := range attrs {
		v, err := internal.ValidateUserAttribute(key, val)
		if nil != err {
			return nil, err
		}
		valid[key] = v
	}
	return valid, nil
}
