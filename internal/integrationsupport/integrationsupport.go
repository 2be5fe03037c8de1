// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package integrationsupport builds test applications for packages outside
// the newrelic package, such as commands built on it.
package integrationsupport

import (
	"sync"
	"testing"

	newrelic "github.com/newrelic/go-agent-core"
	"github.com/newrelic/go-agent-core/internal"
)

// SampleAppName is the name of applications created by NewTestApp.
const SampleAppName = "my app"

// ExpectApp combines Application and Expect, for use in validating data in
// test apps.
type ExpectApp struct {
	internal.Expect
	*newrelic.Application
	*errorSaverLogger
}

// ConfigFullTraces sets the transaction trace and segment thresholds to zero
// so that every transaction produces a full trace.
func ConfigFullTraces(cfg *newrelic.Config) {
	cfg.DistributedTracer.Enabled = true
	cfg.TransactionTracer.Segments.Threshold = 0
	cfg.TransactionTracer.Threshold.IsApdexFailing = false
	cfg.TransactionTracer.Threshold.Duration = 0
}

type recordedLogMessage struct {
	msg     string
	context map[string]interface{}
}

type errorSaverLogger struct {
	sync.Mutex
	errors []recordedLogMessage
}

func (lg *errorSaverLogger) ExpectNoLoggedErrors(tb testing.TB) {
	tb.Helper()
	lg.Lock()
	defer lg.Unlock()
	if len(lg.errors) != 0 {
		tb.Errorf("unexpected non-zero number of errors logged: count=%d errors=%#v", len(lg.errors), lg.errors)
	}
}

func (lg *errorSaverLogger) Error(msg string, context map[string]interface{}) {
	lg.Lock()
	defer lg.Unlock()
	lg.errors = append(lg.errors, recordedLogMessage{msg: msg, context: context})
}
func (lg *errorSaverLogger) Warn(msg string, context map[string]interface{})  {}
func (lg *errorSaverLogger) Info(msg string, context map[string]interface{})  {}
func (lg *errorSaverLogger) Debug(msg string, context map[string]interface{}) {}
func (lg *errorSaverLogger) DebugEnabled() bool                               { return false }

// NewTestApp creates an ExpectApp with the given config options.  The
// periodic harvest is disabled; tests inspect the collected data through
// Expect.
func NewTestApp(cfgFn ...newrelic.ConfigOption) ExpectApp {
	lg := new(errorSaverLogger)
	cfgFn = append(cfgFn,
		newrelic.ConfigEnabled(false),
		newrelic.ConfigAppName(SampleAppName),
		newrelic.ConfigLogger(lg),
	)

	app, err := newrelic.NewApplication(cfgFn...)
	if nil != err {
		panic(err)
	}
	return ExpectApp{
		Expect:           app.Private.(internal.Expect),
		Application:      app,
		errorSaverLogger: lg,
	}
}

// NewBasicTestApp creates an ExpectApp with the default config.
func NewBasicTestApp() ExpectApp {
	return NewTestApp()
}
