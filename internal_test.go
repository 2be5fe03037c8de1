// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package newrelic

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/newrelic/go-agent-core/internal"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2020, time.March, 2, 12, 0, 0, 0, time.UTC)

// testClock is advanced by hand so that durations are exact.
type testClock struct {
	sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.Lock()
	defer c.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.Lock()
	defer c.Unlock()
	c.now = c.now.Add(d)
}

type recordedLog struct {
	level   string
	msg     string
	context map[string]interface{}
}

// recordingLogger keeps every message so tests can assert on warnings.
type recordingLogger struct {
	sync.Mutex
	logs []recordedLog
}

func (lg *recordingLogger) record(level, msg string, context map[string]interface{}) {
	lg.Lock()
	defer lg.Unlock()
	lg.logs = append(lg.logs, recordedLog{level: level, msg: msg, context: context})
}

func (lg *recordingLogger) Error(msg string, c map[string]interface{}) { lg.record("error", msg, c) }
func (lg *recordingLogger) Warn(msg string, c map[string]interface{})  { lg.record("warn", msg, c) }
func (lg *recordingLogger) Info(msg string, c map[string]interface{})  { lg.record("info", msg, c) }
func (lg *recordingLogger) Debug(msg string, c map[string]interface{}) { lg.record("debug", msg, c) }
func (lg *recordingLogger) DebugEnabled() bool                         { return true }

func (lg *recordingLogger) messages(level string) []string {
	lg.Lock()
	defer lg.Unlock()
	var msgs []string
	for _, l := range lg.logs {
		if l.level == level {
			msgs = append(msgs, l.msg)
		}
	}
	return msgs
}

// sinkRecorder is a HarvestSink that stores what it receives.
type sinkRecorder struct {
	sync.Mutex
	payloads []HarvestPayload
	err      error
}

func (s *sinkRecorder) Deliver(ctx context.Context, p HarvestPayload) error {
	s.Lock()
	defer s.Unlock()
	if nil != s.err {
		return s.err
	}
	s.payloads = append(s.payloads, p)
	return nil
}

func (s *sinkRecorder) endpoints() []string {
	s.Lock()
	defer s.Unlock()
	var eps []string
	for _, p := range s.payloads {
		eps = append(eps, p.Endpoint)
	}
	return eps
}

func (s *sinkRecorder) payload(endpoint string) (HarvestPayload, bool) {
	s.Lock()
	defer s.Unlock()
	for _, p := range s.payloads {
		if p.Endpoint == endpoint {
			return p, true
		}
	}
	return HarvestPayload{}, false
}

type expectApp struct {
	internal.Expect
	*Application
	clock  *testClock
	logger *recordingLogger
}

func (app expectApp) ExpectMetricsPresent(t internal.Validator, want []internal.WantMetric) {
	app.app.ExpectMetricsPresent(t, want)
}

func configTestDefaults(cfg *Config) {
	cfg.Enabled = false
	cfg.AppName = "my app"
	cfg.DistributedTracer.AccountID = "123"
	cfg.DistributedTracer.PrimaryAppID = "456"
}

// testApp builds an Application whose periodic harvest is disabled and
// whose clock starts at testStart.
func testApp(t testing.TB, opts ...ConfigOption) expectApp {
	lg := &recordingLogger{}
	opts = append([]ConfigOption{configTestDefaults, ConfigLogger(lg)}, opts...)
	app, err := NewApplication(opts...)
	require.NoError(t, err)

	clock := &testClock{now: testStart}
	app.app.now = clock.Now
	t.Cleanup(func() { app.Shutdown(time.Second) })

	return expectApp{
		Expect:      app.Private.(internal.Expect),
		Application: app,
		clock:       clock,
		logger:      lg,
	}
}
