// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package newrelic

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/hashicorp/go-multierror"
	"github.com/newrelic/go-agent-core/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig("my app")
	assert.Equal(t, "my app", cfg.AppName)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, internal.FixedHarvestPeriod, cfg.HarvestPeriod)
	assert.Equal(t, internal.HarvestQueueSize, cfg.HarvestQueueSize)
	assert.True(t, cfg.TransactionTracer.Threshold.IsApdexFailing)
	assert.Equal(t, 1, cfg.TransactionTracer.Detail)
	assert.Equal(t, internal.MaxSegmentsCLI, cfg.TransactionTracer.MaxSegmentsCLI)
	assert.Equal(t, internal.MaxSegmentsWeb, cfg.TransactionTracer.MaxSegmentsWeb)
	assert.Equal(t, internal.DefaultSegmentThreshold, cfg.TransactionTracer.Segments.Threshold)
	assert.Equal(t, internal.DefaultSpanSamplesStored, cfg.SpanEvents.MaxSamplesStored)
	assert.True(t, cfg.DistributedTracer.Enabled)
	assert.False(t, cfg.HighSecurity)
	assert.NoError(t, cfg.Validate())
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := NewConfig("")
	cfg.HarvestQueueSize = 0
	cfg.TransactionTracer.Detail = -1
	cfg.DistributedTracer.SamplingPeriod = 0

	err := cfg.Validate()
	require.Error(t, err)
	merr, ok := err.(*multierror.Error)
	require.True(t, ok, "%T", err)
	assert.ElementsMatch(t, []error{
		errAppNameMissing,
		errQueueSize,
		errTraceDetail,
		errSamplingPeriod,
	}, merr.Errors)
}

func TestValidateAppNameLimit(t *testing.T) {
	cfg := NewConfig("one;two;three;four")
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), errAppNameLimit.Error())

	cfg.AppName = "one;two;three"
	assert.NoError(t, cfg.Validate())
}

func TestDisabledConfigIgnoresHarvestPeriod(t *testing.T) {
	cfg := NewConfig("my app")
	cfg.Enabled = false
	cfg.HarvestPeriod = 0
	assert.NoError(t, cfg.Validate())
}

func TestNewApplicationInvalidConfig(t *testing.T) {
	app, err := NewApplication(ConfigEnabled(false))
	assert.Error(t, err)
	assert.Nil(t, app)
}

func TestTxnConfigHighSecurity(t *testing.T) {
	cfg := NewConfig("my app")
	cfg.HighSecurity = true
	tc := cfg.txnConfig()
	assert.True(t, tc.HighSecurity)
	assert.False(t, tc.CustomEventsEnabled)
}

func TestTxnConfigTrustedAccountKeyDefault(t *testing.T) {
	cfg := NewConfig("my app")
	cfg.DistributedTracer.AccountID = "123"
	assert.Equal(t, "123", cfg.txnConfig().TrustedAccountKey)

	cfg.DistributedTracer.TrustedAccountKey = "999"
	assert.Equal(t, "999", cfg.txnConfig().TrustedAccountKey)
}

func TestConfigFromYAML(t *testing.T) {
	doc := `
app_name: yaml app
high_security: true
transaction_tracer:
  threshold: 250
  detail: 0
  max_segments_cli: 500
  max_segments_web: 100
span_events_enabled: false
span_events.max_samples_stored: 50000
distributed_tracing_enabled: false
cross_application_tracer.enabled: true
error_collector:
  enabled: true
  prioritize_api_errors: true
attributes:
  exclude:
    - request.headers.*
    - password
`
	cfg := NewConfig("")
	ConfigFromYAML(strings.NewReader(doc))(&cfg)
	require.NoError(t, cfg.Error)

	assert.Equal(t, "yaml app", cfg.AppName)
	assert.True(t, cfg.HighSecurity)
	assert.False(t, cfg.TransactionTracer.Threshold.IsApdexFailing)
	assert.Equal(t, 250*time.Millisecond, cfg.TransactionTracer.Threshold.Duration)
	assert.Equal(t, 0, cfg.TransactionTracer.Detail)
	assert.Equal(t, 500, cfg.TransactionTracer.MaxSegmentsCLI)
	assert.Equal(t, 100, cfg.TransactionTracer.MaxSegmentsWeb)
	assert.False(t, cfg.SpanEvents.Enabled)
	assert.Equal(t, internal.MaxSpanSamplesStored, cfg.SpanEvents.MaxSamplesStored)
	assert.False(t, cfg.DistributedTracer.Enabled)
	assert.True(t, cfg.CrossApplicationTracer.Enabled)
	assert.True(t, cfg.ErrorCollector.PrioritizeAPIErrors)
	if diff := cmp.Diff([]string{"request.headers.*", "password"}, cfg.Attributes.Exclude); "" != diff {
		t.Error(diff)
	}
}

func TestConfigFromYAMLApdexThreshold(t *testing.T) {
	cfg := NewConfig("my app")
	cfg.TransactionTracer.Threshold.IsApdexFailing = false
	ConfigFromYAML(strings.NewReader("transaction_tracer.threshold: apdex_f\n"))(&cfg)
	require.NoError(t, cfg.Error)
	assert.True(t, cfg.TransactionTracer.Threshold.IsApdexFailing)
}

func TestConfigFromYAMLDurations(t *testing.T) {
	cfg := NewConfig("my app")
	ConfigFromYAML(strings.NewReader("harvest_period: 5s\ntransaction_tracer.segment_threshold: 10\n"))(&cfg)
	require.NoError(t, cfg.Error)
	assert.Equal(t, 5*time.Second, cfg.HarvestPeriod)
	assert.Equal(t, 10*time.Millisecond, cfg.TransactionTracer.Segments.Threshold)
}

func TestConfigFromYAMLSpanSamplesFallback(t *testing.T) {
	cfg := NewConfig("my app")
	cfg.SpanEvents.MaxSamplesStored = 7
	ConfigFromYAML(strings.NewReader("span_events.max_samples_stored: lots\n"))(&cfg)
	require.NoError(t, cfg.Error)
	assert.Equal(t, internal.DefaultSpanSamplesStored, cfg.SpanEvents.MaxSamplesStored)
}

func TestConfigFromYAMLErrors(t *testing.T) {
	cfg := NewConfig("my app")
	ConfigFromYAML(strings.NewReader("unknown_setting: 1\ntransaction_tracer.detail: high\n"))(&cfg)
	require.Error(t, cfg.Error)
	merr, ok := cfg.Error.(*multierror.Error)
	require.True(t, ok, "%T", cfg.Error)
	assert.Len(t, merr.Errors, 2)

	// The config error surfaces through Validate.
	assert.Error(t, cfg.Validate())
}

func TestConfigFromYAMLEmptyDocument(t *testing.T) {
	cfg := NewConfig("my app")
	ConfigFromYAML(strings.NewReader(""))(&cfg)
	assert.NoError(t, cfg.Error)
}

func TestConfigFromYAMLMalformed(t *testing.T) {
	cfg := NewConfig("my app")
	ConfigFromYAML(strings.NewReader("app_name: [unclosed\n"))(&cfg)
	assert.Error(t, cfg.Error)
}

func TestConfigFromFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "nrconfig")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "newrelic.yml")
	require.NoError(t, ioutil.WriteFile(path, []byte("app_name: file app\ncode_level_metrics.enabled: false\n"), 0644))

	cfg := NewConfig("")
	ConfigFromFile(path)(&cfg)
	require.NoError(t, cfg.Error)
	assert.Equal(t, "file app", cfg.AppName)
	assert.False(t, cfg.CodeLevelMetrics.Enabled)

	cfg = NewConfig("")
	ConfigFromFile(filepath.Join(dir, "missing.yml"))(&cfg)
	assert.Error(t, cfg.Error)
}

func TestConfigFromEnvironment(t *testing.T) {
	env := map[string]string{
		"NEW_RELIC_APP_NAME":                           "env app",
		"NEW_RELIC_HIGH_SECURITY":                      "true",
		"NEW_RELIC_TRANSACTION_TRACER_MAX_SEGMENTS_CLI": "42",
		"NEW_RELIC_DISTRIBUTED_TRACING_ENABLED":        "false",
		"NEW_RELIC_ATTRIBUTES_INCLUDE":                 "a,b",
	}
	cfg := NewConfig("")
	configFromEnvironment(func(key string) string { return env[key] })(&cfg)
	require.NoError(t, cfg.Error)

	assert.Equal(t, "env app", cfg.AppName)
	assert.True(t, cfg.HighSecurity)
	assert.Equal(t, 42, cfg.TransactionTracer.MaxSegmentsCLI)
	assert.False(t, cfg.DistributedTracer.Enabled)
	assert.Equal(t, []string{"a", "b"}, cfg.Attributes.Include)
}

func TestConfigFromEnvironmentInvalid(t *testing.T) {
	env := map[string]string{
		"NEW_RELIC_ENABLED":            "maybe",
		"NEW_RELIC_HARVEST_QUEUE_SIZE": "many",
	}
	cfg := NewConfig("my app")
	configFromEnvironment(func(key string) string { return env[key] })(&cfg)
	require.Error(t, cfg.Error)
	assert.Contains(t, cfg.Error.Error(), "NEW_RELIC_ENABLED")
	assert.Contains(t, cfg.Error.Error(), "NEW_RELIC_HARVEST_QUEUE_SIZE")
}

func TestConfigFromEnvironmentLogger(t *testing.T) {
	env := map[string]string{
		"NEW_RELIC_LOG":       "stdout",
		"NEW_RELIC_LOG_LEVEL": "debug",
	}
	cfg := NewConfig("my app")
	configFromEnvironment(func(key string) string { return env[key] })(&cfg)
	require.NoError(t, cfg.Error)
	require.NotNil(t, cfg.Logger)
	assert.True(t, cfg.Logger.DebugEnabled())
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "NEW_RELIC_SPAN_EVENTS_MAX_SAMPLES_STORED", envName("span_events.max_samples_stored"))
	assert.Equal(t, "NEW_RELIC_DISTRIBUTED_TRACING_ENABLED", envName("distributed_tracing_enabled"))
}
