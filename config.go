// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package newrelic

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/newrelic/go-agent-core/internal"
	"github.com/prometheus/client_golang/prometheus"
)

// Config contains Application and Transaction behavior settings.
// Use NewConfig to create a Config with proper defaults.
type Config struct {
	// AppName names the application in every payload.
	AppName string

	// RunID identifies this agent run in harvest payloads.  A random
	// identifier is generated when it is empty.
	RunID string

	// Logger controls agent logging.  For info level logging to stdout:
	//
	//	cfg.Logger = newrelic.NewLogger(os.Stdout)
	//
	// For debug level logging to stdout:
	//
	//	cfg.Logger = newrelic.NewDebugLogger(os.Stdout)
	//
	Logger Logger

	// Enabled controls whether the Application spawns the goroutine which
	// harvests every HarvestPeriod.  When false, data is only delivered by
	// Application.Harvest and Application.Shutdown.
	Enabled bool

	// HarvestPeriod is the interval of the harvest loop.
	HarvestPeriod time.Duration

	// HarvestSink receives every harvest payload.  Payloads are discarded
	// when it is nil.
	HarvestSink HarvestSink

	// HarvestQueueSize is the number of payloads which may wait for the
	// HarvestSink.  Further payloads are dropped until the queue drains.
	HarvestQueueSize int

	// MetricsRegisterer registers the prometheus counters of the harvest
	// queue.  The counters are not registered when it is nil.
	MetricsRegisterer prometheus.Registerer

	// HighSecurity guarantees that certain agent settings can not be made
	// more permissive: user attributes, custom events, query parameters
	// and error messages are not recorded.
	HighSecurity bool

	// ApdexThreshold is the response time below which a web transaction
	// is satisfying.
	ApdexThreshold time.Duration

	// CustomInsightsEvents controls the behavior of
	// Application.RecordCustomEvent.
	CustomInsightsEvents struct {
		// Enabled controls whether RecordCustomEvent will collect
		// custom analytics events.  High security mode overrides this
		// setting.
		Enabled bool
		// MaxSamplesStored is the custom event reservoir size.
		MaxSamplesStored int
	}

	// TransactionEvents controls the behavior of transaction analytics
	// events.
	TransactionEvents struct {
		// Enabled controls whether transaction events are captured.
		Enabled bool
		// Attributes controls the attributes included with transaction
		// events.
		Attributes AttributeDestinationConfig
		// MaxSamplesStored allows you to limit the number of Transaction
		// Events stored/reported in a given harvest period.
		MaxSamplesStored int
	}

	// ErrorCollector controls the capture of errors.
	ErrorCollector struct {
		// Enabled controls whether errors are captured.  This setting
		// affects both traced errors and error analytics events.
		Enabled bool
		// CaptureEvents controls whether error analytics events are
		// captured.
		CaptureEvents bool
		// PrioritizeAPIErrors gives errors noticed through
		// Transaction.NoticeError precedence over every error except
		// panics.
		PrioritizeAPIErrors bool
		// RecordPanics controls whether or not a deferred
		// Transaction.End will attempt to recover panics, record them
		// as errors, and then re-panic them.
		RecordPanics bool
		// Attributes controls the attributes included with errors.
		Attributes AttributeDestinationConfig
	}

	// TransactionTracer controls the capture of transaction traces.
	TransactionTracer struct {
		// Enabled controls whether transaction traces are captured.
		Enabled bool
		// Threshold controls whether a transaction trace will be
		// considered for capture.  Of the traces exceeding the
		// threshold, the slowest trace every harvest is captured.
		Threshold struct {
			// If IsApdexFailing is true then the trace threshold is
			// four times the apdex threshold.
			IsApdexFailing bool
			// If IsApdexFailing is false then this field is the
			// threshold, otherwise it is ignored.
			Duration time.Duration
		}
		// Detail zero removes short segments from traces and span
		// events.
		Detail int
		// MaxSegmentsCLI limits the segment tree of background
		// transactions.  Zero means unlimited.
		MaxSegmentsCLI int
		// MaxSegmentsWeb limits the segment tree of web transactions.
		// Zero means unlimited.
		MaxSegmentsWeb int
		// Attributes controls the attributes included with transaction
		// traces.
		Attributes AttributeDestinationConfig
		// Segments contains fields which control the behavior of
		// transaction trace segments.
		Segments struct {
			// Threshold is the duration below which segments are
			// removed when Detail is zero.
			Threshold time.Duration
		}
	}

	// CrossApplicationTracer controls the legacy cross application
	// tracing headers written on outbound requests.
	CrossApplicationTracer struct {
		Enabled bool
		// CrossProcessID and EncodingKey identify this application in
		// X-NewRelic-ID and X-NewRelic-Transaction headers, and decode
		// inbound X-NewRelic-Synthetics headers.
		CrossProcessID string
		EncodingKey    string
		// TrustedAccounts lists the accounts whose synthetics headers
		// are honored.
		TrustedAccounts []int
	}

	// DistributedTracer controls behaviour relating to Distributed Tracing.
	DistributedTracer struct {
		Enabled bool
		// ExcludeNewRelicHeader omits the newrelic header from outbound
		// requests, leaving only the W3C headers.
		ExcludeNewRelicHeader bool
		// AccountID, PrimaryAppID and TrustedAccountKey identify this
		// application in distributed trace payloads.
		AccountID         string
		PrimaryAppID      string
		TrustedAccountKey string
		// SamplingTarget is the number of transactions the adaptive
		// sampler aims to sample each SamplingPeriod.
		SamplingTarget uint64
		SamplingPeriod time.Duration
	}

	// SpanEvents controls behavior relating to Span Events.  Span Events
	// require that DistributedTracer is enabled.
	SpanEvents struct {
		Enabled bool
		// MaxSamplesStored is the size of each transaction's span
		// reservoir.  Values outside 1 to 10000 are clamped; zero or
		// negative values use 2000.
		MaxSamplesStored int
		// HarvestLimit is the size of the harvest span reservoir.
		HarvestLimit int
		Attributes   AttributeDestinationConfig
	}

	// DatastoreTracer controls behavior relating to datastore segments.
	DatastoreTracer struct {
		// InstanceReporting controls whether the host and port are collected
		// for datastore segments.
		InstanceReporting struct {
			Enabled bool
		}
		// DatabaseNameReporting controls whether the database name is
		// collected for datastore segments.
		DatabaseNameReporting struct {
			Enabled bool
		}
		QueryParameters struct {
			Enabled bool
		}
	}

	// CodeLevelMetrics controls the code.* attributes added by
	// Segment.SetCodeLocation.
	CodeLevelMetrics struct {
		Enabled bool
	}

	// Attributes controls which attributes are enabled and disabled globally.
	// This setting affects all attribute destinations: Transaction Events,
	// Error Events, Transaction Traces and segments, Traced Errors and Span
	// Events.
	Attributes AttributeDestinationConfig

	// Error may be populated by the configuration functions provided to
	// NewApplication to indicate that setup has failed.  NewApplication
	// will return this error if it is set.
	Error error
}

// AttributeDestinationConfig controls the attributes sent to each destination.
type AttributeDestinationConfig struct {
	// Enabled controls whether or not this destination will get any
	// attributes at all.  For example, to prevent any attributes from being
	// added to errors, set:
	//
	//	cfg.ErrorCollector.Attributes.Enabled = false
	//
	Enabled bool
	Include []string
	// Exclude allows you to prevent the capture of certain attributes.  The
	// '*' character acts as a wildcard.  For example, to prevent the
	// capture of all request related attributes, set:
	//
	//	cfg.Attributes.Exclude = append(cfg.Attributes.Exclude, "request.*")
	//
	Exclude []string
}

// NewConfig creates a Config populated with default settings and the given
// application name.
func NewConfig(appname string) Config {
	c := Config{}

	c.AppName = appname
	c.Enabled = true
	c.HarvestPeriod = internal.FixedHarvestPeriod
	c.HarvestQueueSize = internal.HarvestQueueSize
	c.ApdexThreshold = 500 * time.Millisecond

	c.CustomInsightsEvents.Enabled = true
	c.CustomInsightsEvents.MaxSamplesStored = internal.MaxCustomEvents
	c.TransactionEvents.Enabled = true
	c.TransactionEvents.Attributes.Enabled = true
	c.TransactionEvents.MaxSamplesStored = internal.MaxTxnEvents
	c.ErrorCollector.Enabled = true
	c.ErrorCollector.CaptureEvents = true
	c.ErrorCollector.Attributes.Enabled = true
	c.Attributes.Enabled = true

	c.TransactionTracer.Enabled = true
	c.TransactionTracer.Threshold.IsApdexFailing = true
	c.TransactionTracer.Threshold.Duration = 500 * time.Millisecond
	c.TransactionTracer.Detail = 1
	c.TransactionTracer.MaxSegmentsCLI = internal.MaxSegmentsCLI
	c.TransactionTracer.MaxSegmentsWeb = internal.MaxSegmentsWeb
	c.TransactionTracer.Segments.Threshold = internal.DefaultSegmentThreshold
	c.TransactionTracer.Attributes.Enabled = true

	c.DistributedTracer.Enabled = true
	c.DistributedTracer.SamplingTarget = 10
	c.DistributedTracer.SamplingPeriod = internal.FixedHarvestPeriod
	c.SpanEvents.Enabled = true
	c.SpanEvents.MaxSamplesStored = internal.DefaultSpanSamplesStored
	c.SpanEvents.HarvestLimit = internal.MaxSpanEvents
	c.SpanEvents.Attributes.Enabled = true

	c.DatastoreTracer.InstanceReporting.Enabled = true
	c.DatastoreTracer.DatabaseNameReporting.Enabled = true
	c.DatastoreTracer.QueryParameters.Enabled = true

	c.CodeLevelMetrics.Enabled = true

	return c
}

const appNameLimit = 3

// The following errors will be returned if your Config fails to validate.
var (
	errAppNameMissing   = errors.New("string AppName required")
	errAppNameLimit     = fmt.Errorf("max of %d rollup application names", appNameLimit)
	errHarvestPeriod    = errors.New("HarvestPeriod must be positive when Enabled")
	errApdexThreshold   = errors.New("ApdexThreshold must be positive")
	errTraceDetail      = errors.New("TransactionTracer.Detail must not be negative")
	errMaxSegments      = errors.New("TransactionTracer segment limits must not be negative")
	errSpanHarvestLimit = errors.New("SpanEvents.HarvestLimit must not be negative")
	errQueueSize        = errors.New("HarvestQueueSize must be positive")
	errSamplingPeriod   = errors.New("DistributedTracer.SamplingPeriod must be positive")
)

// Validate checks the config for improper fields.  Every problem found is
// reported in the returned *multierror.Error.
func (c Config) Validate() error {
	var result *multierror.Error
	if nil != c.Error {
		result = multierror.Append(result, c.Error)
	}
	if "" == c.AppName {
		result = multierror.Append(result, errAppNameMissing)
	}
	if strings.Count(c.AppName, ";") >= appNameLimit {
		result = multierror.Append(result, errAppNameLimit)
	}
	if c.Enabled && c.HarvestPeriod <= 0 {
		result = multierror.Append(result, errHarvestPeriod)
	}
	if c.HarvestQueueSize <= 0 {
		result = multierror.Append(result, errQueueSize)
	}
	if c.ApdexThreshold <= 0 {
		result = multierror.Append(result, errApdexThreshold)
	}
	if c.TransactionTracer.Detail < 0 {
		result = multierror.Append(result, errTraceDetail)
	}
	if c.TransactionTracer.MaxSegmentsCLI < 0 || c.TransactionTracer.MaxSegmentsWeb < 0 {
		result = multierror.Append(result, errMaxSegments)
	}
	if c.SpanEvents.HarvestLimit < 0 {
		result = multierror.Append(result, errSpanHarvestLimit)
	}
	if c.DistributedTracer.SamplingPeriod <= 0 {
		result = multierror.Append(result, errSamplingPeriod)
	}
	return result.ErrorOrNil()
}

func (d AttributeDestinationConfig) toInternal() internal.AttributeDestinationConfig {
	return internal.AttributeDestinationConfig{
		Enabled: d.Enabled,
		Include: d.Include,
		Exclude: d.Exclude,
	}
}

func (c Config) attributeConfig() *internal.AttributeConfig {
	return internal.CreateAttributeConfig(internal.AttributeConfigInput{
		Attributes:        c.Attributes.toInternal(),
		ErrorCollector:    c.ErrorCollector.Attributes.toInternal(),
		TransactionEvents: c.TransactionEvents.Attributes.toInternal(),
		TransactionTracer: c.TransactionTracer.Attributes.toInternal(),
		SpanEvents:        c.SpanEvents.Attributes.toInternal(),
	}, true)
}

// txnConfig resolves the settings every transaction of the application
// shares.
func (c Config) txnConfig() internal.TxnConfig {
	tc := internal.TxnConfig{
		TraceEnabled:                 c.TransactionTracer.Enabled,
		TraceThreshold:               c.TransactionTracer.Threshold.Duration,
		TraceThresholdIsApdexFailing: c.TransactionTracer.Threshold.IsApdexFailing,
		TraceDetail:                  c.TransactionTracer.Detail,
		SegmentThreshold:             c.TransactionTracer.Segments.Threshold,
		MaxSegmentsCLI:               c.TransactionTracer.MaxSegmentsCLI,
		MaxSegmentsWeb:               c.TransactionTracer.MaxSegmentsWeb,
		SpanEventsEnabled:            c.SpanEvents.Enabled,
		SpanSamplesStored:            c.SpanEvents.MaxSamplesStored,
		DistributedTracingEnabled:    c.DistributedTracer.Enabled,
		ExcludeNewRelicHeader:        c.DistributedTracer.ExcludeNewRelicHeader,
		CrossApplicationTracer:       c.CrossApplicationTracer.Enabled,
		ErrorCollectorEnabled:        c.ErrorCollector.Enabled,
		ErrorEventsEnabled:           c.ErrorCollector.Enabled && c.ErrorCollector.CaptureEvents,
		PrioritizeAPIErrors:          c.ErrorCollector.PrioritizeAPIErrors,
		TxnEventsEnabled:             c.TransactionEvents.Enabled,
		CustomEventsEnabled:          c.CustomInsightsEvents.Enabled && !c.HighSecurity,
		HighSecurity:                 c.HighSecurity,
		ApdexThreshold:               c.ApdexThreshold,
		AccountID:                    c.DistributedTracer.AccountID,
		PrimaryAppID:                 c.DistributedTracer.PrimaryAppID,
		TrustedAccountKey:            c.DistributedTracer.TrustedAccountKey,
		CrossProcessID:               c.CrossApplicationTracer.CrossProcessID,
		EncodingKey:                  c.CrossApplicationTracer.EncodingKey,
		Attributes:                   c.attributeConfig(),
	}
	if "" == tc.TrustedAccountKey {
		tc.TrustedAccountKey = tc.AccountID
	}
	if len(c.CrossApplicationTracer.TrustedAccounts) > 0 {
		tc.TrustedAccounts = make(map[int]struct{}, len(c.CrossApplicationTracer.TrustedAccounts))
		for _, id := range c.CrossApplicationTracer.TrustedAccounts {
			tc.TrustedAccounts[id] = struct{}{}
		}
	}
	return tc
}

func (c Config) harvestLimits() internal.HarvestLimits {
	limits := internal.DefaultHarvestLimits()
	if n := c.TransactionEvents.MaxSamplesStored; n >= 0 && n < limits.MaxTxnEvents {
		limits.MaxTxnEvents = n
	}
	if n := c.CustomInsightsEvents.MaxSamplesStored; n >= 0 && n < limits.MaxCustomEvents {
		limits.MaxCustomEvents = n
	}
	if n := c.SpanEvents.HarvestLimit; n >= 0 {
		limits.MaxSpanEvents = n
	}
	if !c.TransactionEvents.Enabled {
		limits.MaxTxnEvents = 0
	}
	if !c.ErrorCollector.Enabled || !c.ErrorCollector.CaptureEvents {
		limits.MaxErrorEvents = 0
	}
	return limits
}

// ConfigOption configures the Config when provided to NewApplication.
type ConfigOption func(*Config)

// ConfigEnabled sets whether or not the harvest loop runs.
func ConfigEnabled(enabled bool) ConfigOption {
	return func(cfg *Config) { cfg.Enabled = enabled }
}

// ConfigAppName sets the application name.
func ConfigAppName(appName string) ConfigOption {
	return func(cfg *Config) { cfg.AppName = appName }
}

// ConfigDistributedTracerEnabled populates the Config's
// DistributedTracer.Enabled setting.
func ConfigDistributedTracerEnabled(enabled bool) ConfigOption {
	return func(cfg *Config) { cfg.DistributedTracer.Enabled = enabled }
}

// ConfigHarvestSink sets the destination of harvest payloads.
func ConfigHarvestSink(sink HarvestSink) ConfigOption {
	return func(cfg *Config) { cfg.HarvestSink = sink }
}

// ConfigLogger populates the Config's Logger.
func ConfigLogger(l Logger) ConfigOption {
	return func(cfg *Config) { cfg.Logger = l }
}

// ConfigInfoLogger populates the config with basic Logger at info level.
func ConfigInfoLogger(w io.Writer) ConfigOption {
	return ConfigLogger(NewLogger(w))
}

// ConfigDebugLogger populates the config with a Logger at debug level.
func ConfigDebugLogger(w io.Writer) ConfigOption {
	return ConfigLogger(NewDebugLogger(w))
}

// ConfigFromEnvironment populates the config based on environment variables.
// Every dotted setting understood by ConfigFromYAML may be given as
// NEW_RELIC_ followed by the upper-cased name with dots replaced by
// underscores, for example:
//
//	* NEW_RELIC_APP_NAME: Sets `Config.AppName`
//	* NEW_RELIC_HIGH_SECURITY: Sets `Config.HighSecurity`
//	* NEW_RELIC_DISTRIBUTED_TRACING_ENABLED: Sets `Config.DistributedTracer.Enabled`
//	* NEW_RELIC_TRANSACTION_TRACER_THRESHOLD: Sets `Config.TransactionTracer.Threshold`
//	* NEW_RELIC_SPAN_EVENTS_MAX_SAMPLES_STORED: Sets `Config.SpanEvents.MaxSamplesStored`
//
// NEW_RELIC_LOG and NEW_RELIC_LOG_LEVEL set `Config.Logger`.  NEW_RELIC_LOG is
// `stdout`, `stderr` or a file path; a NEW_RELIC_LOG_LEVEL of `debug` enables
// debug logging.
func ConfigFromEnvironment() ConfigOption {
	return configFromEnvironment(os.Getenv)
}

func configFromEnvironment(getenv func(string) string) ConfigOption {
	return func(cfg *Config) {
		var result *multierror.Error
		for _, s := range settings {
			// Only populated variables are assigned since fields could
			// have been set by a previous ConfigOption.
			env := getenv(envName(s.key))
			if "" == env {
				continue
			}
			if err := s.assign(cfg, env); nil != err {
				result = multierror.Append(result, fmt.Errorf("invalid %s value: %s", envName(s.key), env))
			}
		}
		if dest := getenv("NEW_RELIC_LOG"); "" != dest {
			l, err := newFileLogger(dest, isDebugEnv(getenv("NEW_RELIC_LOG_LEVEL")))
			if nil != err {
				result = multierror.Append(result, err)
			} else {
				cfg.Logger = l
			}
		}
		if err := result.ErrorOrNil(); nil != err {
			cfg.Error = err
		}
	}
}

func envName(key string) string {
	return "NEW_RELIC_" + strings.ToUpper(strings.NewReplacer(".", "_").Replace(key))
}

func isDebugEnv(env string) bool {
	switch env {
	case "debug", "Debug", "DEBUG", "d", "D":
		return true
	default:
		return false
	}
}

// setting is a configuration value addressable by a dotted name.
type setting struct {
	key    string
	assign func(cfg *Config, value string) error
}

func boolSetting(key string, field func(*Config) *bool) setting {
	return setting{key: key, assign: func(cfg *Config, value string) error {
		b, err := strconv.ParseBool(value)
		if nil != err {
			return err
		}
		*field(cfg) = b
		return nil
	}}
}

func intSetting(key string, field func(*Config) *int) setting {
	return setting{key: key, assign: func(cfg *Config, value string) error {
		i, err := strconv.Atoi(value)
		if nil != err {
			return err
		}
		*field(cfg) = i
		return nil
	}}
}

func stringSetting(key string, field func(*Config) *string) setting {
	return setting{key: key, assign: func(cfg *Config, value string) error {
		*field(cfg) = value
		return nil
	}}
}

func listSetting(key string, field func(*Config) *[]string) setting {
	return setting{key: key, assign: func(cfg *Config, value string) error {
		var list []string
		for _, s := range strings.Split(value, ",") {
			if s = strings.TrimSpace(s); "" != s {
				list = append(list, s)
			}
		}
		*field(cfg) = list
		return nil
	}}
}

// parseDuration accepts Go duration strings and bare numbers of
// milliseconds.
func parseDuration(value string) (time.Duration, error) {
	if ms, err := strconv.ParseFloat(value, 64); nil == err {
		return time.Duration(ms * float64(time.Millisecond)), nil
	}
	return time.ParseDuration(value)
}

func durationSetting(key string, field func(*Config) *time.Duration) setting {
	return setting{key: key, assign: func(cfg *Config, value string) error {
		d, err := parseDuration(value)
		if nil != err {
			return err
		}
		*field(cfg) = d
		return nil
	}}
}

// settings lists every dotted configuration name.
var settings = []setting{
	stringSetting("app_name", func(c *Config) *string { return &c.AppName }),
	boolSetting("enabled", func(c *Config) *bool { return &c.Enabled }),
	durationSetting("harvest_period", func(c *Config) *time.Duration { return &c.HarvestPeriod }),
	intSetting("harvest_queue_size", func(c *Config) *int { return &c.HarvestQueueSize }),
	boolSetting("high_security", func(c *Config) *bool { return &c.HighSecurity }),
	durationSetting("apdex_t", func(c *Config) *time.Duration { return &c.ApdexThreshold }),

	boolSetting("attributes.enabled", func(c *Config) *bool { return &c.Attributes.Enabled }),
	listSetting("attributes.include", func(c *Config) *[]string { return &c.Attributes.Include }),
	listSetting("attributes.exclude", func(c *Config) *[]string { return &c.Attributes.Exclude }),

	boolSetting("custom_insights_events.enabled", func(c *Config) *bool { return &c.CustomInsightsEvents.Enabled }),
	intSetting("custom_insights_events.max_samples_stored", func(c *Config) *int { return &c.CustomInsightsEvents.MaxSamplesStored }),
	boolSetting("transaction_events.enabled", func(c *Config) *bool { return &c.TransactionEvents.Enabled }),
	intSetting("transaction_events.max_samples_stored", func(c *Config) *int { return &c.TransactionEvents.MaxSamplesStored }),

	boolSetting("error_collector.enabled", func(c *Config) *bool { return &c.ErrorCollector.Enabled }),
	boolSetting("error_collector.capture_events", func(c *Config) *bool { return &c.ErrorCollector.CaptureEvents }),
	boolSetting("error_collector.prioritize_api_errors", func(c *Config) *bool { return &c.ErrorCollector.PrioritizeAPIErrors }),
	boolSetting("error_collector.record_panics", func(c *Config) *bool { return &c.ErrorCollector.RecordPanics }),

	boolSetting("transaction_tracer.enabled", func(c *Config) *bool { return &c.TransactionTracer.Enabled }),
	{key: "transaction_tracer.threshold", assign: func(cfg *Config, value string) error {
		if "apdex_f" == value {
			cfg.TransactionTracer.Threshold.IsApdexFailing = true
			return nil
		}
		d, err := parseDuration(value)
		if nil != err {
			return err
		}
		cfg.TransactionTracer.Threshold.IsApdexFailing = false
		cfg.TransactionTracer.Threshold.Duration = d
		return nil
	}},
	intSetting("transaction_tracer.detail", func(c *Config) *int { return &c.TransactionTracer.Detail }),
	durationSetting("transaction_tracer.segment_threshold", func(c *Config) *time.Duration { return &c.TransactionTracer.Segments.Threshold }),
	intSetting("transaction_tracer.max_segments_cli", func(c *Config) *int { return &c.TransactionTracer.MaxSegmentsCLI }),
	intSetting("transaction_tracer.max_segments_web", func(c *Config) *int { return &c.TransactionTracer.MaxSegmentsWeb }),

	boolSetting("span_events_enabled", func(c *Config) *bool { return &c.SpanEvents.Enabled }),
	{key: "span_events.max_samples_stored", assign: func(cfg *Config, value string) error {
		// Non-numeric values fall back to the default reservoir size.
		n, err := strconv.Atoi(value)
		if nil != err {
			n = 0
		}
		cfg.SpanEvents.MaxSamplesStored = internal.SpanSamplesStored(n)
		return nil
	}},
	intSetting("span_events.harvest_limit", func(c *Config) *int { return &c.SpanEvents.HarvestLimit }),
	durationSetting("distributed_tracer.sampling_period", func(c *Config) *time.Duration { return &c.DistributedTracer.SamplingPeriod }),
	{key: "distributed_tracer.sampling_target", assign: func(cfg *Config, value string) error {
		n, err := strconv.ParseUint(value, 10, 64)
		if nil != err {
			return err
		}
		cfg.DistributedTracer.SamplingTarget = n
		return nil
	}},

	boolSetting("distributed_tracing_enabled", func(c *Config) *bool { return &c.DistributedTracer.Enabled }),
	boolSetting("distributed_tracer.exclude_newrelic_header", func(c *Config) *bool { return &c.DistributedTracer.ExcludeNewRelicHeader }),
	stringSetting("account_id", func(c *Config) *string { return &c.DistributedTracer.AccountID }),
	stringSetting("primary_application_id", func(c *Config) *string { return &c.DistributedTracer.PrimaryAppID }),
	stringSetting("trusted_account_key", func(c *Config) *string { return &c.DistributedTracer.TrustedAccountKey }),

	boolSetting("cross_application_tracer.enabled", func(c *Config) *bool { return &c.CrossApplicationTracer.Enabled }),
	stringSetting("cross_application_tracer.cross_process_id", func(c *Config) *string { return &c.CrossApplicationTracer.CrossProcessID }),
	stringSetting("cross_application_tracer.encoding_key", func(c *Config) *string { return &c.CrossApplicationTracer.EncodingKey }),

	boolSetting("datastore_tracer.instance_reporting.enabled", func(c *Config) *bool { return &c.DatastoreTracer.InstanceReporting.Enabled }),
	boolSetting("datastore_tracer.database_name_reporting.enabled", func(c *Config) *bool { return &c.DatastoreTracer.DatabaseNameReporting.Enabled }),
	boolSetting("datastore_tracer.query_parameters.enabled", func(c *Config) *bool { return &c.DatastoreTracer.QueryParameters.Enabled }),

	boolSetting("code_level_metrics.enabled", func(c *Config) *bool { return &c.CodeLevelMetrics.Enabled }),
}

func lookupSetting(key string) (setting, bool) {
	for _, s := range settings {
		if s.key == key {
			return s, true
		}
	}
	return setting{}, false
}
