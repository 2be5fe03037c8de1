// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package internal

import "time"

// TxnConfig is the transaction-relevant subset of newrelic.Config, resolved
// once when the application is created.
type TxnConfig struct {
	// Trace settings.
	TraceEnabled bool
	// TraceThreshold is the minimum duration of a captured trace.  When
	// TraceThresholdIsApdexFailing is set the threshold is four times the
	// apdex threshold instead.
	TraceThreshold               time.Duration
	TraceThresholdIsApdexFailing bool
	// TraceDetail zero drops short, childless, non-explicit segments.
	TraceDetail      int
	SegmentThreshold time.Duration
	MaxSegmentsCLI   int
	MaxSegmentsWeb   int

	SpanEventsEnabled bool
	SpanSamplesStored int

	DistributedTracingEnabled bool
	ExcludeNewRelicHeader     bool
	CrossApplicationTracer    bool

	ErrorCollectorEnabled bool
	ErrorEventsEnabled    bool
	PrioritizeAPIErrors   bool

	TxnEventsEnabled    bool
	CustomEventsEnabled bool
	HighSecurity        bool

	ApdexThreshold time.Duration

	// Account settings used in distributed trace payloads.
	AccountID         string
	PrimaryAppID      string
	TrustedAccountKey string

	// Legacy cross application tracing settings.
	CrossProcessID  string
	EncodingKey     string
	TrustedAccounts map[int]struct{}

	Attributes *AttributeConfig
}

// DefaultTxnConfig returns the settings used when no configuration is
// supplied.
func DefaultTxnConfig() TxnConfig {
	return TxnConfig{
		TraceEnabled:                 true,
		TraceThresholdIsApdexFailing: true,
		TraceThreshold:               500 * time.Millisecond,
		TraceDetail:                  1,
		SegmentThreshold:             DefaultSegmentThreshold,
		MaxSegmentsCLI:               MaxSegmentsCLI,
		MaxSegmentsWeb:               MaxSegmentsWeb,
		SpanEventsEnabled:            true,
		SpanSamplesStored:            DefaultSpanSamplesStored,
		DistributedTracingEnabled:    true,
		ErrorCollectorEnabled:        true,
		ErrorEventsEnabled:           true,
		TxnEventsEnabled:             true,
		CustomEventsEnabled:          true,
		ApdexThreshold:               500 * time.Millisecond,
		Attributes:                   CreateAttributeConfig(defaultAttributeConfigInput(), true),
	}
}

func defaultAttributeConfigInput() AttributeConfigInput {
	on := AttributeDestinationConfig{Enabled: true}
	return AttributeConfigInput{
		Attributes:        on,
		ErrorCollector:    on,
		TransactionEvents: on,
		TransactionTracer: on,
		SpanEvents:        on,
	}
}

// maxNodes returns the segment tree limit for a transaction, zero meaning
// unlimited.
func (c *TxnConfig) maxNodes(isWeb bool) int {
	if isWeb {
		return c.MaxSegmentsWeb
	}
	return c.MaxSegmentsCLI
}

// traceThreshold returns the minimum duration of a captured trace.
func (c *TxnConfig) traceThreshold() time.Duration {
	if c.TraceThresholdIsApdexFailing {
		return apdexFailingThreshold(c.ApdexThreshold)
	}
	return c.TraceThreshold
}

// spansEnabled reports whether span events are collected at all.
func (c *TxnConfig) spansEnabled() bool {
	return c.DistributedTracingEnabled && c.SpanEventsEnabled
}
