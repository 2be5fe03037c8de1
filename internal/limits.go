// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package internal

import "time"

const (
	// app behavior

	// FixedHarvestPeriod is the default period of the harvest loop.
	FixedHarvestPeriod = 60 * time.Second
	// HarvestQueueSize is the number of payloads which may wait for the
	// sink before new payloads are dropped.
	HarvestQueueSize = 64

	// transaction behavior
	maxStackTraceFrames = 100

	// MaxSegmentsCLI is the default transaction_tracer.max_segments_cli.
	MaxSegmentsCLI = 100 * 1000
	// MaxSegmentsWeb is the default transaction_tracer.max_segments_web:
	// zero means unlimited.
	MaxSegmentsWeb = 0
	// DefaultSegmentThreshold is the duration below which segments are
	// dropped from traces and span events when transaction_tracer.detail is
	// zero.
	DefaultSegmentThreshold = 2 * time.Millisecond

	// DefaultSpanSamplesStored is the per-transaction span reservoir size
	// used when span_events.max_samples_stored is missing or invalid.
	DefaultSpanSamplesStored = 2000
	// MaxSpanSamplesStored is the upper clamp of
	// span_events.max_samples_stored.
	MaxSpanSamplesStored = 10 * 1000

	// harvest data
	maxMetrics = 2 * 1000
	// MaxSpanEvents is the default harvest-level span event limit.
	MaxSpanEvents = 10 * 1000
	// MaxCustomEvents is the default custom event limit.
	MaxCustomEvents = 10 * 1000
	// MaxTxnEvents is the default transaction event limit.
	MaxTxnEvents = 10 * 1000
	// MaxErrorEvents is the default error event limit.
	MaxErrorEvents = 100

	maxHarvestErrors          = 20
	maxSyntheticsTraces       = 20
	failedEventsAttemptsLimit = 10

	// attributes
	attributeKeyLengthLimit   = 255
	attributeValueLengthLimit = 255
	attributeUserLimit        = 64
	customEventAttributeLimit = 64

	// Limits affecting Config validation are found in the config package.
)

// SpanSamplesStored clamps the configured span reservoir size: values at or
// below zero fall back to DefaultSpanSamplesStored and values above
// MaxSpanSamplesStored are reduced to it.
func SpanSamplesStored(configured int) int {
	if configured <= 0 {
		return DefaultSpanSamplesStored
	}
	if configured > MaxSpanSamplesStored {
		return MaxSpanSamplesStored
	}
	return configured
}
