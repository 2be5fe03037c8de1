// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package internal

import (
	"time"
)

// endpoint methods
const (
	cmdMetrics      = "metric_data"
	cmdSpanEvents   = "span_event_data"
	cmdErrorData    = "error_data"
	cmdErrorEvents  = "error_event_data"
	cmdTxnTraces    = "transaction_sample_data"
	cmdCustomEvents = "custom_event_data"
	cmdTxnEvents    = "analytic_event_data"
)

// Harvestable is something that can be merged into a Harvest.
type Harvestable interface {
	MergeIntoHarvest(h *Harvest)
}

// PayloadCreator is a data type in the harvest.
type PayloadCreator interface {
	// In the event of a delivery failure the payload may be merged into
	// the next period's harvest.
	Harvestable
	// Data prepares JSON in the format expected by the collector endpoint.
	// This method should return (nil, nil) if the payload is empty.
	Data(agentRunID string, harvestStart time.Time) ([]byte, error)
	// EndpointMethod names the kind of data.
	EndpointMethod() string
}

// HarvestLimits are the per-period reservoir sizes.
type HarvestLimits struct {
	MaxTxnEvents    int
	MaxCustomEvents int
	MaxErrorEvents  int
	MaxSpanEvents   int
}

// DefaultHarvestLimits returns the limits used when none are configured.
func DefaultHarvestLimits() HarvestLimits {
	return HarvestLimits{
		MaxTxnEvents:    MaxTxnEvents,
		MaxCustomEvents: MaxCustomEvents,
		MaxErrorEvents:  MaxErrorEvents,
		MaxSpanEvents:   MaxSpanEvents,
	}
}

// Harvest contains collected data.
type Harvest struct {
	Start  time.Time
	limits HarvestLimits
	rand   RandomSource

	Metrics      *metricTable
	ErrorTraces  harvestErrors
	TxnTraces    *harvestTraces
	SpanEvents   *spanEvents
	CustomEvents *customEvents
	TxnEvents    *txnEvents
	ErrorEvents  *errorEvents
}

// NewHarvest returns a new Harvest.
func NewHarvest(now time.Time, limits HarvestLimits, rs RandomSource) *Harvest {
	return &Harvest{
		Start:        now,
		limits:       limits,
		rand:         rs,
		Metrics:      newMetricTable(maxMetrics, now),
		ErrorTraces:  newHarvestErrors(maxHarvestErrors),
		TxnTraces:    newHarvestTraces(),
		SpanEvents:   newSpanEvents(limits.MaxSpanEvents, rs),
		CustomEvents: newCustomEvents(limits.MaxCustomEvents),
		TxnEvents:    newTxnEvents(limits.MaxTxnEvents),
		ErrorEvents:  newErrorEvents(limits.MaxErrorEvents),
	}
}

// Swap returns the data collected so far and resets h for the next period.
func (h *Harvest) Swap(now time.Time) *Harvest {
	ready := *h
	fresh := NewHarvest(now, h.limits, h.rand)
	*h = *fresh
	ready.createFinalMetrics()
	return &ready
}

// createFinalMetrics adds the event supportability metrics.  It must run
// before the metric payload is created.
func (h *Harvest) createFinalMetrics() {
	h.Metrics.addCount(customEventsSeen, h.CustomEvents.NumSeen(), forced)
	h.Metrics.addCount(customEventsSent, h.CustomEvents.NumSaved(), forced)
	h.Metrics.addCount(txnEventsSeen, h.TxnEvents.NumSeen(), forced)
	h.Metrics.addCount(txnEventsSent, h.TxnEvents.NumSaved(), forced)
	h.Metrics.addCount(errorEventsSeen, h.ErrorEvents.NumSeen(), forced)
	h.Metrics.addCount(errorEventsSent, h.ErrorEvents.NumSaved(), forced)
	h.Metrics.addCount(spanEventsSeen, h.SpanEvents.NumSeen(), forced)
	h.Metrics.addCount(spanEventsSent, h.SpanEvents.NumSaved(), forced)
	if h.Metrics.numDropped > 0 {
		h.Metrics.addCount(supportabilityDropped, float64(h.Metrics.numDropped), forced)
	}
}

// Payloads returns the payload creators of the harvest.  Metrics come last so
// that they include every supportability metric.
func (h *Harvest) Payloads() []PayloadCreator {
	if nil == h {
		return nil
	}
	return []PayloadCreator{
		h.CustomEvents,
		h.ErrorEvents,
		h.SpanEvents,
		h.TxnEvents,
		h.ErrorTraces,
		h.TxnTraces,
		h.Metrics,
	}
}

// RecordCustomMetric records an application level metric.
func (h *Harvest) RecordCustomMetric(name string, value float64) {
	h.Metrics.addValue(name, "", value, forced)
}

// RecordCustomEvent records an application level custom event.
func (h *Harvest) RecordCustomEvent(e *CustomEvent) {
	e.MergeIntoHarvest(h)
}

// MetricsSnapshot returns the harvest metrics in first-seen order.
func (h *Harvest) MetricsSnapshot() []Metric {
	return h.Metrics.snapshot()
}

// CreateTxnMetrics creates metrics for a transaction.
func CreateTxnMetrics(args *TxnData, metrics *metricTable) {
	withoutFirstSegment := removeFirstSegment(args.FinalName)

	// Duration Metrics
	var durationRollup string
	var totalTimeRollup string
	if args.IsWeb {
		durationRollup = webRollup
		totalTimeRollup = totalTimeWeb
		metrics.addDuration(dispatcherMetric, "", args.Duration, 0, forced)
	} else {
		durationRollup = backgroundRollup
		totalTimeRollup = totalTimeBackground
	}

	metrics.addDuration(args.FinalName, "", args.Duration, args.Exclusive, forced)
	metrics.addDuration(durationRollup, "", args.Duration, args.Exclusive, forced)

	metrics.addDuration(totalTimeRollup, "", args.TotalTime, args.TotalTime, forced)
	metrics.addDuration(totalTimeRollup+"/"+withoutFirstSegment, "", args.TotalTime, args.TotalTime, unforced)

	caller := callerUnknown
	if in := args.BetterCAT.Inbound; nil != in && in.HasNewRelicTraceInfo {
		caller = in.payloadCaller
	}
	args.Queuing.createMetrics(metrics, caller, args.IsWeb)

	// Better CAT Metrics
	if cat := args.BetterCAT; cat.Enabled {
		m := durationByCallerMetric(caller)
		metrics.addDuration(m.all, "", args.Duration, args.Duration, unforced)
		metrics.addDuration(m.webOrOther(args.IsWeb), "", args.Duration, args.Duration, unforced)

		// Transport Duration Metric
		if nil != cat.Inbound {
			d := cat.Inbound.TransportDuration
			m = transportDurationMetric(caller)
			metrics.addDuration(m.all, "", d, d, unforced)
			metrics.addDuration(m.webOrOther(args.IsWeb), "", d, d, unforced)
		}

		// CAT Error Metrics
		if args.HasError {
			m = errorsByCallerMetric(caller)
			metrics.addSingleCount(m.all, unforced)
			metrics.addSingleCount(m.webOrOther(args.IsWeb), unforced)
		}
	}
	args.DistributedTracingSupport.createMetrics(metrics)

	// Apdex Metrics
	if args.Zone != apdexNone {
		metrics.addApdex(apdexRollup, "", args.Config.ApdexThreshold, args.Zone, forced)

		mname := apdexPrefix + withoutFirstSegment
		metrics.addApdex(mname, "", args.Config.ApdexThreshold, args.Zone, unforced)
	}

	// Error Metrics count the transaction once, whatever the number of
	// errors considered.
	if args.Errors.Seen() > 0 {
		metrics.addSingleCount(errorsRollupMetric.all, forced)
		metrics.addSingleCount(errorsRollupMetric.webOrOther(args.IsWeb), forced)
		metrics.addSingleCount(errorsPrefix+args.FinalName, forced)
	}
}
