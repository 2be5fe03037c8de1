// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package internal

import (
	"bytes"
	"time"

	"github.com/newrelic/go-agent-core/internal/jsonx"
)

type metricForce int

const (
	forced metricForce = iota
	unforced
)

type metricID struct {
	Name  string `json:"name"`
	Scope string `json:"scope,omitempty"`
}

type metricData struct {
	// These values are in the units expected by the collector.
	countSatisfied  float64 // Seconds, or count for Count and Apdex
	totalTolerated  float64 // Seconds, or count for Apdex
	exclusiveFailed float64 // Seconds, or count for Apdex
	min             float64 // Seconds
	max             float64 // Seconds
	sumSquares      float64 // Seconds**2, or 0 for Apdex
}

func metricDataFromDuration(duration, exclusive time.Duration) metricData {
	ds := duration.Seconds()
	return metricData{
		countSatisfied:  1,
		totalTolerated:  ds,
		exclusiveFailed: exclusive.Seconds(),
		min:             ds,
		max:             ds,
		sumSquares:      ds * ds,
	}
}

type metric struct {
	forced metricForce
	data   metricData
}

// metricTable aggregates metrics by name and scope.  Iteration order is the
// order in which each (name, scope) pair was first seen.
type metricTable struct {
	metricPeriodStart time.Time
	failedHarvests    int
	maxTableSize      int // After this max is reached, only forced metrics are added
	numDropped        int // Number of unforced metrics dropped due to full table
	metrics           map[metricID]*metric
	order             []metricID
}

func newMetricTable(maxTableSize int, now time.Time) *metricTable {
	return &metricTable{
		metricPeriodStart: now,
		metrics:           make(map[metricID]*metric),
		maxTableSize:      maxTableSize,
		failedHarvests:    0,
	}
}

func (mt *metricTable) full() bool {
	return len(mt.metrics) >= mt.maxTableSize
}

func (data *metricData) aggregate(src metricData) {
	data.countSatisfied += src.countSatisfied
	data.totalTolerated += src.totalTolerated
	data.exclusiveFailed += src.exclusiveFailed

	if src.min < data.min {
		data.min = src.min
	}
	if src.max > data.max {
		data.max = src.max
	}

	data.sumSquares += src.sumSquares
}

func (mt *metricTable) mergeMetric(id metricID, m metric) {
	if to := mt.metrics[id]; nil != to {
		to.data.aggregate(m.data)
		return
	}

	if mt.full() && (unforced == m.forced) {
		mt.numDropped++
		return
	}
	// NOTE: `new` is used in place of `&m` since the latter will make `m`
	// get heap allocated regardless of whether or not this line gets
	// reached (running go version go1.5 darwin/amd64).  See
	// BenchmarkAddingSameMetrics.
	alloc := new(metric)
	*alloc = m
	mt.metrics[id] = alloc
	mt.order = append(mt.order, id)
}

func (mt *metricTable) mergeFailed(from *metricTable) {
	fails := from.failedHarvests + 1
	if fails >= failedEventsAttemptsLimit {
		return
	}
	if from.metricPeriodStart.Before(mt.metricPeriodStart) {
		mt.metricPeriodStart = from.metricPeriodStart
	}
	mt.failedHarvests = fails
	mt.merge(from, "")
}

// merge folds every metric of from into mt.  When newScope is not empty,
// scoped metrics of from are re-scoped under it.
func (mt *metricTable) merge(from *metricTable, newScope string) {
	if nil == from {
		return
	}
	for _, id := range from.order {
		m := from.metrics[id]
		if "" != newScope && "" != id.Scope {
			id.Scope = newScope
		}
		mt.mergeMetric(id, *m)
	}
	mt.numDropped += from.numDropped
}

func (mt *metricTable) add(name, scope string, data metricData, force metricForce) {
	mt.mergeMetric(metricID{Name: name, Scope: scope}, metric{data: data, forced: force})
}

func (mt *metricTable) addCount(name string, count float64, force metricForce) {
	mt.add(name, "", metricData{countSatisfied: count}, force)
}

func (mt *metricTable) addSingleCount(name string, force metricForce) {
	mt.addCount(name, float64(1), force)
}

func (mt *metricTable) addDuration(name, scope string, duration, exclusive time.Duration, force metricForce) {
	mt.add(name, scope, metricDataFromDuration(duration, exclusive), force)
}

func (mt *metricTable) addValueExclusive(name, scope string, total, exclusive float64, force metricForce) {
	data := metricData{
		countSatisfied:  1,
		totalTolerated:  total,
		exclusiveFailed: exclusive,
		min:             total,
		max:             total,
		sumSquares:      total * total,
	}
	mt.add(name, scope, data, force)
}

func (mt *metricTable) addValue(name, scope string, total float64, force metricForce) {
	mt.addValueExclusive(name, scope, total, total, force)
}

func (mt *metricTable) addApdex(name, scope string, apdexThreshold time.Duration, zone apdexZone, force metricForce) {
	apdexSeconds := apdexThreshold.Seconds()
	data := metricData{min: apdexSeconds, max: apdexSeconds}

	switch zone {
	case apdexSatisfying:
		data.countSatisfied = 1
	case apdexTolerating:
		data.totalTolerated = 1
	case apdexFailing:
		data.exclusiveFailed = 1
	}

	mt.add(name, scope, data, force)
}

// Metric is a single aggregated entry of a metric table snapshot.
type Metric struct {
	Name  string
	Scope string
	// Data is count, total, exclusive, min, max, and sum of squares.
	Data [6]float64
}

// snapshot returns the metrics in first-seen order.
func (mt *metricTable) snapshot() []Metric {
	if nil == mt {
		return nil
	}
	out := make([]Metric, 0, len(mt.order))
	for _, id := range mt.order {
		d := mt.metrics[id].data
		out = append(out, Metric{
			Name:  id.Name,
			Scope: id.Scope,
			Data: [6]float64{
				d.countSatisfied,
				d.totalTolerated,
				d.exclusiveFailed,
				d.min,
				d.max,
				d.sumSquares,
			},
		})
	}
	return out
}

func (mt *metricTable) writeJSON(buf *bytes.Buffer, agentRunID string, now time.Time) {
	buf.WriteByte('[')
	jsonx.AppendString(buf, agentRunID)
	buf.WriteByte(',')
	jsonx.AppendInt(buf, mt.metricPeriodStart.Unix())
	buf.WriteByte(',')
	jsonx.AppendInt(buf, now.Unix())
	buf.WriteByte(',')

	buf.WriteByte('[')
	for i, id := range mt.order {
		md := mt.metrics[id]
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('[')
		buf.WriteByte('{')
		buf.WriteString(`"name":`)
		jsonx.AppendString(buf, id.Name)
		if id.Scope != "" {
			buf.WriteString(`,"scope":`)
			jsonx.AppendString(buf, id.Scope)
		}
		buf.WriteByte('}')
		buf.WriteByte(',')

		jsonx.AppendFloatArray(buf,
			md.data.countSatisfied,
			md.data.totalTolerated,
			md.data.exclusiveFailed,
			md.data.min,
			md.data.max,
			md.data.sumSquares)

		buf.WriteByte(']')
	}
	buf.WriteByte(']')

	buf.WriteByte(']')
}

// CollectorJSON prepares JSON in the format expected by the collector.
func (mt *metricTable) CollectorJSON(agentRunID string, now time.Time) ([]byte, error) {
	if nil == mt || 0 == len(mt.metrics) {
		return nil, nil
	}
	estimatedBytesPerMetric := 128
	estimatedLen := len(mt.metrics) * estimatedBytesPerMetric
	buf := bytes.NewBuffer(make([]byte, 0, estimatedLen))
	mt.writeJSON(buf, agentRunID, now)
	return buf.Bytes(), nil
}

// Data prepares JSON in the format expected by the collector endpoint.
func (mt *metricTable) Data(agentRunID string, harvestStart time.Time) ([]byte, error) {
	return mt.CollectorJSON(agentRunID, harvestStart)
}

// MergeIntoHarvest merges the metrics back into the next harvest after a
// failed delivery.
func (mt *metricTable) MergeIntoHarvest(h *Harvest) {
	h.Metrics.mergeFailed(mt)
}

// EndpointMethod is used for the "method" query parameter when posting the
// data.
func (mt *metricTable) EndpointMethod() string {
	return cmdMetrics
}
