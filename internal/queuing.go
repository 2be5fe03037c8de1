// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package internal

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	xRequestStart = "X-Request-Start"
	xQueueStart   = "X-Queue-Start"
	// Note that this is in canonical MIME header capitalization (consistent with http.Header).
	xNewrelicTimestampPrefix = "X-Newrelic-Timestamp-"
	unknownIntermediary      = "Unknown"

	queueMetric = "WebFrontend/QueueTime"
)

var (
	earliestAcceptableSeconds = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC).Unix()
	latestAcceptableSeconds   = time.Date(2050, time.January, 1, 0, 0, 0, 0, time.UTC).Unix()
)

func checkQueueTimeSeconds(secondsFloat float64) time.Time {
	seconds := int64(secondsFloat)
	nanos := int64((secondsFloat - float64(seconds)) * (1000.0 * 1000.0 * 1000.0))
	if seconds > earliestAcceptableSeconds && seconds < latestAcceptableSeconds {
		return time.Unix(seconds, nanos)
	}
	return time.Time{}
}

// parseQueueTime accepts a unix timestamp in microseconds, milliseconds or
// seconds.
func parseQueueTime(s string) time.Time {
	f, err := strconv.ParseFloat(s, 64)
	if nil != err || f <= 0 {
		return time.Time{}
	}
	for _, divisor := range []float64{1000.0 * 1000.0, 1000.0, 1.0} {
		if t := checkQueueTimeSeconds(f / divisor); !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}

// Queuing contains the time a web request waited in front end proxies before
// the transaction started.
type Queuing struct {
	durations map[string]time.Duration
	max       time.Duration
}

func (q Queuing) hasQueueing() bool {
	return len(q.durations) > 0
}

// Duration returns the longest queue time observed.
func (q Queuing) Duration() time.Duration { return q.max }

func (q *Queuing) addDuration(name string, d time.Duration) {
	if d > q.max {
		q.max = d
	}
	if nil == q.durations {
		q.durations = make(map[string]time.Duration)
	}
	q.durations[name] = d
}

func (q Queuing) names() []string {
	names := make([]string, 0, len(q.durations))
	for name := range q.durations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (q Queuing) createIntrinsics(w *jsonFieldsWriter) {
	if !q.hasQueueing() {
		return
	}
	w.floatField("queueDuration", q.max.Seconds())
	for _, name := range q.names() {
		w.floatField("caller.transportDuration."+name, q.durations[name].Seconds())
	}
}

func (q Queuing) createMetrics(metrics *metricTable, caller payloadCaller, isWeb bool) {
	if !q.hasQueueing() {
		return
	}
	metrics.addDuration(queueMetric, "", q.max, q.max, forced)
	for _, name := range q.names() {
		d := q.durations[name]
		m := intermediaryMetric(caller, name)
		metrics.addDuration(m.all, "", d, d, unforced)
		metrics.addDuration(m.webOrOther(isWeb), "", d, d, unforced)
	}
}

func (q *Queuing) addRaw(name string, val string, txnStart time.Time) {
	// The "t=" prefix is used by some proxies for the legacy headers.
	val = strings.TrimPrefix(val, "t=")
	tm := parseQueueTime(val)
	d := time.Duration(0)
	if !tm.IsZero() && !tm.After(txnStart) {
		d = txnStart.Sub(tm)
	}
	q.addDuration(name, d)
}

// NewQueuing reads the queue start headers of an inbound request.
func NewQueuing(hdr http.Header, txnStart time.Time) (q Queuing) {
	for key, vals := range hdr {
		if len(vals) == 0 {
			continue
		}
		key = http.CanonicalHeaderKey(key)
		if strings.HasPrefix(key, xNewrelicTimestampPrefix) {
			q.addRaw(key[len(xNewrelicTimestampPrefix):], vals[0], txnStart)
		}
	}
	v := hdr.Get(xQueueStart)
	if "" == v {
		v = hdr.Get(xRequestStart)
	}
	if "" != v {
		q.addRaw(unknownIntermediary, v, txnStart)
	}
	return
}
