// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Validator is used for testing.  *testing.T implements it.
type Validator interface {
	Error(...interface{})
}

func validateStringField(v Validator, fieldName, expect, actual string) {
	if expect != actual {
		v.Error(fieldName, "incorrect: Expected:", expect, "Actual:", actual)
	}
}

// WantMetric is a metric expectation.  If Data is nil, then any data values are
// acceptable.
type WantMetric struct {
	Name   string
	Scope  string
	Forced interface{} // true, false, or nil
	Data   []float64
}

// WantError is a traced error expectation.
type WantError struct {
	TxnName string
	Msg     string
	Klass   string
	URL     string
}

// MatchAnything can be used in event attribute expectations when the value is
// not known in advance.
const MatchAnything = "__match_anything__"

// WantEvent is an event expectation.  Nil maps are not compared.
type WantEvent struct {
	Intrinsics      map[string]interface{}
	UserAttributes  map[string]interface{}
	AgentAttributes map[string]interface{}
}

// WantTxnTrace is a transaction trace expectation.
type WantTxnTrace struct {
	MetricName   string
	NumSegments  int
	ForcePersist bool
}

// Expect exposes methods that allow for testing whether the correct data was
// captured.
type Expect interface {
	ExpectCustomEvents(t Validator, want []WantEvent)
	ExpectErrors(t Validator, want []WantError)
	ExpectErrorEvents(t Validator, want []WantEvent)
	ExpectTxnEvents(t Validator, want []WantEvent)
	ExpectMetrics(t Validator, want []WantMetric)
	ExpectSpanEvents(t Validator, want []WantEvent)
	ExpectTxnTraces(t Validator, want []WantTxnTrace)
}

func expectMetricField(t Validator, id metricID, expect, actual float64, fieldName string) {
	if expect != actual {
		t.Error("metric fields do not match", id, expect, actual, fieldName)
	}
}

func expectMetric(t Validator, mt *metricTable, e WantMetric) {
	id := metricID{Name: e.Name, Scope: e.Scope}
	m := mt.metrics[id]
	if nil == m {
		t.Error("unable to find metric", id)
		return
	}
	if b, ok := e.Forced.(bool); ok && b != (forced == m.forced) {
		t.Error("metric forced incorrect", b, m.forced, id)
	}
	if nil != e.Data {
		expectMetricField(t, id, e.Data[0], m.data.countSatisfied, "countSatisfied")
		expectMetricField(t, id, e.Data[1], m.data.totalTolerated, "totalTolerated")
		expectMetricField(t, id, e.Data[2], m.data.exclusiveFailed, "exclusiveFailed")
		expectMetricField(t, id, e.Data[3], m.data.min, "min")
		expectMetricField(t, id, e.Data[4], m.data.max, "max")
		expectMetricField(t, id, e.Data[5], m.data.sumSquares, "sumSquares")
	}
}

// ExpectMetrics checks that mt contains exactly the metrics expected.
func ExpectMetrics(t Validator, mt *metricTable, expect []WantMetric) {
	if len(mt.metrics) != len(expect) {
		t.Error("metric counts do not match expectations", len(mt.metrics), len(expect))
	}
	expectedIds := make(map[metricID]struct{})
	for _, e := range expect {
		expectedIds[metricID{Name: e.Name, Scope: e.Scope}] = struct{}{}
		expectMetric(t, mt, e)
	}
	for _, id := range mt.order {
		if _, ok := expectedIds[id]; !ok {
			t.Error("expected metrics does not contain", id.Name, id.Scope)
		}
	}
}

// ExpectMetricsPresent checks that mt contains the metrics expected.  Other
// metrics are allowed.
func ExpectMetricsPresent(t Validator, mt *metricTable, expect []WantMetric) {
	for _, e := range expect {
		expectMetric(t, mt, e)
	}
}

func jsonOf(w jsonWriter) []byte {
	buf := &bytes.Buffer{}
	w.WriteJSON(buf)
	return buf.Bytes()
}

func canonical(v interface{}) string {
	js, err := json.Marshal(v)
	if nil != err {
		return fmt.Sprintf("%#v", v)
	}
	var generic interface{}
	json.Unmarshal(js, &generic)
	js, _ = json.Marshal(generic)
	return string(js)
}

func expectAttributes(v Validator, kind string, actual map[string]interface{}, expect map[string]interface{}) {
	if nil == expect {
		return
	}
	keys := make([]string, 0, len(actual))
	for key := range actual {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if _, ok := expect[key]; !ok {
			v.Error(kind, "unexpected attribute", key, actual[key])
		}
	}
	for key, want := range expect {
		got, ok := actual[key]
		if !ok {
			v.Error(kind, "missing attribute", key)
			continue
		}
		if MatchAnything == want {
			continue
		}
		if canonical(want) != canonical(got) {
			v.Error(kind, "attribute value difference", key, "Expected:", want, "Actual:", got)
		}
	}
}

// ExpectEventJSON checks an event written as [intrinsics, user, agent].
func ExpectEventJSON(v Validator, js []byte, expect WantEvent) {
	var parts []map[string]interface{}
	if err := json.Unmarshal(js, &parts); nil != err || len(parts) != 3 {
		v.Error("unable to parse event", string(js), err)
		return
	}
	expectAttributes(v, "intrinsics", parts[0], expect.Intrinsics)
	expectAttributes(v, "user", parts[1], expect.UserAttributes)
	expectAttributes(v, "agent", parts[2], expect.AgentAttributes)
}

func expectAnalyticsEvents(v Validator, kind string, events *analyticsEvents, expect []WantEvent) {
	if len(events.events) != len(expect) {
		v.Error("number of", kind, "events does not match", len(events.events), len(expect))
		return
	}
	for i, e := range expect {
		ExpectEventJSON(v, jsonOf(events.events[i].jsonWriter), e)
	}
}

// ExpectCustomEvents checks the custom events of h.
func ExpectCustomEvents(v Validator, h *Harvest, expect []WantEvent) {
	expectAnalyticsEvents(v, "custom", h.CustomEvents.analyticsEvents, expect)
}

// ExpectTxnEvents checks the transaction events of h.
func ExpectTxnEvents(v Validator, h *Harvest, expect []WantEvent) {
	expectAnalyticsEvents(v, "transaction", h.TxnEvents.analyticsEvents, expect)
}

// ExpectErrorEvents checks the error events of h.
func ExpectErrorEvents(v Validator, h *Harvest, expect []WantEvent) {
	expectAnalyticsEvents(v, "error", h.ErrorEvents.analyticsEvents, expect)
}

// ExpectSpanEvents checks the span events of h in reservoir order.
func ExpectSpanEvents(v Validator, h *Harvest, expect []WantEvent) {
	ExpectSpanEventList(v, h.SpanEvents.events, expect)
}

// ExpectSpanEventList checks a list of span events.
func ExpectSpanEventList(v Validator, events []*SpanEvent, expect []WantEvent) {
	if len(events) != len(expect) {
		v.Error("number of span events does not match", len(events), len(expect))
		return
	}
	for i, e := range expect {
		ExpectEventJSON(v, jsonOf(events[i]), e)
	}
}

// ExpectErrors checks the traced errors of h.
func ExpectErrors(v Validator, h *Harvest, expect []WantError) {
	if len(h.ErrorTraces) != len(expect) {
		v.Error("number of errors mismatch", len(h.ErrorTraces), len(expect))
		return
	}
	for i, e := range expect {
		err := h.ErrorTraces[i]
		validateStringField(v, "txnName", e.TxnName, err.txnName)
		validateStringField(v, "klass", e.Klass, err.Class)
		validateStringField(v, "msg", e.Msg, err.Message)
		validateStringField(v, "URL", e.URL, err.requestURI)
	}
}

// ExpectTxnTraces checks the transaction traces of h.
func ExpectTxnTraces(v Validator, h *Harvest, expect []WantTxnTrace) {
	traces := h.TxnTraces.slice()
	if len(traces) != len(expect) {
		v.Error("number of traces mismatch", len(traces), len(expect))
		return
	}
	for i, e := range expect {
		trace := traces[i]
		validateStringField(v, "metric name", e.MetricName, trace.FinalName)
		if got := trace.trace.NodeCount(); got != e.NumSegments {
			v.Error("number of segments mismatch", e.NumSegments, got)
		}
		if trace.ForcePersist != e.ForcePersist {
			v.Error("force persist mismatch", e.ForcePersist, trace.ForcePersist)
		}
	}
}
