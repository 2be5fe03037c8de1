// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTxnEventJSON(t testing.TB, e *TxnEvent, expect string) {
	t.Helper()
	js, err := e.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, CompactJSONString(expect), string(js))
}

func sampleTxnEvent() TxnEvent {
	return TxnEvent{
		FinalName: "myName",
		BetterCAT: BetterCAT{
			Enabled:  true,
			TxnID:    "txn-id",
			TraceID:  "trace-id",
			Priority: 0.5,
		},
		Start:     timeFromUnixMilliseconds(1488393111000),
		Duration:  2 * time.Second,
		TotalTime: 3 * time.Second,
		Zone:      apdexNone,
	}
}

func TestTxnEventMarshal(t *testing.T) {
	e := sampleTxnEvent()
	testTxnEventJSON(t, &e, `[
		{
			"type":"Transaction",
			"name":"myName",
			"timestamp":1.488393111e+09,
			"error":false,
			"duration":2,
			"totalTime":3,
			"guid":"txn-id",
			"traceId":"trace-id",
			"priority":0.500000,
			"sampled":false
		},
		{},
		{}]`)
}

func TestTxnEventMarshalWithoutDistributedTracing(t *testing.T) {
	e := sampleTxnEvent()
	e.BetterCAT.Enabled = false
	e.TotalTime = 0
	testTxnEventJSON(t, &e, `[
		{
			"type":"Transaction",
			"name":"myName",
			"timestamp":1.488393111e+09,
			"error":false,
			"duration":2
		},
		{},
		{}]`)
}

func TestTxnEventMarshalWithApdex(t *testing.T) {
	e := sampleTxnEvent()
	e.Zone = apdexFailing
	e.HasError = true
	e.BetterCAT.Sampled = true
	testTxnEventJSON(t, &e, `[
		{
			"type":"Transaction",
			"name":"myName",
			"timestamp":1.488393111e+09,
			"nr.apdexPerfZone":"F",
			"error":true,
			"duration":2,
			"totalTime":3,
			"guid":"txn-id",
			"traceId":"trace-id",
			"priority":0.500000,
			"sampled":true
		},
		{},
		{}]`)
}

func TestTxnEventMarshalWithDatastoreExternal(t *testing.T) {
	e := sampleTxnEvent()
	e.externalCallCount = 22
	e.externalDuration = 1122334 * time.Millisecond
	e.datastoreCallCount = 33
	e.datastoreDuration = 5566778 * time.Millisecond
	testTxnEventJSON(t, &e, `[
		{
			"type":"Transaction",
			"name":"myName",
			"timestamp":1.488393111e+09,
			"error":false,
			"duration":2,
			"totalTime":3,
			"guid":"txn-id",
			"traceId":"trace-id",
			"priority":0.500000,
			"sampled":false,
			"externalCallCount":22,
			"externalDuration":1122.334,
			"databaseCallCount":33,
			"databaseDuration":5566.778
		},
		{},
		{}]`)
}

func TestTxnEventMarshalWithInboundCaller(t *testing.T) {
	e := sampleTxnEvent()
	e.BetterCAT.Inbound = &Payload{
		payloadCaller: payloadCaller{
			TransportType: "HTTP",
			Type:          "Browser",
			App:           "caller-app",
			Account:       "caller-account",
		},
		ID:                   "caller-id",
		TransactionID:        "caller-parent-id",
		TracedID:             "trip-id",
		TransportDuration:    2 * time.Second,
		HasNewRelicTraceInfo: true,
	}
	testTxnEventJSON(t, &e, `[
		{
			"type":"Transaction",
			"name":"myName",
			"timestamp":1.488393111e+09,
			"error":false,
			"duration":2,
			"totalTime":3,
			"guid":"txn-id",
			"traceId":"trace-id",
			"priority":0.500000,
			"sampled":false,
			"parent.type":"Browser",
			"parent.app":"caller-app",
			"parent.account":"caller-account",
			"parent.transportType":"HTTP",
			"parent.transportDuration":2,
			"parentId":"caller-parent-id",
			"parentSpanId":"caller-id"
		},
		{},
		{}]`)

	// Without trusted New Relic trace information the parent is not
	// described.
	e.BetterCAT.Inbound.HasNewRelicTraceInfo = false
	js, _ := e.MarshalJSON()
	assert.NotContains(t, string(js), "parent.type")
}

func TestTxnEventMarshalWithQueuingAndSynthetics(t *testing.T) {
	e := sampleTxnEvent()
	e.BetterCAT.Enabled = false
	e.Queuing.addDuration(unknownIntermediary, 1500*time.Millisecond)
	e.Queuing.addDuration("proxy", 500*time.Millisecond)
	e.SyntheticsResourceID = "resource"
	testTxnEventJSON(t, &e, `[
		{
			"type":"Transaction",
			"name":"myName",
			"timestamp":1.488393111e+09,
			"error":false,
			"duration":2,
			"totalTime":3,
			"queueDuration":1.5,
			"caller.transportDuration.Unknown":1.5,
			"caller.transportDuration.proxy":0.5,
			"nr.syntheticsResourceId":"resource"
		},
		{},
		{}]`)
}

func TestTxnEventMarshalWithAttributes(t *testing.T) {
	input := defaultAttributeConfigInput()
	input.TransactionEvents.Exclude = []string{"zap"}
	attrs := NewAttributes(CreateAttributeConfig(input, true))
	require.NoError(t, AddUserAttribute(attrs, "zap", 123, DestAll))
	require.NoError(t, AddUserAttribute(attrs, "zip", 456, DestAll))
	attrs.addAgent(AttributeRequestMethod, "GET", DestAll)
	attrs.addAgent(AttributeRequestURI, "/url", destTxnTrace|destError)

	e := sampleTxnEvent()
	e.BetterCAT.Enabled = false
	e.Attrs = attrs
	testTxnEventJSON(t, &e, `[
		{
			"type":"Transaction",
			"name":"myName",
			"timestamp":1.488393111e+09,
			"error":false,
			"duration":2,
			"totalTime":3
		},
		{"zip":456},
		{"request.method":"GET"}]`)
}

func TestTxnEventsPayloadsEmpty(t *testing.T) {
	events := newTxnEvents(10)
	js, err := events.Data("agentRunID", testStart)
	assert.NoError(t, err)
	assert.Nil(t, js)
	assert.Equal(t, cmdTxnEvents, events.EndpointMethod())
}

func TestTxnEventsSynthetics(t *testing.T) {
	events := newTxnEvents(1)

	regular := sampleTxnEvent()
	events.AddTxnEvent(&regular, 1.99999)

	// Synthetics events outrank every regular event.
	synthetics := sampleTxnEvent()
	synthetics.SyntheticsResourceID = "resource"
	events.AddTxnEvent(&synthetics, 0.1)

	require.Equal(t, 1, len(events.events))
	assert.Equal(t, Priority(2.0), events.events[0].priority)
	assert.Equal(t, float64(2), events.NumSeen())
	assert.Equal(t, float64(1), events.NumSaved())

	// A later regular event cannot displace it.
	events.AddTxnEvent(&regular, 1.99999)
	assert.Equal(t, Priority(2.0), events.events[0].priority)
}

func TestTxnEventsMergeFailed(t *testing.T) {
	h := newTestHarvest()
	failed := newTxnEvents(10)
	e := sampleTxnEvent()
	failed.AddTxnEvent(&e, 0.5)
	failed.MergeIntoHarvest(h)
	assert.Equal(t, float64(1), h.TxnEvents.NumSeen())
	assert.Equal(t, 1, h.TxnEvents.failedHarvests)
}

func TestBetterCATTraceAndTxnIDs(t *testing.T) {
	var bc BetterCAT
	bc.SetTraceAndTxnIDs("0123456789abcdef0123456789abcdef")
	assert.Equal(t, "0123456789abcdef0123456789abcdef", bc.TraceID)
	assert.Equal(t, "0123456789abcdef", bc.TxnID)

	bc.SetTraceAndTxnIDs("short")
	assert.Equal(t, "short", bc.TxnID)
}

func BenchmarkTxnEventsData(b *testing.B) {
	e := sampleTxnEvent()
	events := newTxnEvents(MaxTxnEvents)
	for n := 0; n < MaxTxnEvents; n++ {
		events.AddTxnEvent(&e, 0.5)
	}

	b.ReportAllocs()
	b.ResetTimer()

	for n := 0; n < b.N; n++ {
		js, err := events.Data("agentRunID", testStart)
		if nil != err || nil == js {
			b.Fatal(err, js)
		}
	}
}
