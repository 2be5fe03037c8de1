// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package internal

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSpanEventJSON(t *testing.T, e *SpanEvent, expect string) {
	t.Helper()
	js, err := json.Marshal(e)
	if nil != err {
		t.Error(err)
		return
	}
	expect = CompactJSONString(expect)
	if string(js) != expect {
		t.Errorf("\nexpect=%s\nactual=%s\n", expect, string(js))
	}
}

// scriptedRandom returns the queued values from Uint64N in order.
type scriptedRandom struct {
	values []uint64
}

func (r *scriptedRandom) Uint64N(n uint64) uint64 {
	if 0 == len(r.values) {
		return n - 1
	}
	v := r.values[0]
	r.values = r.values[1:]
	return v % n
}

func (r *scriptedRandom) Float32() float32 { return 0.5 }

var (
	sampleSpanEvent = SpanEvent{
		TraceID:       "trace-id",
		GUID:          "guid",
		TransactionID: "txn-id",
		Sampled:       true,
		Priority:      0.5,
		Timestamp:     timeFromUnixMilliseconds(1488393111000),
		Duration:      2 * time.Second,
		Name:          "myName",
		Category:      spanCategoryGeneric,
		IsEntrypoint:  true,
	}
)

func TestSpanEventGenericRootMarshal(t *testing.T) {
	e := sampleSpanEvent
	testSpanEventJSON(t, &e, `[
	{
		"type":"Span",
		"traceId":"trace-id",
		"guid":"guid",
		"transactionId":"txn-id",
		"sampled":true,
		"priority":0.500000,
		"timestamp":1488393111000,
		"duration":2,
		"name":"myName",
		"category":"generic",
		"nr.entryPoint":true
	},
	{},
	{}]`)
}

func TestSpanEventDatastoreMarshal(t *testing.T) {
	e := sampleSpanEvent

	// Alter sample span event for this test case
	e.IsEntrypoint = false
	e.ParentID = "parent-id"
	e.Category = spanCategoryDatastore
	e.Kind = "client"
	e.Component = "mySql"
	e.addAgent(SpanAttributeDBStatement, "SELECT * from foo")
	e.addAgent(SpanAttributeDBInstance, "123")
	e.addAgent(SpanAttributePeerAddress, "{host}:{portPathOrId}")
	e.addAgent(SpanAttributePeerHostname, "host")
	e.addAgent(SpanAttributeDBCollection, "")

	ExpectEventJSON(t, jsonOf(&e), WantEvent{
		Intrinsics: map[string]interface{}{
			"type":          "Span",
			"traceId":       "trace-id",
			"guid":          "guid",
			"parentId":      "parent-id",
			"transactionId": "txn-id",
			"sampled":       true,
			"priority":      0.500000,
			"timestamp":     1.488393111e+12,
			"duration":      2,
			"name":          "myName",
			"category":      "datastore",
			"component":     "mySql",
			"span.kind":     "client",
		},
		UserAttributes: map[string]interface{}{},
		AgentAttributes: map[string]interface{}{
			"db.statement":  "SELECT * from foo",
			"db.instance":   "123",
			"peer.address":  "{host}:{portPathOrId}",
			"peer.hostname": "host",
		},
	})
}

func TestSpanEventExternalMarshal(t *testing.T) {
	e := sampleSpanEvent

	e.IsEntrypoint = false
	e.ParentID = "parent-id"
	e.Category = spanCategoryHTTP
	e.Kind = "client"
	e.Component = "http"
	e.TrustedParentID = "trusted"
	e.TracingVendors = "congo,rojo"
	e.addAgent(SpanAttributeHTTPURL, "http://url.com")
	e.addAgent(SpanAttributeHTTPMethod, "GET")
	e.addAgent(SpanAttributeHTTPStatusCode, 200)
	e.UserAttributes.set("user", attributeValue{value: "alice", destinations: destSpan})
	// Attributes for other destinations are not written.
	e.UserAttributes.set("traceOnly", attributeValue{value: 1, destinations: destTxnTrace})

	testSpanEventJSON(t, &e, `[
	{
		"type":"Span",
		"traceId":"trace-id",
		"guid":"guid",
		"parentId":"parent-id",
		"transactionId":"txn-id",
		"sampled":true,
		"priority":0.500000,
		"timestamp":1488393111000,
		"duration":2,
		"name":"myName",
		"category":"http",
		"component":"http",
		"span.kind":"client",
		"trustedParentId":"trusted",
		"tracingVendors":"congo,rojo"
	},
	{
		"user":"alice"
	},
	{
		"http.url":"http://url.com",
		"http.method":"GET",
		"http.statusCode":200
	}]`)
}

func TestSpanEventsEndpointMethod(t *testing.T) {
	events := newSpanEvents(10, NewTraceIDGenerator(1))
	assert.Equal(t, cmdSpanEvents, events.EndpointMethod())
}

func spanNamed(i int) *SpanEvent {
	return &SpanEvent{Name: "span" + strconv.Itoa(i)}
}

func spanNames(events []*SpanEvent) []string {
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.Name
	}
	return names
}

func TestSpanReservoirFillsThenReplaces(t *testing.T) {
	r := newSpanReservoir(3, &scriptedRandom{values: []uint64{1, 7}})
	for i := 0; i < 5; i++ {
		r.offer(spanNamed(i))
	}
	capacity, seen, events := r.harvest()
	assert.Equal(t, 3, capacity)
	assert.Equal(t, uint64(5), seen)
	// The fourth span replaces slot 1.  The fifth draws 7 mod 5 = 2 and
	// replaces slot 2.
	assert.Equal(t, []string{"span0", "span3", "span4"}, spanNames(events))
}

func TestSpanReservoirDropsOutOfRangeDraws(t *testing.T) {
	r := newSpanReservoir(2, &scriptedRandom{values: []uint64{2, 3}})
	for i := 0; i < 4; i++ {
		r.offer(spanNamed(i))
	}
	_, seen, events := r.harvest()
	assert.Equal(t, uint64(4), seen)
	assert.Equal(t, []string{"span0", "span1"}, spanNames(events))
}

func TestSpanReservoirZeroCapacity(t *testing.T) {
	r := newSpanReservoir(0, &scriptedRandom{})
	r.offer(spanNamed(0))
	_, seen, events := r.harvest()
	assert.Equal(t, uint64(1), seen)
	assert.Empty(t, events)

	var missing *spanReservoir
	missing.offer(spanNamed(1))
	capacity, seen, events := missing.harvest()
	assert.Equal(t, 0, capacity)
	assert.Equal(t, uint64(0), seen)
	assert.Nil(t, events)
}

func TestSpanReservoirUniform(t *testing.T) {
	const (
		capacity = 10
		offered  = 100
		rounds   = 2000
	)
	counts := make([]int, offered)
	gen := NewTraceIDGenerator(42)
	for round := 0; round < rounds; round++ {
		r := newSpanReservoir(capacity, gen)
		spans := make([]*SpanEvent, offered)
		index := make(map[*SpanEvent]int, offered)
		for i := range spans {
			spans[i] = &SpanEvent{}
			index[spans[i]] = i
			r.offer(spans[i])
		}
		for _, e := range r.events {
			counts[index[e]]++
		}
	}
	// Each span is kept with probability capacity/offered.
	expect := float64(rounds*capacity) / offered
	for i, c := range counts {
		assert.InDelta(t, expect, float64(c), expect*0.5, "span %d", i)
	}
}

func TestSpanEventsData(t *testing.T) {
	events := newSpanEvents(10, NewTraceIDGenerator(1))
	js, err := events.Data("agentRunID", time.Now())
	require.NoError(t, err)
	assert.Nil(t, js)

	e := sampleSpanEvent
	events.addEventPopulated(&e)
	js, err = events.Data("agentRunID", time.Now())
	require.NoError(t, err)
	assert.Equal(t, CompactJSONString(`["agentRunID",{"reservoir_size":10,"events_seen":1},[
		[{"type":"Span","traceId":"trace-id","guid":"guid","transactionId":"txn-id","sampled":true,
		"priority":0.500000,"timestamp":1488393111000,"duration":2,"name":"myName",
		"category":"generic","nr.entryPoint":true},{},{}]]]`), string(js))
	assert.Equal(t, float64(1), events.NumSeen())
	assert.Equal(t, float64(1), events.NumSaved())
}

func TestSpanEventsMergeFailed(t *testing.T) {
	h := NewHarvest(time.Now(), DefaultHarvestLimits(), NewTraceIDGenerator(1))
	failed := newSpanEvents(10, NewTraceIDGenerator(1))
	failed.addEventPopulated(spanNamed(0))
	failed.addEventPopulated(spanNamed(1))
	h.SpanEvents.addEventPopulated(spanNamed(2))

	failed.MergeIntoHarvest(h)
	assert.Equal(t, float64(3), h.SpanEvents.NumSeen())
	assert.Equal(t, []string{"span2", "span0", "span1"}, spanNames(h.SpanEvents.events))
	assert.Equal(t, 1, h.SpanEvents.failedHarvests)

	exhausted := newSpanEvents(10, NewTraceIDGenerator(1))
	exhausted.addEventPopulated(spanNamed(3))
	exhausted.failedHarvests = failedEventsAttemptsLimit
	exhausted.MergeIntoHarvest(h)
	assert.Equal(t, float64(3), h.SpanEvents.NumSeen())
}

func TestSegmentAttributes(t *testing.T) {
	var sa SegmentAttributes
	require.NoError(t, sa.Add("zip", 1))
	require.NoError(t, sa.Add("zap", "two"))
	require.NoError(t, sa.Add("zip", 3))
	assert.Equal(t, []string{"zip", "zap"}, sa.keys)
	v, _ := sa.get("zip")
	assert.Equal(t, 3, v)

	_, ok := sa.Add("bad", []int{}).(ErrInvalidAttributeType)
	assert.True(t, ok)

	for i := sa.len(); i < attributeUserLimit; i++ {
		require.NoError(t, sa.Add("key"+strconv.Itoa(i), i))
	}
	assert.Error(t, sa.Add("one-too-many", 1))
	assert.NoError(t, sa.Add("zip", 4))
}

func TestIsAgentSpanAttribute(t *testing.T) {
	for key, expect := range map[string]bool{
		SpanAttributeDBStatement:   true,
		SpanAttributeHTTPURL:       true,
		SpanAttributeCodeFunction:  true,
		SpanAttributeErrorMessage:  true,
		SpanAttributeServerAddress: true,
		"user.name":                false,
		"database":                 false,
	} {
		assert.Equal(t, expect, isAgentSpanAttribute(key), key)
	}
}
