// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package internal

import (
	"bytes"
	"strings"
	"time"

	"github.com/newrelic/go-agent-core/internal/jsonx"
)

type spanCategory string

const (
	spanCategoryHTTP      spanCategory = "http"
	spanCategoryDatastore spanCategory = "datastore"
	spanCategoryGeneric   spanCategory = "generic"
)

// span agent attribute names
const (
	SpanAttributeDBStatement        = "db.statement"
	SpanAttributeDBInstance         = "db.instance"
	SpanAttributeDBCollection       = "db.collection"
	SpanAttributePeerAddress        = "peer.address"
	SpanAttributePeerHostname       = "peer.hostname"
	SpanAttributeHTTPURL            = "http.url"
	SpanAttributeHTTPMethod         = "http.method"
	SpanAttributeHTTPStatusCode     = "http.statusCode"
	SpanAttributeServerAddress      = "server.address"
	SpanAttributeServerPort         = "server.port"
	SpanAttributeMessageDestination = "message.destination.name"
	SpanAttributeErrorClass         = "error.class"
	SpanAttributeErrorMessage       = "error.message"
	SpanAttributeCodeFunction       = "code.function"
	SpanAttributeCodeFilepath       = "code.filepath"
	SpanAttributeCodeLineno         = "code.lineno"
	SpanAttributeCodeNamespace      = "code.namespace"
	SpanAttributeParentType         = "parent.type"
	SpanAttributeParentApp          = "parent.app"
	SpanAttributeParentAccount      = "parent.account"
	SpanAttributeParentTransport    = "parent.transportType"
	SpanAttributeParentTransportDur = "parent.transportDuration"
)

var agentSpanAttributePrefixes = []string{
	"db.", "peer.", "http.", "server.", "message.", "code.", "error.", "parent.",
}

func isAgentSpanAttribute(key string) bool {
	for _, p := range agentSpanAttributePrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// SegmentAttributes are the attributes added to a segment while it is open.
// They are kept in the order they were first added.
type SegmentAttributes struct {
	orderedAttributes
}

// Add validates and records an attribute.  Re-adding a key replaces its
// value.
func (sa *SegmentAttributes) Add(key string, val interface{}) error {
	val, err := ValidateUserAttribute(key, val)
	if nil != err {
		return err
	}
	if !sa.has(key) && sa.len() >= attributeUserLimit {
		return userAttributeLimitErr{key}
	}
	sa.set(key, attributeValue{value: val, destinations: destTxnTrace | destSpan})
	return nil
}

// SpanEvent represents a span event, necessary to support Distributed Tracing.
type SpanEvent struct {
	TraceID         string
	GUID            string
	ParentID        string
	TransactionID   string
	Sampled         bool
	Priority        Priority
	Timestamp       time.Time
	Duration        time.Duration
	Name            string
	Category        spanCategory
	Component       string
	Kind            string
	IsEntrypoint    bool
	TrustedParentID string
	TracingVendors  string

	AgentAttributes orderedAttributes
	UserAttributes  orderedAttributes
}

// addAgent records an agent attribute, skipping empty strings.
func (e *SpanEvent) addAgent(key string, val interface{}) {
	if s, ok := val.(string); ok && "" == s {
		return
	}
	e.AgentAttributes.set(key, attributeValue{value: val, destinations: destSpan})
}

// WriteJSON prepares JSON in the format expected by the collector.
func (e *SpanEvent) WriteJSON(buf *bytes.Buffer) {
	w := jsonFieldsWriter{buf: buf}
	buf.WriteByte('[')
	buf.WriteByte('{')
	w.stringField("type", "Span")
	w.stringField("traceId", e.TraceID)
	w.stringField("guid", e.GUID)
	if "" != e.ParentID {
		w.stringField("parentId", e.ParentID)
	}
	w.stringField("transactionId", e.TransactionID)
	w.boolField("sampled", e.Sampled)
	w.writerField("priority", e.Priority)
	w.intField("timestamp", int64(TimeToUnixMilliseconds(e.Timestamp)))
	w.floatField("duration", e.Duration.Seconds())
	w.stringField("name", e.Name)
	w.stringField("category", string(e.Category))
	if "" != e.Component {
		w.stringField("component", e.Component)
	}
	if "" != e.Kind {
		w.stringField("span.kind", e.Kind)
	}
	if e.IsEntrypoint {
		w.boolField("nr.entryPoint", true)
	}
	if "" != e.TrustedParentID {
		w.stringField("trustedParentId", e.TrustedParentID)
	}
	if "" != e.TracingVendors {
		w.stringField("tracingVendors", e.TracingVendors)
	}
	buf.WriteByte('}')
	buf.WriteByte(',')
	e.UserAttributes.writeJSON(buf, destSpan)
	buf.WriteByte(',')
	e.AgentAttributes.writeJSON(buf, destSpan)
	buf.WriteByte(']')
}

// MarshalJSON is used for testing.
func (e *SpanEvent) MarshalJSON() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 256))

	e.WriteJSON(buf)

	return buf.Bytes(), nil
}

// spanReservoir is a uniform sample of span events: the classic reservoir
// algorithm over an injected random source.
type spanReservoir struct {
	capacity int
	seen     uint64
	events   []*SpanEvent
	rand     RandomSource
}

func newSpanReservoir(capacity int, rs RandomSource) *spanReservoir {
	if capacity < 0 {
		capacity = 0
	}
	return &spanReservoir{
		capacity: capacity,
		events:   make([]*SpanEvent, 0, minInt(capacity, 64)),
		rand:     rs,
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (r *spanReservoir) offer(e *SpanEvent) {
	if nil == r || nil == e {
		return
	}
	r.seen++
	if r.seen <= uint64(r.capacity) {
		r.events = append(r.events, e)
		return
	}
	if j := r.rand.Uint64N(r.seen); j < uint64(r.capacity) {
		r.events[j] = e
	}
}

// harvest returns the reservoir contents.
func (r *spanReservoir) harvest() (capacity int, seen uint64, events []*SpanEvent) {
	if nil == r {
		return 0, 0, nil
	}
	return r.capacity, r.seen, r.events
}

// spanEvents is the harvest level span reservoir.  events_seen counts the
// spans merged from transactions.
type spanEvents struct {
	*spanReservoir
	failedHarvests int
}

func newSpanEvents(max int, rs RandomSource) *spanEvents {
	return &spanEvents{spanReservoir: newSpanReservoir(max, rs)}
}

func (events *spanEvents) addEventPopulated(e *SpanEvent) {
	events.offer(e)
}

// NumSeen returns the number of spans offered.
func (events *spanEvents) NumSeen() float64 { return float64(events.seen) }

// NumSaved returns the number of spans kept.
func (events *spanEvents) NumSaved() float64 { return float64(len(events.events)) }

func (events *spanEvents) limit() int { return events.spanReservoir.capacity }

// MergeIntoHarvest implements Harvestable.
func (events *spanEvents) MergeIntoHarvest(h *Harvest) {
	fails := events.failedHarvests + 1
	if fails >= failedEventsAttemptsLimit {
		return
	}
	to := h.SpanEvents
	seen := to.seen + events.seen
	for _, e := range events.events {
		to.offer(e)
	}
	to.seen = seen
	to.failedHarvests = fails
}

// Data implements PayloadCreator.
func (events *spanEvents) Data(agentRunID string, harvestStart time.Time) ([]byte, error) {
	if nil == events || 0 == events.seen {
		return nil, nil
	}
	capacity, seen, evts := events.harvest()

	buf := bytes.NewBuffer(make([]byte, 0, 256*len(evts)))
	buf.WriteByte('[')
	jsonx.AppendString(buf, agentRunID)
	buf.WriteByte(',')
	buf.WriteByte('{')
	buf.WriteString(`"reservoir_size":`)
	jsonx.AppendUint(buf, uint64(capacity))
	buf.WriteByte(',')
	buf.WriteString(`"events_seen":`)
	jsonx.AppendUint(buf, seen)
	buf.WriteByte('}')
	buf.WriteByte(',')
	buf.WriteByte('[')
	for i, e := range evts {
		if i > 0 {
			buf.WriteByte(',')
		}
		e.WriteJSON(buf)
	}
	buf.WriteByte(']')
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// EndpointMethod implements PayloadCreator.
func (events *spanEvents) EndpointMethod() string {
	return cmdSpanEvents
}
