// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package internal

import (
	"errors"
	"net/url"
	"strconv"
	"time"

	"github.com/newrelic/go-agent-core/internal/sqlparse"
)

type segmentStamp uint64

// SegmentKind determines which metrics and span category a segment produces.
type SegmentKind int

// Segment kinds.
const (
	SegmentBasic SegmentKind = iota
	SegmentDatastore
	SegmentExternal
	SegmentMessage
)

// SegmentStartTime is the handle returned when a segment begins.  The zero
// value is never valid.
type SegmentStartTime struct {
	Stamp segmentStamp
	Depth int
}

type segmentFrame struct {
	stamp    segmentStamp
	start    time.Time
	children time.Duration
	kind     SegmentKind
	name     string
	explicit bool
	spanID   string
	// node is nil when the frame is not part of the trace tree.
	node *traceNode
	// errorClass and errorMessage are set when an error is recorded while
	// this frame is the active segment.
	errorClass   string
	errorMessage string
}

type segmentEnd struct {
	frame     segmentFrame
	stop      time.Time
	duration  time.Duration
	exclusive time.Duration
	parentID  string
}

// DatastoreExternalTotals contains overview of external and datastore calls
// made during a transaction.
type DatastoreExternalTotals struct {
	externalCallCount  uint64
	externalDuration   time.Duration
	datastoreCallCount uint64
	datastoreDuration  time.Duration
}

// Tracer tracks the open segments of a transaction, the trace tree built
// from them, and the span events they produce.
type Tracer struct {
	finishedChildren time.Duration
	stamp            segmentStamp
	currentDepth     int
	stack            []segmentFrame

	trace TxnTrace
	spans *spanReservoir
}

const (
	startingStackDepthAlloc   = 128
	datastoreProductUnknown   = "Unknown"
	datastoreOperationUnknown = "other"
	externalHostUnknown       = "unknown"
	segmentNameUnknown        = "unknown"
	// scopePlaceholder marks scoped metrics in a transaction's own metric
	// table.  They are re-scoped to the final transaction name on merge.
	scopePlaceholder = "$txn"
)

var errMalformedSegment = errors.New("segment identifier malformed: perhaps unsafe to use across goroutines")

// TracerRootChildren is used to calculate a transaction's exclusive duration.
func TracerRootChildren(t *Tracer) time.Duration {
	var lostChildren time.Duration
	for i := 0; i < t.currentDepth; i++ {
		lostChildren += t.stack[i].children
	}
	return t.finishedChildren + lostChildren
}

// activeFrame returns the innermost open frame, or nil.
func (t *Tracer) activeFrame() *segmentFrame {
	if 0 == t.currentDepth {
		return nil
	}
	return &t.stack[t.currentDepth-1]
}

// parentSpanID returns the span guid of the frame enclosing depth, or the
// root span guid when depth is the outermost frame.
func (t *TxnData) parentSpanID(depth int) string {
	if depth > 0 {
		return t.stack[depth-1].spanID
	}
	return t.rootSpanID
}

// StartSegment begins a segment.  Explicit segments are those created
// through the custom tracer API: they are the last to be evicted from the
// trace tree and are never dropped for being short.
func StartSegment(t *TxnData, now time.Time, kind SegmentKind, name string, explicit bool) SegmentStartTime {
	if t.finished {
		return SegmentStartTime{}
	}
	if nil == t.stack {
		t.stack = make([]segmentFrame, startingStackDepthAlloc)
	}
	if cap(t.stack) == t.currentDepth {
		newLimit := 2 * t.currentDepth
		newStack := make([]segmentFrame, newLimit)
		copy(newStack, t.stack)
		t.stack = newStack
	}

	// Update the stamp before using it so that a 0 stamp can be special.
	t.stamp++

	depth := t.currentDepth
	t.currentDepth++
	f := &t.stack[depth]
	*f = segmentFrame{
		stamp:    t.stamp,
		start:    now,
		kind:     kind,
		name:     name,
		explicit: explicit,
	}
	if t.Config.DistributedTracingEnabled {
		f.spanID = t.ids.GenerateSpanID()
	}
	f.node = t.trace.admit(t.openParentNode(depth), now, explicit)

	return SegmentStartTime{
		Stamp: f.stamp,
		Depth: depth,
	}
}

// openParentNode returns the tree node of the nearest open ancestor frame
// which is present in the tree.
func (t *TxnData) openParentNode(depth int) *traceNode {
	for i := depth - 1; i >= 0; i-- {
		if nil != t.stack[i].node {
			return t.stack[i].node
		}
	}
	return t.trace.txnNode()
}

func (t *TxnData) validStart(start SegmentStartTime) bool {
	if t.finished {
		return false
	}
	if 0 == start.Stamp {
		return false
	}
	if start.Depth >= t.currentDepth || start.Depth < 0 {
		return false
	}
	return start.Stamp == t.stack[start.Depth].stamp
}

// popFrame closes the innermost frame.
func (t *TxnData) popFrame(now time.Time) segmentEnd {
	depth := t.currentDepth - 1
	f := t.stack[depth]

	end := segmentEnd{
		frame:    f,
		stop:     now,
		parentID: t.parentSpanID(depth),
	}
	if now.After(f.start) {
		end.duration = now.Sub(f.start)
	} else {
		end.stop = f.start
	}
	if end.duration > f.children {
		end.exclusive = end.duration - f.children
	}

	t.currentDepth = depth
	if 0 == depth {
		t.finishedChildren += end.duration
	} else {
		t.stack[depth-1].children += end.duration
	}
	return end
}

// closeDescendants force-closes every frame opened after the frame at depth.
func (t *TxnData) closeDescendants(depth int, now time.Time) {
	for t.currentDepth-1 > depth {
		kind := t.stack[t.currentDepth-1].kind
		t.endFrame(t.popFrame(now), forcedSegmentEnd(kind), nil)
	}
}

func forcedSegmentEnd(kind SegmentKind) interface{} {
	switch kind {
	case SegmentDatastore:
		return &DatastoreSegmentEnd{}
	case SegmentExternal:
		return &ExternalSegmentEnd{}
	case SegmentMessage:
		return &MessageSegmentEnd{}
	}
	return nil
}

func (t *TxnData) endSegment(start SegmentStartTime, now time.Time) (segmentEnd, bool) {
	if !t.validStart(start) {
		return segmentEnd{}, false
	}
	t.closeDescendants(start.Depth, now)
	return t.popFrame(now), true
}

// EndAll closes every open segment, innermost first, with a stop time of
// now.
func EndAll(t *TxnData, now time.Time) {
	for t.currentDepth > 0 {
		kind := t.stack[t.currentDepth-1].kind
		t.endFrame(t.popFrame(now), forcedSegmentEnd(kind), nil)
	}
}

// EndBasicSegment ends a basic segment.  An empty name uses the name given
// when the segment started.
func EndBasicSegment(t *TxnData, start SegmentStartTime, now time.Time, name string, attrs *SegmentAttributes) error {
	end, ok := t.endSegment(start, now)
	if !ok {
		return errMalformedSegment
	}
	if "" != name {
		end.frame.name = name
	}
	t.endFrame(end, nil, attrs)
	return nil
}

// DatastoreSegmentEnd contains the information gathered for a datastore
// call.
type DatastoreSegmentEnd struct {
	Product            string
	Collection         string
	Operation          string
	ParameterizedQuery string
	QueryParameters    map[string]interface{}
	Host               string
	PortPathOrID       string
	Database           string
}

// EndDatastoreSegment ends a datastore segment.
func EndDatastoreSegment(t *TxnData, start SegmentStartTime, now time.Time, s *DatastoreSegmentEnd, attrs *SegmentAttributes) error {
	end, ok := t.endSegment(start, now)
	if !ok {
		return errMalformedSegment
	}
	if nil == s {
		s = &DatastoreSegmentEnd{}
	}
	t.endFrame(end, s, attrs)
	return nil
}

// ExternalSegmentEnd contains the information gathered for an external call.
type ExternalSegmentEnd struct {
	URL        *url.URL
	Method     string
	Library    string
	StatusCode int
}

// EndExternalSegment ends an external segment.
func EndExternalSegment(t *TxnData, start SegmentStartTime, now time.Time, s *ExternalSegmentEnd, attrs *SegmentAttributes) error {
	end, ok := t.endSegment(start, now)
	if !ok {
		return errMalformedSegment
	}
	if nil == s {
		s = &ExternalSegmentEnd{}
	}
	t.endFrame(end, s, attrs)
	return nil
}

// MessageSegmentEnd contains the information gathered for a message broker
// interaction.
type MessageSegmentEnd struct {
	MessageMetricKey
	Host         string
	PortPathOrID string
}

// EndMessageSegment ends a message segment.
func EndMessageSegment(t *TxnData, start SegmentStartTime, now time.Time, s *MessageSegmentEnd, attrs *SegmentAttributes) error {
	end, ok := t.endSegment(start, now)
	if !ok {
		return errMalformedSegment
	}
	if nil == s {
		s = &MessageSegmentEnd{}
	}
	t.endFrame(end, s, attrs)
	return nil
}

// endFrame records the metrics, tree node and span candidate of a closed
// frame.  info is nil for basic segments.
func (t *TxnData) endFrame(end segmentEnd, info interface{}, attrs *SegmentAttributes) {
	var evt *SpanEvent
	if t.Config.spansEnabled() {
		evt = &SpanEvent{
			GUID:      end.frame.spanID,
			ParentID:  end.parentID,
			Timestamp: end.frame.start,
			Duration:  end.duration,
			Category:  spanCategoryGeneric,
		}
	}

	var nodeName string
	var nodeParams *orderedAttributes

	switch s := info.(type) {
	case *DatastoreSegmentEnd:
		nodeName, nodeParams = t.recordDatastore(end, s, evt)
	case *ExternalSegmentEnd:
		nodeName, nodeParams = t.recordExternal(end, s, evt)
	case *MessageSegmentEnd:
		nodeName = t.recordMessage(end, s, evt)
	default:
		nodeName = t.recordBasic(end)
	}

	if nil != attrs {
		if nil == nodeParams {
			nodeParams = &orderedAttributes{}
		}
		for _, key := range attrs.keys {
			v := attrs.values[key]
			nodeParams.set(key, v)
		}
	}

	short := t.Config.TraceDetail <= 0 &&
		!end.frame.explicit &&
		end.duration < t.Config.SegmentThreshold

	t.trace.close(end.frame.node, end.stop, nodeName, nodeParams, short)

	if nil == evt || short {
		return
	}
	if "" == evt.Name {
		evt.Name = nodeName
	}
	if nil != attrs {
		for _, key := range attrs.keys {
			v := attrs.values[key]
			if isAgentSpanAttribute(key) {
				evt.AgentAttributes.set(key, v)
			} else {
				evt.UserAttributes.set(key, v)
			}
		}
	}
	if "" != end.frame.errorClass {
		evt.AgentAttributes.set(SpanAttributeErrorClass, attributeValue{value: end.frame.errorClass, destinations: destSpan})
		evt.AgentAttributes.set(SpanAttributeErrorMessage, attributeValue{value: end.frame.errorMessage, destinations: destSpan})
	}
	t.spans.offer(evt)
}

func (t *TxnData) recordBasic(end segmentEnd) string {
	name := end.frame.name
	if "" == name {
		name = segmentNameUnknown
	}
	m := customSegmentMetric(name)
	t.metrics.addDuration(m, "", end.duration, end.exclusive, unforced)
	t.metrics.addDuration(m, scopePlaceholder, end.duration, end.exclusive, unforced)
	return m
}

func (t *TxnData) recordDatastore(end segmentEnd, s *DatastoreSegmentEnd, evt *SpanEvent) (string, *orderedAttributes) {
	key := DatastoreMetricKey{
		Product:      s.Product,
		Collection:   s.Collection,
		Operation:    s.Operation,
		Host:         s.Host,
		PortPathOrID: s.PortPathOrID,
	}
	if "" == key.Operation && "" != s.ParameterizedQuery {
		op, collection := sqlparse.ParseQuery(s.ParameterizedQuery)
		key.Operation = op
		if "" == key.Collection {
			key.Collection = collection
		}
	}
	if "" == key.Product {
		key.Product = datastoreProductUnknown
	}
	if "" == key.Operation {
		key.Operation = datastoreOperationUnknown
	}
	if "" != key.Host && "" == key.PortPathOrID {
		key.PortPathOrID = "unknown"
	}

	t.datastoreCallCount++
	t.datastoreDuration += end.duration

	d, excl := end.duration, end.exclusive
	t.metrics.addDuration(datastoreRollupMetric.all, "", d, excl, forced)
	t.metrics.addDuration(datastoreRollupMetric.webOrOther(t.IsWeb), "", d, excl, forced)
	product := datastoreProductMetric(key)
	t.metrics.addDuration(product.all, "", d, excl, forced)
	t.metrics.addDuration(product.webOrOther(t.IsWeb), "", d, excl, forced)

	operation := datastoreOperationMetric(key)
	t.metrics.addDuration(operation, "", d, excl, unforced)

	name := operation
	if "" != key.Collection {
		name = datastoreStatementMetric(key)
		t.metrics.addDuration(name, "", d, excl, unforced)
	}
	t.metrics.addDuration(name, scopePlaceholder, d, excl, unforced)

	if "" != key.Host {
		t.metrics.addDuration(datastoreInstanceMetric(key), "", d, excl, unforced)
	}

	query := s.ParameterizedQuery
	if "" == query {
		collection := key.Collection
		if "" == collection {
			collection = "unknown"
		}
		query = "'" + key.Operation + "' on '" + collection + "' using '" + key.Product + "'"
	}
	params := &orderedAttributes{}
	params.set("query", attributeValue{value: query, destinations: destTxnTrace})
	if "" != key.Host {
		params.set("host", attributeValue{value: key.Host, destinations: destTxnTrace})
		params.set("port_path_or_id", attributeValue{value: key.PortPathOrID, destinations: destTxnTrace})
	}
	if "" != s.Database {
		params.set("database_name", attributeValue{value: s.Database, destinations: destTxnTrace})
	}
	if len(s.QueryParameters) > 0 && !t.Config.HighSecurity {
		params.set("query_parameters", attributeValue{value: s.QueryParameters, destinations: destTxnTrace})
	}

	if nil != evt {
		evt.Category = spanCategoryDatastore
		evt.Kind = "client"
		evt.Component = key.Product
		evt.addAgent(SpanAttributeDBStatement, query)
		evt.addAgent(SpanAttributeDBInstance, s.Database)
		evt.addAgent(SpanAttributeDBCollection, key.Collection)
		if "" != key.Host {
			evt.addAgent(SpanAttributePeerAddress, key.Host+":"+key.PortPathOrID)
			evt.addAgent(SpanAttributePeerHostname, key.Host)
			evt.addAgent(SpanAttributeServerAddress, key.Host)
			if port, err := strconv.Atoi(key.PortPathOrID); nil == err {
				evt.addAgent(SpanAttributeServerPort, port)
			}
		}
	}
	return name, params
}

func (t *TxnData) recordExternal(end segmentEnd, s *ExternalSegmentEnd, evt *SpanEvent) (string, *orderedAttributes) {
	host := HostFromURL(s.URL)
	if "" == host {
		host = externalHostUnknown
	}

	t.externalCallCount++
	t.externalDuration += end.duration

	d, excl := end.duration, end.exclusive
	t.metrics.addDuration(externalRollupMetric.all, "", d, excl, forced)
	t.metrics.addDuration(externalRollupMetric.webOrOther(t.IsWeb), "", d, excl, forced)
	m := externalHostMetric(host)
	t.metrics.addDuration(m, "", d, excl, unforced)
	t.metrics.addDuration(m, scopePlaceholder, d, excl, unforced)

	safe := SafeURL(s.URL)
	params := &orderedAttributes{}
	if "" != safe {
		params.set("uri", attributeValue{value: safe, destinations: destTxnTrace})
	}

	if nil != evt {
		library := s.Library
		if "" == library {
			library = "http"
		}
		evt.Category = spanCategoryHTTP
		evt.Kind = "client"
		evt.Component = library
		evt.addAgent(SpanAttributeHTTPURL, safe)
		evt.addAgent(SpanAttributeHTTPMethod, s.Method)
		if s.StatusCode > 0 {
			evt.addAgent(SpanAttributeHTTPStatusCode, s.StatusCode)
		}
		if nil != s.URL {
			evt.addAgent(SpanAttributeServerAddress, s.URL.Hostname())
			if port, err := strconv.Atoi(s.URL.Port()); nil == err {
				evt.addAgent(SpanAttributeServerPort, port)
			}
		}
		if "" != s.Method {
			evt.Name = "External/" + host + "/" + library + "/" + s.Method
		}
	}
	return m, params
}

func (t *TxnData) recordMessage(end segmentEnd, s *MessageSegmentEnd, evt *SpanEvent) string {
	key := s.MessageMetricKey
	if "" == key.Library {
		key.Library = "Unknown"
	}
	if "" == key.DestinationType {
		key.DestinationType = "Queue"
	}
	m := key.Name()
	d, excl := end.duration, end.exclusive
	t.metrics.addDuration(messageRollupMetric(key.Library), "", d, excl, unforced)
	t.metrics.addDuration(m, "", d, excl, unforced)
	t.metrics.addDuration(m, scopePlaceholder, d, excl, unforced)

	if nil != evt {
		evt.Component = key.Library
		if key.Consumer {
			evt.Kind = "consumer"
		} else {
			evt.Kind = "producer"
		}
		if !key.DestinationTemp {
			evt.addAgent(SpanAttributeMessageDestination, key.DestinationName)
		}
		evt.addAgent(SpanAttributeServerAddress, s.Host)
		if port, err := strconv.Atoi(s.PortPathOrID); nil == err {
			evt.addAgent(SpanAttributeServerPort, port)
		}
	}
	return m
}
