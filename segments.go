// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package newrelic

import (
	"net/http"
	"runtime"
	"strings"

	"github.com/newrelic/go-agent-core/datastore"
	"github.com/newrelic/go-agent-core/internal"
)

// SegmentStartTime is created by Transaction.StartSegmentNow and marks the
// beginning of a segment.  A segment with a zero-valued SegmentStartTime may
// safely be ended.
type SegmentStartTime struct {
	start internal.SegmentStartTime
	txn   *txn
}

// segmentAttributes records attributes added while a segment is open.
type segmentAttributes struct {
	attrs *internal.SegmentAttributes
}

func (sa *segmentAttributes) add(txn *txn, key string, val interface{}) {
	if nil == sa.attrs {
		sa.attrs = &internal.SegmentAttributes{}
	}
	if err := sa.attrs.Add(key, val); nil != err && nil != txn {
		txn.logAPIError(err, "add segment attribute")
	}
}

func (sa *segmentAttributes) setCodeLocation(txn *txn, loc *CodeLocation) {
	if nil == txn || nil == loc || !txn.app.config.CodeLevelMetrics.Enabled {
		return
	}
	if "" != loc.Function {
		sa.add(txn, internal.SpanAttributeCodeFunction, loc.Function)
	}
	if "" != loc.Namespace {
		sa.add(txn, internal.SpanAttributeCodeNamespace, loc.Namespace)
	}
	if "" != loc.FilePath {
		sa.add(txn, internal.SpanAttributeCodeFilepath, loc.FilePath)
	}
	if loc.LineNo > 0 {
		sa.add(txn, internal.SpanAttributeCodeLineno, loc.LineNo)
	}
}

// Segment is used to instrument functions, methods, and blocks of code.  The
// easiest way use Segment is the Transaction.StartSegment method.
type Segment struct {
	StartTime SegmentStartTime
	Name      string
	segmentAttributes
}

// AddAttribute adds a key value pair to the current segment.
//
// The key must contain fewer than than 255 bytes.  The value must be a
// number, string, or boolean.
func (s *Segment) AddAttribute(key string, val interface{}) {
	if nil == s {
		return
	}
	s.add(s.StartTime.txn, key, val)
}

// SetCodeLocation records where the segment's code lives as "code.*"
// attributes.  It has no effect unless CodeLevelMetrics.Enabled is set.
func (s *Segment) SetCodeLocation(loc *CodeLocation) {
	if nil == s {
		return
	}
	s.setCodeLocation(s.StartTime.txn, loc)
}

// End finishes the segment.
func (s *Segment) End() {
	if nil == s || nil == s.StartTime.txn {
		return
	}
	txn := s.StartTime.txn
	txn.logAPIError(txn.endBasicSegment(s), "end segment")
}

// DatastoreSegment is used to instrument calls to databases and object
// stores.
type DatastoreSegment struct {
	// StartTime should be assigned using Transaction.StartSegmentNow
	// before each datastore call is made.
	StartTime SegmentStartTime

	// Product, Collection, and Operation are highly recommended as they
	// are used for aggregate metrics:
	//
	// Product is the datastore type.  See the constants in
	// datastore/datastore.go.
	Product datastore.Product
	// Collection is the table or group being operated upon in the
	// datastore, e.g. "users_table".
	Collection string
	// Operation is the relevant action, e.g. "SELECT" or "GET".
	Operation string

	// ParameterizedQuery may be set to the query being performed.  It
	// must not contain any raw parameters, only placeholders.  When
	// Operation or Collection is empty they are parsed from this query.
	ParameterizedQuery string
	// QueryParameters may be used to provide query parameters.  Care
	// should be taken to only provide parameters which are not sensitive.
	// QueryParameters are ignored in high security mode.
	QueryParameters map[string]interface{}
	// Host is the name of the server hosting the datastore.
	Host string
	// PortPathOrID can represent either the port, path, or id of the
	// datastore being connected to.
	PortPathOrID string
	// DatabaseName is name of database instance where the current query
	// is being executed.
	DatabaseName string

	segmentAttributes
}

// AddAttribute adds a key value pair to the current DatastoreSegment.
func (s *DatastoreSegment) AddAttribute(key string, val interface{}) {
	if nil == s {
		return
	}
	s.add(s.StartTime.txn, key, val)
}

// End finishes the datastore segment.
func (s *DatastoreSegment) End() {
	if nil == s || nil == s.StartTime.txn {
		return
	}
	txn := s.StartTime.txn
	txn.logAPIError(txn.endDatastoreSegment(s), "end datastore segment")
}

// ExternalSegment instruments external calls.  StartExternalSegment is the
// recommended way to create ExternalSegments.
type ExternalSegment struct {
	StartTime SegmentStartTime
	Request   *http.Request
	Response  *http.Response

	// URL is an optional field which can be populated in lieu of Request if
	// you don't have an http.Request.  Either URL or Request must be
	// populated.  If both are populated then Request information takes
	// priority.
	URL string

	// Procedure is an optional field that can be set to the remote
	// procedure being called.  If set, this value will be used in metrics,
	// tracing, and span events.  If unset, the request's http method is
	// used.
	Procedure string

	// Library is an optional field that can be set to the library used to
	// make the external call.  If unset, "http" is used.
	Library string

	statusCode *int
	segmentAttributes
}

func (s *ExternalSegment) method() string {
	if "" != s.Procedure {
		return s.Procedure
	}
	if nil != s.Request && "" != s.Request.Method {
		return s.Request.Method
	}
	if nil != s.Response && nil != s.Response.Request && "" != s.Response.Request.Method {
		return s.Response.Request.Method
	}
	return "GET"
}

func (s *ExternalSegment) library() string {
	if "" != s.Library {
		return s.Library
	}
	return "http"
}

// SetStatusCode sets the status code for the response of this
// ExternalSegment.  It takes precedence over the status code of Response.
func (s *ExternalSegment) SetStatusCode(code int) {
	if nil == s {
		return
	}
	s.statusCode = &code
}

// AddAttribute adds a key value pair to the current ExternalSegment.
func (s *ExternalSegment) AddAttribute(key string, val interface{}) {
	if nil == s {
		return
	}
	s.add(s.StartTime.txn, key, val)
}

// End finishes the external segment.
func (s *ExternalSegment) End() {
	if nil == s || nil == s.StartTime.txn {
		return
	}
	txn := s.StartTime.txn
	txn.logAPIError(txn.endExternalSegment(s), "end external segment")
}

// MessageDestinationType is used for the MessageSegment.DestinationType
// field.
type MessageDestinationType string

// These message destination type constants are used in for the
// MessageSegment.DestinationType field.
const (
	MessageQueue    MessageDestinationType = "Queue"
	MessageTopic    MessageDestinationType = "Topic"
	MessageExchange MessageDestinationType = "Exchange"
)

// MessageProducerSegment instruments calls to add messages to a
// queueing system.
type MessageProducerSegment struct {
	StartTime SegmentStartTime

	// Library is the name of the library instrumented.  eg. "RabbitMQ",
	// "JMS"
	Library string

	// DestinationType is the destination type.
	DestinationType MessageDestinationType

	// DestinationName is the name of your queue or topic.  eg. "UsersQueue"
	DestinationName string

	// DestinationTemp must be set to true if destination is temporary
	// to improve metric grouping.
	DestinationTemp bool

	// Host and PortPathOrID identify the broker.
	Host         string
	PortPathOrID string

	segmentAttributes
}

// AddAttribute adds a key value pair to the current MessageProducerSegment.
func (s *MessageProducerSegment) AddAttribute(key string, val interface{}) {
	if nil == s {
		return
	}
	s.add(s.StartTime.txn, key, val)
}

// End finishes the message segment.
func (s *MessageProducerSegment) End() {
	if nil == s || nil == s.StartTime.txn {
		return
	}
	txn := s.StartTime.txn
	txn.logAPIError(txn.endMessageSegment(s), "end message segment")
}

// StartSegmentNow starts timing a segment.  It helps avoid Transaction nil
// checks.
func StartSegmentNow(txn *Transaction) SegmentStartTime {
	return txn.StartSegmentNow()
}

// StartSegment makes it easier to instrument segments.  To time a function,
// do the following:
//
//	func timeMe(txn *newrelic.Transaction) {
//		defer newrelic.StartSegment(txn, "timeMe").End()
//		// ... function code here ...
//	}
func StartSegment(txn *Transaction, name string) *Segment {
	return txn.StartSegment(name)
}

// StartExternalSegment starts the instrumentation of an external call and
// adds distributed tracing headers to the request.  If the Transaction
// parameter is nil then StartExternalSegment will look for a Transaction in
// the request's context using FromContext.
//
//	segment := newrelic.StartExternalSegment(txn, request)
//	resp, err := client.Do(request)
//	segment.Response = resp
//	segment.End()
func StartExternalSegment(txn *Transaction, request *http.Request) *ExternalSegment {
	if nil == txn && nil != request {
		txn = FromContext(request.Context())
	}
	s := &ExternalSegment{Request: request}
	if nil == txn || nil == txn.txn {
		return s
	}
	s.StartTime = txn.txn.startSegment("", internal.SegmentExternal, false)
	if nil != request {
		if nil == request.Header {
			request.Header = make(http.Header)
		}
		txn.InsertDistributedTraceHeaders(request.Header)
	}
	return s
}

// CodeLocation marks the location of a line of source code for the
// "code.*" segment attributes.
type CodeLocation struct {
	// LineNo is the line number within the source file.
	LineNo int
	// Function is the function name without the package or receiver.
	Function string
	// FilePath is the absolute pathname of the source file.
	FilePath string
	// Namespace is the package path, including the receiver type for
	// methods.
	Namespace string
}

// ThisCodeLocation returns a CodeLocation for the caller of
// ThisCodeLocation, or for the caller skip levels further up the stack.
func ThisCodeLocation(skip ...int) *CodeLocation {
	levels := 1
	if len(skip) > 0 && skip[0] > 0 {
		levels += skip[0]
	}
	pc, file, line, ok := runtime.Caller(levels)
	if !ok {
		return nil
	}
	loc := &CodeLocation{
		LineNo:   line,
		FilePath: file,
	}
	if fn := runtime.FuncForPC(pc); nil != fn {
		loc.Namespace, loc.Function = splitFunctionName(fn.Name())
	}
	return loc
}

// splitFunctionName splits "a/b/pkg.(*T).Method" into "a/b/pkg.(*T)" and
// "Method".
func splitFunctionName(name string) (namespace, function string) {
	slash := strings.LastIndex(name, "/")
	dot := strings.LastIndex(name, ".")
	if dot <= slash || dot < 0 {
		return "", name
	}
	return name[:dot], name[dot+1:]
}
