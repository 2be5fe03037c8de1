// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package newrelic

import (
	"net/http"
	"net/url"

	"github.com/newrelic/go-agent-core/datastore"
	"github.com/newrelic/go-agent-core/internal"
)

// Transaction instruments one logical unit of work: either an inbound web
// request or background task.  Start a new Transaction with the
// Application.StartTransaction method.
//
// All methods on Transaction are nil safe.  Therefore, a nil Transaction
// pointer can be safely used as a mock.
type Transaction struct {
	txn *txn
}

// End finishes the Transaction.  After that, subsequent calls to End or
// other Transaction methods have no effect.  All segments and
// instrumentation must be completed before End is called.
//
// When ErrorCollector.RecordPanics is set, End recovers a panic in
// progress, records it as an error and re-panics:
//
//	defer txn.End()
func (txn *Transaction) End() {
	if nil == txn || nil == txn.txn {
		return
	}

	var r interface{}
	if txn.txn.app.config.ErrorCollector.RecordPanics {
		// recover must be called directly by a deferred function.
		r = recover()
	}
	txn.txn.logAPIError(txn.txn.end(r), "end transaction")
	if nil != r {
		panic(r)
	}
}

// Ignore prevents this transaction's data from being recorded.
func (txn *Transaction) Ignore() {
	if nil == txn || nil == txn.txn {
		return
	}
	txn.txn.logAPIError(txn.txn.ignore(), "ignore transaction")
}

// SetName names the transaction.  Use a limited set of unique names to
// ensure that Transactions are grouped usefully.
func (txn *Transaction) SetName(name string) {
	if nil == txn || nil == txn.txn {
		return
	}
	txn.txn.logAPIError(txn.txn.setName(name), "set transaction name")
}

// Name returns the name currently set for the transaction, as, e.g.
// "OtherTransaction/Custom/{name}".
func (txn *Transaction) Name() string {
	if nil == txn || nil == txn.txn {
		return ""
	}
	return txn.txn.name()
}

// NoticeError records an error.  The Transaction keeps one error: a panic
// is never replaced, and otherwise an error replaces the kept one only when
// it is more important.  With ErrorCollector.PrioritizeAPIErrors, errors
// noticed here outrank every log-level error.
//
// The error class is taken from ErrorClasser when the error or its
// github.com/pkg/errors cause implements it, and is otherwise the type of
// the cause.  Stack traces come from StackTracer, then from the deepest
// github.com/pkg/errors stack, then from the caller.
func (txn *Transaction) NoticeError(err error) {
	if nil == txn || nil == txn.txn {
		return
	}
	txn.txn.logAPIError(txn.txn.noticeError(err), "notice error")
}

// NoticeErrorWithLevel records a log-level error such as "E_WARNING" or
// "E_USER_ERROR".  Unknown level names are rejected.
func (txn *Transaction) NoticeErrorWithLevel(level, message string) {
	if nil == txn || nil == txn.txn {
		return
	}
	txn.txn.logAPIError(txn.txn.noticeLevelError(level, message), "notice error")
}

// AddAttribute adds a key value pair to the transaction event, errors,
// and traces.
//
// The key must contain fewer than than 255 bytes.  The value must be a
// number, string, or boolean.
func (txn *Transaction) AddAttribute(key string, value interface{}) {
	if nil == txn || nil == txn.txn {
		return
	}
	txn.txn.logAPIError(txn.txn.addAttribute(key, value), "add attribute")
}

// RecordCustomMetric records a metric scoped to this transaction's
// harvest.  The name is prefixed with "Custom/".
func (txn *Transaction) RecordCustomMetric(name string, value float64) {
	if nil == txn || nil == txn.txn {
		return
	}
	txn.txn.logAPIError(txn.txn.recordMetric(name, value), "record custom metric")
}

// SetWebRequestHTTP marks the transaction as a web transaction.  If r is
// non-nil, SetWebRequestHTTP will additionally collect details on request
// attributes, url, and method, and accept distributed trace headers.
func (txn *Transaction) SetWebRequestHTTP(r *http.Request) {
	if nil == r {
		txn.SetWebRequest(WebRequest{})
		return
	}
	wr := WebRequest{
		Header:    r.Header,
		URL:       r.URL,
		Method:    r.Method,
		Host:      r.Host,
		Transport: TransportHTTP,
	}
	if nil != r.TLS {
		wr.Transport = TransportHTTPS
	}
	txn.SetWebRequest(wr)
}

// SetWebRequest marks the transaction as a web transaction and records
// the request details.
func (txn *Transaction) SetWebRequest(r WebRequest) {
	if nil == txn || nil == txn.txn {
		return
	}
	txn.txn.logAPIError(txn.txn.setWebRequest(r), "set web request")
}

// SetWebResponseCode records the response status code.
func (txn *Transaction) SetWebResponseCode(code int) {
	if nil == txn || nil == txn.txn {
		return
	}
	txn.txn.logAPIError(txn.txn.setResponseCode(code), "set response code")
}

// AcceptDistributedTraceHeaders links transactions made by different
// processes into a single trace.  Both W3C "traceparent" and "tracestate"
// headers and the "newrelic" header are understood.  A payload which
// cannot be accepted is counted in supportability metrics and the
// transaction becomes the start of a new trace.
func (txn *Transaction) AcceptDistributedTraceHeaders(t TransportType, hdrs http.Header) {
	if nil == txn || nil == txn.txn {
		return
	}
	txn.txn.logAPIError(txn.txn.acceptDistributedTraceHeaders(t, hdrs), "accept trace payload")
}

// InsertDistributedTraceHeaders adds the distributed trace headers used to
// link transactions.  It should be called for every outbound request.
func (txn *Transaction) InsertDistributedTraceHeaders(hdrs http.Header) {
	if nil == txn || nil == txn.txn || nil == hdrs {
		return
	}
	txn.txn.logAPIError(txn.txn.insertDistributedTraceHeaders(hdrs), "create trace payload")
}

// IsSampled indicates if the Transaction is sampled.  A sampled
// Transaction records a span event for each segment.
func (txn *Transaction) IsSampled() bool {
	if nil == txn || nil == txn.txn {
		return false
	}
	return txn.txn.isSampled()
}

// GetTraceMetadata returns distributed tracing identifiers.  Empty
// strings are returned if the transaction has finished or distributed
// tracing is disabled.
func (txn *Transaction) GetTraceMetadata() TraceMetadata {
	if nil == txn || nil == txn.txn {
		return TraceMetadata{}
	}
	return txn.txn.traceMetadata()
}

// StartSegmentNow starts timing a segment.  The SegmentStartTime returned
// can be used as the StartTime field of any segment type.
func (txn *Transaction) StartSegmentNow() SegmentStartTime {
	if nil == txn || nil == txn.txn {
		return SegmentStartTime{}
	}
	return txn.txn.startSegment("", internal.SegmentBasic, false)
}

// StartSegment starts an explicitly named segment.  Such segments are
// the last to be evicted from a full transaction trace and are kept
// however short they are.
//
//	defer txn.StartSegment("parseConfig").End()
func (txn *Transaction) StartSegment(name string) *Segment {
	if nil == txn || nil == txn.txn {
		return &Segment{Name: name}
	}
	return &Segment{
		StartTime: txn.txn.startSegment(name, internal.SegmentBasic, true),
		Name:      name,
	}
}

// StartDatastoreSegment starts a datastore segment.  Fill in the remaining
// fields before calling End.
func (txn *Transaction) StartDatastoreSegment(product datastore.Product, collection, operation string) *DatastoreSegment {
	s := &DatastoreSegment{
		Product:    product,
		Collection: collection,
		Operation:  operation,
	}
	if nil != txn && nil != txn.txn {
		s.StartTime = txn.txn.startSegment("", internal.SegmentDatastore, false)
	}
	return s
}

// StartMessageProducerSegment starts a segment which publishes a message
// to the named destination.
func (txn *Transaction) StartMessageProducerSegment(library string, destType MessageDestinationType, destName string) *MessageProducerSegment {
	s := &MessageProducerSegment{
		Library:         library,
		DestinationType: destType,
		DestinationName: destName,
	}
	if nil != txn && nil != txn.txn {
		s.StartTime = txn.txn.startSegment("", internal.SegmentMessage, false)
	}
	return s
}

// WebRequest is used to provide request information to
// Transaction.SetWebRequest.
type WebRequest struct {
	// Header may be nil if you don't have any headers or don't want to
	// transform them to http.Header format.
	Header http.Header
	// URL may be nil if you don't have a URL or don't want to transform
	// it to *url.URL.
	URL *url.URL
	// Method is the request's method.
	Method string
	// Host is the request's host.  The URL host or the "Host" header is
	// used when it is empty.
	Host string
	// If a distributed tracing header is found in Header, Transport is
	// used for the transport type of the inbound trace.  It defaults to
	// TransportHTTP.
	Transport TransportType
}

// TransportType is used in distributed tracing to indicate how a request
// arrived.
type TransportType string

// TransportType names used across New Relic agents:
const (
	TransportUnknown TransportType = "Unknown"
	TransportHTTP    TransportType = "HTTP"
	TransportHTTPS   TransportType = "HTTPS"
	TransportKafka   TransportType = "Kafka"
	TransportJMS     TransportType = "JMS"
	TransportIronMQ  TransportType = "IronMQ"
	TransportAMQP    TransportType = "AMQP"
	TransportQueue   TransportType = "Queue"
	TransportOther   TransportType = "Other"
)

func (t TransportType) orDefault() TransportType {
	if "" == t {
		return TransportHTTP
	}
	return t
}

// TraceMetadata is returned by Transaction.GetTraceMetadata.
type TraceMetadata struct {
	// TraceID is the id of the trace.
	TraceID string
	// SpanID is the id of the currently active span.
	SpanID string
}
