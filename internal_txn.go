// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package newrelic

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/newrelic/go-agent-core/internal"
	"github.com/newrelic/go-agent-core/internal/cat"
)

var (
	errAlreadyEnded = internal.ErrTxnFinished
	errNilError     = errors.New("nil error")
	errUnknownLevel = errors.New("unknown error level")
)

// txn guards the recorded data of a transaction.  Every method takes the
// lock, so a transaction may be used from several goroutines; segments
// still form a single stack.
type txn struct {
	app *app
	sync.Mutex
	*internal.TxnData
}

func (txn *txn) end(recovered interface{}) error {
	txn.Lock()
	defer txn.Unlock()

	if txn.Finished() {
		return errAlreadyEnded
	}
	now := txn.app.now()
	if nil != recovered {
		txn.TxnData.NoticeError(internal.ErrorCandidate{
			Kind:    internal.ErrorKindUncaught,
			Class:   internal.PanicErrorClass,
			Message: fmt.Sprint(recovered),
			Stack:   internal.GetStackTrace(2),
			When:    now,
		})
	}
	if err := txn.TxnData.End(now); nil != err {
		return err
	}
	txn.app.consume(txn.TxnData)

	if txn.app.DebugEnabled() {
		txn.app.Debug("transaction ended", map[string]interface{}{
			"name":     txn.FinalName,
			"duration": txn.Duration.Seconds(),
			"ignored":  txn.Ignored(),
		})
	}
	return nil
}

func (txn *txn) ignore() error {
	txn.Lock()
	defer txn.Unlock()
	return txn.TxnData.Ignore()
}

func (txn *txn) setName(name string) error {
	txn.Lock()
	defer txn.Unlock()
	return txn.TxnData.SetName(name)
}

func (txn *txn) name() string {
	txn.Lock()
	defer txn.Unlock()
	if txn.Finished() {
		return txn.FinalName
	}
	return internal.FinalName(txn.Name, txn.IsWeb)
}

func (txn *txn) noticeError(err error) error {
	if nil == err {
		return errNilError
	}
	attrs, attrErr := errorAttributes(err)
	if nil != attrErr {
		return attrErr
	}

	txn.Lock()
	defer txn.Unlock()

	if txn.Finished() {
		return errAlreadyEnded
	}
	if txn.Config.HighSecurity {
		attrs = nil
	}
	txn.TxnData.NoticeError(internal.ErrorCandidate{
		Kind:       internal.ErrorKindAPI,
		Class:      errorClass(err),
		Message:    err.Error(),
		Stack:      errorStackTrace(err, 2),
		Attributes: attrs,
		When:       txn.app.now(),
	})
	return nil
}

func (txn *txn) noticeLevelError(levelName, message string) error {
	level, ok := internal.ErrorLevelFromString(levelName)
	if !ok {
		return errUnknownLevel
	}

	txn.Lock()
	defer txn.Unlock()

	if txn.Finished() {
		return errAlreadyEnded
	}
	txn.TxnData.NoticeError(internal.ErrorCandidate{
		Kind:    internal.ErrorKindLevel,
		Level:   level,
		Class:   level.String(),
		Message: message,
		Stack:   internal.GetStackTrace(2),
		When:    txn.app.now(),
	})
	return nil
}

func (txn *txn) addAttribute(key string, val interface{}) error {
	txn.Lock()
	defer txn.Unlock()
	return txn.AddUserAttribute(key, val)
}

func (txn *txn) recordMetric(name string, value float64) error {
	txn.Lock()
	defer txn.Unlock()
	if txn.Finished() {
		return errAlreadyEnded
	}
	txn.RecordMetric(customMetricName(name), value)
	return nil
}

func requestHost(r WebRequest) string {
	if "" != r.Host {
		return r.Host
	}
	if nil != r.URL && "" != r.URL.Host {
		return r.URL.Host
	}
	return r.Header.Get("Host")
}

func (txn *txn) setWebRequest(r WebRequest) error {
	txn.Lock()
	defer txn.Unlock()

	if txn.Finished() {
		return errAlreadyEnded
	}
	txn.SetWeb()
	if nil != r.URL {
		txn.AddAgentAttribute(internal.AttributeRequestURI, internal.SafeURL(r.URL))
	}
	if "" != r.Method {
		txn.AddAgentAttribute(internal.AttributeRequestMethod, r.Method)
	}
	if host := requestHost(r); "" != host {
		txn.AddAgentAttribute(internal.AttributeRequestHost, host)
	}
	if nil == r.Header {
		return nil
	}
	if accept := r.Header.Get("Accept"); "" != accept {
		txn.AddAgentAttribute(internal.AttributeRequestAccept, accept)
	}
	txn.AcceptQueueHeaders(r.Header)
	txn.AcceptSyntheticsHeader(r.Header.Get(cat.NewRelicSyntheticsName))

	// A failed accept is recorded in supportability metrics and the
	// transaction continues as the start of a new trace.
	txn.TxnData.AcceptDistributedTraceHeaders(string(r.Transport.orDefault()), r.Header)
	return nil
}

func (txn *txn) setResponseCode(code int) error {
	txn.Lock()
	defer txn.Unlock()
	if txn.Finished() {
		return errAlreadyEnded
	}
	txn.AddAgentAttribute(internal.AttributeResponseCode, code)
	return nil
}

func (txn *txn) acceptDistributedTraceHeaders(t TransportType, hdrs http.Header) error {
	txn.Lock()
	defer txn.Unlock()
	return txn.TxnData.AcceptDistributedTraceHeaders(string(t.orDefault()), hdrs)
}

func (txn *txn) insertDistributedTraceHeaders(hdrs http.Header) error {
	txn.Lock()
	defer txn.Unlock()
	return txn.CreateOutboundHeaders(hdrs, txn.app.now())
}

func (txn *txn) isSampled() bool {
	txn.Lock()
	defer txn.Unlock()
	return txn.BetterCAT.Sampled
}

func (txn *txn) traceMetadata() TraceMetadata {
	txn.Lock()
	defer txn.Unlock()
	if !txn.Config.DistributedTracingEnabled {
		return TraceMetadata{}
	}
	return TraceMetadata{
		TraceID: txn.BetterCAT.TraceID,
		SpanID:  txn.ActiveSpanID(),
	}
}

// startSegment pushes a frame.  Only segments named through
// Transaction.StartSegment are explicit.
func (txn *txn) startSegment(name string, kind internal.SegmentKind, explicit bool) SegmentStartTime {
	txn.Lock()
	defer txn.Unlock()
	return SegmentStartTime{
		start: internal.StartSegment(txn.TxnData, txn.app.now(), kind, name, explicit),
		txn:   txn,
	}
}

func (txn *txn) endBasicSegment(s *Segment) error {
	txn.Lock()
	defer txn.Unlock()
	if txn.Finished() {
		return errAlreadyEnded
	}
	return internal.EndBasicSegment(txn.TxnData, s.StartTime.start, txn.app.now(), s.Name, s.attrs)
}

func (txn *txn) endDatastoreSegment(s *DatastoreSegment) error {
	txn.Lock()
	defer txn.Unlock()
	if txn.Finished() {
		return errAlreadyEnded
	}
	cfg := &txn.app.config.DatastoreTracer
	end := &internal.DatastoreSegmentEnd{
		Product:            string(s.Product),
		Collection:         s.Collection,
		Operation:          s.Operation,
		ParameterizedQuery: s.ParameterizedQuery,
	}
	if cfg.QueryParameters.Enabled && !txn.Config.HighSecurity {
		end.QueryParameters = s.QueryParameters
	}
	if cfg.InstanceReporting.Enabled {
		end.Host = s.Host
		end.PortPathOrID = s.PortPathOrID
	}
	if cfg.DatabaseNameReporting.Enabled {
		end.Database = s.DatabaseName
	}
	return internal.EndDatastoreSegment(txn.TxnData, s.StartTime.start, txn.app.now(), end, s.attrs)
}

func externalURL(s *ExternalSegment) (*url.URL, error) {
	if nil != s.Request && nil != s.Request.URL {
		return s.Request.URL, nil
	}
	if "" == s.URL {
		return nil, nil
	}
	return url.Parse(s.URL)
}

func (txn *txn) endExternalSegment(s *ExternalSegment) error {
	u, urlErr := externalURL(s)

	txn.Lock()
	defer txn.Unlock()
	if txn.Finished() {
		return errAlreadyEnded
	}
	end := &internal.ExternalSegmentEnd{
		URL:     u,
		Method:  s.method(),
		Library: s.library(),
	}
	if nil != s.statusCode {
		end.StatusCode = *s.statusCode
	} else if nil != s.Response {
		end.StatusCode = s.Response.StatusCode
	}
	if err := internal.EndExternalSegment(txn.TxnData, s.StartTime.start, txn.app.now(), end, s.attrs); nil != err {
		return err
	}
	return urlErr
}

func (txn *txn) endMessageSegment(s *MessageProducerSegment) error {
	txn.Lock()
	defer txn.Unlock()
	if txn.Finished() {
		return errAlreadyEnded
	}
	end := &internal.MessageSegmentEnd{
		MessageMetricKey: internal.MessageMetricKey{
			Library:         s.Library,
			DestinationType: string(s.DestinationType),
			DestinationName: s.DestinationName,
			DestinationTemp: s.DestinationTemp,
		},
		Host:         s.Host,
		PortPathOrID: s.PortPathOrID,
	}
	return internal.EndMessageSegment(txn.TxnData, s.StartTime.start, txn.app.now(), end, s.attrs)
}

func (txn *txn) logAPIError(err error, operation string) {
	if nil == err || errAlreadyEnded == err {
		return
	}
	txn.app.Warn("unable to "+operation, map[string]interface{}{
		"reason": err.Error(),
	})
}
