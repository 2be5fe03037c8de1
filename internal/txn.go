// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package internal

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/newrelic/go-agent-core/internal/cat"
	"github.com/newrelic/go-agent-core/internal/logger"
)

// IDSource generates distributed tracing identifiers and supplies the
// randomness used for sampling.  *TraceIDGenerator implements it.
type IDSource interface {
	RandomSource
	GenerateTraceID() string
	GenerateSpanID() string
}

// Sampler decides whether a transaction is sampled.  *AdaptiveSampler
// implements it.
type Sampler interface {
	ComputeSampled(priority float32, now time.Time) bool
}

// TxnInput contains the values needed to start a transaction.
type TxnInput struct {
	Config  TxnConfig
	Name    string
	IsWeb   bool
	Start   time.Time
	IDs     IDSource
	Sampler Sampler
	Logger  logger.Logger
}

// TxnData contains the recorded data of a transaction.  It is not safe for
// concurrent use: callers hold the transaction's lock.
type TxnData struct {
	Config TxnConfig
	IsWeb  bool
	// Name is the work in progress name.
	Name string
	Stop time.Time
	// Exclusive is the transaction duration not spent in segments.
	Exclusive time.Duration

	TxnEvent
	Tracer

	Errors ErrorRecorder
	// These supportability fields are kept outside of BetterCAT to
	// minimize the size of transaction event memory.
	DistributedTracingSupport

	metrics  *metricTable
	ids      IDSource
	sampler  Sampler
	logger   logger.Logger
	finished bool
	ignore   bool

	rootSpanID       string
	rootSpan         *SpanEvent
	rootErrorClass   string
	rootErrorMessage string

	sampledDecided   bool
	createdPayload   bool
	syntheticsHeader string
}

// ErrTxnFinished is returned by operations on an ended transaction.
var ErrTxnFinished = errors.New("transaction has already ended")

var (
	errHighSecurityEnabled = errors.New("high security enabled")
	errAlreadyAccepted     = errors.New("AcceptDistributedTraceHeaders has already been called")
	errCreatedBeforeAccept = errors.New("outbound headers were created before inbound headers were accepted")
	errUntrustedAccount    = errors.New("trusted account key does not match")
	errMissingAccountInfo  = errors.New("account or application id is missing")
)

// NewTxnData starts a transaction.  The root span is created at once so that
// it is the first span offered to the reservoir.
func NewTxnData(in TxnInput) *TxnData {
	t := &TxnData{
		Config:  in.Config,
		IsWeb:   in.IsWeb,
		Name:    in.Name,
		ids:     in.IDs,
		sampler: in.Sampler,
		logger:  in.Logger,
		metrics: newMetricTable(maxMetrics, in.Start),
	}
	if nil == t.logger {
		t.logger = logger.ShimLogger{}
	}
	t.Start = in.Start
	t.Attrs = NewAttributes(in.Config.Attributes)
	t.trace.init(in.Start, in.Config.maxNodes(in.IsWeb))

	t.BetterCAT.Enabled = in.Config.DistributedTracingEnabled
	t.BetterCAT.Priority = NewPriority(in.IDs)
	t.BetterCAT.SetTraceAndTxnIDs(in.IDs.GenerateTraceID())

	if in.Config.DistributedTracingEnabled {
		t.rootSpanID = in.IDs.GenerateSpanID()
	}
	if in.Config.spansEnabled() {
		t.spans = newSpanReservoir(SpanSamplesStored(in.Config.SpanSamplesStored), in.IDs)
		t.rootSpan = &SpanEvent{
			GUID:         t.rootSpanID,
			Timestamp:    in.Start,
			Category:     spanCategoryGeneric,
			IsEntrypoint: true,
		}
		t.spans.offer(t.rootSpan)
	}
	return t
}

// Finished reports whether End has been called.
func (t *TxnData) Finished() bool { return t.finished }

// Ignored reports whether Ignore has been called.
func (t *TxnData) Ignored() bool { return t.ignore }

// SetName changes the transaction name.
func (t *TxnData) SetName(name string) error {
	if t.finished {
		return ErrTxnFinished
	}
	t.Name = name
	return nil
}

// Ignore prevents the transaction's data from being recorded.
func (t *TxnData) Ignore() error {
	if t.finished {
		return ErrTxnFinished
	}
	t.ignore = true
	return nil
}

// SetWeb marks the transaction as a web transaction.  Segments admitted
// afterwards are limited by the web segment limit.
func (t *TxnData) SetWeb() {
	if t.finished || t.IsWeb {
		return
	}
	t.IsWeb = true
	t.trace.maxNodes = t.Config.maxNodes(true)
}

// AddUserAttribute adds a custom attribute to the transaction.
func (t *TxnData) AddUserAttribute(key string, val interface{}) error {
	if t.finished {
		return ErrTxnFinished
	}
	if t.Config.HighSecurity {
		return errHighSecurityEnabled
	}
	return AddUserAttribute(t.Attrs, key, val, DestAll)
}

// AddAgentAttribute records an attribute collected by the agent.
func (t *TxnData) AddAgentAttribute(key string, val interface{}) {
	if t.finished {
		return
	}
	t.Attrs.addAgent(key, val, DestAll)
}

// RecordMetric records a custom metric value in the transaction's table.
func (t *TxnData) RecordMetric(name string, value float64) {
	if t.finished {
		return
	}
	t.metrics.addValue(name, "", value, forced)
}

// FinalName returns the full metric name of a transaction name.  Names which
// already start with a transaction prefix are used verbatim.
func FinalName(name string, isWeb bool) string {
	if strings.HasPrefix(name, webRollup+"/") || strings.HasPrefix(name, "OtherTransaction/") {
		return name
	}
	prefix := BackgroundMetricPrefix
	if isWeb {
		prefix = WebMetricPrefix
	}
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	return prefix + name
}

// ActiveSpanID returns the span guid of the innermost open segment, or the
// root span guid when no segment is open.
func (t *TxnData) ActiveSpanID() string {
	if f := t.activeFrame(); nil != f {
		return f.spanID
	}
	return t.rootSpanID
}

// NoticeError offers an error to the transaction's recorder.  It returns
// true if the error is now the transaction's error.
func (t *TxnData) NoticeError(c ErrorCandidate) bool {
	if t.finished || t.ignore {
		return false
	}
	c.SpanID = t.ActiveSpanID()
	if c.When.IsZero() {
		c.When = time.Now()
	}
	cfg := ErrorRecorderConfig{
		Enabled:             t.Config.ErrorCollectorEnabled,
		HighSecurity:        t.Config.HighSecurity,
		PrioritizeAPIErrors: t.Config.PrioritizeAPIErrors,
	}
	if !t.Errors.Consider(cfg, c) {
		return false
	}
	held := t.Errors.Finalize()
	if f := t.activeFrame(); nil != f {
		f.errorClass = held.Class
		f.errorMessage = held.Message
	} else {
		t.rootErrorClass = held.Class
		t.rootErrorMessage = held.Message
	}
	return true
}

// decideSampled settles the sampling decision once.  A sampled transaction
// has its priority raised above every unsampled one.
func (t *TxnData) decideSampled(now time.Time) {
	if t.sampledDecided || !t.BetterCAT.Enabled {
		return
	}
	t.sampledDecided = true
	if nil != t.sampler {
		t.BetterCAT.Sampled = t.sampler.ComputeSampled(t.BetterCAT.Priority.Float32(), now)
	}
	if t.BetterCAT.Sampled {
		t.BetterCAT.Priority = t.BetterCAT.Priority.sampledBoost()
	}
}

var validTransportTypes = map[string]struct{}{
	"Unknown": {}, "HTTP": {}, "HTTPS": {}, "Kafka": {}, "JMS": {},
	"IronMQ": {}, "AMQP": {}, "Queue": {}, "Other": {},
}

// AcceptDistributedTraceHeaders links the transaction to the inbound trace
// context of hdrs.  Failures are counted in supportability metrics and the
// transaction continues as the start of a new trace.
func (t *TxnData) AcceptDistributedTraceHeaders(transport string, hdrs http.Header) error {
	if t.finished {
		return ErrTxnFinished
	}
	if !t.Config.DistributedTracingEnabled {
		return nil
	}
	if nil != t.BetterCAT.Inbound {
		t.AcceptPayloadIgnoredMultiple = true
		return errAlreadyAccepted
	}
	if t.createdPayload {
		t.AcceptPayloadCreateBeforeAccept = true
		return errCreatedBeforeAccept
	}
	if 0 == len(hdrs) {
		t.AcceptPayloadNullPayload = true
		return nil
	}

	hasTraceParent := "" != hdrs.Get(DistributedTraceW3CTraceParentHeader)
	p, err := AcceptPayload(hdrs, t.Config.TrustedAccountKey)
	if nil != err {
		switch err.(type) {
		case ErrUnsupportedPayloadVersion:
			t.AcceptPayloadIgnoredVersion = true
		case ErrPayloadParse, ErrPayloadMissingField:
			t.AcceptPayloadParseException = true
		default:
			t.AcceptPayloadException = true
		}
		if hasTraceParent {
			t.TraceContextParentParseError = true
		}
		t.logger.Debug("unable to accept trace payload", map[string]interface{}{
			"reason": err.Error(),
		})
		return err
	}
	if nil == p {
		t.AcceptPayloadNullPayload = true
		return nil
	}

	if hasTraceParent && !p.HasNewRelicTraceInfo {
		t.TraceContextStateNoNrEntry = true
	}
	if p.HasNewRelicTraceInfo {
		key := p.TrustedAccountKey
		if "" == key {
			key = p.Account
		}
		if key != t.Config.TrustedAccountKey {
			t.AcceptPayloadUntrustedAccount = true
			return errUntrustedAccount
		}
	}

	if _, ok := validTransportTypes[transport]; !ok {
		transport = "Unknown"
	}
	p.TransportType = transport

	if ts := p.Timestamp.Time(); !ts.IsZero() && t.Start.After(ts) {
		p.TransportDuration = t.Start.Sub(ts)
	}

	t.BetterCAT.Inbound = p
	t.BetterCAT.TraceID = p.TracedID
	if nil != p.Sampled {
		t.BetterCAT.Sampled = *p.Sampled
		t.BetterCAT.Priority = p.Priority
		t.sampledDecided = true
	}

	if nil != t.rootSpan {
		t.rootSpan.ParentID = p.ID
		t.rootSpan.TrustedParentID = p.TrustedParentID
		t.rootSpan.TracingVendors = p.TracingVendors
	}

	t.AcceptPayloadSuccess = true
	if hasTraceParent {
		t.TraceContextAcceptSuccess = true
	}
	return nil
}

// AcceptQueueHeaders records the time the request spent queued in front end
// proxies, taken from X-Queue-Start, X-Request-Start and
// X-Newrelic-Timestamp-* headers.
func (t *TxnData) AcceptQueueHeaders(hdrs http.Header) {
	if t.finished || !t.IsWeb {
		return
	}
	t.Queuing = NewQueuing(hdrs, t.Start)
}

// AcceptSyntheticsHeader records an inbound X-NewRelic-Synthetics header.
// The raw value is forwarded on outbound requests.
func (t *TxnData) AcceptSyntheticsHeader(value string) {
	if t.finished || "" == value {
		return
	}
	t.syntheticsHeader = value
	if "" == t.Config.EncodingKey {
		return
	}
	h, err := cat.DecodeSyntheticsHeader(value, t.Config.EncodingKey, t.Config.TrustedAccounts)
	if nil != err {
		t.logger.Debug("unable to decode synthetics header", map[string]interface{}{
			"reason": err.Error(),
		})
		return
	}
	t.SyntheticsResourceID = h.ResourceID
}

// CreateOutboundHeaders writes the headers which propagate the trace to a
// downstream service.
func (t *TxnData) CreateOutboundHeaders(hdrs http.Header, now time.Time) error {
	if t.finished {
		return ErrTxnFinished
	}
	if "" != t.syntheticsHeader {
		hdrs.Set(cat.NewRelicSyntheticsName, t.syntheticsHeader)
	}
	if t.Config.CrossApplicationTracer && "" != t.Config.CrossProcessID && "" != t.Config.EncodingKey {
		id, txnData, err := cat.EncodeTxnHeaders(t.Config.CrossProcessID, &cat.TxnDataHeader{
			GUID:   t.BetterCAT.TxnID,
			TripID: t.BetterCAT.TraceID,
		}, t.Config.EncodingKey)
		if nil == err {
			hdrs.Set(cat.NewRelicIDName, id)
			hdrs.Set(cat.NewRelicTxnName, txnData)
		}
	}
	if !t.Config.DistributedTracingEnabled {
		return nil
	}

	t.createdPayload = true
	if "" == t.Config.AccountID || "" == t.Config.PrimaryAppID {
		t.CreatePayloadException = true
		return errMissingAccountInfo
	}
	t.decideSampled(now)

	p := Payload{
		payloadCaller: payloadCaller{
			Type:    CallerTypeApp,
			Account: t.Config.AccountID,
			App:     t.Config.PrimaryAppID,
		},
		ID:                t.ActiveSpanID(),
		TransactionID:     t.BetterCAT.TxnID,
		TracedID:          t.BetterCAT.TraceID,
		Priority:          t.BetterCAT.Priority,
		TrustedAccountKey: t.Config.TrustedAccountKey,
	}
	p.SetSampled(t.BetterCAT.Sampled)
	p.Timestamp.Set(now)
	if in := t.BetterCAT.Inbound; nil != in {
		p.NonTrustedTraceState = in.NonTrustedTraceState
	}

	hdrs.Set(DistributedTraceW3CTraceParentHeader, p.W3CTraceParent())
	hdrs.Set(DistributedTraceW3CTraceStateHeader, p.W3CTraceState())
	if !t.Config.ExcludeNewRelicHeader {
		hdrs.Set(DistributedTraceNewRelicHeader, p.NRHTTPSafe())
	}
	t.CreatePayloadSuccess = true
	t.TraceContextCreateSuccess = true
	return nil
}

// End closes every open segment and finalizes the transaction.  Afterwards
// the transaction is frozen.
func (t *TxnData) End(now time.Time) error {
	if t.finished {
		return ErrTxnFinished
	}
	EndAll(t, now)

	t.Stop = now
	if now.After(t.Start) {
		t.Duration = now.Sub(t.Start)
	}
	t.TotalTime = t.Duration
	if children := TracerRootChildren(&t.Tracer); t.Duration > children {
		t.Exclusive = t.Duration - children
	}
	t.FinalName = FinalName(t.Name, t.IsWeb)
	t.HasError = nil != t.Errors.Finalize()
	if t.IsWeb {
		t.Zone = apdexZoneFor(t.Config.ApdexThreshold, t.Duration, t.HasError)
	}
	t.decideSampled(now)
	t.finishRootSpan()
	t.stampSpans()
	t.finished = true
	return nil
}

func (t *TxnData) finishRootSpan() {
	evt := t.rootSpan
	if nil == evt {
		return
	}
	evt.Name = t.FinalName
	evt.Duration = t.Duration
	if t.IsWeb {
		evt.Kind = "server"
	}
	if in := t.BetterCAT.Inbound; nil != in && in.HasNewRelicTraceInfo {
		evt.addAgent(SpanAttributeParentType, in.Type)
		evt.addAgent(SpanAttributeParentApp, in.App)
		evt.addAgent(SpanAttributeParentAccount, in.Account)
		evt.addAgent(SpanAttributeParentTransport, in.TransportType)
		evt.addAgent(SpanAttributeParentTransportDur, in.TransportDuration.Seconds())
	}
	for _, key := range t.Attrs.Agent.keys {
		if v := t.Attrs.Agent.values[key]; destNone != v.destinations&destSpan {
			evt.AgentAttributes.set(key, v)
		}
	}
	for _, key := range t.Attrs.User.keys {
		if v := t.Attrs.User.values[key]; destNone != v.destinations&destSpan {
			evt.UserAttributes.set(key, v)
		}
	}
	if "" != t.rootErrorClass {
		evt.addAgent(SpanAttributeErrorClass, t.rootErrorClass)
		evt.addAgent(SpanAttributeErrorMessage, t.rootErrorMessage)
	}
}

// stampSpans copies the transaction level identity onto every retained span.
func (t *TxnData) stampSpans() {
	_, _, events := t.spans.harvest()
	for _, e := range events {
		e.TraceID = t.BetterCAT.TraceID
		e.TransactionID = t.BetterCAT.TxnID
		e.Priority = t.BetterCAT.Priority
		e.Sampled = t.BetterCAT.Sampled
	}
}

// SpanEvents returns the spans retained by the transaction's reservoir.
func (t *TxnData) SpanEvents() []*SpanEvent {
	_, _, events := t.spans.harvest()
	return events
}

// Metrics returns the transaction's own metrics in first-seen order.
// Scoped metrics carry a placeholder scope until merged into a harvest.
func (t *TxnData) Metrics() []Metric {
	return t.metrics.snapshot()
}

// traceIntrinsics returns the intrinsics shared by traces and traced errors.
func (t *TxnData) traceIntrinsics() orderedAttributes {
	var oa orderedAttributes
	add := func(key string, val interface{}) {
		oa.set(key, attributeValue{value: val, destinations: destTxnTrace | destError})
	}
	add("totalTime", t.TotalTime.Seconds())
	if t.BetterCAT.Enabled {
		add("guid", t.BetterCAT.TxnID)
		add("traceId", t.BetterCAT.TraceID)
		add("priority", t.BetterCAT.Priority.Float32())
		add("sampled", t.BetterCAT.Sampled)
	}
	if "" != t.SyntheticsResourceID {
		add("synthetics_resource_id", t.SyntheticsResourceID)
	}
	return oa
}

func (t *TxnData) requestURI() string {
	if v, ok := t.Attrs.Agent.get(AttributeRequestURI); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// MergeIntoHarvest implements Harvestable.  Ignored and unfinished
// transactions record nothing.
func (t *TxnData) MergeIntoHarvest(h *Harvest) {
	if !t.finished || t.ignore {
		return
	}

	CreateTxnMetrics(t, h.Metrics)
	h.Metrics.merge(t.metrics, t.FinalName)

	priority := t.BetterCAT.Priority
	if t.Config.TxnEventsEnabled {
		h.TxnEvents.AddTxnEvent(&t.TxnEvent, priority)
	}

	if held := t.Errors.Finalize(); nil != held {
		if t.Config.ErrorCollectorEnabled {
			h.ErrorTraces.add(&harvestError{
				ErrorRecord: *held,
				txnName:     t.FinalName,
				txnGUID:     t.BetterCAT.TxnID,
				requestURI:  t.requestURI(),
				attrs:       t.Attrs,
				intrinsics:  t.traceIntrinsics(),
			})
		}
		if t.Config.ErrorEventsEnabled {
			h.ErrorEvents.Add(&errorEvent{record: held, txn: &t.TxnEvent}, priority)
		}
	}

	synthetics := "" != t.SyntheticsResourceID
	if t.Config.TraceEnabled && (synthetics || t.Duration >= t.Config.traceThreshold()) {
		h.TxnTraces.Witness(&HarvestTrace{
			Start:                t.Start,
			Duration:             t.Duration,
			FinalName:            t.FinalName,
			CleanURL:             t.requestURI(),
			GUID:                 t.BetterCAT.TxnID,
			ForcePersist:         synthetics,
			SyntheticsResourceID: t.SyntheticsResourceID,
			trace:                &t.trace,
			intrinsics:           t.traceIntrinsics(),
			attrs:                t.Attrs,
		})
	}

	if nil != t.spans && t.BetterCAT.Sampled {
		for _, e := range t.SpanEvents() {
			h.SpanEvents.addEventPopulated(e)
		}
	}
}
