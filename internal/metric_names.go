// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package internal

import "strings"

const (
	apdexRollup = "Apdex"
	apdexPrefix = "Apdex/"

	webRollup        = "WebTransaction"
	backgroundRollup = "OtherTransaction/all"

	totalTimeWeb        = "WebTransactionTotalTime"
	totalTimeBackground = "OtherTransactionTotalTime"

	errorsPrefix = "Errors/"

	// "HttpDispatcher" metric is used for the overview graph, and
	// therefore should only be made for web transactions.
	dispatcherMetric = "HttpDispatcher"

	// WebMetricPrefix is prepended to web transaction names which do not
	// already carry a transaction prefix.
	WebMetricPrefix = "WebTransaction/Custom"
	// BackgroundMetricPrefix is prepended to background transaction names
	// which do not already carry a transaction prefix.
	BackgroundMetricPrefix = "OtherTransaction/Custom"

	customSegmentPrefix = "Custom/"

	// https://source.datanerd.us/agents/agent-specs/blob/master/Custom-Events-PORTED.md
	customEventsSeen = "Supportability/Events/Customer/Seen"
	customEventsSent = "Supportability/Events/Customer/Sent"

	// https://source.datanerd.us/agents/agent-specs/blob/master/Transaction-Events-PORTED.md
	txnEventsSeen = "Supportability/AnalyticsEvents/TotalEventsSeen"
	txnEventsSent = "Supportability/AnalyticsEvents/TotalEventsSent"

	// https://source.datanerd.us/agents/agent-specs/blob/master/Error-Events.md
	errorEventsSeen = "Supportability/Events/TransactionError/Seen"
	errorEventsSent = "Supportability/Events/TransactionError/Sent"

	// https://source.datanerd.us/agents/agent-specs/blob/master/Span-Events.md
	spanEventsSeen = "Supportability/SpanEvent/TotalEventsSeen"
	spanEventsSent = "Supportability/SpanEvent/TotalEventsSent"

	supportabilityDropped = "Supportability/MetricsDropped"

	// Distributed Tracing Supportability Metrics
	supportTracingAcceptSuccess          = "Supportability/DistributedTrace/AcceptPayload/Success"
	supportTracingAcceptException        = "Supportability/DistributedTrace/AcceptPayload/Exception"
	supportTracingAcceptParseException   = "Supportability/DistributedTrace/AcceptPayload/ParseException"
	supportTracingCreateBeforeAccept     = "Supportability/DistributedTrace/AcceptPayload/Ignored/CreateBeforeAccept"
	supportTracingIgnoredMultiple        = "Supportability/DistributedTrace/AcceptPayload/Ignored/Multiple"
	supportTracingIgnoredVersion         = "Supportability/DistributedTrace/AcceptPayload/Ignored/MajorVersion"
	supportTracingAcceptUntrustedAccount = "Supportability/DistributedTrace/AcceptPayload/Ignored/UntrustedAccount"
	supportTracingAcceptNull             = "Supportability/DistributedTrace/AcceptPayload/Ignored/Null"
	supportTracingCreatePayloadSuccess   = "Supportability/DistributedTrace/CreatePayload/Success"
	supportTracingCreatePayloadException = "Supportability/DistributedTrace/CreatePayload/Exception"

	// W3C Trace Context Supportability Metrics
	supportTraceContextAcceptSuccess     = "Supportability/TraceContext/Accept/Success"
	supportTraceContextAcceptException   = "Supportability/TraceContext/Accept/Exception"
	supportTraceContextCreateSuccess     = "Supportability/TraceContext/Create/Success"
	supportTraceContextStateNoNrEntry    = "Supportability/TraceContext/TraceState/NoNrEntry"
	supportTraceContextStateInvalidEntry = "Supportability/TraceContext/TraceState/InvalidNrEntry"
	supportTraceContextParentParseError  = "Supportability/TraceContext/TraceParent/Parse/Exception"
)

// DistributedTracingSupport is used to track distributed tracing activity for
// supportability metrics.
type DistributedTracingSupport struct {
	AcceptPayloadSuccess            bool // AcceptPayload was called successfully
	AcceptPayloadException          bool // AcceptPayload had a generic exception
	AcceptPayloadParseException     bool // AcceptPayload had a parsing exception
	AcceptPayloadCreateBeforeAccept bool // AcceptPayload was ignored because CreatePayload had already been called
	AcceptPayloadIgnoredMultiple    bool // AcceptPayload was ignored because AcceptPayload had already been called
	AcceptPayloadIgnoredVersion     bool // AcceptPayload was ignored because the payload's major version was greater than the agent's
	AcceptPayloadUntrustedAccount   bool // AcceptPayload was ignored because the payload was untrusted
	AcceptPayloadNullPayload        bool // AcceptPayload was ignored because the payload was nil
	CreatePayloadSuccess            bool // CreatePayload was called successfully
	CreatePayloadException          bool // CreatePayload had a generic exception
	TraceContextAcceptSuccess       bool // Trace Context accepted successfully
	TraceContextAcceptException     bool // Trace Context accept failed
	TraceContextCreateSuccess       bool // Trace Context created successfully
	TraceContextStateNoNrEntry      bool // tracestate had no trusted New Relic entry
	TraceContextStateInvalidEntry   bool // tracestate New Relic entry was malformed
	TraceContextParentParseError    bool // traceparent could not be parsed
}

func (dts DistributedTracingSupport) createMetrics(metrics *metricTable) {
	for _, m := range []struct {
		set  bool
		name string
	}{
		{dts.AcceptPayloadSuccess, supportTracingAcceptSuccess},
		{dts.AcceptPayloadException, supportTracingAcceptException},
		{dts.AcceptPayloadParseException, supportTracingAcceptParseException},
		{dts.AcceptPayloadCreateBeforeAccept, supportTracingCreateBeforeAccept},
		{dts.AcceptPayloadIgnoredMultiple, supportTracingIgnoredMultiple},
		{dts.AcceptPayloadIgnoredVersion, supportTracingIgnoredVersion},
		{dts.AcceptPayloadUntrustedAccount, supportTracingAcceptUntrustedAccount},
		{dts.AcceptPayloadNullPayload, supportTracingAcceptNull},
		{dts.CreatePayloadSuccess, supportTracingCreatePayloadSuccess},
		{dts.CreatePayloadException, supportTracingCreatePayloadException},
		{dts.TraceContextAcceptSuccess, supportTraceContextAcceptSuccess},
		{dts.TraceContextAcceptException, supportTraceContextAcceptException},
		{dts.TraceContextCreateSuccess, supportTraceContextCreateSuccess},
		{dts.TraceContextStateNoNrEntry, supportTraceContextStateNoNrEntry},
		{dts.TraceContextStateInvalidEntry, supportTraceContextStateInvalidEntry},
		{dts.TraceContextParentParseError, supportTraceContextParentParseError},
	} {
		if m.set {
			metrics.addSingleCount(m.name, forced)
		}
	}
}

type rollupMetric struct {
	all      string
	allWeb   string
	allOther string
}

func (r rollupMetric) webOrOther(isWeb bool) string {
	if isWeb {
		return r.allWeb
	}
	return r.allOther
}

func newRollupMetric(s string) rollupMetric {
	return rollupMetric{
		all:      s + "all",
		allWeb:   s + "allWeb",
		allOther: s + "allOther",
	}
}

var (
	errorsRollupMetric    = newRollupMetric("Errors/")
	externalRollupMetric  = newRollupMetric("External/")
	datastoreRollupMetric = newRollupMetric("Datastore/")
)

// customSegmentMetric names a basic segment.  Names which already carry a
// category prefix (for example "Custom/main" or "Supportability/x") are used
// verbatim.
func customSegmentMetric(s string) string {
	if strings.Contains(s, "/") {
		return s
	}
	return customSegmentPrefix + s
}

// DatastoreMetricKey contains the fields by which datastore metrics are
// aggregated.
type DatastoreMetricKey struct {
	Product      string
	Collection   string
	Operation    string
	Host         string
	PortPathOrID string
}

func datastoreProductMetric(key DatastoreMetricKey) rollupMetric {
	return newRollupMetric("Datastore/" + key.Product + "/")
}

// Datastore/operation/{datastore}/{operation}
func datastoreOperationMetric(key DatastoreMetricKey) string {
	return "Datastore/operation/" + key.Product +
		"/" + key.Operation
}

// Datastore/statement/{datastore}/{table}/{operation}
func datastoreStatementMetric(key DatastoreMetricKey) string {
	return "Datastore/statement/" + key.Product +
		"/" + key.Collection +
		"/" + key.Operation
}

// Datastore/instance/{datastore}/{host}/{port_path_or_id}
func datastoreInstanceMetric(key DatastoreMetricKey) string {
	return "Datastore/instance/" + key.Product +
		"/" + key.Host +
		"/" + key.PortPathOrID
}

// External/{host}/all
func externalHostMetric(host string) string {
	return "External/" + host + "/all"
}

// MessageMetricKey is the key to use for message segments.
type MessageMetricKey struct {
	Library         string
	DestinationType string
	Consumer        bool
	DestinationName string
	DestinationTemp bool
}

// Name returns the metric name value for this MessageMetricKey to be used for
// scoped and unscoped metrics.
//
// Producers
// MessageBroker/{Library}/{Destination Type}/{Action}/Named/{Destination Name}
// MessageBroker/{Library}/{Destination Type}/{Action}/Temp
//
// Consumers
// MessageBroker/{Library}/{Destination Type}/Consume/Named/{Destination Name}
// MessageBroker/{Library}/{Destination Type}/Consume/Temp
func (key MessageMetricKey) Name() string {
	var destination string
	if key.DestinationTemp {
		destination = "Temp"
	} else if key.DestinationName == "" {
		destination = "Named/Unknown"
	} else {
		destination = "Named/" + key.DestinationName
	}

	if key.Consumer {
		return "MessageBroker/" + key.Library +
			"/" + key.DestinationType +
			"/Consume/" + destination
	}
	return "MessageBroker/" + key.Library +
		"/" + key.DestinationType +
		"/Produce/" + destination
}

func messageRollupMetric(library string) string {
	return "MessageBroker/" + library + "/all"
}

var callerUnknown = payloadCaller{Type: "Unknown", App: "Unknown", Account: "Unknown", TransportType: "Unknown"}

func callerMetric(prefix string, caller payloadCaller) rollupMetric {
	return newRollupMetric(prefix +
		caller.Type + "/" +
		caller.Account + "/" +
		caller.App + "/" +
		caller.TransportType + "/")
}

// DurationByCaller/{type}/{account}/{app}/{transport}/*
func durationByCallerMetric(caller payloadCaller) rollupMetric {
	return callerMetric("DurationByCaller/", caller)
}

// ErrorsByCaller/{type}/{account}/{app}/{transport}/*
func errorsByCallerMetric(caller payloadCaller) rollupMetric {
	return callerMetric("ErrorsByCaller/", caller)
}

// TransportDuration/{type}/{account}/{app}/{transport}/*
func transportDurationMetric(caller payloadCaller) rollupMetric {
	return callerMetric("TransportDuration/", caller)
}

// IntermediaryTransportDuration/{type}/{account}/{app}/{transport}/{intermediary}/*
func intermediaryMetric(caller payloadCaller, name string) rollupMetric {
	return newRollupMetric("IntermediaryTransportDuration/" +
		caller.Type + "/" +
		caller.Account + "/" +
		caller.App + "/" +
		caller.TransportType + "/" +
		name + "/")
}
