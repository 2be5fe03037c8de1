// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package newrelic

import (
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/newrelic/go-agent-core/datastore"
	"github.com/newrelic/go-agent-core/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// spanNamed returns the span event of an ended transaction with the given
// name.
func spanNamed(t *testing.T, txn *Transaction, name string) *internal.SpanEvent {
	t.Helper()
	for _, evt := range txn.txn.SpanEvents() {
		if evt.Name == name {
			return evt
		}
	}
	t.Fatalf("no span named %q", name)
	return nil
}

func TestSegmentBasic(t *testing.T) {
	app := testApp(t)
	txn := app.StartTransaction("hello")
	s := txn.StartSegment("work")
	s.AddAttribute("user", "ann")
	app.clock.Advance(time.Second)
	s.End()
	txn.End()

	app.ExpectMetricsPresent(t, []internal.WantMetric{
		{Name: "Custom/work", Scope: "", Forced: false, Data: []float64{1, 1, 1, 1, 1, 1}},
		{Name: "Custom/work", Scope: helloName, Forced: false, Data: []float64{1, 1, 1, 1, 1, 1}},
	})
	internal.ExpectSpanEventList(t, []*internal.SpanEvent{spanNamed(t, txn, "Custom/work")}, []internal.WantEvent{{
		UserAttributes:  map[string]interface{}{"user": "ann"},
		AgentAttributes: map[string]interface{}{},
	}})
}

func TestSegmentNameWithSlashKept(t *testing.T) {
	app := testApp(t)
	txn := app.StartTransaction("hello")
	StartSegment(txn, "Go/cache/refresh").End()
	txn.End()
	app.ExpectMetricsPresent(t, []internal.WantMetric{
		{Name: "Go/cache/refresh", Scope: helloName, Forced: false, Data: nil},
	})
}

func TestSegmentStartSegmentNow(t *testing.T) {
	app := testApp(t)
	txn := app.StartTransaction("hello")
	s := Segment{StartTime: StartSegmentNow(txn), Name: "manual"}
	app.clock.Advance(time.Second)
	s.End()
	txn.End()
	app.ExpectMetricsPresent(t, []internal.WantMetric{
		{Name: "Custom/manual", Scope: helloName, Forced: false, Data: []float64{1, 1, 1, 1, 1, 1}},
	})
}

func TestSegmentInvalidAttribute(t *testing.T) {
	app := testApp(t)
	txn := app.StartTransaction("hello")
	s := txn.StartSegment("work")
	s.AddAttribute("bad", struct{}{})
	s.End()
	txn.End()
	assert.Contains(t, app.logger.messages("warn"), "unable to add segment attribute")
}

func TestSegmentNestingExclusiveTime(t *testing.T) {
	app := testApp(t)
	txn := app.StartTransaction("hello")
	outer := txn.StartSegment("outer")
	app.clock.Advance(time.Second)
	inner := txn.StartSegment("inner")
	app.clock.Advance(2 * time.Second)
	inner.End()
	outer.End()
	txn.End()

	app.ExpectMetricsPresent(t, []internal.WantMetric{
		{Name: "Custom/outer", Scope: helloName, Forced: false, Data: []float64{1, 3, 1, 3, 3, 9}},
		{Name: "Custom/inner", Scope: helloName, Forced: false, Data: []float64{1, 2, 2, 2, 2, 4}},
		{Name: helloName, Scope: "", Forced: true, Data: []float64{1, 3, 0, 3, 3, 9}},
	})
}

func TestSegmentEndingParentClosesChildren(t *testing.T) {
	app := testApp(t)
	txn := app.StartTransaction("hello")
	outer := txn.StartSegment("outer")
	txn.StartDatastoreSegment(datastore.MySQL, "users", "SELECT")
	app.clock.Advance(time.Second)
	outer.End()
	txn.End()

	// The abandoned datastore segment is closed as a datastore call.
	app.ExpectMetricsPresent(t, []internal.WantMetric{
		{Name: "Custom/outer", Scope: helloName, Forced: false, Data: nil},
		{Name: "Datastore/all", Scope: "", Forced: true, Data: nil},
	})
}

func TestSegmentEndedTwice(t *testing.T) {
	app := testApp(t)
	txn := app.StartTransaction("hello")
	s := txn.StartSegment("work")
	s.End()
	s.End()
	txn.End()
	assert.Contains(t, app.logger.messages("warn"), "unable to end segment")
	app.ExpectMetricsPresent(t, []internal.WantMetric{
		{Name: "Custom/work", Scope: "", Forced: false, Data: []float64{1, 0, 0, 0, 0, 0}},
	})
}

func TestSegmentEndedAfterTransaction(t *testing.T) {
	app := testApp(t)
	txn := app.StartTransaction("hello")
	s := txn.StartSegment("work")
	app.clock.Advance(time.Second)
	txn.End()
	app.clock.Advance(time.Second)
	s.End()

	// The transaction closed the segment when it ended.
	app.ExpectMetricsPresent(t, []internal.WantMetric{
		{Name: "Custom/work", Scope: helloName, Forced: false, Data: []float64{1, 1, 1, 1, 1, 1}},
	})
	assert.Empty(t, app.logger.messages("warn"))
}

func TestDatastoreSegment(t *testing.T) {
	app := testApp(t)
	txn := app.StartTransaction("hello")
	s := DatastoreSegment{
		StartTime:          txn.StartSegmentNow(),
		Product:            datastore.Postgres,
		ParameterizedQuery: "SELECT * FROM users WHERE id = $1",
		QueryParameters:    map[string]interface{}{"id": 1},
		Host:               "db.local",
		PortPathOrID:       "5432",
		DatabaseName:       "app",
	}
	app.clock.Advance(time.Second)
	s.End()
	txn.End()

	app.ExpectMetricsPresent(t, []internal.WantMetric{
		{Name: "Datastore/all", Scope: "", Forced: true, Data: []float64{1, 1, 1, 1, 1, 1}},
		{Name: "Datastore/allOther", Scope: "", Forced: true, Data: nil},
		{Name: "Datastore/Postgres/all", Scope: "", Forced: true, Data: nil},
		{Name: "Datastore/Postgres/allOther", Scope: "", Forced: true, Data: nil},
		{Name: "Datastore/operation/Postgres/select", Scope: "", Forced: false, Data: nil},
		{Name: "Datastore/statement/Postgres/users/select", Scope: "", Forced: false, Data: nil},
		{Name: "Datastore/statement/Postgres/users/select", Scope: helloName, Forced: false, Data: nil},
		{Name: "Datastore/instance/Postgres/db.local/5432", Scope: "", Forced: false, Data: nil},
	})
	internal.ExpectSpanEventList(t, []*internal.SpanEvent{
		spanNamed(t, txn, "Datastore/statement/Postgres/users/select"),
	}, []internal.WantEvent{{
		AgentAttributes: map[string]interface{}{
			"db.statement":   "SELECT * FROM users WHERE id = $1",
			"db.instance":    "app",
			"db.collection":  "users",
			"peer.address":   "db.local:5432",
			"peer.hostname":  "db.local",
			"server.address": "db.local",
			"server.port":    5432,
		},
	}})
	app.ExpectTxnEvents(t, []internal.WantEvent{{
		Intrinsics: map[string]interface{}{
			"type":              "Transaction",
			"name":              helloName,
			"timestamp":         internal.MatchAnything,
			"error":             false,
			"duration":          1,
			"totalTime":         1,
			"guid":              internal.MatchAnything,
			"traceId":           internal.MatchAnything,
			"priority":          internal.MatchAnything,
			"sampled":           true,
			"databaseCallCount": 1,
			"databaseDuration":  1,
		},
	}})
}

func TestDatastoreSegmentInstanceReportingDisabled(t *testing.T) {
	app := testApp(t, func(cfg *Config) {
		cfg.DatastoreTracer.InstanceReporting.Enabled = false
		cfg.DatastoreTracer.DatabaseNameReporting.Enabled = false
	})
	txn := app.StartTransaction("hello")
	s := txn.StartDatastoreSegment(datastore.MySQL, "users", "INSERT")
	s.Host = "db.local"
	s.DatabaseName = "app"
	s.End()
	txn.End()

	internal.ExpectSpanEventList(t, []*internal.SpanEvent{
		spanNamed(t, txn, "Datastore/statement/MySQL/users/INSERT"),
	}, []internal.WantEvent{{
		AgentAttributes: map[string]interface{}{
			"db.statement":  "'INSERT' on 'users' using 'MySQL'",
			"db.collection": "users",
		},
	}})
}

func TestDatastoreSegmentMissingFields(t *testing.T) {
	app := testApp(t)
	txn := app.StartTransaction("hello")
	txn.StartDatastoreSegment("", "", "").End()
	txn.End()
	app.ExpectMetricsPresent(t, []internal.WantMetric{
		{Name: "Datastore/Unknown/all", Scope: "", Forced: true, Data: nil},
		{Name: "Datastore/operation/Unknown/other", Scope: helloName, Forced: false, Data: nil},
	})
}

func TestExternalSegment(t *testing.T) {
	app := testApp(t)
	txn := app.StartTransaction("hello")
	req, err := http.NewRequest("POST", "http://example.com:8080/orders?id=1", nil)
	require.NoError(t, err)
	req.Header = nil

	s := StartExternalSegment(txn, req)
	require.NotNil(t, req.Header)
	assert.NotEmpty(t, req.Header.Get(internal.DistributedTraceW3CTraceParentHeader))

	app.clock.Advance(time.Second)
	s.Response = &http.Response{StatusCode: 201, Request: req}
	s.End()
	txn.End()

	app.ExpectMetricsPresent(t, []internal.WantMetric{
		{Name: "External/all", Scope: "", Forced: true, Data: []float64{1, 1, 1, 1, 1, 1}},
		{Name: "External/allOther", Scope: "", Forced: true, Data: nil},
		{Name: "External/example.com:8080/all", Scope: "", Forced: false, Data: nil},
		{Name: "External/example.com:8080/all", Scope: helloName, Forced: false, Data: nil},
	})
	internal.ExpectSpanEventList(t, []*internal.SpanEvent{
		spanNamed(t, txn, "External/example.com:8080/http/POST"),
	}, []internal.WantEvent{{
		AgentAttributes: map[string]interface{}{
			"http.url":        "http://example.com:8080/orders",
			"http.method":     "POST",
			"http.statusCode": 201,
			"server.address":  "example.com",
			"server.port":     8080,
		},
	}})
}

func TestExternalSegmentURLAndProcedure(t *testing.T) {
	app := testApp(t)
	txn := app.StartTransaction("hello")
	s := ExternalSegment{
		StartTime: txn.StartSegmentNow(),
		URL:       "grpc://inventory:443/Inventory/Reserve",
		Procedure: "Reserve",
		Library:   "grpc",
	}
	s.SetStatusCode(0)
	s.End()
	txn.End()

	app.ExpectMetricsPresent(t, []internal.WantMetric{
		{Name: "External/inventory:443/all", Scope: helloName, Forced: false, Data: nil},
	})
	spanNamed(t, txn, "External/inventory:443/grpc/Reserve")
}

func TestExternalSegmentBadURL(t *testing.T) {
	app := testApp(t)
	txn := app.StartTransaction("hello")
	s := ExternalSegment{StartTime: txn.StartSegmentNow(), URL: "http://bad host/"}
	s.End()
	txn.End()
	app.ExpectMetricsPresent(t, []internal.WantMetric{
		{Name: "External/unknown/all", Scope: helloName, Forced: false, Data: nil},
	})
	assert.Contains(t, app.logger.messages("warn"), "unable to end external segment")
}

func TestExternalSegmentFromContext(t *testing.T) {
	app := testApp(t)
	txn := app.StartTransaction("hello")
	req, err := http.NewRequest("GET", "http://example.com/", nil)
	require.NoError(t, err)
	req = RequestWithTransactionContext(req, txn)

	s := StartExternalSegment(nil, req)
	s.End()
	txn.End()
	app.ExpectMetricsPresent(t, []internal.WantMetric{
		{Name: "External/example.com/all", Scope: helloName, Forced: false, Data: nil},
	})
}

func TestExternalSegmentMethod(t *testing.T) {
	req, _ := http.NewRequest("PUT", "http://example.com", nil)
	assert.Equal(t, "GET", (&ExternalSegment{}).method())
	assert.Equal(t, "PUT", (&ExternalSegment{Request: req}).method())
	assert.Equal(t, "PUT", (&ExternalSegment{Response: &http.Response{Request: req}}).method())
	assert.Equal(t, "Call", (&ExternalSegment{Request: req, Procedure: "Call"}).method())
}

func TestMessageProducerSegment(t *testing.T) {
	app := testApp(t)
	txn := app.StartTransaction("hello")
	s := txn.StartMessageProducerSegment("RabbitMQ", MessageQueue, "orders")
	s.Host = "broker"
	s.PortPathOrID = "5672"
	app.clock.Advance(time.Second)
	s.End()
	txn.End()

	app.ExpectMetricsPresent(t, []internal.WantMetric{
		{Name: "MessageBroker/RabbitMQ/all", Scope: "", Forced: false, Data: []float64{1, 1, 1, 1, 1, 1}},
		{Name: "MessageBroker/RabbitMQ/Queue/Produce/Named/orders", Scope: "", Forced: false, Data: nil},
		{Name: "MessageBroker/RabbitMQ/Queue/Produce/Named/orders", Scope: helloName, Forced: false, Data: nil},
	})
	internal.ExpectSpanEventList(t, []*internal.SpanEvent{
		spanNamed(t, txn, "MessageBroker/RabbitMQ/Queue/Produce/Named/orders"),
	}, []internal.WantEvent{{
		AgentAttributes: map[string]interface{}{
			"message.destination.name": "orders",
			"server.address":           "broker",
			"server.port":              5672,
		},
	}})
}

func TestMessageProducerSegmentTemporary(t *testing.T) {
	app := testApp(t)
	txn := app.StartTransaction("hello")
	s := txn.StartMessageProducerSegment("Kafka", MessageTopic, "reply-8f2a")
	s.DestinationTemp = true
	s.End()
	txn.End()
	app.ExpectMetricsPresent(t, []internal.WantMetric{
		{Name: "MessageBroker/Kafka/Topic/Produce/Temp", Scope: helloName, Forced: false, Data: nil},
	})
}

func TestSegmentCodeLocation(t *testing.T) {
	app := testApp(t)
	txn := app.StartTransaction("hello")
	s := txn.StartSegment("work")
	loc := &CodeLocation{
		LineNo:    12,
		Function:  "Handle",
		FilePath:  "/src/app/handler.go",
		Namespace: "example.com/app.(*Handler)",
	}
	s.SetCodeLocation(loc)
	s.End()
	txn.End()

	internal.ExpectSpanEventList(t, []*internal.SpanEvent{spanNamed(t, txn, "Custom/work")}, []internal.WantEvent{{
		UserAttributes: map[string]interface{}{},
		AgentAttributes: map[string]interface{}{
			"code.function":  "Handle",
			"code.namespace": "example.com/app.(*Handler)",
			"code.filepath":  "/src/app/handler.go",
			"code.lineno":    12,
		},
	}})
}

func TestSegmentCodeLocationDisabled(t *testing.T) {
	app := testApp(t, func(cfg *Config) { cfg.CodeLevelMetrics.Enabled = false })
	txn := app.StartTransaction("hello")
	s := txn.StartSegment("work")
	s.SetCodeLocation(ThisCodeLocation())
	s.End()
	txn.End()

	internal.ExpectSpanEventList(t, []*internal.SpanEvent{spanNamed(t, txn, "Custom/work")}, []internal.WantEvent{{
		AgentAttributes: map[string]interface{}{},
	}})
}

func TestThisCodeLocation(t *testing.T) {
	loc := ThisCodeLocation()
	require.NotNil(t, loc)
	assert.Equal(t, "TestThisCodeLocation", loc.Function)
	assert.Equal(t, "github.com/newrelic/go-agent-core", loc.Namespace)
	assert.True(t, strings.HasSuffix(loc.FilePath, "segments_test.go"), loc.FilePath)
	assert.True(t, loc.LineNo > 0)

	var outer *CodeLocation
	func() { outer = ThisCodeLocation(1) }()
	assert.Equal(t, "TestThisCodeLocation", outer.Function)
}

func TestSplitFunctionName(t *testing.T) {
	for _, tc := range []struct {
		input, namespace, function string
	}{
		{"github.com/a/pkg.(*T).Method", "github.com/a/pkg.(*T)", "Method"},
		{"main.main", "main", "main"},
		{"github.com/a/pkg.Func.func1", "github.com/a/pkg.Func", "func1"},
		{"no_dots", "", "no_dots"},
		{"github.com/a.b/pkg", "", "github.com/a.b/pkg"},
	} {
		ns, fn := splitFunctionName(tc.input)
		assert.Equal(t, tc.namespace, ns, tc.input)
		assert.Equal(t, tc.function, fn, tc.input)
	}
}

func TestShortSegmentsDropped(t *testing.T) {
	app := testApp(t, func(cfg *Config) {
		cfg.TransactionTracer.Detail = 0
		cfg.TransactionTracer.Segments.Threshold = time.Second
		cfg.TransactionTracer.Threshold.IsApdexFailing = false
		cfg.TransactionTracer.Threshold.Duration = 0
	})
	txn := app.StartTransaction("hello")
	// Non-explicit and shorter than the threshold.
	txn.StartDatastoreSegment(datastore.Redis, "", "GET").End()
	// Explicit segments are kept whatever their duration.
	txn.StartSegment("kept").End()
	txn.End()

	app.ExpectTxnTraces(t, []internal.WantTxnTrace{{MetricName: helloName, NumSegments: 1}})
	app.ExpectMetricsPresent(t, []internal.WantMetric{
		{Name: "Datastore/operation/Redis/GET", Scope: helloName, Forced: false, Data: nil},
	})
}

func TestSegmentsFromGoroutines(t *testing.T) {
	app := testApp(t)
	txn := app.StartTransaction("hello")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := txn.StartSegment("async")
			s.AddAttribute("worker", true)
			s.End()
		}()
	}
	wg.Wait()
	txn.End()

	// Interleaved segments may end out of order; every segment which ends
	// while it is on the stack is counted.
	app.ExpectMetricsPresent(t, []internal.WantMetric{
		{Name: "Custom/async", Scope: helloName, Forced: false, Data: nil},
	})
}
