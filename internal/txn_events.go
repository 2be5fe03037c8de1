// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package internal

import (
	"bytes"
	"time"
)

// BetterCAT stores the transaction's priority and all fields related to a
// distributed trace.
type BetterCAT struct {
	Enabled  bool
	Sampled  bool
	Priority Priority
	TxnID    string
	TraceID  string
	Inbound  *Payload
}

// SetTraceAndTxnIDs uses a single 32 character ID for both the trace (32
// char) and transaction (16 char) IDs.
func (bc *BetterCAT) SetTraceAndTxnIDs(traceID string) {
	txnLength := 16
	bc.TraceID = traceID
	if len(traceID) <= txnLength {
		bc.TxnID = traceID
	} else {
		bc.TxnID = traceID[:txnLength]
	}
}

// TxnEvent represents a finished transaction.  It is shared by transaction
// events and error events.
type TxnEvent struct {
	FinalName string
	Start     time.Time
	Duration  time.Duration
	TotalTime time.Duration
	Zone      apdexZone
	HasError  bool
	Attrs     *Attributes
	BetterCAT BetterCAT
	// SyntheticsResourceID is set when the transaction was started by a
	// synthetics monitor.
	SyntheticsResourceID string
	Queuing              Queuing
	DatastoreExternalTotals
}

// WriteJSON prepares JSON in the format expected by the collector.
func (e *TxnEvent) WriteJSON(buf *bytes.Buffer) {
	w := jsonFieldsWriter{buf: buf}
	buf.WriteByte('[')
	buf.WriteByte('{')
	w.stringField("type", "Transaction")
	w.stringField("name", e.FinalName)
	w.floatField("timestamp", timeToFloatSeconds(e.Start))
	if apdexNone != e.Zone {
		w.stringField("nr.apdexPerfZone", e.Zone.label())
	}
	w.boolField("error", e.HasError)

	sharedTransactionIntrinsics(e, &w)
	e.Queuing.createIntrinsics(&w)

	if "" != e.SyntheticsResourceID {
		w.stringField("nr.syntheticsResourceId", e.SyntheticsResourceID)
	}
	if e.externalCallCount > 0 {
		w.intField("externalCallCount", int64(e.externalCallCount))
		w.floatField("externalDuration", e.externalDuration.Seconds())
	}
	if e.datastoreCallCount > 0 {
		// Note that "database" is used for the keys here instead of
		// "datastore" for historical reasons.
		w.intField("databaseCallCount", int64(e.datastoreCallCount))
		w.floatField("databaseDuration", e.datastoreDuration.Seconds())
	}

	buf.WriteByte('}')
	buf.WriteByte(',')
	var user, agent *orderedAttributes
	if nil != e.Attrs {
		user, agent = &e.Attrs.User, &e.Attrs.Agent
	}
	user.writeJSON(buf, destTxnEvent)
	buf.WriteByte(',')
	agent.writeJSON(buf, destTxnEvent)
	buf.WriteByte(']')
}

// sharedTransactionIntrinsics writes the duration and distributed trace
// fields common to transaction and error events.
func sharedTransactionIntrinsics(e *TxnEvent, w *jsonFieldsWriter) {
	w.floatField("duration", e.Duration.Seconds())
	if e.TotalTime > 0 {
		w.floatField("totalTime", e.TotalTime.Seconds())
	}
	if !e.BetterCAT.Enabled {
		return
	}
	w.stringField("guid", e.BetterCAT.TxnID)
	w.stringField("traceId", e.BetterCAT.TraceID)
	w.writerField("priority", e.BetterCAT.Priority)
	w.boolField("sampled", e.BetterCAT.Sampled)
	if p := e.BetterCAT.Inbound; nil != p && p.HasNewRelicTraceInfo {
		w.stringField("parent.type", p.Type)
		w.stringField("parent.app", p.App)
		w.stringField("parent.account", p.Account)
		w.stringField("parent.transportType", p.TransportType)
		w.floatField("parent.transportDuration", p.TransportDuration.Seconds())
		if "" != p.TransactionID {
			w.stringField("parentId", p.TransactionID)
		}
		if "" != p.ID {
			w.stringField("parentSpanId", p.ID)
		}
	}
}

// MarshalJSON is used for testing.
func (e *TxnEvent) MarshalJSON() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 256))

	e.WriteJSON(buf)

	return buf.Bytes(), nil
}

type txnEvents struct {
	*analyticsEvents
}

func newTxnEvents(max int) *txnEvents {
	return &txnEvents{
		analyticsEvents: newAnalyticsEvents(max),
	}
}

func (events *txnEvents) AddTxnEvent(e *TxnEvent, priority Priority) {
	// Synthetics events always get priority: normal event priorities are in
	// the range [0.0,1.99999].
	if "" != e.SyntheticsResourceID {
		priority = 2.0
	}
	events.addEvent(analyticsEvent{priority, e})
}

func (events *txnEvents) MergeIntoHarvest(h *Harvest) {
	h.TxnEvents.mergeFailed(events.analyticsEvents)
}

func (events *txnEvents) Data(agentRunID string, harvestStart time.Time) ([]byte, error) {
	return events.CollectorJSON(agentRunID)
}

func (events *txnEvents) EndpointMethod() string {
	return cmdTxnEvents
}
