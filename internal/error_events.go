// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package internal

import (
	"bytes"
	"time"
)

type errorEvent struct {
	record *ErrorRecord
	txn    *TxnEvent
}

// MarshalJSON is used for testing.
func (e *errorEvent) MarshalJSON() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 256))

	e.WriteJSON(buf)

	return buf.Bytes(), nil
}

// WriteJSON prepares JSON in the format expected by the collector.
func (e *errorEvent) WriteJSON(buf *bytes.Buffer) {
	w := jsonFieldsWriter{buf: buf}
	buf.WriteByte('[')
	buf.WriteByte('{')
	w.stringField("type", "TransactionError")
	w.stringField("error.class", e.record.Class)
	w.stringField("error.message", e.record.Message)
	w.floatField("timestamp", timeToFloatSeconds(e.record.When))
	w.stringField("transactionName", e.txn.FinalName)
	if "" != e.record.SpanID {
		w.stringField("spanId", e.record.SpanID)
	}
	if "" != e.txn.SyntheticsResourceID {
		w.stringField("nr.syntheticsResourceId", e.txn.SyntheticsResourceID)
	}

	sharedTransactionIntrinsics(e.txn, &w)

	buf.WriteByte('}')
	buf.WriteByte(',')
	var user, agent *orderedAttributes
	if nil != e.txn.Attrs {
		user, agent = &e.txn.Attrs.User, &e.txn.Attrs.Agent
	}
	writeErrorUserAttributes(buf, user, e.record.Attributes)
	buf.WriteByte(',')
	agent.writeJSON(buf, destError)
	buf.WriteByte(']')
}

type errorEvents struct {
	*analyticsEvents
}

func newErrorEvents(max int) *errorEvents {
	return &errorEvents{
		analyticsEvents: newAnalyticsEvents(max),
	}
}

func (events *errorEvents) Add(e *errorEvent, priority Priority) {
	events.addEvent(analyticsEvent{priority, e})
}

func (events *errorEvents) MergeIntoHarvest(h *Harvest) {
	h.ErrorEvents.mergeFailed(events.analyticsEvents)
}

func (events *errorEvents) Data(agentRunID string, harvestStart time.Time) ([]byte, error) {
	return events.CollectorJSON(agentRunID)
}

func (events *errorEvents) EndpointMethod() string {
	return cmdErrorEvents
}
