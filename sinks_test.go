// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package newrelic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/google/go-cmp/cmp"
	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterSink(t *testing.T) {
	buf := &bytes.Buffer{}
	sink := NewWriterSink(buf)
	require.NoError(t, sink.Deliver(context.Background(), HarvestPayload{
		Endpoint: "custom_event_data",
		RunID:    "run-1",
		Data:     []byte(`["run-1",{"reservoir_size":1,"events_seen":1},[]]`),
	}))
	require.NoError(t, sink.Deliver(context.Background(), HarvestPayload{
		Endpoint: "metric_data",
		RunID:    "run-1",
		Data:     []byte(`["run-1",0,1,[]]`),
	}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &got))
	want := map[string]interface{}{
		"endpoint": "metric_data",
		"run_id":   "run-1",
		"data":     []interface{}{"run-1", float64(0), float64(1), []interface{}{}},
	}
	if diff := cmp.Diff(want, got); "" != diff {
		t.Error(diff)
	}
}

func TestWriterSinkInvalidData(t *testing.T) {
	sink := NewWriterSink(&bytes.Buffer{})
	err := sink.Deliver(context.Background(), HarvestPayload{
		Endpoint: "metric_data",
		Data:     []byte(`{not json`),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to encode metric_data payload")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriterSinkWriteError(t *testing.T) {
	sink := NewWriterSink(failingWriter{})
	err := sink.Deliver(context.Background(), HarvestPayload{Endpoint: "metric_data", Data: []byte(`[]`)})
	require.Error(t, err)
	assert.Equal(t, "unable to write metric_data payload: disk full", err.Error())
}

func TestKafkaSink(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	created := time.Date(2020, time.March, 2, 12, 0, 0, 0, time.UTC)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if "harvest" != msg.Topic {
			return errors.New("wrong topic " + msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if "span_event_data" != string(key) {
			return errors.New("wrong key " + string(key))
		}
		val, _ := msg.Value.Encode()
		if `["run-1",{},[]]` != string(val) {
			return errors.New("wrong value " + string(val))
		}
		if 1 != len(msg.Headers) || "run-1" != string(msg.Headers[0].Value) {
			return errors.New("missing run_id header")
		}
		if !msg.Timestamp.Equal(created) {
			return errors.New("wrong timestamp")
		}
		return nil
	})

	sink := NewKafkaSinkFromProducer(producer, "harvest")
	require.NoError(t, sink.Deliver(context.Background(), HarvestPayload{
		Endpoint: "span_event_data",
		RunID:    "run-1",
		Data:     []byte(`["run-1",{},[]]`),
		Created:  created,
	}))
	require.NoError(t, sink.Close())
}

func TestKafkaSinkFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	sink := NewKafkaSinkFromProducer(producer, "harvest")
	err := sink.Deliver(context.Background(), HarvestPayload{Endpoint: "metric_data"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to produce metric_data payload")
	assert.Equal(t, sarama.ErrOutOfBrokers, pkgerrors.Cause(err))
	require.NoError(t, sink.Close())
}

func TestKafkaSinkCancelledContext(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	sink := NewKafkaSinkFromProducer(producer, "harvest")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, context.Canceled, sink.Deliver(ctx, HarvestPayload{Endpoint: "metric_data"}))
	require.NoError(t, sink.Close())
}

func TestKafkaSinkAsHarvestSink(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	// The harvest sends custom events and metrics, and the final harvest
	// of Shutdown sends metrics again.
	producer.ExpectSendMessageAndSucceed()
	producer.ExpectSendMessageAndSucceed()
	producer.ExpectSendMessageAndSucceed()

	app := testApp(t, ConfigHarvestSink(NewKafkaSinkFromProducer(producer, "harvest")))
	app.RecordCustomEvent("Checkout", map[string]interface{}{"total": 3})
	require.NoError(t, app.Harvest(context.Background()))
	app.Shutdown(time.Second)
	require.NoError(t, producer.Close())
}
