// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package newrelic

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/Shopify/sarama"
	"github.com/newrelic/go-agent-core/internal"
	"github.com/pkg/errors"
)

// HarvestPayload is the serialized data of one harvest endpoint.
type HarvestPayload struct {
	// Endpoint names the kind of data, for example "metric_data" or
	// "span_event_data".
	Endpoint string
	RunID    string
	// Data is the JSON document in the format of the endpoint.
	Data    []byte
	Created time.Time

	// creator is merged into the next harvest when delivery fails.
	creator internal.PayloadCreator
}

// HarvestSink receives harvest payloads.  Deliver is called from a single
// goroutine, one payload at a time.
type HarvestSink interface {
	Deliver(ctx context.Context, p HarvestPayload) error
}

// HarvestSinkFunc adapts a function into a HarvestSink.
type HarvestSinkFunc func(ctx context.Context, p HarvestPayload) error

// Deliver calls fn.
func (fn HarvestSinkFunc) Deliver(ctx context.Context, p HarvestPayload) error {
	return fn(ctx, p)
}

// WriterSink writes each payload as a line of JSON:
//
//	{"endpoint":"metric_data","run_id":"...","data":[...]}
type WriterSink struct {
	sync.Mutex
	w io.Writer
}

// NewWriterSink creates a WriterSink writing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

type writerSinkLine struct {
	Endpoint string          `json:"endpoint"`
	RunID    string          `json:"run_id"`
	Data     json.RawMessage `json:"data"`
}

// Deliver implements HarvestSink.
func (s *WriterSink) Deliver(ctx context.Context, p HarvestPayload) error {
	js, err := json.Marshal(writerSinkLine{
		Endpoint: p.Endpoint,
		RunID:    p.RunID,
		Data:     json.RawMessage(p.Data),
	})
	if nil != err {
		return errors.Wrapf(err, "unable to encode %s payload", p.Endpoint)
	}
	js = append(js, '\n')

	s.Lock()
	defer s.Unlock()
	_, err = s.w.Write(js)
	return errors.Wrapf(err, "unable to write %s payload", p.Endpoint)
}

// KafkaSink produces each payload as a Kafka message keyed by endpoint.  The
// run id is carried in the "run_id" record header.
type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaSink connects a synchronous producer to brokers.  A nil cfg uses
// sarama's defaults.
func NewKafkaSink(brokers []string, topic string, cfg *sarama.Config) (*KafkaSink, error) {
	if nil == cfg {
		cfg = sarama.NewConfig()
	}
	// Required by sarama.NewSyncProducer.
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if nil != err {
		return nil, errors.Wrap(err, "unable to create kafka producer")
	}
	return NewKafkaSinkFromProducer(producer, topic), nil
}

// NewKafkaSinkFromProducer creates a KafkaSink using an existing producer.
func NewKafkaSinkFromProducer(producer sarama.SyncProducer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

// Deliver implements HarvestSink.
func (s *KafkaSink) Deliver(ctx context.Context, p HarvestPayload) error {
	if err := ctx.Err(); nil != err {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(p.Endpoint),
		Value: sarama.ByteEncoder(p.Data),
		Headers: []sarama.RecordHeader{{
			Key:   []byte("run_id"),
			Value: []byte(p.RunID),
		}},
		Timestamp: p.Created,
	}
	_, _, err := s.producer.SendMessage(msg)
	return errors.Wrapf(err, "unable to produce %s payload", p.Endpoint)
}

// Close closes the producer.
func (s *KafkaSink) Close() error {
	return s.producer.Close()
}
