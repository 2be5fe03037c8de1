// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	newrelic "github.com/newrelic/go-agent-core"
	"github.com/newrelic/go-agent-core/datastore"
	"gopkg.in/yaml.v3"
)

// Scenario is the YAML document replayed by nrtrace.
type Scenario struct {
	Transactions  []Transaction  `yaml:"transactions"`
	CustomEvents  []CustomEvent  `yaml:"custom_events"`
	CustomMetrics []CustomMetric `yaml:"custom_metrics"`
}

// Transaction describes one transaction, replayed Repeat times.
type Transaction struct {
	Name       string                 `yaml:"name"`
	Repeat     int                    `yaml:"repeat"`
	Web        *WebRequest            `yaml:"web"`
	Attributes map[string]interface{} `yaml:"attributes"`
	Segments   []Segment              `yaml:"segments"`
	Errors     []NoticedError         `yaml:"errors"`
	Metrics    []CustomMetric         `yaml:"metrics"`
	Ignore     bool                   `yaml:"ignore"`
}

// WebRequest turns the transaction into a web transaction.
type WebRequest struct {
	Method  string            `yaml:"method"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Status  int               `yaml:"status"`
}

// Segment is a timed unit of work.  At most one of Datastore, External and
// Message may be set; otherwise the segment is a custom segment named Name.
type Segment struct {
	Name       string                 `yaml:"name"`
	Duration   time.Duration          `yaml:"duration"`
	Attributes map[string]interface{} `yaml:"attributes"`
	Datastore  *DatastoreCall         `yaml:"datastore"`
	External   *ExternalCall          `yaml:"external"`
	Message    *MessageCall           `yaml:"message"`
	Children   []Segment              `yaml:"children"`
}

// DatastoreCall describes a database query.  Driver, when set, names the
// database/sql driver the product is derived from.
type DatastoreCall struct {
	Driver     string `yaml:"driver"`
	Product    string `yaml:"product"`
	Collection string `yaml:"collection"`
	Operation  string `yaml:"operation"`
	Query      string `yaml:"query"`
	Host       string `yaml:"host"`
	Port       string `yaml:"port"`
	Database   string `yaml:"database"`
}

// ExternalCall describes an outbound request.
type ExternalCall struct {
	URL       string `yaml:"url"`
	Method    string `yaml:"method"`
	Library   string `yaml:"library"`
	Procedure string `yaml:"procedure"`
	Status    int    `yaml:"status"`
}

// MessageCall describes a message published to a broker.
type MessageCall struct {
	Library         string `yaml:"library"`
	DestinationType string `yaml:"destination_type"`
	Destination     string `yaml:"destination"`
	Temporary       bool   `yaml:"temporary"`
	Host            string `yaml:"host"`
	Port            string `yaml:"port"`
}

// NoticedError is either an error with a class or, when Level is set, a
// log-level error such as "E_WARNING".
type NoticedError struct {
	Message    string                 `yaml:"message"`
	Class      string                 `yaml:"class"`
	Level      string                 `yaml:"level"`
	Attributes map[string]interface{} `yaml:"attributes"`
}

// CustomEvent is recorded through Application.RecordCustomEvent.
type CustomEvent struct {
	Type       string                 `yaml:"type"`
	Attributes map[string]interface{} `yaml:"attributes"`
}

// CustomMetric is a named value.
type CustomMetric struct {
	Name  string  `yaml:"name"`
	Value float64 `yaml:"value"`
}

// LoadScenario decodes and validates a scenario.  Unknown fields are
// rejected.
func LoadScenario(r io.Reader) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	s := &Scenario{}
	if err := dec.Decode(s); nil != err && io.EOF != err {
		return nil, fmt.Errorf("unable to parse scenario: %v", err)
	}
	if err := s.Validate(); nil != err {
		return nil, err
	}
	return s, nil
}

// LoadScenarioFile reads the scenario at path.
func LoadScenarioFile(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if nil != err {
		return nil, err
	}
	defer f.Close()
	return LoadScenario(f)
}

// Validate reports every problem found in the scenario.
func (s *Scenario) Validate() error {
	var result *multierror.Error
	if 0 == len(s.Transactions) && 0 == len(s.CustomEvents) && 0 == len(s.CustomMetrics) {
		result = multierror.Append(result, fmt.Errorf("scenario is empty"))
	}
	for i, t := range s.Transactions {
		if "" == t.Name {
			result = multierror.Append(result, fmt.Errorf("transactions[%d]: name is required", i))
		}
		if t.Repeat < 0 {
			result = multierror.Append(result, fmt.Errorf("transactions[%d]: repeat must not be negative", i))
		}
		validateSegments(&result, fmt.Sprintf("transactions[%d]", i), t.Segments)
	}
	for i, e := range s.CustomEvents {
		if "" == e.Type {
			result = multierror.Append(result, fmt.Errorf("custom_events[%d]: type is required", i))
		}
	}
	return result.ErrorOrNil()
}

func validateSegments(result **multierror.Error, path string, segs []Segment) {
	for i, seg := range segs {
		p := fmt.Sprintf("%s.segments[%d]", path, i)
		kinds := 0
		for _, set := range []bool{nil != seg.Datastore, nil != seg.External, nil != seg.Message} {
			if set {
				kinds++
			}
		}
		if kinds > 1 {
			*result = multierror.Append(*result, fmt.Errorf("%s: only one of datastore, external and message may be set", p))
		}
		if 0 == kinds && "" == seg.Name {
			*result = multierror.Append(*result, fmt.Errorf("%s: name is required", p))
		}
		if seg.Duration < 0 {
			*result = multierror.Append(*result, fmt.Errorf("%s: duration must not be negative", p))
		}
		validateSegments(result, p, seg.Children)
	}
}

// Replay runs the scenario against app.  It returns the number of
// transactions started.
func Replay(app *newrelic.Application, s *Scenario) int {
	var count int
	for _, t := range s.Transactions {
		n := t.Repeat
		if n < 1 {
			n = 1
		}
		for i := 0; i < n; i++ {
			replayTransaction(app, &t)
			count++
		}
	}
	for _, e := range s.CustomEvents {
		app.RecordCustomEvent(e.Type, e.Attributes)
	}
	for _, m := range s.CustomMetrics {
		app.RecordCustomMetric(m.Name, m.Value)
	}
	return count
}

func replayTransaction(app *newrelic.Application, t *Transaction) {
	txn := app.StartTransaction(t.Name)
	defer txn.End()

	if nil != t.Web {
		txn.SetWebRequest(webRequest(t.Web))
	}
	for key, val := range t.Attributes {
		txn.AddAttribute(key, val)
	}
	replaySegments(txn, t.Segments)
	for _, e := range t.Errors {
		if "" != e.Level {
			txn.NoticeErrorWithLevel(e.Level, e.Message)
			continue
		}
		txn.NoticeError(newrelic.Error{
			Message:    e.Message,
			Class:      e.Class,
			Attributes: e.Attributes,
		})
	}
	for _, m := range t.Metrics {
		txn.RecordCustomMetric(m.Name, m.Value)
	}
	if nil != t.Web && t.Web.Status > 0 {
		txn.SetWebResponseCode(t.Web.Status)
	}
	if t.Ignore {
		txn.Ignore()
	}
}

func webRequest(w *WebRequest) newrelic.WebRequest {
	hdrs := make(http.Header, len(w.Headers))
	for key, val := range w.Headers {
		hdrs.Set(key, val)
	}
	r := newrelic.WebRequest{
		Header:    hdrs,
		Method:    w.Method,
		Transport: newrelic.TransportHTTP,
	}
	if u, err := url.Parse(w.URL); nil == err && "" != w.URL {
		r.URL = u
		if "https" == u.Scheme {
			r.Transport = newrelic.TransportHTTPS
		}
	}
	return r
}

// segment is implemented by every segment type.
type segment interface {
	AddAttribute(key string, val interface{})
	End()
}

func replaySegments(txn *newrelic.Transaction, segs []Segment) {
	for i := range segs {
		seg := &segs[i]
		s := startSegment(txn, seg)
		for key, val := range seg.Attributes {
			s.AddAttribute(key, val)
		}
		replaySegments(txn, seg.Children)
		if seg.Duration > 0 {
			time.Sleep(seg.Duration)
		}
		s.End()
	}
}

func startSegment(txn *newrelic.Transaction, seg *Segment) segment {
	switch {
	case nil != seg.Datastore:
		d := seg.Datastore
		product := datastore.Product(d.Product)
		if "" != d.Driver {
			product = datastore.ProductFromDriver(d.Driver)
		}
		s := txn.StartDatastoreSegment(product, d.Collection, d.Operation)
		s.ParameterizedQuery = d.Query
		s.Host = d.Host
		s.PortPathOrID = d.Port
		s.DatabaseName = d.Database
		return s
	case nil != seg.External:
		return startExternal(txn, seg.External)
	case nil != seg.Message:
		m := seg.Message
		destType := newrelic.MessageDestinationType(m.DestinationType)
		if "" == destType {
			destType = newrelic.MessageQueue
		}
		s := txn.StartMessageProducerSegment(m.Library, destType, m.Destination)
		s.DestinationTemp = m.Temporary
		s.Host = m.Host
		s.PortPathOrID = m.Port
		return s
	default:
		return txn.StartSegment(seg.Name)
	}
}

func startExternal(txn *newrelic.Transaction, e *ExternalCall) *newrelic.ExternalSegment {
	method := e.Method
	if "" == method {
		method = "GET"
	}
	var s *newrelic.ExternalSegment
	if req, err := http.NewRequest(method, e.URL, nil); nil == err {
		s = newrelic.StartExternalSegment(txn, req)
	} else {
		s = &newrelic.ExternalSegment{
			StartTime: txn.StartSegmentNow(),
			URL:       e.URL,
		}
	}
	s.Library = e.Library
	s.Procedure = e.Procedure
	if e.Status > 0 {
		s.SetStatusCode(e.Status)
	}
	return s
}
