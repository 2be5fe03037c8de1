// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package internal

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type distTraceVersion [2]int

func (v distTraceVersion) major() int { return v[0] }
func (v distTraceVersion) minor() int { return v[1] }

const (
	// CallerTypeApp is the Type field's value for outbound payloads.
	CallerTypeApp = "App"
	// CallerTypeBrowser is the Type field's value for browser payloads
	CallerTypeBrowser = "Browser"
	// CallerTypeMobile is the Type field's value for mobile payloads
	CallerTypeMobile = "Mobile"

	// DistributedTraceNewRelicHeader is the header used by New Relic agents
	// for automatic trace payload instrumentation.
	DistributedTraceNewRelicHeader = "Newrelic"
	// DistributedTraceW3CTraceStateHeader is the vendor header of W3C trace
	// context.
	DistributedTraceW3CTraceStateHeader = "Tracestate"
	// DistributedTraceW3CTraceParentHeader is the identity header of W3C
	// trace context.
	DistributedTraceW3CTraceParentHeader = "Traceparent"

	w3cVersion        = "00"
	traceStateVersion = "0"
	invalidTraceID    = "00000000000000000000000000000000"
	invalidParentID   = "0000000000000000"
)

var (
	currentDistTraceVersion = distTraceVersion{0, 1}

	traceParentRegex  = regexp.MustCompile(`^([a-f0-9]{2})-([a-f0-9]{32})-([a-f0-9]{16})-([a-f0-9]{2})(-.*)?$`)
	traceStateNRRegex = regexp.MustCompile(`\d+@nr=[^,=]+,?`)
	// account@nr=version-type-account-app-spanID-txnID-sampled-priority-timestamp
	traceStateNRFields = regexp.MustCompile(`(\d+)@nr=(\d)-(\d)-(\d+)-(\d+)-([a-f0-9]{16})?-([a-f0-9]{16})?-(\d)?-(\d\.\d+)?-(\d+),?`)
	traceStateVendors  = regexp.MustCompile(`((?:[\w_\-*\s/]*@)?[\w_\-*\s/]+)=[^,]*`)

	callerTypeCodes = map[string]string{
		CallerTypeApp:     "0",
		CallerTypeBrowser: "1",
		CallerTypeMobile:  "2",
	}
	callerTypeNames = map[string]string{
		"0": CallerTypeApp,
		"1": CallerTypeBrowser,
		"2": CallerTypeMobile,
	}
)

// timestampMillis is a payload time which travels as Unix milliseconds.
type timestampMillis time.Time

func (tm *timestampMillis) UnmarshalJSON(data []byte) error {
	var millis uint64
	if err := json.Unmarshal(data, &millis); nil != err {
		return err
	}
	*tm = timestampMillis(timeFromUnixMilliseconds(millis))
	return nil
}

func (tm timestampMillis) MarshalJSON() ([]byte, error) {
	return json.Marshal(TimeToUnixMilliseconds(tm.Time()))
}

func (tm timestampMillis) Time() time.Time  { return time.Time(tm) }
func (tm *timestampMillis) Set(t time.Time) { *tm = timestampMillis(t) }

func (tm timestampMillis) unixMilliseconds() uint64 {
	return TimeToUnixMilliseconds(tm.Time())
}

// Payload is the distributed trace context carried between services.
type Payload struct {
	payloadCaller
	TransactionID string   `json:"tx,omitempty"`
	ID            string   `json:"id,omitempty"`
	TracedID      string   `json:"tr"`
	Priority      Priority `json:"pr"`
	// Sampled is nil when the caller made no sampling decision.
	Sampled              *bool           `json:"sa"`
	Timestamp            timestampMillis `json:"ti"`
	TrustedAccountKey    string          `json:"tk,omitempty"`
	TransportDuration    time.Duration   `json:"-"`
	TrustedParentID      string          `json:"-"`
	TracingVendors       string          `json:"-"`
	NonTrustedTraceState string          `json:"-"`
	// HasNewRelicTraceInfo is false when only a traceparent was accepted.
	HasNewRelicTraceInfo bool `json:"-"`
}

type payloadCaller struct {
	TransportType string `json:"-"`
	Type          string `json:"ty"`
	App           string `json:"ap"`
	Account       string `json:"ac"`
}

// SetSampled records a sampling decision.
func (p *Payload) SetSampled(sampled bool) {
	p.Sampled = &sampled
}

func (p Payload) isSampled() bool {
	return nil != p.Sampled && *p.Sampled
}

func (p Payload) validateNewRelicData() error {
	switch {
	case "" == p.TransactionID && "" == p.ID:
		return ErrPayloadMissingField{message: "missing both guid/id and TransactionId/tx"}
	case "" == p.Type:
		return ErrPayloadMissingField{message: "missing Type/ty"}
	case "" == p.Account:
		return ErrPayloadMissingField{message: "missing Account/ac"}
	case "" == p.App:
		return ErrPayloadMissingField{message: "missing App/ap"}
	case "" == p.TracedID:
		return ErrPayloadMissingField{message: "missing TracedID/tr"}
	case p.Timestamp.Time().IsZero() || 0 == p.Timestamp.Time().Unix():
		return ErrPayloadMissingField{message: "missing Timestamp/ti"}
	}
	return nil
}

func (p Payload) text(v distTraceVersion) []byte {
	// The trusted key is only sent when it differs from the account.
	if p.TrustedAccountKey == p.Account {
		p.TrustedAccountKey = ""
	}
	js, _ := json.Marshal(struct {
		Version distTraceVersion `json:"v"`
		Data    Payload          `json:"d"`
	}{
		Version: v,
		Data:    p,
	})
	return js
}

// NRText returns the newrelic header value as plain JSON.
func (p Payload) NRText() string {
	return string(p.text(currentDistTraceVersion))
}

// NRHTTPSafe returns the newrelic header value as base64 encoded JSON.
func (p Payload) NRHTTPSafe() string {
	return base64.StdEncoding.EncodeToString(p.text(currentDistTraceVersion))
}

// W3CTraceParent returns the traceparent header value.
func (p Payload) W3CTraceParent() string {
	flags := "00"
	if p.isSampled() {
		flags = "01"
	}
	return w3cVersion + "-" + p.TracedID + "-" + p.ID + "-" + flags
}

// W3CTraceState returns the tracestate header value: the New Relic entry
// followed by the entries of other vendors.
func (p Payload) W3CTraceState() string {
	sampled := "0"
	if p.isSampled() {
		sampled = "1"
	}
	entry := strings.Join([]string{
		traceStateVersion,
		callerTypeCodes[p.Type],
		p.Account,
		p.App,
		p.ID,
		p.TransactionID,
		sampled,
		p.Priority.traceStateFormat(),
		strconv.FormatUint(p.Timestamp.unixMilliseconds(), 10),
	}, "-")
	state := traceStatePrefix(p.TrustedAccountKey) + "=" + entry
	if "" != p.NonTrustedTraceState {
		state += "," + p.NonTrustedTraceState
	}
	return state
}

func traceStatePrefix(trustedAccount string) string {
	return trustedAccount + "@nr"
}

// ErrPayloadParse indicates that the payload was malformed.
type ErrPayloadParse struct{ err error }

func (e ErrPayloadParse) Error() string {
	return fmt.Sprintf("unable to parse inbound payload: %s", e.err.Error())
}

// ErrPayloadMissingField indicates there's a required field that's missing
type ErrPayloadMissingField struct{ message string }

func (e ErrPayloadMissingField) Error() string {
	return fmt.Sprintf("payload is missing required fields: %s", e.message)
}

// ErrUnsupportedPayloadVersion indicates that the major version number is
// unknown.
type ErrUnsupportedPayloadVersion struct{ version int }

func (e ErrUnsupportedPayloadVersion) Error() string {
	return fmt.Sprintf("unsupported major version number %d", e.version)
}

var (
	errTooManyTraceParents = ErrPayloadParse{errors.New("too many TraceParent headers")}
	errNoTraceParent       = ErrPayloadParse{errors.New("missing TraceParent header")}
	errTraceParentEntries  = ErrPayloadParse{errors.New("invalid number of TraceParent entries")}
	errInvalidTraceID      = ErrPayloadParse{errors.New("invalid TraceParent trace ID")}
	errInvalidParentID     = ErrPayloadParse{errors.New("invalid TraceParent parent ID")}
	errInvalidFlags        = ErrPayloadParse{errors.New("invalid TraceParent flags for this version")}
	errTraceStateFields    = ErrPayloadParse{errors.New("incorrect number of fields in TraceState")}
)

// AcceptPayload decodes the inbound trace context of hdrs.  W3C headers are
// preferred; the newrelic header is used when they are missing or carry no
// trusted New Relic entry.  It returns nil, nil when no trace context is
// present.
func AcceptPayload(hdrs http.Header, trustedAccountKey string) (*Payload, error) {
	nr := hdrs.Get(DistributedTraceNewRelicHeader)
	hasTraceParent := "" != hdrs.Get(DistributedTraceW3CTraceParentHeader)

	p := &Payload{}
	switch {
	case hasTraceParent && "" != nr:
		if err := decodeW3C(hdrs, trustedAccountKey, p); nil != err || !p.HasNewRelicTraceInfo {
			p = &Payload{}
			if err := decodeNewRelic(nr, p); nil != err {
				return nil, err
			}
		}
	case hasTraceParent:
		if err := decodeW3C(hdrs, trustedAccountKey, p); nil != err {
			return nil, err
		}
	case "" != nr:
		if err := decodeNewRelic(nr, p); nil != err {
			return nil, err
		}
	default:
		return nil, nil
	}
	return p, nil
}

// decodeNewRelic decodes a newrelic header which is either JSON or base64
// encoded JSON.
func decodeNewRelic(s string, p *Payload) error {
	decoded := []byte(s)
	if '{' != s[0] {
		var err error
		decoded, err = base64.StdEncoding.DecodeString(s)
		if nil != err {
			return ErrPayloadParse{err: err}
		}
	}
	var envelope struct {
		Version distTraceVersion `json:"v"`
		Data    json.RawMessage  `json:"d"`
	}
	if err := json.Unmarshal(decoded, &envelope); nil != err {
		return ErrPayloadParse{err: err}
	}
	if 0 == envelope.Version.major() && 0 == envelope.Version.minor() {
		return ErrPayloadMissingField{message: "missing v"}
	}
	if envelope.Version.major() > currentDistTraceVersion.major() {
		return ErrUnsupportedPayloadVersion{version: envelope.Version.major()}
	}
	if err := json.Unmarshal(envelope.Data, p); nil != err {
		return ErrPayloadParse{err: err}
	}
	p.HasNewRelicTraceInfo = true
	return p.validateNewRelicData()
}

func decodeW3C(hdrs http.Header, trustedAccountKey string, p *Payload) error {
	if err := decodeTraceParent(headerValues(hdrs, DistributedTraceW3CTraceParentHeader), p); nil != err {
		return err
	}
	return decodeTraceState(strings.Join(headerValues(hdrs, DistributedTraceW3CTraceStateHeader), ","), trustedAccountKey, p)
}

func decodeTraceParent(values []string, p *Payload) error {
	if len(values) > 1 {
		return errTooManyTraceParents
	}
	if 0 == len(values) {
		return errNoTraceParent
	}
	m := traceParentRegex.FindStringSubmatch(values[0])
	if len(m) != 6 {
		return errTraceParentEntries
	}
	switch version, rest := m[1], m[5]; version {
	case "ff":
		return errInvalidFlags
	case w3cVersion:
		// Only future versions may append fields.
		if "" != rest {
			return errInvalidFlags
		}
	}
	if invalidTraceID == m[2] {
		return errInvalidTraceID
	}
	if invalidParentID == m[3] {
		return errInvalidParentID
	}
	p.TracedID = m[2]
	p.ID = m[3]
	return nil
}

func decodeTraceState(full string, trustedAccountKey string, p *Payload) error {
	trusted := trustedTraceStateEntry(full, trustedAccountKey)
	p.TracingVendors, p.NonTrustedTraceState = otherVendors(full, trusted)
	if "" == trusted {
		return nil
	}
	m := traceStateNRFields.FindStringSubmatch(trusted)
	if len(m) != 11 {
		return errTraceStateFields
	}
	p.TrustedAccountKey = m[1]
	p.Type = callerTypeNames[m[3]]
	p.Account = m[4]
	p.App = m[5]
	p.TrustedParentID = m[6]
	p.TransactionID = m[7]
	switch m[8] {
	case "1":
		p.SetSampled(true)
	case "0":
		p.SetSampled(false)
	}
	if pr, err := strconv.ParseFloat(m[9], 32); nil == err {
		p.Priority = Priority(pr)
	}
	if ts, err := strconv.ParseUint(m[10], 10, 64); nil == err {
		p.Timestamp = timestampMillis(timeFromUnixMilliseconds(ts))
	}
	p.HasNewRelicTraceInfo = true
	return nil
}

// headerValues returns every value of key regardless of the capitalization
// used by the caller.  key must be canonical.
func headerValues(hdrs http.Header, key string) []string {
	var out []string
	for k, v := range hdrs {
		if key == http.CanonicalHeaderKey(k) {
			out = append(out, v...)
		}
	}
	return out
}

func trustedTraceStateEntry(full, trustedAccountKey string) string {
	prefix := traceStatePrefix(trustedAccountKey)
	for _, entry := range traceStateNRRegex.FindAllString(full, -1) {
		if strings.HasPrefix(entry, prefix) {
			return entry
		}
	}
	return ""
}

// otherVendors returns the vendor keys and the entries of tracestate other
// than the trusted New Relic entry.
func otherVendors(full, trusted string) (vendors, state string) {
	matches := traceStateVendors.FindAllStringSubmatch(full, -1)
	var names, entries []string
	for _, m := range matches {
		if m[0] == trusted || strings.TrimSuffix(trusted, ",") == m[0] {
			continue
		}
		if "" != m[1] {
			names = append(names, m[1])
			entries = append(entries, m[0])
		}
	}
	return strings.Join(names, ","), strings.Join(entries, ",")
}
