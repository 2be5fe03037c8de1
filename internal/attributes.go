// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package internal

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/newrelic/go-agent-core/internal/jsonx"
)

// AttributeDestinationConfig matches newrelic.AttributeDestinationConfig to
// avoid circular dependency issues.
type AttributeDestinationConfig struct {
	Enabled bool
	Include []string
	Exclude []string
}

// AttributeConfigInput is used as the input to CreateAttributeConfig:  it
// transforms newrelic.Config settings into an AttributeConfig.
type AttributeConfigInput struct {
	Attributes        AttributeDestinationConfig
	ErrorCollector    AttributeDestinationConfig
	TransactionEvents AttributeDestinationConfig
	TransactionTracer AttributeDestinationConfig
	SpanEvents        AttributeDestinationConfig
}

type destinationSet int

const (
	destTxnEvent destinationSet = 1 << iota
	destError
	destTxnTrace
	destSpan
)

const (
	destNone destinationSet = 0
	// DestAll contains all destinations.
	DestAll destinationSet = destTxnEvent | destTxnTrace | destError | destSpan
)

func (d destinationSet) String() string {
	s := ""
	for _, x := range []struct {
		string
		destinationSet
	}{
		{"event", destTxnEvent},
		{"trace", destTxnTrace},
		{"error", destError},
		{"span", destSpan},
	} {
		if destNone != d&x.destinationSet {
			if "" != s {
				s += "+"
			}
			s += x.string
		}
	}
	if "" == s {
		s = "none"
	}
	return s
}

type attributeModifier struct {
	match   string // This will not contain a trailing '*'.
	includeExclude
}

type byMatch []*attributeModifier

func (m byMatch) Len() int           { return len(m) }
func (m byMatch) Swap(i, j int)      { m[i], m[j] = m[j], m[i] }
func (m byMatch) Less(i, j int) bool { return m[i].match < m[j].match }

// AttributeConfig is created at connect and shared between all transactions.
type AttributeConfig struct {
	disabledDestinations destinationSet
	exactMatchModifiers  map[string]*attributeModifier
	// Once attributeConfig is constructed, wildcardModifiers is sorted in
	// lexicographical order.  Modifiers appearing later have precedence
	// over modifiers appearing earlier.
	wildcardModifiers []*attributeModifier
}

type includeExclude struct {
	include destinationSet
	exclude destinationSet
}

func modifierApply(m *attributeModifier, d destinationSet) destinationSet {
	// Include before exclude, since exclude has priority.
	d |= m.include
	d &^= m.exclude
	return d
}

func applyAttributeConfig(c *AttributeConfig, key string, d destinationSet) destinationSet {
	if nil == c {
		return d
	}
	// Important: The wildcard modifiers must be applied before the exact
	// match modifiers, and the slice must be iterated in a forward
	// direction.
	for _, m := range c.wildcardModifiers {
		if strings.HasPrefix(key, m.match) {
			d = modifierApply(m, d)
		}
	}

	if m, ok := c.exactMatchModifiers[key]; ok {
		d = modifierApply(m, d)
	}

	d &^= c.disabledDestinations

	return d
}

func addModifier(c *AttributeConfig, match string, d includeExclude) {
	if "" == match {
		return
	}
	exactMatch := true
	if '*' == match[len(match)-1] {
		exactMatch = false
		match = match[0 : len(match)-1]
	}
	mod := &attributeModifier{
		match:          match,
		includeExclude: d,
	}

	if exactMatch {
		if m, ok := c.exactMatchModifiers[mod.match]; ok {
			m.include |= mod.include
			m.exclude |= mod.exclude
		} else {
			c.exactMatchModifiers[mod.match] = mod
		}
	} else {
		for _, m := range c.wildcardModifiers {
			// Important: Duplicate entries for the same match
			// string would not work because exclude needs
			// precedence over include.
			if m.match == mod.match {
				m.include |= mod.include
				m.exclude |= mod.exclude
				return
			}
		}
		c.wildcardModifiers = append(c.wildcardModifiers, mod)
	}
}

func processDest(c *AttributeConfig, includeEnabled bool, dc *AttributeDestinationConfig, d destinationSet) {
	if !dc.Enabled {
		c.disabledDestinations |= d
	}
	if includeEnabled {
		for _, match := range dc.Include {
			addModifier(c, match, includeExclude{include: d})
		}
	}
	for _, match := range dc.Exclude {
		addModifier(c, match, includeExclude{exclude: d})
	}
}

// CreateAttributeConfig creates a new AttributeConfig.
func CreateAttributeConfig(input AttributeConfigInput, includeEnabled bool) *AttributeConfig {
	c := &AttributeConfig{
		exactMatchModifiers: make(map[string]*attributeModifier),
		wildcardModifiers:   make([]*attributeModifier, 0, 64),
	}

	processDest(c, includeEnabled, &input.Attributes, DestAll)
	processDest(c, includeEnabled, &input.ErrorCollector, destError)
	processDest(c, includeEnabled, &input.TransactionEvents, destTxnEvent)
	processDest(c, includeEnabled, &input.TransactionTracer, destTxnTrace)
	processDest(c, includeEnabled, &input.SpanEvents, destSpan)

	sort.Sort(byMatch(c.wildcardModifiers))

	return c
}

type attributeValue struct {
	value        interface{}
	destinations destinationSet
}

// orderedAttributes keeps attributes in the order their keys were first
// added.  Re-adding a key replaces the value in place.
type orderedAttributes struct {
	keys   []string
	values map[string]attributeValue
}

func (oa *orderedAttributes) set(key string, v attributeValue) {
	if nil == oa.values {
		oa.values = make(map[string]attributeValue)
	}
	if _, ok := oa.values[key]; !ok {
		oa.keys = append(oa.keys, key)
	}
	oa.values[key] = v
}

func (oa *orderedAttributes) has(key string) bool {
	_, ok := oa.values[key]
	return ok
}

func (oa *orderedAttributes) len() int { return len(oa.keys) }

func (oa *orderedAttributes) get(key string) (interface{}, bool) {
	v, ok := oa.values[key]
	return v.value, ok
}

// writeJSON writes the attributes for the destination as a JSON object.
func (oa *orderedAttributes) writeJSON(buf *bytes.Buffer, d destinationSet) {
	buf.WriteByte('{')
	w := jsonFieldsWriter{buf: buf}
	if nil != oa {
		for _, key := range oa.keys {
			v := oa.values[key]
			if destNone == v.destinations&d {
				continue
			}
			w.addValue(key, v.value)
		}
	}
	buf.WriteByte('}')
}

// forDestination returns a map copy for use in tests and custom JSON.
func (oa *orderedAttributes) forDestination(d destinationSet) map[string]interface{} {
	out := make(map[string]interface{})
	for _, key := range oa.keys {
		if v := oa.values[key]; destNone != v.destinations&d {
			out[key] = v.value
		}
	}
	return out
}

// Attributes are key value pairs attached to a transaction, split into agent
// attributes collected automatically and user attributes added through the
// API.
type Attributes struct {
	config *AttributeConfig
	Agent  orderedAttributes
	User   orderedAttributes
}

// NewAttributes creates a new Attributes.
func NewAttributes(config *AttributeConfig) *Attributes {
	return &Attributes{config: config}
}

// ErrInvalidAttributeType is returned when the value is not valid.
type ErrInvalidAttributeType struct {
	key string
	val interface{}
}

func (e ErrInvalidAttributeType) Error() string {
	return fmt.Sprintf("attribute '%s' value of type %T is invalid", e.key, e.val)
}

type invalidAttributeKeyErr struct{ key string }

func (e invalidAttributeKeyErr) Error() string {
	return fmt.Sprintf("attribute key '%.32s...' exceeds length limit %d",
		e.key, attributeKeyLengthLimit)
}

type userAttributeLimitErr struct{ key string }

func (e userAttributeLimitErr) Error() string {
	return fmt.Sprintf("attribute '%s' discarded: limit of %d reached", e.key,
		attributeUserLimit)
}

func truncateStringValueIfLong(val string) string {
	if len(val) > attributeValueLengthLimit {
		return StringLengthByteLimit(val, attributeValueLengthLimit)
	}
	return val
}

// ValidateUserAttribute validates a user attribute.
func ValidateUserAttribute(key string, val interface{}) (interface{}, error) {
	if str, ok := val.(string); ok {
		val = interface{}(truncateStringValueIfLong(str))
	}

	switch val.(type) {
	case string, bool,
		uint8, uint16, uint32, uint64, int8, int16, int32, int64,
		uint, int, uintptr:
	case float32:
		if err := validateFloat(float64(val.(float32)), key); err != nil {
			return nil, err
		}
	case float64:
		if err := validateFloat(val.(float64), key); err != nil {
			return nil, err
		}
	default:
		return nil, ErrInvalidAttributeType{
			key: key,
			val: val,
		}
	}

	// Attributes whose keys are excessively long are dropped rather than
	// truncated to avoid worrying about the application of configuration
	// to truncated values or performing the truncation after
	// configuration.
	if len(key) > attributeKeyLengthLimit {
		return nil, invalidAttributeKeyErr{key: key}
	}
	return val, nil
}

func validateFloat(v float64, key string) error {
	if v != v || v > 1e308 || v < -1e308 {
		return fmt.Errorf("attribute '%s' with float value %f is invalid", key, v)
	}
	return nil
}

// AddUserAttribute adds a user attribute.
func AddUserAttribute(a *Attributes, key string, val interface{}, d destinationSet) error {
	val, err := ValidateUserAttribute(key, val)
	if nil != err {
		return err
	}
	dests := applyAttributeConfig(a.config, key, d)
	if destNone == dests {
		return nil
	}
	// Replacing an existing key does not count against the limit.
	if !a.User.has(key) && a.User.len() >= attributeUserLimit {
		return userAttributeLimitErr{key}
	}
	a.User.set(key, attributeValue{value: val, destinations: dests})
	return nil
}

// addAgent records an agent attribute.  Empty strings are not recorded.
func (a *Attributes) addAgent(key string, val interface{}, d destinationSet) {
	if s, ok := val.(string); ok {
		if "" == s {
			return
		}
		val = truncateStringValueIfLong(s)
	}
	dests := applyAttributeConfig(a.config, key, d)
	if destNone == dests {
		return
	}
	a.Agent.set(key, attributeValue{value: val, destinations: dests})
}

// agent attribute names
const (
	AttributeRequestMethod   = "request.method"
	AttributeRequestURI      = "request.uri"
	AttributeRequestHost     = "request.headers.host"
	AttributeRequestAccept   = "request.headers.accept"
	AttributeResponseCode    = "httpResponseCode"
	AttributeHostDisplayName = "host.displayName"
)

type jsonFieldsWriter struct {
	buf        *bytes.Buffer
	needsComma bool
}

func (w *jsonFieldsWriter) addKey(key string) {
	if w.needsComma {
		w.buf.WriteByte(',')
	} else {
		w.needsComma = true
	}
	// defensively assume that the key needs escaping:
	jsonx.AppendString(w.buf, key)
	w.buf.WriteByte(':')
}

func (w *jsonFieldsWriter) stringField(key string, val string) {
	w.addKey(key)
	jsonx.AppendString(w.buf, val)
}

func (w *jsonFieldsWriter) intField(key string, val int64) {
	w.addKey(key)
	jsonx.AppendInt(w.buf, val)
}

func (w *jsonFieldsWriter) floatField(key string, val float64) {
	w.addKey(key)
	jsonx.AppendFloat(w.buf, val)
}

func (w *jsonFieldsWriter) boolField(key string, val bool) {
	w.addKey(key)
	if val {
		w.buf.WriteString("true")
	} else {
		w.buf.WriteString("false")
	}
}

func (w *jsonFieldsWriter) rawField(key string, val []byte) {
	w.addKey(key)
	w.buf.Write(val)
}

func (w *jsonFieldsWriter) writerField(key string, val interface{ WriteJSON(*bytes.Buffer) }) {
	w.addKey(key)
	val.WriteJSON(w.buf)
}

func (w *jsonFieldsWriter) addValue(key string, val interface{}) {
	w.addKey(key)
	jsonx.AppendValue(w.buf, val)
}
