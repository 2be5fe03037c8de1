// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package internal

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/newrelic/go-agent-core/internal/jsonx"
)

// StringTable deduplicates the segment names of a transaction trace.  Each
// distinct string is stored once and referenced by "`N", N being its
// zero-based position in the table.
type StringTable struct {
	index   map[string]int
	strings []string
}

const stringTableRefPrefix = "`"

// NewStringTable creates an empty table.
func NewStringTable() *StringTable {
	return &StringTable{index: make(map[string]int)}
}

// Intern stores s if it is not already present and returns its reference.
func (st *StringTable) Intern(s string) string {
	idx, ok := st.index[s]
	if !ok {
		idx = len(st.strings)
		st.index[s] = idx
		st.strings = append(st.strings, s)
	}
	return stringTableRefPrefix + strconv.Itoa(idx)
}

// Strings returns the table contents in insertion order.
func (st *StringTable) Strings() []string {
	if nil == st {
		return nil
	}
	return st.strings
}

// Len returns the number of distinct strings.
func (st *StringTable) Len() int {
	if nil == st {
		return 0
	}
	return len(st.strings)
}

// Resolve returns the string a reference points to.  Values which are not
// references to this table are returned unchanged with ok set to false.
func (st *StringTable) Resolve(ref string) (string, bool) {
	if nil == st || !strings.HasPrefix(ref, stringTableRefPrefix) {
		return ref, false
	}
	idx, err := strconv.Atoi(ref[len(stringTableRefPrefix):])
	if nil != err || idx < 0 || idx >= len(st.strings) {
		return ref, false
	}
	return st.strings[idx], true
}

// WriteJSON writes the table as a JSON array of strings.
func (st *StringTable) WriteJSON(buf *bytes.Buffer) {
	jsonx.AppendStringArray(buf, st.Strings()...)
}
