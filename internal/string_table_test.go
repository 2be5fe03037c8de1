// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package internal

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringTableIntern(t *testing.T) {
	st := NewStringTable()
	assert.Equal(t, "`0", st.Intern("Custom/a"))
	assert.Equal(t, "`1", st.Intern("Custom/b"))
	assert.Equal(t, "`0", st.Intern("Custom/a"))
	assert.Equal(t, []string{"Custom/a", "Custom/b"}, st.Strings())
	assert.Equal(t, 2, st.Len())
}

func TestStringTableResolve(t *testing.T) {
	st := NewStringTable()
	for _, s := range []string{"ROOT", "WebTransaction/Custom/x", "Datastore/operation/MySQL/select"} {
		ref := st.Intern(s)
		got, ok := st.Resolve(ref)
		assert.True(t, ok)
		assert.Equal(t, s, got)
	}

	for _, ref := range []string{"plain", "`", "`x", "`-1", "`3"} {
		got, ok := st.Resolve(ref)
		assert.False(t, ok, ref)
		assert.Equal(t, ref, got)
	}
}

func TestStringTableNil(t *testing.T) {
	var st *StringTable
	assert.Nil(t, st.Strings())
	assert.Zero(t, st.Len())
	got, ok := st.Resolve("`0")
	assert.False(t, ok)
	assert.Equal(t, "`0", got)

	buf := &bytes.Buffer{}
	st.WriteJSON(buf)
	assert.Equal(t, "[]", buf.String())
}

func TestStringTableWriteJSON(t *testing.T) {
	st := NewStringTable()
	st.Intern("ROOT")
	st.Intern(`a"b`)
	buf := &bytes.Buffer{}
	st.WriteJSON(buf)
	assert.Equal(t, `["ROOT","a\"b"]`, buf.String())
}
