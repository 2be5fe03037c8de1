// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package cat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyntheticsUnmarshalInvalid(t *testing.T) {
	for _, input := range []string{
		`[]`,
		`[1,2,3,4]`,
	} {
		err := json.Unmarshal([]byte(input), &SyntheticsHeader{})
		if _, ok := err.(errUnexpectedArraySize); !ok {
			t.Errorf("given %s: error expected to be errUnexpectedArraySize; got %v", input, err)
		}
	}

	for _, input := range []string{
		`[0,1234,"resource","job","monitor"]`,
		`[2,1234,"resource","job","monitor"]`,
	} {
		err := json.Unmarshal([]byte(input), &SyntheticsHeader{})
		if _, ok := err.(errUnexpectedSyntheticsVersion); !ok {
			t.Errorf("given %s: error expected to be errUnexpectedSyntheticsVersion; got %v", input, err)
		}
	}

	for _, tc := range []struct {
		input string
		err   error
	}{
		{`false`, errInvalidSyntheticsJSON},
		{`1234`, errInvalidSyntheticsJSON},
		{`{}`, errInvalidSyntheticsJSON},
		{`["version",1234,"resource","job","monitor"]`, errInvalidSyntheticsVersion},
		{`[1,"account","resource","job","monitor"]`, errInvalidSyntheticsAccountID},
		{`[1,1234,0,"job","monitor"]`, errInvalidSyntheticsResourceID},
		{`[1,1234,"resource",-1,"monitor"]`, errInvalidSyntheticsJobID},
		{`[1,1234,"resource","job",false]`, errInvalidSyntheticsMonitorID},
	} {
		if err := json.Unmarshal([]byte(tc.input), &SyntheticsHeader{}); err != tc.err {
			t.Errorf("given %s: error expected to be %v; got %v", tc.input, tc.err, err)
		}
	}
}

func TestSyntheticsUnmarshalValid(t *testing.T) {
	h := &SyntheticsHeader{}
	require.NoError(t, json.Unmarshal([]byte(`[1,444,"aaa","bbb","ccc"]`), h))
	assert.Equal(t, SyntheticsHeader{
		Version:    1,
		AccountID:  444,
		ResourceID: "aaa",
		JobID:      "bbb",
		MonitorID:  "ccc",
	}, *h)
}

func TestDecodeSyntheticsHeader(t *testing.T) {
	key := "1234567890123456789012345678901234567890"
	value, err := Obfuscate([]byte(`[1,444,"resource","job","monitor"]`), []byte(key))
	require.NoError(t, err)

	h, err := DecodeSyntheticsHeader(value, key, map[int]struct{}{444: {}})
	require.NoError(t, err)
	assert.Equal(t, "resource", h.ResourceID)

	_, err = DecodeSyntheticsHeader(value, key, map[int]struct{}{1: {}})
	assert.Error(t, err)

	_, err = DecodeSyntheticsHeader("not base64!", key, map[int]struct{}{444: {}})
	assert.Error(t, err)
}
