// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package internal

import (
	"testing"
	"time"
)

func TestRemoveFirstSegment(t *testing.T) {
	testcases := []struct {
		input    string
		expected string
	}{
		{input: "no_seperators", expected: "no_seperators"},
		{input: "heyo/zip/zap", expected: "zip/zap"},
		{input: "ends_in_slash/", expected: ""},
		{input: "☃☃☃/✓✓✓/heyo", expected: "✓✓✓/heyo"},
		{input: "☃☃☃/", expected: ""},
		{input: "/", expected: ""},
		{input: "", expected: ""},
	}

	for _, tc := range testcases {
		out := removeFirstSegment(tc.input)
		if out != tc.expected {
			t.Fatal(tc.input, out, tc.expected)
		}
	}
}

func TestTimeToFloatMilliseconds(t *testing.T) {
	tm := time.Unix(123, 456789000)
	if ms := timeToFloatMilliseconds(tm); ms != 123456.789 {
		t.Error(ms)
	}
}

func TestUnixMillisecondsRoundTrip(t *testing.T) {
	tm := time.Unix(1488393111, 123*1000*1000)
	ms := TimeToUnixMilliseconds(tm)
	if ms != 1488393111123 {
		t.Fatal(ms)
	}
	if back := timeFromUnixMilliseconds(ms); !back.Equal(tm) {
		t.Error(back, tm)
	}
}

func TestStringLengthByteLimit(t *testing.T) {
	testcases := []struct {
		input  string
		limit  int
		expect string
	}{
		{"", 255, ""},
		{"awesome", -1, ""},
		{"awesome", 0, ""},
		{"awesome", 1, "a"},
		{"awesome", 7, "awesome"},
		{"awesome", 20, "awesome"},
		{"日本\x80語", 10, "日本\x80語"},
		{"日本語", 10, "日本語"},
		{"日本語", 8, "日本"},
	}
	for _, tc := range testcases {
		out := StringLengthByteLimit(tc.input, tc.limit)
		if out != tc.expect {
			t.Error(tc.input, tc.limit, tc.expect, out)
		}
	}
}

func TestCompactJSONString(t *testing.T) {
	if out := CompactJSONString(`{ "zip": [ 1, 2 ] }`); out != `{"zip":[1,2]}` {
		t.Error(out)
	}
}
