// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package internal

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestIsLowerPriority(t *testing.T) {
	low := Priority(0.0)
	middle := Priority(0.1)
	high := Priority(0.999999)

	if !low.isLowerPriority(middle) {
		t.Error(low, middle)
	}

	if high.isLowerPriority(middle) {
		t.Error(high, middle)
	}

	if high.isLowerPriority(high) {
		t.Error(high, high)
	}
}

func TestPriorityFormatting(t *testing.T) {
	p := Priority(0.5)
	js, err := json.Marshal(p)
	if nil != err || string(js) != "0.500000" {
		t.Error(string(js), err)
	}
	buf := &bytes.Buffer{}
	p.WriteJSON(buf)
	if buf.String() != "0.500000" {
		t.Error(buf.String())
	}
	if s := p.traceStateFormat(); s != "0.50000" {
		t.Error(s)
	}
	if b := p.sampledBoost(); b != 1.5 {
		t.Error(b)
	}
}

func TestNewPriorityUsesRandomSource(t *testing.T) {
	gen := NewTraceIDGenerator(12345)
	expect := NewTraceIDGenerator(12345).Float32()
	if p := NewPriority(gen); p.Float32() != expect {
		t.Error(p, expect)
	}
}
