// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package internal

import (
	"bytes"
	"strconv"
)

// Priority allows for a priority sampling of events.  When an event
// is created it is given a Priority.  Whenever an event pool is
// full and events need to be dropped, the events with the lowest priority
// are dropped.
type Priority float32

// NewPriority returns a new priority drawn from the random source.
func NewPriority(rs RandomSource) Priority {
	return Priority(rs.Float32())
}

// Float32 returns the priority as a float32.
func (p Priority) Float32() float32 {
	return float32(p)
}

func (p Priority) isLowerPriority(y Priority) bool {
	return p < y
}

// sampledBoost is added to the priority of sampled transactions so that
// their events outrank those of unsampled transactions.
func (p Priority) sampledBoost() Priority {
	return p + 1.0
}

// Agents SHOULD truncate the value to at most 6 digits past the decimal
// point.
func (p Priority) String() string {
	return strconv.FormatFloat(float64(p), 'f', 6, 32)
}

// MarshalJSON limits the number of decimals.
func (p Priority) MarshalJSON() ([]byte, error) {
	return []byte(p.String()), nil
}

// WriteJSON limits the number of decimals.
func (p Priority) WriteJSON(buf *bytes.Buffer) {
	buf.WriteString(p.String())
}

func (p Priority) traceStateFormat() string {
	return strconv.FormatFloat(float64(p), 'f', 5, 32)
}
