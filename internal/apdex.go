// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package internal

import "time"

// apdexZone classifies a web transaction's response time against the apdex
// threshold T.
type apdexZone int

const (
	apdexNone apdexZone = iota
	apdexSatisfying
	apdexTolerating
	apdexFailing
)

var apdexLabels = [...]string{
	apdexNone:       "",
	apdexSatisfying: "S",
	apdexTolerating: "T",
	apdexFailing:    "F",
}

// apdexZoneFor returns S up to T, T up to 4T and F beyond.  A transaction
// with an error is always F.
func apdexZoneFor(threshold, duration time.Duration, hasError bool) apdexZone {
	switch {
	case hasError:
		return apdexFailing
	case duration <= threshold:
		return apdexSatisfying
	case duration <= apdexFailingThreshold(threshold):
		return apdexTolerating
	default:
		return apdexFailing
	}
}

func apdexFailingThreshold(threshold time.Duration) time.Duration {
	return 4 * threshold
}

func (zone apdexZone) label() string {
	if zone < 0 || int(zone) >= len(apdexLabels) {
		return ""
	}
	return apdexLabels[zone]
}
