// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApdexZoneFor(t *testing.T) {
	threshold := 500 * time.Millisecond
	for _, tc := range []struct {
		duration time.Duration
		hasError bool
		want     string
	}{
		{100 * time.Millisecond, false, "S"},
		{threshold, false, "S"},
		{threshold + 1, false, "T"},
		{2 * time.Second, false, "T"},
		{2*time.Second + 1, false, "F"},
		{time.Millisecond, true, "F"},
	} {
		assert.Equal(t, tc.want, apdexZoneFor(threshold, tc.duration, tc.hasError).label(), tc.duration.String())
	}
	assert.Equal(t, "", apdexNone.label())
}
