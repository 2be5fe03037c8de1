// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package internal

import (
	"math"
	"sync"
	"time"
)

// AdaptiveSamplerInput configures an AdaptiveSampler: roughly Target
// transactions are sampled in each Period.
type AdaptiveSamplerInput struct {
	Period time.Duration
	Target uint64
}

// AdaptiveSampler decides the "sampled" flag of transactions that did not
// inherit one from an inbound distributed trace payload.
type AdaptiveSampler struct {
	sync.Mutex
	AdaptiveSamplerInput
	rand RandomSource

	// minPriority is 1 - target/seen of the previous period.  Every
	// transaction is sampled during the first period.
	minPriority float32
	periodEnd   time.Time
	seen        uint64
	sampled     uint64
}

// NewAdaptiveSampler creates a sampler whose first period starts at now.
func NewAdaptiveSampler(input AdaptiveSamplerInput, rs RandomSource, now time.Time) *AdaptiveSampler {
	return &AdaptiveSampler{
		AdaptiveSamplerInput: input,
		rand:                 rs,
		periodEnd:            now.Add(input.Period),
	}
}

// rollover starts a new period for every period boundary crossed.  Only
// the most recent period's counts inform the new minimum priority.
func (as *AdaptiveSampler) rollover(now time.Time) {
	for now.After(as.periodEnd) {
		as.minPriority = 0
		if as.seen > 0 {
			as.minPriority = 1 - float32(as.Target)/float32(as.seen)
		}
		as.seen = 0
		as.sampled = 0
		as.periodEnd = as.periodEnd.Add(as.Period)
	}
}

// backoff is used once the target has been exceeded in the current period.
// The probability of sampling shrinks exponentially with the number of
// transactions sampled so far.
func (as *AdaptiveSampler) backoff() bool {
	target := float64(as.Target)
	limit := math.Pow(target, target/float64(as.sampled)) - math.Pow(target, 0.5)
	return float64(as.rand.Uint64N(as.seen)) < limit
}

// ComputeSampled reports whether a transaction with the given priority is
// sampled.
func (as *AdaptiveSampler) ComputeSampled(priority float32, now time.Time) bool {
	if nil == as {
		return false
	}
	as.Lock()
	defer as.Unlock()

	as.rollover(now)
	as.seen++

	var sampled bool
	if as.sampled > as.Target {
		sampled = as.backoff()
	} else {
		sampled = priority >= as.minPriority
	}
	if sampled {
		as.sampled++
	}
	return sampled
}
