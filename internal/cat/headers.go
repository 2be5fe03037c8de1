// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package cat implements the legacy cross application tracing headers and
// the synthetics header.
package cat

const (
	// NewRelicIDName is the name of the X-NewRelic-ID header.
	NewRelicIDName = "X-NewRelic-ID"
	// NewRelicTxnName is the name of the X-NewRelic-Transaction header.
	NewRelicTxnName = "X-NewRelic-Transaction"
	// NewRelicAppDataName is the name of the X-NewRelic-App-Data header.
	NewRelicAppDataName = "X-NewRelic-App-Data"
	// NewRelicSyntheticsName is the name of the X-NewRelic-Synthetics header.
	NewRelicSyntheticsName = "X-NewRelic-Synthetics"
)
