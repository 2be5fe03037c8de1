// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package newrelic

const (
	major = "1"
	minor = "0"
	patch = "0"

	// Version is the full string version of this module.
	Version = major + "." + minor + "." + patch
)
