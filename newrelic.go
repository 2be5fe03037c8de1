// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package newrelic records transaction traces, metrics, span events and
// errors for Go applications and hands the harvested data to a
// HarvestSink.
//
// An Application collects the data.  Create one with NewApplication:
//
//	app, err := newrelic.NewApplication(
//		newrelic.ConfigAppName("Your Application Name"),
//		newrelic.ConfigFromFile("newrelic.yml"),
//		newrelic.ConfigHarvestSink(newrelic.NewWriterSink(os.Stdout)),
//	)
//
// A Transaction times one request or background task.  Segments time the
// work inside it and form the transaction trace:
//
//	txn := app.StartTransaction("processOrder")
//	defer txn.End()
//
//	s := txn.StartSegment("validate")
//	validate(order)
//	s.End()
//
//	ds := txn.StartDatastoreSegment(datastore.Postgres, "orders", "INSERT")
//	insert(order)
//	ds.End()
//
// Every harvest period, and on Application.Harvest, the collected data is
// serialized into one payload per endpoint and queued for the HarvestSink.
package newrelic
