// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package newrelic

import (
	"context"
	"time"
)

// Application represents your application.  All methods on Application are nil
// safe.  Therefore, a nil Application pointer can be safely used as a mock.
type Application struct {
	Private interface{}
	app     *app
}

// NewApplication creates an Application and spawns goroutines to deliver
// harvest payloads.  If a configuration problem is found, every problem is
// returned in a *multierror.Error and the Application is nil.
//
//	app, err := newrelic.NewApplication(
//		newrelic.ConfigAppName("Example App"),
//		newrelic.ConfigFromEnvironment(),
//		newrelic.ConfigHarvestSink(newrelic.NewWriterSink(os.Stdout)),
//	)
//
func NewApplication(opts ...ConfigOption) (*Application, error) {
	cfg := NewConfig("")
	for _, fn := range opts {
		if nil != fn {
			fn(&cfg)
		}
	}
	if err := cfg.Validate(); nil != err {
		return nil, err
	}
	app, err := newApp(cfg)
	if nil != err {
		return nil, err
	}
	return &Application{
		Private: app,
		app:     app,
	}, nil
}

// StartTransaction begins a Transaction with the given name.  It returns nil
// once the Application has been shut down; a nil Transaction is safe to use.
func (app *Application) StartTransaction(name string) *Transaction {
	if nil == app || nil == app.app {
		return nil
	}
	return app.app.StartTransaction(name)
}

// RecordCustomEvent adds a custom event.
//
// eventType must consist of alphanumeric characters, underscores, and
// colons, and must contain fewer than 255 bytes.
//
// Each value in the params map must be a number, string, or boolean.
// Keys must be less than 255 bytes.  The params map may not contain
// more than 64 attributes.
//
// Custom events are not recorded in high security mode.  An error is logged
// if eventType or params is invalid.
func (app *Application) RecordCustomEvent(eventType string, params map[string]interface{}) {
	if nil == app || nil == app.app {
		return
	}
	if err := app.app.RecordCustomEvent(eventType, params); nil != err {
		app.app.Error("unable to record custom event", map[string]interface{}{
			"event-type": eventType,
			"reason":     err.Error(),
		})
	}
}

// RecordCustomMetric records a custom metric.  The metric name you
// provide will be prefixed by "Custom/".
func (app *Application) RecordCustomMetric(name string, value float64) {
	if nil == app || nil == app.app {
		return
	}
	if err := app.app.RecordCustomMetric(name, value); nil != err {
		app.app.Error("unable to record custom metric", map[string]interface{}{
			"metric-name": name,
			"reason":      err.Error(),
		})
	}
}

// Harvest swaps the collected data for an empty harvest and places the
// resulting payloads on the queue of the HarvestSink.  Payloads which do not
// fit in the queue are dropped.  Harvest is called periodically when
// Config.Enabled is true.
func (app *Application) Harvest(ctx context.Context) error {
	if nil == app || nil == app.app {
		return nil
	}
	return app.app.harvestNow(ctx)
}

// Shutdown performs a final harvest and waits up to timeout for the
// HarvestSink to receive every queued payload.  After Shutdown is called,
// the Application is disabled and will never collect data again.
func (app *Application) Shutdown(timeout time.Duration) {
	if nil == app || nil == app.app {
		return
	}
	app.app.Shutdown(timeout)
}

// Config returns the configuration the Application was created with.
func (app *Application) Config() (Config, bool) {
	if nil == app || nil == app.app {
		return Config{}, false
	}
	return app.app.config, true
}
