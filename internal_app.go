// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package newrelic

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/newrelic/go-agent-core/internal"
	"github.com/newrelic/go-agent-core/internal/logger"
)

var (
	errApplicationShutdown  = errors.New("application has been shut down")
	errHighSecurityEnabled  = errors.New("high security enabled")
	errCustomEventsDisabled = errors.New("custom events disabled")
	errMetricNameEmpty      = errors.New("custom metric name is empty")
	errMetricValueInvalid   = errors.New("custom metric value must be a finite number")
)

type app struct {
	Logger
	config    Config
	txnConfig internal.TxnConfig
	ids       *internal.TraceIDGenerator
	sampler   *internal.AdaptiveSampler
	counters  *harvestCounters
	now       func() time.Time

	// ctx is cancelled when Shutdown gives up waiting for the sink.
	ctx    context.Context
	cancel context.CancelFunc

	// The harvest is the only data shared between transactions.
	sync.Mutex
	harvest  *internal.Harvest
	shutdown bool

	queue        chan HarvestPayload
	done         chan struct{}
	loopDone     chan struct{}
	drained      chan struct{}
	shutdownOnce sync.Once
}

func newApp(cfg Config) (*app, error) {
	counters, err := newHarvestCounters(cfg.AppName, cfg.MetricsRegisterer)
	if nil != err {
		return nil, err
	}
	now := time.Now()
	ids := internal.NewTraceIDGenerator(now.UnixNano())
	app := &app{
		Logger:    cfg.Logger,
		config:    cfg,
		txnConfig: cfg.txnConfig(),
		ids:       ids,
		sampler: internal.NewAdaptiveSampler(internal.AdaptiveSamplerInput{
			Period: cfg.DistributedTracer.SamplingPeriod,
			Target: cfg.DistributedTracer.SamplingTarget,
		}, ids, now),
		counters: counters,
		now:      time.Now,
		harvest:  internal.NewHarvest(now, cfg.harvestLimits(), ids),
		queue:    make(chan HarvestPayload, cfg.HarvestQueueSize),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
		drained:  make(chan struct{}),
	}
	if nil == app.Logger {
		app.Logger = logger.ShimLogger{}
	}
	if "" == app.config.RunID {
		app.config.RunID = ids.GenerateSpanID()
	}
	app.ctx, app.cancel = context.WithCancel(context.Background())

	go app.drain()
	if cfg.Enabled {
		go app.run()
	} else {
		close(app.loopDone)
	}

	app.Info("application created", map[string]interface{}{
		"app":     cfg.AppName,
		"run_id":  app.config.RunID,
		"version": Version,
		"enabled": cfg.Enabled,
	})
	return app, nil
}

func (app *app) run() {
	defer close(app.loopDone)

	ticker := time.NewTicker(app.config.HarvestPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := app.harvestNow(app.ctx); nil != err {
				app.Warn("harvest failed", map[string]interface{}{
					"reason": err.Error(),
				})
			}
		case <-app.done:
			return
		}
	}
}

// harvestNow swaps the harvest and enqueues its payloads.
func (app *app) harvestNow(ctx context.Context) error {
	if err := ctx.Err(); nil != err {
		return err
	}
	now := app.now()

	app.Lock()
	if app.shutdown {
		app.Unlock()
		return errApplicationShutdown
	}
	ready := app.harvest.Swap(now)
	app.Unlock()

	var payloads []HarvestPayload
	for _, p := range ready.Payloads() {
		if err := ctx.Err(); nil != err {
			return err
		}
		data, err := p.Data(app.config.RunID, now)
		if nil != err {
			app.Error("unable to create harvest data", map[string]interface{}{
				"endpoint": p.EndpointMethod(),
				"reason":   err.Error(),
			})
			continue
		}
		if nil == data {
			continue
		}
		payloads = append(payloads, HarvestPayload{
			Endpoint: p.EndpointMethod(),
			RunID:    app.config.RunID,
			Data:     data,
			Created:  now,
			creator:  p,
		})
	}

	app.Lock()
	defer app.Unlock()
	for _, p := range payloads {
		app.enqueue(p)
	}
	if app.DebugEnabled() {
		app.Debug("harvest complete", map[string]interface{}{
			"payloads": len(payloads),
		})
	}
	return nil
}

// enqueue must be called with the app lock held.
func (app *app) enqueue(p HarvestPayload) {
	if app.shutdown {
		return
	}
	select {
	case app.queue <- p:
		app.counters.enqueued.Inc()
	default:
		app.counters.dropped.Inc()
		app.Warn("harvest queue full, payload dropped", map[string]interface{}{
			"endpoint": p.Endpoint,
		})
	}
}

func (app *app) drain() {
	defer close(app.drained)
	for p := range app.queue {
		app.deliver(p)
	}
}

func (app *app) deliver(p HarvestPayload) {
	defer func() {
		if r := recover(); nil != r {
			app.counters.failed.Inc()
			app.Error("harvest sink panic", map[string]interface{}{
				"endpoint": p.Endpoint,
				"panic":    fmt.Sprint(r),
			})
		}
	}()

	if nil == app.config.HarvestSink {
		return
	}
	if err := app.config.HarvestSink.Deliver(app.ctx, p); nil != err {
		app.counters.failed.Inc()
		app.Warn("unable to deliver harvest payload", map[string]interface{}{
			"endpoint": p.Endpoint,
			"reason":   err.Error(),
		})
		if nil != p.creator {
			app.Lock()
			p.creator.MergeIntoHarvest(app.harvest)
			app.Unlock()
		}
		return
	}
	app.counters.delivered.Inc()
}

func (app *app) Shutdown(timeout time.Duration) {
	app.shutdownOnce.Do(func() {
		close(app.done)
		<-app.loopDone

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := app.harvestNow(ctx); nil != err {
			app.Warn("final harvest failed", map[string]interface{}{
				"reason": err.Error(),
			})
		}

		app.Lock()
		app.shutdown = true
		close(app.queue)
		app.Unlock()

		select {
		case <-app.drained:
		case <-ctx.Done():
			app.Warn("timeout reached before harvest queue drained", map[string]interface{}{
				"timeout": timeout.String(),
			})
			app.cancel()
		}
		app.Info("application shut down", map[string]interface{}{
			"app": app.config.AppName,
		})
	})
}

func (app *app) isShutdown() bool {
	app.Lock()
	defer app.Unlock()
	return app.shutdown
}

func (app *app) StartTransaction(name string) *Transaction {
	if app.isShutdown() {
		return nil
	}
	data := internal.NewTxnData(internal.TxnInput{
		Config:  app.txnConfig,
		Name:    name,
		Start:   app.now(),
		IDs:     app.ids,
		Sampler: app.sampler,
		Logger:  app,
	})
	return &Transaction{txn: &txn{app: app, TxnData: data}}
}

// consume merges a finished transaction into the harvest.
func (app *app) consume(data *internal.TxnData) {
	app.Lock()
	defer app.Unlock()
	data.MergeIntoHarvest(app.harvest)
}

func (app *app) RecordCustomEvent(eventType string, params map[string]interface{}) error {
	if app.config.HighSecurity {
		return errHighSecurityEnabled
	}
	if !app.config.CustomInsightsEvents.Enabled {
		return errCustomEventsDisabled
	}
	event, err := internal.CreateCustomEvent(eventType, params, app.now())
	if nil != err {
		return err
	}
	app.Lock()
	defer app.Unlock()
	app.harvest.RecordCustomEvent(event)
	return nil
}

func (app *app) RecordCustomMetric(name string, value float64) error {
	if "" == name {
		return errMetricNameEmpty
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return errMetricValueInvalid
	}
	app.Lock()
	defer app.Unlock()
	app.harvest.RecordCustomMetric(customMetricName(name), value)
	return nil
}

func customMetricName(name string) string {
	return "Custom/" + name
}

// ExpectCustomEvents implements internal.Expect.
func (app *app) ExpectCustomEvents(t internal.Validator, want []internal.WantEvent) {
	app.Lock()
	defer app.Unlock()
	internal.ExpectCustomEvents(t, app.harvest, want)
}

// ExpectErrors implements internal.Expect.
func (app *app) ExpectErrors(t internal.Validator, want []internal.WantError) {
	app.Lock()
	defer app.Unlock()
	internal.ExpectErrors(t, app.harvest, want)
}

// ExpectErrorEvents implements internal.Expect.
func (app *app) ExpectErrorEvents(t internal.Validator, want []internal.WantEvent) {
	app.Lock()
	defer app.Unlock()
	internal.ExpectErrorEvents(t, app.harvest, want)
}

// ExpectTxnEvents implements internal.Expect.
func (app *app) ExpectTxnEvents(t internal.Validator, want []internal.WantEvent) {
	app.Lock()
	defer app.Unlock()
	internal.ExpectTxnEvents(t, app.harvest, want)
}

// ExpectMetrics implements internal.Expect.
func (app *app) ExpectMetrics(t internal.Validator, want []internal.WantMetric) {
	app.Lock()
	defer app.Unlock()
	internal.ExpectMetrics(t, app.harvest.Metrics, want)
}

// ExpectSpanEvents implements internal.Expect.
func (app *app) ExpectSpanEvents(t internal.Validator, want []internal.WantEvent) {
	app.Lock()
	defer app.Unlock()
	internal.ExpectSpanEvents(t, app.harvest, want)
}

// ExpectTxnTraces implements internal.Expect.
func (app *app) ExpectTxnTraces(t internal.Validator, want []internal.WantTxnTrace) {
	app.Lock()
	defer app.Unlock()
	internal.ExpectTxnTraces(t, app.harvest, want)
}

// ExpectMetricsPresent checks the given metrics while allowing others.
func (app *app) ExpectMetricsPresent(t internal.Validator, want []internal.WantMetric) {
	app.Lock()
	defer app.Unlock()
	internal.ExpectMetricsPresent(t, app.harvest.Metrics, want)
}
