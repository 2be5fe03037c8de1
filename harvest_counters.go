// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package newrelic

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	countersNamespace = "newrelic"
	countersSubsystem = "harvest"
)

// harvestCounters track the payloads passing through the harvest queue.
type harvestCounters struct {
	enqueued  prometheus.Counter
	dropped   prometheus.Counter
	delivered prometheus.Counter
	failed    prometheus.Counter
}

func newHarvestCounter(appName, name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   countersNamespace,
		Subsystem:   countersSubsystem,
		Name:        name,
		Help:        help,
		ConstLabels: prometheus.Labels{"app": appName},
	})
}

func newHarvestCounters(appName string, reg prometheus.Registerer) (*harvestCounters, error) {
	c := &harvestCounters{
		enqueued:  newHarvestCounter(appName, "payloads_enqueued_total", "Harvest payloads placed on the queue."),
		dropped:   newHarvestCounter(appName, "payloads_dropped_total", "Harvest payloads dropped because the queue was full."),
		delivered: newHarvestCounter(appName, "payloads_delivered_total", "Harvest payloads accepted by the sink."),
		failed:    newHarvestCounter(appName, "payloads_failed_total", "Harvest payloads the sink failed to deliver."),
	}
	if nil == reg {
		return c, nil
	}
	for _, collector := range []prometheus.Collector{c.enqueued, c.dropped, c.delivered, c.failed} {
		if err := reg.Register(collector); nil != err {
			return nil, err
		}
	}
	return c, nil
}
