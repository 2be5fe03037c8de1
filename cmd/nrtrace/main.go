// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Command nrtrace replays a YAML scenario of transactions through the agent
// core and hands the harvest payloads to a sink.
//
//	nrtrace --scenario checkout.yml
//	nrtrace --scenario checkout.yml --sink kafka --brokers kafka:9092 --topic harvest
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	newrelic "github.com/newrelic/go-agent-core"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

type options struct {
	configPath   string
	scenarioPath string
	appName      string
	sink         string
	brokers      []string
	topic        string
	timeout      time.Duration
	debug        bool
}

func newFlagSet(o *options, stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("nrtrace", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&o.scenarioPath, "scenario", "s", "", "YAML scenario to replay (required)")
	fs.StringVarP(&o.configPath, "config", "c", "", "YAML agent configuration file")
	fs.StringVar(&o.appName, "app-name", "nrtrace", "application name, unless set by the configuration")
	fs.StringVar(&o.sink, "sink", "stdout", "payload destination: stdout or kafka")
	fs.StringSliceVar(&o.brokers, "brokers", []string{"localhost:9092"}, "Kafka brokers")
	fs.StringVar(&o.topic, "topic", "newrelic-harvest", "Kafka topic")
	fs.DurationVar(&o.timeout, "timeout", 10*time.Second, "time allowed for delivering the final harvest")
	fs.BoolVarP(&o.debug, "debug", "d", false, "enable debug logging")
	return fs
}

// countingSink tallies delivered payloads by endpoint.
type countingSink struct {
	sync.Mutex
	next   newrelic.HarvestSink
	counts map[string]int
}

func (s *countingSink) Deliver(ctx context.Context, p newrelic.HarvestPayload) error {
	if err := s.next.Deliver(ctx, p); nil != err {
		return err
	}
	s.Lock()
	defer s.Unlock()
	s.counts[p.Endpoint]++
	return nil
}

func (s *countingSink) summary() *zerolog.Event {
	s.Lock()
	defer s.Unlock()
	endpoints := make([]string, 0, len(s.counts))
	for ep := range s.counts {
		endpoints = append(endpoints, ep)
	}
	sort.Strings(endpoints)
	d := zerolog.Dict()
	for _, ep := range endpoints {
		d.Int(ep, s.counts[ep])
	}
	return d
}

func buildSink(o *options, stdout io.Writer) (newrelic.HarvestSink, func() error, error) {
	switch o.sink {
	case "stdout":
		return newrelic.NewWriterSink(stdout), func() error { return nil }, nil
	case "kafka":
		ks, err := newrelic.NewKafkaSink(o.brokers, o.topic, nil)
		if nil != err {
			return nil, nil, err
		}
		return ks, ks.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown sink %q", o.sink)
	}
}

func run(args []string, stdout, stderr io.Writer) int {
	o := &options{}
	fs := newFlagSet(o, stderr)
	if err := fs.Parse(args); nil != err {
		if pflag.ErrHelp == err {
			return 0
		}
		return 2
	}
	if "" == o.scenarioPath {
		fmt.Fprintln(stderr, "--scenario is required")
		fs.PrintDefaults()
		return 2
	}

	level := zerolog.InfoLevel
	if o.debug {
		level = zerolog.DebugLevel
	}
	zl := zerolog.New(stderr).Level(level).With().Timestamp().Str("component", "nrtrace").Logger()

	scenario, err := LoadScenarioFile(o.scenarioPath)
	if nil != err {
		zl.Error().Err(err).Str("scenario", o.scenarioPath).Msg("unable to load scenario")
		return 1
	}

	sink, closeSink, err := buildSink(o, stdout)
	if nil != err {
		zl.Error().Err(err).Str("sink", o.sink).Msg("unable to create sink")
		return 2
	}
	defer func() {
		if err := closeSink(); nil != err {
			zl.Warn().Err(err).Msg("unable to close sink")
		}
	}()
	counter := &countingSink{next: sink, counts: make(map[string]int)}

	opts := []newrelic.ConfigOption{newrelic.ConfigAppName(o.appName)}
	if "" != o.configPath {
		opts = append(opts, newrelic.ConfigFromFile(o.configPath))
	}
	opts = append(opts,
		newrelic.ConfigFromEnvironment(),
		// The replay harvests once, at shutdown.
		newrelic.ConfigEnabled(false),
		newrelic.ConfigLogger(newrelic.ZerologLogger(&zl)),
		newrelic.ConfigHarvestSink(counter),
	)
	app, err := newrelic.NewApplication(opts...)
	if nil != err {
		zl.Error().Err(err).Msg("invalid configuration")
		return 1
	}

	start := time.Now()
	n := Replay(app, scenario)
	app.Shutdown(o.timeout)

	zl.Info().
		Int("transactions", n).
		Dur("elapsed", time.Since(start)).
		Dict("payloads", counter.summary()).
		Msg("replay complete")
	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
