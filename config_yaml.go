// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package newrelic

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// ConfigFromYAML populates the config from a YAML document.  Settings may be
// nested or written with their dotted names; these are equivalent:
//
//	transaction_tracer:
//	  threshold: apdex_f
//	  max_segments_cli: 500
//
//	transaction_tracer.threshold: apdex_f
//	transaction_tracer.max_segments_cli: 500
//
// Durations are Go duration strings or numbers of milliseconds.  Unknown
// settings and invalid values are reported through Config.Error.
func ConfigFromYAML(r io.Reader) ConfigOption {
	return func(cfg *Config) {
		var doc map[string]interface{}
		if err := yaml.NewDecoder(r).Decode(&doc); nil != err && io.EOF != err {
			cfg.Error = fmt.Errorf("unable to parse yaml config: %v", err)
			return
		}
		ConfigFromMap(doc)(cfg)
	}
}

// ConfigFromFile populates the config from the YAML file at path.
func ConfigFromFile(path string) ConfigOption {
	return func(cfg *Config) {
		f, err := os.Open(path)
		if nil != err {
			cfg.Error = err
			return
		}
		defer f.Close()
		ConfigFromYAML(f)(cfg)
	}
}

// ConfigFromMap populates the config from decoded YAML or JSON settings.
func ConfigFromMap(doc map[string]interface{}) ConfigOption {
	return func(cfg *Config) {
		flat := make(map[string]string)
		flattenSettings("", doc, flat)

		keys := make([]string, 0, len(flat))
		for key := range flat {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		var result *multierror.Error
		for _, key := range keys {
			s, ok := lookupSetting(key)
			if !ok {
				result = multierror.Append(result, fmt.Errorf("unknown setting %s", key))
				continue
			}
			if err := s.assign(cfg, flat[key]); nil != err {
				result = multierror.Append(result, fmt.Errorf("invalid %s value: %s", key, flat[key]))
			}
		}
		if err := result.ErrorOrNil(); nil != err {
			cfg.Error = err
		}
	}
}

func flattenSettings(prefix string, doc map[string]interface{}, out map[string]string) {
	for key, val := range doc {
		if "" != prefix {
			key = prefix + "." + key
		}
		switch v := val.(type) {
		case map[string]interface{}:
			flattenSettings(key, v, out)
		case []interface{}:
			items := make([]string, 0, len(v))
			for _, item := range v {
				items = append(items, fmt.Sprint(item))
			}
			out[key] = strings.Join(items, ",")
		case nil:
			out[key] = ""
		default:
			out[key] = fmt.Sprint(v)
		}
	}
}
