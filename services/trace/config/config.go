// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the YAML configuration of the trace analyzer.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strings"

	"github.com/AleutianAI/fstrace/services/trace/align"
	"github.com/AleutianAI/fstrace/services/trace/events"
	"github.com/AleutianAI/fstrace/services/trace/stats"
)

// ErrInvalidConfig indicates a configuration value is out of range.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the full analyzer configuration.
type Config struct {
	// Operation is the recorder operation analyzed, e.g. "Open".
	Operation string `yaml:"operation"`

	// Normalize collapses shared-library version suffixes when true.
	Normalize bool `yaml:"normalize"`

	// Seed drives every random draw.
	Seed uint64 `yaml:"seed"`

	// Workers bounds parallel folds and pairs. 0 means one per CPU.
	Workers int `yaml:"workers"`

	// TopN is how many paths the count matrix and trie dump keep.
	TopN int `yaml:"top_n"`

	// LabelTrim lists substrings removed from trace ids in matrix labels.
	LabelTrim []string `yaml:"label_trim"`

	// StrictUnobserved fails LOO on a prediction from an unobserved state.
	StrictUnobserved bool `yaml:"strict_unobserved"`

	Alignment align.Scoring   `yaml:"alignment"`
	Outliers  OutliersConfig  `yaml:"outliers"`
	Cache     CacheConfig     `yaml:"cache"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type OutliersConfig struct {
	MADMultiplier float64 `yaml:"mad_multiplier"`
}

type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // required when Enabled
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir,omitempty"`
}

type TelemetryConfig struct {
	TraceExporter  string `yaml:"trace_exporter"`  // none, stdout, otlp
	MetricExporter string `yaml:"metric_exporter"` // none, stdout, prometheus
	OTLPEndpoint   string `yaml:"otlp_endpoint,omitempty"`
	MetricsFile    string `yaml:"metrics_file,omitempty"`
}

// DefaultConfig returns the configuration used when no file overrides it.
func DefaultConfig() Config {
	return Config{
		Operation: events.DefaultOperation,
		Normalize: true,
		Seed:      1,
		Workers:   0,
		TopN:      50,
		LabelTrim: []string{".out", "lammps-"},
		Alignment: align.DefaultScoring(),
		Outliers:  OutliersConfig{MADMultiplier: stats.DefaultMADMultiplier},
		Cache:     CacheConfig{Enabled: false},
		Logging:   LoggingConfig{Level: "info"},
		Telemetry: TelemetryConfig{
			TraceExporter:  "none",
			MetricExporter: "none",
		},
	}
}

// EffectiveWorkers resolves Workers to a positive count.
func (c *Config) EffectiveWorkers() int {
	if c.Workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return c.Workers
}

var (
	validLevels          = []string{"debug", "info", "warn", "error"}
	validTraceExporters  = []string{"none", "stdout", "otlp"}
	validMetricExporters = []string{"none", "stdout", "prometheus"}
)

func oneOf(v string, allowed []string) bool {
	return slices.Contains(allowed, v)
}

// Validate lower-cases the enumerated names and checks value ranges. All
// problems are reported together.
func (c *Config) Validate() error {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Telemetry.TraceExporter = strings.ToLower(strings.TrimSpace(c.Telemetry.TraceExporter))
	c.Telemetry.MetricExporter = strings.ToLower(strings.TrimSpace(c.Telemetry.MetricExporter))

	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if strings.TrimSpace(c.Operation) == "" {
		bad("operation must not be empty")
	}
	if c.Workers < 0 {
		bad("workers must be >= 0, got %d", c.Workers)
	}
	if c.TopN < 0 {
		bad("top_n must be >= 0, got %d", c.TopN)
	}
	if c.Outliers.MADMultiplier <= 0 {
		bad("outliers.mad_multiplier must be > 0, got %g", c.Outliers.MADMultiplier)
	}
	if c.Alignment.Gap > 0 {
		bad("alignment.gap must be <= 0, got %d", c.Alignment.Gap)
	}
	if c.Alignment.Match < c.Alignment.Mismatch {
		bad("alignment.match (%d) must be >= alignment.mismatch (%d)", c.Alignment.Match, c.Alignment.Mismatch)
	}
	if c.Cache.Enabled && strings.TrimSpace(c.Cache.Path) == "" {
		bad("cache.path is required when cache.enabled is true")
	}
	if !oneOf(c.Logging.Level, validLevels) {
		bad("logging.level %q not in %v", c.Logging.Level, validLevels)
	}
	if !oneOf(c.Telemetry.TraceExporter, validTraceExporters) {
		bad("telemetry.trace_exporter %q not in %v", c.Telemetry.TraceExporter, validTraceExporters)
	}
	if !oneOf(c.Telemetry.MetricExporter, validMetricExporters) {
		bad("telemetry.metric_exporter %q not in %v", c.Telemetry.MetricExporter, validMetricExporters)
	}
	return errors.Join(errs...)
}
