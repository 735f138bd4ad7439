// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics contains the analyzer's instruments.
//
// Description:
//
//	Counters and histograms for parsing, the parse cache, distance pairs,
//	LOO folds and predictions, and residuals. All names use the "fstrace_"
//	prefix.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// --- Parsing ---

	// TracesParsed counts trace files turned into event sequences.
	TracesParsed metric.Int64Counter

	// EventsParsed counts accepted events.
	EventsParsed metric.Int64Counter

	// CacheLookups counts parse cache lookups by result (hit, miss).
	CacheLookups metric.Int64Counter

	// --- Models ---

	// PairsAligned counts trace pairs aligned for the distance matrix.
	PairsAligned metric.Int64Counter

	// FoldsEvaluated counts LOO folds by model (markov, frequency).
	FoldsEvaluated metric.Int64Counter

	// Predictions counts next-state draws by model and outcome
	// (correct, wrong, unobserved).
	Predictions metric.Int64Counter

	// Residuals counts transition-time residuals computed.
	Residuals metric.Int64Counter

	// StageDuration records the duration of each analysis stage in seconds.
	StageDuration metric.Float64Histogram

	// ErrorsTotal counts errors by stage.
	ErrorsTotal metric.Int64Counter
}

// NewMetrics registers every instrument with meter.
//
// Example:
//
//	metrics, err := telemetry.NewMetrics(otel.Meter(telemetry.TracerName))
//	if err != nil {
//	    return fmt.Errorf("create metrics: %w", err)
//	}
//	metrics.TracesParsed.Add(ctx, 1)
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.TracesParsed, err = meter.Int64Counter(
		"fstrace_traces_parsed",
		metric.WithDescription("Trace files parsed"),
		metric.WithUnit("{trace}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create traces_parsed: %w", err)
	}

	m.EventsParsed, err = meter.Int64Counter(
		"fstrace_events_parsed",
		metric.WithDescription("Filesystem events accepted by the parser"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create events_parsed: %w", err)
	}

	m.CacheLookups, err = meter.Int64Counter(
		"fstrace_cache_lookups",
		metric.WithDescription("Parse cache lookups by result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache_lookups: %w", err)
	}

	m.PairsAligned, err = meter.Int64Counter(
		"fstrace_pairs_aligned",
		metric.WithDescription("Trace pairs aligned for the distance matrix"),
		metric.WithUnit("{pair}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create pairs_aligned: %w", err)
	}

	m.FoldsEvaluated, err = meter.Int64Counter(
		"fstrace_folds_evaluated",
		metric.WithDescription("Leave-one-out folds evaluated"),
		metric.WithUnit("{fold}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create folds_evaluated: %w", err)
	}

	m.Predictions, err = meter.Int64Counter(
		"fstrace_predictions",
		metric.WithDescription("Next-state predictions by model and outcome"),
		metric.WithUnit("{prediction}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create predictions: %w", err)
	}

	m.Residuals, err = meter.Int64Counter(
		"fstrace_residuals",
		metric.WithDescription("Transition-time residuals computed"),
		metric.WithUnit("{residual}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create residuals: %w", err)
	}

	m.StageDuration, err = meter.Float64Histogram(
		"fstrace_stage_duration_seconds",
		metric.WithDescription("Analysis stage duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60, 300),
	)
	if err != nil {
		return nil, fmt.Errorf("create stage_duration: %w", err)
	}

	m.ErrorsTotal, err = meter.Int64Counter(
		"fstrace_errors",
		metric.WithDescription("Errors by stage"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create errors: %w", err)
	}

	return m, nil
}

// Attr is shorthand for a single string attribute on a measurement.
func Attr(key, value string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String(key, value))
}
