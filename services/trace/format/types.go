// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package format writes analysis results as CSV, JSON or Markdown.
//
// Every result type is first flattened into one or more Tables; CSV and
// Markdown render tables, JSON marshals the result (or a JSON view of it for
// matrices with unexported state).
package format

import (
	"io"

	"github.com/AleutianAI/fstrace/services/trace/distance"
	"github.com/AleutianAI/fstrace/services/trace/events"
	"github.com/AleutianAI/fstrace/services/trace/markov"
	"github.com/AleutianAI/fstrace/services/trace/timing"
)

// FormatType represents the type of output format.
type FormatType string

const (
	// FormatCSV is comma-separated tables, the input external plotting expects.
	FormatCSV FormatType = "csv"

	// FormatJSON is full JSON output.
	FormatJSON FormatType = "json"

	// FormatMarkdown is table output for terminals and reports.
	FormatMarkdown FormatType = "markdown"
)

// NotAvailable renders a NotObserved transition probability.
const NotAvailable = "NA"

// Formatter writes results in one output representation.
type Formatter interface {
	// Name returns the format name.
	Name() FormatType

	// Write renders result to w.
	Write(w io.Writer, result any) error
}

// EventTable is the per-event output of a trace set.
type EventTable struct {
	Events []events.Event `json:"events"`
}

// DistanceReport is a distance matrix with its display labels.
type DistanceReport struct {
	Labels []string         `json:"labels"`
	Matrix *distance.Matrix `json:"matrix"`
}

// ModelReport collects the Markov LOO run, the frequency baselines and the
// transition-time residuals of one analysis run.
type ModelReport struct {
	RunID  string   `json:"run_id"`
	Seed   uint64   `json:"seed"`
	Traces []string `json:"traces"`

	Markov         *markov.LOOResult `json:"markov"`
	MarkovAccuracy float64           `json:"markov_accuracy"`

	// Baseline draws from one distribution pooled over every trace.
	Baseline         markov.Tally `json:"baseline"`
	BaselineAccuracy float64      `json:"baseline_accuracy"`

	// BaselineLOO pools the distribution from the training folds only.
	BaselineLOO         *markov.LOOResult `json:"baseline_loo"`
	BaselineLOOAccuracy float64           `json:"baseline_loo_accuracy"`

	Residuals       timing.ResidualSet    `json:"residuals"`
	ResidualSummary []timing.StateSummary `json:"residual_summary"`
}

// CountReport holds the global path counts and the top-N trace x path matrix.
type CountReport struct {
	Global []events.PathCount `json:"global"`
	Top    events.CountMatrix `json:"top"`
}

// TrieRow is one node of a trie dump.
type TrieRow struct {
	Path  string `json:"path"`
	Name  string `json:"name"`
	Depth int    `json:"depth"`
	Count int    `json:"count"`
}

// TrieReport is a depth-first trie dump with its outlier-filtered count range
// and an optional point lookup.
type TrieReport struct {
	Nodes []TrieRow `json:"nodes"`

	MADMultiplier float64 `json:"mad_multiplier"`
	RangeLo       float64 `json:"range_lo"`
	RangeHi       float64 `json:"range_hi"`
	HasRange      bool    `json:"has_range"`

	// Query is the --find path. Found is nil when it is absent from the trie.
	Query string   `json:"query,omitempty"`
	Found *TrieRow `json:"found,omitempty"`
}
