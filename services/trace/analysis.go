// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package trace

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/fstrace/services/trace/distance"
	"github.com/AleutianAI/fstrace/services/trace/format"
	"github.com/AleutianAI/fstrace/services/trace/markov"
	"github.com/AleutianAI/fstrace/services/trace/pathnorm"
	"github.com/AleutianAI/fstrace/services/trace/telemetry"
	"github.com/AleutianAI/fstrace/services/trace/timing"
	"github.com/AleutianAI/fstrace/services/trace/trie"
)

// -----------------------------------------------------------------------------
// Events
// -----------------------------------------------------------------------------

// Events returns the per-event table of the loaded set.
func (s *Service) Events() (format.EventTable, error) {
	set, err := s.TraceSet()
	if err != nil {
		return format.EventTable{}, err
	}
	return format.EventTable{Events: set.Events()}, nil
}

// -----------------------------------------------------------------------------
// Distance
// -----------------------------------------------------------------------------

// Distance builds the pairwise alignment distance matrix.
//
// Description:
//
//	Every pair of traces is aligned with the configured scoring and
//	measured by Levenshtein distance over the aligned sequences. Labels
//	are the trace ids with the configured label_trim substrings removed.
//
// Outputs:
//
//	format.DistanceReport - Matrix plus display labels.
//	error - ErrNotLoaded, or the context error when cancelled.
func (s *Service) Distance(ctx context.Context) (report format.DistanceReport, err error) {
	set, err := s.TraceSet()
	if err != nil {
		return format.DistanceReport{}, err
	}

	ctx, done := s.stage(ctx, "Distance", attribute.Int("traces", set.Len()))
	defer func() { done(err) }()

	m, err := distance.Build(ctx, set.IDs(), set.Sequences(), distance.Options{
		Scoring: s.cfg.Alignment,
		Workers: s.cfg.EffectiveWorkers(),
	})
	if err != nil {
		return format.DistanceReport{}, fmt.Errorf("build distance matrix: %w", err)
	}

	n := int64(set.Len())
	s.metrics.PairsAligned.Add(ctx, n*(n-1)/2)
	return format.DistanceReport{Labels: m.Labels(s.cfg.LabelTrim), Matrix: m}, nil
}

// -----------------------------------------------------------------------------
// Models
// -----------------------------------------------------------------------------

func (s *Service) evalOptions() markov.EvalOptions {
	return markov.EvalOptions{
		Seed:             s.cfg.Seed,
		Workers:          s.cfg.EffectiveWorkers(),
		StrictUnobserved: s.cfg.StrictUnobserved,
	}
}

// Models runs the Markov leave-one-out evaluation, both frequency baselines
// and the transition-time residuals.
//
// Description:
//
//	1. Markov LOO: each fold trains on N-1 traces and predicts the held-out
//	   trace's next paths.
//	2. Pooled frequency baseline over every trace.
//	3. Frequency baseline with the same LOO folds.
//	4. Poisson residuals over each fold's correctly predicted transitions,
//	   with time matrices trained on that fold's training traces.
//
//	All draws derive from the configured seed, so a fixed seed and trace
//	set reproduce the report exactly at any worker count.
//
// Outputs:
//
//	*format.ModelReport - Never nil on success.
//	error - ErrNotLoaded, markov.ErrInsufficientData (fewer than two traces),
//	        markov.ErrUnobservedState in strict mode, or a context error.
func (s *Service) Models(ctx context.Context) (report *format.ModelReport, err error) {
	set, err := s.TraceSet()
	if err != nil {
		return nil, err
	}

	ctx, done := s.stage(ctx, "Models", attribute.Int("traces", set.Len()))
	defer func() { done(err) }()

	ids, seqs := set.IDs(), set.Sequences()
	opts := s.evalOptions()

	loo, err := markov.EvaluateLOO(ctx, ids, seqs, opts)
	if err != nil {
		return nil, fmt.Errorf("markov leave-one-out: %w", err)
	}
	s.recordFolds(ctx, "markov", loo)

	baseline, err := markov.BuildFrequencyModel(seqs).Evaluate(seqs, markov.FoldRand(s.cfg.Seed, 0, markov.StreamPooled))
	if err != nil {
		return nil, fmt.Errorf("frequency baseline: %w", err)
	}
	s.metrics.Predictions.Add(ctx, int64(baseline.Correct), telemetry.Attr("model", "frequency"), telemetry.Attr("outcome", "correct"))
	s.metrics.Predictions.Add(ctx, int64(baseline.Wrong), telemetry.Attr("model", "frequency"), telemetry.Attr("outcome", "wrong"))

	baselineLOO, err := markov.EvaluateFrequencyLOO(ctx, ids, seqs, opts)
	if err != nil {
		return nil, fmt.Errorf("frequency leave-one-out: %w", err)
	}
	s.recordFolds(ctx, "frequency_loo", baselineLOO)

	residuals, err := timing.EvaluateResiduals(ctx, set.Traces, loo, timing.Options{
		Seed:    s.cfg.Seed,
		Workers: s.cfg.EffectiveWorkers(),
	})
	if err != nil {
		return nil, fmt.Errorf("transition time residuals: %w", err)
	}
	s.metrics.Residuals.Add(ctx, int64(residuals.Len()))

	report = &format.ModelReport{
		RunID:               s.runID,
		Seed:                s.cfg.Seed,
		Traces:              ids,
		Markov:              loo,
		MarkovAccuracy:      loo.Accuracy(),
		Baseline:            baseline,
		BaselineAccuracy:    baseline.Accuracy(),
		BaselineLOO:         baselineLOO,
		BaselineLOOAccuracy: baselineLOO.Accuracy(),
		Residuals:           residuals,
		ResidualSummary:     timing.Summarize(residuals),
	}

	s.logger.Info("models evaluated",
		slog.Float64("markov_accuracy", report.MarkovAccuracy),
		slog.Float64("baseline_accuracy", report.BaselineAccuracy),
		slog.Float64("baseline_loo_accuracy", report.BaselineLOOAccuracy),
		slog.Int("unobserved", loo.Unobserved),
		slog.Int("residuals", residuals.Len()),
	)
	return report, nil
}

func (s *Service) recordFolds(ctx context.Context, model string, r *markov.LOOResult) {
	m := telemetry.Attr("model", model)
	s.metrics.FoldsEvaluated.Add(ctx, int64(len(r.Folds)), m)
	s.metrics.Predictions.Add(ctx, int64(r.Correct), m, telemetry.Attr("outcome", "correct"))
	s.metrics.Predictions.Add(ctx, int64(r.Wrong-r.Unobserved), m, telemetry.Attr("outcome", "wrong"))
	s.metrics.Predictions.Add(ctx, int64(r.Unobserved), m, telemetry.Attr("outcome", "unobserved"))
}

// TransitionMatrix trains the Markov matrix on every loaded trace.
func (s *Service) TransitionMatrix() (*markov.TransitionMatrix, error) {
	set, err := s.TraceSet()
	if err != nil {
		return nil, err
	}
	return markov.BuildTransitionMatrix(set.Sequences()), nil
}

// TimeMatrix averages time in state over every loaded trace.
func (s *Service) TimeMatrix() (*timing.TimeMatrix, error) {
	set, err := s.TraceSet()
	if err != nil {
		return nil, err
	}
	return timing.BuildTimeMatrix(set.Traces), nil
}

// -----------------------------------------------------------------------------
// Counts and trie
// -----------------------------------------------------------------------------

// Counts returns the global path counts and the top-N trace x path matrix.
func (s *Service) Counts() (format.CountReport, error) {
	set, err := s.TraceSet()
	if err != nil {
		return format.CountReport{}, err
	}
	return format.CountReport{
		Global: set.GlobalCounts(),
		Top:    set.TopCountMatrix(s.cfg.TopN),
	}, nil
}

// Trie builds the filesystem trie of the top-N paths and dumps it.
//
// Description:
//
//	The top_n most accessed paths are inserted with their global counts.
//	The dump lists every node depth first with the outlier-filtered range
//	of its unique counts. A non-empty find is looked up after the paths
//	are normalized the same way the events were.
//
// Inputs:
//
//	find - Optional path to look up.
//
// Outputs:
//
//	format.TrieReport - Dump, count range, lookup.
//	error - ErrNotLoaded.
func (s *Service) Trie(find string) (format.TrieReport, error) {
	set, err := s.TraceSet()
	if err != nil {
		return format.TrieReport{}, err
	}

	top := make(map[string]int, s.cfg.TopN)
	for i, pc := range set.GlobalCounts() {
		if s.cfg.TopN > 0 && i >= s.cfg.TopN {
			break
		}
		top[pc.Path] = pc.Count
	}

	// Paths were normalized by the parser. Only the query still needs it.
	t := trie.New(trie.WithNormalizer(pathnorm.Identity))
	t.InsertCounts(top)

	report := format.TrieReport{
		Nodes:         make([]format.TrieRow, 0, t.Len()),
		MADMultiplier: s.cfg.Outliers.MADMultiplier,
	}
	t.Walk(func(n *trie.Node, depth int) bool {
		report.Nodes = append(report.Nodes, format.TrieRow{Path: n.Path, Name: n.Name, Depth: depth, Count: n.Count})
		return true
	})
	report.RangeLo, report.RangeHi, report.HasRange = t.CountRange(s.cfg.Outliers.MADMultiplier)

	if find != "" {
		report.Query = pathnorm.For(s.cfg.Normalize)(find)
		if n, ok := t.Find(report.Query); ok {
			report.Found = &format.TrieRow{Path: n.Path, Name: n.Name, Count: n.Count}
		}
	}
	return report, nil
}
