// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package timing models how long a trace stays in a state after a transition.
//
// The time matrix holds the mean MsInState observed for each (from, to)
// transition. Held-out durations are compared against Poisson draws with
// that mean, giving normalized residuals per from-state.
package timing

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"math/rand/v2"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/AleutianAI/fstrace/services/trace/events"
	"github.com/AleutianAI/fstrace/services/trace/markov"
	"github.com/AleutianAI/fstrace/services/trace/stats"
)

// ErrFoldMismatch indicates the LOO result does not line up with the traces.
var ErrFoldMismatch = errors.New("fold results do not match traces")

type pair struct {
	from, to string
}

// TimeMatrix holds the mean time in state per transition.
//
// A pair never observed reads as 0. That is an approximation: it cannot be
// told apart from a transition whose observed durations were all zero.
//
// Thread Safety: Immutable after BuildTimeMatrix; safe for concurrent reads.
type TimeMatrix struct {
	states  []string
	means   map[pair]float64
	samples map[pair]int
}

// BuildTimeMatrix averages MsInState per (PreviousPath, NormalizedPath).
//
// Description:
//
//	Only events that have both a previous path and a time in state
//	contribute, so the first event of a trace (no previous) and the last
//	(no successor) are excluded. States are every normalized path seen.
//
// Inputs:
//
//	train - Training traces.
//
// Outputs:
//
//	*TimeMatrix - Never nil.
func BuildTimeMatrix(train []events.Trace) *TimeMatrix {
	seen := make(map[string]struct{})
	durations := make(map[pair][]float64)

	for _, tr := range train {
		for _, ev := range tr.Events {
			seen[ev.NormalizedPath] = struct{}{}
			prev, ok := ev.Previous()
			if !ok {
				continue
			}
			ms, ok := ev.InState()
			if !ok {
				continue
			}
			k := pair{from: prev, to: ev.NormalizedPath}
			durations[k] = append(durations[k], float64(ms))
		}
	}

	tm := &TimeMatrix{
		states:  slices.Sorted(maps.Keys(seen)),
		means:   make(map[pair]float64, len(durations)),
		samples: make(map[pair]int, len(durations)),
	}
	for k, d := range durations {
		tm.means[k] = stat.Mean(d, nil)
		tm.samples[k] = len(d)
	}
	return tm
}

// States returns the sorted state list. The slice must not be modified.
func (tm *TimeMatrix) States() []string {
	return tm.states
}

// Mean returns the mean time in to after arriving from from, 0 when unseen.
func (tm *TimeMatrix) Mean(from, to string) float64 {
	return tm.means[pair{from, to}]
}

// Samples returns how many durations back Mean(from, to).
func (tm *TimeMatrix) Samples(from, to string) int {
	return tm.samples[pair{from, to}]
}

// -----------------------------------------------------------------------------
// Residuals
// -----------------------------------------------------------------------------

// ResidualSet maps a from-state to its normalized residuals.
type ResidualSet map[string][]float64

// Merge appends other's residuals into rs.
func (rs ResidualSet) Merge(other ResidualSet) {
	for k, v := range other {
		rs[k] = append(rs[k], v...)
	}
}

// Len returns the total number of residuals.
func (rs ResidualSet) Len() int {
	n := 0
	for _, v := range rs {
		n += len(v)
	}
	return n
}

// Residuals scores one fold's correctly predicted transitions by duration.
//
// Description:
//
//	For each correct transition with From != To, a duration is drawn from
//	Poisson(tm.Mean(From, To)) and compared with the held-out event at
//	Step+1, which is the exact occurrence of the transition. The residual is
//	|predicted - actual| / actual. Transitions whose actual time in state is
//	missing or zero are skipped.
//
// Inputs:
//
//	fold - Result of the fold whose held-out trace is heldOut.
//	heldOut - The held-out trace with its events.
//	tm - Time matrix trained without heldOut.
//	rng - Caller-owned generator.
//
// Outputs:
//
//	ResidualSet - Residuals keyed by From.
func Residuals(fold markov.FoldResult, heldOut events.Trace, tm *TimeMatrix, rng *rand.Rand) ResidualSet {
	out := make(ResidualSet)
	for _, tr := range fold.CorrectTransitions {
		if tr.From == tr.To {
			continue
		}
		idx := tr.Step + 1
		if idx >= len(heldOut.Events) {
			continue
		}
		ms, ok := heldOut.Events[idx].InState()
		if !ok || ms == 0 {
			continue
		}
		actual := float64(ms)
		predicted := samplePoisson(tm.Mean(tr.From, tr.To), rng)
		out[tr.From] = append(out[tr.From], math.Abs(predicted-actual)/actual)
	}
	return out
}

func samplePoisson(lambda float64, rng *rand.Rand) float64 {
	if lambda <= 0 {
		return 0
	}
	return distuv.Poisson{Lambda: lambda, Src: rng}.Rand()
}

// Options configures EvaluateResiduals.
type Options struct {
	Seed    uint64
	Workers int
}

// EvaluateResiduals computes residuals for every fold of a LOO run.
//
// Each fold trains its own time matrix on the other traces and draws from
// the timing stream of (seed, fold). Per-fold sets are merged in fold order.
func EvaluateResiduals(ctx context.Context, traces []events.Trace, loo *markov.LOOResult, opts Options) (ResidualSet, error) {
	if loo == nil || len(loo.Folds) != len(traces) {
		return nil, ErrFoldMismatch
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	perFold := make([]ResidualSet, len(traces))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for k := range traces {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			fold := loo.Folds[k]
			if fold.HeldOut != traces[k].ID {
				return fmt.Errorf("%w: fold %d holds out %s, trace is %s", ErrFoldMismatch, k, fold.HeldOut, traces[k].ID)
			}
			train := make([]events.Trace, 0, len(traces)-1)
			for i, tr := range traces {
				if i != k {
					train = append(train, tr)
				}
			}
			tm := BuildTimeMatrix(train)
			perFold[k] = Residuals(fold, traces[k], tm, markov.FoldRand(opts.Seed, k, markov.StreamTiming))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(ResidualSet)
	for _, rs := range perFold {
		out.Merge(rs)
	}
	return out, nil
}

// StateSummary is the residual summary of one from-state.
type StateSummary struct {
	State string `json:"state"`
	stats.Summary
}

// Summarize returns per-state residual statistics, sorted by state.
func Summarize(rs ResidualSet) []StateSummary {
	out := make([]StateSummary, 0, len(rs))
	for _, state := range slices.Sorted(maps.Keys(rs)) {
		s, err := stats.Summarize(rs[state])
		if err != nil {
			continue
		}
		out = append(out, StateSummary{State: state, Summary: s})
	}
	return out
}
