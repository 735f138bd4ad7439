// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package markov

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Random streams. Each fold draws from its own PCG stream so results do
// not depend on goroutine scheduling.
const (
	StreamPredict uint64 = iota
	StreamTiming
	StreamFrequency

	// StreamPooled drives the frequency baseline evaluated over every trace
	// at once, outside any fold.
	StreamPooled
)

// FoldRand returns the generator for (seed, fold, stream).
func FoldRand(seed uint64, fold int, stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, stream<<32|uint64(fold)))
}

// Transition is one step of a held-out trace.
type Transition struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Predicted string `json:"predicted"`
	// Step is the index of From in the held-out sequence; To is at Step+1.
	Step int `json:"step"`
}

// FoldResult is the outcome of one leave-one-out fold.
type FoldResult struct {
	Index      int    `json:"index"`
	HeldOut    string `json:"held_out"`
	Correct    int    `json:"correct"`
	Wrong      int    `json:"wrong"`
	Unobserved int    `json:"unobserved"`

	CorrectTransitions   []Transition `json:"correct_transitions,omitempty"`
	IncorrectTransitions []Transition `json:"incorrect_transitions,omitempty"`
}

// Accuracy is Correct / (Correct + Wrong), 0 with no predictions.
func (f FoldResult) Accuracy() float64 {
	return ratio(f.Correct, f.Correct+f.Wrong)
}

// LOOResult aggregates all folds.
type LOOResult struct {
	Folds      []FoldResult `json:"folds"`
	Correct    int          `json:"correct"`
	Wrong      int          `json:"wrong"`
	Unobserved int          `json:"unobserved"`
}

// Accuracy is the pooled Correct / (Correct + Wrong), 0 with no predictions.
func (r *LOOResult) Accuracy() float64 {
	return ratio(r.Correct, r.Correct+r.Wrong)
}

func (r *LOOResult) add(f FoldResult) {
	r.Correct += f.Correct
	r.Wrong += f.Wrong
	r.Unobserved += f.Unobserved
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

// EvalOptions configures the leave-one-out evaluators.
type EvalOptions struct {
	// Seed drives every fold's generator.
	Seed uint64

	// Workers bounds concurrent folds. <= 0 means GOMAXPROCS.
	Workers int

	// StrictUnobserved fails the evaluation on the first prediction from an
	// unobserved state instead of scoring it as wrong.
	StrictUnobserved bool
}

func (o EvalOptions) workers() int {
	if o.Workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return o.Workers
}

// trainingSet returns every sequence except the held-out one.
func trainingSet(seqs [][]string, heldOut int) [][]string {
	train := make([][]string, 0, len(seqs)-1)
	for i, s := range seqs {
		if i != heldOut {
			train = append(train, s)
		}
	}
	return train
}

// EvaluateLOO runs leave-one-out cross-validation of the Markov model.
//
// Description:
//
//	For each fold k the matrix is trained on every sequence but k. Then, for
//	each consecutive pair (s[i], s[i+1]) of sequence k, a next state is drawn
//	from row s[i] and compared against s[i+1]. Folds run concurrently in an
//	errgroup; each fold trains before it draws and owns a generator derived
//	from (opts.Seed, k), so the result is the same for any worker count.
//
//	A draw from an unobserved or unknown state is scored wrong and counted in
//	Unobserved, unless opts.StrictUnobserved is set.
//
// Inputs:
//
//	ctx - Cancels outstanding folds.
//	ids - Trace ids, parallel to seqs.
//	seqs - Normalized path sequences. At least two.
//	opts - Seed, worker limit and unobserved-state policy.
//
// Outputs:
//
//	*LOOResult - Folds in input order plus pooled tallies.
//	error - ErrInsufficientData, ErrUnobservedState (strict mode) or ctx.Err().
func EvaluateLOO(ctx context.Context, ids []string, seqs [][]string, opts EvalOptions) (*LOOResult, error) {
	return runFolds(ctx, ids, seqs, opts, markovFold)
}

type foldFunc func(k int, id string, train [][]string, heldOut []string, opts EvalOptions) (FoldResult, error)

func runFolds(ctx context.Context, ids []string, seqs [][]string, opts EvalOptions, fold foldFunc) (*LOOResult, error) {
	if len(seqs) < 2 {
		return nil, fmt.Errorf("%w: leave-one-out needs at least 2 traces, got %d", ErrInsufficientData, len(seqs))
	}
	if len(ids) != len(seqs) {
		return nil, fmt.Errorf("%w: %d ids for %d traces", ErrInsufficientData, len(ids), len(seqs))
	}

	folds := make([]FoldResult, len(seqs))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())

	for k := range seqs {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			res, err := fold(k, ids[k], trainingSet(seqs, k), seqs[k], opts)
			if err != nil {
				return fmt.Errorf("fold %d (%s): %w", k, ids[k], err)
			}
			folds[k] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &LOOResult{Folds: folds}
	for _, f := range folds {
		out.add(f)
	}
	return out, nil
}

func markovFold(k int, id string, train [][]string, heldOut []string, opts EvalOptions) (FoldResult, error) {
	m := BuildTransitionMatrix(train)
	rng := FoldRand(opts.Seed, k, StreamPredict)

	res := FoldResult{Index: k, HeldOut: id}
	for i := 0; i+1 < len(heldOut); i++ {
		from, to := heldOut[i], heldOut[i+1]
		pred, err := PredictNext(m, from, rng)
		if err != nil {
			if !errors.Is(err, ErrUnobservedState) || opts.StrictUnobserved {
				return FoldResult{}, err
			}
			res.Wrong++
			res.Unobserved++
			res.IncorrectTransitions = append(res.IncorrectTransitions, Transition{From: from, To: to, Step: i})
			continue
		}

		tr := Transition{From: from, To: to, Predicted: pred, Step: i}
		if pred == to {
			res.Correct++
			res.CorrectTransitions = append(res.CorrectTransitions, tr)
		} else {
			res.Wrong++
			res.IncorrectTransitions = append(res.IncorrectTransitions, tr)
		}
	}
	return res, nil
}
