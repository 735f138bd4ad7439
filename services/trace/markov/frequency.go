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
	"maps"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/stat/distuv"
)

// FrequencyModel is the zero-order baseline: the next path is drawn from the
// pooled path frequencies, ignoring the current state.
type FrequencyModel struct {
	tokens  []string
	weights []float64
}

// Tally counts correct and wrong predictions.
type Tally struct {
	Correct int `json:"correct"`
	Wrong   int `json:"wrong"`
}

// Accuracy is Correct / (Correct + Wrong), 0 with no predictions.
func (t Tally) Accuracy() float64 {
	return ratio(t.Correct, t.Correct+t.Wrong)
}

// BuildFrequencyModel pools token counts over every sample.
func BuildFrequencyModel(samples [][]string) *FrequencyModel {
	counts := make(map[string]int)
	for _, seq := range samples {
		for _, tok := range seq {
			counts[tok]++
		}
	}
	tokens := slices.Sorted(maps.Keys(counts))
	weights := make([]float64, len(tokens))
	for i, tok := range tokens {
		weights[i] = float64(counts[tok])
	}
	return &FrequencyModel{tokens: tokens, weights: weights}
}

// Len returns the number of distinct tokens.
func (f *FrequencyModel) Len() int {
	return len(f.tokens)
}

// Prob returns the pooled frequency of tok.
func (f *FrequencyModel) Prob(tok string) float64 {
	var total, w float64
	for i, t := range f.tokens {
		total += f.weights[i]
		if t == tok {
			w = f.weights[i]
		}
	}
	return ratioF(w, total)
}

func ratioF(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// Draw samples one token from the pooled distribution.
func (f *FrequencyModel) Draw(rng *rand.Rand) (string, error) {
	if len(f.tokens) == 0 {
		return "", ErrInsufficientData
	}
	return f.tokens[int(distuv.NewCategorical(f.weights, rng).Rand())], nil
}

// Evaluate draws a prediction for every consecutive pair of every sample
// and compares it with the actual next token. An empty model has nothing to
// draw and scores an empty Tally.
func (f *FrequencyModel) Evaluate(samples [][]string, rng *rand.Rand) (Tally, error) {
	var t Tally
	if len(f.tokens) == 0 {
		return t, nil
	}
	cat := distuv.NewCategorical(f.weights, rng)
	for _, seq := range samples {
		for i := 0; i+1 < len(seq); i++ {
			if f.tokens[int(cat.Rand())] == seq[i+1] {
				t.Correct++
			} else {
				t.Wrong++
			}
		}
	}
	return t, nil
}

// EvaluateFrequencyLOO scores the baseline with the same leave-one-out
// protocol as EvaluateLOO: each fold's distribution is pooled from the
// training sequences only.
func EvaluateFrequencyLOO(ctx context.Context, ids []string, seqs [][]string, opts EvalOptions) (*LOOResult, error) {
	return runFolds(ctx, ids, seqs, opts, frequencyFold)
}

func frequencyFold(k int, id string, train [][]string, heldOut []string, opts EvalOptions) (FoldResult, error) {
	res := FoldResult{Index: k, HeldOut: id}
	model := BuildFrequencyModel(train)
	if model.Len() == 0 {
		// Nothing to draw from; every step is unpredictable.
		for i := 0; i+1 < len(heldOut); i++ {
			res.Wrong++
			res.Unobserved++
		}
		return res, nil
	}

	rng := FoldRand(opts.Seed, k, StreamFrequency)
	cat := distuv.NewCategorical(model.weights, rng)
	for i := 0; i+1 < len(heldOut); i++ {
		from, to := heldOut[i], heldOut[i+1]
		pred := model.tokens[int(cat.Rand())]
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
