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
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateLOO_InsufficientData(t *testing.T) {
	_, err := EvaluateLOO(context.Background(), []string{"only"}, [][]string{{"a", "b"}}, EvalOptions{})
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = EvaluateLOO(context.Background(), nil, nil, EvalOptions{})
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestEvaluateLOO_IdenticalDeterministicTraces(t *testing.T) {
	seq := []string{"/a", "/b", "/c", "/d"}
	res, err := EvaluateLOO(context.Background(),
		[]string{"r1", "r2", "r3"},
		[][]string{seq, seq, seq},
		EvalOptions{Seed: 1})
	require.NoError(t, err)

	assert.Equal(t, 9, res.Correct)
	assert.Equal(t, 0, res.Wrong)
	assert.Equal(t, 1.0, res.Accuracy())
	require.Len(t, res.Folds, 3)
	for k, f := range res.Folds {
		assert.Equal(t, k, f.Index)
		assert.Len(t, f.CorrectTransitions, 3)
		assert.Equal(t, Transition{From: "/a", To: "/b", Predicted: "/b", Step: 0}, f.CorrectTransitions[0])
	}
}

func TestEvaluateLOO_UnobservedCountsWrong(t *testing.T) {
	res, err := EvaluateLOO(context.Background(),
		[]string{"r1", "r2"},
		[][]string{{"/a", "/b"}, {"/x", "/y"}},
		EvalOptions{Seed: 3})
	require.NoError(t, err)

	assert.Equal(t, 0, res.Correct)
	assert.Equal(t, 2, res.Wrong)
	assert.Equal(t, 2, res.Unobserved)
	assert.Equal(t, 0.0, res.Accuracy())
}

func TestEvaluateLOO_Strict(t *testing.T) {
	_, err := EvaluateLOO(context.Background(),
		[]string{"r1", "r2"},
		[][]string{{"/a", "/b"}, {"/x", "/y"}},
		EvalOptions{Seed: 3, StrictUnobserved: true})
	assert.ErrorIs(t, err, ErrUnobservedState)
}

func TestEvaluateLOO_EmptyHeldOut(t *testing.T) {
	res, err := EvaluateLOO(context.Background(),
		[]string{"r1", "r2"},
		[][]string{{}, {"/a", "/b"}},
		EvalOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Folds[0].Correct+res.Folds[0].Wrong)
}

func randomSeqs(seed uint64, n int) [][]string {
	rng := rand.New(rand.NewPCG(seed, 0))
	alphabet := []string{"/a", "/b", "/c", "/d", "/e"}
	seqs := make([][]string, n)
	for i := range seqs {
		seqs[i] = make([]string, 10+rng.IntN(20))
		for j := range seqs[i] {
			seqs[i][j] = alphabet[rng.IntN(len(alphabet))]
		}
	}
	return seqs
}

func TestEvaluateLOO_DeterministicAcrossWorkers(t *testing.T) {
	seqs := randomSeqs(5, 6)
	ids := []string{"r0", "r1", "r2", "r3", "r4", "r5"}

	one, err := EvaluateLOO(context.Background(), ids, seqs, EvalOptions{Seed: 77, Workers: 1})
	require.NoError(t, err)
	many, err := EvaluateLOO(context.Background(), ids, seqs, EvalOptions{Seed: 77, Workers: 8})
	require.NoError(t, err)

	assert.Equal(t, one, many)
	assert.GreaterOrEqual(t, one.Accuracy(), 0.0)
	assert.LessOrEqual(t, one.Accuracy(), 1.0)

	total := 0
	for _, s := range seqs {
		total += len(s) - 1
	}
	assert.Equal(t, total, one.Correct+one.Wrong)
}

func TestEvaluateLOO_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := EvaluateLOO(ctx, []string{"a", "b"}, [][]string{{"/x", "/y"}, {"/x", "/y"}}, EvalOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFrequencyModel(t *testing.T) {
	empty := BuildFrequencyModel(nil)
	_, err := empty.Draw(rand.New(rand.NewPCG(1, 1)))
	assert.ErrorIs(t, err, ErrInsufficientData)
	tally, err := empty.Evaluate([][]string{{}, {}}, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)
	assert.Equal(t, Tally{}, tally)

	f := BuildFrequencyModel([][]string{{"/a", "/a", "/b"}, {"/a"}})
	assert.Equal(t, 2, f.Len())
	assert.InDelta(t, 0.75, f.Prob("/a"), 1e-12)
	assert.Equal(t, 0.0, f.Prob("/zzz"))

	tally, err = f.Evaluate([][]string{{"/a", "/a", "/b"}, {"/a"}}, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)
	assert.Equal(t, 2, tally.Correct+tally.Wrong)
	assert.GreaterOrEqual(t, tally.Accuracy(), 0.0)
	assert.LessOrEqual(t, tally.Accuracy(), 1.0)
}

func TestFrequencyModel_SingleToken(t *testing.T) {
	seqs := [][]string{{"/a", "/a", "/a"}}
	tally, err := BuildFrequencyModel(seqs).Evaluate(seqs, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)
	assert.Equal(t, Tally{Correct: 2}, tally)
	assert.Equal(t, 1.0, tally.Accuracy())
}

func TestEvaluateFrequencyLOO(t *testing.T) {
	seqs := randomSeqs(8, 4)
	ids := []string{"r0", "r1", "r2", "r3"}

	a, err := EvaluateFrequencyLOO(context.Background(), ids, seqs, EvalOptions{Seed: 5, Workers: 1})
	require.NoError(t, err)
	b, err := EvaluateFrequencyLOO(context.Background(), ids, seqs, EvalOptions{Seed: 5, Workers: 4})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.GreaterOrEqual(t, a.Accuracy(), 0.0)
	assert.LessOrEqual(t, a.Accuracy(), 1.0)

	_, err = EvaluateFrequencyLOO(context.Background(), ids[:1], seqs[:1], EvalOptions{})
	assert.ErrorIs(t, err, ErrInsufficientData)
}
