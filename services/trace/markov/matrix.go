// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package markov implements a first-order Markov model of path succession,
// its leave-one-out evaluation, and a zero-order frequency baseline.
package markov

import (
	"errors"
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/stat/distuv"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrUnobservedState indicates a prediction was requested from a state
	// with no outgoing transitions in the training data.
	ErrUnobservedState = errors.New("unobserved state")

	// ErrInsufficientData indicates too few traces or tokens for the operation.
	ErrInsufficientData = errors.New("insufficient data")
)

// -----------------------------------------------------------------------------
// Probability
// -----------------------------------------------------------------------------

// Probability is a transition probability that may be undefined.
//
// A row with no outgoing transitions has no distribution at all. Such
// entries are NotObserved rather than NaN or zero.
type Probability struct {
	Value    float64 `json:"value"`
	Observed bool    `json:"observed"`
}

// NotObserved is the probability of any transition out of an unobserved state.
var NotObserved = Probability{}

// String renders the value, or "NA" when not observed.
func (p Probability) String() string {
	if !p.Observed {
		return "NA"
	}
	return fmt.Sprintf("%g", p.Value)
}

// -----------------------------------------------------------------------------
// TransitionMatrix
// -----------------------------------------------------------------------------

// TransitionMatrix holds first-order transition counts over a state set.
//
// States are the union of all tokens seen in training, sorted. Row
// probabilities are counts divided by the row total.
//
// Thread Safety: Immutable after BuildTransitionMatrix; safe for concurrent reads.
type TransitionMatrix struct {
	states []string
	index  map[string]int
	counts [][]int
	totals []int
}

// BuildTransitionMatrix counts consecutive pairs across the training sequences.
//
// Description:
//
//	Every token of every sequence becomes a state. For each sequence, each
//	consecutive pair (s[i], s[i+1]) increments count(s[i], s[i+1]). Pairs
//	never cross sequence boundaries. A state whose row total is zero (it
//	only ever appeared last) is NotObserved.
//
// Inputs:
//
//	train - Normalized path sequences.
//
// Outputs:
//
//	*TransitionMatrix - Never nil. Empty when train holds no tokens.
func BuildTransitionMatrix(train [][]string) *TransitionMatrix {
	seen := make(map[string]struct{})
	for _, seq := range train {
		for _, tok := range seq {
			seen[tok] = struct{}{}
		}
	}
	states := slices.Sorted(maps.Keys(seen))
	index := make(map[string]int, len(states))
	for i, s := range states {
		index[s] = i
	}

	m := &TransitionMatrix{
		states: states,
		index:  index,
		counts: make([][]int, len(states)),
		totals: make([]int, len(states)),
	}
	for i := range m.counts {
		m.counts[i] = make([]int, len(states))
	}

	for _, seq := range train {
		for i := 0; i+1 < len(seq); i++ {
			from, to := index[seq[i]], index[seq[i+1]]
			m.counts[from][to]++
			m.totals[from]++
		}
	}
	return m
}

// States returns the sorted state list. The slice must not be modified.
func (m *TransitionMatrix) States() []string {
	return m.states
}

// Len returns the number of states.
func (m *TransitionMatrix) Len() int {
	return len(m.states)
}

// Has reports whether s appeared in training.
func (m *TransitionMatrix) Has(s string) bool {
	_, ok := m.index[s]
	return ok
}

// Observed reports whether from has at least one outgoing transition.
func (m *TransitionMatrix) Observed(from string) bool {
	i, ok := m.index[from]
	return ok && m.totals[i] > 0
}

// Count returns the number of (from, to) transitions in training.
func (m *TransitionMatrix) Count(from, to string) int {
	i, ok := m.index[from]
	if !ok {
		return 0
	}
	j, ok := m.index[to]
	if !ok {
		return 0
	}
	return m.counts[i][j]
}

// Prob returns P(to | from).
func (m *TransitionMatrix) Prob(from, to string) Probability {
	i, ok := m.index[from]
	if !ok || m.totals[i] == 0 {
		return NotObserved
	}
	j, ok := m.index[to]
	if !ok {
		return Probability{Value: 0, Observed: true}
	}
	return Probability{Value: float64(m.counts[i][j]) / float64(m.totals[i]), Observed: true}
}

// Row returns P(. | from) in States order. ok is false for unknown or
// unobserved states.
func (m *TransitionMatrix) Row(from string) ([]float64, bool) {
	i, ok := m.index[from]
	if !ok || m.totals[i] == 0 {
		return nil, false
	}
	row := make([]float64, len(m.states))
	total := float64(m.totals[i])
	for j, c := range m.counts[i] {
		row[j] = float64(c) / total
	}
	return row, true
}

// PredictNext draws the next state from the row of current.
//
// Description:
//
//	The row is sampled as a categorical distribution with gonum's
//	distuv.Categorical, driven by rng. The same rng state yields the same draw.
//
// Inputs:
//
//	m - Trained matrix.
//	current - Observed state.
//	rng - Caller-owned generator.
//
// Outputs:
//
//	string - Predicted next state.
//	error - ErrUnobservedState when current is unknown or has no outgoing transitions.
func PredictNext(m *TransitionMatrix, current string, rng *rand.Rand) (string, error) {
	i, ok := m.index[current]
	if !ok || m.totals[i] == 0 {
		return "", fmt.Errorf("%w: %s", ErrUnobservedState, current)
	}
	weights := make([]float64, len(m.states))
	for j, c := range m.counts[i] {
		weights[j] = float64(c)
	}
	idx := int(distuv.NewCategorical(weights, rng).Rand())
	return m.states[idx], nil
}
