// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package distance builds pairwise edit-distance matrices between traces.
//
// Each pair is first aligned with align.Align; the distance is then the
// Levenshtein distance between the two aligned slot sequences.
package distance

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/fstrace/services/trace/align"
)

// ErrLengthMismatch indicates ids and sequences differ in length.
var ErrLengthMismatch = errors.New("ids and sequences differ in length")

// Matrix is a symmetric trace x trace distance table with a zero diagonal.
type Matrix struct {
	IDs    []string `json:"ids"`
	Values [][]int  `json:"values"`
}

// Len returns the number of traces.
func (m *Matrix) Len() int {
	return len(m.IDs)
}

// At returns the distance between rows i and j.
func (m *Matrix) At(i, j int) int {
	return m.Values[i][j]
}

// Get returns the distance between two trace ids.
func (m *Matrix) Get(a, b string) (int, bool) {
	i, j := m.index(a), m.index(b)
	if i < 0 || j < 0 {
		return 0, false
	}
	return m.Values[i][j], true
}

func (m *Matrix) index(id string) int {
	for i, v := range m.IDs {
		if v == id {
			return i
		}
	}
	return -1
}

// Labels returns the ids with every trim substring removed, for display.
//
// Example:
//
//	m.Labels([]string{".out", "lammps-"}) // "lammps-29Aug2024.out" -> "29Aug2024"
func (m *Matrix) Labels(trim []string) []string {
	out := make([]string, len(m.IDs))
	for i, id := range m.IDs {
		for _, t := range trim {
			if t != "" {
				id = strings.ReplaceAll(id, t, "")
			}
		}
		out[i] = id
	}
	return out
}

// Options configures Build.
type Options struct {
	// Scoring is passed to the aligner.
	Scoring align.Scoring

	// Workers bounds concurrent pair computations. <= 0 means GOMAXPROCS.
	Workers int
}

// DefaultOptions returns default scoring and one worker per CPU.
func DefaultOptions() Options {
	return Options{Scoring: align.DefaultScoring(), Workers: runtime.GOMAXPROCS(0)}
}

// Build computes the distance matrix for the given sequences.
//
// Description:
//
//	Every unordered pair (i < j) is aligned and measured exactly once, and
//	the result is mirrored into (j, i). Pairs run in an errgroup limited to
//	opts.Workers goroutines. Each pair writes only its own two cells.
//
// Inputs:
//
//	ctx - Cancels outstanding pairs.
//	ids - Trace ids, one per sequence.
//	seqs - Normalized path sequences.
//	opts - Scoring and worker limit.
//
// Outputs:
//
//	*Matrix - Symmetric, zero diagonal, non-negative entries.
//	error - ErrLengthMismatch, or the context error if cancelled.
func Build(ctx context.Context, ids []string, seqs [][]string, opts Options) (*Matrix, error) {
	if len(ids) != len(seqs) {
		return nil, fmt.Errorf("%w: %d ids, %d sequences", ErrLengthMismatch, len(ids), len(seqs))
	}

	n := len(ids)
	values := make([][]int, n)
	for i := range values {
		values[i] = make([]int, n)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			g.Go(func() error {
				if err := gCtx.Err(); err != nil {
					return err
				}
				d := Pair(seqs[i], seqs[j], opts.Scoring)
				values[i][j] = d
				values[j][i] = d
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Matrix{IDs: append([]string(nil), ids...), Values: values}, nil
}

// Pair aligns two sequences and returns the Levenshtein distance of the alignment.
func Pair(a, b []string, sc align.Scoring) int {
	al := align.Align(a, b, sc)
	return Levenshtein(al.A, al.B)
}

// Levenshtein is the unit-cost edit distance between two slot sequences.
// Slots are equal when both are gaps or both hold the same token.
func Levenshtein(a, b []align.Slot) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
