// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package align computes global pairwise alignments of path sequences.
package align

import "slices"

// GapMarker is how a gap slot is rendered.
const GapMarker = "<gap>"

// Slot is one position of an aligned sequence: a token or a gap.
//
// A gap is distinct from any token, including the empty string.
type Slot struct {
	Token string
	Gap   bool
}

// Gap is the gap slot.
var Gap = Slot{Gap: true}

// Tok wraps a token in a Slot.
func Tok(s string) Slot {
	return Slot{Token: s}
}

// String renders the slot; gaps render as GapMarker.
func (s Slot) String() string {
	if s.Gap {
		return GapMarker
	}
	return s.Token
}

// Scoring holds the Needleman-Wunsch scores.
type Scoring struct {
	Match    int `yaml:"match" json:"match"`
	Mismatch int `yaml:"mismatch" json:"mismatch"`
	Gap      int `yaml:"gap" json:"gap"`
}

// DefaultScoring is +1 match, -1 mismatch, -1 gap.
func DefaultScoring() Scoring {
	return Scoring{Match: 1, Mismatch: -1, Gap: -1}
}

// Alignment is a pair of equal-length aligned sequences.
type Alignment struct {
	A     []Slot
	B     []Slot
	Score int
}

// Len returns the aligned length.
func (a Alignment) Len() int {
	return len(a.A)
}

// Strings renders both sides with gaps as GapMarker.
func (a Alignment) Strings() (left, right []string) {
	left = make([]string, len(a.A))
	right = make([]string, len(a.B))
	for i := range a.A {
		left[i] = a.A[i].String()
		right[i] = a.B[i].String()
	}
	return left, right
}

// Align performs a global alignment of s1 and s2.
//
// Description:
//
//	Builds the (len1+1)x(len2+1) score matrix with cumulative gap penalties
//	on the first row and column. Each interior cell is the max of the
//	diagonal (match or mismatch), up (gap in s2) and left (gap in s1). The
//	traceback from the bottom-right prefers the diagonal whenever its score
//	reproduces the cell, then up, then left.
//
// Inputs:
//
//	s1, s2 - Token sequences. Either may be empty.
//	sc - Scores.
//
// Outputs:
//
//	Alignment - A and B have equal length. Removing gaps from A yields s1
//	and from B yields s2.
//
// Thread Safety: This function is stateless and safe for concurrent use.
//
// Example:
//
//	Align([]string{"a", "b", "c"}, []string{"a", "c"}, DefaultScoring())
//	// A: a b c   B: a <gap> c
func Align(s1, s2 []string, sc Scoring) Alignment {
	n, m := len(s1), len(s2)

	// Flat row-major (n+1)x(m+1) matrix.
	cols := m + 1
	score := make([]int, (n+1)*cols)
	at := func(i, j int) int { return i*cols + j }

	for i := 1; i <= n; i++ {
		score[at(i, 0)] = i * sc.Gap
	}
	for j := 1; j <= m; j++ {
		score[at(0, j)] = j * sc.Gap
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			diag := score[at(i-1, j-1)] + pairScore(s1[i-1], s2[j-1], sc)
			up := score[at(i-1, j)] + sc.Gap
			left := score[at(i, j-1)] + sc.Gap
			score[at(i, j)] = max(diag, up, left)
		}
	}

	a := make([]Slot, 0, n+m)
	b := make([]Slot, 0, n+m)
	i, j := n, m
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && score[at(i, j)] == score[at(i-1, j-1)]+pairScore(s1[i-1], s2[j-1], sc):
			a = append(a, Tok(s1[i-1]))
			b = append(b, Tok(s2[j-1]))
			i--
			j--
		case i > 0 && score[at(i, j)] == score[at(i-1, j)]+sc.Gap:
			a = append(a, Tok(s1[i-1]))
			b = append(b, Gap)
			i--
		default:
			a = append(a, Gap)
			b = append(b, Tok(s2[j-1]))
			j--
		}
	}
	slices.Reverse(a)
	slices.Reverse(b)

	return Alignment{A: a, B: b, Score: score[at(n, m)]}
}

func pairScore(x, y string, sc Scoring) int {
	if x == y {
		return sc.Match
	}
	return sc.Mismatch
}
