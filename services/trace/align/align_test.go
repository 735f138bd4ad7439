// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package align

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ungap(slots []Slot) []string {
	out := []string{}
	for _, s := range slots {
		if !s.Gap {
			out = append(out, s.Token)
		}
	}
	return out
}

func TestAlign(t *testing.T) {
	tests := []struct {
		name      string
		s1, s2    []string
		wantLeft  []string
		wantRight []string
		wantScore int
	}{
		{
			name:      "deletion",
			s1:        []string{"a", "b", "c"},
			s2:        []string{"a", "c"},
			wantLeft:  []string{"a", "b", "c"},
			wantRight: []string{"a", GapMarker, "c"},
			wantScore: 1,
		},
		{
			name:      "identical",
			s1:        []string{"/x", "/y"},
			s2:        []string{"/x", "/y"},
			wantLeft:  []string{"/x", "/y"},
			wantRight: []string{"/x", "/y"},
			wantScore: 2,
		},
		{
			name:      "first empty",
			s1:        nil,
			s2:        []string{"a", "b"},
			wantLeft:  []string{GapMarker, GapMarker},
			wantRight: []string{"a", "b"},
			wantScore: -2,
		},
		{
			name:      "second empty",
			s1:        []string{"a"},
			s2:        nil,
			wantLeft:  []string{"a"},
			wantRight: []string{GapMarker},
			wantScore: -1,
		},
		{
			name:      "both empty",
			wantLeft:  []string{},
			wantRight: []string{},
		},
		{
			name:      "mismatch preferred on tie",
			s1:        []string{"a"},
			s2:        []string{"b"},
			wantLeft:  []string{"a"},
			wantRight: []string{"b"},
			wantScore: -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Align(tt.s1, tt.s2, DefaultScoring())
			left, right := got.Strings()
			assert.Equal(t, tt.wantLeft, left)
			assert.Equal(t, tt.wantRight, right)
			assert.Equal(t, tt.wantScore, got.Score)
		})
	}
}

func TestAlign_EmptyTokenIsNotGap(t *testing.T) {
	got := Align([]string{""}, []string{""}, DefaultScoring())
	require.Equal(t, 1, got.Len())
	assert.False(t, got.A[0].Gap)
	assert.Equal(t, got.A[0], got.B[0])
}

func TestAlign_Properties(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	alphabet := []string{"/a", "/b", "/c", "/d"}
	gen := func() []string {
		n := rng.IntN(8)
		out := make([]string, n)
		for i := range out {
			out[i] = alphabet[rng.IntN(len(alphabet))]
		}
		return out
	}

	for range 200 {
		s1, s2 := gen(), gen()
		got := Align(s1, s2, DefaultScoring())

		require.Equal(t, len(got.A), len(got.B))
		assert.Equal(t, append([]string{}, s1...), ungap(got.A))
		assert.Equal(t, append([]string{}, s2...), ungap(got.B))
		assert.GreaterOrEqual(t, got.Len(), max(len(s1), len(s2)))
		assert.LessOrEqual(t, got.Len(), len(s1)+len(s2))
		for i := range got.A {
			assert.False(t, got.A[i].Gap && got.B[i].Gap, "gap paired with gap")
		}
	}
}

func TestAlign_CustomScoring(t *testing.T) {
	// A mismatch costlier than two gaps splits the pair.
	sc := Scoring{Match: 1, Mismatch: -5, Gap: -1}
	got := Align([]string{"a"}, []string{"b"}, sc)
	left, right := got.Strings()
	assert.Equal(t, []string{GapMarker, "a"}, left)
	assert.Equal(t, []string{"b", GapMarker}, right)
	assert.Equal(t, -2, got.Score)
}
