// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package events

import (
	"cmp"
	"slices"
)

// PathCount is one path with its number of accesses.
type PathCount struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// CountMatrix is a trace x path table of access counts.
//
// Rows follow TraceIDs, columns follow Paths. Missing entries are 0.
type CountMatrix struct {
	TraceIDs []string `json:"trace_ids"`
	Paths    []string `json:"paths"`
	Counts   [][]int  `json:"counts"`
}

// Counts returns how often each normalized path occurs in the trace.
func (t Trace) Counts() map[string]int {
	counts := make(map[string]int)
	for _, ev := range t.Events {
		counts[ev.NormalizedPath]++
	}
	return counts
}

// GlobalCounts pools path counts over every trace.
//
// The result is sorted by count descending, then path ascending, so ties
// are stable across runs.
func (s *TraceSet) GlobalCounts() []PathCount {
	pooled := make(map[string]int)
	for _, tr := range s.Traces {
		for _, ev := range tr.Events {
			pooled[ev.NormalizedPath]++
		}
	}
	out := make([]PathCount, 0, len(pooled))
	for p, c := range pooled {
		out = append(out, PathCount{Path: p, Count: c})
	}
	slices.SortFunc(out, func(a, b PathCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Path, b.Path)
	})
	return out
}

// TopPaths returns the n most accessed paths overall. n <= 0 returns all.
func (s *TraceSet) TopPaths(n int) []string {
	global := s.GlobalCounts()
	if n > 0 && n < len(global) {
		global = global[:n]
	}
	paths := make([]string, len(global))
	for i, pc := range global {
		paths[i] = pc.Path
	}
	return paths
}

// TopCountMatrix builds the per-trace counts of the n most accessed paths.
func (s *TraceSet) TopCountMatrix(n int) CountMatrix {
	paths := s.TopPaths(n)
	m := CountMatrix{
		TraceIDs: s.IDs(),
		Paths:    paths,
		Counts:   make([][]int, len(s.Traces)),
	}
	for i, tr := range s.Traces {
		counts := tr.Counts()
		row := make([]int, len(paths))
		for j, p := range paths {
			row[j] = counts[p]
		}
		m.Counts[i] = row
	}
	return m
}
