// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package trie keeps hierarchical access counts for filesystem paths.
//
// Nodes live in a single arena slice and refer to each other by index. The
// root (index 0) stands for the path separator.
package trie

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/AleutianAI/fstrace/services/trace/pathnorm"
	"github.com/AleutianAI/fstrace/services/trace/stats"
)

const (
	// Separator splits paths into segments.
	Separator = "/"

	// RootIndex is the arena index of the root node.
	RootIndex = 0

	// NoParent is the Parent of the root.
	NoParent = -1
)

// Node is one path segment in the trie.
type Node struct {
	// Name is the segment. The root's name is Separator.
	Name string `json:"name"`

	// Path is the full path from the root to this node.
	Path string `json:"path"`

	// Parent is the arena index of the parent, NoParent for the root.
	Parent int `json:"parent"`

	// Children maps segment name to arena index.
	Children map[string]int `json:"children,omitempty"`

	// Count is the number of accesses recorded at exactly this path.
	// A node may exist with a zero count as an intermediate directory.
	Count int `json:"count"`
}

// Label renders the node as "name\ncount", the form used for trie dumps.
func (n *Node) Label() string {
	return fmt.Sprintf("%s\n%d", n.Name, n.Count)
}

// Trie is an arena-backed filesystem path trie.
//
// Thread Safety: Not safe for concurrent mutation. Concurrent reads after
// the last Insert are safe.
type Trie struct {
	nodes     []Node
	normalize pathnorm.Normalizer

	minCount int
	maxCount int
	counted  bool
}

// Option configures a Trie.
type Option func(*Trie)

// WithNormalizer sets the normalizer applied to every inserted or searched path.
func WithNormalizer(n pathnorm.Normalizer) Option {
	return func(t *Trie) {
		if n != nil {
			t.normalize = n
		}
	}
}

// New creates a trie holding only the root. Paths are normalized with
// pathnorm.Normalize unless an option says otherwise.
func New(opts ...Option) *Trie {
	t := &Trie{
		nodes:     []Node{{Name: Separator, Path: Separator, Parent: NoParent}},
		normalize: pathnorm.Normalize,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Len returns the number of nodes, root included.
func (t *Trie) Len() int {
	return len(t.nodes)
}

// Root returns the root node.
func (t *Trie) Root() *Node {
	return &t.nodes[RootIndex]
}

// Node returns the node at arena index i.
func (t *Trie) Node(i int) *Node {
	return &t.nodes[i]
}

// segments splits a normalized path, skipping empty segments.
func segments(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
}

func childPath(parent, name string) string {
	if parent == Separator {
		return Separator + name
	}
	return parent + Separator + name
}

// Insert records count accesses at path.
//
// Description:
//
//	The path is normalized, split on "/", and walked from the root. Missing
//	intermediate nodes are created with a zero count. count is added to the
//	final node; Insert(path, 0) only creates structure. Empty segments are
//	skipped, so "/a//b" and "/a/b" name the same node.
//
// Inputs:
//
//	path - Absolute path.
//	count - Number of accesses to add. Negative counts are ignored, so the
//	        call only creates structure.
//
// Outputs:
//
//	int - Arena index of the node for path.
func (t *Trie) Insert(path string, count int) int {
	cur := RootIndex
	for _, seg := range segments(t.normalize(path)) {
		next, ok := t.nodes[cur].Children[seg]
		if !ok {
			next = len(t.nodes)
			t.nodes = append(t.nodes, Node{
				Name:   seg,
				Path:   childPath(t.nodes[cur].Path, seg),
				Parent: cur,
			})
			if t.nodes[cur].Children == nil {
				t.nodes[cur].Children = make(map[string]int)
			}
			t.nodes[cur].Children[seg] = next
		}
		cur = next
	}

	if count > 0 {
		t.nodes[cur].Count += count
		t.track(t.nodes[cur].Count)
	}
	return cur
}

func (t *Trie) track(c int) {
	if !t.counted {
		t.minCount, t.maxCount, t.counted = c, c, true
		return
	}
	t.minCount = min(t.minCount, c)
	t.maxCount = max(t.maxCount, c)
}

// InsertCounts inserts every (path, count) pair, in sorted path order.
func (t *Trie) InsertCounts(counts map[string]int) {
	for _, p := range slices.Sorted(maps.Keys(counts)) {
		t.Insert(p, counts[p])
	}
}

// Find walks the trie to path.
//
// The returned pointer is valid until the next Insert, which may grow the arena.
func (t *Trie) Find(path string) (*Node, bool) {
	cur := RootIndex
	for _, seg := range segments(t.normalize(path)) {
		next, ok := t.nodes[cur].Children[seg]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return &t.nodes[cur], true
}

// Counts returns a fresh map of node path to count, root excluded.
func (t *Trie) Counts() map[string]int {
	out := make(map[string]int, len(t.nodes)-1)
	for i := RootIndex + 1; i < len(t.nodes); i++ {
		out[t.nodes[i].Path] = t.nodes[i].Count
	}
	return out
}

// MinCount and MaxCount report the smallest and largest node count seen
// after a counted insert. Both are 0 before the first one.
func (t *Trie) MinCount() int { return t.minCount }

func (t *Trie) MaxCount() int { return t.maxCount }

// Walk visits nodes depth first, children in name order. fn receives the
// node and its depth (root = 0); returning false skips that node's subtree.
func (t *Trie) Walk(fn func(n *Node, depth int) bool) {
	t.walk(RootIndex, 0, fn)
}

func (t *Trie) walk(i, depth int, fn func(n *Node, depth int) bool) {
	n := &t.nodes[i]
	if !fn(n, depth) {
		return
	}
	for _, name := range slices.Sorted(maps.Keys(n.Children)) {
		t.walk(n.Children[name], depth+1, fn)
	}
}

// UniqueCounts returns the distinct non-root node counts in ascending order.
func (t *Trie) UniqueCounts() []float64 {
	seen := make(map[int]struct{})
	for i := RootIndex + 1; i < len(t.nodes); i++ {
		seen[t.nodes[i].Count] = struct{}{}
	}
	out := make([]float64, 0, len(seen))
	for _, c := range slices.Sorted(maps.Keys(seen)) {
		out = append(out, float64(c))
	}
	return out
}

// CountRange returns the bounds of the unique counts left after MAD outlier
// rejection with multiplier m. ok is false when nothing remains.
func (t *Trie) CountRange(m float64) (lo, hi float64, ok bool) {
	kept := RejectOutliers(t.UniqueCounts(), m)
	if len(kept) == 0 {
		return 0, 0, false
	}
	return slices.Min(kept), slices.Max(kept), true
}

// RejectOutliers keeps the points of data whose distance from the median is
// under m median absolute deviations.
func RejectOutliers(data []float64, m float64) []float64 {
	return stats.RejectOutliers(data, m)
}
