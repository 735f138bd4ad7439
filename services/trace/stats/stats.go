// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stats holds the small robust-statistics helpers shared by the
// trie outlier filter and the residual summaries.
package stats

import (
	"errors"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrNoSamples is returned when a summary is requested over no data.
var ErrNoSamples = errors.New("no samples")

// DefaultMADMultiplier is the outlier cutoff used when none is configured.
const DefaultMADMultiplier = 2.0

// Summary describes a sample of float64 values.
type Summary struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
}

// Summarize computes count, range, mean, median and population standard deviation.
//
// Description:
//
//	Mean and standard deviation come from gonum/stat. The median uses the
//	same linear interpolation as Percentile, which averages the two middle
//	values of an even-sized sample.
//
// Inputs:
//
//	data - Sample values. Not modified.
//
// Outputs:
//
//	Summary - Populated summary.
//	error - ErrNoSamples if data is empty.
//
// Thread Safety: This function is stateless and safe for concurrent use.
func Summarize(data []float64) (Summary, error) {
	if len(data) == 0 {
		return Summary{}, ErrNoSamples
	}
	sorted := sortedCopy(data)
	mean, std := stat.PopMeanStdDev(data, nil)
	return Summary{
		Count:  len(data),
		Min:    floats.Min(data),
		Max:    floats.Max(data),
		Mean:   mean,
		Median: Percentile(sorted, 0.5),
		StdDev: std,
	}, nil
}

// Percentile returns the p-th percentile of sorted using linear interpolation
// between closest ranks. sorted must be in ascending order. Returns 0 for no data.
func Percentile(sorted []float64, p float64) float64 {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}

	index := p * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return sorted[lower]
	}
	fraction := index - float64(lower)
	return sorted[lower]*(1-fraction) + sorted[upper]*fraction
}

// Median returns the median of data. Returns 0 for no data.
func Median(data []float64) float64 {
	return Percentile(sortedCopy(data), 0.5)
}

// RejectOutliers drops points far from the median in MAD units.
//
// Description:
//
//	For each x the score |x - median| / MAD is computed, where MAD is the
//	median of the absolute deviations. Points with score < m are kept, in
//	input order. When MAD is 0 every score is taken as 0, so every point is
//	kept for any positive m.
//
// Inputs:
//
//	data - Sample values. Not modified.
//	m - Cutoff in MAD units. DefaultMADMultiplier is the usual choice.
//
// Outputs:
//
//	[]float64 - Kept points. Never nil.
//
// Example:
//
//	RejectOutliers([]float64{2, 3, 3, 4, 100}, 2) // [2 3 3 4]
func RejectOutliers(data []float64, m float64) []float64 {
	kept := make([]float64, 0, len(data))
	if len(data) == 0 {
		return kept
	}

	med := Median(data)
	dev := make([]float64, len(data))
	for i, x := range data {
		dev[i] = math.Abs(x - med)
	}
	mad := Median(dev)

	for i, x := range data {
		score := 0.0
		if mad != 0 {
			score = dev[i] / mad
		}
		if score < m {
			kept = append(kept, x)
		}
	}
	return kept
}

func sortedCopy(data []float64) []float64 {
	sorted := slices.Clone(data)
	slices.Sort(sorted)
	return sorted
}
