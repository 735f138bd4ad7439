// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package format

import (
	"encoding/json"
	"io"

	"github.com/AleutianAI/fstrace/services/trace/markov"
	"github.com/AleutianAI/fstrace/services/trace/timing"
)

// JSONFormatter formats results as full JSON.
type JSONFormatter struct {
	indent bool
}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{indent: true}
}

// NewJSONFormatterCompact creates a JSON formatter without indentation.
func NewJSONFormatterCompact() *JSONFormatter {
	return &JSONFormatter{indent: false}
}

// Name returns the format name.
func (f *JSONFormatter) Name() FormatType {
	return FormatJSON
}

// transitionRow is one row of a transition matrix. Probabilities is null for
// a NotObserved row.
type transitionRow struct {
	From          string    `json:"from"`
	Observed      bool      `json:"observed"`
	Probabilities []float64 `json:"probabilities"`
}

type transitionJSON struct {
	States []string        `json:"states"`
	Rows   []transitionRow `json:"rows"`
}

type timeJSON struct {
	States []string    `json:"states"`
	Means  [][]float64 `json:"means"`
}

// view returns the value to marshal for result.
func view(result any) any {
	switch r := result.(type) {
	case *markov.TransitionMatrix:
		out := transitionJSON{States: r.States(), Rows: make([]transitionRow, 0, r.Len())}
		for _, from := range r.States() {
			probs, ok := r.Row(from)
			out.Rows = append(out.Rows, transitionRow{From: from, Observed: ok, Probabilities: probs})
		}
		return out
	case *timing.TimeMatrix:
		states := r.States()
		out := timeJSON{States: states, Means: make([][]float64, len(states))}
		for i, from := range states {
			out.Means[i] = make([]float64, len(states))
			for j, to := range states {
				out.Means[i][j] = r.Mean(from, to)
			}
		}
		return out
	default:
		return result
	}
}

// Write encodes result to w.
func (f *JSONFormatter) Write(w io.Writer, result any) error {
	if _, err := Tables(result); err != nil {
		return err
	}
	encoder := json.NewEncoder(w)
	if f.indent {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(view(result))
}
