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
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/fstrace/services/trace/distance"
	"github.com/AleutianAI/fstrace/services/trace/events"
	"github.com/AleutianAI/fstrace/services/trace/markov"
	"github.com/AleutianAI/fstrace/services/trace/stats"
	"github.com/AleutianAI/fstrace/services/trace/timing"
)

func sampleTrace(t *testing.T) events.Trace {
	t.Helper()
	tr, err := events.NewParser().ParseReader("t1", "/data/t1",
		strings.NewReader("1 Open /a\n3 Open /b\n10 Open /a\n"))
	require.NoError(t, err)
	return tr
}

func render(t *testing.T, ft FormatType, result any) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, NewFormatRegistry().Write(&buf, result, ft))
	return buf.String()
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want FormatType
		err  bool
	}{
		{"csv", FormatCSV, false},
		{"JSON", FormatJSON, false},
		{"markdown", FormatMarkdown, false},
		{"md", FormatMarkdown, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.err {
				assert.ErrorIs(t, err, ErrFormatNotSupported)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatRegistry(t *testing.T) {
	r := NewFormatRegistry()
	assert.Equal(t, []FormatType{FormatCSV, FormatJSON, FormatMarkdown}, r.ListFormats())

	_, err := r.GetFormatter("mermaid")
	assert.ErrorIs(t, err, ErrFormatNotSupported)
}

func TestUnsupportedResult(t *testing.T) {
	for _, ft := range NewFormatRegistry().ListFormats() {
		t.Run(string(ft), func(t *testing.T) {
			err := NewFormatRegistry().Write(&bytes.Buffer{}, 42, ft)
			assert.ErrorIs(t, err, ErrResultNotSupported)
		})
	}
}

func TestCSV_Events(t *testing.T) {
	out := render(t, FormatCSV, EventTable{Events: sampleTrace(t).Events})
	want := "trace_id,operation,raw_path,normalized_path,previous_path,timestamp,ms_in_state\n" +
		"t1,Open,/a,/a,,1,2\n" +
		"t1,Open,/b,/b,/a,3,7\n" +
		"t1,Open,/a,/a,/b,10,\n"
	assert.Equal(t, want, out)
}

func TestCSV_Distance(t *testing.T) {
	m := &distance.Matrix{
		IDs:    []string{"lammps-a.out", "lammps-b.out"},
		Values: [][]int{{0, 3}, {3, 0}},
	}
	out := render(t, FormatCSV, DistanceReport{Labels: m.Labels([]string{".out", "lammps-"}), Matrix: m})
	assert.Equal(t, "trace,a,b\na,0,3\nb,3,0\n", out)
}

func TestCSV_TransitionMatrixNA(t *testing.T) {
	m := markov.BuildTransitionMatrix([][]string{{"a", "b", "c"}})
	out := render(t, FormatCSV, m)
	want := "from,a,b,c\n" +
		"a,0,1,0\n" +
		"b,0,0,1\n" +
		"c,NA,NA,NA\n"
	assert.Equal(t, want, out)
}

func TestCSV_TimeMatrix(t *testing.T) {
	tm := timing.BuildTimeMatrix([]events.Trace{sampleTrace(t)})
	out := render(t, FormatCSV, tm)
	assert.Equal(t, "from,/a,/b\n/a,0,7\n/b,0,0\n", out)
}

func TestCSV_MultipleTablesSeparated(t *testing.T) {
	report := CountReport{
		Global: []events.PathCount{{Path: "/a", Count: 2}, {Path: "/b", Count: 1}},
		Top: events.CountMatrix{
			TraceIDs: []string{"t1"},
			Paths:    []string{"/a", "/b"},
			Counts:   [][]int{{2, 1}},
		},
	}
	out := render(t, FormatCSV, &report)
	assert.Equal(t, "path,count\n/a,2\n/b,1\n\ntrace,/a,/b\nt1,2,1\n", out)
}

func TestJSON_TransitionMatrix(t *testing.T) {
	m := markov.BuildTransitionMatrix([][]string{{"a", "b", "c"}})
	out := render(t, FormatJSON, m)

	var got transitionJSON
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, []string{"a", "b", "c"}, got.States)
	require.Len(t, got.Rows, 3)
	assert.True(t, got.Rows[0].Observed)
	assert.Equal(t, []float64{0, 1, 0}, got.Rows[0].Probabilities)
	assert.False(t, got.Rows[2].Observed)
	assert.Nil(t, got.Rows[2].Probabilities)
}

func TestJSON_ModelReport(t *testing.T) {
	report := ModelReport{
		RunID:          "run-1",
		Seed:           7,
		Markov:         &markov.LOOResult{Correct: 3, Wrong: 1},
		MarkovAccuracy: 0.75,
		Residuals:      timing.ResidualSet{"/a": {0.5}},
	}
	out := render(t, FormatJSON, report)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "run-1", got["run_id"])
	assert.Equal(t, 0.75, got["markov_accuracy"])
	assert.Contains(t, got, "residuals")
}

func TestMarkdown_ModelReport(t *testing.T) {
	report := ModelReport{
		RunID: "run-1",
		Markov: &markov.LOOResult{
			Folds:   []markov.FoldResult{{Index: 0, HeldOut: "a", Correct: 2, Wrong: 1}},
			Correct: 2,
			Wrong:   1,
		},
		ResidualSummary: []timing.StateSummary{
			{State: "/a", Summary: stats.Summary{Count: 2, Mean: 0.5, Median: 0.5}},
		},
	}
	out := render(t, FormatMarkdown, report)

	assert.Contains(t, out, "## Summary")
	assert.Contains(t, out, "## Markov folds")
	assert.Contains(t, out, "| 0 | a | 2 | 1 | 0 | 0.6666666666666666 |")
	assert.Contains(t, out, "## Frequency baseline folds\n\n*No rows.*")
	assert.Contains(t, out, "| /a | 2 | 0.5 | 0.5 | 0 | 0 | 0 |")
}

func TestMarkdown_TruncatesAndEscapes(t *testing.T) {
	f := NewMarkdownFormatter()
	f.SetMaxRows(1)

	report := CountReport{Global: []events.PathCount{{Path: "/a|b", Count: 2}, {Path: "/c", Count: 1}}}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf, report))

	out := buf.String()
	assert.Contains(t, out, `| /a\|b | 2 |`)
	assert.NotContains(t, out, "| /c | 1 |")
	assert.Contains(t, out, "*Showing 1 of 2 rows.")
}

func TestTrieReport(t *testing.T) {
	report := TrieReport{
		Nodes:         []TrieRow{{Path: "/", Depth: 0}, {Path: "/etc", Name: "etc", Depth: 1, Count: 4}},
		MADMultiplier: 2,
		RangeLo:       1,
		RangeHi:       4,
		HasRange:      true,
		Query:         "/missing",
	}
	tables, err := Tables(report)
	require.NoError(t, err)
	require.Len(t, tables, 3)
	assert.Equal(t, []string{"2", "1", "4"}, tables[1].Rows[0])
	assert.Equal(t, []string{"/missing", "false", ""}, tables[2].Rows[0])

	report.Found = &TrieRow{Path: "/etc", Count: 4}
	report.Query = "/etc"
	report.HasRange = false
	tables, err = Tables(&report)
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, []string{"/etc", "true", "4"}, tables[1].Rows[0])
}
