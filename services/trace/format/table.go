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
	"fmt"
	"strconv"

	"github.com/AleutianAI/fstrace/services/trace/markov"
	"github.com/AleutianAI/fstrace/services/trace/timing"
)

// Table is a titled grid of cells.
type Table struct {
	Title  string
	Header []string
	Rows   [][]string
}

func itoa(v int) string { return strconv.Itoa(v) }

func ftoa(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// Tables flattens result into tables.
//
// Description:
//
//	Supported results are EventTable, DistanceReport, ModelReport,
//	CountReport, TrieReport (values or pointers), *markov.TransitionMatrix
//	and *timing.TimeMatrix. Transition rows of NotObserved states render
//	every cell as NA.
//
// Outputs:
//
//	[]Table - At least one table.
//	error - ErrResultNotSupported for any other type.
func Tables(result any) ([]Table, error) {
	switch r := result.(type) {
	case EventTable:
		return []Table{eventTable(r)}, nil
	case *EventTable:
		return []Table{eventTable(*r)}, nil
	case DistanceReport:
		return []Table{distanceTable(r)}, nil
	case *DistanceReport:
		return []Table{distanceTable(*r)}, nil
	case *markov.TransitionMatrix:
		return []Table{transitionTable(r)}, nil
	case *timing.TimeMatrix:
		return []Table{timeTable(r)}, nil
	case ModelReport:
		return modelTables(r), nil
	case *ModelReport:
		return modelTables(*r), nil
	case CountReport:
		return countTables(r), nil
	case *CountReport:
		return countTables(*r), nil
	case TrieReport:
		return trieTables(r), nil
	case *TrieReport:
		return trieTables(*r), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrResultNotSupported, result)
	}
}

func eventTable(t EventTable) Table {
	tbl := Table{
		Title:  "Events",
		Header: []string{"trace_id", "operation", "raw_path", "normalized_path", "previous_path", "timestamp", "ms_in_state"},
		Rows:   make([][]string, 0, len(t.Events)),
	}
	for _, ev := range t.Events {
		prev, _ := ev.Previous()
		ms := ""
		if v, ok := ev.InState(); ok {
			ms = strconv.FormatInt(v, 10)
		}
		tbl.Rows = append(tbl.Rows, []string{
			ev.TraceID, ev.Operation, ev.RawPath, ev.NormalizedPath, prev,
			strconv.FormatInt(ev.Timestamp, 10), ms,
		})
	}
	return tbl
}

func distanceTable(r DistanceReport) Table {
	labels := r.Labels
	if len(labels) != r.Matrix.Len() {
		labels = r.Matrix.IDs
	}
	tbl := Table{
		Title:  "Distance",
		Header: append([]string{"trace"}, labels...),
		Rows:   make([][]string, 0, len(labels)),
	}
	for i, label := range labels {
		row := make([]string, 0, len(labels)+1)
		row = append(row, label)
		for j := range labels {
			row = append(row, itoa(r.Matrix.At(i, j)))
		}
		tbl.Rows = append(tbl.Rows, row)
	}
	return tbl
}

func transitionTable(m *markov.TransitionMatrix) Table {
	states := m.States()
	tbl := Table{
		Title:  "Transition probabilities",
		Header: append([]string{"from"}, states...),
		Rows:   make([][]string, 0, len(states)),
	}
	for _, from := range states {
		row := make([]string, 0, len(states)+1)
		row = append(row, from)
		probs, ok := m.Row(from)
		for j := range states {
			if !ok {
				row = append(row, NotAvailable)
				continue
			}
			row = append(row, ftoa(probs[j]))
		}
		tbl.Rows = append(tbl.Rows, row)
	}
	return tbl
}

func timeTable(tm *timing.TimeMatrix) Table {
	states := tm.States()
	tbl := Table{
		Title:  "Mean time in state",
		Header: append([]string{"from"}, states...),
		Rows:   make([][]string, 0, len(states)),
	}
	for _, from := range states {
		row := make([]string, 0, len(states)+1)
		row = append(row, from)
		for _, to := range states {
			row = append(row, ftoa(tm.Mean(from, to)))
		}
		tbl.Rows = append(tbl.Rows, row)
	}
	return tbl
}

func foldTable(title string, r *markov.LOOResult) Table {
	tbl := Table{
		Title:  title,
		Header: []string{"fold", "held_out", "correct", "wrong", "unobserved", "accuracy"},
	}
	if r == nil {
		return tbl
	}
	for _, f := range r.Folds {
		tbl.Rows = append(tbl.Rows, []string{
			itoa(f.Index), f.HeldOut, itoa(f.Correct), itoa(f.Wrong), itoa(f.Unobserved), ftoa(f.Accuracy()),
		})
	}
	return tbl
}

func modelTables(r ModelReport) []Table {
	summary := Table{
		Title:  "Summary",
		Header: []string{"metric", "value"},
		Rows: [][]string{
			{"run_id", r.RunID},
			{"seed", strconv.FormatUint(r.Seed, 10)},
			{"traces", itoa(len(r.Traces))},
			{"markov_accuracy", ftoa(r.MarkovAccuracy)},
			{"baseline_accuracy", ftoa(r.BaselineAccuracy)},
			{"baseline_loo_accuracy", ftoa(r.BaselineLOOAccuracy)},
			{"residuals", itoa(r.Residuals.Len())},
		},
	}
	if r.Markov != nil {
		summary.Rows = append(summary.Rows,
			[]string{"markov_correct", itoa(r.Markov.Correct)},
			[]string{"markov_wrong", itoa(r.Markov.Wrong)},
			[]string{"markov_unobserved", itoa(r.Markov.Unobserved)},
		)
	}

	residuals := Table{
		Title:  "Residuals by state",
		Header: []string{"state", "count", "mean", "median", "std_dev", "min", "max"},
	}
	for _, s := range r.ResidualSummary {
		residuals.Rows = append(residuals.Rows, []string{
			s.State, itoa(s.Count), ftoa(s.Mean), ftoa(s.Median), ftoa(s.StdDev), ftoa(s.Min), ftoa(s.Max),
		})
	}

	return []Table{
		summary,
		foldTable("Markov folds", r.Markov),
		foldTable("Frequency baseline folds", r.BaselineLOO),
		residuals,
	}
}

func countTables(r CountReport) []Table {
	global := Table{Title: "Path counts", Header: []string{"path", "count"}}
	for _, pc := range r.Global {
		global.Rows = append(global.Rows, []string{pc.Path, itoa(pc.Count)})
	}

	top := Table{
		Title:  "Top paths by trace",
		Header: append([]string{"trace"}, r.Top.Paths...),
	}
	for i, id := range r.Top.TraceIDs {
		row := make([]string, 0, len(r.Top.Paths)+1)
		row = append(row, id)
		for _, c := range r.Top.Counts[i] {
			row = append(row, itoa(c))
		}
		top.Rows = append(top.Rows, row)
	}
	return []Table{global, top}
}

func trieTables(r TrieReport) []Table {
	nodes := Table{Title: "Trie", Header: []string{"path", "depth", "count"}}
	for _, n := range r.Nodes {
		nodes.Rows = append(nodes.Rows, []string{n.Path, itoa(n.Depth), itoa(n.Count)})
	}
	out := []Table{nodes}

	if r.HasRange {
		out = append(out, Table{
			Title:  "Count range",
			Header: []string{"mad_multiplier", "min", "max"},
			Rows:   [][]string{{ftoa(r.MADMultiplier), ftoa(r.RangeLo), ftoa(r.RangeHi)}},
		})
	}

	if r.Query != "" {
		find := Table{Title: "Find", Header: []string{"path", "found", "count"}}
		if r.Found != nil {
			find.Rows = [][]string{{r.Query, "true", itoa(r.Found.Count)}}
		} else {
			find.Rows = [][]string{{r.Query, "false", ""}}
		}
		out = append(out, find)
	}
	return out
}
