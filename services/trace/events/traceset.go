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
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// TraceSet is the validated, ordered set of traces every model reads from.
//
// Thread Safety: A TraceSet is not mutated after construction and may be
// shared across goroutines.
type TraceSet struct {
	// Files are the absolute trace file paths, in input order.
	Files []string `json:"files"`

	// Traces are parallel to Files.
	Traces []Trace `json:"traces"`
}

// ValidateFiles checks every input before any parsing happens.
//
// Description:
//
//	Each path is resolved to an absolute path and must name an existing
//	regular file. Trace ids are file basenames, so two inputs with the same
//	basename are rejected. All problems are collected and returned together.
//
// Inputs:
//
//	files - Trace file paths as given by the caller.
//
// Outputs:
//
//	[]string - Absolute paths, in input order.
//	error - Wraps ErrMissingTraceFile and/or ErrDuplicateTraceID.
func ValidateFiles(files []string) ([]string, error) {
	abs := make([]string, 0, len(files))
	seen := make(map[string]string, len(files))
	var errs []error

	for _, file := range files {
		p, err := filepath.Abs(file)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrMissingTraceFile, file, err))
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingTraceFile, p))
			continue
		}
		if !info.Mode().IsRegular() {
			errs = append(errs, fmt.Errorf("%w: %s is not a regular file", ErrMissingTraceFile, p))
			continue
		}
		id := filepath.Base(p)
		if prev, ok := seen[id]; ok {
			errs = append(errs, fmt.Errorf("%w: %s (%s and %s)", ErrDuplicateTraceID, id, prev, p))
			continue
		}
		seen[id] = p
		abs = append(abs, p)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return abs, nil
}

// LoadTraceSet validates files and parses each into a Trace.
func LoadTraceSet(files []string, p *Parser) (*TraceSet, error) {
	abs, err := ValidateFiles(files)
	if err != nil {
		return nil, err
	}
	set := &TraceSet{Files: abs, Traces: make([]Trace, 0, len(abs))}
	for _, file := range abs {
		tr, err := p.ParseFile(file)
		if err != nil {
			return nil, err
		}
		set.Traces = append(set.Traces, tr)
	}
	return set, nil
}

// NewTraceSet wraps already parsed traces. Used by the cache and by tests.
func NewTraceSet(traces ...Trace) *TraceSet {
	set := &TraceSet{
		Files:  make([]string, len(traces)),
		Traces: traces,
	}
	for i, tr := range traces {
		set.Files[i] = tr.Source
	}
	return set
}

// Len returns the number of traces.
func (s *TraceSet) Len() int {
	return len(s.Traces)
}

// IDs returns the trace ids in order.
func (s *TraceSet) IDs() []string {
	ids := make([]string, len(s.Traces))
	for i, tr := range s.Traces {
		ids[i] = tr.ID
	}
	return ids
}

// Sequences returns each trace's normalized path tokens.
func (s *TraceSet) Sequences() [][]string {
	seqs := make([][]string, len(s.Traces))
	for i, tr := range s.Traces {
		seqs[i] = tr.Paths()
	}
	return seqs
}

// Lookup returns the trace with the given id.
func (s *TraceSet) Lookup(id string) (Trace, bool) {
	for _, tr := range s.Traces {
		if tr.ID == id {
			return tr, true
		}
	}
	return Trace{}, false
}

// Events flattens all traces into one table, trace by trace.
func (s *TraceSet) Events() []Event {
	n := 0
	for _, tr := range s.Traces {
		n += len(tr.Events)
	}
	out := make([]Event, 0, n)
	for _, tr := range s.Traces {
		out = append(out, tr.Events...)
	}
	return out
}
