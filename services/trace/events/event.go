// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package events turns recorder log files into ordered filesystem-access events.
//
// A recorder writes one line per filesystem operation. The last three
// whitespace-separated fields of a line are the epoch-nanosecond timestamp,
// the operation name and the absolute path:
//
//	2024/11/08 10:46:19 recorder.go:46: 1731062779714551943 Open /etc/ld.so.cache
//
// One file is one trace. Events keep file order; nothing is re-sorted.
package events

import "errors"

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrMissingTraceFile indicates an input trace file does not exist or is not a regular file.
	ErrMissingTraceFile = errors.New("missing trace file")

	// ErrDuplicateTraceID indicates two input files share a basename.
	ErrDuplicateTraceID = errors.New("duplicate trace id")
)

// DefaultOperation is the operation kept when no filter is configured.
const DefaultOperation = "Open"

// -----------------------------------------------------------------------------
// Event
// -----------------------------------------------------------------------------

// Event is one filesystem operation from a trace.
//
// PreviousPath and MsInState are optional. Their presence is carried by
// HasPrevious and HasMsInState so that an absent value is never confused
// with an empty path or a zero duration.
type Event struct {
	// TraceID is the basename of the trace file.
	TraceID string `json:"trace_id"`

	// Source is the absolute path of the trace file.
	Source string `json:"source"`

	// Timestamp is the recorded epoch timestamp in nanoseconds.
	Timestamp int64 `json:"timestamp"`

	// Operation is the recorder's operation tag, e.g. "Open" or "Lookup".
	Operation string `json:"operation"`

	// RawPath is the path exactly as recorded.
	RawPath string `json:"raw_path"`

	// NormalizedPath is RawPath after normalization.
	NormalizedPath string `json:"normalized_path"`

	// PreviousPath is the NormalizedPath of the preceding event in the same trace.
	PreviousPath string `json:"previous_path,omitempty"`
	HasPrevious  bool   `json:"has_previous"`

	// MsInState is the timestamp delta to the next event in the same trace.
	// The final event of a trace has none.
	MsInState    int64 `json:"ms_in_state,omitempty"`
	HasMsInState bool  `json:"has_ms_in_state"`
}

// Previous returns the preceding normalized path, if any.
func (e Event) Previous() (string, bool) {
	return e.PreviousPath, e.HasPrevious
}

// InState returns the time spent in this state before the next event, if known.
func (e Event) InState() (int64, bool) {
	return e.MsInState, e.HasMsInState
}

// -----------------------------------------------------------------------------
// Trace
// -----------------------------------------------------------------------------

// Trace is the ordered event sequence recorded in one file.
type Trace struct {
	// ID is the trace file basename.
	ID string `json:"id"`

	// Source is the absolute trace file path.
	Source string `json:"source"`

	// Events are in file order. May be empty.
	Events []Event `json:"events"`
}

// Len returns the number of events.
func (t Trace) Len() int {
	return len(t.Events)
}

// Paths projects the trace onto its normalized path tokens, in event order.
func (t Trace) Paths() []string {
	paths := make([]string, len(t.Events))
	for i, ev := range t.Events {
		paths[i] = ev.NormalizedPath
	}
	return paths
}
