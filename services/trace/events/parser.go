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
	"bufio"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/AleutianAI/fstrace/services/trace/pathnorm"
)

const (
	// initialLineBuffer is the scanner's starting buffer size.
	initialLineBuffer = 64 * 1024

	// maxLineLength bounds a single recorder line. Deeply nested paths can be long.
	maxLineLength = 4 * 1024 * 1024
)

// Parser reads recorder lines into events.
//
// Thread Safety: A Parser holds only immutable settings and is safe for
// concurrent use.
type Parser struct {
	operation string
	normalize pathnorm.Normalizer
}

// Option configures a Parser.
type Option func(*Parser)

// WithOperation keeps only lines whose operation equals op.
// An empty op keeps the default filter.
func WithOperation(op string) Option {
	return func(p *Parser) {
		if op != "" {
			p.operation = op
		}
	}
}

// WithNormalizer sets the function used to derive NormalizedPath.
func WithNormalizer(n pathnorm.Normalizer) Option {
	return func(p *Parser) {
		if n != nil {
			p.normalize = n
		}
	}
}

// NewParser creates a Parser that keeps "Open" operations and normalizes
// shared-library versions, unless overridden by options.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		operation: DefaultOperation,
		normalize: pathnorm.Normalize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Operation returns the operation filter.
func (p *Parser) Operation() string {
	return p.operation
}

// record is one accepted line before trace-level bookkeeping.
type record struct {
	timestamp int64
	operation string
	path      string
}

// parseLine extracts the trailing (timestamp, operation, path) fields.
//
// Lines with fewer than three fields, a non-integer timestamp, or an
// operation other than the filter are rejected.
func (p *Parser) parseLine(line string) (record, bool) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return record{}, false
	}
	n := len(fields)
	op := fields[n-2]
	if op != p.operation {
		return record{}, false
	}
	ts, err := strconv.ParseInt(fields[n-3], 10, 64)
	if err != nil {
		return record{}, false
	}
	return record{timestamp: ts, operation: op, path: fields[n-1]}, true
}

// Stream yields the events of a single trace read from r.
//
// Description:
//
//	Events are produced lazily. Because MsInState of an event is the gap to
//	the next accepted event, each event is yielded once its successor has
//	been read (or the input ended). Malformed and filtered lines are skipped.
//
// Inputs:
//
//	traceID - Identifier stamped on every event (the file basename).
//	source - Absolute path of the trace file, informational.
//	r - Reader positioned at the start of the trace content.
//
// Outputs:
//
//	iter.Seq2[Event, error] - Single-pass sequence over r. A read error is
//	yielded once as the final element.
func (p *Parser) Stream(traceID, source string, r io.Reader) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, initialLineBuffer), maxLineLength)

		var (
			pending    Event
			hasPending bool
		)

		for scanner.Scan() {
			rec, ok := p.parseLine(scanner.Text())
			if !ok {
				continue
			}

			ev := Event{
				TraceID:        traceID,
				Source:         source,
				Timestamp:      rec.timestamp,
				Operation:      rec.operation,
				RawPath:        rec.path,
				NormalizedPath: p.normalize(rec.path),
			}

			if hasPending {
				ev.PreviousPath = pending.NormalizedPath
				ev.HasPrevious = true
				pending.MsInState = rec.timestamp - pending.Timestamp
				pending.HasMsInState = true
				if !yield(pending, nil) {
					return
				}
			}
			pending = ev
			hasPending = true
		}

		if hasPending {
			if !yield(pending, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(Event{}, fmt.Errorf("read trace %s: %w", traceID, err))
		}
	}
}

// Events yields every event of every file, trace by trace.
//
// Description:
//
//	The sequence is restartable: each iteration re-opens the files and makes
//	one pass over their content. Previous-path and MsInState tracking reset
//	at every file boundary.
//
// Inputs:
//
//	files - Trace file paths, in analysis order.
//
// Outputs:
//
//	iter.Seq2[Event, error] - Lazy sequence. An open or read error is yielded
//	and ends the iteration.
func (p *Parser) Events(files []string) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for _, file := range files {
			if !p.streamFile(file, yield) {
				return
			}
		}
	}
}

// streamFile yields one file's events and reports whether iteration should continue.
func (p *Parser) streamFile(file string, yield func(Event, error) bool) bool {
	f, err := os.Open(file)
	if err != nil {
		yield(Event{}, fmt.Errorf("open trace %s: %w", file, err))
		return false
	}
	defer f.Close()

	for ev, err := range p.Stream(filepath.Base(file), file, f) {
		if !yield(ev, err) || err != nil {
			return false
		}
	}
	return true
}

// ParseReader collects the events read from r into a Trace.
func (p *Parser) ParseReader(traceID, source string, r io.Reader) (Trace, error) {
	trace := Trace{ID: traceID, Source: source}
	for ev, err := range p.Stream(traceID, source, r) {
		if err != nil {
			return Trace{}, err
		}
		trace.Events = append(trace.Events, ev)
	}
	return trace, nil
}

// ParseFile reads one trace file.
func (p *Parser) ParseFile(file string) (Trace, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return Trace{}, fmt.Errorf("resolve %s: %w", file, err)
	}
	f, err := os.Open(abs)
	if err != nil {
		return Trace{}, fmt.Errorf("open trace %s: %w", abs, err)
	}
	defer f.Close()
	return p.ParseReader(filepath.Base(abs), abs, f)
}
