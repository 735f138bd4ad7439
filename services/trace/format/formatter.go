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
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
)

// ErrFormatNotSupported is returned when a format type is not supported.
var ErrFormatNotSupported = errors.New("format not supported")

// ErrResultNotSupported is returned for a result type no formatter knows.
var ErrResultNotSupported = errors.New("unsupported result type")

// FormatRegistry maps format types to formatters.
type FormatRegistry struct {
	formatters map[FormatType]Formatter
}

// NewFormatRegistry creates a registry with the CSV, JSON and Markdown
// formatters registered.
func NewFormatRegistry() *FormatRegistry {
	r := &FormatRegistry{formatters: make(map[FormatType]Formatter)}
	r.Register(NewCSVFormatter())
	r.Register(NewJSONFormatter())
	r.Register(NewMarkdownFormatter())
	return r
}

// Register registers f under its name, replacing any previous formatter.
func (r *FormatRegistry) Register(f Formatter) {
	r.formatters[f.Name()] = f
}

// GetFormatter returns the formatter for the given type.
func (r *FormatRegistry) GetFormatter(formatType FormatType) (Formatter, error) {
	f, ok := r.formatters[formatType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFormatNotSupported, formatType)
	}
	return f, nil
}

// Write renders result with the formatter for formatType.
func (r *FormatRegistry) Write(w io.Writer, result any, formatType FormatType) error {
	f, err := r.GetFormatter(formatType)
	if err != nil {
		return err
	}
	return f.Write(w, result)
}

// ListFormats returns all supported format types, sorted.
func (r *FormatRegistry) ListFormats() []FormatType {
	formats := make([]FormatType, 0, len(r.formatters))
	for f := range r.formatters {
		formats = append(formats, f)
	}
	slices.Sort(formats)
	return formats
}

// ParseFormat parses a case-insensitive format name. "md" is accepted for
// markdown.
func ParseFormat(s string) (FormatType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrFormatNotSupported, s)
	}
}
