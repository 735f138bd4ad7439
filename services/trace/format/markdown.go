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
	"bufio"
	"fmt"
	"io"
	"strings"
)

// MarkdownFormatter formats results as Markdown tables.
type MarkdownFormatter struct {
	maxRows int
}

// NewMarkdownFormatter creates a new Markdown formatter.
func NewMarkdownFormatter() *MarkdownFormatter {
	return &MarkdownFormatter{maxRows: 100}
}

// SetMaxRows sets the maximum number of table rows. 0 disables truncation.
func (f *MarkdownFormatter) SetMaxRows(max int) {
	f.maxRows = max
}

// Name returns the format name.
func (f *MarkdownFormatter) Name() FormatType {
	return FormatMarkdown
}

// Write writes result to w as Markdown.
func (f *MarkdownFormatter) Write(w io.Writer, result any) error {
	tables, err := Tables(result)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	for i, t := range tables {
		if i > 0 {
			fmt.Fprintln(bw)
		}
		f.writeTable(bw, t)
	}
	return bw.Flush()
}

func (f *MarkdownFormatter) writeTable(w io.Writer, t Table) {
	fmt.Fprintf(w, "## %s\n\n", t.Title)

	if len(t.Rows) == 0 {
		fmt.Fprintln(w, "*No rows.*")
		return
	}

	fmt.Fprintf(w, "| %s |\n", strings.Join(escapeCells(t.Header), " | "))
	sep := make([]string, len(t.Header))
	for i := range sep {
		sep[i] = "---"
	}
	fmt.Fprintf(w, "|%s|\n", strings.Join(sep, "|"))

	rows := t.Rows
	truncated := false
	if f.maxRows > 0 && len(rows) > f.maxRows {
		rows = rows[:f.maxRows]
		truncated = true
	}
	for _, row := range rows {
		fmt.Fprintf(w, "| %s |\n", strings.Join(escapeCells(row), " | "))
	}

	if truncated {
		fmt.Fprintf(w, "\n*Showing %d of %d rows. Use --format json or csv for complete data.*\n",
			f.maxRows, len(t.Rows))
	}
}

// escapeCells makes cells safe inside a pipe table.
func escapeCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		c = strings.ReplaceAll(c, "|", `\|`)
		out[i] = strings.ReplaceAll(c, "\n", " ")
	}
	return out
}
