// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/fstrace/services/trace/format"
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// outputFormat resolves --format. Without it, a terminal gets markdown and
// anything else (pipes, files) gets csv.
func (a *app) outputFormat() (format.FormatType, error) {
	if a.opts.format != "" {
		return format.ParseFormat(a.opts.format)
	}
	if a.opts.out == "" && isTerminal(a.stdout) {
		return format.FormatMarkdown, nil
	}
	return format.FormatCSV, nil
}

// write renders result to --out or stdout.
func (a *app) write(result any) (err error) {
	ft, err := a.outputFormat()
	if err != nil {
		return err
	}

	w := a.stdout
	if a.opts.out != "" {
		f, err := os.Create(a.opts.out)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer func() {
			err = errors.Join(err, f.Close())
		}()
		w = f
	}

	if err := format.NewFormatRegistry().Write(w, result, ft); err != nil {
		return err
	}
	if a.opts.out != "" {
		a.logger.Info("results written", slog.String("file", a.opts.out), slog.String("format", string(ft)))
	}
	return nil
}

// writeCSVFile writes result as CSV to path.
func writeCSVFile(path string, result any) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	return format.NewCSVFormatter().Write(f, result)
}
