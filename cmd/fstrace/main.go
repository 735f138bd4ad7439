// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command fstrace analyzes recorded filesystem traces across releases.
//
// Usage:
//
//	fstrace [global flags] <command> <trace files...>
//
// Commands:
//
//	events    per-event table
//	distance  pairwise alignment distance matrix
//	models    Markov leave-one-out, frequency baselines, time residuals
//	counts    global path counts and the top-N trace x path matrix
//	trie      filesystem trie of the top-N paths
//
// Results go to stdout (or --out); logs go to stderr.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root, a := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err != nil {
		a.log().Error("fstrace failed", slog.String("error", err.Error()))
	}
	if cerr := a.close(context.Background()); cerr != nil {
		a.log().Warn("cleanup failed", slog.String("error", cerr.Error()))
	}
	if err != nil {
		return 1
	}
	return 0
}
