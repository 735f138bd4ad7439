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
	"context"
	"log/slog"

	"github.com/spf13/cobra"
)

// loadArgs loads the positional trace files into the service.
func (a *app) loadArgs(ctx context.Context, files []string) error {
	set, err := a.svc.Load(ctx, files)
	if err != nil {
		return err
	}
	a.logger.Info("traces loaded", slog.Int("traces", set.Len()))
	return nil
}

func newEventsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "events <trace files...>",
		Short: "Print the per-event table",
		Long: `Print one row per retained event: trace id, operation, raw and
normalized path, previous path, timestamp and time spent in the previous state.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadArgs(cmd.Context(), args); err != nil {
				return err
			}
			table, err := a.svc.Events()
			if err != nil {
				return err
			}
			return a.write(table)
		},
	}
}

func newDistanceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "distance <trace files...>",
		Short: "Print the pairwise alignment distance matrix",
		Long: `Align every pair of traces and print the symmetric matrix of
Levenshtein distances between the aligned sequences.

Examples:
  fstrace distance --workers 8 runs/*.out
  fstrace distance --format csv --out distance.csv runs/*.out`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.loadArgs(ctx, args); err != nil {
				return err
			}
			report, err := a.svc.Distance(ctx)
			if err != nil {
				return err
			}
			return a.write(report)
		},
	}
}

func newModelsCmd(a *app) *cobra.Command {
	var transitionOut, timeOut string

	cmd := &cobra.Command{
		Use:   "models <trace files...>",
		Short: "Evaluate the Markov and frequency models with leave-one-out",
		Long: `Run leave-one-out evaluation of the Markov next-file model and the
frequency baseline, then the Poisson time residuals of the Markov predictions.

The full-data transition and time matrices can be dumped as CSV.

Examples:
  fstrace models --seed 7 runs/*.out
  fstrace models --transition-matrix tm.csv --time-matrix times.csv runs/*.out`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.loadArgs(ctx, args); err != nil {
				return err
			}
			report, err := a.svc.Models(ctx)
			if err != nil {
				return err
			}
			if transitionOut != "" {
				tm, err := a.svc.TransitionMatrix()
				if err != nil {
					return err
				}
				if err := writeCSVFile(transitionOut, tm); err != nil {
					return err
				}
			}
			if timeOut != "" {
				times, err := a.svc.TimeMatrix()
				if err != nil {
					return err
				}
				if err := writeCSVFile(timeOut, times); err != nil {
					return err
				}
			}
			return a.write(report)
		},
	}
	cmd.Flags().StringVar(&transitionOut, "transition-matrix", "", "also write the transition matrix CSV to this file")
	cmd.Flags().StringVar(&timeOut, "time-matrix", "", "also write the mean transition time CSV to this file")
	return cmd
}

func newCountsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "counts <trace files...>",
		Short: "Print global path counts and the top-N trace x path matrix",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadArgs(cmd.Context(), args); err != nil {
				return err
			}
			report, err := a.svc.Counts()
			if err != nil {
				return err
			}
			return a.write(report)
		},
	}
}

func newTrieCmd(a *app) *cobra.Command {
	var find string

	cmd := &cobra.Command{
		Use:   "trie <trace files...>",
		Short: "Print the filesystem trie of the top-N paths",
		Long: `Build a trie from the most accessed paths and print every node with its
count, the MAD-filtered count range, and optionally one looked-up path.

Examples:
  fstrace trie runs/*.out
  fstrace trie --find /usr/lib/libm.so.6 runs/*.out`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadArgs(cmd.Context(), args); err != nil {
				return err
			}
			report, err := a.svc.Trie(find)
			if err != nil {
				return err
			}
			return a.write(report)
		},
	}
	cmd.Flags().StringVar(&find, "find", "", "look up this path in the trie")
	return cmd
}
