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
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/fstrace/pkg/logging"
	"github.com/AleutianAI/fstrace/services/trace"
	"github.com/AleutianAI/fstrace/services/trace/config"
	"github.com/AleutianAI/fstrace/services/trace/storage/badger"
	"github.com/AleutianAI/fstrace/services/trace/telemetry"
)

// =============================================================================
// GLOBAL FLAGS
// =============================================================================

type options struct {
	configPath string
	format     string
	out        string
	seed       uint64
	workers    int
	operation  string
	rawPaths   bool
	logLevel   string
	logJSON    bool
}

// app holds what a single invocation sets up and must tear down.
type app struct {
	stdout, stderr io.Writer
	opts           options

	cfg      *config.Config
	logger   *logging.Logger
	svc      *trace.Service
	db       *badger.DB
	registry *prometheus.Registry
	shutdown func(context.Context) error
}

// newRootCmd builds a fresh command tree writing results to stdout and
// logs to stderr.
func newRootCmd(stdout, stderr io.Writer) (*cobra.Command, *app) {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "fstrace",
		Short: "Analyze filesystem access drift across release traces",
		Long: `fstrace compares recorded filesystem traces, one per release.

It measures how similar releases' access sequences are, and learns and
validates a model of which file is accessed next and how long until then.

Trace files hold recorder lines ending in "<timestamp_ns> <operation> <path>".

Examples:
  fstrace distance runs/lammps-*.out
  fstrace models --seed 42 --format json runs/*.out
  fstrace trie --find /usr/lib/libm.so.6 runs/*.out`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.opts.configPath, "config", "", "config file (default ~/.fstrace/fstrace.yaml)")
	f.StringVar(&a.opts.format, "format", "", "output format: csv, json, markdown (default markdown on a terminal, csv otherwise)")
	f.StringVarP(&a.opts.out, "out", "o", "", "write results to this file instead of stdout")
	f.Uint64Var(&a.opts.seed, "seed", 0, "random seed for model draws")
	f.IntVar(&a.opts.workers, "workers", 0, "parallel folds and pairs (0 = one per CPU)")
	f.StringVar(&a.opts.operation, "operation", "", "recorder operation to analyze (default Open)")
	f.BoolVar(&a.opts.rawPaths, "raw-paths", false, "keep shared-library version suffixes")
	f.StringVar(&a.opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	f.BoolVar(&a.opts.logJSON, "log-json", false, "log as JSON")

	root.AddCommand(
		newEventsCmd(a),
		newDistanceCmd(a),
		newModelsCmd(a),
		newCountsCmd(a),
		newTrieCmd(a),
	)
	return root, a
}

// =============================================================================
// SETUP / TEARDOWN
// =============================================================================

// applyFlags overrides cfg with every flag set on the command line.
func (a *app) applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("seed") {
		cfg.Seed = a.opts.seed
	}
	if flags.Changed("workers") {
		cfg.Workers = a.opts.workers
	}
	if flags.Changed("operation") {
		cfg.Operation = a.opts.operation
	}
	if flags.Changed("raw-paths") {
		cfg.Normalize = !a.opts.rawPaths
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = a.opts.logLevel
	}
	if flags.Changed("log-json") {
		cfg.Logging.JSON = a.opts.logJSON
	}
	return cfg.Validate()
}

func (a *app) setup(cmd *cobra.Command) error {
	ctx := cmd.Context()

	cfg, err := config.Load(a.opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := a.applyFlags(cmd, cfg); err != nil {
		return err
	}
	a.cfg = cfg

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	a.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "fstrace",
		JSON:    cfg.Logging.JSON,
		Output:  a.stderr,
	})

	tcfg := telemetry.DefaultConfig()
	tcfg.TraceExporter = cfg.Telemetry.TraceExporter
	tcfg.MetricExporter = cfg.Telemetry.MetricExporter
	if cfg.Telemetry.OTLPEndpoint != "" {
		tcfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}
	if tcfg.MetricExporter == "prometheus" {
		a.registry = prometheus.NewRegistry()
		tcfg.Registerer = a.registry
	}
	a.shutdown, err = telemetry.Init(ctx, tcfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	opts := []trace.Option{trace.WithLogger(a.logger.Slog())}
	if cfg.Cache.Enabled {
		dbcfg := badger.DefaultConfig(cfg.Cache.Path)
		dbcfg.Logger = a.logger.Slog()
		a.db, err = badger.OpenDB(dbcfg)
		if err != nil {
			return fmt.Errorf("open parse cache: %w", err)
		}
		opts = append(opts, trace.WithCache(badger.NewTraceCache(a.db)))
	}

	a.svc, err = trace.NewService(*cfg, opts...)
	if err != nil {
		return err
	}
	a.logger.Debug("run configured",
		slog.String("run_id", a.svc.RunID()),
		slog.String("command", cmd.Name()),
		slog.Uint64("seed", cfg.Seed),
		slog.Int("workers", cfg.EffectiveWorkers()),
	)
	return nil
}

// close releases everything setup created. Safe after a partial setup.
func (a *app) close(ctx context.Context) error {
	var errs []error

	// The Prometheus exporter reads from the live meter provider, so the
	// text file is written before telemetry shuts down.
	if a.cfg != nil && a.cfg.Telemetry.MetricsFile != "" {
		if a.registry != nil {
			if err := telemetry.WriteMetricsFile(a.cfg.Telemetry.MetricsFile, a.registry); err != nil {
				errs = append(errs, err)
			}
		} else {
			a.log().Warn("metrics_file ignored without the prometheus metric exporter")
		}
	}
	if a.shutdown != nil {
		if err := a.shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
		}
		a.shutdown = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close parse cache: %w", err))
		}
		a.db = nil
	}
	if a.logger != nil {
		if err := a.logger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// log returns the configured logger, or a plain stderr logger when setup
// failed before creating one.
func (a *app) log() *slog.Logger {
	if a.logger != nil {
		return a.logger.Slog()
	}
	return slog.New(slog.NewTextHandler(a.stderr, nil))
}
