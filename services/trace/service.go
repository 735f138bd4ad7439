// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package trace provides the filesystem trace analysis service.
//
// The service loads one recorded trace per release and runs the analyses
// over the loaded set:
//   - Per-event tables
//   - Pairwise alignment distance between releases
//   - Markov next-path prediction scored by leave-one-out, with frequency
//     baselines and Poisson transition-time residuals
//   - Path counts and the filesystem trie
package trace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/fstrace/services/trace/config"
	"github.com/AleutianAI/fstrace/services/trace/events"
	"github.com/AleutianAI/fstrace/services/trace/pathnorm"
	"github.com/AleutianAI/fstrace/services/trace/storage/badger"
	"github.com/AleutianAI/fstrace/services/trace/telemetry"
)

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Every record carries the run id.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCache enables the parse cache.
func WithCache(c *badger.TraceCache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithMetrics sets the instruments. Without it the service registers its
// own with the global meter provider.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// Service is the trace analysis service.
//
// Thread Safety:
//
//	Service is safe for concurrent use. Load replaces the trace set under a
//	write lock; analyses read an immutable snapshot of it.
type Service struct {
	cfg     config.Config
	runID   string
	logger  *slog.Logger
	cache   *badger.TraceCache
	metrics *telemetry.Metrics
	parser  *events.Parser

	mu  sync.RWMutex
	set *events.TraceSet
}

// NewService creates a service for cfg.
//
// Description:
//
//	Validates cfg, assigns a fresh run id and builds the parser from the
//	configured operation and normalization switch.
//
// Inputs:
//
//	cfg - Analysis configuration.
//	opts - Logger, cache and metrics overrides.
//
// Outputs:
//
//	*Service - Ready for Load.
//	error - config.ErrInvalidConfig, or a metrics registration error.
func NewService(cfg config.Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		cfg:    cfg,
		runID:  uuid.NewString(),
		logger: slog.Default(),
		parser: events.NewParser(
			events.WithOperation(cfg.Operation),
			events.WithNormalizer(pathnorm.For(cfg.Normalize)),
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("run_id", s.runID))

	if s.metrics == nil {
		m, err := telemetry.NewMetrics(otel.Meter(telemetry.TracerName))
		if err != nil {
			return nil, fmt.Errorf("create metrics: %w", err)
		}
		s.metrics = m
	}
	return s, nil
}

// RunID returns the id tagging this service's logs.
func (s *Service) RunID() string {
	return s.runID
}

// Config returns the service configuration.
func (s *Service) Config() config.Config {
	return s.cfg
}

// stage starts a span for one analysis stage and returns a function that
// ends it, recording duration, outcome and errors.
func (s *Service) stage(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := telemetry.StartSpan(ctx, "trace.Service."+name, oteltrace.WithAttributes(attrs...))
	start := time.Now()
	logger := telemetry.LoggerWithTrace(ctx, s.logger)
	logger.Debug("stage started", slog.String("stage", name))

	return ctx, func(err error) {
		elapsed := time.Since(start)
		s.metrics.StageDuration.Record(ctx, elapsed.Seconds(), telemetry.Attr("stage", name))
		if err != nil {
			s.metrics.ErrorsTotal.Add(ctx, 1, telemetry.Attr("stage", name))
			telemetry.RecordError(span, err)
			logger.Error("stage failed", slog.String("stage", name), slog.String("error", err.Error()))
		} else {
			telemetry.SetSpanOK(span)
			logger.Info("stage complete", slog.String("stage", name), slog.Duration("elapsed", elapsed))
		}
		span.End()
	}
}

// Load validates and parses the trace files.
//
// Description:
//
//	Every file is validated before any is parsed, so a missing file fails
//	the whole load with events.ErrMissingTraceFile. With the parse cache
//	enabled, a file whose path, size, modification time and parser
//	settings match a cached entry is not re-read. Cache failures are
//	logged and fall back to parsing.
//
// Inputs:
//
//	ctx - Cancels between files.
//	files - Trace file paths, one per release.
//
// Outputs:
//
//	*events.TraceSet - The loaded set, also kept for later analyses.
//	error - ErrNoTraceFiles, events.ErrMissingTraceFile,
//	        events.ErrDuplicateTraceID, or a read error.
//
// Thread Safety: Safe for concurrent use; the last Load wins.
func (s *Service) Load(ctx context.Context, files []string) (set *events.TraceSet, err error) {
	ctx, done := s.stage(ctx, "Load", attribute.Int("files", len(files)))
	defer func() { done(err) }()

	if len(files) == 0 {
		return nil, ErrNoTraceFiles
	}
	abs, err := events.ValidateFiles(files)
	if err != nil {
		return nil, err
	}

	traces := make([]events.Trace, 0, len(abs))
	nEvents := 0
	for _, file := range abs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tr, err := s.loadFile(ctx, file)
		if err != nil {
			return nil, err
		}
		nEvents += tr.Len()
		traces = append(traces, tr)
	}

	set = events.NewTraceSet(traces...)
	s.mu.Lock()
	s.set = set
	s.mu.Unlock()

	s.logger.Info("traces loaded",
		slog.Int("traces", set.Len()),
		slog.Int("events", nEvents),
		slog.String("operation", s.cfg.Operation),
		slog.Bool("normalize", s.cfg.Normalize),
	)
	return set, nil
}

func (s *Service) loadFile(ctx context.Context, file string) (events.Trace, error) {
	var key badger.CacheKey
	useCache := s.cache != nil
	if useCache {
		k, err := badger.KeyFor(file, s.cfg.Operation, s.cfg.Normalize)
		if err != nil {
			return events.Trace{}, err
		}
		key = k

		tr, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil && errors.Is(err, badger.ErrCacheCorrupted):
			s.logger.Warn("discarding corrupted cache entry", slog.String("file", file))
		case err != nil:
			s.logger.Warn("parse cache lookup failed", slog.String("file", file), slog.String("error", err.Error()))
		case ok:
			s.metrics.CacheLookups.Add(ctx, 1, telemetry.Attr("result", "hit"))
			s.logger.Debug("parse cache hit", slog.String("file", file))
			return tr, nil
		}
		s.metrics.CacheLookups.Add(ctx, 1, telemetry.Attr("result", "miss"))
	}

	tr, err := s.parser.ParseFile(file)
	if err != nil {
		return events.Trace{}, err
	}
	s.metrics.TracesParsed.Add(ctx, 1)
	s.metrics.EventsParsed.Add(ctx, int64(tr.Len()))

	if useCache {
		if err := s.cache.Put(ctx, key, tr); err != nil {
			s.logger.Warn("parse cache store failed", slog.String("file", file), slog.String("error", err.Error()))
		}
	}
	return tr, nil
}

// TraceSet returns the loaded set.
func (s *Service) TraceSet() (*events.TraceSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.set == nil {
		return nil, ErrNotLoaded
	}
	return s.set, nil
}
