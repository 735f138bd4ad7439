// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package trace

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AleutianAI/fstrace/services/trace/config"
	"github.com/AleutianAI/fstrace/services/trace/events"
	"github.com/AleutianAI/fstrace/services/trace/markov"
	"github.com/AleutianAI/fstrace/services/trace/storage/badger"
)

const linearTrace = "1 Open /a\n2 Open /b\n3 Open /c\n"

func writeTraces(t *testing.T, contents map[string]string) []string {
	t.Helper()
	dir := t.TempDir()
	files := make([]string, 0, len(contents))
	for _, name := range []string{"lammps-a.out", "lammps-b.out", "lammps-c.out"} {
		body, ok := contents[name]
		if !ok {
			continue
		}
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		files = append(files, p)
	}
	return files
}

func linearTraces(t *testing.T) []string {
	return writeTraces(t, map[string]string{
		"lammps-a.out": linearTrace,
		"lammps-b.out": linearTrace,
		"lammps-c.out": linearTrace,
	})
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Workers = 2
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	svc, err := NewService(cfg, opts...)
	require.NoError(t, err)
	return svc
}

func TestNewService_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Operation = ""
	_, err := NewService(cfg)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestNewService_RunID(t *testing.T) {
	a, b := newTestService(t), newTestService(t)
	assert.NotEmpty(t, a.RunID())
	assert.NotEqual(t, a.RunID(), b.RunID())
}

func TestService_NotLoaded(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Events()
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, err = svc.Distance(ctx)
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, err = svc.Models(ctx)
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, err = svc.Counts()
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, err = svc.Trie("")
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, err = svc.TransitionMatrix()
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, err = svc.TimeMatrix()
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestLoad_Errors(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Load(ctx, nil)
	assert.ErrorIs(t, err, ErrNoTraceFiles)

	files := linearTraces(t)
	_, err = svc.Load(ctx, append(files, filepath.Join(t.TempDir(), "missing.out")))
	assert.ErrorIs(t, err, events.ErrMissingTraceFile)

	_, err = svc.TraceSet()
	assert.ErrorIs(t, err, ErrNotLoaded, "a failed load leaves nothing behind")
}

func TestLoad_EventsAndCounts(t *testing.T) {
	svc := newTestService(t)
	files := writeTraces(t, map[string]string{
		"lammps-a.out": "1 Open /lib/libc.so.6\n2 Close /lib/libc.so.6\n4 Open /etc/hosts\n",
		"lammps-b.out": "1 Open /lib/libc.so.7\n",
	})

	set, err := svc.Load(context.Background(), files)
	require.NoError(t, err)
	assert.Equal(t, []string{"lammps-a.out", "lammps-b.out"}, set.IDs())

	table, err := svc.Events()
	require.NoError(t, err)
	require.Len(t, table.Events, 3)
	assert.Equal(t, "/lib/libc.so", table.Events[0].NormalizedPath)
	assert.Equal(t, "/lib/libc.so.6", table.Events[0].RawPath)

	counts, err := svc.Counts()
	require.NoError(t, err)
	assert.Equal(t, []events.PathCount{{Path: "/lib/libc.so", Count: 2}, {Path: "/etc/hosts", Count: 1}}, counts.Global)
	assert.Equal(t, [][]int{{1, 1}, {1, 0}}, counts.Top.Counts)
}

func TestDistance(t *testing.T) {
	svc := newTestService(t)
	files := writeTraces(t, map[string]string{
		"lammps-a.out": linearTrace,
		"lammps-b.out": linearTrace,
		"lammps-c.out": "1 Open /a\n2 Open /x\n3 Open /c\n",
	})
	_, err := svc.Load(context.Background(), files)
	require.NoError(t, err)

	report, err := svc.Distance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, report.Labels)
	assert.Equal(t, [][]int{{0, 0, 1}, {0, 0, 1}, {1, 1, 0}}, report.Matrix.Values)
}

func TestModels_DeterministicTraces(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Load(context.Background(), linearTraces(t))
	require.NoError(t, err)

	report, err := svc.Models(context.Background())
	require.NoError(t, err)

	assert.Equal(t, svc.RunID(), report.RunID)
	assert.Equal(t, 1.0, report.MarkovAccuracy)
	assert.Equal(t, 6, report.Markov.Correct)
	assert.Zero(t, report.Markov.Unobserved)
	assert.GreaterOrEqual(t, report.BaselineAccuracy, 0.0)
	assert.LessOrEqual(t, report.BaselineAccuracy, 1.0)
	assert.Len(t, report.BaselineLOO.Folds, 3)

	// /b -> /c ends the trace, so only /a -> /b has an observed duration.
	assert.Len(t, report.Residuals["/a"], 3)
	require.Len(t, report.ResidualSummary, 1)
	assert.Equal(t, "/a", report.ResidualSummary[0].State)
}

func TestModels_SameSeedSameReport(t *testing.T) {
	files := writeTraces(t, map[string]string{
		"lammps-a.out": "1 Open /a\n2 Open /b\n5 Open /a\n6 Open /c\n9 Open /b\n",
		"lammps-b.out": "1 Open /a\n3 Open /c\n4 Open /b\n8 Open /a\n9 Open /b\n",
		"lammps-c.out": "1 Open /b\n2 Open /a\n4 Open /b\n7 Open /c\n9 Open /a\n",
	})

	run := func() *Service {
		svc := newTestService(t)
		_, err := svc.Load(context.Background(), files)
		require.NoError(t, err)
		return svc
	}

	r1, err := run().Models(context.Background())
	require.NoError(t, err)
	r2, err := run().Models(context.Background())
	require.NoError(t, err)

	r1.RunID, r2.RunID = "", ""
	assert.Equal(t, r1, r2)
}

func TestModels_InsufficientData(t *testing.T) {
	svc := newTestService(t)
	files := writeTraces(t, map[string]string{"lammps-a.out": linearTrace})
	_, err := svc.Load(context.Background(), files)
	require.NoError(t, err)

	_, err = svc.Models(context.Background())
	assert.ErrorIs(t, err, markov.ErrInsufficientData)
}

func TestModels_NoMatchingEvents(t *testing.T) {
	svc := newTestService(t)
	files := writeTraces(t, map[string]string{
		"lammps-a.out": "1 Lookup /a\n2 Lookup /b\n",
		"lammps-b.out": "1 Lookup /a\n",
	})
	_, err := svc.Load(context.Background(), files)
	require.NoError(t, err)

	report, err := svc.Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, markov.Tally{}, report.Baseline)
	assert.Zero(t, report.MarkovAccuracy)
	assert.Zero(t, report.BaselineAccuracy)
	assert.Len(t, report.BaselineLOO.Folds, 2)
	assert.Zero(t, report.Residuals.Len())
}

func TestMatrices(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Load(context.Background(), linearTraces(t))
	require.NoError(t, err)

	tm, err := svc.TransitionMatrix()
	require.NoError(t, err)
	assert.Equal(t, 1.0, tm.Prob("/a", "/b").Value)
	assert.False(t, tm.Observed("/c"))

	times, err := svc.TimeMatrix()
	require.NoError(t, err)
	assert.Equal(t, 1.0, times.Mean("/a", "/b"))
}

func TestTrie(t *testing.T) {
	svc := newTestService(t)
	files := writeTraces(t, map[string]string{
		"lammps-a.out": "1 Open /usr/lib/libm.so.6\n2 Open /etc/hosts\n3 Open /etc/hosts\n",
	})
	_, err := svc.Load(context.Background(), files)
	require.NoError(t, err)

	report, err := svc.Trie("/usr/lib/libm.so.6")
	require.NoError(t, err)

	paths := make([]string, len(report.Nodes))
	for i, n := range report.Nodes {
		paths[i] = n.Path
	}
	assert.Equal(t, []string{"/", "/etc", "/etc/hosts", "/usr", "/usr/lib", "/usr/lib/libm.so"}, paths)
	assert.Equal(t, "/usr/lib/libm.so", report.Query)
	require.NotNil(t, report.Found)
	assert.Equal(t, 1, report.Found.Count)
	assert.True(t, report.HasRange)

	report, err = svc.Trie("/nope")
	require.NoError(t, err)
	assert.Nil(t, report.Found)
}

func TestLoad_UsesCache(t *testing.T) {
	db, err := badger.OpenInMemory()
	require.NoError(t, err)
	defer db.Close()
	cache := badger.NewTraceCache(db)

	svc := newTestService(t, WithCache(cache))
	files := writeTraces(t, map[string]string{"lammps-a.out": linearTrace})
	ctx := context.Background()

	set, err := svc.Load(ctx, files)
	require.NoError(t, err)
	require.Equal(t, 3, set.Traces[0].Len())

	// Replace the cached entry; a hit must return it instead of re-parsing.
	key, err := badger.KeyFor(set.Files[0], "Open", true)
	require.NoError(t, err)
	marker := events.Trace{ID: "lammps-a.out", Source: set.Files[0]}
	require.NoError(t, cache.Put(ctx, key, marker))

	set, err = svc.Load(ctx, files)
	require.NoError(t, err)
	assert.Zero(t, set.Traces[0].Len())
}

func TestLoad_RecordsSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))
	defer otel.SetTracerProvider(prev)

	svc := newTestService(t)
	_, err := svc.Load(context.Background(), nil)
	require.Error(t, err)

	ended := sr.Ended()
	require.NotEmpty(t, ended)
	assert.Equal(t, "trace.Service.Load", ended[len(ended)-1].Name())
}
