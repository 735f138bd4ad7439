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
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	dir    string
	config string
	files  []string
}

func newFixture(t *testing.T, configYAML string) fixture {
	t.Helper()
	dir := t.TempDir()
	fx := fixture{dir: dir, config: filepath.Join(dir, "fstrace.yaml")}
	require.NoError(t, os.WriteFile(fx.config, []byte(configYAML), 0o644))

	bodies := map[string]string{
		"lammps-a.out": "1 Open /a\n2 Open /b\n3 Open /c\n",
		"lammps-b.out": "1 Open /a\n2 Open /b\n3 Open /c\n",
		"lammps-c.out": "1 Open /a\n2 Open /x\n3 Open /c\n",
	}
	for _, name := range []string{"lammps-a.out", "lammps-b.out", "lammps-c.out"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(bodies[name]), 0o644))
		fx.files = append(fx.files, p)
	}
	return fx
}

func (fx fixture) run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--config", fx.config}, args...)
	code := run(context.Background(), full, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestDistance_CSVToStdout(t *testing.T) {
	fx := newFixture(t, "workers: 2\n")
	args := append([]string{"distance"}, fx.files...)

	code, out, stderr := fx.run(t, args...)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "trace,a,b,c\na,0,0,1\nb,0,0,1\nc,1,1,0\n", out)
}

func TestModels_JSONAndMatrixDumps(t *testing.T) {
	fx := newFixture(t, "workers: 2\n")
	out := filepath.Join(fx.dir, "models.json")
	tm := filepath.Join(fx.dir, "tm.csv")
	times := filepath.Join(fx.dir, "times.csv")

	args := append([]string{"models", "--seed", "7", "--format", "json", "--out", out,
		"--transition-matrix", tm, "--time-matrix", times}, fx.files...)
	code, stdout, stderr := fx.run(t, args...)
	require.Equal(t, 0, code, stderr)
	assert.Empty(t, stdout, "results go to --out")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var report map[string]any
	require.NoError(t, json.Unmarshal(data, &report))
	assert.EqualValues(t, 7, report["seed"])

	tmData, err := os.ReadFile(tm)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(tmData), "from,"))
	assert.Contains(t, string(tmData), "NA", "/c never transitions")

	_, err = os.Stat(times)
	assert.NoError(t, err)
}

func TestCountsAndTrie_Markdown(t *testing.T) {
	fx := newFixture(t, "")

	code, out, stderr := fx.run(t, append([]string{"counts", "--format", "md"}, fx.files...)...)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "## Path counts")

	code, out, stderr = fx.run(t, append([]string{"trie", "--format", "markdown", "--find", "/a"}, fx.files...)...)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "## Trie")
	assert.Contains(t, out, "/a")
}

func TestEvents_RawPathsFlag(t *testing.T) {
	fx := newFixture(t, "")
	lib := filepath.Join(fx.dir, "lammps-lib.out")
	require.NoError(t, os.WriteFile(lib, []byte("1 Open /lib/libc.so.6\n"), 0o644))

	code, out, stderr := fx.run(t, "events", "--raw-paths", lib)
	require.Equal(t, 0, code, stderr)
	assert.NotContains(t, out, ",/lib/libc.so,")

	code, out, stderr = fx.run(t, "events", lib)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, ",/lib/libc.so,")
}

func TestMetricsFile(t *testing.T) {
	dir := t.TempDir()
	metrics := filepath.Join(dir, "fstrace.prom")
	fx := newFixture(t, "telemetry:\n  metric_exporter: prometheus\n  metrics_file: "+metrics+"\n")

	code, _, stderr := fx.run(t, append([]string{"counts"}, fx.files...)...)
	require.Equal(t, 0, code, stderr)

	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), "fstrace_traces_parsed")
}

func TestExporterNamesAnyCase(t *testing.T) {
	metrics := filepath.Join(t.TempDir(), "fstrace.prom")
	fx := newFixture(t, "telemetry:\n  trace_exporter: NONE\n  metric_exporter: Prometheus\n  metrics_file: "+metrics+"\n")

	code, _, stderr := fx.run(t, append([]string{"counts", "--log-level", "WARN"}, fx.files...)...)
	require.Equal(t, 0, code, stderr)
	_, err := os.Stat(metrics)
	assert.NoError(t, err)
}

func TestParseCacheEnabled(t *testing.T) {
	cacheDir := filepath.Join(t.TempDir(), "cache")
	fx := newFixture(t, "cache:\n  enabled: true\n  path: "+cacheDir+"\n")

	for range 2 {
		code, out, stderr := fx.run(t, append([]string{"distance"}, fx.files...)...)
		require.Equal(t, 0, code, stderr)
		assert.Contains(t, out, "c,1,1,0")
	}
	_, err := os.Stat(cacheDir)
	assert.NoError(t, err)
}

func TestFailures(t *testing.T) {
	fx := newFixture(t, "")
	missing := filepath.Join(fx.dir, "missing.out")
	cacheNoPath := filepath.Join(fx.dir, "cache.yaml")
	require.NoError(t, os.WriteFile(cacheNoPath, []byte("cache:\n  enabled: true\n"), 0o644))

	tests := []struct {
		name string
		args []string
	}{
		{"no trace files", []string{"distance"}},
		{"missing trace file", []string{"distance", fx.files[0], missing}},
		{"unknown format", []string{"counts", "--format", "xml", fx.files[0]}},
		{"bad log level", []string{"counts", "--log-level", "loud", fx.files[0]}},
		{"one trace for models", []string{"models", fx.files[0]}},
		{"unknown command", []string{"plot", fx.files[0]}},
		{"cache without path", []string{"--config", cacheNoPath, "counts", fx.files[0]}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := fx.run(t, tt.args...)
			assert.Equal(t, 1, code)
			assert.Contains(t, stderr, "fstrace failed")
		})
	}
}

func TestOutputFormat_Default(t *testing.T) {
	a := &app{stdout: &bytes.Buffer{}}
	ft, err := a.outputFormat()
	require.NoError(t, err)
	assert.Equal(t, "csv", string(ft), "non-terminal writers get csv")
	assert.False(t, isTerminal(&bytes.Buffer{}))
}
