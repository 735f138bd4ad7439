// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry provides OpenTelemetry-based observability for the trace analyzer.
//
// This package initializes the OTel SDK for tracing and metrics. Backends are
// chosen by exporter configuration, not code.
//
// # Traces
//
// "stdout" pretty-prints spans, "otlp" ships them over gRPC, "none" keeps
// the global no-op provider.
//
// # Metrics
//
// "prometheus" registers the OTel exporter with the default Prometheus
// registry. Because an analysis run is a batch job with no scrape window,
// WriteMetricsFile snapshots that registry into a text file in the
// Prometheus exposition format (node_exporter textfile collector style).
//
// # Logging
//
// LoggerWithTrace injects trace_id and span_id into slog records so log
// lines correlate with spans.
//
// # Usage
//
//	shutdown, err := telemetry.Init(ctx, cfg)
//	if err != nil {
//	    return fmt.Errorf("init telemetry: %w", err)
//	}
//	defer shutdown(context.Background())
//
// # Environment Variables
//
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint (default: localhost:4317)
//   - OTEL_TRACES_EXPORTER: otlp, stdout, or none (default: none)
//   - OTEL_METRICS_EXPORTER: prometheus, stdout, or none (default: none)
//   - FSTRACE_ENV: environment name (default: development)
//
// # Thread Safety
//
// All exported functions are safe for concurrent use after Init() returns.
package telemetry
