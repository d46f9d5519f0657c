// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package meta

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianRewind/services/rewind/snapshot"
)

// Package-level tracer and meter for metadata extraction.
var (
	tracer = otel.Tracer("rewind.meta")
	meter  = otel.Meter("rewind.meta")
)

var (
	extractLatency    metric.Float64Histogram
	extractTotal      metric.Int64Counter
	extractIncomplete metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		extractLatency, err = meter.Float64Histogram(
			"meta_extract_duration_seconds",
			metric.WithDescription("Duration of metadata extraction per file"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		extractTotal, err = meter.Int64Counter(
			"meta_extract_total",
			metric.WithDescription("Total metadata extractions"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		extractIncomplete, err = meter.Int64Counter(
			"meta_extract_incomplete_total",
			metric.WithDescription("Extractions that ended with incomplete analysis"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordExtractMetrics records metrics for one extraction.
func recordExtractMetrics(ctx context.Context, language string, duration time.Duration, complete bool) {
	if err := initMetrics(); err != nil {
		return // Silently skip if metrics init failed
	}

	attrs := metric.WithAttributes(
		attribute.String("language", language),
	)

	extractLatency.Record(ctx, duration.Seconds(), attrs)
	extractTotal.Add(ctx, 1, attrs)
	if !complete {
		extractIncomplete.Add(ctx, 1, attrs)
	}
}

// startExtractSpan creates a span for one extraction.
func startExtractSpan(ctx context.Context, filePath string, contentSize int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Extractor.Extract",
		trace.WithAttributes(
			attribute.String("meta.file", filePath),
			attribute.Int("meta.content_size", contentSize),
		),
	)
}

// setExtractSpanResult sets the outcome attributes on an extraction span.
func setExtractSpanResult(span trace.Span, md snapshot.Metadata) {
	span.SetAttributes(
		attribute.String("meta.language", md.Language),
		attribute.Bool("meta.analysis_incomplete", md.AnalysisIncomplete),
		attribute.Int("meta.dependencies", len(md.Dependencies)),
	)
}
