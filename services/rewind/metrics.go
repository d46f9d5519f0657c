// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rewind

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianRewind/services/rewind/snapshot"
)

// Package-level tracer and meter for the coordinator façade.
var (
	tracer = otel.Tracer("rewind.coordinator")
	meter  = otel.Meter("rewind.coordinator")
)

// Metrics for store operations.
var (
	opLatency   metric.Float64Histogram
	opTotal     metric.Int64Counter
	opErrors    metric.Int64Counter
	ingestBytes metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		opLatency, err = meter.Float64Histogram(
			"rewind_op_duration_seconds",
			metric.WithDescription("Duration of store operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		opTotal, err = meter.Int64Counter(
			"rewind_ops_total",
			metric.WithDescription("Total store operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		opErrors, err = meter.Int64Counter(
			"rewind_op_errors_total",
			metric.WithDescription("Total failed store operations by error kind"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		ingestBytes, err = meter.Int64Histogram(
			"rewind_ingest_bytes",
			metric.WithDescription("Payload size of ingested file sets"),
			metric.WithUnit("By"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startOpSpan creates a span for one façade operation.
//
// Returns:
//   - ctx: Context with span
//   - span: The created span (caller must call span.End())
func startOpSpan(ctx context.Context, method, sessionID string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("rewind.op", method)}
	if sessionID != "" {
		attrs = append(attrs, attribute.String("rewind.session_id", sessionID))
	}
	return tracer.Start(ctx, "Coordinator."+method, trace.WithAttributes(attrs...))
}

// recordOpMetrics records latency and outcome for one operation.
func recordOpMetrics(ctx context.Context, op string, start time.Time, err error) {
	if initErr := initMetrics(); initErr != nil {
		return // Silently skip if metrics init failed
	}

	attrs := metric.WithAttributes(
		attribute.String("op", op),
		attribute.Bool("success", err == nil),
	)
	opLatency.Record(ctx, time.Since(start).Seconds(), attrs)
	opTotal.Add(ctx, 1, attrs)

	if err != nil {
		opErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("kind", errorKind(err)),
		))
	}
}

// recordIngestBytes records the payload size of an accepted ingestion.
func recordIngestBytes(ctx context.Context, size int64) {
	if initErr := initMetrics(); initErr != nil {
		return
	}
	ingestBytes.Record(ctx, size)
}

// errorKind classifies an error by its sentinel for metric labels. The set
// is small and fixed to keep label cardinality bounded.
func errorKind(err error) string {
	switch {
	case errors.Is(err, snapshot.ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, snapshot.ErrSnapshotNotFound):
		return "snapshot_not_found"
	case errors.Is(err, snapshot.ErrInvalidVersion):
		return "invalid_version"
	case errors.Is(err, snapshot.ErrDiffApplication):
		return "diff_application"
	case errors.Is(err, snapshot.ErrStorageUnavailable):
		return "storage_unavailable"
	case errors.Is(err, snapshot.ErrSessionClosed):
		return "session_closed"
	case errors.Is(err, snapshot.ErrInvalidInput):
		return "invalid_input"
	default:
		return "internal"
	}
}

// spanError marks span failed with err and returns err wrapped with the
// operation's context so callers can log one structured failure.
func spanError(span trace.Span, op, sessionID string, version int, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return &snapshot.OpError{Op: op, SessionID: sessionID, Version: version, Err: err}
}
