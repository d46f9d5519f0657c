// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

// Config selects exporters and identifies the service in telemetry output.
type Config struct {
	// ServiceName labels every span and metric series.
	ServiceName string `json:"service_name"`

	// ServiceVersion is reported as the service.version resource attribute.
	ServiceVersion string `json:"service_version"`

	// Environment is the deployment environment (development, production).
	Environment string `json:"environment"`

	// TraceExporter is one of "otlp", "jaeger" (served over OTLP),
	// "stdout", or "none".
	TraceExporter string `json:"trace_exporter"`

	// MetricExporter is one of "prometheus", "stdout", or "none".
	MetricExporter string `json:"metric_exporter"`

	// OTLPEndpoint is the gRPC receiver for traces, host:port.
	OTLPEndpoint string `json:"otlp_endpoint"`

	// OTLPInsecure dials the OTLP endpoint without TLS.
	OTLPInsecure bool `json:"otlp_insecure"`

	// PrometheusPort is the port a caller should serve /metrics on. The
	// package only hands out the handler; it never opens the socket.
	PrometheusPort int `json:"prometheus_port"`

	// SampleRate is the sampled fraction of traces in [0, 1]. Everything
	// at or above 1, nothing at or below 0.
	SampleRate float64 `json:"sample_rate"`
}

// DefaultConfig returns development defaults. The standard OTEL_* selection
// variables and REWIND_ENV override them.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "rewind",
		ServiceVersion: "0.1.0",
		Environment:    envOr("REWIND_ENV", "development"),
		TraceExporter:  envOr("OTEL_TRACES_EXPORTER", "otlp"),
		MetricExporter: envOr("OTEL_METRICS_EXPORTER", "prometheus"),
		OTLPEndpoint:   envOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTLPInsecure:   true,
		PrometheusPort: 9090,
		SampleRate:     1.0,
	}
}

// Init wires the global OpenTelemetry tracer and meter providers according
// to cfg and installs the W3C TraceContext+Baggage propagator. After it
// returns, otel.Tracer and otel.Meter hand out instruments that actually
// export.
//
// The returned shutdown flushes and stops every provider Init created and
// must be called on exit:
//
//	shutdown, err := telemetry.Init(ctx, telemetry.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer shutdown(context.Background())
//
// Call once at startup.
func Init(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	res := newResource(cfg)
	var closers []func(context.Context) error

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if cfg.TraceExporter != "none" {
		tp, err := newTraceProvider(ctx, cfg, res)
		if err != nil {
			return nil, fmt.Errorf("trace provider: %w", err)
		}
		otel.SetTracerProvider(tp)
		closers = append(closers, tp.Shutdown)
	}

	if cfg.MetricExporter != "none" {
		mp, err := newMeterProvider(cfg, res)
		if err != nil {
			return nil, fmt.Errorf("meter provider: %w", err)
		}
		otel.SetMeterProvider(mp)
		closers = append(closers, mp.Shutdown)
	}

	shutdown = func(ctx context.Context) error {
		var errs []error
		for _, stop := range closers {
			errs = append(errs, stop(ctx))
		}
		return errors.Join(errs...)
	}
	return shutdown, nil
}

// newResource builds the service identity attached to every span and
// metric.
func newResource(cfg Config) *resource.Resource {
	return resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	)
}

// newTraceProvider builds a batching provider around the configured span
// exporter.
func newTraceProvider(ctx context.Context, cfg Config, res *resource.Resource) (*trace.TracerProvider, error) {
	exp, err := newSpanExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return trace.NewTracerProvider(
		trace.WithBatcher(exp),
		trace.WithResource(res),
		trace.WithSampler(samplerFor(cfg.SampleRate)),
	), nil
}

func newSpanExporter(ctx context.Context, cfg Config) (trace.SpanExporter, error) {
	switch cfg.TraceExporter {
	case "otlp", "jaeger":
		// Jaeger ingests OTLP natively since 1.35, so both names share
		// the gRPC exporter.
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exp, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("otlp trace exporter: %w", err)
		}
		return exp, nil
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("stdout trace exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.TraceExporter)
	}
}

func newMeterProvider(cfg Config, res *resource.Resource) (*metric.MeterProvider, error) {
	switch cfg.MetricExporter {
	case "prometheus":
		// The otel prometheus exporter registers with the default
		// prometheus registry, so promhttp's default handler serves
		// everything recorded through otel.Meter.
		exp, err := promexporter.New()
		if err != nil {
			return nil, fmt.Errorf("prometheus exporter: %w", err)
		}
		setMetricsHandler(promhttp.Handler())
		return metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(exp),
		), nil
	case "stdout":
		exp, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("stdout metric exporter: %w", err)
		}
		return metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(metric.NewPeriodicReader(exp)),
		), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.MetricExporter)
	}
}

// samplerFor maps a rate to a sampler. Mid-range rates use trace-ID ratio
// sampling so every service in a trace reaches the same decision.
func samplerFor(rate float64) trace.Sampler {
	switch {
	case rate >= 1.0:
		return trace.AlwaysSample()
	case rate <= 0.0:
		return trace.NeverSample()
	default:
		return trace.TraceIDRatioBased(rate)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var (
	metricsMu      sync.RWMutex
	metricsHandler http.Handler
)

func setMetricsHandler(h http.Handler) {
	metricsMu.Lock()
	metricsHandler = h
	metricsMu.Unlock()
}

// MetricsHandler returns the handler for the /metrics endpoint, or nil when
// the prometheus exporter is not active. Callers own the listener:
//
//	if h := telemetry.MetricsHandler(); h != nil {
//	    http.Handle("/metrics", h)
//	}
func MetricsHandler() http.Handler {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return metricsHandler
}
