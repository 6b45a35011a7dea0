// Copyright 2025 The Rivaas Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

const serviceName = "minifyhtml-proxy"

// telemetry owns the SDK providers of the proxy.
type telemetry struct {
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider

	// metricsHandler serves /metrics; nil unless metrics go to Prometheus.
	metricsHandler http.Handler
}

// newTelemetry builds the providers selected by cfg. Stdout exporters
// write to out.
func newTelemetry(ctx context.Context, cfg *proxyConfig, out io.Writer) (*telemetry, error) {
	t := &telemetry{}
	res := resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName))

	if err := t.initMeterProvider(ctx, cfg, res, out); err != nil {
		return nil, err
	}
	if cfg.Tracing.Enabled {
		if err := t.initTracerProvider(ctx, cfg, res, out); err != nil {
			_ = t.meterProvider.Shutdown(ctx)
			return nil, err
		}
	}

	return t, nil
}

func (t *telemetry) initMeterProvider(ctx context.Context, cfg *proxyConfig, res *resource.Resource, out io.Writer) error {
	var reader sdkmetric.Reader

	switch cfg.Metrics.Exporter {
	case "stdout":
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(out))
		if err != nil {
			return fmt.Errorf("failed to create stdout metric exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.Metrics.Interval))

	case "otlp":
		var opts []otlpmetrichttp.Option
		if endpoint, insecure := splitEndpoint(cfg.Metrics.Endpoint); endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
			if insecure {
				opts = append(opts, otlpmetrichttp.WithInsecure())
			}
		}
		exporter, err := otlpmetrichttp.New(ctx, opts...)
		if err != nil {
			return fmt.Errorf("failed to create OTLP metric exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.Metrics.Interval))

	default:
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
		if err != nil {
			return fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		reader = exporter
		t.metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}

	t.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	return nil
}

func (t *telemetry) initTracerProvider(ctx context.Context, cfg *proxyConfig, res *resource.Resource, out io.Writer) error {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)

	endpoint, insecure := splitEndpoint(cfg.Tracing.Endpoint)
	switch cfg.Tracing.Exporter {
	case "otlp":
		var opts []otlptracegrpc.Option
		if endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(endpoint))
		}
		if insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)

	case "otlp-http":
		var opts []otlptracehttp.Option
		if endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(endpoint))
		}
		if insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err = otlptracehttp.New(ctx, opts...)

	default:
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(out))
	}
	if err != nil {
		return fmt.Errorf("failed to create %s trace exporter: %w", cfg.Tracing.Exporter, err)
	}

	t.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	return nil
}

// shutdown flushes and stops the providers.
func (t *telemetry) shutdown(ctx context.Context) error {
	var errs []error
	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider: %w", err))
		}
	}
	if err := t.meterProvider.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("meter provider: %w", err))
	}
	return errors.Join(errs...)
}

// splitEndpoint turns "http://collector:4318/v1" into "collector:4318".
// insecure is set for plain http.
func splitEndpoint(raw string) (endpoint string, insecure bool) {
	endpoint = raw
	if trimmed, ok := strings.CutPrefix(endpoint, "http://"); ok {
		endpoint, insecure = trimmed, true
	} else if trimmed, ok := strings.CutPrefix(endpoint, "https://"); ok {
		endpoint = trimmed
	}
	if host, _, ok := strings.Cut(endpoint, "/"); ok {
		endpoint = host
	}
	return endpoint, insecure
}
