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

package minifyhtml

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// instrumentationName is the OpenTelemetry scope of meters and tracers.
const instrumentationName = "rivaas.dev/minifyhtml"

// Outcome is the terminal state of one response passing the middleware.
type Outcome string

const (
	// OutcomePassThrough is an ineligible response returned unchanged.
	OutcomePassThrough Outcome = "passthrough"
	// OutcomeMinified is an eligible response returned with a minified body.
	OutcomeMinified Outcome = "minified"
	// OutcomeTooLarge is an eligible response over the size limit, returned unchanged.
	OutcomeTooLarge Outcome = "too_large"
	// OutcomeBufferError is a response whose body could not be read or decoded.
	OutcomeBufferError Outcome = "buffer_error"
	// OutcomeTransformError is a response the backend rejected.
	OutcomeTransformError Outcome = "transform_error"
)

// DefaultSizeBuckets are histogram boundaries for body sizes in bytes.
// Covers 100B to 10MB.
var DefaultSizeBuckets = []float64{100, 1000, 10000, 100000, 1000000, 10000000}

// DefaultDurationBuckets are histogram boundaries for minification time in seconds.
var DefaultDurationBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1}

// telemetry holds the instruments shared by every request of a layer.
type telemetry struct {
	tracer trace.Tracer

	responses  metric.Int64Counter
	inputSize  metric.Int64Histogram
	outputSize metric.Int64Histogram
	duration   metric.Float64Histogram
}

func newTelemetry(cfg *config) (*telemetry, error) {
	mp := cfg.meterProvider
	if mp == nil {
		mp = metricnoop.NewMeterProvider()
	}
	tp := cfg.tracerProvider
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}

	meter := mp.Meter(instrumentationName)
	t := &telemetry{tracer: tp.Tracer(instrumentationName)}

	var err error
	if t.responses, err = meter.Int64Counter(
		"minifyhtml.responses",
		metric.WithDescription("Responses seen by the minification middleware, by outcome"),
		metric.WithUnit("{response}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create responses counter: %w", err)
	}

	if t.inputSize, err = meter.Int64Histogram(
		"minifyhtml.body.input.size",
		metric.WithDescription("Size of HTML bodies before minification"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(DefaultSizeBuckets...),
	); err != nil {
		return nil, fmt.Errorf("failed to create input size histogram: %w", err)
	}

	if t.outputSize, err = meter.Int64Histogram(
		"minifyhtml.body.output.size",
		metric.WithDescription("Size of HTML bodies after minification"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(DefaultSizeBuckets...),
	); err != nil {
		return nil, fmt.Errorf("failed to create output size histogram: %w", err)
	}

	if t.duration, err = meter.Float64Histogram(
		"minifyhtml.duration",
		metric.WithDescription("Time spent buffering and minifying HTML bodies"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(DefaultDurationBuckets...),
	); err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	return t, nil
}

// record counts one response. Sizes are only recorded for minified bodies.
func (t *telemetry) record(ctx context.Context, backend Backend, outcome Outcome, in, out int, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("backend", backend.String()),
		attribute.String("outcome", string(outcome)),
	)
	t.responses.Add(ctx, 1, attrs)

	if outcome == OutcomePassThrough {
		return
	}

	t.duration.Record(ctx, elapsed.Seconds(), attrs)
	if outcome == OutcomeMinified {
		backendAttr := metric.WithAttributes(attribute.String("backend", backend.String()))
		t.inputSize.Record(ctx, int64(in), backendAttr)
		t.outputSize.Record(ctx, int64(out), backendAttr)
	}
}
