// Package telemetry records OpenTelemetry spans and metrics for policy
// evaluations.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const (
	// ScopeName is the instrumentation scope for tracers and meters.
	ScopeName = "github.com/meigma/opaclient"

	// EvaluationsMetric counts evaluations by operation and outcome. Metrics
	// carry no policy path; see the spans for that.
	EvaluationsMetric = "opaclient.evaluations"

	// DurationMetric records evaluation latency in milliseconds.
	DurationMetric = "opaclient.evaluation.duration"

	// FallbacksMetric counts switches from the batch endpoint to per-input
	// evaluation.
	FallbacksMetric = "opaclient.batch.fallbacks"
)

// Operation names used as span names and metric attributes.
const (
	OpEvaluate        = "opa.evaluate"
	OpEvaluateDefault = "opa.evaluate_default"
	OpEvaluateBatch   = "opa.evaluate_batch"
)

// Attribute keys.
const (
	AttrOperation  = attribute.Key("opa.operation")
	AttrPolicyPath = attribute.Key("opa.policy.path")
	AttrOutcome    = attribute.Key("opa.outcome")
	AttrBatchSize  = attribute.Key("opa.batch.size")
	AttrBatchMode  = attribute.Key("opa.batch.mode")
)

// Telemetry holds the tracer and instruments of one client.
type Telemetry struct {
	tracer      trace.Tracer
	evaluations metric.Int64Counter
	duration    metric.Float64Histogram
	fallbacks   metric.Int64Counter
}

// New creates instruments from the given providers. Nil providers fall back
// to the global ones.
func New(tp trace.TracerProvider, mp metric.MeterProvider) *Telemetry {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(ScopeName)

	t := &Telemetry{tracer: tp.Tracer(ScopeName)}

	var err error
	t.evaluations, err = meter.Int64Counter(EvaluationsMetric,
		metric.WithDescription("Number of policy evaluations"),
		metric.WithUnit("1"))
	if err != nil {
		t.evaluations = noop.Int64Counter{}
	}

	t.duration, err = meter.Float64Histogram(DurationMetric,
		metric.WithDescription("Duration of policy evaluations"),
		metric.WithUnit("ms"))
	if err != nil {
		t.duration = noop.Float64Histogram{}
	}

	t.fallbacks, err = meter.Int64Counter(FallbacksMetric,
		metric.WithDescription("Number of clients that switched to per-input batch evaluation"),
		metric.WithUnit("1"))
	if err != nil {
		t.fallbacks = noop.Int64Counter{}
	}
	return t
}

// Span tracks one evaluation.
type Span struct {
	t     *Telemetry
	span  trace.Span
	op    string
	path  string
	start time.Time
}

// Start begins an evaluation span.
func (t *Telemetry) Start(ctx context.Context, op, path string) (context.Context, *Span) {
	ctx, span := t.tracer.Start(ctx, op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(AttrPolicyPath.String(path)))
	return ctx, &Span{
		t:     t,
		span:  span,
		op:    op,
		path:  path,
		start: time.Now(),
	}
}

// SetAttributes annotates the span.
func (s *Span) SetAttributes(kv ...attribute.KeyValue) {
	s.span.SetAttributes(kv...)
}

// End finishes the span and records metrics. A non-nil err marks the
// evaluation as failed.
func (s *Span) End(ctx context.Context, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.span.End()

	// Policy paths are caller-chosen, so they stay on the span only.
	attrs := metric.WithAttributes(
		AttrOperation.String(s.op),
		AttrOutcome.String(outcome),
	)
	s.t.evaluations.Add(ctx, 1, attrs)
	s.t.duration.Record(ctx, float64(time.Since(s.start).Microseconds())/1000, attrs)
}

// RecordFallback counts a switch to per-input batch evaluation.
func (t *Telemetry) RecordFallback(ctx context.Context, path string) {
	t.fallbacks.Add(ctx, 1)
	trace.SpanFromContext(ctx).AddEvent("batch endpoint unsupported",
		trace.WithAttributes(AttrPolicyPath.String(path)))
}
