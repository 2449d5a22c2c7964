// Package telemetry wires OpenTelemetry tracing and metrics for the broker
// core, exporting to stdout the way the CLI's dev/local deployments consume
// it — no collector to stand up, just spans on stdout. Production
// deployments are expected to run an OTel Collector in front of the process
// and scrape/tail the stdout stream, matching the teacher's own "ship
// metrics over HTTP, keep tracing infrastructure-agnostic" posture.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/jitgroups/broker"

// Providers holds the process-wide tracer and meter providers and their
// combined shutdown.
type Providers struct {
	Tracer   trace.Tracer
	Meter    metric.Meter
	Shutdown func(context.Context) error
}

// Noop returns Providers backed by the global no-op implementations, used
// when telemetry is disabled in configuration.
func Noop() *Providers {
	return &Providers{
		Tracer:   otel.Tracer(tracerName),
		Meter:    otel.Meter(tracerName),
		Shutdown: func(context.Context) error { return nil },
	}
}

// Init builds a stdout-exporting trace and metric provider pair for
// serviceName and registers them as the global providers. Callers must
// invoke the returned shutdown before process exit to flush buffered spans
// and metrics.
func Init(ctx context.Context, serviceName string) (*Providers, error) {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceNameKey.String(serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	traceExporter, err := stdouttrace.New(stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, fmt.Errorf("telemetry: create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)

	metricExporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("telemetry: create metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return &Providers{
		Tracer: tp.Tracer(tracerName),
		Meter:  mp.Meter(tracerName),
		Shutdown: func(ctx context.Context) error {
			if err := tp.Shutdown(ctx); err != nil {
				return err
			}
			return mp.Shutdown(ctx)
		},
	}, nil
}

// StartAnalyzeSpan wraps an access-analysis call (catalog.Analyze*) for a subject.
func (p *Providers) StartAnalyzeSpan(ctx context.Context, subject string) (context.Context, trace.Span) {
	return p.Tracer.Start(ctx, "jitbroker.analyze_access",
		trace.WithAttributes(attribute.String("jitbroker.subject", subject)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartActivationSpan wraps an activation call (JIT or MPA) against a group.
func (p *Providers) StartActivationSpan(ctx context.Context, kind, groupID string) (context.Context, trace.Span) {
	return p.Tracer.Start(ctx, "jitbroker.activate",
		trace.WithAttributes(
			attribute.String("jitbroker.activation_kind", kind),
			attribute.String("jitbroker.group", groupID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartProvisionSpan wraps a provisioning reconciliation call against a group.
func (p *Providers) StartProvisionSpan(ctx context.Context, groupID string) (context.Context, trace.Span) {
	return p.Tracer.Start(ctx, "jitbroker.provision",
		trace.WithAttributes(attribute.String("jitbroker.group", groupID)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpan records the call's outcome and closes span. err may be nil.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("jitbroker.error", true))
	}
	span.End()
}
