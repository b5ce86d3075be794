// Package obs wires the ambient logging, tracing, and metrics stack shared
// by both processes (agentd and gateway). Grounded on hector's
// pkg/observability — tracer.go's enabled/no-op switch and metrics.go's
// per-subsystem CounterVec/HistogramVec registration — adapted from its
// OTLP-gRPC exporter to the stdout exporter this module depends on.
package obs

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerConfig mirrors hector's TracerConfig shape, minus the OTLP-specific
// fields this module does not use.
type TracerConfig struct {
	Enabled     bool
	ServiceName string
}

// InitTracer builds and installs a global TracerProvider. When disabled it
// installs and returns a no-op TracerProvider, so callers never need to
// branch on whether tracing is turned on.
func InitTracer(ctx context.Context, cfg TracerConfig) (trace.TracerProvider, func(context.Context) error, error) {
	if !cfg.Enabled {
		provider := trace.NewNoopTracerProvider()
		otel.SetTracerProvider(provider)
		return provider, func(context.Context) error { return nil }, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, nil, fmt.Errorf("obs: creating stdout exporter: %w", err)
	}

	_ = ctx
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resourceFor(cfg.ServiceName)),
	)
	otel.SetTracerProvider(tp)
	return tp, tp.Shutdown, nil
}

func resourceFor(serviceName string) *resource.Resource {
	r, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", serviceName),
	))
	if err != nil {
		return resource.Default()
	}
	return r
}

// GetTracer is a thin wrapper matching hector's GetTracer(name) convention.
func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
