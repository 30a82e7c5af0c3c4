// Package otel provides OpenTelemetry integration for trellis lifecycle
// operations.
package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// SetupConfig controls provider installation.
type SetupConfig struct {
	// Enabled installs an OTLP/HTTP trace exporter; endpoint and headers come
	// from the standard OTEL_EXPORTER_OTLP_* environment variables. Disabled
	// leaves the global no-op providers in place.
	Enabled     bool
	ServiceName string
}

// Setup installs the global tracer provider and returns a shutdown func that
// flushes pending spans. Metrics instruments run against the global meter
// provider; tests install a manual reader, production export stays opt-in.
func Setup(ctx context.Context, cfg SetupConfig) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "trellis"
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("otel: create otlp trace exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
	)

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}
