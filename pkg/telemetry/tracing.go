package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"

	"github.com/cruciblehq/crucible/pkg/config"
	"github.com/cruciblehq/crucible/pkg/version"
)

// Tracing holds the span pipeline. When tracing is disabled the provider
// is nil and the global tracer stays the no-op default, so instrumented
// code pays nothing.
type Tracing struct {
	provider *sdktrace.TracerProvider
}

// NewTracing wires the OTLP gRPC exporter and installs the global tracer
// provider and propagator. A disabled config yields an inert Tracing.
func NewTracing(ctx context.Context, cfg *config.TelemetryConfig) (*Tracing, error) {
	if cfg == nil {
		return nil, fmt.Errorf("telemetry configuration is required")
	}
	if !cfg.TracingEnabled {
		slog.Info("Tracing disabled")
		return &Tracing{}, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(version.AppName),
		semconv.ServiceVersionKey.String(version.GitCommit),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to build trace resource: %w", err)
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	slog.Info("Tracing initialized",
		"endpoint", cfg.OTLPEndpoint,
		"sample_ratio", cfg.SampleRatio)
	return &Tracing{provider: provider}, nil
}

// Shutdown flushes pending spans. Safe to call on a disabled Tracing.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
