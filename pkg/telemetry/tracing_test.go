package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/cruciblehq/crucible/pkg/config"
)

func TestNewTracing_RequiresConfig(t *testing.T) {
	_, err := NewTracing(context.Background(), nil)
	assert.ErrorContains(t, err, "telemetry configuration is required")
}

func TestNewTracing_DisabledIsInert(t *testing.T) {
	before := otel.GetTracerProvider()

	tracing, err := NewTracing(context.Background(), &config.TelemetryConfig{})
	require.NoError(t, err)
	require.NotNil(t, tracing)

	assert.Same(t, before, otel.GetTracerProvider())
	assert.NoError(t, tracing.Shutdown(context.Background()))

	var nilTracing *Tracing
	assert.NoError(t, nilTracing.Shutdown(context.Background()))
}

func TestNewTracing_InstallsGlobalProvider(t *testing.T) {
	before := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(before) })

	cfg := &config.TelemetryConfig{
		TracingEnabled: true,
		OTLPEndpoint:   "localhost:4317",
		SampleRatio:    1.0,
	}
	tracing, err := NewTracing(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotSame(t, before, otel.GetTracerProvider())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, tracing.Shutdown(ctx))
}
