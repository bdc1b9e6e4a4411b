package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/owlfacerec/owlface/config"
)

func TestSetupTracingDisabled(t *testing.T) {
	before := otel.GetTracerProvider()

	shutdown, err := SetupTracing(context.Background(), &config.Config{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.Equal(t, before, otel.GetTracerProvider())
}

func TestSetupTracingEnabled(t *testing.T) {
	cfg := &config.Config{Tracing: config.TracingConfig{
		Enabled:  true,
		Endpoint: "localhost:4318",
		Insecure: true,
	}}

	shutdown, err := SetupTracing(context.Background(), cfg)
	require.NoError(t, err)

	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok)

	// nothing was recorded, so shutdown does not need the collector
	assert.NoError(t, shutdown(context.Background()))
}
