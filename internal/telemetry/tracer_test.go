package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/avpiotdemo/authorizer/internal/config"
)

func TestInit_NoEndpointIsNoop(t *testing.T) {
	p, err := Init(context.Background(), config.Telemetry{ServiceName: "authorizer"})
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))

	_, span := otel.Tracer("t").Start(context.Background(), "op")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}

func TestInit_HTTPExporter(t *testing.T) {
	// The exporter connects lazily, so no collector is needed to construct it.
	p, err := Init(context.Background(), config.Telemetry{ServiceName: "authorizer", EndpointURL: "http://127.0.0.1:4318", Insecure: true, SampleRatio: 1})
	require.NoError(t, err)
	assert.True(t, p.Enabled())
	_, span := otel.Tracer("t").Start(context.Background(), "op")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
	otel.SetTracerProvider(sdktrace.NewTracerProvider())
}

func TestSampler(t *testing.T) {
	assert.Equal(t, sdktrace.NeverSample().Description(), sampler(0).Description())
	assert.Equal(t, sdktrace.AlwaysSample().Description(), sampler(1.5).Description())
	assert.Equal(t, sdktrace.TraceIDRatioBased(0.25).Description(), sampler(0.25).Description())
}
