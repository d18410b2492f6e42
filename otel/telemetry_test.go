//go:build unit

package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewTelemetry_WithProviders(t *testing.T) {
	t.Parallel()
	tp := sdktrace.NewTracerProvider()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer tp.Shutdown(context.Background())
	defer mp.Shutdown(context.Background())

	tel, err := NewTelemetry(tp, mp, nil)
	require.NoError(t, err)
	require.NotNil(t, tel.Tracer)
	require.NotNil(t, tel.Propagator)
	require.NotNil(t, tel.Batches)
	require.NotNil(t, tel.BatchDuration)
	require.NotNil(t, tel.BatchBytes)
	require.NotNil(t, tel.Records)
	require.NotNil(t, tel.RecordErrors)
	require.NotNil(t, tel.PollDuration)
	require.NotNil(t, tel.CycleErrors)
	require.NotNil(t, tel.CheckpointOffset)

	tel.CheckpointOffset.Record(context.Background(), 42)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	require.Equal(t, scopeName, rm.ScopeMetrics[0].Scope.Name)

	gauge, ok := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Equal(t, int64(42), gauge.DataPoints[0].Value)
}

func TestNewTelemetry_NilProviders(t *testing.T) {
	t.Parallel()
	tel, err := NewTelemetry(nil, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, tel.Tracer)
	require.NotNil(t, tel.Propagator)
}

func TestNoop(t *testing.T) {
	t.Parallel()
	tel := Noop()
	require.NotNil(t, tel)
	require.NotNil(t, tel.Tracer)
}
