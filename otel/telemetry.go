package otel

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	traceNoop "go.opentelemetry.io/otel/trace/noop"
)

const scopeName = "github.com/hugolhafner/go-connect"

// Telemetry holds all OpenTelemetry instruments for the connector
// When no providers are configured, all instruments are noops with zero overhead
type Telemetry struct {
	Tracer     trace.Tracer
	Propagator propagation.TextMapPropagator

	// Batch metrics
	Batches       metric.Int64Counter
	BatchDuration metric.Float64Histogram
	BatchBytes    metric.Int64Histogram

	// Record metrics
	Records      metric.Int64Counter
	RecordErrors metric.Int64Counter

	// Loop metrics
	PollDuration metric.Float64Histogram
	CycleErrors  metric.Int64Counter

	CheckpointOffset metric.Int64Gauge
}

// NewTelemetry creates a Telemetry instance from the given providers.
// all providers are optional and defaulted to noops if nil
func NewTelemetry(tp trace.TracerProvider, mp metric.MeterProvider, prop propagation.TextMapPropagator) (
	*Telemetry, error,
) {
	if tp == nil {
		tp = traceNoop.NewTracerProvider()
	}
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	if prop == nil {
		prop = propagation.TraceContext{}
	}

	meter := mp.Meter(scopeName)
	t := &Telemetry{
		Tracer:     tp.Tracer(scopeName),
		Propagator: prop,
	}

	var err error

	if t.Batches, err = meter.Int64Counter(
		"connector.batches",
		metric.WithDescription("Non-empty poll results handed to the batch processor"),
	); err != nil {
		return nil, err
	}

	if t.BatchDuration, err = meter.Float64Histogram(
		"connector.batch.duration",
		metric.WithDescription("Time to apply one batch including its transaction"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if t.BatchBytes, err = meter.Int64Histogram(
		"connector.batch.bytes",
		metric.WithDescription("Payload bytes per batch"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	if t.Records, err = meter.Int64Counter(
		"connector.records",
		metric.WithDescription("Records handled, by outcome"),
	); err != nil {
		return nil, err
	}

	if t.RecordErrors, err = meter.Int64Counter(
		"connector.record.errors",
		metric.WithDescription("Per-record failures and the error handler's decision"),
	); err != nil {
		return nil, err
	}

	if t.PollDuration, err = meter.Float64Histogram(
		"connector.poll.duration",
		metric.WithDescription("Time per Poll() call"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if t.CycleErrors, err = meter.Int64Counter(
		"connector.cycle.errors",
		metric.WithDescription("Receiver cycles that ended in an error"),
	); err != nil {
		return nil, err
	}

	if t.CheckpointOffset, err = meter.Int64Gauge(
		"connector.checkpoint.offset",
		metric.WithDescription("Last offset written to the checkpoint"),
	); err != nil {
		return nil, err
	}

	return t, nil
}

// Noop returns a Telemetry instance with all noop instruments
func Noop() *Telemetry {
	t, _ := NewTelemetry(nil, nil, nil)
	return t
}
