package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Observability records batch evaluation runs through an OpenTelemetry meter
// exported on the default Prometheus registry.
type Observability struct {
	meterProvider *metric.MeterProvider
	runCounter    otelmetric.Int64Counter
	runDuration   otelmetric.Float64Histogram
	itemCounter   otelmetric.Int64Counter
}

// New falls back to a no-op recorder when the exporter cannot be built.
func New(serviceName string) (*Observability, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return &Observability{}, err
	}
	return newWithReader(serviceName, exporter), nil
}

func newWithReader(serviceName string, reader metric.Reader) *Observability {
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	runCounter, _ := meter.Int64Counter(
		"batch.runs",
		otelmetric.WithDescription("Batch evaluation runs"),
	)
	runDuration, _ := meter.Float64Histogram(
		"batch.duration",
		otelmetric.WithDescription("Batch evaluation run duration"),
		otelmetric.WithUnit("ms"),
	)
	itemCounter, _ := meter.Int64Counter(
		"batch.items",
		otelmetric.WithDescription("Applications processed by batch runs"),
	)

	return &Observability{
		meterProvider: provider,
		runCounter:    runCounter,
		runDuration:   runDuration,
		itemCounter:   itemCounter,
	}
}

// RecordBatchRun records one finished run. status is "completed" or "failed".
func (o *Observability) RecordBatchRun(ctx context.Context, duration time.Duration, status string, evaluated, rejected, errored int) {
	if o == nil || o.runCounter == nil {
		return
	}
	attrs := otelmetric.WithAttributes(attribute.String("status", status))
	o.runCounter.Add(ctx, 1, attrs)
	o.runDuration.Record(ctx, float64(duration.Milliseconds()), attrs)

	o.itemCounter.Add(ctx, int64(evaluated), otelmetric.WithAttributes(attribute.String("result", "evaluated")))
	o.itemCounter.Add(ctx, int64(rejected), otelmetric.WithAttributes(attribute.String("result", "rejected")))
	o.itemCounter.Add(ctx, int64(errored), otelmetric.WithAttributes(attribute.String("result", "error")))
}

func (o *Observability) Shutdown() {
	if o == nil || o.meterProvider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = o.meterProvider.Shutdown(ctx)
}
