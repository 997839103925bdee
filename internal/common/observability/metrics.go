package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

type Observability struct {
	meterProvider   *metric.MeterProvider
	meter           otelmetric.Meter
	refreshCounter  otelmetric.Int64Counter
	refreshDuration otelmetric.Float64Histogram
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	refreshCounter, _ := meter.Int64Counter(
		"catalog.refreshes",
		otelmetric.WithDescription("Number of vendor cache refreshes"),
	)

	refreshDuration, _ := meter.Float64Histogram(
		"catalog.refresh.duration",
		otelmetric.WithDescription("Vendor cache refresh duration"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meterProvider:   provider,
		meter:           meter,
		refreshCounter:  refreshCounter,
		refreshDuration: refreshDuration,
	}
}

func (o *Observability) RecordRefresh(ctx context.Context, status string) {
	if o.refreshCounter != nil {
		o.refreshCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordRefreshDuration(ctx context.Context, duration time.Duration, status string) {
	if o.refreshDuration != nil {
		o.refreshDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

func (o *Observability) Shutdown() {
	if o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.meterProvider.Shutdown(ctx)
	}
}
