package engine

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/denislee/exptracker/internal/engine"

var tracer = otel.Tracer(instrumentationName)

// SetTracerProvider replaces the tracer used for engine spans.
func SetTracerProvider(provider trace.TracerProvider) {
	tracer = provider.Tracer(instrumentationName)
}

type metrics struct {
	scrapes     metric.Int64Counter
	duration    metric.Float64Histogram
	snapshots   metric.Int64Counter
	suspensions metric.Int64Counter
}

func newMetrics() *metrics {
	meter := otel.Meter(instrumentationName)
	m := &metrics{}
	var err error
	if m.scrapes, err = meter.Int64Counter("exptracker.scrapes",
		metric.WithDescription("Scrape attempts by server, source and result.")); err != nil {
		log.Printf("[W] [Engine/Metrics] Could not create scrape counter: %v", err)
	}
	if m.duration, err = meter.Float64Histogram("exptracker.scrape.duration",
		metric.WithDescription("Wall time of one character scrape."),
		metric.WithUnit("s")); err != nil {
		log.Printf("[W] [Engine/Metrics] Could not create duration histogram: %v", err)
	}
	if m.snapshots, err = meter.Int64Counter("exptracker.snapshots.written",
		metric.WithDescription("Snapshot rows inserted or updated.")); err != nil {
		log.Printf("[W] [Engine/Metrics] Could not create snapshot counter: %v", err)
	}
	if m.suspensions, err = meter.Int64Counter("exptracker.suspensions",
		metric.WithDescription("Characters moved to suspended, by reason.")); err != nil {
		log.Printf("[W] [Engine/Metrics] Could not create suspension counter: %v", err)
	}
	return m
}

func (m *metrics) recordScrape(ctx context.Context, server, source, result string, took time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("server", server),
		attribute.String("source", source),
		attribute.String("result", result),
	)
	if m.scrapes != nil {
		m.scrapes.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, took.Seconds(), attrs)
	}
}

func (m *metrics) recordSnapshots(ctx context.Context, server string, n int) {
	if m.snapshots != nil && n > 0 {
		m.snapshots.Add(ctx, int64(n), metric.WithAttributes(attribute.String("server", server)))
	}
}

func (m *metrics) recordSuspension(ctx context.Context, reason string) {
	if m.suspensions != nil {
		m.suspensions.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}
