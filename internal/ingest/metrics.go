package ingest

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/retrievald/internal/ingest"

// Metrics records ingestion metrics on the global meter. Instruments that
// fail to initialize are left nil and skipped.
type Metrics struct {
	ingests  metric.Int64Counter
	files    metric.Int64Counter
	duration metric.Float64Histogram
}

// NewMetrics creates ingestion metrics.
func NewMetrics() *Metrics {
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}

	m.ingests, _ = meter.Int64Counter(
		"retrievald.ingest.requests_total",
		metric.WithDescription("Total ingestion requests labeled by outcome."),
		metric.WithUnit("{request}"),
	)
	m.files, _ = meter.Int64Counter(
		"retrievald.ingest.files_total",
		metric.WithDescription("Total files received for ingestion."),
		metric.WithUnit("{file}"),
	)
	m.duration, _ = meter.Float64Histogram(
		"retrievald.ingest.duration_seconds",
		metric.WithDescription("End-to-end ingestion duration in seconds, lock wait included."),
		metric.WithUnit("s"),
	)
	return m
}

// RecordIngest records one ingestion attempt.
func (m *Metrics) RecordIngest(ctx context.Context, dur time.Duration, fileCount int, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))

	if m.ingests != nil {
		m.ingests.Add(ctx, 1, attrs)
	}
	if m.files != nil {
		m.files.Add(ctx, int64(fileCount), attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, dur.Seconds(), attrs)
	}
}
