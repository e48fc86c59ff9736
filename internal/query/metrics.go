package query

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/retrievald/internal/query"

// Metrics records query metrics on the global meter. Instruments that fail
// to initialize are left nil and skipped.
type Metrics struct {
	queries  metric.Int64Counter
	duration metric.Float64Histogram
}

// NewMetrics creates query metrics.
func NewMetrics() *Metrics {
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}

	m.queries, _ = meter.Int64Counter(
		"retrievald.query.requests_total",
		metric.WithDescription("Total fanout queries labeled by outcome."),
		metric.WithUnit("{request}"),
	)
	m.duration, _ = meter.Float64Histogram(
		"retrievald.query.duration_seconds",
		metric.WithDescription("Fanout query duration in seconds, responder call included."),
		metric.WithUnit("s"),
	)
	return m
}

// RecordQuery records one fanout query.
func (m *Metrics) RecordQuery(ctx context.Context, dur time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))

	if m.queries != nil {
		m.queries.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, dur.Seconds(), attrs)
	}
}
