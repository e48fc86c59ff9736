package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/retrievald/internal/embeddings"

// Metrics records embedding generation metrics on the global meter.
// Instruments that fail to initialize are left nil and skipped.
type Metrics struct {
	generations metric.Int64Counter
	texts       metric.Int64Counter
	duration    metric.Float64Histogram
}

// NewMetrics creates embedding metrics.
func NewMetrics() *Metrics {
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}

	m.generations, _ = meter.Int64Counter(
		"retrievald.embeddings.generations_total",
		metric.WithDescription("Total embedding API calls labeled by model, operation, and outcome."),
		metric.WithUnit("{call}"),
	)
	m.texts, _ = meter.Int64Counter(
		"retrievald.embeddings.texts_total",
		metric.WithDescription("Total texts embedded labeled by model and operation."),
		metric.WithUnit("{text}"),
	)
	m.duration, _ = meter.Float64Histogram(
		"retrievald.embeddings.duration_seconds",
		metric.WithDescription("Embedding API call duration in seconds."),
		metric.WithUnit("s"),
	)
	return m
}

// RecordGeneration records one embedding API call.
func (m *Metrics) RecordGeneration(ctx context.Context, model, operation string, dur time.Duration, textCount int, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	)

	if m.generations != nil {
		m.generations.Add(ctx, 1, attrs)
	}
	if m.texts != nil {
		m.texts.Add(ctx, int64(textCount), attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, dur.Seconds(), attrs)
	}
}
