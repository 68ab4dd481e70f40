package objectstore

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the instruments recorded by Instrumented. Each consuming
// package builds its own Metrics from a metric.Meter, mirroring the
// teacher's store/gc.Metrics pattern rather than package-level globals.
type Metrics struct {
	opDuration metric.Float64Histogram
	opBytes    metric.Int64Counter
}

// NewMetrics builds a Metrics from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	opDuration, err := meter.Float64Histogram(
		"objectstore.op.duration",
		metric.WithDescription("Duration of object store operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	opBytes, err := meter.Int64Counter(
		"objectstore.op.bytes",
		metric.WithDescription("Bytes transferred by object store operations"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{opDuration: opDuration, opBytes: opBytes}, nil
}

func (m *Metrics) record(ctx context.Context, op, outcome string, start time.Time, bytes int64) {
	attrs := metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	)
	m.opDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	if bytes > 0 {
		m.opBytes.Add(ctx, bytes, attrs)
	}
}
