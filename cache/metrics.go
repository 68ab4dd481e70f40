package cache

import (
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the coordinator's OpenTelemetry instruments: counters and
// a histogram scoped to get-or-compute outcomes.
type Metrics struct {
	hits          metric.Int64Counter
	misses        metric.Int64Counter
	computeErrors metric.Int64Counter
	computeDur    metric.Float64Histogram
}

// NewMetrics builds a Metrics from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	hits, err := meter.Int64Counter(
		"utilitycache_coordinator_hits_total",
		metric.WithDescription("GetObject calls served from a resident blob"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, err
	}

	misses, err := meter.Int64Counter(
		"utilitycache_coordinator_misses_total",
		metric.WithDescription("Computed results stored by GetObject or AddItemUnconditionally"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return nil, err
	}

	computeErrors, err := meter.Int64Counter(
		"utilitycache_coordinator_compute_errors_total",
		metric.WithDescription("Producer Compute/Serialize failures"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	computeDur, err := meter.Float64Histogram(
		"utilitycache_coordinator_compute_duration_seconds",
		metric.WithDescription("Wall-clock duration of producer Compute calls"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		hits:          hits,
		misses:        misses,
		computeErrors: computeErrors,
		computeDur:    computeDur,
	}, nil
}
