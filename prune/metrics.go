package prune

import (
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the pruning engine's OpenTelemetry instruments, grounded
// on the teacher's store/gc.Metrics.
type Metrics struct {
	runsTotal        metric.Int64Counter
	runDuration      metric.Float64Histogram
	itemsRepaired    metric.Int64Counter
	orphansDeleted   metric.Int64Counter
	itemsEvicted     metric.Int64Counter
	bytesReclaimed   metric.Int64Counter
	errorsTotal      metric.Int64Counter
	lastRunTimestamp metric.Float64Gauge
}

// NewMetrics builds a Metrics from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	runsTotal, err := meter.Int64Counter(
		"utilitycache_prune_runs_total",
		metric.WithDescription("Total number of prune runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	runDuration, err := meter.Float64Histogram(
		"utilitycache_prune_run_duration_seconds",
		metric.WithDescription("Prune run duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.1, 0.5, 1, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, err
	}

	itemsRepaired, err := meter.Int64Counter(
		"utilitycache_prune_items_repaired_total",
		metric.WithDescription("Resident items repaired (missing blob or size mismatch)"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, err
	}

	orphansDeleted, err := meter.Int64Counter(
		"utilitycache_prune_orphans_deleted_total",
		metric.WithDescription("Blobs deleted that were not claimed by any resident item"),
		metric.WithUnit("{blob}"),
	)
	if err != nil {
		return nil, err
	}

	itemsEvicted, err := meter.Int64Counter(
		"utilitycache_prune_items_evicted_total",
		metric.WithDescription("Resident items evicted, by reason"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, err
	}

	bytesReclaimed, err := meter.Int64Counter(
		"utilitycache_prune_bytes_reclaimed_total",
		metric.WithDescription("Bytes reclaimed by eviction"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	errorsTotal, err := meter.Int64Counter(
		"utilitycache_prune_errors_total",
		metric.WithDescription("Non-fatal errors encountered during prune"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	lastRunTimestamp, err := meter.Float64Gauge(
		"utilitycache_prune_last_run_timestamp_seconds",
		metric.WithDescription("Unix timestamp of the last prune run"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		runsTotal:        runsTotal,
		runDuration:      runDuration,
		itemsRepaired:    itemsRepaired,
		orphansDeleted:   orphansDeleted,
		itemsEvicted:     itemsEvicted,
		bytesReclaimed:   bytesReclaimed,
		errorsTotal:      errorsTotal,
		lastRunTimestamp: lastRunTimestamp,
	}, nil
}
