// Package prune implements the utility-driven pruning engine (spec §4.2):
// repair, orphan sweep, ranking, and eviction, synchronous and caller-driven.
package prune

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	uc "github.com/adamryczkowski/utilitycache"
	"github.com/adamryczkowski/utilitycache/metadatastore"
	"github.com/adamryczkowski/utilitycache/objectstore"
)

// Options controls a single prune run.
type Options struct {
	// RemoveHistory clears every item's access log after eviction,
	// resetting the utility prior for future runs (§4.2 step 6).
	RemoveHistory bool

	// Verbose causes non-fatal invariant violations to be logged instead
	// of silently skipped.
	Verbose bool

	// BatchSize bounds how many resident items a single Prune call
	// inspects during the repair/ranking phases, grounded on the
	// teacher's gc.Config.BatchSize. Zero means unlimited. Each call
	// takes the first BatchSize items in the order IterResident returns
	// them; no position is kept between calls, so a repeated call starts
	// again from the front of that order.
	BatchSize int
}

// Result reports what a prune run did.
type Result struct {
	RepairedItems        []uc.ItemKey
	OrphansDeleted       []string
	EvictedUnconditional []uc.ItemKey
	EvictedForSpace      []uc.ItemKey
	BytesReclaimed       int64
	FinalFreeSpace       int64
	// NonFatalErrors collects invariant violations and delete failures
	// that did not abort the run (§7: InvariantViolation is non-fatal
	// for the process).
	NonFatalErrors []error
	// Truncated reports whether Options.BatchSize cut off the resident set
	// before repair/ranking. Items past the cut were not repaired, ranked
	// or evicted in this run.
	Truncated bool
}

// Engine runs the pruning algorithm over a MetaDB/Store pair.
type Engine struct {
	meta    metadatastore.MetaDB
	store   objectstore.Store
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger used for verbose diagnostics.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics attaches OpenTelemetry instruments to the engine.
func WithMetrics(metrics *Metrics) EngineOption {
	return func(e *Engine) { e.metrics = metrics }
}

// WithNow overrides the clock, for deterministic tests.
func WithNow(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine builds a pruning engine over meta and store.
func NewEngine(meta metadatastore.MetaDB, store objectstore.Store, opts ...EngineOption) *Engine {
	e := &Engine{
		meta:   meta,
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Prune runs the six-phase algorithm of spec §4.2 once.
func (e *Engine) Prune(ctx context.Context, cfg uc.CacheConfig, opts Options) (*Result, error) {
	start := e.now()
	result := &Result{}

	allItems, err := e.meta.IterResident(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing resident items: %w", err)
	}
	items := allItems
	if opts.BatchSize > 0 && len(items) > opts.BatchSize {
		items = items[:opts.BatchSize]
		result.Truncated = true
	}

	live, err := e.repair(ctx, items, result)
	if err != nil {
		return nil, err
	}

	// Orphan detection always considers every resident item's claimed
	// storage key, even one BatchSize left uninspected this run, so a
	// truncated batch never causes sweepOrphans to delete a blob that
	// belongs to an item Prune simply hasn't reached yet.
	if err := e.sweepOrphans(ctx, allItems, live, result); err != nil {
		return nil, err
	}

	now := e.now()
	utilities := make(map[uc.ItemKey]float64, len(live))
	var candidates []*uc.CacheItem
	for _, item := range live {
		u := uc.Utility(item, cfg, now)
		utilities[item.ItemKey] = u
		if u < cfg.MinUtilityToKeep {
			if err := e.evict(ctx, item, result, "unconditional"); err != nil {
				result.NonFatalErrors = append(result.NonFatalErrors, err)
				candidates = append(candidates, item)
				continue
			}
			result.EvictedUnconditional = append(result.EvictedUnconditional, item.ItemKey)
			continue
		}
		candidates = append(candidates, item)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		return uc.LessUtility(a, b, utilities[a.ItemKey], utilities[b.ItemKey])
	})

	freeSpace, err := e.store.FreeSpace(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading free space: %w", err)
	}

	for _, item := range candidates {
		if freeSpace >= cfg.ReservedFreeSpace {
			break
		}
		if err := e.evict(ctx, item, result, "space"); err != nil {
			result.NonFatalErrors = append(result.NonFatalErrors, err)
			continue
		}
		result.EvictedForSpace = append(result.EvictedForSpace, item.ItemKey)

		freeSpace, err = e.store.FreeSpace(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading free space: %w", err)
		}
	}
	result.FinalFreeSpace = freeSpace

	if opts.RemoveHistory {
		if err := e.meta.ClearAccessLogs(ctx); err != nil {
			return nil, fmt.Errorf("clearing access logs: %w", err)
		}
	}

	if e.metrics != nil {
		e.recordMetrics(ctx, result, start)
	}
	if opts.Verbose {
		for _, err := range result.NonFatalErrors {
			e.logger.Warn("prune: non-fatal error", "error", err)
		}
	}

	return result, nil
}

// repair verifies each resident item's blob exists and its recorded size
// is accurate (§4.2 step 1), returning the items still resident afterward.
func (e *Engine) repair(ctx context.Context, items []*uc.CacheItem, result *Result) ([]*uc.CacheItem, error) {
	live := make([]*uc.CacheItem, 0, len(items))
	for _, item := range items {
		exists, err := e.store.Exists(ctx, string(item.StorageKey))
		if err != nil {
			return nil, fmt.Errorf("checking blob existence for %s: %w", item.ItemKey, err)
		}
		if !exists {
			if err := e.meta.MarkNonResident(ctx, item.ItemKey); err != nil {
				return nil, fmt.Errorf("marking %s non-resident: %w", item.ItemKey, err)
			}
			result.RepairedItems = append(result.RepairedItems, item.ItemKey)
			continue
		}

		size, err := e.store.Size(ctx, string(item.StorageKey))
		if err != nil {
			return nil, fmt.Errorf("reading blob size for %s: %w", item.ItemKey, err)
		}
		if size != item.SizeBytes {
			item.SizeBytes = size
			item.LastUtility = nil
			if err := e.meta.Upsert(ctx, item); err != nil {
				return nil, fmt.Errorf("updating size for %s: %w", item.ItemKey, err)
			}
			result.RepairedItems = append(result.RepairedItems, item.ItemKey)
		}

		live = append(live, item)
	}
	return live, nil
}

// sweepOrphans deletes blobs not claimed by any resident item (§4.2 step 2).
// claimants is every resident item known this run (independent of
// Options.BatchSize); live is the subset repair just verified, used only to
// decide what ranking/eviction sees afterward.
func (e *Engine) sweepOrphans(ctx context.Context, claimants, live []*uc.CacheItem, result *Result) error {
	claimed := make(map[string]struct{}, len(claimants))
	for _, item := range claimants {
		claimed[string(item.StorageKey)] = struct{}{}
	}

	keys, err := e.store.Keys(ctx)
	if err != nil {
		return fmt.Errorf("listing object store keys: %w", err)
	}

	for _, key := range keys {
		if _, ok := claimed[key]; ok {
			continue
		}
		if err := e.store.Delete(ctx, key); err != nil {
			result.NonFatalErrors = append(result.NonFatalErrors, fmt.Errorf("deleting orphan %s: %w", key, err))
			continue
		}
		result.OrphansDeleted = append(result.OrphansDeleted, key)
	}
	return nil
}

// evict deletes item's blob, then demotes its metadata to non-resident.
// If the blob delete fails the item stays resident and untouched. A crash
// between the two steps leaves a resident record whose blob is gone, which
// the next run's repair phase marks non-resident.
func (e *Engine) evict(ctx context.Context, item *uc.CacheItem, result *Result, reason string) error {
	if err := e.store.Delete(ctx, string(item.StorageKey)); err != nil {
		return fmt.Errorf("evicting %s (%s): deleting blob: %w", item.ItemKey, reason, err)
	}
	if err := e.meta.MarkNonResident(ctx, item.ItemKey); err != nil {
		return fmt.Errorf("evicting %s (%s): marking non-resident: %w", item.ItemKey, reason, err)
	}
	result.BytesReclaimed += item.SizeBytes
	return nil
}

func (e *Engine) recordMetrics(ctx context.Context, result *Result, start time.Time) {
	e.metrics.runsTotal.Add(ctx, 1)
	e.metrics.runDuration.Record(ctx, e.now().Sub(start).Seconds())
	e.metrics.itemsRepaired.Add(ctx, int64(len(result.RepairedItems)))
	e.metrics.orphansDeleted.Add(ctx, int64(len(result.OrphansDeleted)))
	e.metrics.itemsEvicted.Add(ctx, int64(len(result.EvictedUnconditional)),
		metric.WithAttributes(attribute.String("reason", "unconditional")))
	e.metrics.itemsEvicted.Add(ctx, int64(len(result.EvictedForSpace)),
		metric.WithAttributes(attribute.String("reason", "space")))
	e.metrics.bytesReclaimed.Add(ctx, result.BytesReclaimed)
	e.metrics.errorsTotal.Add(ctx, int64(len(result.NonFatalErrors)))
	e.metrics.lastRunTimestamp.Record(ctx, float64(e.now().Unix()))
}
