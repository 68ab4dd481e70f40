// Package cache implements the cache coordinator (§4.3): the public
// surface that links a metadata store, an object store, and per-request
// producers into a get-or-compute protocol with correct failure handling.
package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	uc "github.com/adamryczkowski/utilitycache"
	"github.com/adamryczkowski/utilitycache/metadatastore"
	"github.com/adamryczkowski/utilitycache/objectstore"
	"github.com/adamryczkowski/utilitycache/prune"
)

// Stats is a read-only snapshot of the cache's resident set, for the CLI's
// info command and for dashboards.
type Stats struct {
	ResidentCount int
	ResidentBytes int64
}

// Coordinator is the cache's public API (§4.3). It serializes metadata and
// object-store mutations through a single mutex but runs producer Compute
// calls with the lock released, so a slow compute does not block unrelated
// callers (§5).
type Coordinator struct {
	mu sync.Mutex

	meta    metadatastore.MetaDB
	store   objectstore.Store
	keyGen  uc.StorageKeyGenerator
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
	config  uc.CacheConfig

	pruneMetrics *prune.Metrics
	pruner       *prune.Engine
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithStorageKeyGenerator overrides the default PrefixedKeyGenerator used
// when a producer does not propose its own storage key.
func WithStorageKeyGenerator(gen uc.StorageKeyGenerator) Option {
	return func(c *Coordinator) { c.keyGen = gen }
}

// WithLogger sets the logger used for diagnostics and non-fatal warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithMetrics attaches OpenTelemetry instruments to the coordinator.
func WithMetrics(metrics *Metrics) Option {
	return func(c *Coordinator) { c.metrics = metrics }
}

// WithPruneMetrics attaches OpenTelemetry instruments to the coordinator's
// internal pruning engine.
func WithPruneMetrics(metrics *prune.Metrics) Option {
	return func(c *Coordinator) { c.pruneMetrics = metrics }
}

// WithNow overrides the clock, for deterministic tests.
func WithNow(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator builds a Coordinator over meta and store, loading
// CacheConfig once from meta (§9 "Configuration lifecycle").
func NewCoordinator(ctx context.Context, meta metadatastore.MetaDB, store objectstore.Store, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		meta:   meta,
		store:  store,
		keyGen: uc.PrefixedKeyGenerator{},
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	cfg, err := meta.LoadConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading cache configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cache configuration: %w", err)
	}
	c.config = cfg

	engineOpts := []prune.EngineOption{prune.WithLogger(c.logger), prune.WithNow(c.now)}
	if c.pruneMetrics != nil {
		engineOpts = append(engineOpts, prune.WithMetrics(c.pruneMetrics))
	}
	c.pruner = prune.NewEngine(meta, store, engineOpts...)

	return c, nil
}

// Config returns the coordinator's currently effective configuration.
func (c *Coordinator) Config() uc.CacheConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// UpdateConfig validates and persists cfg, and takes effect for subsequent
// operations. It does not retroactively alter already-stored items'
// recorded costs (§9).
func (c *Coordinator) UpdateConfig(ctx context.Context, cfg uc.CacheConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.meta.StoreConfig(ctx, cfg); err != nil {
		return fmt.Errorf("storing cache configuration: %w", err)
	}
	c.config = cfg
	return nil
}

// GetObject implements the get-or-compute protocol (§4.3).
func (c *Coordinator) GetObject(ctx context.Context, producer uc.ItemProducer) (any, error) {
	key := producer.ItemKey()

	c.mu.Lock()
	item, err := c.meta.Get(ctx, key)
	c.mu.Unlock()
	if err != nil {
		if !errors.Is(err, uc.ErrNotFound) {
			return nil, fmt.Errorf("looking up item %s: %w", key, err)
		}
		item = nil
	}

	if item != nil && item.IsResident() {
		obj, readErr := c.readBlob(ctx, producer, item.StorageKey)
		if readErr == nil {
			c.mu.Lock()
			appendErr := c.meta.AppendAccess(ctx, key, c.now())
			c.mu.Unlock()
			if appendErr != nil {
				return nil, fmt.Errorf("recording access for item %s: %w", key, appendErr)
			}
			if c.metrics != nil {
				c.metrics.hits.Add(ctx, 1)
			}
			return obj, nil
		}

		switch {
		case errors.Is(readErr, uc.ErrNotFound):
			if err := c.demote(ctx, item, false); err != nil {
				return nil, fmt.Errorf("repairing item %s: %w", key, err)
			}
		case errors.Is(readErr, uc.ErrCorruptBlob):
			if err := c.demote(ctx, item, true); err != nil {
				return nil, fmt.Errorf("repairing item %s: %w", key, err)
			}
		default:
			return nil, readErr
		}
		item.MarkNonResident()
	}

	// Miss, or demoted above: recompute. Bounded to one retry per call
	// because this fallthrough only happens once.
	return c.computeAndStore(ctx, producer, key, item)
}

// GetObjectInfo is a pure metadata read; it never records an access.
func (c *Coordinator) GetObjectInfo(ctx context.Context, key uc.ItemKey) (*uc.CacheItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meta.Get(ctx, key)
}

// AddItemUnconditionally forces recomputation and storage even if the item
// is already resident, replacing its blob atomically: write to a new
// storage key, update metadata to point there, then delete the old blob.
func (c *Coordinator) AddItemUnconditionally(ctx context.Context, producer uc.ItemProducer) (*uc.CacheItem, error) {
	key := producer.ItemKey()

	c.mu.Lock()
	existing, err := c.meta.Get(ctx, key)
	c.mu.Unlock()
	if err != nil {
		if !errors.Is(err, uc.ErrNotFound) {
			return nil, fmt.Errorf("looking up item %s: %w", key, err)
		}
		existing = nil
	}

	start := c.now()
	obj, err := producer.Compute(ctx)
	cost := c.now().Sub(start)
	if c.metrics != nil {
		c.metrics.computeDur.Record(ctx, cost.Seconds())
	}
	if err != nil {
		if c.metrics != nil {
			c.metrics.computeErrors.Add(ctx, 1)
		}
		return nil, fmt.Errorf("computing item %s: %w: %w", key, uc.ErrProducerFailed, err)
	}

	data, err := producer.Serialize(obj)
	if err != nil {
		if c.metrics != nil {
			c.metrics.computeErrors.Add(ctx, 1)
		}
		return nil, fmt.Errorf("serializing item %s: %w: %w", key, uc.ErrProducerFailed, err)
	}

	storageKey := producer.ProposeStorageKey()
	if storageKey.IsEmpty() {
		storageKey = c.keyGen.Derive(key)
	}

	var oldStorageKey uc.StorageKey
	if existing != nil {
		oldStorageKey = existing.StorageKey
	}
	if !oldStorageKey.IsEmpty() && storageKey == oldStorageKey {
		// The deterministic generator would derive the same key as the
		// blob we are replacing. Write to a disposable key first so the
		// old blob stays valid until the new one is committed.
		storageKey = uc.StorageKey(fmt.Sprintf("%s.refresh-%s", storageKey, uuid.NewString()))
	}

	c.mu.Lock()
	size, err := c.store.Write(ctx, string(storageKey), bytes.NewReader(data))
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("writing blob %s: %w: %w", storageKey, uc.ErrIOFailure, err)
	}

	now := c.now()
	item := applyComputeResult(existing, key, storageKey, size, cost, now, producer.Description(), producer.Weight())

	if err := c.meta.Upsert(ctx, item); err != nil {
		c.mu.Unlock()
		if delErr := c.store.Delete(ctx, string(storageKey)); delErr != nil {
			c.logger.Warn("cleaning up orphaned blob after metadata write failure", "storage_key", storageKey, "error", delErr)
		}
		return nil, fmt.Errorf("recording metadata for item %s: %w: %w", key, uc.ErrIOFailure, err)
	}
	c.mu.Unlock()

	if !oldStorageKey.IsEmpty() && oldStorageKey != storageKey {
		if err := c.store.Delete(ctx, string(oldStorageKey)); err != nil {
			c.logger.Warn("deleting superseded blob", "storage_key", oldStorageKey, "error", err)
		}
	}

	if c.metrics != nil {
		c.metrics.misses.Add(ctx, 1)
	}
	return item, nil
}

// PruneCache delegates to the pruning engine (§4.2) under the
// coordinator's effective configuration.
func (c *Coordinator) PruneCache(ctx context.Context, opts prune.Options) (*prune.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pruner.Prune(ctx, c.config, opts)
}

// Forget deletes key's blob, if resident, and removes its metadata record
// entirely.
func (c *Coordinator) Forget(ctx context.Context, key uc.ItemKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, err := c.meta.Get(ctx, key)
	if err != nil {
		if errors.Is(err, uc.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("looking up item %s: %w", key, err)
	}

	if item.IsResident() {
		if err := c.store.Delete(ctx, string(item.StorageKey)); err != nil {
			return fmt.Errorf("deleting blob for item %s: %w: %w", key, uc.ErrIOFailure, err)
		}
	}

	if err := c.meta.Delete(ctx, key); err != nil {
		return fmt.Errorf("deleting metadata for item %s: %w: %w", key, uc.ErrIOFailure, err)
	}
	return nil
}

// Stats returns a snapshot of the resident set's size.
func (c *Coordinator) Stats(ctx context.Context) (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	resident, err := c.meta.IterResident(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("listing resident items: %w", err)
	}

	stats := Stats{ResidentCount: len(resident)}
	for _, item := range resident {
		stats.ResidentBytes += item.SizeBytes
	}
	return stats, nil
}

// readBlob reads and deserializes the blob at storageKey, classifying
// failures as uc.ErrNotFound or uc.ErrCorruptBlob so the caller can decide
// whether to demote and retry.
func (c *Coordinator) readBlob(ctx context.Context, producer uc.ItemProducer, storageKey uc.StorageKey) (any, error) {
	rc, err := c.store.Read(ctx, string(storageKey))
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return nil, uc.ErrNotFound
		}
		return nil, fmt.Errorf("reading blob %s: %w: %w", storageKey, uc.ErrIOFailure, err)
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading blob %s: %w: %w", storageKey, uc.ErrIOFailure, err)
	}

	obj, err := producer.Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("deserializing blob %s: %w: %w", storageKey, uc.ErrCorruptBlob, err)
	}
	return obj, nil
}

// demote marks item non-resident, optionally deleting its (corrupt) blob
// first so a subsequent recompute can reuse a deterministically derived
// storage key without colliding with it.
func (c *Coordinator) demote(ctx context.Context, item *uc.CacheItem, deleteBlob bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if deleteBlob && !item.StorageKey.IsEmpty() {
		if err := c.store.Delete(ctx, string(item.StorageKey)); err != nil {
			c.logger.Warn("deleting corrupt blob", "storage_key", item.StorageKey, "error", err)
		}
	}
	return c.meta.MarkNonResident(ctx, item.ItemKey)
}

// computeAndStore runs producer.Compute with the coordinator's lock
// released, then serializes, writes, and records the result.
func (c *Coordinator) computeAndStore(ctx context.Context, producer uc.ItemProducer, key uc.ItemKey, existing *uc.CacheItem) (any, error) {
	start := c.now()
	obj, err := producer.Compute(ctx)
	cost := c.now().Sub(start)
	if c.metrics != nil {
		c.metrics.computeDur.Record(ctx, cost.Seconds())
	}
	if err != nil {
		if c.metrics != nil {
			c.metrics.computeErrors.Add(ctx, 1)
		}
		return nil, fmt.Errorf("computing item %s: %w: %w", key, uc.ErrProducerFailed, err)
	}

	data, err := producer.Serialize(obj)
	if err != nil {
		if c.metrics != nil {
			c.metrics.computeErrors.Add(ctx, 1)
		}
		return nil, fmt.Errorf("serializing item %s: %w: %w", key, uc.ErrProducerFailed, err)
	}

	storageKey := producer.ProposeStorageKey()
	if storageKey.IsEmpty() {
		storageKey = c.keyGen.Derive(key)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	size, err := c.store.Write(ctx, string(storageKey), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("writing blob %s: %w: %w", storageKey, uc.ErrIOFailure, err)
	}

	now := c.now()
	item := applyComputeResult(existing, key, storageKey, size, cost, now, producer.Description(), producer.Weight())

	if err := c.meta.Upsert(ctx, item); err != nil {
		if delErr := c.store.Delete(ctx, string(storageKey)); delErr != nil {
			c.logger.Warn("cleaning up orphaned blob after metadata write failure", "storage_key", storageKey, "error", delErr)
		}
		return nil, fmt.Errorf("recording metadata for item %s: %w: %w", key, uc.ErrIOFailure, err)
	}

	if c.metrics != nil {
		c.metrics.misses.Add(ctx, 1)
	}
	return obj, nil
}

// applyComputeResult folds a fresh compute result into existing (which may
// be nil for a never-seen item), preserving created_at across a recompute
// (§9 open question: add_item_unconditionally preserves created_at). The
// pretty description is kept unless the producer supplies a non-empty one,
// which replaces it. weight is always taken from the current call's
// producer, matching original_source's abstract_cache_manager.py, which
// rebinds weight to the new item's value on every recompute rather than
// preserving the previously stored one.
func applyComputeResult(existing *uc.CacheItem, key uc.ItemKey, storageKey uc.StorageKey, size int64, cost time.Duration, now time.Time, description string, weight float64) *uc.CacheItem {
	if existing == nil {
		return uc.NewCacheItem(key, storageKey, size, cost, now, description, weight)
	}

	existing.StorageKey = storageKey
	existing.SizeBytes = size
	existing.ComputeCost = cost
	existing.Weight = weight
	existing.LastUtility = nil
	if description != "" {
		existing.PrettyDescription = description
	}
	existing.AppendAccess(now)
	return existing
}
