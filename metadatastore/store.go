// Package metadatastore provides the durable record of every item the
// cache has ever seen (§6.1), plus a bbolt reference implementation and
// an in-memory mock for tests.
package metadatastore

import (
	"context"
	"time"

	uc "github.com/adamryczkowski/utilitycache"
)

// MetaDB is the metadata store interface consumed by the cache coordinator
// and pruning engine. Implementations must be safe for concurrent use and
// fail with a recoverable error (typically wrapping uc.ErrIOFailure) on
// I/O trouble; a missing item_key is reported via uc.ErrNotFound.
type MetaDB interface {
	// Get returns the CacheItem for key, or uc.ErrNotFound if never seen.
	Get(ctx context.Context, key uc.ItemKey) (*uc.CacheItem, error)

	// Upsert atomically replaces the record for item.ItemKey.
	Upsert(ctx context.Context, item *uc.CacheItem) error

	// MarkNonResident clears storage_key and zeroes size_bytes for key.
	MarkNonResident(ctx context.Context, key uc.ItemKey) error

	// IterResident returns a consistent snapshot of every resident item.
	IterResident(ctx context.Context) ([]*uc.CacheItem, error)

	// AppendAccess appends an access timestamp to key's access log.
	AppendAccess(ctx context.Context, key uc.ItemKey, at time.Time) error

	// ClearAccessLogs empties the access log of every item, resident or
	// not, and invalidates each item's cached utility.
	ClearAccessLogs(ctx context.Context) error

	// Delete removes the metadata record for key entirely.
	Delete(ctx context.Context, key uc.ItemKey) error

	// LoadConfig returns the persisted configuration, or
	// uc.DefaultCacheConfig() if none has been stored yet.
	LoadConfig(ctx context.Context) (uc.CacheConfig, error)

	// StoreConfig persists cfg.
	StoreConfig(ctx context.Context, cfg uc.CacheConfig) error

	// Close releases resources held by the store.
	Close() error
}
