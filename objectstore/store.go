// Package objectstore provides the content-indexed blob repository
// abstraction consumed by the cache coordinator and pruning engine (§6.2),
// plus a filesystem reference implementation and decorators.
package objectstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a storage key does not exist in the store.
var ErrNotFound = errors.New("objectstore: not found")

// Store is the object store interface (§6.2). Implementations must be safe
// for concurrent use; writes must be atomic and must refuse to silently
// overwrite an existing key (the coordinator relies on write failing loudly
// if it ever collides, since storage keys are meant to be unique per
// resident item).
type Store interface {
	// Write stores data at the given key atomically. Returns the number
	// of bytes written.
	Write(ctx context.Context, key string, r io.Reader) (int64, error)

	// Read retrieves data at the given key. Returns ErrNotFound if the
	// key does not exist. The caller must close the returned ReadCloser.
	Read(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes data at the given key. Idempotent: returns nil if
	// the key does not exist.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// Size returns the size in bytes of the data at the given key.
	// Returns ErrNotFound if the key does not exist.
	Size(ctx context.Context, key string) (int64, error)

	// Keys returns all storage keys currently present, used by the
	// pruning engine's orphan sweep. May be expensive for large stores.
	Keys(ctx context.Context) ([]string, error)

	// FreeSpace returns the bytes currently free on the store's backing
	// volume. Advisory: may change between reading and eviction (§5).
	FreeSpace(ctx context.Context) (int64, error)
}
