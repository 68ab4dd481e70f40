package utilitycache

import (
	"fmt"
	"strings"
)

// StorageKey is an opaque handle understood by the object store. It maps
// one-to-one with a resident blob.
type StorageKey string

// String returns the storage key as a plain string.
func (k StorageKey) String() string {
	return string(k)
}

// IsEmpty reports whether the key is the zero value, meaning "not
// currently resident" on a CacheItem.
func (k StorageKey) IsEmpty() bool {
	return k == ""
}

// StorageKeyGenerator derives a StorageKey from an ItemKey when a producer
// does not propose one itself (§6.4). Implementations must be deterministic
// and collision-resistant, and should be bijective with ItemKey so that a
// storage key can be mapped back to the item it belongs to (see
// ParseStorageKey).
type StorageKeyGenerator interface {
	Derive(key ItemKey) StorageKey
}

// PrefixedKeyGenerator is the reference StorageKeyGenerator: it concatenates
// a configurable directory prefix, the hex digest of the item key, and an
// extension, sharding by the first two hex characters the same way the
// teacher's blob store shards by hash prefix.
//
// Format: {Prefix}/{hex[:2]}/{hex}{Ext}
type PrefixedKeyGenerator struct {
	// Prefix is the leading path segment, e.g. "items". Defaults to
	// "items" if empty.
	Prefix string
	// Ext is appended to the hex digest, e.g. ".bin". May be empty.
	Ext string
}

// Derive implements StorageKeyGenerator.
func (g PrefixedKeyGenerator) Derive(key ItemKey) StorageKey {
	prefix := g.Prefix
	if prefix == "" {
		prefix = "items"
	}
	hex := key.String()
	return StorageKey(fmt.Sprintf("%s/%s/%s%s", prefix, hex[:2], hex, g.Ext))
}

// ParseStorageKey extracts the ItemKey encoded in a StorageKey produced by
// PrefixedKeyGenerator with the given prefix and extension, mapping a blob
// back to the item key it was derived from. The pruning engine's orphan
// sweep does not use it; it compares against resident items' storage keys.
func ParseStorageKey(k StorageKey, prefix, ext string) (ItemKey, error) {
	if prefix == "" {
		prefix = "items"
	}
	s := strings.TrimSuffix(string(k), ext)
	parts := strings.Split(s, "/")
	if len(parts) != 3 || parts[0] != prefix {
		return ItemKey{}, fmt.Errorf("invalid storage key format: %s", k)
	}
	return ParseItemKey(parts[2])
}
