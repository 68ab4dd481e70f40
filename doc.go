// Package utilitycache is a persistent object cache for results of
// expensive, pure computations.
//
// A caller supplies an ItemProducer bundling an ItemKey, a compute thunk,
// and a serialization codec. The cache.Coordinator either returns a
// previously stored result or invokes the producer to compute, serialize,
// and store one. Per-item metadata — size, compute cost, access history —
// is tracked so that a pruning engine can later decide which items still
// earn their keep on disk.
//
// The package itself holds only the domain types (ItemKey, StorageKey,
// CacheItem, CacheConfig), the error taxonomy, the ItemProducer contract,
// and the utility model that scores an item's worth of retention. The
// object store, metadata store, pruning engine, and coordinator live in
// the objectstore, metadatastore, prune, and cache subpackages
// respectively, each built against the interfaces defined here.
package utilitycache
