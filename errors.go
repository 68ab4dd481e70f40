package utilitycache

import "errors"

// Error taxonomy (§7). Callers should use errors.Is against these sentinels;
// concrete errors returned by stores and the coordinator wrap one of them
// with fmt.Errorf("...: %w", ...).
var (
	// ErrNotFound means the item key was never seen, or its resident
	// blob is missing after repair.
	ErrNotFound = errors.New("utilitycache: not found")

	// ErrIOFailure means an underlying store read/write failed.
	ErrIOFailure = errors.New("utilitycache: io failure")

	// ErrCorruptBlob means deserialize refused to reconstruct an object
	// from a resident blob. The coordinator retries compute once before
	// surfacing ErrProducerFailed.
	ErrCorruptBlob = errors.New("utilitycache: corrupt blob")

	// ErrProducerFailed means a producer's compute or serialize step
	// raised an error; no metadata mutation occurred.
	ErrProducerFailed = errors.New("utilitycache: producer failed")

	// ErrInvariantViolation means the metadata store and object store
	// disagree in a way prune could not repair. Fatal for the affected
	// item, non-fatal for the prune run as a whole.
	ErrInvariantViolation = errors.New("utilitycache: invariant violation")

	// ErrConfigError means a CacheConfig value is out of range.
	ErrConfigError = errors.New("utilitycache: invalid configuration")
)
