package utilitycache

import "context"

// ItemProducer bundles the identity, computation, and codec for one
// cacheable computation (§6.3). A single value is passed by the caller into
// Coordinator.GetObject; the coordinator never sees a raw object without
// knowing how to persist it.
type ItemProducer interface {
	// ItemKey returns the content-addressed key identifying this
	// computation's result.
	ItemKey() ItemKey

	// Compute performs the (potentially expensive) computation and
	// returns its result. Called on a cache miss.
	Compute(ctx context.Context) (any, error)

	// Serialize encodes a computed object to bytes suitable for storage.
	Serialize(obj any) ([]byte, error)

	// Deserialize decodes bytes previously produced by Serialize back
	// into an object. Must return a non-nil error (classified by the
	// caller as CorruptBlob) if the bytes cannot be reconstructed.
	Deserialize(data []byte) (any, error)

	// ProposeStorageKey optionally proposes a StorageKey for the
	// computed object. Returning the zero value defers to the
	// coordinator's StorageKeyGenerator.
	ProposeStorageKey() StorageKey

	// Description returns a short human label for the item, or an empty
	// string to defer to the item key's default rendering.
	Description() string

	// Weight returns a per-item cost multiplier applied to expected
	// savings in the utility calculation, letting this computation be
	// retained for longer or shorter than its raw compute-cost-vs-size
	// tradeoff alone would imply. Returning zero or a negative value
	// defers to the default of 1.0 (no adjustment).
	Weight() float64
}
