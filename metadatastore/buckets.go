package metadatastore

// Bucket names for bbolt storage: one flat bucket per concern rather than
// nested buckets.
var (
	// bucketItems maps item_key bytes -> JSON-encoded CacheItem.
	bucketItems = []byte("items")

	// bucketResidentIndex maps storage_key string -> item_key bytes, used
	// to enforce the unique-storage_key invariant.
	bucketResidentIndex = []byte("resident_by_storage_key")

	// bucketConfig holds a single entry under configKey.
	bucketConfig = []byte("config")
)

// configKey is the single key under which CacheConfig is stored.
var configKey = []byte("config")
