package utilitycache

import "time"

// MaxAccessLogEntries bounds how many access timestamps a CacheItem retains.
// Past this, the oldest entries are dropped on append; the decay window
// used by the utility model's access-rate estimator makes entries older
// than a handful of half-lives negligible anyway.
const MaxAccessLogEntries = 256

// CacheItem is the metadata record for a key the cache has ever observed,
// present or evicted.
type CacheItem struct {
	// ItemKey is the primary identity of this item.
	ItemKey ItemKey

	// StorageKey identifies the resident blob. The zero value means the
	// item is not currently resident.
	StorageKey StorageKey

	// SizeBytes is the size of the resident blob. Zero iff not resident.
	SizeBytes int64

	// ComputeCost is the measured wall-clock duration of the last
	// successful computation.
	ComputeCost time.Duration

	// CreatedAt is the timestamp of the item's first successful
	// computation. It is preserved across prune/recompute cycles and
	// across AddItemUnconditionally refreshes (see DESIGN.md Open
	// Questions).
	CreatedAt time.Time

	// AccessLog is an ordered, monotonically non-decreasing sequence of
	// access timestamps.
	AccessLog []time.Time

	// LastUtility caches the most recently computed utility score. It is
	// invalidated (set to nil) on any state change and recomputed lazily.
	LastUtility *float64

	// PrettyDescription is a short human label, producer-provided or
	// derived from the item key.
	PrettyDescription string

	// Weight is a per-item cost multiplier applied to expected savings in
	// the utility calculation, letting a producer retain a specific
	// computation for longer or shorter than its raw compute-cost-vs-size
	// tradeoff alone would imply. Zero or negative means the default of
	// 1.0 (no adjustment); see Utility.
	Weight float64
}

// IsResident reports whether the item currently has a blob on disk.
func (c *CacheItem) IsResident() bool {
	return !c.StorageKey.IsEmpty()
}

// AppendAccess appends a timestamp to the access log, enforcing
// monotonicity (timestamps before the last recorded one are clamped to it)
// and the MaxAccessLogEntries cap. It invalidates LastUtility.
func (c *CacheItem) AppendAccess(t time.Time) {
	if n := len(c.AccessLog); n > 0 && t.Before(c.AccessLog[n-1]) {
		t = c.AccessLog[n-1]
	}
	c.AccessLog = append(c.AccessLog, t)
	if len(c.AccessLog) > MaxAccessLogEntries {
		c.AccessLog = c.AccessLog[len(c.AccessLog)-MaxAccessLogEntries:]
	}
	c.LastUtility = nil
}

// ClearAccessLog empties the access log and invalidates LastUtility, used
// by prune's history-compaction phase when remove_history is requested.
func (c *CacheItem) ClearAccessLog() {
	c.AccessLog = nil
	c.LastUtility = nil
}

// MarkNonResident clears the item's residency fields (storage_key absent,
// size zeroed), used when a blob is evicted or found missing.
func (c *CacheItem) MarkNonResident() {
	c.StorageKey = ""
	c.SizeBytes = 0
	c.LastUtility = nil
}

// NewCacheItem constructs a freshly-computed, resident CacheItem. weight is
// the producer-supplied retention multiplier (see CacheItem.Weight); zero or
// negative is stored as-is and treated as the 1.0 default by Utility.
func NewCacheItem(key ItemKey, storageKey StorageKey, size int64, cost time.Duration, now time.Time, description string, weight float64) *CacheItem {
	if description == "" {
		description = key.ShortString()
	}
	return &CacheItem{
		ItemKey:           key,
		StorageKey:        storageKey,
		SizeBytes:         size,
		ComputeCost:       cost,
		CreatedAt:         now,
		AccessLog:         []time.Time{now},
		PrettyDescription: description,
		Weight:            weight,
	}
}
