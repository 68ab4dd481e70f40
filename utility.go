package utilitycache

import (
	"math"
	"time"
)

// bytesPerGB is the number of bytes in a gigabyte for the storage-cost
// exchange rate calculation.
const bytesPerGB = 1 << 30

// secondsPerMinute converts the minutes-of-compute side of the exchange
// rate to seconds.
const secondsPerMinute = 60

// decayWindowHalfLives bounds the access-rate estimator's observation
// window to N half-lives back from now (§4.1 fixes N at 5).
const decayWindowHalfLives = 5

// Utility computes the expected future savings (compute cost avoided) minus
// the storage opportunity cost of retaining item, per spec §4.1. Pure and
// deterministic given its inputs.
func Utility(item *CacheItem, cfg CacheConfig, now time.Time) float64 {
	storageCost := storageCostPerSecond(item.SizeBytes, cfg)
	rate := AccessRateEstimate(item.AccessLog, item.CreatedAt, cfg.HalfLifeOfAccesses, now)
	expectedSavings := rate * item.ComputeCost.Seconds() * effectiveWeight(item.Weight)
	return expectedSavings - storageCost
}

// effectiveWeight normalizes a CacheItem's retention multiplier: zero or
// negative (the Go zero value, or an unset producer-supplied weight) means
// no adjustment.
func effectiveWeight(weight float64) float64 {
	if weight <= 0 {
		return 1.0
	}
	return weight
}

// storageCostPerSecond converts size_bytes into compute-seconds-per-second
// of storage opportunity cost, using the configured exchange rate between
// one minute of compute and one gigabyte of storage.
func storageCostPerSecond(sizeBytes int64, cfg CacheConfig) float64 {
	gb := float64(sizeBytes) / bytesPerGB
	return gb / cfg.CostOfMinuteComputeRelToCostOf1GB / secondsPerMinute
}

// AccessRateEstimate derives weighted accesses per second from an access
// log by exponential decay with the given half-life. An access at time t
// observed at now carries weight 2^(-(now-t)/halfLife). An item with an
// empty log uses a prior of exactly one access at createdAt (§4.1 edge
// case).
func AccessRateEstimate(log []time.Time, createdAt time.Time, halfLife time.Duration, now time.Time) float64 {
	if halfLife <= 0 {
		halfLife = DefaultCacheConfig().HalfLifeOfAccesses
	}

	effectiveLog := log
	if len(effectiveLog) == 0 {
		effectiveLog = []time.Time{createdAt}
	}

	windowStart := now.Add(-decayWindowHalfLives * halfLife)
	if createdAt.After(windowStart) {
		windowStart = createdAt
	}
	windowSeconds := now.Sub(windowStart).Seconds()
	if windowSeconds <= 0 {
		windowSeconds = 1
	}

	var weighted float64
	for _, t := range effectiveLog {
		if t.Before(windowStart) {
			continue
		}
		age := now.Sub(t).Seconds()
		halfLives := age / halfLife.Seconds()
		weighted += math.Exp2(-halfLives)
	}

	return weighted / windowSeconds
}

// LessUtility reports whether item a should be evicted before item b under
// the pruning engine's ascending-utility order, applying the §4.1
// tie-break: larger size_bytes first, then older created_at first, then
// lexicographic item_key.
func LessUtility(a, b *CacheItem, utilA, utilB float64) bool {
	if utilA != utilB {
		return utilA < utilB
	}
	if a.SizeBytes != b.SizeBytes {
		return a.SizeBytes > b.SizeBytes
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ItemKey.String() < b.ItemKey.String()
}
