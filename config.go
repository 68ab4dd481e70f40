package utilitycache

import (
	"fmt"
	"time"
)

// CacheConfig configures the utility model and pruning engine (§6.5).
type CacheConfig struct {
	// ReservedFreeSpace is the minimum free bytes the object store's
	// backing volume must retain after a prune. Default 0.
	ReservedFreeSpace int64

	// CostOfMinuteComputeRelToCostOf1GB is the exchange rate between one
	// minute of compute time and one gigabyte of storage-seconds. Drives
	// the utility model's storage opportunity cost term. Default 60.
	CostOfMinuteComputeRelToCostOf1GB float64

	// HalfLifeOfAccesses is the time over which past-access evidence
	// decays in the access-rate estimator. Default 30 days.
	HalfLifeOfAccesses time.Duration

	// MinUtilityToKeep is the threshold below which items are
	// unconditionally evicted during prune. Default 0.
	MinUtilityToKeep float64
}

// DefaultCacheConfig returns the configuration defaults from spec §6.5.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		ReservedFreeSpace:                 0,
		CostOfMinuteComputeRelToCostOf1GB: 60,
		HalfLifeOfAccesses:                30 * 24 * time.Hour,
		MinUtilityToKeep:                  0,
	}
}

// Validate reports a ConfigError-wrapped error if any option is out of
// range.
func (c CacheConfig) Validate() error {
	if c.ReservedFreeSpace < 0 {
		return fmt.Errorf("reserved_free_space must be non-negative, got %d: %w", c.ReservedFreeSpace, ErrConfigError)
	}
	if c.CostOfMinuteComputeRelToCostOf1GB <= 0 {
		return fmt.Errorf("cost_of_minute_compute_rel_to_cost_of_1GB must be positive, got %f: %w", c.CostOfMinuteComputeRelToCostOf1GB, ErrConfigError)
	}
	if c.HalfLifeOfAccesses <= 0 {
		return fmt.Errorf("half_life_of_accesses must be positive, got %s: %w", c.HalfLifeOfAccesses, ErrConfigError)
	}
	return nil
}
