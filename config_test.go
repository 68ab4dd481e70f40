package utilitycache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCacheConfig_IsValid(t *testing.T) {
	require.NoError(t, DefaultCacheConfig().Validate())
}

func TestCacheConfig_Validate_NegativeReservedSpace(t *testing.T) {
	cfg := DefaultCacheConfig()
	cfg.ReservedFreeSpace = -1
	err := cfg.Validate()
	assert.ErrorIs(t, err, ErrConfigError)
}

func TestCacheConfig_Validate_NonPositiveExchangeRate(t *testing.T) {
	cfg := DefaultCacheConfig()
	cfg.CostOfMinuteComputeRelToCostOf1GB = 0
	assert.ErrorIs(t, cfg.Validate(), ErrConfigError)
}

func TestCacheConfig_Validate_NonPositiveHalfLife(t *testing.T) {
	cfg := DefaultCacheConfig()
	cfg.HalfLifeOfAccesses = -time.Second
	assert.ErrorIs(t, cfg.Validate(), ErrConfigError)
}
