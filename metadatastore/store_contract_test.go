package metadatastore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	uc "github.com/adamryczkowski/utilitycache"
)

// testMetaDBContract exercises the MetaDB interface against any backend,
// so BoltDB and Mock are held to the same behavior.
func testMetaDBContract(t *testing.T, newDB func(t *testing.T) MetaDB) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetMissingReturnsNotFound", func(t *testing.T) {
		db := newDB(t)
		key := uc.HashBytes([]byte("missing"))
		_, err := db.Get(ctx, key)
		assert.ErrorIs(t, err, uc.ErrNotFound)
	})

	t.Run("UpsertThenGetRoundTrips", func(t *testing.T) {
		db := newDB(t)
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		item := uc.NewCacheItem(uc.HashBytes([]byte("a")), "items/a", 128, 2*time.Second, now, "item a", 1.0)

		require.NoError(t, db.Upsert(ctx, item))

		got, err := db.Get(ctx, item.ItemKey)
		require.NoError(t, err)
		assert.Equal(t, item.ItemKey, got.ItemKey)
		assert.Equal(t, item.StorageKey, got.StorageKey)
		assert.Equal(t, item.SizeBytes, got.SizeBytes)
		assert.True(t, got.IsResident())
	})

	t.Run("UpsertRejectsDuplicateStorageKey", func(t *testing.T) {
		db := newDB(t)
		now := time.Now()
		a := uc.NewCacheItem(uc.HashBytes([]byte("a")), "shared", 10, time.Second, now, "a", 1.0)
		b := uc.NewCacheItem(uc.HashBytes([]byte("b")), "shared", 10, time.Second, now, "b", 1.0)

		require.NoError(t, db.Upsert(ctx, a))
		err := db.Upsert(ctx, b)
		assert.ErrorIs(t, err, uc.ErrInvariantViolation)
	})

	t.Run("MarkNonResidentClearsStorageKey", func(t *testing.T) {
		db := newDB(t)
		now := time.Now()
		item := uc.NewCacheItem(uc.HashBytes([]byte("a")), "items/a", 128, time.Second, now, "a", 1.0)
		require.NoError(t, db.Upsert(ctx, item))

		require.NoError(t, db.MarkNonResident(ctx, item.ItemKey))

		got, err := db.Get(ctx, item.ItemKey)
		require.NoError(t, err)
		assert.False(t, got.IsResident())
		assert.Equal(t, int64(0), got.SizeBytes)
	})

	t.Run("MarkNonResidentFreesStorageKeyForReuse", func(t *testing.T) {
		db := newDB(t)
		now := time.Now()
		a := uc.NewCacheItem(uc.HashBytes([]byte("a")), "shared", 10, time.Second, now, "a", 1.0)
		require.NoError(t, db.Upsert(ctx, a))
		require.NoError(t, db.MarkNonResident(ctx, a.ItemKey))

		b := uc.NewCacheItem(uc.HashBytes([]byte("b")), "shared", 10, time.Second, now, "b", 1.0)
		assert.NoError(t, db.Upsert(ctx, b))
	})

	t.Run("IterResidentExcludesNonResident", func(t *testing.T) {
		db := newDB(t)
		now := time.Now()
		resident := uc.NewCacheItem(uc.HashBytes([]byte("r")), "items/r", 10, time.Second, now, "r", 1.0)
		evicted := uc.NewCacheItem(uc.HashBytes([]byte("e")), "items/e", 10, time.Second, now, "e", 1.0)
		require.NoError(t, db.Upsert(ctx, resident))
		require.NoError(t, db.Upsert(ctx, evicted))
		require.NoError(t, db.MarkNonResident(ctx, evicted.ItemKey))

		items, err := db.IterResident(ctx)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, resident.ItemKey, items[0].ItemKey)
	})

	t.Run("AppendAccessGrowsLog", func(t *testing.T) {
		db := newDB(t)
		now := time.Now()
		item := uc.NewCacheItem(uc.HashBytes([]byte("a")), "items/a", 10, time.Second, now, "a", 1.0)
		require.NoError(t, db.Upsert(ctx, item))

		require.NoError(t, db.AppendAccess(ctx, item.ItemKey, now.Add(time.Minute)))
		require.NoError(t, db.AppendAccess(ctx, item.ItemKey, now.Add(2*time.Minute)))

		// NewCacheItem seeds one access at creation, plus the two appended.
		got, err := db.Get(ctx, item.ItemKey)
		require.NoError(t, err)
		assert.Len(t, got.AccessLog, 3)
	})

	t.Run("AppendAccessMissingReturnsNotFound", func(t *testing.T) {
		db := newDB(t)
		err := db.AppendAccess(ctx, uc.HashBytes([]byte("missing")), time.Now())
		assert.ErrorIs(t, err, uc.ErrNotFound)
	})

	t.Run("ClearAccessLogsEmptiesAllItems", func(t *testing.T) {
		db := newDB(t)
		now := time.Now()
		item := uc.NewCacheItem(uc.HashBytes([]byte("a")), "items/a", 10, time.Second, now, "a", 1.0)
		require.NoError(t, db.Upsert(ctx, item))
		require.NoError(t, db.AppendAccess(ctx, item.ItemKey, now.Add(time.Minute)))

		require.NoError(t, db.ClearAccessLogs(ctx))

		got, err := db.Get(ctx, item.ItemKey)
		require.NoError(t, err)
		assert.Empty(t, got.AccessLog)
		assert.Nil(t, got.LastUtility)
	})

	t.Run("DeleteRemovesRecordAndFreesStorageKey", func(t *testing.T) {
		db := newDB(t)
		now := time.Now()
		item := uc.NewCacheItem(uc.HashBytes([]byte("a")), "shared", 10, time.Second, now, "a", 1.0)
		require.NoError(t, db.Upsert(ctx, item))

		require.NoError(t, db.Delete(ctx, item.ItemKey))

		_, err := db.Get(ctx, item.ItemKey)
		assert.ErrorIs(t, err, uc.ErrNotFound)

		other := uc.NewCacheItem(uc.HashBytes([]byte("b")), "shared", 10, time.Second, now, "b", 1.0)
		assert.NoError(t, db.Upsert(ctx, other))
	})

	t.Run("DeleteMissingIsNoop", func(t *testing.T) {
		db := newDB(t)
		assert.NoError(t, db.Delete(ctx, uc.HashBytes([]byte("missing"))))
	})

	t.Run("ConfigDefaultsWhenUnset", func(t *testing.T) {
		db := newDB(t)
		cfg, err := db.LoadConfig(ctx)
		require.NoError(t, err)
		assert.Equal(t, uc.DefaultCacheConfig(), cfg)
	})

	t.Run("ConfigRoundTrips", func(t *testing.T) {
		db := newDB(t)
		cfg := uc.CacheConfig{
			ReservedFreeSpace:                  1024,
			CostOfMinuteComputeRelToCostOf1GB:  45,
			HalfLifeOfAccesses:                 7 * 24 * time.Hour,
			MinUtilityToKeep:                   0.5,
		}
		require.NoError(t, db.StoreConfig(ctx, cfg))

		got, err := db.LoadConfig(ctx)
		require.NoError(t, err)
		assert.Equal(t, cfg, got)
	})
}
