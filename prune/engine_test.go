package prune

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	uc "github.com/adamryczkowski/utilitycache"
	"github.com/adamryczkowski/utilitycache/metadatastore"
	"github.com/adamryczkowski/utilitycache/objectstore"
)

// spaceTrackingStore wraps a real Store but reports a controllable free
// space counter that grows by a per-key amount whenever that key is
// deleted, so space-driven eviction scenarios are deterministic without
// depending on the test machine's actual free disk space.
type spaceTrackingStore struct {
	objectstore.Store
	free      int64
	sizeByKey map[string]int64
}

func (s *spaceTrackingStore) FreeSpace(ctx context.Context) (int64, error) {
	return s.free, nil
}

func (s *spaceTrackingStore) Delete(ctx context.Context, key string) error {
	if err := s.Store.Delete(ctx, key); err != nil {
		return err
	}
	s.free += s.sizeByKey[key]
	return nil
}

func newTestStores(t *testing.T) (metadatastore.MetaDB, objectstore.Store) {
	t.Helper()
	meta := metadatastore.NewMock()
	fs, err := objectstore.NewFilesystem(filepath.Join(t.TempDir(), "objects"))
	require.NoError(t, err)
	return meta, fs
}

func putItem(ctx context.Context, t *testing.T, meta metadatastore.MetaDB, store objectstore.Store, key uc.ItemKey, storageKey uc.StorageKey, data []byte, createdAt time.Time) *uc.CacheItem {
	t.Helper()
	_, err := store.Write(ctx, string(storageKey), bytes.NewReader(data))
	require.NoError(t, err)
	item := uc.NewCacheItem(key, storageKey, int64(len(data)), time.Second, createdAt, "", 1.0)
	require.NoError(t, meta.Upsert(ctx, item))
	return item
}

func TestEngine_PruneBySpace(t *testing.T) {
	meta, fs := newTestStores(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	a := putItem(ctx, t, meta, fs, uc.HashBytes([]byte("a")), "a", make([]byte, 300), now)
	b := putItem(ctx, t, meta, fs, uc.HashBytes([]byte("b")), "b", make([]byte, 400), now)
	c := putItem(ctx, t, meta, fs, uc.HashBytes([]byte("c")), "c", make([]byte, 100), now)

	// Drive utility ordering a < c < b via access history, matching the
	// scenario's documented utility=0.1/0.5/0.9 ordering.
	require.NoError(t, meta.AppendAccess(ctx, a.ItemKey, now))
	for i := 0; i < 3; i++ {
		require.NoError(t, meta.AppendAccess(ctx, c.ItemKey, now))
	}
	for i := 0; i < 20; i++ {
		require.NoError(t, meta.AppendAccess(ctx, b.ItemKey, now))
	}

	store := &spaceTrackingStore{
		Store:     fs,
		free:      400,
		sizeByKey: map[string]int64{"a": 300, "b": 400, "c": 100},
	}

	engine := NewEngine(meta, store, WithNow(func() time.Time { return now }))

	cfg := uc.DefaultCacheConfig()
	cfg.ReservedFreeSpace = 1000

	result, err := engine.Prune(ctx, cfg, Options{})
	require.NoError(t, err)

	assert.Equal(t, []uc.ItemKey{a.ItemKey, c.ItemKey, b.ItemKey}, result.EvictedForSpace)
	assert.Equal(t, int64(1200), store.free)

	remaining, err := meta.IterResident(ctx)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestEngine_OrphanReap(t *testing.T) {
	meta, store := newTestStores(t)
	ctx := context.Background()

	_, err := store.Write(ctx, "orphan", bytes.NewReader([]byte("stray")))
	require.NoError(t, err)

	engine := NewEngine(meta, store)
	result, err := engine.Prune(ctx, uc.DefaultCacheConfig(), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"orphan"}, result.OrphansDeleted)
	exists, err := store.Exists(ctx, "orphan")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestEngine_RepairsMissingBlob(t *testing.T) {
	meta, store := newTestStores(t)
	ctx := context.Background()
	now := time.Now()

	item := putItem(ctx, t, meta, store, uc.HashBytes([]byte("a")), "a", []byte("data"), now)
	require.NoError(t, store.Delete(ctx, "a"))

	engine := NewEngine(meta, store)
	result, err := engine.Prune(ctx, uc.DefaultCacheConfig(), Options{})
	require.NoError(t, err)

	assert.Equal(t, []uc.ItemKey{item.ItemKey}, result.RepairedItems)

	got, err := meta.Get(ctx, item.ItemKey)
	require.NoError(t, err)
	assert.False(t, got.IsResident())
}

func TestEngine_RepairsSizeMismatch(t *testing.T) {
	meta, store := newTestStores(t)
	ctx := context.Background()
	now := time.Now()

	item := uc.NewCacheItem(uc.HashBytes([]byte("a")), "a", 4, time.Second, now, "", 1.0)
	_, err := store.Write(ctx, "a", bytes.NewReader([]byte("a longer payload")))
	require.NoError(t, err)
	require.NoError(t, meta.Upsert(ctx, item))

	engine := NewEngine(meta, store)
	result, err := engine.Prune(ctx, uc.DefaultCacheConfig(), Options{})
	require.NoError(t, err)

	assert.Equal(t, []uc.ItemKey{item.ItemKey}, result.RepairedItems)
	got, err := meta.Get(ctx, item.ItemKey)
	require.NoError(t, err)
	assert.Equal(t, int64(len("a longer payload")), got.SizeBytes)
}

func TestLessUtility_TieBreakPrefersLargerSizeFirst(t *testing.T) {
	now := time.Now()
	small := uc.NewCacheItem(uc.HashBytes([]byte("small")), "small", 100, time.Second, now, "", 1.0)
	large := uc.NewCacheItem(uc.HashBytes([]byte("large")), "large", 200, time.Second, now, "", 1.0)

	assert.True(t, uc.LessUtility(large, small, 0, 0), "larger item sorts first (is evicted first) at equal utility")
}

func TestEngine_HistoryClearing(t *testing.T) {
	meta, store := newTestStores(t)
	ctx := context.Background()
	now := time.Now()

	item := putItem(ctx, t, meta, store, uc.HashBytes([]byte("a")), "a", []byte("data"), now)
	for i := 0; i < 10; i++ {
		require.NoError(t, meta.AppendAccess(ctx, item.ItemKey, now.Add(time.Duration(i)*time.Minute)))
	}

	engine := NewEngine(meta, store)
	_, err := engine.Prune(ctx, uc.DefaultCacheConfig(), Options{RemoveHistory: true})
	require.NoError(t, err)

	got, err := meta.Get(ctx, item.ItemKey)
	require.NoError(t, err)
	assert.Empty(t, got.AccessLog)
	assert.Nil(t, got.LastUtility)
}

func TestEngine_EmptyCacheIsNoop(t *testing.T) {
	meta, store := newTestStores(t)
	engine := NewEngine(meta, store)

	result, err := engine.Prune(context.Background(), uc.DefaultCacheConfig(), Options{})
	require.NoError(t, err)
	assert.Empty(t, result.RepairedItems)
	assert.Empty(t, result.OrphansDeleted)
	assert.Empty(t, result.EvictedUnconditional)
	assert.Empty(t, result.EvictedForSpace)
}
