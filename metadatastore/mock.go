package metadatastore

import (
	"context"
	"sync"
	"time"

	uc "github.com/adamryczkowski/utilitycache"
)

// Mock is an in-memory MetaDB for tests, per the design note in §9
// recommending a mock store interchangeable with the bbolt-backed one.
type Mock struct {
	mu     sync.Mutex
	items  map[uc.ItemKey]*uc.CacheItem
	index  map[uc.StorageKey]uc.ItemKey
	config *uc.CacheConfig
}

// NewMock creates an empty in-memory metadata store.
func NewMock() *Mock {
	return &Mock{
		items: make(map[uc.ItemKey]*uc.CacheItem),
		index: make(map[uc.StorageKey]uc.ItemKey),
	}
}

func cloneItem(item *uc.CacheItem) *uc.CacheItem {
	c := *item
	c.AccessLog = append([]time.Time(nil), item.AccessLog...)
	if item.LastUtility != nil {
		v := *item.LastUtility
		c.LastUtility = &v
	}
	return &c
}

func (m *Mock) Get(_ context.Context, key uc.ItemKey) (*uc.CacheItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[key]
	if !ok {
		return nil, uc.ErrNotFound
	}
	return cloneItem(item), nil
}

func (m *Mock) Upsert(_ context.Context, item *uc.CacheItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.items[item.ItemKey]; ok {
		if !existing.StorageKey.IsEmpty() && existing.StorageKey != item.StorageKey {
			delete(m.index, existing.StorageKey)
		}
	}

	if !item.StorageKey.IsEmpty() {
		if owner, ok := m.index[item.StorageKey]; ok && owner != item.ItemKey {
			return uc.ErrInvariantViolation
		}
		m.index[item.StorageKey] = item.ItemKey
	}

	m.items[item.ItemKey] = cloneItem(item)
	return nil
}

func (m *Mock) MarkNonResident(_ context.Context, key uc.ItemKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[key]
	if !ok {
		return uc.ErrNotFound
	}
	if !item.StorageKey.IsEmpty() {
		delete(m.index, item.StorageKey)
	}
	item.MarkNonResident()
	return nil
}

func (m *Mock) IterResident(_ context.Context) ([]*uc.CacheItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*uc.CacheItem
	for _, item := range m.items {
		if item.IsResident() {
			out = append(out, cloneItem(item))
		}
	}
	return out, nil
}

func (m *Mock) AppendAccess(_ context.Context, key uc.ItemKey, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[key]
	if !ok {
		return uc.ErrNotFound
	}
	item.AppendAccess(at)
	return nil
}

func (m *Mock) ClearAccessLogs(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.items {
		item.ClearAccessLog()
	}
	return nil
}

func (m *Mock) Delete(_ context.Context, key uc.ItemKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[key]
	if ok && !item.StorageKey.IsEmpty() {
		delete(m.index, item.StorageKey)
	}
	delete(m.items, key)
	return nil
}

func (m *Mock) LoadConfig(_ context.Context) (uc.CacheConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config == nil {
		return uc.DefaultCacheConfig(), nil
	}
	return *m.config, nil
}

func (m *Mock) StoreConfig(_ context.Context, cfg uc.CacheConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = &cfg
	return nil
}

func (m *Mock) Close() error {
	return nil
}

var _ MetaDB = (*Mock)(nil)
