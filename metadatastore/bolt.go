package metadatastore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	uc "github.com/adamryczkowski/utilitycache"
)

// BoltDB implements MetaDB using bbolt: a functional-options constructor
// over a single set of buckets for item records, the resident index, and
// configuration.
type BoltDB struct {
	db     *bbolt.DB
	logger *slog.Logger
}

// BoltDBOption configures a BoltDB instance.
type BoltDBOption func(*BoltDB)

// WithLogger sets the logger used for diagnostic messages.
func WithLogger(logger *slog.Logger) BoltDBOption {
	return func(b *BoltDB) { b.logger = logger }
}

// NewBoltDB creates a BoltDB backed by the file at path.
func NewBoltDB(path string, opts ...BoltDBOption) (*BoltDB, error) {
	b := &BoltDB{logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating metadata database directory: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening metadata database: %w", err)
	}
	b.db = db

	if err := b.createBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	b.logger.Debug("opened metadatastore", "path", path)
	return b, nil
}

func (b *BoltDB) createBuckets() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketItems, bucketResidentIndex, bucketConfig} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// Close closes the underlying database.
func (b *BoltDB) Close() error {
	if b.db == nil {
		return nil
	}
	b.logger.Debug("closing metadatastore")
	return b.db.Close()
}

// DB returns the underlying bbolt database, for tooling that needs direct
// access (e.g. a CLI "inspect" subcommand).
func (b *BoltDB) DB() *bbolt.DB {
	return b.db
}

func (b *BoltDB) Get(_ context.Context, key uc.ItemKey) (*uc.CacheItem, error) {
	var item uc.CacheItem
	err := b.db.View(func(tx *bbolt.Tx) error {
		val := tx.Bucket(bucketItems).Get(key[:])
		if val == nil {
			return uc.ErrNotFound
		}
		return json.Unmarshal(val, &item)
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (b *BoltDB) Upsert(_ context.Context, item *uc.CacheItem) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		items := tx.Bucket(bucketItems)
		index := tx.Bucket(bucketResidentIndex)

		var existing uc.CacheItem
		if val := items.Get(item.ItemKey[:]); val != nil {
			if err := json.Unmarshal(val, &existing); err != nil {
				return fmt.Errorf("unmarshaling existing item: %w", err)
			}
			if !existing.StorageKey.IsEmpty() && existing.StorageKey != item.StorageKey {
				if err := index.Delete([]byte(existing.StorageKey)); err != nil {
					return fmt.Errorf("deleting stale resident index entry: %w", err)
				}
			}
		}

		if !item.StorageKey.IsEmpty() {
			if owner := index.Get([]byte(item.StorageKey)); owner != nil && uc.ItemKey(owner) != item.ItemKey {
				return fmt.Errorf("%w: storage_key %s already claimed by another item", uc.ErrInvariantViolation, item.StorageKey)
			}
			if err := index.Put([]byte(item.StorageKey), item.ItemKey[:]); err != nil {
				return fmt.Errorf("putting resident index entry: %w", err)
			}
		}

		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshaling item: %w", err)
		}
		return items.Put(item.ItemKey[:], data)
	})
}

func (b *BoltDB) MarkNonResident(_ context.Context, key uc.ItemKey) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		items := tx.Bucket(bucketItems)
		val := items.Get(key[:])
		if val == nil {
			return uc.ErrNotFound
		}
		var item uc.CacheItem
		if err := json.Unmarshal(val, &item); err != nil {
			return fmt.Errorf("unmarshaling item: %w", err)
		}

		if !item.StorageKey.IsEmpty() {
			if err := tx.Bucket(bucketResidentIndex).Delete([]byte(item.StorageKey)); err != nil {
				return fmt.Errorf("deleting resident index entry: %w", err)
			}
		}
		item.MarkNonResident()

		data, err := json.Marshal(&item)
		if err != nil {
			return fmt.Errorf("marshaling item: %w", err)
		}
		return items.Put(key[:], data)
	})
}

func (b *BoltDB) IterResident(_ context.Context) ([]*uc.CacheItem, error) {
	var out []*uc.CacheItem
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketItems).ForEach(func(_, v []byte) error {
			var item uc.CacheItem
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("unmarshaling item: %w", err)
			}
			if item.IsResident() {
				out = append(out, &item)
			}
			return nil
		})
	})
	return out, err
}

func (b *BoltDB) AppendAccess(_ context.Context, key uc.ItemKey, at time.Time) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		items := tx.Bucket(bucketItems)
		val := items.Get(key[:])
		if val == nil {
			return uc.ErrNotFound
		}
		var item uc.CacheItem
		if err := json.Unmarshal(val, &item); err != nil {
			return fmt.Errorf("unmarshaling item: %w", err)
		}
		item.AppendAccess(at)

		data, err := json.Marshal(&item)
		if err != nil {
			return fmt.Errorf("marshaling item: %w", err)
		}
		return items.Put(key[:], data)
	})
}

func (b *BoltDB) ClearAccessLogs(_ context.Context) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		items := tx.Bucket(bucketItems)
		return items.ForEach(func(k, v []byte) error {
			var item uc.CacheItem
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("unmarshaling item: %w", err)
			}
			item.ClearAccessLog()
			data, err := json.Marshal(&item)
			if err != nil {
				return fmt.Errorf("marshaling item: %w", err)
			}
			return items.Put(k, data)
		})
	})
}

func (b *BoltDB) Delete(_ context.Context, key uc.ItemKey) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		items := tx.Bucket(bucketItems)
		val := items.Get(key[:])
		if val == nil {
			return nil
		}
		var item uc.CacheItem
		if err := json.Unmarshal(val, &item); err != nil {
			return fmt.Errorf("unmarshaling item: %w", err)
		}
		if !item.StorageKey.IsEmpty() {
			if err := tx.Bucket(bucketResidentIndex).Delete([]byte(item.StorageKey)); err != nil {
				return fmt.Errorf("deleting resident index entry: %w", err)
			}
		}
		return items.Delete(key[:])
	})
}

func (b *BoltDB) LoadConfig(_ context.Context) (uc.CacheConfig, error) {
	cfg := uc.DefaultCacheConfig()
	err := b.db.View(func(tx *bbolt.Tx) error {
		val := tx.Bucket(bucketConfig).Get(configKey)
		if val == nil {
			return nil
		}
		return json.Unmarshal(val, &cfg)
	})
	return cfg, err
}

func (b *BoltDB) StoreConfig(_ context.Context, cfg uc.CacheConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketConfig).Put(configKey, data)
	})
}

var _ MetaDB = (*BoltDB)(nil)
