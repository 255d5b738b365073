package bolt

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/goodtune/ktime/internal/storage"
	"go.etcd.io/bbolt"
)

const bucketKV = "kv"

// Store implements storage.Store using bbolt.
type Store struct {
	db *bbolt.DB
}

// Open opens a BoltDB-backed store.
func Open(path string) (*Store, error) {
	if err := storage.EnsureParentDir(path); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketKV)); err != nil {
			return fmt.Errorf("create bucket %s: %w", bucketKV, err)
		}
		return nil
	})
}

// Close closes the underlying store database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketKV))
		if b == nil {
			return storage.ErrNotFound
		}
		data := b.Get([]byte(key))
		if data == nil {
			return storage.ErrNotFound
		}
		// bbolt values are only valid for the life of the transaction
		value = string(data)
		return nil
	})
	if err != nil {
		return "", err
	}
	return value, nil
}

// Set stores value under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketKV))
		if b == nil {
			return fmt.Errorf("bucket missing: %s", bucketKV)
		}
		return b.Put([]byte(key), []byte(value))
	})
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketKV))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

// List returns keys with the given prefix in byte order.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	keys := make([]string, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketKV))
		if b == nil {
			return nil
		}
		p := []byte(prefix)
		c := b.Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}
