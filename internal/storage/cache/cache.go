// Package cache wraps a storage.Store with a read-through LRU cache.
package cache

import (
	"context"
	"fmt"

	"github.com/goodtune/ktime/internal/storage"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Store caches Get results of the wrapped store. Writes go through to the
// backend first and update the cache only on success.
type Store struct {
	backend storage.Store
	entries *lru.Cache[string, string]
}

// New wraps backend with a cache holding at most size keys.
func New(backend storage.Store, size int) (*Store, error) {
	entries, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage cache: %w", err)
	}
	return &Store{backend: backend, entries: entries}, nil
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if value, ok := s.entries.Get(key); ok {
		return value, nil
	}

	value, err := s.backend.Get(ctx, key)
	if err != nil {
		return "", err
	}
	s.entries.Add(key, value)
	return value, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.backend.Set(ctx, key, value); err != nil {
		s.entries.Remove(key)
		return err
	}
	s.entries.Add(key, value)
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.entries.Remove(key)
	return s.backend.Delete(ctx, key)
}

// List is never cached.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	return s.backend.List(ctx, prefix)
}

func (s *Store) Close() error {
	s.entries.Purge()
	return s.backend.Close()
}

// Len returns the number of cached keys.
func (s *Store) Len() int {
	return s.entries.Len()
}
