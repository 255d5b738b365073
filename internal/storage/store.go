package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store is a durable key to string store scoped to one installation.
// There are no transactions across keys; the last write to a key wins.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// List returns all keys that start with prefix, in ascending order.
	List(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// IsNotFound reports whether err means the key does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
