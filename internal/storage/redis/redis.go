package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/ktime/internal/config"
	"github.com/goodtune/ktime/internal/storage"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "ktime:kv:"
	indexKey  = "ktime:index"
)

// Store implements the storage.Store interface using Redis
type Store struct {
	client       *redis.Client
	setScript    *redis.Script
	deleteScript *redis.Script
}

// Open creates a new Redis-backed storage instance
func Open(cfg config.RedisConfig) (*Store, error) {
	// Parse timeouts
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}

	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}

	// Host may already carry the port
	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{
		client:       client,
		setScript:    redis.NewScript(setValueScript),
		deleteScript: redis.NewScript(deleteValueScript),
	}, nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Get retrieves the value stored under key
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Set atomically stores value and indexes key
func (s *Store) Set(ctx context.Context, key, value string) error {
	keys := []string{keyPrefix + key, indexKey}
	return s.setScript.Run(ctx, s.client, keys, key, value).Err()
}

// Delete atomically removes key and its index entry
func (s *Store) Delete(ctx context.Context, key string) error {
	keys := []string{keyPrefix + key, indexKey}
	return s.deleteScript.Run(ctx, s.client, keys, key).Err()
}

// List returns indexed keys starting with prefix in lexical order
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	by := &redis.ZRangeBy{Min: "-", Max: "+"}
	if prefix != "" {
		by.Min = "[" + prefix
		by.Max = "(" + prefix + "\xff"
	}

	keys, err := s.client.ZRangeByLex(ctx, indexKey, by).Result()
	if err != nil {
		return nil, err
	}
	return keys, nil
}
