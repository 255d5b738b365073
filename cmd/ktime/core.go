package main

import (
	"fmt"
	"os"
	"time"

	"github.com/goodtune/ktime/internal/clock"
	"github.com/goodtune/ktime/internal/config"
	"github.com/goodtune/ktime/internal/gate"
	"github.com/goodtune/ktime/internal/policy"
	"github.com/goodtune/ktime/internal/policy/opa"
	"github.com/goodtune/ktime/internal/storage"
	"github.com/goodtune/ktime/internal/storage/bolt"
	"github.com/goodtune/ktime/internal/storage/cache"
	"github.com/goodtune/ktime/internal/storage/memory"
	"github.com/goodtune/ktime/internal/storage/redis"
	"github.com/goodtune/ktime/internal/usage"
	"github.com/rs/zerolog"
)

// core bundles the components every command works with
type core struct {
	store   storage.Store
	ledger  *usage.Ledger
	policy  *policy.Policy
	gate    *gate.Gate
	decider gate.Decider
}

func openCore(cfg *config.Config, clk clock.Clock, logger zerolog.Logger) (*core, error) {
	store, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	decider, err := newDecider(cfg.Policy, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	ledger := usage.NewLedger(store, clk, logger)
	pol := policy.New(store, clk, logger)

	return &core{
		store:   store,
		ledger:  ledger,
		policy:  pol,
		gate:    gate.New(ledger, pol, decider, logger),
		decider: decider,
	}, nil
}

func (c *core) Close() error {
	return c.store.Close()
}

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	var (
		store storage.Store
		err   error
	)

	switch cfg.Type {
	case "", "bolt":
		store, err = bolt.Open(cfg.Path)
	case "redis":
		store, err = redis.Open(cfg.Redis)
	case "memory":
		store = memory.New()
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (must be bolt, redis or memory)", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize <= 0 {
		return store, nil
	}

	cached, err := cache.New(store, cfg.CacheSize)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return cached, nil
}

func newDecider(cfg config.PolicyConfig, logger zerolog.Logger) (gate.Decider, error) {
	switch cfg.Engine {
	case "opa":
		d, err := opa.NewDecider(cfg.OPAPolicyDir, logger)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return gate.BuiltinDecider{}, nil
	}
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	// Set log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	// Set output format
	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// quietLogger is used by one-shot commands so only failures reach the terminal
func quietLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// withCore loads configuration and opens the components for a one-shot command
func withCore(fn func(c *core) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	c, err := openCore(cfg, clock.RealClock{}, quietLogger())
	if err != nil {
		return err
	}
	defer c.Close()

	return fn(c)
}
