package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/goodtune/ktime/internal/storage"
	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Logging LoggingConfig `mapstructure:"logging"`
	Usage   UsageConfig   `mapstructure:"usage_tracking"`
	Policy  PolicyConfig  `mapstructure:"policy"`
}

// ServerConfig defines server ports and addresses
type ServerConfig struct {
	BindAddress    string   `mapstructure:"bind_address"`
	APIPort        int      `mapstructure:"api_port"`
	MetricsPort    int      `mapstructure:"metrics_port"` // 0 disables the metrics server
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type      string      `mapstructure:"type"` // "bolt", "redis" or "memory"
	Path      string      `mapstructure:"path"`
	CacheSize int         `mapstructure:"cache_size"` // 0 disables the read cache
	Redis     RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// UsageConfig defines usage tracking settings
type UsageConfig struct {
	PollInterval  string `mapstructure:"poll_interval"`
	RetentionDays int    `mapstructure:"retention_days"` // 0 keeps every record
	CleanupTime   string `mapstructure:"cleanup_time"`
}

// PolicyConfig selects how gate decisions are computed
type PolicyConfig struct {
	Engine       string `mapstructure:"engine"`         // "builtin" or "opa"
	OPAPolicyDir string `mapstructure:"opa_policy_dir"` // empty = embedded policy
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	v.SetConfigFile(configPath)
	v.SetEnvPrefix("KTIME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if !isMissingConfig(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// SetDefaults sets default configuration values
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.bind_address", "127.0.0.1")
	v.SetDefault("server.api_port", 8790)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.allowed_origins", []string{})

	// Storage defaults
	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.path", "/var/lib/ktime/ktime.bolt")
	v.SetDefault("storage.cache_size", 64)
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Usage tracking defaults
	v.SetDefault("usage_tracking.poll_interval", "5s")
	v.SetDefault("usage_tracking.retention_days", 0)
	v.SetDefault("usage_tracking.cleanup_time", "03:00")

	// Policy defaults
	v.SetDefault("policy.engine", "builtin")
	v.SetDefault("policy.opa_policy_dir", "")
}

// ValidKeys returns the set of every recognised configuration key
func ValidKeys() map[string]bool {
	return map[string]bool{
		// Server
		"server.bind_address":    true,
		"server.api_port":        true,
		"server.metrics_port":    true,
		"server.allowed_origins": true,

		// Storage
		"storage.type":                 true,
		"storage.path":                 true,
		"storage.cache_size":           true,
		"storage.redis.host":           true,
		"storage.redis.port":           true,
		"storage.redis.password":       true,
		"storage.redis.db":             true,
		"storage.redis.pool_size":      true,
		"storage.redis.min_idle_conns": true,
		"storage.redis.dial_timeout":   true,
		"storage.redis.read_timeout":   true,
		"storage.redis.write_timeout":  true,

		// Logging
		"logging.level":  true,
		"logging.format": true,

		// Usage tracking
		"usage_tracking.poll_interval":  true,
		"usage_tracking.retention_days": true,
		"usage_tracking.cleanup_time":   true,

		// Policy
		"policy.engine":         true,
		"policy.opa_policy_dir": true,
	}
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.APIPort <= 0 || cfg.Server.APIPort > 65535 {
		return fmt.Errorf("invalid API port: %d", cfg.Server.APIPort)
	}
	if cfg.Server.MetricsPort < 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	switch cfg.Storage.Type {
	case "":
		cfg.Storage.Type = "bolt"
		fallthrough
	case "bolt":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required for bolt storage")
		}
		if err := storage.EnsureParentDir(cfg.Storage.Path); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	case "redis", "memory":
	default:
		return fmt.Errorf("unsupported storage type: %s (must be bolt, redis or memory)", cfg.Storage.Type)
	}

	if cfg.Storage.CacheSize < 0 {
		return fmt.Errorf("storage cache_size must not be negative")
	}

	if _, err := time.ParseDuration(cfg.Usage.PollInterval); err != nil {
		return fmt.Errorf("invalid usage_tracking.poll_interval: %w", err)
	}
	if cfg.Usage.RetentionDays < 0 {
		return fmt.Errorf("usage_tracking.retention_days must not be negative")
	}
	if _, err := time.Parse("15:04", cfg.Usage.CleanupTime); err != nil {
		return fmt.Errorf("invalid usage_tracking.cleanup_time (want HH:MM): %w", err)
	}

	switch cfg.Policy.Engine {
	case "", "builtin":
		cfg.Policy.Engine = "builtin"
	case "opa":
	default:
		return fmt.Errorf("unsupported policy engine: %s (must be builtin or opa)", cfg.Policy.Engine)
	}

	return nil
}

// isMissingConfig reports whether err only says the config file is absent.
// SetConfigFile surfaces a missing file as an fs error rather than
// viper.ConfigFileNotFoundError.
func isMissingConfig(err error) bool {
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return true
	}
	return errors.Is(err, fs.ErrNotExist)
}
