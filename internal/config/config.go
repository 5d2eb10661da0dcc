// Package config loads and validates the kv-catalyst configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Backend identifies the storage backend implementation to open.
type Backend string

const (
	// BackendMemory keeps all data in process memory.
	BackendMemory Backend = "memory"
	// BackendSQLite stores data in a local SQLite file via modernc.org/sqlite.
	BackendSQLite Backend = "sqlite"
	// BackendPostgres stores data in PostgreSQL via jackc/pgx.
	BackendPostgres Backend = "postgres"
)

var validBackends = map[Backend]struct{}{
	BackendMemory:   {},
	BackendSQLite:   {},
	BackendPostgres: {},
}

// Duration wraps time.Duration so TOML and YAML configs can carry
// values like "500ms" or "10s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// CacheConfig mirrors the [cache] section.
type CacheConfig struct {
	CacheTime                Duration `toml:"cache_time" yaml:"cache_time"`
	ExpirationGracePeriod    Duration `toml:"expiration_grace_period" yaml:"expiration_grace_period"`
	MaximumByteSize          int64    `toml:"maximum_byte_size" yaml:"maximum_byte_size"`
	ShardCount               int      `toml:"shard_count" yaml:"shard_count"`
	InvalidationSamplingRate float64  `toml:"invalidation_sampling_rate" yaml:"invalidation_sampling_rate"`
}

// Config mirrors the expected kv-catalyst configuration schema.
type Config struct {
	Backend     Backend     `toml:"backend" yaml:"backend"`
	SQLitePath  string      `toml:"sqlite_path" yaml:"sqlite_path"`
	PostgresURL string      `toml:"postgres_url" yaml:"postgres_url"`
	Cache       CacheConfig `toml:"cache" yaml:"cache"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Backend: BackendMemory,
		Cache: CacheConfig{
			CacheTime:             Duration(10 * time.Second),
			ExpirationGracePeriod: Duration(time.Second),
			MaximumByteSize:       64 << 20,
		},
	}
}

// FieldError reports an invalid configuration value.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("config field %s: %s", e.Field, e.Reason)
}

// Load reads and validates the configuration at path. The format is
// chosen by file extension: .toml, or .yaml/.yml.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	switch ext := filepath.Ext(path); ext {
	case ".toml":
		if err := toml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return Config{}, fmt.Errorf("unsupported config extension %q (want .toml, .yaml or .yml)", ext)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for construction-time errors. The
// cache layer re-validates its own options; validating here surfaces
// mistakes with config-file field names instead.
func (c Config) Validate() error {
	if _, ok := validBackends[c.Backend]; !ok {
		return &FieldError{Field: "backend", Reason: fmt.Sprintf("unknown backend %q", c.Backend)}
	}
	if c.Backend == BackendSQLite && c.SQLitePath == "" {
		return &FieldError{Field: "sqlite_path", Reason: "required for the sqlite backend"}
	}
	if c.Backend == BackendPostgres && c.PostgresURL == "" {
		return &FieldError{Field: "postgres_url", Reason: "required for the postgres backend"}
	}
	if c.Cache.CacheTime <= 0 {
		return &FieldError{Field: "cache.cache_time", Reason: "must be positive"}
	}
	if c.Cache.ExpirationGracePeriod < 0 {
		return &FieldError{Field: "cache.expiration_grace_period", Reason: "must not be negative"}
	}
	if c.Cache.ExpirationGracePeriod.Std() >= c.Cache.CacheTime.Std() {
		return &FieldError{Field: "cache.expiration_grace_period", Reason: "must be shorter than cache_time"}
	}
	if c.Cache.MaximumByteSize <= 0 {
		return &FieldError{Field: "cache.maximum_byte_size", Reason: "must be positive"}
	}
	if c.Cache.InvalidationSamplingRate < 0 || c.Cache.InvalidationSamplingRate > 1 {
		return &FieldError{Field: "cache.invalidation_sampling_rate", Reason: "must be in [0, 1]"}
	}
	if c.Cache.ShardCount < 0 {
		return &FieldError{Field: "cache.shard_count", Reason: "must not be negative"}
	}
	return nil
}
