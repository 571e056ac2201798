package config

import (
	"fmt"
	"math"
	"time"
)

// Config is the single configuration structure of the performance layer.
// Sections map one-to-one onto the packages that consume them.
type Config struct {
	// Name identifies the dashboard deployment
	Name string `yaml:"name" json:"name"`

	// Logging controls the global zap logger
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Cache controls presentation caches and the payload store
	Cache CacheConfig `yaml:"cache" json:"cache"`

	// Compression selects the payload codec and compressor
	Compression CompressionConfig `yaml:"compression" json:"compression"`

	// Shrink tunes dtype narrowing and downsampling
	Shrink ShrinkConfig `yaml:"shrink" json:"shrink"`

	// Pagination sets the default page size
	Pagination PaginationConfig `yaml:"pagination" json:"pagination"`

	// Memory tunes the Go runtime
	Memory MemoryConfig `yaml:"memory" json:"memory"`

	// Metrics controls the recorder exports
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// LoggingConfig mirrors logger.Config.
type LoggingConfig struct {
	// Level sets logging verbosity (debug, info, warn, error)
	Level string `yaml:"level" json:"level"`
	// Encoding is json or console
	Encoding string `yaml:"encoding" json:"encoding"`
	// Development enables colored levels and stack traces on errors
	Development bool `yaml:"development" json:"development"`
	// File enables a rotated log file
	File string `yaml:"file" json:"file"`
	// MaxSizeMB is the rotation threshold of File
	MaxSizeMB int `yaml:"max_size_mb" json:"max_size_mb"`
	// MaxBackups is the number of rotated files kept
	MaxBackups int `yaml:"max_backups" json:"max_backups"`
}

// CacheConfig contains cache lifetimes and sizes.
type CacheConfig struct {
	// Enabled selects the in-memory presentation adapter; false selects the no-op adapter
	Enabled bool `yaml:"enabled" json:"enabled"`
	// DefaultTTL applies when a caller does not specify one
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`
	// DataTTL is the lifetime of memoized data fetches
	DataTTL time.Duration `yaml:"data_ttl" json:"data_ttl"`
	// ResourceTTL is the lifetime of shared resources such as forecast models
	ResourceTTL time.Duration `yaml:"resource_ttl" json:"resource_ttl"`
	// MaxEntries bounds every per-function cache (0 = unbounded)
	MaxEntries int `yaml:"max_entries" json:"max_entries"`
	// StorePath is the SQLite file backing compressed payloads ("" disables it)
	StorePath string `yaml:"store_path" json:"store_path"`
}

// CompressionConfig selects how payloads are serialized and compressed.
type CompressionConfig struct {
	// Codec is arrow or json
	Codec string `yaml:"codec" json:"codec"`
	// Algorithm is none, gzip, zstd, s2, snappy or lz4
	Algorithm string `yaml:"algorithm" json:"algorithm"`
	// Level is 1 (fastest) to 9 (best)
	Level int `yaml:"level" json:"level"`
}

// ShrinkConfig tunes the dataset shrinker.
type ShrinkConfig struct {
	// CategoryRatio is the distinct/total threshold below which text becomes a category
	CategoryRatio float64 `yaml:"category_ratio" json:"category_ratio"`
	// DownsampleTarget is the default number of points kept for charts
	DownsampleTarget int `yaml:"downsample_target" json:"downsample_target"`
}

// PaginationConfig sets paging defaults.
type PaginationConfig struct {
	PageSize int `yaml:"page_size" json:"page_size"`
}

// MemoryConfig contains runtime tuning applied once per process.
type MemoryConfig struct {
	// GCPercent is passed to debug.SetGCPercent (0 keeps the runtime default)
	GCPercent int `yaml:"gc_percent" json:"gc_percent"`
	// MemoryLimitMB is passed to debug.SetMemoryLimit (0 = no limit)
	MemoryLimitMB int `yaml:"memory_limit_mb" json:"memory_limit_mb"`
}

// MaxMemoryLimitMB is the largest limit whose byte count fits in an int64.
const MaxMemoryLimitMB int64 = math.MaxInt64 >> 20

// MetricsConfig controls the recorder exports.
type MetricsConfig struct {
	// Namespace prefixes Prometheus metric names
	Namespace string `yaml:"namespace" json:"namespace"`
	// Tracing wraps measured calls in OpenTelemetry spans
	Tracing bool `yaml:"tracing" json:"tracing"`
}

// NewDefault creates a Config with the defaults the dashboard ships with.
// Cache lifetimes follow the dashboard's historical settings: one hour by
// default, thirty minutes for data, two hours for forecast resources.
func NewDefault() *Config {
	return &Config{
		Name: "econdash",
		Logging: LoggingConfig{
			Level:      "info",
			Encoding:   "json",
			MaxSizeMB:  10,
			MaxBackups: 5,
		},
		Cache: CacheConfig{
			Enabled:     true,
			DefaultTTL:  time.Hour,
			DataTTL:     30 * time.Minute,
			ResourceTTL: 2 * time.Hour,
			MaxEntries:  256,
		},
		Compression: CompressionConfig{
			Codec:     "arrow",
			Algorithm: "gzip",
			Level:     5,
		},
		Shrink: ShrinkConfig{
			CategoryRatio:    0.5,
			DownsampleTarget: 1000,
		},
		Pagination: PaginationConfig{
			PageSize: 50,
		},
		Metrics: MetricsConfig{
			Namespace: "econdash",
		},
	}
}

// Validate validates the configuration for correctness.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.Cache.DefaultTTL < 0 || c.Cache.DataTTL < 0 || c.Cache.ResourceTTL < 0 {
		return fmt.Errorf("cache ttls cannot be negative")
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache max_entries cannot be negative")
	}
	switch c.Compression.Codec {
	case "arrow", "json":
	default:
		return fmt.Errorf("unsupported codec %q", c.Compression.Codec)
	}
	switch c.Compression.Algorithm {
	case "none", "gzip", "zstd", "s2", "snappy", "lz4":
	default:
		return fmt.Errorf("unsupported compression algorithm %q", c.Compression.Algorithm)
	}
	if c.Compression.Level < 0 || c.Compression.Level > 9 {
		return fmt.Errorf("compression level must be between 0 and 9")
	}
	if c.Shrink.CategoryRatio <= 0 || c.Shrink.CategoryRatio > 1 {
		return fmt.Errorf("shrink category_ratio must be in (0, 1]")
	}
	if c.Shrink.DownsampleTarget <= 0 {
		return fmt.Errorf("shrink downsample_target must be positive")
	}
	if c.Pagination.PageSize <= 0 {
		return fmt.Errorf("pagination page_size must be positive")
	}
	if c.Memory.MemoryLimitMB < 0 {
		return fmt.Errorf("memory_limit_mb cannot be negative")
	}
	if int64(c.Memory.MemoryLimitMB) > MaxMemoryLimitMB {
		return fmt.Errorf("memory_limit_mb cannot exceed %d", MaxMemoryLimitMB)
	}
	return nil
}

// TTLFor returns ttl when positive, otherwise the default TTL.
func (c *CacheConfig) TTLFor(ttl time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	return c.DefaultTTL
}

// HasStore returns true if compressed payloads should be persisted
func (c *CacheConfig) HasStore() bool {
	return c.StorePath != ""
}
