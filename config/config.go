// Package config loads kvsearch settings from a config file and KVSEARCH_*
// environment variables and turns them into table, catalog and logging
// options.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/hupe1980/kvsearch"
	"github.com/hupe1980/kvsearch/catalog"
	"github.com/hupe1980/kvsearch/codec"
	"github.com/hupe1980/kvsearch/internal/compress"
	"github.com/hupe1980/kvsearch/resource"
)

// EnvPrefix prefixes the environment variables overriding file settings.
// index.shards is read from KVSEARCH_INDEX_SHARDS.
const EnvPrefix = "KVSEARCH"

// Catalog backends.
const (
	BackendMemory   = "memory"
	BackendLocal    = "local"
	BackendS3       = "s3"
	BackendMinIO    = "minio"
	BackendDynamoDB = "dynamodb"
)

// Config is the complete kvsearch configuration.
type Config struct {
	Index     Index     `mapstructure:"index"`
	Catalog   Catalog   `mapstructure:"catalog"`
	Resources Resources `mapstructure:"resources"`
	Log       Log       `mapstructure:"log"`
	Server    Server    `mapstructure:"server"`
}

// Index holds the table defaults.
type Index struct {
	Shards         int  `mapstructure:"shards"`
	Replication    int  `mapstructure:"replication"`
	PartialResults bool `mapstructure:"partial_results"`
	Dedup          bool `mapstructure:"dedup"`
	BufferSize     int  `mapstructure:"buffer_size"`
	PoolSize       int  `mapstructure:"pool_size"`
	BatchSize      int  `mapstructure:"batch_size"`
}

// Catalog selects where table descriptors are stored.
type Catalog struct {
	Backend     string `mapstructure:"backend"`
	Path        string `mapstructure:"path"`
	Bucket      string `mapstructure:"bucket"`
	Prefix      string `mapstructure:"prefix"`
	Region      string `mapstructure:"region"`
	Endpoint    string `mapstructure:"endpoint"`
	AccessKey   string `mapstructure:"access_key"`
	SecretKey   string `mapstructure:"secret_key"`
	Secure      bool   `mapstructure:"secure"`
	Table       string `mapstructure:"table"`
	Codec       string `mapstructure:"codec"`
	Compression string `mapstructure:"compression"`
}

// Resources holds the shared limits of shard work.
type Resources struct {
	MemoryLimitBytes      int64 `mapstructure:"memory_limit_bytes"`
	MaxConcurrentSearches int64 `mapstructure:"max_concurrent_searches"`
	IndexRowsPerSec       int64 `mapstructure:"index_rows_per_sec"`
	IOLimitBytesPerSec    int64 `mapstructure:"io_limit_bytes_per_sec"`
}

// Log configures the logger.
type Log struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Server configures the HTTP server.
type Server struct {
	Addr            string        `mapstructure:"addr"`
	Table           string        `mapstructure:"table"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	RequestsPerSec  float64       `mapstructure:"requests_per_sec"`
	Burst           int           `mapstructure:"burst"`
}

var defaults = map[string]any{
	"index.shards":                      1,
	"index.replication":                 1,
	"index.partial_results":             false,
	"index.dedup":                       true,
	"index.buffer_size":                 64,
	"index.pool_size":                   0,
	"index.batch_size":                  1024,
	"catalog.backend":                   BackendMemory,
	"catalog.path":                      "./data/catalog",
	"catalog.bucket":                    "",
	"catalog.prefix":                    "kvsearch/",
	"catalog.region":                    "",
	"catalog.endpoint":                  "",
	"catalog.access_key":                "",
	"catalog.secret_key":                "",
	"catalog.secure":                    true,
	"catalog.table":                     "kvsearch-catalog",
	"catalog.codec":                     codec.Default.Name(),
	"catalog.compression":               "zstd",
	"resources.memory_limit_bytes":      0,
	"resources.max_concurrent_searches": 0,
	"resources.index_rows_per_sec":      0,
	"resources.io_limit_bytes_per_sec":  0,
	"log.level":                         "info",
	"log.development":                   false,
	"server.addr":                       ":8080",
	"server.table":                      "",
	"server.read_timeout":               "10s",
	"server.write_timeout":              "30s",
	"server.shutdown_timeout":           "10s",
	"server.max_body_bytes":             8 << 20,
	"server.requests_per_sec":           0,
	"server.burst":                      100,
}

// Load reads the config file at path, if path is not empty, and applies
// environment overrides on top of the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	// Every key has a default, so AutomaticEnv also reaches Unmarshal.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that cannot be checked by the components
// they configure.
func (c *Config) Validate() error {
	var errs []error
	if c.Index.Shards < 1 {
		errs = append(errs, fmt.Errorf("index.shards must be positive, got %d", c.Index.Shards))
	}
	if c.Index.Replication < 1 || c.Index.Replication > c.Index.Shards {
		errs = append(errs, fmt.Errorf("index.replication must be in [1, index.shards], got %d", c.Index.Replication))
	}
	if _, ok := codec.ByName(c.Catalog.Codec); !ok {
		errs = append(errs, fmt.Errorf("catalog.codec %q is not one of %v", c.Catalog.Codec, codec.Names()))
	}
	if _, err := compress.ParseType(c.Catalog.Compression); err != nil {
		errs = append(errs, err)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Catalog.Backend {
	case BackendMemory:
	case BackendLocal:
		if c.Catalog.Path == "" {
			errs = append(errs, errors.New("catalog.path is required for the local backend"))
		}
	case BackendS3, BackendMinIO:
		if c.Catalog.Bucket == "" {
			errs = append(errs, fmt.Errorf("catalog.bucket is required for the %s backend", c.Catalog.Backend))
		}
		if c.Catalog.Backend == BackendMinIO && c.Catalog.Endpoint == "" {
			errs = append(errs, errors.New("catalog.endpoint is required for the minio backend"))
		}
	case BackendDynamoDB:
		if c.Catalog.Table == "" {
			errs = append(errs, errors.New("catalog.table is required for the dynamodb backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown catalog.backend %q", c.Catalog.Backend))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Logger builds the configured logger.
func (c *Config) Logger() (*kvsearch.Logger, error) {
	if c.Log.Development {
		return kvsearch.NewDevelopmentLogger()
	}
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	return kvsearch.NewLogger(level)
}

// Controller builds the resource controller shared by all tables.
func (c *Config) Controller() *resource.Controller {
	return resource.NewController(resource.Config{
		MemoryLimitBytes:      c.Resources.MemoryLimitBytes,
		MaxConcurrentSearches: c.Resources.MaxConcurrentSearches,
		IndexRowsPerSec:       c.Resources.IndexRowsPerSec,
		IOLimitBytesPerSec:    c.Resources.IOLimitBytesPerSec,
	})
}

// TableOptions returns the table options of the index settings. reg, when
// not nil, receives the table metrics.
func (c *Config) TableOptions(logger *kvsearch.Logger, ctrl *resource.Controller, reg prometheus.Registerer) []kvsearch.Option {
	opts := []kvsearch.Option{
		kvsearch.WithShards(c.Index.Shards),
		kvsearch.WithReplication(c.Index.Replication),
		kvsearch.WithPartialResults(c.Index.PartialResults),
		kvsearch.WithDedup(c.Index.Dedup),
		kvsearch.WithBufferSize(c.Index.BufferSize),
		kvsearch.WithPoolSize(c.Index.PoolSize),
		kvsearch.WithBatchSize(c.Index.BatchSize),
		kvsearch.WithController(ctrl),
		kvsearch.WithLogger(logger),
	}
	if reg != nil {
		opts = append(opts, kvsearch.WithMetricsCollector(kvsearch.NewPrometheusCollector(reg)))
	}
	return opts
}

// OpenCatalog connects the configured catalog backend.
func (c *Config) OpenCatalog(ctx context.Context, logger *kvsearch.Logger, ctrl *resource.Controller) (*catalog.Catalog, error) {
	store, err := c.Catalog.store(ctx)
	if err != nil {
		return nil, err
	}
	cd, _ := codec.ByName(c.Catalog.Codec)
	ct, err := compress.ParseType(c.Catalog.Compression)
	if err != nil {
		return nil, err
	}
	return catalog.New(store, func(o *catalog.Options) {
		o.Codec = cd
		o.Compression = ct
		o.Controller = ctrl
		if logger != nil {
			o.Logger = logger.Logger
		}
	}), nil
}
