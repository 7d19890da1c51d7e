// Package config loads the service configuration from a YAML file, with
// environment overrides applied on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/ffscout/scouter"
	"github.com/ffscout/scouter/redisstore"
)

// Environment variables that override the file.
const (
	EnvConfigPath   = "SCOUTER_CONFIG"
	EnvAPIKey       = "SCOUTER_API_KEY"
	EnvBaseURL      = "SCOUTER_BASE_URL"
	EnvListen       = "SCOUTER_LISTEN"
	EnvStoreBackend = "SCOUTER_STORE"
	EnvRedisAddress = "SCOUTER_REDIS_ADDR"
	EnvLogLevel     = "SCOUTER_LOG_LEVEL"
)

// Store backends.
const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
	BackendRedis   = "redis"
)

// Config represents the service configuration.
type Config struct {
	// APIKey is sent with every call to the stats service.
	APIKey string `yaml:"api-key"`

	// BaseURL of the stats service.
	BaseURL string `yaml:"base-url"`

	// Listen is the address of the HTTP server.
	Listen string `yaml:"listen"`

	Store     StoreConfig     `yaml:"store"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StoreConfig selects and configures the cache backend.
type StoreConfig struct {
	Backend       string        `yaml:"backend"`
	CacheInterval time.Duration `yaml:"cache-interval"`
	SweepInterval time.Duration `yaml:"sweep-interval"`

	// Memory backend.
	Capacity           int `yaml:"capacity"`
	Shards             int `yaml:"shards"`
	EvictionPercentage int `yaml:"eviction-percentage"`

	// Tiered puts the memory backend in front of the leveldb or redis backend.
	Tiered bool `yaml:"tiered"`

	// LevelDB backend.
	Path string `yaml:"path"`

	Redis redisstore.Config `yaml:"redis"`
}

// SchedulerConfig holds the pacing of the scheduler.
type SchedulerConfig struct {
	CacheDelay      time.Duration `yaml:"cache-delay"`
	InitialDelay    time.Duration `yaml:"initial-delay"`
	DefaultDelay    time.Duration `yaml:"default-delay"`
	BlankRetryDelay time.Duration `yaml:"blank-retry-delay"`
	MaxBatchSize    int           `yaml:"max-batch-size"`
	MaxAttempts     int           `yaml:"max-attempts"`
	RequestTimeout  time.Duration `yaml:"request-timeout"`

	// MaxCallsPerSecond is a local ceiling on calls. Zero disables it.
	MaxCallsPerSecond float64 `yaml:"max-calls-per-second"`
}

// LoggingConfig configures the logrus setup.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`

	// File enables rotated file output. Logs go to stderr when it's empty.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAgeDays int    `yaml:"max-age-days"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		BaseURL: scouter.DefaultBaseURL,
		Listen:  ":8080",
		Store: StoreConfig{
			Backend:            BackendMemory,
			CacheInterval:      scouter.DefaultCacheInterval,
			SweepInterval:      10 * time.Minute,
			Capacity:           100_000,
			Shards:             16,
			EvictionPercentage: 10,
			Path:               "scouter.db",
			Redis:              redisstore.DefaultConfig(),
		},
		Scheduler: SchedulerConfig{
			CacheDelay:      scouter.DefaultCacheDelay,
			InitialDelay:    scouter.DefaultInitialDelay,
			DefaultDelay:    scouter.DefaultDelay,
			BlankRetryDelay: scouter.DefaultBlankRetryDelay,
			MaxBatchSize:    scouter.DefaultMaxBatchSize,
			MaxAttempts:     scouter.DefaultMaxAttempts,
			RequestTimeout:  scouter.DefaultRequestTimeout,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads the file at path on top of the defaults and applies the
// environment overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv(EnvAPIKey); ok {
		cfg.APIKey = v
	}
	if v, ok := os.LookupEnv(EnvBaseURL); ok {
		cfg.BaseURL = v
	}
	if v, ok := os.LookupEnv(EnvListen); ok {
		cfg.Listen = v
	}
	if v, ok := os.LookupEnv(EnvStoreBackend); ok {
		cfg.Store.Backend = v
	}
	if v, ok := os.LookupEnv(EnvRedisAddress); ok {
		cfg.Store.Redis.Address = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		cfg.Logging.Level = v
	}
	if v, ok := os.LookupEnv("SCOUTER_MAX_CALLS_PER_SECOND"); ok {
		perSecond, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: SCOUTER_MAX_CALLS_PER_SECOND: %w", err)
		}
		cfg.Scheduler.MaxCallsPerSecond = perSecond
	}
	return nil
}

var (
	ErrUnknownBackend = errors.New("config: unknown store backend")
	ErrInvalidValue   = errors.New("config: invalid value")
)

// Validate checks the values the scheduler and stores would panic on.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendLevelDB, BackendRedis:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Store.Backend)
	}

	if c.Store.CacheInterval <= 0 {
		return fmt.Errorf("%w: store.cache-interval must be positive", ErrInvalidValue)
	}
	if c.Store.Backend == BackendMemory || c.Store.Tiered {
		if c.Store.Capacity <= 0 || c.Store.Shards <= 0 || c.Store.Shards > c.Store.Capacity {
			return fmt.Errorf("%w: store.capacity and store.shards", ErrInvalidValue)
		}
		if c.Store.EvictionPercentage < 0 || c.Store.EvictionPercentage > 100 {
			return fmt.Errorf("%w: store.eviction-percentage must be between 0 and 100", ErrInvalidValue)
		}
	}

	s := c.Scheduler
	if s.CacheDelay <= 0 || s.InitialDelay <= 0 || s.DefaultDelay <= 0 || s.BlankRetryDelay <= 0 || s.RequestTimeout <= 0 {
		return fmt.Errorf("%w: scheduler delays must be positive", ErrInvalidValue)
	}
	if s.MaxBatchSize < 1 || s.MaxAttempts < 0 || s.MaxCallsPerSecond < 0 {
		return fmt.Errorf("%w: scheduler limits", ErrInvalidValue)
	}
	return nil
}

// SchedulerOptions turns the scheduler section into scheduler options.
func (c Config) SchedulerOptions() []scouter.Option {
	s := c.Scheduler
	opts := []scouter.Option{
		scouter.WithCacheDelay(s.CacheDelay),
		scouter.WithInitialDelay(s.InitialDelay),
		scouter.WithDefaultDelay(s.DefaultDelay),
		scouter.WithBlankRetryDelay(s.BlankRetryDelay),
		scouter.WithMaxBatchSize(s.MaxBatchSize),
		scouter.WithMaxAttempts(s.MaxAttempts),
		scouter.WithRequestTimeout(s.RequestTimeout),
	}
	if s.MaxCallsPerSecond > 0 {
		opts = append(opts, scouter.WithOutboundRateLimit(rate.Limit(s.MaxCallsPerSecond), 1))
	}
	return opts
}
