// Package config loads process configuration from a YAML file, an optional
// .env file and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"solana-token-feed/internal/aggregator"
	"solana-token-feed/internal/domain"
	"solana-token-feed/internal/logging"
	"solana-token-feed/internal/pubsub"
	"solana-token-feed/internal/reconcile"
)

// Store backends.
const (
	StoreMemory     = "memory"
	StoreRedis      = "redis"
	StorePostgres   = "postgres"
	StoreClickHouse = "clickhouse"
)

// Bus backends.
const (
	BusMemory = "memory"
	BusRedis  = "redis"
)

type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Log        logging.Options  `yaml:"log"`
	Store      StoreConfig      `yaml:"store"`
	Bus        BusConfig        `yaml:"bus"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Fetchers   FetchersConfig   `yaml:"fetchers"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type StoreConfig struct {
	Backend       string `yaml:"backend"`
	RedisURL      string `yaml:"redis_url"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickHouseDSN string `yaml:"clickhouse_dsn"`
	// Migrate runs embedded migrations for the SQL backends at start-up.
	Migrate bool `yaml:"migrate"`
}

type BusConfig struct {
	Backend       string `yaml:"backend"`
	RedisURL      string `yaml:"redis_url"`
	RawChannel    string `yaml:"raw_channel"`
	ChangeChannel string `yaml:"change_channel"`
}

type AggregatorConfig struct {
	Window      time.Duration       `yaml:"window"`
	Mode        string              `yaml:"mode"`
	Concurrency int                 `yaml:"concurrency"`
	Thresholds  ThresholdsConfig    `yaml:"thresholds"`
	Priorities  map[string][]string `yaml:"priorities"`
	// Embedded runs the aggregator inside the server process. With the
	// redis bus it consumes the raw channel; disable it when a separate
	// aggregator process does.
	Embedded bool `yaml:"embedded"`
}

// ThresholdsConfig maps field names to noise thresholds.
type ThresholdsConfig struct {
	Floor    map[string]float64 `yaml:"floor"`
	MinDelta map[string]float64 `yaml:"min_delta"`
}

type IngestConfig struct {
	Window               time.Duration `yaml:"window"`
	RequireSolanaAddress bool          `yaml:"require_solana_address"`
	// URL is the remote ingest endpoint used by the worker.
	URL string `yaml:"url"`
}

type FetchersConfig struct {
	DexScreener DexScreenerConfig `yaml:"dexscreener"`
	Jupiter     JupiterConfig     `yaml:"jupiter"`
	HTTP        FetchHTTPConfig   `yaml:"http"`
}

type DexScreenerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	URL      string        `yaml:"url"`
	Query    string        `yaml:"query"`
}

type JupiterConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	URL         string        `yaml:"url"`
	ChunkSize   int           `yaml:"chunk_size"`
	Concurrency int           `yaml:"concurrency"`
	TopN        int           `yaml:"top_n"`
}

type FetchHTTPConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	RateLimit  float64       `yaml:"rate_limit"`
	Burst      int           `yaml:"burst"`
}

// Default returns a configuration that runs entirely in memory.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:            ":3000",
			ShutdownTimeout: 30 * time.Second,
		},
		Log: logging.Options{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{
			Backend:  StoreMemory,
			RedisURL: "redis://localhost:6379/0",
			Migrate:  true,
		},
		Bus: BusConfig{
			Backend:       BusMemory,
			RedisURL:      "redis://localhost:6379/0",
			RawChannel:    pubsub.DefaultRawChannel,
			ChangeChannel: pubsub.DefaultChangeChannel,
		},
		Aggregator: AggregatorConfig{
			Window:      aggregator.DefaultWindow,
			Mode:        string(aggregator.ModePerWindow),
			Concurrency: aggregator.DefaultConcurrency,
			Embedded:    true,
		},
		Ingest: IngestConfig{
			Window: 150 * time.Millisecond,
			URL:    "http://localhost:3000",
		},
		Fetchers: FetchersConfig{
			DexScreener: DexScreenerConfig{
				Interval: 8 * time.Second,
			},
			Jupiter: JupiterConfig{
				Interval: 10 * time.Second,
			},
			HTTP: FetchHTTPConfig{
				Timeout:    10 * time.Second,
				MaxRetries: 4,
				RetryDelay: 300 * time.Millisecond,
			},
		},
	}
}

// Load reads the .env file (if present), the YAML file at path (if path is
// non-empty) over Default(), applies environment overrides and validates.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str("HTTP_ADDR", &c.HTTP.Addr)
	str("LOG_LEVEL", &c.Log.Level)
	str("STORE_BACKEND", &c.Store.Backend)
	str("BUS_BACKEND", &c.Bus.Backend)
	str("REDIS_URL", &c.Store.RedisURL)
	str("REDIS_URL", &c.Bus.RedisURL)
	str("POSTGRES_DSN", &c.Store.PostgresDSN)
	str("CLICKHOUSE_DSN", &c.Store.ClickHouseDSN)
	str("INGEST_URL", &c.Ingest.URL)

	if v, ok := lookup("FETCH_INTERVAL"); ok && strings.TrimSpace(v) != "" {
		d, err := parseInterval(v)
		if err != nil {
			return fmt.Errorf("FETCH_INTERVAL: %w", err)
		}
		c.Fetchers.DexScreener.Interval = d
	}
	return nil
}

// parseInterval accepts a Go duration or a bare number of milliseconds.
func parseInterval(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(v)
}

// Validate checks backends, windows and field names.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreMemory:
	case StoreRedis:
		if c.Store.RedisURL == "" {
			return errors.New("store.redis_url is required for the redis backend")
		}
	case StorePostgres:
		if c.Store.PostgresDSN == "" {
			return errors.New("store.postgres_dsn is required for the postgres backend")
		}
	case StoreClickHouse:
		if c.Store.ClickHouseDSN == "" {
			return errors.New("store.clickhouse_dsn is required for the clickhouse backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	switch c.Bus.Backend {
	case BusMemory:
	case BusRedis:
		if c.Bus.RedisURL == "" {
			return errors.New("bus.redis_url is required for the redis bus")
		}
	default:
		return fmt.Errorf("unknown bus backend %q", c.Bus.Backend)
	}

	if c.Aggregator.Window <= 0 {
		return fmt.Errorf("aggregator.window must be greater than 0")
	}
	if c.Ingest.Window <= 0 {
		return fmt.Errorf("ingest.window must be greater than 0")
	}
	if _, err := aggregator.ParseMode(c.Aggregator.Mode); err != nil {
		return fmt.Errorf("aggregator.mode: %w", err)
	}
	if _, err := c.Thresholds(); err != nil {
		return err
	}
	if _, err := c.Priorities(); err != nil {
		return err
	}
	if c.Fetchers.DexScreener.Enabled && c.Fetchers.DexScreener.Interval <= 0 {
		return fmt.Errorf("fetchers.dexscreener.interval must be greater than 0")
	}
	if c.Fetchers.Jupiter.Enabled && c.Fetchers.Jupiter.Interval <= 0 {
		return fmt.Errorf("fetchers.jupiter.interval must be greater than 0")
	}
	return nil
}

// Thresholds returns the configured noise thresholds layered over
// reconcile.DefaultThresholds().
func (c *Config) Thresholds() (reconcile.Thresholds, error) {
	th := reconcile.DefaultThresholds()
	for name, v := range c.Aggregator.Thresholds.Floor {
		f, err := numericField(name)
		if err != nil {
			return th, fmt.Errorf("aggregator.thresholds.floor: %w", err)
		}
		th.Floor[f] = v
	}
	for name, v := range c.Aggregator.Thresholds.MinDelta {
		f, err := numericField(name)
		if err != nil {
			return th, fmt.Errorf("aggregator.thresholds.min_delta: %w", err)
		}
		th.MinDelta[f] = v
	}
	return th, nil
}

// Priorities returns the source priority table with configured per-field
// overrides applied. The key "metadata" sets the metadata order.
func (c *Config) Priorities() (reconcile.Priorities, error) {
	def := reconcile.DefaultPriorities
	p := reconcile.Priorities{
		Metrics:  make(map[domain.Field][]string, len(def.Metrics)),
		Metadata: append([]string(nil), def.Metadata...),
	}
	for f, srcs := range def.Metrics {
		p.Metrics[f] = append([]string(nil), srcs...)
	}

	for name, srcs := range c.Aggregator.Priorities {
		canonical := make([]string, 0, len(srcs))
		for _, s := range srcs {
			canonical = append(canonical, domain.CanonicalSource(s))
		}
		if name == "metadata" {
			p.Metadata = canonical
			continue
		}
		f, err := numericField(name)
		if err != nil {
			return p, fmt.Errorf("aggregator.priorities: %w", err)
		}
		p.Metrics[f] = canonical
	}
	return p, nil
}

func numericField(name string) (domain.Field, error) {
	f := domain.Field(name)
	if !f.IsNumeric() {
		return "", fmt.Errorf("unknown numeric field %q", name)
	}
	return f, nil
}
