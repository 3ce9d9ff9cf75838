// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Headless   HeadlessConfig   `mapstructure:"headless"`
	Segmenter  SegmenterConfig  `mapstructure:"segmenter"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Generation GenerationConfig `mapstructure:"generation"`
	Index      IndexConfig      `mapstructure:"index"`
	Store      StoreConfig      `mapstructure:"store"`
	Locks      LockConfig       `mapstructure:"locks"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Watchdog   WatchdogConfig   `mapstructure:"watchdog"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Events     EventsConfig     `mapstructure:"events"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// CrawlerConfig governs fetch and traversal behavior.
type CrawlerConfig struct {
	UserAgent         string `mapstructure:"user_agent"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
	MaxRetries        int    `mapstructure:"max_retries"`
	PolitenessDelayMs int    `mapstructure:"politeness_delay_ms"`
	MaxPagesLimit     int    `mapstructure:"max_pages_limit"`
	MaxDepthLimit     int    `mapstructure:"max_depth_limit"`
}

// HeadlessConfig configures the optional headless rendering fallback.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
	MinBodyBytes  int  `mapstructure:"min_body_bytes"`
}

// SegmenterConfig bounds chunk construction.
type SegmenterConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
}

// EmbeddingConfig selects and parameterizes the embedding provider.
type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider"`
	Model     string `mapstructure:"model"`
	APIKey    string `mapstructure:"api_key"`
	BaseURL   string `mapstructure:"base_url"`
	Dimension int    `mapstructure:"dimension"`
}

// GenerationConfig selects and parameterizes the answer generator.
type GenerationConfig struct {
	Provider  string `mapstructure:"provider"`
	Model     string `mapstructure:"model"`
	APIKey    string `mapstructure:"api_key"`
	MaxTokens int    `mapstructure:"max_tokens"`
	TopK      int    `mapstructure:"top_k"`
}

// IndexConfig sets vector index storage parameters.
type IndexConfig struct {
	Dir       string `mapstructure:"dir"`
	BatchSize int    `mapstructure:"batch_size"`
}

// StoreConfig controls the job store backend.
type StoreConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
}

// LockConfig controls the per-URL advisory lock.
type LockConfig struct {
	TTLSeconds int `mapstructure:"ttl_seconds"`
}

// PipelineConfig bounds job execution.
type PipelineConfig struct {
	Concurrency          int `mapstructure:"concurrency"`
	QueueDepth           int `mapstructure:"queue_depth"`
	SoftTimeLimitSeconds int `mapstructure:"soft_time_limit_seconds"`
	HardTimeLimitSeconds int `mapstructure:"hard_time_limit_seconds"`
}

// WatchdogConfig controls the stuck-job sweep.
type WatchdogConfig struct {
	IntervalSeconds  int `mapstructure:"interval_seconds"`
	ThresholdSeconds int `mapstructure:"threshold_seconds"`
}

// ArchiveConfig sets the raw-HTML archive backend.
type ArchiveConfig struct {
	Provider string `mapstructure:"provider"`
	BaseDir  string `mapstructure:"base_dir"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
}

// EventsConfig sets the job lifecycle event publisher.
type EventsConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("QUARRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("crawler.user_agent", "quarry-bot/0.1 (+https://github.com/quarrylabs/quarry)")
	v.SetDefault("crawler.timeout_seconds", 10)
	v.SetDefault("crawler.max_retries", 3)
	v.SetDefault("crawler.politeness_delay_ms", 100)
	v.SetDefault("crawler.max_pages_limit", 1000)
	v.SetDefault("crawler.max_depth_limit", 5)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.min_body_bytes", 512)
	v.SetDefault("segmenter.chunk_size", 500)
	v.SetDefault("segmenter.chunk_overlap", 50)
	v.SetDefault("embedding.provider", "hash")
	v.SetDefault("embedding.dimension", 384)
	v.SetDefault("generation.provider", "extractive")
	v.SetDefault("generation.max_tokens", 500)
	v.SetDefault("generation.top_k", 5)
	v.SetDefault("index.dir", "./.vector_store")
	v.SetDefault("index.batch_size", 1000)
	v.SetDefault("store.provider", "memory")
	v.SetDefault("locks.ttl_seconds", 300)
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("pipeline.queue_depth", 64)
	v.SetDefault("pipeline.soft_time_limit_seconds", 600)
	v.SetDefault("pipeline.hard_time_limit_seconds", 1200)
	v.SetDefault("watchdog.interval_seconds", 300)
	v.SetDefault("watchdog.threshold_seconds", 600)
	v.SetDefault("archive.provider", "noop")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("events.provider", "noop")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.timeout_seconds must be > 0")
	}
	if c.Crawler.MaxRetries < 0 {
		return fmt.Errorf("crawler.max_retries must be >= 0")
	}
	if c.Segmenter.ChunkSize <= 0 {
		return fmt.Errorf("segmenter.chunk_size must be > 0")
	}
	if c.Segmenter.ChunkOverlap < 0 || c.Segmenter.ChunkOverlap >= c.Segmenter.ChunkSize {
		return fmt.Errorf("segmenter.chunk_overlap must be in [0, chunk_size)")
	}
	switch c.Embedding.Provider {
	case "hash", "openai", "ollama":
	default:
		return fmt.Errorf("embedding.provider %q is not supported", c.Embedding.Provider)
	}
	switch c.Generation.Provider {
	case "extractive", "openai", "anthropic":
	default:
		return fmt.Errorf("generation.provider %q is not supported", c.Generation.Provider)
	}
	if c.Generation.TopK <= 0 {
		return fmt.Errorf("generation.top_k must be > 0")
	}
	switch c.Store.Provider {
	case "memory":
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set when store.provider is postgres")
		}
	default:
		return fmt.Errorf("store.provider %q is not supported", c.Store.Provider)
	}
	switch c.Archive.Provider {
	case "noop":
	case "local":
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir must be set when archive.provider is local")
		}
	case "gcs":
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket must be set when archive.provider is gcs")
		}
	default:
		return fmt.Errorf("archive.provider %q is not supported", c.Archive.Provider)
	}
	switch c.Events.Provider {
	case "noop":
	case "pubsub":
		if c.Events.ProjectID == "" || c.Events.Topic == "" {
			return fmt.Errorf("events.project_id and events.topic must be set when events.provider is pubsub")
		}
	default:
		return fmt.Errorf("events.provider %q is not supported", c.Events.Provider)
	}
	if c.Pipeline.Concurrency <= 0 {
		return fmt.Errorf("pipeline.concurrency must be > 0")
	}
	if c.Pipeline.SoftTimeLimitSeconds <= 0 || c.Pipeline.HardTimeLimitSeconds <= c.Pipeline.SoftTimeLimitSeconds {
		return fmt.Errorf("pipeline time limits must satisfy 0 < soft < hard")
	}
	if c.Watchdog.IntervalSeconds <= 0 || c.Watchdog.ThresholdSeconds <= 0 {
		return fmt.Errorf("watchdog interval and threshold must be > 0")
	}
	if c.Locks.TTLSeconds <= 0 {
		return fmt.Errorf("locks.ttl_seconds must be > 0")
	}
	if c.Index.BatchSize <= 0 {
		return fmt.Errorf("index.batch_size must be > 0")
	}
	return nil
}

// FetchTimeout returns the per-request HTTP timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}

// PolitenessDelay returns the pause between page fetches.
func (c Config) PolitenessDelay() time.Duration {
	return time.Duration(c.Crawler.PolitenessDelayMs) * time.Millisecond
}

// LockTTL returns the advisory lock lifetime for one crawl attempt.
func (c Config) LockTTL() time.Duration {
	return time.Duration(c.Locks.TTLSeconds) * time.Second
}

// SoftTimeLimit returns the graceful per-job execution budget.
func (c Config) SoftTimeLimit() time.Duration {
	return time.Duration(c.Pipeline.SoftTimeLimitSeconds) * time.Second
}

// HardTimeLimit returns the forced per-job termination bound.
func (c Config) HardTimeLimit() time.Duration {
	return time.Duration(c.Pipeline.HardTimeLimitSeconds) * time.Second
}

// WatchdogInterval returns how often the stuck-job sweep runs.
func (c Config) WatchdogInterval() time.Duration {
	return time.Duration(c.Watchdog.IntervalSeconds) * time.Second
}

// WatchdogThreshold returns how long a heartbeat may be silent before a
// job counts as stuck.
func (c Config) WatchdogThreshold() time.Duration {
	return time.Duration(c.Watchdog.ThresholdSeconds) * time.Second
}
