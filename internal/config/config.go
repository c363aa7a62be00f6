// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/pagecrawl/internal/policy/ratelimit"
	"github.com/JakeFAU/pagecrawl/internal/retry"
)

// EnvPrefix prefixes every environment override, e.g. PAGECRAWL_HTTP_MAX_RETRIES.
const EnvPrefix = "PAGECRAWL"

// Cache backends.
const (
	BackendFS     = "fs"
	BackendMemory = "memory"
	BackendGCS    = "gcs"
	BackendRedis  = "redis"
)

// Config captures all knobs loaded via Viper.
type Config struct {
	Crawler CrawlerConfig `mapstructure:"crawler"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Cache   CacheConfig   `mapstructure:"cache"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// CrawlerConfig governs paging, request spacing and background tasks.
type CrawlerConfig struct {
	QueueSize      int      `mapstructure:"queue_size"`
	UserAgent      string   `mapstructure:"user_agent"`
	Wait           []string `mapstructure:"wait"`
	Waitlist       string   `mapstructure:"waitlist"`
	OutDir         string   `mapstructure:"out_dir"`
	CacheDir       string   `mapstructure:"cache_dir"`
	RespectRobots  bool     `mapstructure:"respect_robots"`
	TagCapacity    int      `mapstructure:"tag_capacity"`
	MaxTags        int      `mapstructure:"max_tags"`
	OffloadWorkers int      `mapstructure:"offload_workers"`
	MaxRPS         float64  `mapstructure:"max_rps"`
}

// HTTPConfig configures fetch timeouts and retry behavior.
type HTTPConfig struct {
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	Backoff          string `mapstructure:"backoff"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
	DownloadParallel int    `mapstructure:"download_parallel"`
}

// CacheConfig selects where fetched pages are kept.
type CacheConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
	RedisAddr string `mapstructure:"redis_addr"`
	TTLHours  int    `mapstructure:"ttl_hours"`
}

// DBConfig enables the Postgres retrieval ledger when DSN is set.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig enables retrieval notifications when both fields are set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig starts the operator HTTP server when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features and the notification hook.
type LoggingConfig struct {
	Development  bool   `mapstructure:"development"`
	Level        string `mapstructure:"level"`
	Handler      string `mapstructure:"handler"`
	HandlerLevel string `mapstructure:"handler_level"`
}

// NewViper returns a Viper instance with defaults and environment overrides
// applied. Callers may bind flags to it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads the optional config file at path into v and decodes it.
func Load(v *viper.Viper, path string) (Config, error) {
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
	v.SetDefault("crawler.queue_size", 3)
	v.SetDefault("crawler.user_agent", "")
	v.SetDefault("crawler.wait", []string{"10"})
	v.SetDefault("crawler.waitlist", "wait.json")
	v.SetDefault("crawler.out_dir", "out")
	v.SetDefault("crawler.cache_dir", "cache")
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("crawler.tag_capacity", 20)
	v.SetDefault("crawler.max_tags", 64)
	v.SetDefault("crawler.offload_workers", 0)
	v.SetDefault("crawler.max_rps", 0)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff", "exponential")
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 5000)
	v.SetDefault("http.download_parallel", 2)
	v.SetDefault("cache.backend", BackendFS)
	v.SetDefault("cache.prefix", "pagecrawl")
	v.SetDefault("cache.ttl_hours", 0)
	v.SetDefault("db.table", "retrievals")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.handler_level", "error")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.QueueSize <= 0 {
		return errors.New("crawler.queue_size must be > 0")
	}
	if c.Crawler.TagCapacity <= 0 {
		return errors.New("crawler.tag_capacity must be > 0")
	}
	if c.Crawler.MaxRPS < 0 {
		return errors.New("crawler.max_rps must be >= 0")
	}
	if len(c.Crawler.Wait) > 0 {
		if _, err := ratelimit.ParsePolicy(c.Crawler.Wait...); err != nil {
			return fmt.Errorf("crawler.wait: %w", err)
		}
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return errors.New("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries <= 0 {
		return errors.New("http.max_retries must be > 0")
	}
	if _, err := retry.ParseBackoff(c.HTTP.Backoff); err != nil {
		return fmt.Errorf("http.backoff: %w", err)
	}
	switch c.Cache.Backend {
	case BackendFS:
		if c.Crawler.CacheDir == "" {
			return errors.New("crawler.cache_dir must be set for the fs cache")
		}
	case BackendMemory:
	case BackendGCS:
		if c.Cache.GCSBucket == "" {
			return errors.New("cache.gcs_bucket must be set for the gcs cache")
		}
	case BackendRedis:
		if c.Cache.RedisAddr == "" {
			return errors.New("cache.redis_addr must be set for the redis cache")
		}
	default:
		return fmt.Errorf("cache.backend %q is not one of fs, memory, gcs, redis", c.Cache.Backend)
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return errors.New("pubsub.project_id and pubsub.topic_name must be set together")
	}
	return nil
}

// Timeout is the per-request fetch timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RetryPolicy converts the http retry knobs into a retry.Policy.
func (c Config) RetryPolicy() retry.Policy {
	backoff, _ := retry.ParseBackoff(c.HTTP.Backoff)
	return retry.Policy{
		Name:         "fetch",
		MaxAttempts:  c.HTTP.MaxRetries,
		Backoff:      backoff,
		InitialDelay: time.Duration(c.HTTP.BackoffInitialMs) * time.Millisecond,
		MaxDelay:     time.Duration(c.HTTP.BackoffMaxMs) * time.Millisecond,
	}
}

// CacheTTL is how long remote cache entries live; zero keeps them forever.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}
