package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pagecrawl/internal/retry"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Crawler.QueueSize)
	require.Equal(t, []string{"10"}, cfg.Crawler.Wait)
	require.Equal(t, "wait.json", cfg.Crawler.Waitlist)
	require.Equal(t, 20, cfg.Crawler.TagCapacity)
	require.Equal(t, BackendFS, cfg.Cache.Backend)
	require.Equal(t, 30*time.Second, cfg.Timeout())
	require.Equal(t, retry.Policy{
		Name:         "fetch",
		MaxAttempts:  3,
		Backoff:      retry.Exponential,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}, cfg.RetryPolicy())
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
crawler:
  queue_size: 5
  user_agent: real-agent
  wait: ["random", "1", "2.5"]
  out_dir: /data/out
  tag_capacity: 8
  max_rps: 4
http:
  timeout_seconds: 45
  max_retries: 5
  backoff: fixed
  backoff_initial_ms: 100
cache:
  backend: redis
  redis_addr: localhost:6379
  ttl_hours: 24
pubsub:
  project_id: proj
  topic_name: retrievals
logging:
  development: false
  handler: /usr/local/bin/notify
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)
	require.Equal(t, 5, cfg.Crawler.QueueSize)
	require.Equal(t, "real-agent", cfg.Crawler.UserAgent)
	require.Equal(t, []string{"random", "1", "2.5"}, cfg.Crawler.Wait)
	require.Equal(t, "/data/out", cfg.Crawler.OutDir)
	require.InDelta(t, 4.0, cfg.Crawler.MaxRPS, 0.001)
	require.Equal(t, retry.Fixed, cfg.RetryPolicy().Backoff)
	require.Equal(t, 5, cfg.RetryPolicy().MaxAttempts)
	require.Equal(t, 24*time.Hour, cfg.CacheTTL())
	require.Equal(t, "retrievals", cfg.PubSub.TopicName)
	require.False(t, cfg.Logging.Development)
	require.Equal(t, "error", cfg.Logging.HandlerLevel)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(NewViper(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base, err := Load(NewViper(), "")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"queue size", func(c *Config) { c.Crawler.QueueSize = 0 }, "crawler.queue_size"},
		{"tag capacity", func(c *Config) { c.Crawler.TagCapacity = -1 }, "crawler.tag_capacity"},
		{"negative rps", func(c *Config) { c.Crawler.MaxRPS = -1 }, "crawler.max_rps"},
		{"bad wait", func(c *Config) { c.Crawler.Wait = []string{"random", "5", "1"} }, "crawler.wait"},
		{"timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, "http.timeout_seconds"},
		{"retries", func(c *Config) { c.HTTP.MaxRetries = 0 }, "http.max_retries"},
		{"backoff", func(c *Config) { c.HTTP.Backoff = "sometimes" }, "http.backoff"},
		{"backend", func(c *Config) { c.Cache.Backend = "s3" }, "cache.backend"},
		{"gcs bucket", func(c *Config) { c.Cache.Backend = BackendGCS }, "cache.gcs_bucket"},
		{"redis addr", func(c *Config) { c.Cache.Backend = BackendRedis }, "cache.redis_addr"},
		{"fs dir", func(c *Config) { c.Crawler.CacheDir = "" }, "crawler.cache_dir"},
		{"pubsub pair", func(c *Config) { c.PubSub.ProjectID = "proj" }, "pubsub.project_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			cfg.Crawler.Wait = append([]string(nil), base.Crawler.Wait...)
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
