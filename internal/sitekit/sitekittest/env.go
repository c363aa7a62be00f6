// Package sitekittest builds a fully wired sitekit.Env for scraper tests
// running against httptest servers.
package sitekittest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/pagecrawl/internal/cache/memory"
	collyfetcher "github.com/JakeFAU/pagecrawl/internal/fetcher/colly"
	"github.com/JakeFAU/pagecrawl/internal/fetcher/download"
	"github.com/JakeFAU/pagecrawl/internal/offload"
	"github.com/JakeFAU/pagecrawl/internal/orchestrator"
	"github.com/JakeFAU/pagecrawl/internal/policy/ratelimit"
	"github.com/JakeFAU/pagecrawl/internal/retry"
	"github.com/JakeFAU/pagecrawl/internal/sitekit"
)

// NewEnv returns an Env with an in-memory cache, no request spacing and
// immediate retries. Files land in outDir.
func NewEnv(t testing.TB, outDir string) *sitekit.Env {
	t.Helper()

	logger := zaptest.NewLogger(t)
	limiter := ratelimit.New(ratelimit.Config{Default: ratelimit.NoWait()})
	client, err := sitekit.NewClient(sitekit.Config{
		Cache:   memory.New(),
		Waiter:  limiter,
		Fetcher: collyfetcher.New(collyfetcher.Config{Timeout: 5 * time.Second}),
		Retry:   retry.Policy{Name: "test", MaxAttempts: 2, Backoff: retry.Immediate},
		Logger:  logger,
	})
	require.NoError(t, err)

	pool := offload.New(2, logger)
	t.Cleanup(pool.Close)

	return &sitekit.Env{
		Client:       client,
		Downloader:   download.New(download.Config{Waiter: limiter, Logger: logger}),
		Orchestrator: orchestrator.New(orchestrator.Config{Pool: pool, Logger: logger}),
		OutDir:       outDir,
		QueueSize:    3,
		Logger:       logger,
	}
}
