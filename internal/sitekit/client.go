// Package sitekit bundles the collaborators every site scraper needs: a
// cache-first page client, the downloader and the orchestrator.
package sitekit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagecrawl/internal/cache"
	collyfetcher "github.com/JakeFAU/pagecrawl/internal/fetcher/colly"
	"github.com/JakeFAU/pagecrawl/internal/ledger"
	"github.com/JakeFAU/pagecrawl/internal/retry"
)

// ErrRedirected is returned when a request that must not redirect did.
var ErrRedirected = errors.New("redirected away from requested endpoint")

// Fetcher performs network requests.
type Fetcher interface {
	Fetch(ctx context.Context, req collyfetcher.Request) (collyfetcher.Response, error)
}

// Waiter paces requests per host.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Recorder receives a ledger row per network fetch.
type Recorder interface {
	Record(ctx context.Context, rec ledger.Record) error
}

// Config wires a Client.
type Config struct {
	Cache   cache.Cache
	Waiter  Waiter
	Fetcher Fetcher
	Retry   retry.Policy
	// Recorder is optional.
	Recorder Recorder
	Logger   *zap.Logger
}

// Request describes a page to load.
type Request struct {
	URL string
	// CacheURL names the cache entry; it defaults to URL. Form posts use a
	// pseudo URL that includes the form fields.
	CacheURL    string
	Form        url.Values
	FormCharset string
	Charset     string
	Headers     http.Header
	// RejectRedirect fails permanently, without caching, when the final URL
	// differs from URL.
	RejectRedirect bool
	// RequireMeta ignores cached content that has no metadata.
	RequireMeta bool
}

// Page is a loaded page.
type Page struct {
	Body     string
	FinalURL string
	Status   int
	Cached   bool
}

// Client loads pages cache-first; misses are rate limited, retried and
// written back to the cache.
type Client struct {
	cfg    Config
	logger *zap.Logger
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config) (*Client, error) {
	switch {
	case cfg.Cache == nil:
		return nil, fmt.Errorf("sitekit: cache is required")
	case cfg.Waiter == nil:
		return nil, fmt.Errorf("sitekit: waiter is required")
	case cfg.Fetcher == nil:
		return nil, fmt.Errorf("sitekit: fetcher is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Retry.Logger == nil {
		cfg.Retry.Logger = logger
	}
	return &Client{cfg: cfg, logger: logger}, nil
}

// Get loads rawURL.
func (c *Client) Get(ctx context.Context, rawURL string) (Page, error) {
	return c.Do(ctx, Request{URL: rawURL})
}

// Do loads req, consulting the cache first.
func (c *Client) Do(ctx context.Context, req Request) (Page, error) {
	cacheURL := req.CacheURL
	if cacheURL == "" {
		cacheURL = req.URL
	}
	key := cache.KeyForURL(cacheURL, ".html")

	entry, ok, err := c.cfg.Cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}
	if ok && (!req.RequireMeta || entry.Meta != nil) {
		page := Page{Body: string(entry.Content), FinalURL: cacheURL, Cached: true}
		if entry.Meta != nil {
			page.Status = entry.Meta.Status
			if entry.Meta.RealURL != "" {
				page.FinalURL = entry.Meta.RealURL
			}
		}
		c.logger.Debug("use cache", zap.String("url", cacheURL))
		return page, nil
	}

	policy := c.cfg.Retry
	if policy.Name == "" {
		policy.Name = "fetch"
	}
	resp, err := retry.Do(ctx, policy, func(ctx context.Context) (collyfetcher.Response, error) {
		if err := c.cfg.Waiter.Wait(ctx, cacheURL); err != nil {
			return collyfetcher.Response{}, err
		}
		c.logger.Info("fetching", zap.String("url", cacheURL))
		resp, err := c.cfg.Fetcher.Fetch(ctx, collyfetcher.Request{
			URL:         req.URL,
			Form:        req.Form,
			FormCharset: req.FormCharset,
			Charset:     req.Charset,
			Headers:     req.Headers,
		})
		if err != nil {
			return resp, err
		}
		if req.RejectRedirect && resp.URL != req.URL {
			return resp, retry.Permanent(fmt.Errorf("%w: %s", ErrRedirected, resp.URL))
		}
		return resp, nil
	})
	if err != nil {
		return Page{}, fmt.Errorf("load %s: %w", cacheURL, err)
	}

	meta := &cache.Meta{Status: resp.StatusCode, RealURL: resp.URL}
	if err := c.cfg.Cache.Set(ctx, key, resp.Body, meta); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	if c.cfg.Recorder != nil {
		if err := c.cfg.Recorder.Record(ctx, ledger.Record{
			Kind:       ledger.KindPage,
			URL:        cacheURL,
			FinalURL:   resp.URL,
			StatusCode: resp.StatusCode,
			Bytes:      int64(len(resp.Body)),
			Location:   key,
			Duration:   resp.Duration,
		}); err != nil {
			c.logger.Warn("failed to record retrieval", zap.String("url", cacheURL), zap.Error(err))
		}
	}
	return Page{Body: string(resp.Body), FinalURL: resp.URL, Status: resp.StatusCode}, nil
}
