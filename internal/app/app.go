// Package app initializes and holds the long-lived services of one crawl run,
// acting as a dependency injection container for the site scrapers.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagecrawl/internal/api"
	"github.com/JakeFAU/pagecrawl/internal/cache"
	fscache "github.com/JakeFAU/pagecrawl/internal/cache/fs"
	gcscache "github.com/JakeFAU/pagecrawl/internal/cache/gcs"
	"github.com/JakeFAU/pagecrawl/internal/cache/memory"
	rediscache "github.com/JakeFAU/pagecrawl/internal/cache/redis"
	"github.com/JakeFAU/pagecrawl/internal/clock/system"
	"github.com/JakeFAU/pagecrawl/internal/config"
	collyfetcher "github.com/JakeFAU/pagecrawl/internal/fetcher/colly"
	"github.com/JakeFAU/pagecrawl/internal/fetcher/download"
	"github.com/JakeFAU/pagecrawl/internal/id/uuid"
	"github.com/JakeFAU/pagecrawl/internal/ledger"
	"github.com/JakeFAU/pagecrawl/internal/offload"
	"github.com/JakeFAU/pagecrawl/internal/orchestrator"
	"github.com/JakeFAU/pagecrawl/internal/policy/ratelimit"
	pubsubpublisher "github.com/JakeFAU/pagecrawl/internal/publisher/pubsub"
	"github.com/JakeFAU/pagecrawl/internal/sitekit"
	"github.com/JakeFAU/pagecrawl/internal/storage/postgres"
)

// Option overrides a dependency that New would otherwise build from config.
type Option func(*options)

type options struct {
	cache     cache.Cache
	store     ledger.Store
	publisher ledger.Publisher
}

// WithCache replaces the configured cache backend.
func WithCache(c cache.Cache) Option {
	return func(o *options) { o.cache = c }
}

// WithLedgerStore replaces the Postgres retrieval store.
func WithLedgerStore(s ledger.Store) Option {
	return func(o *options) { o.store = s }
}

// WithPublisher replaces the Pub/Sub publisher.
func WithPublisher(p ledger.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// App holds everything a site scraper needs for one run.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	sessionID string
	env       *sitekit.Env
	server    *api.Server
	pool      *offload.Pool
	closers   []func() error
}

// New builds the services for a crawl of site. It fails fast when a
// configured backend cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, site string, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	sessionID, err := uuid.New().NewID()
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	logger = logger.With(zap.String("session_id", sessionID), zap.String("site", site))
	a := &App{cfg: cfg, logger: logger, sessionID: sessionID}

	if err := os.MkdirAll(cfg.Crawler.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	if o.cache == nil {
		if o.cache, err = a.buildCache(ctx); err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	limiterCfg, err := ratelimit.ConfigFromArgs(cfg.Crawler.Wait, cfg.Crawler.Waitlist)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("wait policy: %w", err)
	}
	limiterCfg.MaxRPS = cfg.Crawler.MaxRPS
	limiterCfg.Logger = logger
	limiter := ratelimit.New(limiterCfg)

	recorder, err := a.buildLedger(ctx, site, o)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	clientCfg := sitekit.Config{
		Cache:  o.cache,
		Waiter: limiter,
		Fetcher: collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.Crawler.UserAgent,
			RespectRobots: cfg.Crawler.RespectRobots,
			Timeout:       cfg.Timeout(),
			Logger:        logger,
		}),
		Retry:  cfg.RetryPolicy(),
		Logger: logger,
	}
	downloadCfg := download.Config{
		Parallel:  cfg.HTTP.DownloadParallel,
		UserAgent: cfg.Crawler.UserAgent,
		Waiter:    limiter,
		Logger:    logger,
	}
	if recorder != nil {
		clientCfg.Recorder = recorder
		downloadCfg.Observer = recorder
	}
	client, err := sitekit.NewClient(clientCfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.pool = offload.New(cfg.Crawler.OffloadWorkers, logger)
	a.env = &sitekit.Env{
		Client:     client,
		Downloader: download.New(downloadCfg),
		Orchestrator: orchestrator.New(orchestrator.Config{
			TagCapacity: cfg.Crawler.TagCapacity,
			MaxTags:     cfg.Crawler.MaxTags,
			Pool:        a.pool,
			Logger:      logger,
		}),
		OutDir:    cfg.Crawler.OutDir,
		QueueSize: cfg.Crawler.QueueSize,
		UserAgent: cfg.Crawler.UserAgent,
		Logger:    logger,
	}
	if err := a.env.Validate(); err != nil {
		_ = a.Close()
		return nil, err
	}
	if cfg.Metrics.Addr != "" {
		a.server = api.NewServer(a.env.Orchestrator, logger)
	}
	logger.Info("application services initialized",
		zap.String("cache", cfg.Cache.Backend),
		zap.Bool("ledger", recorder != nil),
	)
	return a, nil
}

func (a *App) buildCache(ctx context.Context) (cache.Cache, error) {
	cfg := a.cfg
	switch cfg.Cache.Backend {
	case config.BackendMemory:
		return memory.New(), nil
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		a.logger.Info("using gcs cache", zap.String("bucket", cfg.Cache.GCSBucket))
		return gcscache.New(client, gcscache.Config{Bucket: cfg.Cache.GCSBucket, Prefix: cfg.Cache.Prefix})
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		a.closers = append(a.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping %s: %w", cfg.Cache.RedisAddr, err)
		}
		a.logger.Info("using redis cache", zap.String("addr", cfg.Cache.RedisAddr))
		return rediscache.New(client, rediscache.Config{Prefix: cfg.Cache.Prefix + ":", TTL: cfg.CacheTTL()})
	default:
		store, err := fscache.New(fscache.Config{Dir: cfg.Crawler.CacheDir})
		if err != nil {
			return nil, fmt.Errorf("fs cache: %w", err)
		}
		return store, nil
	}
}

// buildLedger returns nil when neither Postgres nor Pub/Sub is configured.
func (a *App) buildLedger(ctx context.Context, site string, o options) (*ledger.Ledger, error) {
	cfg := a.cfg
	if o.store == nil && cfg.DB.DSN != "" {
		store, err := postgres.NewRetrievalStore(ctx, postgres.RetrievalStoreConfig{
			DSN:      cfg.DB.DSN,
			Table:    cfg.DB.Table,
			MaxConns: cfg.DB.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("retrieval store: %w", err)
		}
		a.closers = append(a.closers, func() error { store.Close(); return nil })
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		o.store = store
	}
	if o.publisher == nil && cfg.PubSub.ProjectID != "" {
		pub, err := pubsubpublisher.Dial(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub: %w", err)
		}
		a.closers = append(a.closers, pub.Close)
		o.publisher = pub
	}
	if o.store == nil && o.publisher == nil {
		return nil, nil
	}

	topic := cfg.PubSub.TopicName
	if topic == "" && o.publisher != nil {
		topic = "retrievals"
	}
	l, err := ledger.New(ledger.Config{
		SessionID: a.sessionID,
		Site:      site,
		Store:     o.store,
		Publisher: o.publisher,
		Topic:     topic,
		IDs:       uuid.New(),
		Clock:     system.New(),
		Logger:    a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	return l, nil
}

// Env returns the scraper environment.
func (a *App) Env() *sitekit.Env { return a.env }

// Logger returns the session logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// SessionID identifies this run in logs and ledger rows.
func (a *App) SessionID() string { return a.sessionID }

// Run executes root under the orchestrator, serving the operator API for the
// duration when metrics.addr is configured.
func (a *App) Run(ctx context.Context, root func(ctx context.Context, env *sitekit.Env) error) error {
	var serveErr chan error
	if a.server != nil {
		serveCtx, stop := context.WithCancel(ctx)
		defer stop()
		serveErr = make(chan error, 1)
		go func() { serveErr <- a.server.Serve(serveCtx, a.cfg.Metrics.Addr) }()
		a.server.SetReady(true)
		defer func() {
			stop()
			if err := <-serveErr; err != nil {
				a.logger.Warn("operator server stopped", zap.Error(err))
			}
		}()
	}

	err := a.env.Orchestrator.Run(ctx, func(ctx context.Context) error {
		return root(ctx, a.env)
	})
	if a.server != nil {
		a.server.SetReady(false)
	}
	if err != nil {
		return fmt.Errorf("crawl: %w", err)
	}
	a.logger.Info("crawl finished")
	return nil
}

// Close releases every backend client. It is safe to call more than once.
func (a *App) Close() error {
	var errs []error
	if a.pool != nil {
		a.pool.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error closing services", zap.Error(err))
		return err
	}
	return nil
}
