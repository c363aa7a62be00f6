// Package download streams remote files to disk.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/pagecrawl/internal/metrics"
)

// ErrStatus is wrapped by errors for non-200 responses.
var ErrStatus = errors.New("unexpected download status")

// Waiter paces requests; *ratelimit.Limiter satisfies it.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Result describes a finished download.
type Result struct {
	URL      string
	Path     string
	Bytes    int64
	Status   int
	Skipped  bool
	Duration time.Duration
}

// Observer is told about every completed download.
type Observer interface {
	Downloaded(ctx context.Context, result Result)
}

// Config controls the Downloader.
type Config struct {
	// Parallel bounds simultaneous transfers. Defaults to 2.
	Parallel  int
	UserAgent string
	Client    *http.Client
	Waiter    Waiter
	Observer  Observer
	Logger    *zap.Logger
}

// Downloader fetches URLs into files, skipping files that already exist.
type Downloader struct {
	client    *http.Client
	sem       *semaphore.Weighted
	userAgent string
	waiter    Waiter
	observer  Observer
	logger    *zap.Logger
}

// New builds a Downloader.
func New(cfg Config) *Downloader {
	parallel := cfg.Parallel
	if parallel <= 0 {
		parallel = 2
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{
		client:    client,
		sem:       semaphore.NewWeighted(int64(parallel)),
		userAgent: cfg.UserAgent,
		waiter:    cfg.Waiter,
		observer:  cfg.Observer,
		logger:    logger,
	}
}

// Download writes rawURL to dest. The body is streamed to dest+"~" and
// renamed into place only after a complete transfer. Non-200 responses are
// returned as ErrStatus and leave nothing on disk.
func (d *Downloader) Download(ctx context.Context, rawURL, dest string, headers http.Header) (Result, error) {
	result := Result{URL: rawURL, Path: dest}
	if _, err := os.Stat(dest); err == nil {
		result.Skipped = true
		return result, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return result, fmt.Errorf("stat %s: %w", dest, err)
	}

	if d.waiter != nil {
		if err := d.waiter.Wait(ctx, rawURL); err != nil {
			return result, fmt.Errorf("download %s: %w", rawURL, err)
		}
	}
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return result, fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer d.sem.Release(1)

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return result, fmt.Errorf("build request %s: %w", rawURL, err)
	}
	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if d.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		metrics.ObserveFetch(rawURL, 0, 0)
		return result, fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()
	result.Status = resp.StatusCode
	if resp.StatusCode != http.StatusOK {
		metrics.ObserveFetch(rawURL, resp.StatusCode, 0)
		return result, fmt.Errorf("%w: %d %s", ErrStatus, resp.StatusCode, rawURL)
	}

	d.logger.Info("downloading", zap.String("url", rawURL), zap.String("path", dest))
	n, err := writeStream(dest, resp.Body)
	if err != nil {
		return result, fmt.Errorf("download %s: %w", rawURL, err)
	}
	result.Bytes = n
	result.Duration = time.Since(start)
	metrics.ObserveFetch(rawURL, resp.StatusCode, n)
	if d.observer != nil {
		d.observer.Downloaded(ctx, result)
	}
	return result, nil
}

func writeStream(dest string, body io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return 0, fmt.Errorf("create parent directory: %w", err)
	}
	tmp := dest + "~"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) // #nosec G304 -- dest is chosen by the crawler.
	if err != nil {
		return 0, fmt.Errorf("open temp file: %w", err)
	}
	n, copyErr := io.Copy(f, body)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmp)
		if copyErr != nil {
			return n, fmt.Errorf("write body: %w", copyErr)
		}
		return n, fmt.Errorf("close temp file: %w", closeErr)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return n, fmt.Errorf("rename temp file: %w", err)
	}
	return n, nil
}
