package sitekit

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagecrawl/internal/backpressure"
	"github.com/JakeFAU/pagecrawl/internal/cache"
	"github.com/JakeFAU/pagecrawl/internal/fetcher/download"
	"github.com/JakeFAU/pagecrawl/internal/orchestrator"
)

// Downloader saves remote files.
type Downloader interface {
	Download(ctx context.Context, rawURL, dest string, headers http.Header) (download.Result, error)
}

// Env is what a site scraper runs against.
type Env struct {
	Client       *Client
	Downloader   Downloader
	Orchestrator *orchestrator.Orchestrator
	// OutDir receives downloaded files and their JSON side data.
	OutDir string
	// QueueSize is the page concurrency for top-level paging sessions.
	QueueSize int
	UserAgent string
	Logger    *zap.Logger
}

// Validate checks that the required collaborators are set.
func (e *Env) Validate() error {
	switch {
	case e == nil:
		return fmt.Errorf("sitekit: env is nil")
	case e.Client == nil:
		return fmt.Errorf("sitekit: client is required")
	case e.Downloader == nil:
		return fmt.Errorf("sitekit: downloader is required")
	case e.Orchestrator == nil:
		return fmt.Errorf("sitekit: orchestrator is required")
	case e.OutDir == "":
		return fmt.Errorf("sitekit: output directory is required")
	}
	if e.QueueSize <= 0 {
		e.QueueSize = 3
	}
	if e.Logger == nil {
		e.Logger = zap.NewNop()
	}
	return nil
}

// FilePath maps a remote URL to its file under OutDir.
func (e *Env) FilePath(rawURL string) string {
	return filepath.Join(e.OutDir, cache.KeyForURL(rawURL, ""))
}

// DownloadTask returns a background task that saves rawURL to dest. Failures
// are returned for the orchestrator to log; they never stop the paging
// session.
func (e *Env) DownloadTask(rawURL, dest string) backpressure.Task {
	return func(ctx context.Context) error {
		headers := http.Header{}
		if e.UserAgent != "" {
			headers.Set("User-Agent", e.UserAgent)
		}
		res, err := e.Downloader.Download(ctx, rawURL, dest, headers)
		if err != nil {
			return err
		}
		if res.Skipped {
			e.Logger.Debug("already downloaded", zap.String("path", dest))
		}
		return nil
	}
}
