// Package anicobin scrapes picture posts from anicobin.ldblog.jp list pages.
package anicobin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagecrawl/internal/orchestrator"
	"github.com/JakeFAU/pagecrawl/internal/sitekit"
)

const (
	// TagImage is the background tag for picture downloads.
	TagImage = "dlimage"
	lastPage = 1000
)

// Collect walks the list pages of baseURL (?p=1, ?p=2, ...) and downloads
// every picture of every post. Paging stops at the first list page whose
// posts contain no pictures.
func Collect(ctx context.Context, env *sitekit.Env, baseURL string) error {
	if err := env.Validate(); err != nil {
		return err
	}
	logger := env.Logger.Named("anicobin")
	o := env.Orchestrator

	_, err := o.Paging(ctx, "anicobin", 1, lastPage, env.QueueSize, func(ctx context.Context, page int) bool {
		listURL := fmt.Sprintf("%s?p=%d", baseURL, page)
		logger.Info("page", zap.Int("page", page))
		list, err := env.Client.Get(ctx, listURL)
		if err != nil {
			logger.Error("list page failed", zap.String("url", listURL), zap.Error(err))
			return false
		}
		posts, err := orchestrator.Offload(ctx, o, func() ([]string, error) {
			return ParsePostURLs(list.FinalURL, list.Body)
		})
		if err != nil {
			logger.Error("parse list page", zap.String("url", listURL), zap.Error(err))
			return false
		}

		pictures := 0
		for _, postURL := range posts {
			post, err := env.Client.Get(ctx, postURL)
			if err != nil {
				logger.Warn("post page failed", zap.String("url", postURL), zap.Error(err))
				continue
			}
			urls, err := ParsePictureURLs(post.FinalURL, post.Body)
			if err != nil {
				logger.Warn("parse post page", zap.String("url", postURL), zap.Error(err))
				continue
			}
			for _, u := range urls {
				dest := env.FilePath(u)
				if _, err := os.Stat(dest); err == nil {
					continue
				} else if !errors.Is(err, fs.ErrNotExist) {
					logger.Warn("stat picture", zap.String("path", dest), zap.Error(err))
					continue
				}
				if err := o.Submit(ctx, TagImage, env.DownloadTask(u, dest)); err != nil {
					logger.Warn("queue picture", zap.String("url", u), zap.Error(err))
					return false
				}
			}
			pictures += len(urls)
		}
		return pictures > 0
	})
	if err != nil {
		return fmt.Errorf("anicobin: %w", err)
	}
	return nil
}
