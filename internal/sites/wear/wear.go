// Package wear scrapes outfit galleries from wear.jp. User list pages fan out
// into one background gallery session per user; each gallery page saves snap
// metadata and queues the image downloads.
package wear

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"go.uber.org/zap"

	fscache "github.com/JakeFAU/pagecrawl/internal/cache/fs"
	"github.com/JakeFAU/pagecrawl/internal/orchestrator"
	"github.com/JakeFAU/pagecrawl/internal/sitekit"
)

const (
	// TagGallery is the background tag for per-user gallery sessions.
	TagGallery = "gallery"
	// TagImage is the background tag for image downloads.
	TagImage = "image"

	galleryFirstPage   = 1
	galleryLastPage    = 501
	galleryConcurrency = 2
)

// load fetches url?pageno=n. ok is false when a page after the first was
// redirected to a URL without a page number, which is how the site signals
// the end of a listing.
func load(ctx context.Context, env *sitekit.Env, rawURL string, n int) (sitekit.Page, bool, error) {
	page, err := env.Client.Do(ctx, sitekit.Request{
		URL:         fmt.Sprintf("%s?pageno=%d", rawURL, n),
		RequireMeta: true,
	})
	if err != nil {
		return page, false, err
	}
	if n >= 2 && !strings.Contains(page.FinalURL, "?pageno") {
		return page, false, nil
	}
	return page, true, nil
}

// CollectUsers walks the user list pages of listURL from pageStart to
// pageEnd and starts a gallery session for every user found.
func CollectUsers(ctx context.Context, env *sitekit.Env, listURL string, pageStart, pageEnd int) error {
	if err := env.Validate(); err != nil {
		return err
	}
	logger := env.Logger.Named("wear")
	o := env.Orchestrator

	_, err := o.Paging(ctx, "wear-users", pageStart, pageEnd, env.QueueSize, func(ctx context.Context, n int) bool {
		page, ok, err := load(ctx, env, listURL, n)
		if err != nil {
			logger.Error("user page failed", zap.Int("page", n), zap.Error(err))
			return false
		}
		if !ok {
			return false
		}
		users, err := orchestrator.Offload(ctx, o, func() ([]UserLink, error) {
			return ParseUsers(page.FinalURL, page.Body)
		})
		if err != nil {
			logger.Error("parse user page", zap.Int("page", n), zap.Error(err))
			return false
		}
		for _, u := range users {
			user := u.User
			galleryURL := u.URL
			err := o.Submit(ctx, TagGallery, func(ctx context.Context) error {
				return CollectGallery(ctx, env, galleryURL, &user)
			})
			if err != nil {
				logger.Warn("queue gallery", zap.String("url", galleryURL), zap.Error(err))
				return false
			}
		}
		return true
	})
	if err != nil {
		return fmt.Errorf("wear users: %w", err)
	}
	return nil
}

// CollectGallery walks the gallery pages of one user.
func CollectGallery(ctx context.Context, env *sitekit.Env, galleryURL string, user *User) error {
	if err := env.Validate(); err != nil {
		return err
	}
	logger := env.Logger.Named("wear").With(zap.String("gallery", galleryURL))
	o := env.Orchestrator

	_, err := o.Paging(ctx, "wear-gallery", galleryFirstPage, galleryLastPage, galleryConcurrency, func(ctx context.Context, n int) bool {
		page, ok, err := load(ctx, env, galleryURL, n)
		if err != nil {
			logger.Error("gallery page failed", zap.Int("page", n), zap.Error(err))
			return false
		}
		if !ok {
			return false
		}
		snaps, err := orchestrator.Offload(ctx, o, func() ([]Snap, error) {
			return ParseGallery(page.FinalURL, page.Body, user)
		})
		if err != nil {
			logger.Error("parse gallery page", zap.Int("page", n), zap.Error(err))
			return false
		}
		for _, snap := range snaps {
			dest := env.FilePath(snap.URL)
			if err := writeSnap(dest+".json", snap); err != nil {
				logger.Warn("save snap metadata", zap.String("snapid", snap.SnapID), zap.Error(err))
			}
			if _, err := os.Stat(dest); err == nil {
				continue
			} else if !errors.Is(err, fs.ErrNotExist) {
				logger.Warn("stat image", zap.String("path", dest), zap.Error(err))
				continue
			}
			if err := o.Submit(ctx, TagImage, env.DownloadTask(snap.URL, dest)); err != nil {
				logger.Warn("queue image", zap.String("url", snap.URL), zap.Error(err))
				return false
			}
		}
		return true
	})
	if err != nil {
		return fmt.Errorf("wear gallery %s: %w", galleryURL, err)
	}
	return nil
}

func writeSnap(path string, snap Snap) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snap: %w", err)
	}
	return fscache.WriteAtomic(path, data)
}
