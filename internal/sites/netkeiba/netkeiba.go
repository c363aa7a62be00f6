// Package netkeiba scrapes race and horse listings from db.netkeiba.com.
// Searches are form POSTs in EUC-JP; later result pages are requested by
// replaying the hidden sort form of the first page.
package netkeiba

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagecrawl/internal/orchestrator"
	"github.com/JakeFAU/pagecrawl/internal/sitekit"
)

const (
	// DefaultBaseURL is the production database host.
	DefaultBaseURL = "https://db.netkeiba.com"
	// TagRace is the background tag for race page fetches.
	TagRace = "get_race"

	charset  = "euc-jp"
	pageSize = 100
	lastPage = 1000
)

// Scraper runs searches against one netkeiba host.
type Scraper struct {
	env     *sitekit.Env
	baseURL string
	logger  *zap.Logger
}

// New creates a Scraper. An empty baseURL means DefaultBaseURL.
func New(env *sitekit.Env, baseURL string) (*Scraper, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Scraper{env: env, baseURL: baseURL, logger: env.Logger.Named("netkeiba")}, nil
}

func (s *Scraper) endpoint() string { return s.baseURL + "/" }

func (s *Scraper) pseudoURL(options url.Values, page int) string {
	return fmt.Sprintf("%s?%s&page=%d", s.endpoint(), options.Encode(), page)
}

// SearchPage returns result page n of the search described by options. The
// first page is posted directly and must not redirect; later pages replay
// its sort form with the page number replaced.
func (s *Scraper) SearchPage(ctx context.Context, n int, options url.Values) (string, error) {
	first, err := s.env.Client.Do(ctx, sitekit.Request{
		URL:            s.endpoint(),
		CacheURL:       s.pseudoURL(options, 1),
		Form:           options,
		Charset:        charset,
		RejectRedirect: true,
	})
	if err != nil {
		return "", err
	}
	if n == 1 {
		return first.Body, nil
	}

	form, err := orchestrator.Offload(ctx, s.env.Orchestrator, func() (url.Values, error) {
		return ParseNextPageForm(first.Body)
	})
	if err != nil {
		return "", err
	}
	form.Set("page", strconv.Itoa(n))
	page, err := s.env.Client.Do(ctx, sitekit.Request{
		URL:         s.endpoint(),
		CacheURL:    s.pseudoURL(options, n),
		Form:        form,
		FormCharset: charset,
		Charset:     charset,
	})
	if err != nil {
		return "", err
	}
	return page.Body, nil
}

// CollectRaces fetches every race held in year. Result pages continue while
// a page lists a full page of races.
func (s *Scraper) CollectRaces(ctx context.Context, year int) error {
	options := url.Values{
		"pid":        {"race_list"},
		"start_year": {strconv.Itoa(year)},
		"end_year":   {strconv.Itoa(year)},
		"sort":       {"date"},
		"list":       {strconv.Itoa(pageSize)},
	}
	o := s.env.Orchestrator
	_, err := o.Paging(ctx, "netkeiba-race", 1, lastPage, s.env.QueueSize, func(ctx context.Context, page int) bool {
		s.logger.Info("page", zap.Int("page", page))
		html, err := s.SearchPage(ctx, page, options)
		if err != nil {
			s.logger.Warn("search page failed", zap.Int("page", page), zap.Error(err))
			return false
		}
		races, err := orchestrator.Offload(ctx, o, func() ([]string, error) {
			return ParseRaceURLs(s.baseURL, html)
		})
		if err != nil {
			s.logger.Warn("parse search page", zap.Int("page", page), zap.Error(err))
			return false
		}
		for _, raceURL := range races {
			if err := o.Submit(ctx, TagRace, s.raceTask(raceURL)); err != nil {
				s.logger.Warn("queue race", zap.String("url", raceURL), zap.Error(err))
				return false
			}
		}
		return len(races) == pageSize
	})
	if err != nil {
		return fmt.Errorf("netkeiba races: %w", err)
	}
	return nil
}

func (s *Scraper) raceTask(raceURL string) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := s.env.Client.Do(ctx, sitekit.Request{URL: raceURL, Charset: charset})
		if err != nil {
			return fmt.Errorf("race %s: %w", raceURL, err)
		}
		return nil
	}
}

// CollectHorses pages through the horses born in year.
func (s *Scraper) CollectHorses(ctx context.Context, year int) error {
	options := url.Values{
		"pid":       {"horse_list"},
		"list":      {strconv.Itoa(pageSize)},
		"birthyear": {strconv.Itoa(year)},
	}
	o := s.env.Orchestrator
	_, err := o.Paging(ctx, "netkeiba-horse", 1, lastPage, s.env.QueueSize, func(ctx context.Context, page int) bool {
		s.logger.Info("page", zap.Int("page", page))
		html, err := s.SearchPage(ctx, page, options)
		if err != nil {
			s.logger.Warn("max retries exceeded", zap.Int("page", page), zap.Error(err))
			return false
		}
		horses, err := orchestrator.Offload(ctx, o, func() ([]string, error) {
			return ParseHorseURLs(s.baseURL, html)
		})
		if err != nil {
			s.logger.Warn("parse search page", zap.Int("page", page), zap.Error(err))
			return false
		}
		return len(horses) == pageSize
	})
	if err != nil {
		return fmt.Errorf("netkeiba horses: %w", err)
	}
	return nil
}
