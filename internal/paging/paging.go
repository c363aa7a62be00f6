// Package paging drives numbered pages through an admission gate until a page
// reports that no more data exists or the page range is exhausted.
package paging

import (
	"context"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagecrawl/internal/admission"
	"github.com/JakeFAU/pagecrawl/internal/metrics"
)

// PageFunc processes a single page. It returns true when the page had data and
// paging should continue, false when this is the last page worth fetching.
// Errors must be handled inside the function; a panic propagates to Run.
type PageFunc func(ctx context.Context, page int) bool

// Config describes one paging session. Start and End are inclusive.
type Config struct {
	Name        string
	Start       int
	End         int
	Concurrency int
	Logger      *zap.Logger
}

// Result summarizes a finished session.
type Result struct {
	// Submitted counts pages that were admitted and started.
	Submitted int
	// LastSubmitted is the highest page number started, zero if none.
	LastSubmitted int
	// StoppedAt is the lowest page that returned false, zero if none did.
	StoppedAt int
	// Stopped is true when a page ended the session before End was reached.
	Stopped bool
}

// Run submits pages Start..End in increasing order, at most Concurrency at a
// time. Once any page returns false no further page is submitted, but pages
// already admitted run to completion. Run waits for every started page
// before returning. A canceled context stops submission and is returned as
// an error after in-flight pages finish.
func Run(ctx context.Context, cfg Config, fn PageFunc) (Result, error) {
	if fn == nil {
		return Result{}, fmt.Errorf("paging: page function is required")
	}
	gate, err := admission.New(cfg.Concurrency)
	if err != nil {
		return Result{}, fmt.Errorf("paging: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	name := cfg.Name
	if name == "" {
		name = "default"
	}

	var (
		result   Result
		mu       sync.Mutex
		wg       conc.WaitGroup
		admitErr error
	)

	for page := cfg.Start; page <= cfg.End; page++ {
		ok, err := gate.Admit(ctx)
		if err != nil {
			admitErr = err
			gate.Terminate()
			break
		}
		if !ok {
			break
		}
		result.Submitted++
		result.LastSubmitted = page
		metrics.ObservePageSubmitted(name)

		wg.Go(func() {
			more := false
			defer func() {
				metrics.ObservePageCompleted(name, more)
				gate.Release()
			}()
			more = fn(ctx, page)
			if !more {
				mu.Lock()
				if result.StoppedAt == 0 || page < result.StoppedAt {
					result.StoppedAt = page
				}
				mu.Unlock()
				gate.Terminate()
			}
		})
		// End may be math.MaxInt, so stop before page++ can overflow.
		if page == cfg.End {
			break
		}
	}

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	result.Stopped = result.StoppedAt != 0
	logger.Debug("paging session finished",
		zap.String("session", name),
		zap.Int("submitted", result.Submitted),
		zap.Int("last_submitted", result.LastSubmitted),
		zap.Int("stopped_at", result.StoppedAt),
	)
	if admitErr != nil {
		return result, fmt.Errorf("paging %s: %w", name, admitErr)
	}
	return result, nil
}
