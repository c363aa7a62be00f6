package paging

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type pageLog struct {
	mu    sync.Mutex
	pages []int
}

func (l *pageLog) add(page int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pages = append(l.pages, page)
}

func (l *pageLog) sorted() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := append([]int(nil), l.pages...)
	sort.Ints(out)
	return out
}

func TestRunStopsAfterEmptyPageSequential(t *testing.T) {
	t.Parallel()

	var done pageLog
	res, err := Run(context.Background(), Config{Start: 1, End: 1000, Concurrency: 1}, func(_ context.Context, page int) bool {
		done.add(page)
		return page < 6
	})
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3, 4, 5, 6}, done.sorted())
	require.Equal(t, 6, res.Submitted)
	require.Equal(t, 6, res.LastSubmitted)
	require.Equal(t, 6, res.StoppedAt)
	require.True(t, res.Stopped)
}

func TestRunStopsAfterEmptyPageConcurrent(t *testing.T) {
	t.Parallel()

	var done pageLog
	res, err := Run(context.Background(), Config{Start: 1, End: 1000, Concurrency: 3}, func(_ context.Context, page int) bool {
		time.Sleep(2 * time.Millisecond)
		done.add(page)
		return page <= 5
	})
	require.NoError(t, err)

	pages := done.sorted()
	require.GreaterOrEqual(t, len(pages), 6)
	require.Equal(t, []int{1, 2, 3, 4, 5, 6}, pages[:6])
	// Pages 7 and 8 may already hold a slot when page 6 ends the session,
	// but every page past the end returns false, so nothing beyond 8 starts.
	require.LessOrEqual(t, res.LastSubmitted, 8)
	require.Equal(t, len(pages), res.Submitted)
	require.Equal(t, 6, res.StoppedAt)
}

func TestRunExhaustsRange(t *testing.T) {
	t.Parallel()

	var done pageLog
	res, err := Run(context.Background(), Config{Start: 3, End: 12, Concurrency: 4}, func(_ context.Context, page int) bool {
		done.add(page)
		return true
	})
	require.NoError(t, err)
	require.Equal(t, []int{3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, done.sorted())
	require.Equal(t, 10, res.Submitted)
	require.False(t, res.Stopped)
}

func TestRunEmptyRange(t *testing.T) {
	t.Parallel()

	called := false
	res, err := Run(context.Background(), Config{Start: 5, End: 4, Concurrency: 2}, func(context.Context, int) bool {
		called = true
		return true
	})
	require.NoError(t, err)
	require.False(t, called)
	require.Zero(t, res.Submitted)
}

func TestRunEndsAtMaxInt(t *testing.T) {
	t.Parallel()

	var seen pageLog
	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := Run(context.Background(), Config{Start: math.MaxInt - 2, End: math.MaxInt, Concurrency: 2}, func(_ context.Context, page int) bool {
			seen.add(page)
			return true
		})
		done <- outcome{res, err}
	}()

	select {
	case out := <-done:
		require.NoError(t, out.err)
		res := out.res
		require.Equal(t, 3, res.Submitted)
		require.Equal(t, math.MaxInt, res.LastSubmitted)
		require.False(t, res.Stopped)
	case <-time.After(2 * time.Second):
		t.Fatal("paging did not stop at the last page")
	}
	require.Equal(t, []int{math.MaxInt - 2, math.MaxInt - 1, math.MaxInt}, seen.sorted())
}

func TestRunRespectsConcurrency(t *testing.T) {
	t.Parallel()

	var current, peak atomic.Int64
	_, err := Run(context.Background(), Config{Start: 1, End: 40, Concurrency: 3}, func(context.Context, int) bool {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		current.Add(-1)
		return true
	})
	require.NoError(t, err)
	require.LessOrEqual(t, peak.Load(), int64(3))
}

func TestRunCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var started atomic.Int64
	res, err := Run(ctx, Config{Start: 1, End: 1000, Concurrency: 2}, func(ctx context.Context, page int) bool {
		if started.Add(1) == 2 {
			cancel()
		}
		<-ctx.Done()
		return true
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
	require.Less(t, res.Submitted, 1000)
	require.Equal(t, int64(res.Submitted), started.Load())
}

func TestRunRejectsBadConfig(t *testing.T) {
	t.Parallel()

	_, err := Run(context.Background(), Config{Start: 1, End: 2, Concurrency: 0}, func(context.Context, int) bool { return true })
	require.Error(t, err)
	_, err = Run(context.Background(), Config{Start: 1, End: 2, Concurrency: 1}, nil)
	require.Error(t, err)
}

func TestRunPropagatesPanics(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() {
		_, _ = Run(context.Background(), Config{Start: 1, End: 3, Concurrency: 1}, func(_ context.Context, page int) bool {
			if page == 2 {
				panic("page exploded")
			}
			return true
		})
	})
}
