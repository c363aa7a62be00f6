// Package backpressure bounds the number of outstanding background tasks per
// tag so a burst in one category cannot starve another.
package backpressure

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/pagecrawl/internal/metrics"
)

const (
	// DefaultCapacity is the per-tag slot count used when Config.Capacity is unset.
	DefaultCapacity = 20
	// DefaultMaxTags caps how many distinct tags a Queue will track.
	DefaultMaxTags = 64
)

// ErrTooManyTags is returned when a new tag would exceed Config.MaxTags.
var ErrTooManyTags = errors.New("backpressure: tag limit reached")

// Task is a unit of background work. Its error is logged and otherwise
// dropped; tasks own their own retries.
type Task func(ctx context.Context) error

// Config controls per-tag capacity and registry growth.
type Config struct {
	// Capacity is the default number of outstanding tasks per tag.
	Capacity int
	// Capacities overrides Capacity for specific tags.
	Capacities map[string]int
	// MaxTags bounds the number of distinct tags.
	MaxTags int
	Logger  *zap.Logger
}

type group struct {
	sem         *semaphore.Weighted
	capacity    int64
	outstanding atomic.Int64
}

// Queue admits tasks per tag and runs each admitted task on its own goroutine.
type Queue struct {
	cfg    Config
	logger *zap.Logger

	mu     sync.Mutex
	groups map[string]*group

	wg sync.WaitGroup
}

// New creates a Queue. Tags are registered lazily on first Submit.
func New(cfg Config) *Queue {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.MaxTags <= 0 {
		cfg.MaxTags = DefaultMaxTags
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		cfg:    cfg,
		logger: logger,
		groups: make(map[string]*group),
	}
}

// Submit blocks until tag has a free slot, then runs task concurrently. The
// slot is released when task returns, fails, or panics. Submit returns an
// error without running task when ctx ends first or the tag is invalid.
//
// Submit must be called either before Wait or from inside a running task so
// the queue never looks idle while work is still being produced.
func (q *Queue) Submit(ctx context.Context, tag string, task Task) error {
	if task == nil {
		return fmt.Errorf("backpressure: nil task for tag %q", tag)
	}
	g, err := q.group(tag)
	if err != nil {
		return err
	}
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("backpressure %q: acquire slot: %w", tag, err)
	}
	g.outstanding.Add(1)
	metrics.IncTaskOutstanding(tag)

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		var taskErr error
		defer func() {
			g.outstanding.Add(-1)
			g.sem.Release(1)
			metrics.ObserveTaskDone(tag, taskErr)
		}()

		var catcher panics.Catcher
		catcher.Try(func() {
			taskErr = task(ctx)
		})
		if recovered := catcher.Recovered(); recovered != nil {
			taskErr = recovered.AsError()
		}
		if taskErr != nil {
			q.logger.Error("background task failed", zap.String("tag", tag), zap.Error(taskErr))
		}
	}()
	return nil
}

// Wait blocks until every submitted task, including tasks submitted by other
// tasks, has finished.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Outstanding returns the number of tasks currently holding a slot for tag.
func (q *Queue) Outstanding(tag string) int {
	q.mu.Lock()
	g, ok := q.groups[tag]
	q.mu.Unlock()
	if !ok {
		return 0
	}
	return int(g.outstanding.Load())
}

// Tags lists the tags registered so far.
func (q *Queue) Tags() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.groups))
	for tag := range q.groups {
		out = append(out, tag)
	}
	return out
}

func (q *Queue) group(tag string) (*group, error) {
	if strings.TrimSpace(tag) == "" {
		return nil, fmt.Errorf("backpressure: tag is required")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if g, ok := q.groups[tag]; ok {
		return g, nil
	}
	if len(q.groups) >= q.cfg.MaxTags {
		return nil, fmt.Errorf("%w (%d) registering %q", ErrTooManyTags, q.cfg.MaxTags, tag)
	}
	capacity := q.cfg.Capacity
	if override, ok := q.cfg.Capacities[tag]; ok && override > 0 {
		capacity = override
	}
	g := &group{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: int64(capacity),
	}
	q.groups[tag] = g
	q.logger.Debug("registered task tag", zap.String("tag", tag), zap.Int("capacity", capacity))
	return g, nil
}
