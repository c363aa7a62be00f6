// Package orchestrator composes paging sessions, tagged background tasks and
// the offload pool into the API site scrapers are written against.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagecrawl/internal/backpressure"
	"github.com/JakeFAU/pagecrawl/internal/offload"
	"github.com/JakeFAU/pagecrawl/internal/paging"
)

// Config wires an Orchestrator.
type Config struct {
	// TagCapacity bounds outstanding background tasks per tag.
	TagCapacity int
	// TagCapacities overrides TagCapacity for specific tags.
	TagCapacities map[string]int
	MaxTags       int
	// Pool runs offloaded helpers. It is owned by the caller; nil runs them inline.
	Pool   *offload.Pool
	Logger *zap.Logger
}

// Orchestrator coordinates one crawl. It is safe for concurrent use.
type Orchestrator struct {
	queue  *backpressure.Queue
	pool   *offload.Pool
	logger *zap.Logger
}

// New builds an Orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		queue: backpressure.New(backpressure.Config{
			Capacity:   cfg.TagCapacity,
			Capacities: cfg.TagCapacities,
			MaxTags:    cfg.MaxTags,
			Logger:     logger.Named("backpressure"),
		}),
		pool:   cfg.Pool,
		logger: logger,
	}
}

// Run executes root and then waits for every background task it, or any of
// its tasks, submitted. A panic in root is returned as an error once the
// background tasks have drained.
func (o *Orchestrator) Run(ctx context.Context, root func(ctx context.Context) error) error {
	if root == nil {
		return fmt.Errorf("orchestrator: root function is required")
	}
	var (
		wg      conc.WaitGroup
		rootErr error
	)
	wg.Go(func() {
		rootErr = root(ctx)
	})
	recovered := wg.WaitAndRecover()
	o.queue.Wait()

	if recovered != nil {
		o.logger.Error("crawl panicked", zap.String("panic", fmt.Sprint(recovered.Value)))
		return fmt.Errorf("orchestrator: %w", recovered.AsError())
	}
	if rootErr != nil {
		return rootErr
	}
	return nil
}

// Paging runs a paging session over pages start..end with at most
// concurrency pages in flight.
func (o *Orchestrator) Paging(ctx context.Context, name string, start, end, concurrency int, fn paging.PageFunc) (paging.Result, error) {
	result, err := paging.Run(ctx, paging.Config{
		Name:        name,
		Start:       start,
		End:         end,
		Concurrency: concurrency,
		Logger:      o.logger.Named("paging"),
	}, fn)
	if err != nil {
		return result, fmt.Errorf("paging: %w", err)
	}
	o.logger.Info("paging session done",
		zap.String("session", name),
		zap.Int("pages", result.Submitted),
		zap.Bool("stopped", result.Stopped),
	)
	return result, nil
}

// Submit queues task under tag, blocking while tag is saturated.
func (o *Orchestrator) Submit(ctx context.Context, tag string, task backpressure.Task) error {
	if err := o.queue.Submit(ctx, tag, task); err != nil {
		return fmt.Errorf("submit %s: %w", tag, err)
	}
	return nil
}

// Outstanding reports tasks currently running under tag.
func (o *Orchestrator) Outstanding(tag string) int {
	return o.queue.Outstanding(tag)
}

// Snapshot returns the outstanding task count of every tag seen so far.
func (o *Orchestrator) Snapshot() map[string]int {
	tags := o.queue.Tags()
	out := make(map[string]int, len(tags))
	for _, tag := range tags {
		out[tag] = o.queue.Outstanding(tag)
	}
	return out
}

// Offload runs fn on the orchestrator's pool, or inline when it has none.
func Offload[T any](ctx context.Context, o *Orchestrator, fn func() (T, error)) (T, error) {
	if o.pool == nil {
		return fn()
	}
	v, err := offload.Run(ctx, o.pool, fn)
	if err != nil {
		return v, fmt.Errorf("offload: %w", err)
	}
	return v, nil
}
