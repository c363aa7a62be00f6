// Package offload runs CPU-bound helpers, such as HTML parsing, on a fixed
// set of worker goroutines owned by the caller.
package offload

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
)

// ErrClosed is returned when work is submitted to a closed Pool.
var ErrClosed = errors.New("offload pool closed")

// Pool is a fixed-size worker pool. Create it with New and release it with Close.
type Pool struct {
	jobs    chan func()
	workers int
	logger  *zap.Logger

	closeMu sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
}

// New starts a pool with the given number of workers. A non-positive count
// uses one worker per CPU.
func New(workers int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{
		jobs:    make(chan func()),
		workers: workers,
		logger:  logger,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				job()
			}
		}()
	}
	logger.Debug("offload pool started", zap.Int("workers", workers))
	return p
}

// Workers returns the pool size.
func (p *Pool) Workers() int { return p.workers }

// Close stops accepting work and waits for running jobs to finish. It is safe
// to call more than once.
func (p *Pool) Close() {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.closeMu.Unlock()
	p.wg.Wait()
}

func (p *Pool) submit(ctx context.Context, job func()) error {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("offload submit: %w", ctx.Err())
	}
}

type result[T any] struct {
	value T
	err   error
}

// Run executes fn on a pool worker and returns its result. A panic in fn is
// returned as an error. If ctx ends before fn finishes, Run returns the
// context error and the eventual result is discarded.
func Run[T any](ctx context.Context, p *Pool, fn func() (T, error)) (T, error) {
	var zero T
	out := make(chan result[T], 1)
	job := func() {
		var r result[T]
		var catcher panics.Catcher
		catcher.Try(func() {
			r.value, r.err = fn()
		})
		if recovered := catcher.Recovered(); recovered != nil {
			p.logger.Error("offloaded function panicked", zap.String("panic", fmt.Sprint(recovered.Value)))
			r = result[T]{err: recovered.AsError()}
		}
		out <- r
	}
	if err := p.submit(ctx, job); err != nil {
		return zero, err
	}
	select {
	case r := <-out:
		return r.value, r.err
	case <-ctx.Done():
		return zero, fmt.Errorf("offload wait: %w", ctx.Err())
	}
}
