// Package admission provides a counting gate that bounds in-flight work and
// carries a one-way termination signal visible to every waiter.
package admission

import (
	"container/list"
	"context"
	"fmt"
	"sync"
)

// Gate admits at most a fixed number of concurrent units. Callers that find
// the gate full queue up and are handed freed slots in arrival order.
// Terminate closes a channel that every pending and future Admit observes,
// which lets a producer that does not know how much work exists stop cleanly
// once any unit reports the end of the data.
type Gate struct {
	mu         sync.Mutex
	capacity   int
	inFlight   int
	waiters    list.List // of chan struct{}, oldest first
	terminated bool
	done       chan struct{}
}

// New builds a Gate with the provided capacity. Capacity must be positive.
func New(capacity int) (*Gate, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("admission capacity must be > 0, got %d", capacity)
	}
	return &Gate{
		capacity: capacity,
		done:     make(chan struct{}),
	}, nil
}

// Admit blocks until a slot is free, the gate is terminated, or ctx ends.
// It returns true when the caller holds a slot and must call Release.
// A terminated gate yields false with a nil error; a finished context yields
// false with the wrapped context error.
func (g *Gate) Admit(ctx context.Context) (bool, error) {
	g.mu.Lock()
	if g.terminated {
		g.mu.Unlock()
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		g.mu.Unlock()
		return false, fmt.Errorf("admission wait: %w", err)
	}
	if g.inFlight < g.capacity && g.waiters.Len() == 0 {
		g.inFlight++
		g.mu.Unlock()
		return true, nil
	}
	ready := make(chan struct{})
	elem := g.waiters.PushBack(ready)
	g.mu.Unlock()

	select {
	case <-ready:
		// The slot was handed over under the lock; give it back if the gate
		// closed before we could use it.
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.terminated {
			g.releaseLocked()
			return false, nil
		}
		return true, nil
	case <-g.done:
		g.abandon(elem, ready)
		return false, nil
	case <-ctx.Done():
		g.abandon(elem, ready)
		return false, fmt.Errorf("admission wait: %w", ctx.Err())
	}
}

// abandon removes a waiter that stopped waiting. A slot handed to it in the
// meantime is passed on.
func (g *Gate) abandon(elem *list.Element, ready chan struct{}) {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-ready:
		g.releaseLocked()
	default:
		g.waiters.Remove(elem)
	}
}

// Release returns a slot taken by a successful Admit and hands it to the
// oldest waiter, if any.
func (g *Gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight == 0 {
		panic("admission: Release called without a matching Admit")
	}
	g.releaseLocked()
}

func (g *Gate) releaseLocked() {
	if !g.terminated {
		if front := g.waiters.Front(); front != nil {
			// The slot moves to the waiter; inFlight is unchanged.
			g.waiters.Remove(front)
			close(front.Value.(chan struct{}))
			return
		}
	}
	g.inFlight--
}

// Terminate marks the gate as finished. It is idempotent and wakes every
// pending Admit so none of them blocks forever.
func (g *Gate) Terminate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.terminated {
		return
	}
	g.terminated = true
	close(g.done)
}

// Terminated reports whether Terminate has been called.
func (g *Gate) Terminated() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.terminated
}

// InFlight returns the number of admitted units that have not been released.
func (g *Gate) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

func (g *Gate) waiting() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.waiters.Len()
}
