// Package ratelimit paces outbound requests per host according to
// configurable wait policies.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/pagecrawl/internal/clock/system"
	"github.com/JakeFAU/pagecrawl/internal/metrics"
)

// Wildcard is the waitlist key applied to hosts without their own entry.
const Wildcard = "*"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Config holds limiter configuration.
type Config struct {
	// Default applies to hosts not present in Hosts when Hosts has no Wildcard entry.
	Default Policy
	// Hosts maps hostnames (or Wildcard) to their policy.
	Hosts map[string]Policy
	// MaxRPS caps requests across all hosts. Zero disables the ceiling.
	MaxRPS float64
	Clock  Clock
	Logger *zap.Logger
}

type hostState struct {
	// lock is a one-slot channel so waiters can give up on ctx cancellation.
	lock chan struct{}
	// seen is set by the first request released for the host.
	seen bool
	last time.Time
}

// Limiter serializes requests per host and enforces the host's spacing.
type Limiter struct {
	mu       sync.Mutex
	hosts    map[string]*hostState
	policies map[string]Policy
	fallback Policy
	global   *rate.Limiter
	clock    Clock
	logger   *zap.Logger
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	policies := make(map[string]Policy, len(cfg.Hosts))
	for host, p := range cfg.Hosts {
		policies[host] = p
	}
	fallback := cfg.Default
	if p, ok := policies[Wildcard]; ok {
		fallback = p
	}
	clk := cfg.Clock
	if clk == nil {
		clk = system.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var global *rate.Limiter
	if cfg.MaxRPS > 0 {
		global = rate.NewLimiter(rate.Limit(cfg.MaxRPS), 1)
	}
	return &Limiter{
		hosts:    make(map[string]*hostState),
		policies: policies,
		fallback: fallback,
		global:   global,
		clock:    clk,
		logger:   logger,
	}
}

// PolicyFor returns the policy applied to host.
func (l *Limiter) PolicyFor(host string) Policy {
	if p, ok := l.policies[host]; ok {
		return p
	}
	return l.fallback
}

// Wait blocks until a request to rawURL may be sent. The first request to a
// host returns immediately; later requests wait until the policy interval has
// passed since the previous request to the same host was released. Requests
// to different hosts never block each other except through MaxRPS.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host, err := hostOf(rawURL)
	if err != nil {
		return err
	}
	interval := l.PolicyFor(host).Interval()

	state := l.state(host)
	select {
	case state.lock <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("rate limit wait %s: %w", host, ctx.Err())
	}
	defer func() { <-state.lock }()

	if !state.seen {
		state.seen = true
		state.last = l.clock.Now()
		return l.waitGlobal(ctx)
	}

	elapsed := l.clock.Now().Sub(state.last)
	if delay := interval - elapsed; delay > 0 {
		if err := pause(ctx, delay); err != nil {
			return fmt.Errorf("rate limit wait %s: %w", host, err)
		}
		metrics.ObserveRateLimitDelay(host, delay)
		l.logger.Debug("rate limited", zap.String("host", host), zap.Duration("delay", delay))
	}
	state.last = l.clock.Now()
	return l.waitGlobal(ctx)
}

// state returns the host entry, creating it under the registry lock. Whether a
// request is the host's first is decided later, under the host lock.
func (l *Limiter) state(host string) *hostState {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.hosts[host]
	if !ok {
		s = &hostState{lock: make(chan struct{}, 1)}
		l.hosts[host] = s
	}
	return s
}

func (l *Limiter) waitGlobal(ctx context.Context) error {
	if l.global == nil {
		return nil
	}
	if err := l.global.Wait(ctx); err != nil {
		return fmt.Errorf("global rate limit: %w", err)
	}
	return nil
}

func pause(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	return u.Hostname(), nil
}
