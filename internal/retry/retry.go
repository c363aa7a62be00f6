// Package retry re-runs fallible operations with a configurable backoff.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagecrawl/internal/metrics"
)

// Backoff selects how long to wait between attempts.
type Backoff int

const (
	// Exponential doubles the delay each attempt, with jitter, up to MaxDelay.
	Exponential Backoff = iota
	// Fixed waits InitialDelay between every attempt.
	Fixed
	// Immediate retries without waiting.
	Immediate
)

// ParseBackoff maps a config string to a Backoff.
func ParseBackoff(raw string) (Backoff, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "exponential":
		return Exponential, nil
	case "fixed":
		return Fixed, nil
	case "immediate", "none":
		return Immediate, nil
	default:
		return Exponential, fmt.Errorf("unknown backoff %q", raw)
	}
}

func (b Backoff) String() string {
	switch b {
	case Fixed:
		return "fixed"
	case Immediate:
		return "immediate"
	default:
		return "exponential"
	}
}

// Policy configures Do.
type Policy struct {
	// Name labels logs and metrics.
	Name         string
	MaxAttempts  int
	Backoff      Backoff
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Logger       *zap.Logger
}

// DefaultPolicy mirrors the crawler defaults: 3 attempts, jittered
// exponential backoff from 250ms capped at 5s.
func DefaultPolicy() Policy {
	return Policy{
		Name:         "default",
		MaxAttempts:  3,
		Backoff:      Exponential,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do runs op up to p.MaxAttempts times and returns the first success. After
// the final failure it returns the zero value and the last error. Permanent
// errors and context cancellation end the loop early.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			metrics.ObserveRetry(p.Name)
			if err := sleep(ctx, p.delay(attempt-1)); err != nil {
				return zero, fmt.Errorf("retry %s: %w (last error: %w)", p.Name, err, lastErr)
			}
		}
		value, err := op(ctx)
		if err == nil {
			return value, nil
		}
		lastErr = err
		if IsPermanent(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		logger.Debug("attempt failed",
			zap.String("operation", p.Name),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", attempts),
			zap.Error(err),
		)
	}
	metrics.ObserveRetryExhausted(p.Name)
	return zero, lastErr
}

func (p Policy) delay(attempt int) time.Duration {
	switch p.Backoff {
	case Immediate:
		return 0
	case Fixed:
		return p.InitialDelay
	}
	if p.InitialDelay <= 0 {
		return 0
	}
	d := float64(p.InitialDelay) * math.Pow(2, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	half := time.Duration(d / 2)
	return half + jitter(half)
}

func jitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
