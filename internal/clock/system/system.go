// Package system provides the wall clock used by the limiter and the ledger.
package system

import "time"

// Clock reads the real time. Readings keep Go's monotonic component so
// interval arithmetic is immune to wall-clock steps.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current local time with its monotonic reading.
func (Clock) Now() time.Time {
	return time.Now()
}

// Since returns the time elapsed since t.
func (c Clock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}
