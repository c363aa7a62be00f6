package system

import (
	"testing"
	"time"
)

func TestClockNow(t *testing.T) {
	t.Parallel()

	clk := New()
	before := time.Now().Add(-time.Second)
	got := clk.Now()
	after := time.Now().Add(time.Second)
	if got.Before(before) || got.After(after) {
		t.Fatalf("expected %v to be between %v and %v", got, before, after)
	}
}

func TestClockSinceNonNegative(t *testing.T) {
	t.Parallel()

	clk := New()
	start := clk.Now()
	if d := clk.Since(start); d < 0 {
		t.Fatalf("expected non-negative elapsed time, got %v", d)
	}
}
