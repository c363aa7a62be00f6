package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestPageGaugeTracksInFlight(t *testing.T) {
	ObservePageSubmitted("gauge-test")
	ObservePageSubmitted("gauge-test")
	if val := testutil.ToFloat64(pagesInFlight.WithLabelValues("gauge-test")); val != 2 {
		t.Fatalf("expected 2 pages in flight, got %f", val)
	}

	ObservePageCompleted("gauge-test", true)
	ObservePageCompleted("gauge-test", false)
	if val := testutil.ToFloat64(pagesInFlight.WithLabelValues("gauge-test")); val != 0 {
		t.Fatalf("expected 0 pages in flight, got %f", val)
	}
	if val := testutil.ToFloat64(pagesCompletedTotal.WithLabelValues("gauge-test", "stop")); val != 1 {
		t.Fatalf("expected one stop outcome, got %f", val)
	}
}

func TestTaskCounters(t *testing.T) {
	IncTaskOutstanding("counter-test")
	IncTaskOutstanding("counter-test")
	ObserveTaskDone("counter-test", nil)
	ObserveTaskDone("counter-test", errors.New("boom"))

	if val := testutil.ToFloat64(tasksOutstanding.WithLabelValues("counter-test")); val != 0 {
		t.Fatalf("expected no outstanding tasks, got %f", val)
	}
	if val := testutil.ToFloat64(tasksTotal.WithLabelValues("counter-test", "error")); val != 1 {
		t.Fatalf("expected one failed task, got %f", val)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
