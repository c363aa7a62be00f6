// Package memory keeps cache entries in process memory for tests and dry runs.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/pagecrawl/internal/cache"
	"github.com/JakeFAU/pagecrawl/internal/metrics"
)

// Store is an in-memory cache.
type Store struct {
	mu      sync.RWMutex
	entries map[string]cache.Entry
}

// New creates an empty Store.
func New() *Store {
	return &Store{entries: make(map[string]cache.Entry)}
}

// Get returns a copy of the stored entry.
func (s *Store) Get(_ context.Context, key string) (cache.Entry, bool, error) {
	if err := cache.ValidateKey(key); err != nil {
		return cache.Entry{}, false, err
	}
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	metrics.ObserveCacheLookup(ok)
	if !ok {
		return cache.Entry{}, false, nil
	}
	return clone(entry), true, nil
}

// Set stores a copy of content and meta.
func (s *Store) Set(_ context.Context, key string, content []byte, meta *cache.Meta) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = clone(cache.Entry{Content: content, Meta: meta})
	return nil
}

// Len reports the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func clone(e cache.Entry) cache.Entry {
	out := cache.Entry{Content: append([]byte(nil), e.Content...)}
	if e.Meta != nil {
		m := *e.Meta
		out.Meta = &m
	}
	return out
}
