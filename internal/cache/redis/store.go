// Package redis implements a cache backed by Redis, for crawls sharing a cache
// across machines.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/pagecrawl/internal/cache"
	"github.com/JakeFAU/pagecrawl/internal/metrics"
)

// Config controls key naming and expiry.
type Config struct {
	Prefix string
	// TTL expires entries; zero keeps them forever.
	TTL time.Duration
}

type record struct {
	Content []byte      `json:"content"`
	Meta    *cache.Meta `json:"meta,omitempty"`
}

// Store keeps each entry as one JSON value.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New wraps an existing client.
func New(client *redis.Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "pagecrawl:"
	}
	return &Store{client: client, prefix: prefix, ttl: cfg.TTL}, nil
}

// Get loads the entry for key.
func (s *Store) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	if err := cache.ValidateKey(key); err != nil {
		return cache.Entry{}, false, err
	}
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.ObserveCacheLookup(false)
		return cache.Entry{}, false, nil
	}
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return cache.Entry{}, false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	metrics.ObserveCacheLookup(true)
	return cache.Entry{Content: rec.Content, Meta: rec.Meta}, true, nil
}

// Set stores content and metadata together.
func (s *Store) Set(ctx context.Context, key string, content []byte, meta *cache.Meta) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}
	data, err := json.Marshal(record{Content: content, Meta: meta})
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	if err := s.client.Set(ctx, s.prefix+key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
