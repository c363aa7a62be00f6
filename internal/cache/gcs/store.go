// Package gcs implements a cache backed by a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/pagecrawl/internal/cache"
	"github.com/JakeFAU/pagecrawl/internal/metrics"
)

// Config captures the bucket and object prefix.
type Config struct {
	Bucket string
	Prefix string
}

// Store writes entries as objects under Prefix.
type Store struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed cache.
func New(client *storage.Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *Store) object(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

// Get downloads the object for key and its metadata object, if any.
func (s *Store) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	if err := cache.ValidateKey(key); err != nil {
		return cache.Entry{}, false, err
	}
	content, err := s.read(ctx, s.object(key))
	if errors.Is(err, storage.ErrObjectNotExist) {
		metrics.ObserveCacheLookup(false)
		return cache.Entry{}, false, nil
	}
	if err != nil {
		return cache.Entry{}, false, err
	}
	entry := cache.Entry{Content: content}
	raw, err := s.read(ctx, s.object(cache.MetaKey(key)))
	switch {
	case errors.Is(err, storage.ErrObjectNotExist):
	case err != nil:
		return cache.Entry{}, false, err
	default:
		var meta cache.Meta
		if err := json.Unmarshal(raw, &meta); err != nil {
			return cache.Entry{}, false, fmt.Errorf("decode cache meta %s: %w", key, err)
		}
		entry.Meta = &meta
	}
	metrics.ObserveCacheLookup(true)
	return entry, true, nil
}

// Set uploads content and, when provided, metadata as a JSON object.
func (s *Store) Set(ctx context.Context, key string, content []byte, meta *cache.Meta) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}
	if err := s.write(ctx, s.object(key), "", content); err != nil {
		return err
	}
	if meta == nil {
		return nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode cache meta %s: %w", key, err)
	}
	return s.write(ctx, s.object(cache.MetaKey(key)), "application/json", raw)
}

func (s *Store) read(ctx context.Context, name string) ([]byte, error) {
	reader, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, storage.ErrObjectNotExist
		}
		return nil, fmt.Errorf("open object %s: %w", name, err)
	}
	defer func() { _ = reader.Close() }()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", name, err)
	}
	return data, nil
}

func (s *Store) write(ctx context.Context, name, contentType string, data []byte) error {
	writer := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := writer.Write(data); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return fmt.Errorf("write object %s: %w (close writer: %v)", name, err, closeErr)
		}
		return fmt.Errorf("write object %s: %w", name, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer %s: %w", name, err)
	}
	return nil
}
