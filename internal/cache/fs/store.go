// Package fs implements a cache backed by a local directory.
package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/pagecrawl/internal/cache"
	"github.com/JakeFAU/pagecrawl/internal/metrics"
)

// Config captures the parameters for the directory cache.
type Config struct {
	// Dir is the directory cached files are written to.
	Dir string `mapstructure:"cache_dir"`
}

// Store keeps each entry as a file, with metadata in a sibling ".json" file.
type Store struct {
	dir string
}

// New creates the directory if needed and verifies it is writable.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	info, err := os.Stat(cfg.Dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if mkErr := os.MkdirAll(cfg.Dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create cache directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat cache directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("cache path %s is not a directory", cfg.Dir)
	}

	probe := filepath.Join(cfg.Dir, ".write-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return nil, fmt.Errorf("cache directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("clean up write probe: %w", err)
	}
	return &Store{dir: cfg.Dir}, nil
}

// Dir returns the cache directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the file path for key.
func (s *Store) Path(key string) (string, error) {
	if err := cache.ValidateKey(key); err != nil {
		return "", err
	}
	full := filepath.Join(s.dir, key)
	if !strings.HasPrefix(filepath.Clean(full), filepath.Clean(s.dir)+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path traversal", cache.ErrInvalidKey)
	}
	return full, nil
}

// Get reads the entry for key.
func (s *Store) Get(_ context.Context, key string) (cache.Entry, bool, error) {
	path, err := s.Path(key)
	if err != nil {
		return cache.Entry{}, false, err
	}
	content, err := os.ReadFile(path) // #nosec G304 -- path validated against the cache dir.
	if errors.Is(err, fs.ErrNotExist) {
		metrics.ObserveCacheLookup(false)
		return cache.Entry{}, false, nil
	}
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("read cache %s: %w", key, err)
	}

	entry := cache.Entry{Content: content}
	raw, err := os.ReadFile(path + ".json") // #nosec G304 -- derived from validated path.
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cache.Entry{}, false, fmt.Errorf("read cache meta %s: %w", key, err)
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

// Set writes content, then metadata when provided. Each file is written to a
// temporary name and renamed into place.
func (s *Store) Set(_ context.Context, key string, content []byte, meta *cache.Meta) error {
	path, err := s.Path(key)
	if err != nil {
		return err
	}
	if err := WriteAtomic(path, content); err != nil {
		return fmt.Errorf("write cache %s: %w", key, err)
	}
	if meta == nil {
		return nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode cache meta %s: %w", key, err)
	}
	if err := WriteAtomic(path+".json", raw); err != nil {
		return fmt.Errorf("write cache meta %s: %w", key, err)
	}
	return nil
}

// WriteAtomic writes data to path+"~" and renames it over path.
func WriteAtomic(path string, data []byte) error {
	tmp := path + "~"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
