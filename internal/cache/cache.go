// Package cache defines the content cache used by site scrapers. Backends
// live in subpackages.
package cache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/JakeFAU/pagecrawl/internal/hash/sha256"
)

// MaxKeyLength keeps keys within common filesystem name limits.
const MaxKeyLength = 200

// ErrInvalidKey is returned for empty keys or keys containing path separators.
var ErrInvalidKey = errors.New("invalid cache key")

// Meta is the side metadata stored next to cached content.
type Meta struct {
	Status  int    `json:"status,omitempty"`
	RealURL string `json:"realurl,omitempty"`
}

// Entry is a cached object. Meta is nil when none was stored.
type Entry struct {
	Content []byte
	Meta    *Meta
}

// Cache is a key/value content store with optional metadata.
type Cache interface {
	// Get returns the entry and true when content exists for key.
	Get(ctx context.Context, key string) (Entry, bool, error)
	// Set stores content and, when meta is non-nil, its metadata.
	Set(ctx context.Context, key string, content []byte, meta *Meta) error
}

// KeyForURL derives a flat cache key from a URL: the query-escaped URL plus
// ext. Keys longer than MaxKeyLength fall back to the SHA-256 of the URL.
func KeyForURL(rawURL, ext string) string {
	key := url.QueryEscape(rawURL) + ext
	if len(key) <= MaxKeyLength {
		return key
	}
	return sha256.HexString(rawURL) + ext
}

// ValidateKey rejects keys that could escape a backend's namespace.
func ValidateKey(key string) error {
	switch {
	case strings.TrimSpace(key) == "":
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	case strings.ContainsAny(key, `/\`), key == "." || key == "..":
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// MetaKey is the key metadata is stored under for key.
func MetaKey(key string) string {
	return key + ".json"
}
