// Package uuid generates session and record identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates time-ordered UUIDv7 strings, so ledger rows sort by
// creation time.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUIDv7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// MustNewID is NewID for process start-up, where failure is fatal anyway.
func (g Generator) MustNewID() string {
	id, err := g.NewID()
	if err != nil {
		panic(err)
	}
	return id
}
