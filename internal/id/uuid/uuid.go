// Package uuid mints the identifiers stamped on crawl runs and API requests.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator mints UUIDv7 strings. IDs from one process sort by creation time,
// so run IDs double as a start-order key in the crawl_runs table.
type Generator struct{}

// New returns a Generator. It carries no state.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUIDv7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return id.String(), nil
}

// NewIDOrRandom is NewID for callers without an error path. When the v7
// source fails it falls back to a random v4 UUID, which is unique but does
// not sort.
func (g Generator) NewIDOrRandom() string {
	if id, err := g.NewID(); err == nil {
		return id
	}
	return uuid.NewString()
}
