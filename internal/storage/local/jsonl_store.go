// Package local writes profile records to the local filesystem as JSON Lines.
package local

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/JakeFAU/roster-crawler/internal/crawler"
)

// Stdout selects standard output instead of a file.
const Stdout = "-"

// Config captures the parameters for the JSON Lines store.
type Config struct {
	// Path is the output file, or "-" for stdout.
	Path string `mapstructure:"path" yaml:"path"`
	// Append keeps existing content instead of truncating.
	Append bool `mapstructure:"append" yaml:"append"`
}

// JSONLStore writes one JSON object per line.
type JSONLStore struct {
	mu     sync.Mutex
	buf    *bufio.Writer
	enc    *json.Encoder
	closer io.Closer
	path   string
}

// New opens the output named by cfg.Path, creating parent directories.
func New(cfg Config) (*JSONLStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, fmt.Errorf("output path is required")
	}
	if path == Stdout {
		return NewWriter(os.Stdout), nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if cfg.Append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	// #nosec G304 -- output path comes from operator configuration.
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}
	s := NewWriter(f)
	s.closer = f
	s.path = path
	return s, nil
}

// NewWriter writes records to w. Close flushes but does not close w.
func NewWriter(w io.Writer) *JSONLStore {
	buf := bufio.NewWriter(w)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return &JSONLStore{buf: buf, enc: enc, path: Stdout}
}

// Path returns the output location.
func (s *JSONLStore) Path() string {
	return s.path
}

// Write encodes rec as a single line.
func (s *JSONLStore) Write(_ context.Context, rec crawler.ProfileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enc == nil {
		return fmt.Errorf("jsonl store is closed")
	}
	if err := s.enc.Encode(rec); err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return nil
}

// Close flushes buffered lines and closes the file.
func (s *JSONLStore) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enc == nil {
		return nil
	}
	s.enc = nil
	if err := s.buf.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	if s.closer != nil {
		if err := s.closer.Close(); err != nil {
			return fmt.Errorf("close output: %w", err)
		}
	}
	return nil
}
