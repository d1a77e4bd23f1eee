// Package memory keeps profile records in-process for tests and dry runs.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/JakeFAU/roster-crawler/internal/crawler"
)

// RecordStore implements crawler.RecordSink in memory.
type RecordStore struct {
	mu      sync.RWMutex
	records []crawler.ProfileRecord
	closed  bool
}

// NewRecordStore creates an empty store.
func NewRecordStore() *RecordStore {
	return &RecordStore{}
}

// Write appends a copy of rec.
func (s *RecordStore) Write(_ context.Context, rec crawler.ProfileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, cloneRecord(rec))
	return nil
}

// Close marks the store closed. Records stay readable.
func (s *RecordStore) Close(context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Records returns the stored records in write order.
func (s *RecordStore) Records() []crawler.ProfileRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.ProfileRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Closed reports whether Close was called.
func (s *RecordStore) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func cloneRecord(rec crawler.ProfileRecord) crawler.ProfileRecord {
	out := rec
	out.ContactDetails = maps.Clone(rec.ContactDetails)
	out.SocialAccounts = maps.Clone(rec.SocialAccounts)
	out.Offices = append([]string{}, rec.Offices...)
	out.Languages = append([]string{}, rec.Languages...)
	return out
}
