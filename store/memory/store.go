// Package memory provides a fully in-memory store. Safe for concurrent
// access. Intended for unit testing and development; it gives the same
// atomicity guarantees as the networked backends, with the mutex standing
// in for the store's conditional writes.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/machinalis/featureforge"
	"github.com/machinalis/featureforge/record"
)

// Ensure Store implements record.Store at compile time.
var _ record.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu      sync.RWMutex
	records map[string]*record.Record
}

// New returns a new empty Store.
func New() *Store {
	return &Store{records: make(map[string]*record.Record)}
}

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// CreateRecord atomically persists a new Booked record.
func (m *Store) CreateRecord(_ context.Context, rec *record.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[rec.Key]; exists {
		return featureforge.ErrRecordExists
	}
	m.records[rec.Key] = rec.Clone()
	return nil
}

// GetRecord retrieves the record for key.
func (m *Store) GetRecord(_ context.Context, key string) (*record.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[key]
	if !ok {
		return nil, featureforge.ErrRecordNotFound
	}
	// Return a copy so callers can mutate without racing with the store.
	return rec.Clone(), nil
}

// SwapBookedAt atomically re-books a stale claim.
func (m *Store) SwapBookedAt(_ context.Context, key string, expected, next time.Time, by string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok {
		return featureforge.ErrRecordNotFound
	}
	if rec.Status != record.StatusBooked || !rec.BookedAt.Equal(expected) {
		return featureforge.ErrClaimConflict
	}
	rec.BookedAt = next
	rec.BookedBy = by
	return nil
}

// WriteResults atomically transitions a Booked record to Solved.
func (m *Store) WriteResults(_ context.Context, key string, results featureforge.Results, solvedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok {
		return featureforge.ErrRecordNotFound
	}
	if rec.Status != record.StatusBooked {
		return featureforge.ErrClaimConflict
	}
	rec.Status = record.StatusSolved
	rec.Results = results.Clone()
	t := solvedAt
	rec.SolvedAt = &t
	return nil
}

// ListRecords returns records matching opts, ordered by key for
// deterministic iteration.
func (m *Store) ListRecords(_ context.Context, opts record.ListOpts) ([]*record.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*record.Record, 0, len(m.records))
	for _, rec := range m.records {
		if opts.Status != "" && rec.Status != opts.Status {
			continue
		}
		result = append(result, rec.Clone())
	}

	sort.Slice(result, func(i, k int) bool { return result[i].Key < result[k].Key })

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}
