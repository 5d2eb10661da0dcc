// Package memory provides an in-memory key-column-value store. It backs
// tests and serves as the CLI's default backend.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/electwix/kv-catalyst/internal/kcv"
)

// Store holds rows as column-sorted entry slices per key. It is safe
// for concurrent use.
type Store struct {
	mu   sync.RWMutex
	rows map[kcv.Key][]kcv.Entry
}

// New returns an empty store.
func New() *Store {
	return &Store{rows: make(map[kcv.Key][]kcv.Entry)}
}

// GetSlice returns the entries selected by q, in column order.
func (s *Store) GetSlice(_ context.Context, q kcv.KeySliceQuery, _ *kcv.Transaction) (kcv.EntryList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slice(q.Key, q.Slice), nil
}

// GetSlices answers the same slice query for several keys. Keys without
// matching entries are absent from the result.
func (s *Store) GetSlices(_ context.Context, keys []kcv.Key, slice kcv.SliceQuery, _ *kcv.Transaction) (map[kcv.Key]kcv.EntryList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := make(map[kcv.Key]kcv.EntryList, len(keys))
	for _, key := range keys {
		if entries := s.slice(key, slice); entries != nil {
			results[key] = entries
		}
	}
	return results, nil
}

// slice must be called with the lock held.
func (s *Store) slice(key kcv.Key, q kcv.SliceQuery) kcv.EntryList {
	row := s.rows[key]
	start := sort.Search(len(row), func(i int) bool { return row[i].Column >= q.Start })
	var out kcv.EntryList
	for i := start; i < len(row); i++ {
		if !q.End.IsEmpty() && row[i].Column >= q.End {
			break
		}
		out = append(out, row[i])
		if !q.Unlimited() && len(out) >= q.Limit {
			break
		}
	}
	return out
}

// Put inserts or overwrites entries for key, keeping columns sorted.
func (s *Store) Put(_ context.Context, key kcv.Key, entries kcv.EntryList) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.rows[key]
	byColumn := make(map[kcv.Key]kcv.Key, len(row)+len(entries))
	for _, e := range row {
		byColumn[e.Column] = e.Value
	}
	for _, e := range entries {
		byColumn[e.Column] = e.Value
	}
	merged := make([]kcv.Entry, 0, len(byColumn))
	for col, val := range byColumn {
		merged = append(merged, kcv.Entry{Column: col, Value: val})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Column < merged[j].Column })
	s.rows[key] = merged
	return nil
}

// Delete removes the given columns for key, or the whole key when no
// columns are given.
func (s *Store) Delete(_ context.Context, key kcv.Key, columns []kcv.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(columns) == 0 {
		delete(s.rows, key)
		return nil
	}
	drop := make(map[kcv.Key]struct{}, len(columns))
	for _, col := range columns {
		drop[col] = struct{}{}
	}
	row := s.rows[key]
	kept := row[:0]
	for _, e := range row {
		if _, ok := drop[e.Column]; !ok {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(s.rows, key)
	} else {
		s.rows[key] = kept
	}
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

var (
	_ kcv.Store   = (*Store)(nil)
	_ kcv.Mutator = (*Store)(nil)
)
