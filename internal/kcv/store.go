package kcv

import "context"

// Store is the read surface of a key-column-value backend.
type Store interface {
	// GetSlice returns the entries selected by q, in column order.
	GetSlice(ctx context.Context, q KeySliceQuery, tx *Transaction) (EntryList, error)

	// GetSlices answers the same slice query for several keys in one
	// backend round trip. Keys without entries are absent from the
	// result map.
	GetSlices(ctx context.Context, keys []Key, slice SliceQuery, tx *Transaction) (map[Key]EntryList, error)

	// Close releases backend resources.
	Close() error
}

// Mutator is the write surface of a backend. Backends that can be
// written through (SQLite, Postgres, memory) implement it alongside
// Store.
type Mutator interface {
	// Put inserts or overwrites the given entries for key.
	Put(ctx context.Context, key Key, entries EntryList) error

	// Delete removes the given columns for key. With no columns it
	// removes every entry for the key.
	Delete(ctx context.Context, key Key, columns []Key) error
}
