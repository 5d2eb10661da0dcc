// Package sqlite provides a key-column-value store backed by SQLite,
// using the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/electwix/kv-catalyst/internal/kcv"
)

const schema = `
CREATE TABLE IF NOT EXISTS kcv_entries (
	k   BLOB NOT NULL,
	col BLOB NOT NULL,
	val BLOB NOT NULL,
	PRIMARY KEY (k, col)
) WITHOUT ROWID;
`

// Store is a kcv.Store and kcv.Mutator over a single SQLite database.
// BLOB comparison is bytewise, so column ranges behave exactly like the
// in-memory store's key ordering.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path. Use ":memory:"
// for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, kcv.WrapBackend("open sqlite", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, kcv.WrapBackend("init sqlite schema", err)
	}
	return &Store{db: db}, nil
}

// GetSlice returns the entries selected by q, in column order.
func (s *Store) GetSlice(ctx context.Context, q kcv.KeySliceQuery, _ *kcv.Transaction) (kcv.EntryList, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT col, val FROM kcv_entries WHERE k = ? AND col >= ?`)
	args := []any{q.Key.Bytes(), q.Slice.Start.Bytes()}
	if !q.Slice.End.IsEmpty() {
		sb.WriteString(` AND col < ?`)
		args = append(args, q.Slice.End.Bytes())
	}
	sb.WriteString(` ORDER BY col`)
	if !q.Slice.Unlimited() {
		sb.WriteString(` LIMIT ?`)
		args = append(args, q.Slice.Limit)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, kcv.WrapBackend("sqlite slice read", err)
	}
	defer rows.Close()

	var entries kcv.EntryList
	for rows.Next() {
		var col, val []byte
		if err := rows.Scan(&col, &val); err != nil {
			return nil, kcv.WrapBackend("sqlite slice read", err)
		}
		entries = append(entries, kcv.Entry{Column: kcv.KeyOf(col), Value: kcv.KeyOf(val)})
	}
	if err := rows.Err(); err != nil {
		return nil, kcv.WrapBackend("sqlite slice read", err)
	}
	return entries, nil
}

// GetSlices answers the slice query for several keys with one statement.
func (s *Store) GetSlices(ctx context.Context, keys []kcv.Key, slice kcv.SliceQuery, _ *kcv.Transaction) (map[kcv.Key]kcv.EntryList, error) {
	results := make(map[kcv.Key]kcv.EntryList, len(keys))
	if len(keys) == 0 {
		return results, nil
	}

	var sb strings.Builder
	sb.WriteString(`SELECT k, col, val FROM kcv_entries WHERE k IN (`)
	args := make([]any, 0, len(keys)+2)
	for i, key := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("?")
		args = append(args, key.Bytes())
	}
	sb.WriteString(`) AND col >= ?`)
	args = append(args, slice.Start.Bytes())
	if !slice.End.IsEmpty() {
		sb.WriteString(` AND col < ?`)
		args = append(args, slice.End.Bytes())
	}
	sb.WriteString(` ORDER BY k, col`)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, kcv.WrapBackend("sqlite multi slice read", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k, col, val []byte
		if err := rows.Scan(&k, &col, &val); err != nil {
			return nil, kcv.WrapBackend("sqlite multi slice read", err)
		}
		key := kcv.KeyOf(k)
		// The limit applies per key, so it cannot live in the SQL.
		if !slice.Unlimited() && len(results[key]) >= slice.Limit {
			continue
		}
		results[key] = append(results[key], kcv.Entry{Column: kcv.KeyOf(col), Value: kcv.KeyOf(val)})
	}
	if err := rows.Err(); err != nil {
		return nil, kcv.WrapBackend("sqlite multi slice read", err)
	}
	return results, nil
}

// Put inserts or overwrites entries for key in one transaction.
func (s *Store) Put(ctx context.Context, key kcv.Key, entries kcv.EntryList) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return kcv.WrapBackend("sqlite put", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO kcv_entries (k, col, val) VALUES (?, ?, ?)
ON CONFLICT (k, col) DO UPDATE SET val = excluded.val`)
	if err != nil {
		return kcv.WrapBackend("sqlite put", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, key.Bytes(), e.Column.Bytes(), e.Value.Bytes()); err != nil {
			return kcv.WrapBackend("sqlite put", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return kcv.WrapBackend("sqlite put", err)
	}
	return nil
}

// Delete removes the given columns for key, or the whole key when no
// columns are given.
func (s *Store) Delete(ctx context.Context, key kcv.Key, columns []kcv.Key) error {
	if len(columns) == 0 {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM kcv_entries WHERE k = ?`, key.Bytes()); err != nil {
			return kcv.WrapBackend("sqlite delete", err)
		}
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`DELETE FROM kcv_entries WHERE k = ? AND col IN (`)
	args := []any{key.Bytes()}
	for i, col := range columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("?")
		args = append(args, col.Bytes())
	}
	sb.WriteString(")")
	if _, err := s.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return kcv.WrapBackend("sqlite delete", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

var (
	_ kcv.Store   = (*Store)(nil)
	_ kcv.Mutator = (*Store)(nil)
)
