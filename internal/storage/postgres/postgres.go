// Package postgres provides a key-column-value store backed by
// PostgreSQL through jackc/pgx.
package postgres

import (
	"context"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/electwix/kv-catalyst/internal/kcv"
)

const schema = `
CREATE TABLE IF NOT EXISTS kcv_entries (
	k   BYTEA NOT NULL,
	col BYTEA NOT NULL,
	val BYTEA NOT NULL,
	PRIMARY KEY (k, col)
)`

// Store is a kcv.Store and kcv.Mutator over a pgx connection pool.
// BYTEA comparison is bytewise, matching the cache's key ordering.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to url and ensures the schema exists.
func Open(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, kcv.WrapBackend("open postgres", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, kcv.WrapBackend("init postgres schema", err)
	}
	return &Store{pool: pool}, nil
}

// GetSlice returns the entries selected by q, in column order.
func (s *Store) GetSlice(ctx context.Context, q kcv.KeySliceQuery, _ *kcv.Transaction) (kcv.EntryList, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT col, val FROM kcv_entries WHERE k = $1 AND col >= $2`)
	args := []any{q.Key.Bytes(), q.Slice.Start.Bytes()}
	if !q.Slice.End.IsEmpty() {
		sb.WriteString(` AND col < $3`)
		args = append(args, q.Slice.End.Bytes())
	}
	sb.WriteString(` ORDER BY col`)
	if !q.Slice.Unlimited() {
		sb.WriteString(` LIMIT $`)
		sb.WriteString(strconv.Itoa(len(args) + 1))
		args = append(args, q.Slice.Limit)
	}

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, kcv.WrapBackend("postgres slice read", err)
	}
	defer rows.Close()

	var entries kcv.EntryList
	for rows.Next() {
		var col, val []byte
		if err := rows.Scan(&col, &val); err != nil {
			return nil, kcv.WrapBackend("postgres slice read", err)
		}
		entries = append(entries, kcv.Entry{Column: kcv.KeyOf(col), Value: kcv.KeyOf(val)})
	}
	if err := rows.Err(); err != nil {
		return nil, kcv.WrapBackend("postgres slice read", err)
	}
	return entries, nil
}

// GetSlices answers the slice query for several keys with one statement.
func (s *Store) GetSlices(ctx context.Context, keys []kcv.Key, slice kcv.SliceQuery, _ *kcv.Transaction) (map[kcv.Key]kcv.EntryList, error) {
	results := make(map[kcv.Key]kcv.EntryList, len(keys))
	if len(keys) == 0 {
		return results, nil
	}

	rawKeys := make([][]byte, len(keys))
	for i, key := range keys {
		rawKeys[i] = key.Bytes()
	}

	var sb strings.Builder
	sb.WriteString(`SELECT k, col, val FROM kcv_entries WHERE k = ANY($1) AND col >= $2`)
	args := []any{rawKeys, slice.Start.Bytes()}
	if !slice.End.IsEmpty() {
		sb.WriteString(` AND col < $3`)
		args = append(args, slice.End.Bytes())
	}
	sb.WriteString(` ORDER BY k, col`)

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, kcv.WrapBackend("postgres multi slice read", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k, col, val []byte
		if err := rows.Scan(&k, &col, &val); err != nil {
			return nil, kcv.WrapBackend("postgres multi slice read", err)
		}
		key := kcv.KeyOf(k)
		// The limit applies per key, so it cannot live in the SQL.
		if !slice.Unlimited() && len(results[key]) >= slice.Limit {
			continue
		}
		results[key] = append(results[key], kcv.Entry{Column: kcv.KeyOf(col), Value: kcv.KeyOf(val)})
	}
	if err := rows.Err(); err != nil {
		return nil, kcv.WrapBackend("postgres multi slice read", err)
	}
	return results, nil
}

// Put inserts or overwrites entries for key in one batch.
func (s *Store) Put(ctx context.Context, key kcv.Key, entries kcv.EntryList) error {
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
INSERT INTO kcv_entries (k, col, val) VALUES ($1, $2, $3)
ON CONFLICT (k, col) DO UPDATE SET val = EXCLUDED.val`,
			key.Bytes(), e.Column.Bytes(), e.Value.Bytes())
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return kcv.WrapBackend("postgres put", err)
	}
	return nil
}

// Delete removes the given columns for key, or the whole key when no
// columns are given.
func (s *Store) Delete(ctx context.Context, key kcv.Key, columns []kcv.Key) error {
	if len(columns) == 0 {
		if _, err := s.pool.Exec(ctx, `DELETE FROM kcv_entries WHERE k = $1`, key.Bytes()); err != nil {
			return kcv.WrapBackend("postgres delete", err)
		}
		return nil
	}
	rawCols := make([][]byte, len(columns))
	for i, col := range columns {
		rawCols[i] = col.Bytes()
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM kcv_entries WHERE k = $1 AND col = ANY($2)`, key.Bytes(), rawCols); err != nil {
		return kcv.WrapBackend("postgres delete", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

var (
	_ kcv.Store   = (*Store)(nil)
	_ kcv.Mutator = (*Store)(nil)
)
