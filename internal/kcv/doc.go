// Package kcv defines the key-column-value data model shared by storage
// backends and the caching layer.
//
// A key addresses an ordered set of column/value entries. Reads are
// expressed as slice queries: a column range plus an optional result
// limit. Backends implement Store (reads) and usually Mutator (writes);
// the cache in internal/cache wraps a Store and presents the same
// surface.
package kcv
