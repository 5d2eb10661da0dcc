// Package cache implements the read-through slice cache that fronts a
// key-column-value backend.
//
// The cache absorbs repeated (key, column-slice) reads and keeps writes
// made elsewhere visible within a bounded staleness window, without any
// cross-node coordination. Invalidating a key never touches cached data
// directly; it records a stale-until timestamp equal to the invalidation
// time plus the cache TTL. While that window is open, reads for the key
// bypass the cache. Once it closes, any entry cached before the
// invalidation has necessarily passed its own TTL, so trusting the cache
// again is safe without scrubbing it.
//
// A single background worker shortens the bypass window: it wakes when
// enough penalty events accumulate (sampled invalidations plus actual
// forced bypasses), evicts cached entries for keys whose staleness has
// outlived the grace period, and drops the staleness records it
// enforced.
package cache
