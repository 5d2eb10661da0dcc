package cache

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/electwix/kv-catalyst/internal/kcv"
)

// staleRecord is one tracked invalidation: reads for key must bypass the
// cache until the until timestamp passes.
type staleRecord struct {
	key   kcv.Key
	until time.Time
}

type trackerShard struct {
	mu    sync.Mutex
	until map[kcv.Key]time.Time
}

// staleTracker maps storage keys to stale-until timestamps. An
// invalidation at time t sets the timestamp to t+ttl; because cached
// entries expire ttl after insertion, any entry cached before the
// invalidation is gone by then, so the window closing is sufficient to
// trust the cache again. Records are removed lazily when found past
// their timestamp, or proactively by the cleanup worker.
type staleTracker struct {
	shards []*trackerShard
	mask   uint32
	ttl    time.Duration
	clock  Clock
}

func newStaleTracker(ttl time.Duration, shardCount int, clock Clock) *staleTracker {
	if shardCount < 1 {
		shardCount = 1
	}
	n := 1
	for n < shardCount {
		n <<= 1
	}
	t := &staleTracker{
		shards: make([]*trackerShard, n),
		mask:   uint32(n - 1),
		ttl:    ttl,
		clock:  clock,
	}
	for i := range t.shards {
		t.shards[i] = &trackerShard{until: make(map[kcv.Key]time.Time)}
	}
	return t
}

func (t *staleTracker) shard(key kcv.Key) *trackerShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return t.shards[h.Sum32()&t.mask]
}

// MarkStale opens (or refreshes) the staleness window for key. It always
// overwrites: repeated invalidations extend the window.
func (t *staleTracker) MarkStale(key kcv.Key) {
	until := t.clock().Add(t.ttl)
	sh := t.shard(key)
	sh.mu.Lock()
	sh.until[key] = until
	sh.mu.Unlock()
}

// IsStale reports whether reads for key must bypass the cache. A record
// found past its window is removed and no longer counts as stale.
func (t *staleTracker) IsStale(key kcv.Key) bool {
	sh := t.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	until, ok := sh.until[key]
	if !ok {
		return false
	}
	if until.Before(t.clock()) {
		delete(sh.until, key)
		return false
	}
	return true
}

// Age returns the time elapsed since the invalidation that produced the
// given stale-until timestamp. The clock is expected to be monotonic; a
// negative difference from clock skew clamps to zero rather than
// surfacing as an error.
func (t *staleTracker) Age(until time.Time) time.Duration {
	age := t.clock().Sub(until.Add(-t.ttl))
	if age < 0 {
		return 0
	}
	return age
}

// Remove drops the record for key only while it still carries the given
// timestamp, so a refreshed invalidation is never lost.
func (t *staleTracker) Remove(key kcv.Key, until time.Time) bool {
	sh := t.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if got, ok := sh.until[key]; !ok || !got.Equal(until) {
		return false
	}
	delete(sh.until, key)
	return true
}

// Scan returns a point-in-time snapshot of open staleness windows,
// opportunistically dropping records found past theirs.
func (t *staleTracker) Scan() []staleRecord {
	now := t.clock()
	var records []staleRecord
	for _, sh := range t.shards {
		sh.mu.Lock()
		for key, until := range sh.until {
			if until.Before(now) {
				delete(sh.until, key)
				continue
			}
			records = append(records, staleRecord{key: key, until: until})
		}
		sh.mu.Unlock()
	}
	return records
}

// Clear drops every record.
func (t *staleTracker) Clear() {
	for _, sh := range t.shards {
		sh.mu.Lock()
		sh.until = make(map[kcv.Key]time.Time)
		sh.mu.Unlock()
	}
}

// Len returns the number of tracked keys.
func (t *staleTracker) Len() int {
	n := 0
	for _, sh := range t.shards {
		sh.mu.Lock()
		n += len(sh.until)
		sh.mu.Unlock()
	}
	return n
}
