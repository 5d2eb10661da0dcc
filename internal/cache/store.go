package cache

import (
	"encoding/binary"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/electwix/kv-catalyst/internal/kcv"
)

// Weight estimation. Each record is charged a fixed bookkeeping cost
// plus the size of its query key and entry payload, mirroring how the
// store actually holds them.
const (
	recordOverhead = 88 // map cell, record struct, time.Time
	keyOverhead    = 16 // string header per buffer in the query key
)

func recordWeight(q kcv.KeySliceQuery, entries kcv.EntryList) int64 {
	keySize := len(q.Key) + len(q.Slice.Start) + len(q.Slice.End) + 3*keyOverhead
	return int64(recordOverhead + keySize + entries.ByteSize())
}

// flightKey encodes a query into a collision-free string, used both for
// shard selection and as the singleflight key.
func flightKey(q kcv.KeySliceQuery) string {
	b := make([]byte, 0, 3*binary.MaxVarintLen64+len(q.Key)+len(q.Slice.Start)+len(q.Slice.End))
	for _, part := range []kcv.Key{q.Key, q.Slice.Start, q.Slice.End} {
		b = binary.AppendUvarint(b, uint64(len(part)))
		b = append(b, part...)
	}
	b = binary.AppendVarint(b, int64(q.Slice.Limit))
	return string(b)
}

type storeRecord struct {
	entries    kcv.EntryList
	insertedAt time.Time
	weight     int64
}

type storeShard struct {
	mu      sync.RWMutex
	records map[kcv.KeySliceQuery]*storeRecord
}

// removeIfSame deletes q only while it still maps to rec, tolerating a
// concurrent overwrite between lookup and removal.
func (sh *storeShard) removeIfSame(q kcv.KeySliceQuery, rec *storeRecord) bool {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.records[q] != rec {
		return false
	}
	delete(sh.records, q)
	return true
}

// sliceStore is the weight-bounded, expire-after-write cache for slice
// query results. Entries expire ttl after insertion, checked lazily on
// access and scan. When the total weight exceeds maxWeight the oldest
// insertions are evicted first; with expire-after-write semantics the
// insertion time already ranks entries by remaining usefulness.
type sliceStore struct {
	shards    []*storeShard
	shardMask uint32
	ttl       time.Duration
	maxWeight int64
	clock     Clock

	weight atomic.Int64
	flight singleflight.Group
}

func newSliceStore(ttl time.Duration, maxWeight int64, shardCount int, clock Clock) *sliceStore {
	if shardCount < 1 {
		shardCount = 1
	}
	// Round up to a power of two so shard selection is a mask.
	n := 1
	for n < shardCount {
		n <<= 1
	}
	s := &sliceStore{
		shards:    make([]*storeShard, n),
		shardMask: uint32(n - 1),
		ttl:       ttl,
		maxWeight: maxWeight,
		clock:     clock,
	}
	for i := range s.shards {
		s.shards[i] = &storeShard{records: make(map[kcv.KeySliceQuery]*storeRecord)}
	}
	return s
}

func (s *sliceStore) shard(q kcv.KeySliceQuery) *storeShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(flightKey(q)))
	return s.shards[h.Sum32()&s.shardMask]
}

func (s *sliceStore) expired(rec *storeRecord) bool {
	return s.clock().Sub(rec.insertedAt) >= s.ttl
}

// Get returns the cached entries for q, treating a TTL-expired record as
// absent and dropping it on the way out.
func (s *sliceStore) Get(q kcv.KeySliceQuery) (kcv.EntryList, bool) {
	sh := s.shard(q)
	sh.mu.RLock()
	rec := sh.records[q]
	sh.mu.RUnlock()
	if rec == nil {
		return nil, false
	}
	if s.expired(rec) {
		if sh.removeIfSame(q, rec) {
			s.weight.Add(-rec.weight)
		}
		return nil, false
	}
	return rec.entries, true
}

// GetOrLoad returns the cached entries for q, invoking load on a miss.
// Concurrent callers for the same query share a single load; a load
// failure propagates to every waiter and nothing is stored.
func (s *sliceStore) GetOrLoad(q kcv.KeySliceQuery, load func() (kcv.EntryList, error)) (kcv.EntryList, error) {
	if entries, ok := s.Get(q); ok {
		return entries, nil
	}
	v, err, _ := s.flight.Do(flightKey(q), func() (any, error) {
		// A racing loader may have stored the result already.
		if entries, ok := s.Get(q); ok {
			return entries, nil
		}
		entries, err := load()
		if err != nil {
			return nil, err
		}
		s.Put(q, entries)
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(kcv.EntryList), nil
}

// Put stores entries for q, overwriting any previous record.
func (s *sliceStore) Put(q kcv.KeySliceQuery, entries kcv.EntryList) {
	rec := &storeRecord{
		entries:    entries,
		insertedAt: s.clock(),
		weight:     recordWeight(q, entries),
	}
	sh := s.shard(q)
	sh.mu.Lock()
	old := sh.records[q]
	sh.records[q] = rec
	sh.mu.Unlock()
	if old != nil {
		s.weight.Add(-old.weight)
	}
	s.weight.Add(rec.weight)
	s.evictIfNeeded()
}

// Remove drops the record for q if present.
func (s *sliceStore) Remove(q kcv.KeySliceQuery) bool {
	sh := s.shard(q)
	sh.mu.Lock()
	rec := sh.records[q]
	if rec != nil {
		delete(sh.records, q)
	}
	sh.mu.Unlock()
	if rec == nil {
		return false
	}
	s.weight.Add(-rec.weight)
	return true
}

// RemoveAll drops every record.
func (s *sliceStore) RemoveAll() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		for q, rec := range sh.records {
			s.weight.Add(-rec.weight)
			delete(sh.records, q)
		}
		sh.mu.Unlock()
	}
}

// Keys returns a point-in-time snapshot of all cached query keys,
// dropping TTL-expired records as it scans.
func (s *sliceStore) Keys() []kcv.KeySliceQuery {
	var keys []kcv.KeySliceQuery
	for _, sh := range s.shards {
		sh.mu.RLock()
		batch := make(map[kcv.KeySliceQuery]*storeRecord, len(sh.records))
		for q, rec := range sh.records {
			batch[q] = rec
		}
		sh.mu.RUnlock()
		for q, rec := range batch {
			if s.expired(rec) {
				if sh.removeIfSame(q, rec) {
					s.weight.Add(-rec.weight)
				}
				continue
			}
			keys = append(keys, q)
		}
	}
	return keys
}

// Len returns the number of records currently held, expired or not.
func (s *sliceStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.records)
		sh.mu.RUnlock()
	}
	return n
}

// Weight returns the total tracked weight.
func (s *sliceStore) Weight() int64 {
	return s.weight.Load()
}

// evictIfNeeded removes oldest-insertion records until the weight budget
// holds again.
func (s *sliceStore) evictIfNeeded() {
	for s.weight.Load() > s.maxWeight {
		q, rec := s.oldest()
		if rec == nil {
			return
		}
		if s.shard(q).removeIfSame(q, rec) {
			s.weight.Add(-rec.weight)
		}
	}
}

func (s *sliceStore) oldest() (kcv.KeySliceQuery, *storeRecord) {
	var (
		oldestQ   kcv.KeySliceQuery
		oldestRec *storeRecord
	)
	for _, sh := range s.shards {
		sh.mu.RLock()
		for q, rec := range sh.records {
			if oldestRec == nil || rec.insertedAt.Before(oldestRec.insertedAt) {
				oldestQ, oldestRec = q, rec
			}
		}
		sh.mu.RUnlock()
	}
	return oldestQ, oldestRec
}
