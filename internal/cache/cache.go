package cache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/electwix/kv-catalyst/internal/kcv"
	"github.com/electwix/kv-catalyst/internal/logging"
	"github.com/electwix/kv-catalyst/internal/metrics"
)

// defaultSamplingRate is the probability that a single invalidation
// contributes a penalty event. Forced bypasses always contribute, so
// the worker's wake-up stays tied to actual wasted reads; the sampled
// path only bounds how long a pure invalidation stream can go without
// a wake.
const defaultSamplingRate = 1.0 / 1000

// clockSkewAllowance is how far ahead of the wall clock a stale-until
// timestamp may reach before the arithmetic risks overflowing.
const clockSkewAllowance = 100 * 365 * 24 * time.Hour

// ErrEntryGranularity reports an attempt to invalidate with
// entry-level detail; this cache tracks invalidations per key only.
var ErrEntryGranularity = errors.New("cache: invalidation is key-granular, entry-level detail is not supported")

// ErrReadOnlyBackend reports a write through a backend that does not
// implement kcv.Mutator.
var ErrReadOnlyBackend = errors.New("cache: backend does not support writes")

// OptionError reports an invalid construction option. Construction
// fails fast; options are never re-validated at runtime.
type OptionError struct {
	Option string
	Reason string
}

func (e *OptionError) Error() string {
	return fmt.Sprintf("cache option %s: %s", e.Option, e.Reason)
}

// Options configures a Cache. CacheTime and MaximumByteSize are
// required; everything else has a sensible default.
type Options struct {
	// Name tags log lines and metric events for this instance.
	Name string
	// CacheTime is the TTL for cached entries and, equally, the length
	// of the staleness window opened by an invalidation. Must be > 0.
	CacheTime time.Duration
	// ExpirationGracePeriod is the staleness age after which the
	// cleanup worker evicts a key's cached entries instead of waiting
	// out the rest of the window. Must be >= 0 and should be well below
	// CacheTime to be useful.
	ExpirationGracePeriod time.Duration
	// MaximumByteSize bounds the total weight of cached entries. Must
	// be > 0.
	MaximumByteSize int64
	// ShardCount tunes internal map sharding; it is rounded up to a
	// power of two and defaults to GOMAXPROCS. Not semantically
	// load-bearing.
	ShardCount int
	// InvalidationSamplingRate is the probability that one invalidation
	// contributes a penalty event. Zero selects the default of 1/1000.
	InvalidationSamplingRate float64
	// Clock defaults to time.Now.
	Clock Clock
	// Logger defaults to a no-op logger.
	Logger logging.Logger
	// Metrics defaults to a no-op sink.
	Metrics metrics.Sink

	// randFloat overrides the sampling source in tests.
	randFloat func() float64
}

// Cache is the read-through slice cache fronting a kcv.Store. It
// implements kcv.Store itself, so callers and backends are
// interchangeable.
type Cache struct {
	backend kcv.Store
	store   *sliceStore
	tracker *staleTracker
	penalty *penaltySignal
	sink    metrics.Sink
	log     logging.Logger
	clock   Clock

	name         string
	grace        time.Duration
	samplingRate float64
	randFloat    func() float64

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// New validates opts, wraps backend and starts the cleanup worker.
func New(backend kcv.Store, opts Options) (*Cache, error) {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.CacheTime <= 0 {
		return nil, &OptionError{Option: "CacheTime", Reason: fmt.Sprintf("must be positive, got %s", opts.CacheTime)}
	}
	if math.MaxInt64-opts.Clock().UnixNano()-int64(clockSkewAllowance) < int64(opts.CacheTime) {
		return nil, &OptionError{Option: "CacheTime", Reason: fmt.Sprintf("too large, expiration arithmetic would overflow: %s", opts.CacheTime)}
	}
	if opts.ExpirationGracePeriod < 0 {
		return nil, &OptionError{Option: "ExpirationGracePeriod", Reason: fmt.Sprintf("must not be negative, got %s", opts.ExpirationGracePeriod)}
	}
	if opts.MaximumByteSize <= 0 {
		return nil, &OptionError{Option: "MaximumByteSize", Reason: fmt.Sprintf("must be positive, got %d", opts.MaximumByteSize)}
	}
	if opts.InvalidationSamplingRate < 0 || opts.InvalidationSamplingRate > 1 || math.IsNaN(opts.InvalidationSamplingRate) {
		return nil, &OptionError{Option: "InvalidationSamplingRate", Reason: fmt.Sprintf("must be in [0, 1], got %v", opts.InvalidationSamplingRate)}
	}
	if opts.InvalidationSamplingRate == 0 {
		opts.InvalidationSamplingRate = defaultSamplingRate
	}
	if opts.ShardCount < 1 {
		opts.ShardCount = runtime.GOMAXPROCS(0)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	if opts.randFloat == nil {
		opts.randFloat = rand.Float64
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		backend:      backend,
		store:        newSliceStore(opts.CacheTime, opts.MaximumByteSize, opts.ShardCount, opts.Clock),
		tracker:      newStaleTracker(opts.CacheTime, opts.ShardCount, opts.Clock),
		penalty:      newPenaltySignal(),
		sink:         opts.Metrics,
		log:          opts.Logger,
		clock:        opts.Clock,
		name:         opts.Name,
		grace:        opts.ExpirationGracePeriod,
		samplingRate: opts.InvalidationSamplingRate,
		randFloat:    opts.randFloat,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	go c.cleanupLoop(ctx)
	return c, nil
}

// bypass reports whether reads for key must skip the cache, feeding the
// penalty signal on every forced bypass.
func (c *Cache) bypass(key kcv.Key) bool {
	if !c.tracker.IsStale(key) {
		return false
	}
	c.penalty.Notify()
	return true
}

// GetSlice answers a single-key slice read, through the cache when the
// key is trusted and straight from the backend while it is stale.
func (c *Cache) GetSlice(ctx context.Context, q kcv.KeySliceQuery, tx *kcv.Transaction) (kcv.EntryList, error) {
	c.sink.IncBy(metrics.Retrieval, 1, tx)
	if c.bypass(q.Key) {
		c.sink.IncBy(metrics.Miss, 1, tx)
		entries, err := c.backend.GetSlice(ctx, q, tx)
		if err != nil {
			return nil, kcv.WrapBackend("slice read", err)
		}
		return entries, nil
	}
	entries, err := c.store.GetOrLoad(q, func() (kcv.EntryList, error) {
		c.sink.IncBy(metrics.Miss, 1, tx)
		entries, err := c.backend.GetSlice(ctx, q, tx)
		if err != nil {
			return nil, kcv.WrapBackend("slice read", err)
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// GetSlices answers one slice query for several keys. Stale keys and
// cache misses are fetched from the backend in a single multi-key read;
// only results for non-stale keys are written back to the cache, since a
// stale key's fresh result is about to be invalidation-tracked again.
func (c *Cache) GetSlices(ctx context.Context, keys []kcv.Key, slice kcv.SliceQuery, tx *kcv.Transaction) (map[kcv.Key]kcv.EntryList, error) {
	c.sink.IncBy(metrics.Retrieval, len(keys), tx)

	results := make(map[kcv.Key]kcv.EntryList, len(keys))
	remaining := make([]kcv.Key, 0, len(keys))
	// queries[i] is nil for keys that must not touch the cache.
	queries := make([]*kcv.KeySliceQuery, len(keys))
	for i, key := range keys {
		if c.bypass(key) {
			remaining = append(remaining, key)
			continue
		}
		q := slice.ForKey(key)
		queries[i] = &q
		if entries, ok := c.store.Get(q); ok {
			results[key] = entries
		} else {
			remaining = append(remaining, key)
		}
	}
	if len(remaining) == 0 {
		return results, nil
	}

	c.sink.IncBy(metrics.Miss, len(remaining), tx)
	fetched, err := c.backend.GetSlices(ctx, remaining, slice, tx)
	if err != nil {
		return nil, kcv.WrapBackend("multi slice read", err)
	}
	for i, key := range keys {
		entries, ok := fetched[key]
		if !ok {
			continue
		}
		results[key] = entries
		if queries[i] != nil {
			c.store.Put(*queries[i], entries)
		}
	}
	return results, nil
}

// Invalidate opens the staleness window for key. It never touches
// cached data; reads bypass the cache until the window closes or the
// cleanup worker enforces the staleness early. The entries argument
// exists for symmetry with finer-grained caches and must be empty here.
func (c *Cache) Invalidate(key kcv.Key, entries kcv.EntryList) error {
	if len(entries) != 0 {
		return ErrEntryGranularity
	}
	c.tracker.MarkStale(key)
	if c.randFloat() < c.samplingRate {
		c.penalty.Notify()
	}
	return nil
}

// Apply writes mutations through to the backend and invalidates the
// key. The backend must implement kcv.Mutator.
func (c *Cache) Apply(ctx context.Context, key kcv.Key, additions kcv.EntryList, deletions []kcv.Key, _ *kcv.Transaction) error {
	m, ok := c.backend.(kcv.Mutator)
	if !ok {
		return ErrReadOnlyBackend
	}
	if len(deletions) > 0 {
		if err := m.Delete(ctx, key, deletions); err != nil {
			return kcv.WrapBackend("delete", err)
		}
	}
	if len(additions) > 0 {
		if err := m.Put(ctx, key, additions); err != nil {
			return kcv.WrapBackend("put", err)
		}
	}
	return c.Invalidate(key, nil)
}

// Drop removes every entry for key from the backend and invalidates it.
func (c *Cache) Drop(ctx context.Context, key kcv.Key, _ *kcv.Transaction) error {
	m, ok := c.backend.(kcv.Mutator)
	if !ok {
		return ErrReadOnlyBackend
	}
	if err := m.Delete(ctx, key, nil); err != nil {
		return kcv.WrapBackend("delete", err)
	}
	return c.Invalidate(key, nil)
}

// Clear empties the cache and all staleness bookkeeping and rearms the
// penalty countdown.
func (c *Cache) Clear() {
	c.store.RemoveAll()
	c.tracker.Clear()
	c.penalty.Reset()
}

// Stats is a point-in-time view of cache occupancy.
type Stats struct {
	Records int
	Weight  int64
	Stale   int
}

// Stats returns current occupancy numbers.
func (c *Cache) Stats() Stats {
	return Stats{
		Records: c.store.Len(),
		Weight:  c.store.Weight(),
		Stale:   c.tracker.Len(),
	}
}

// Close stops the cleanup worker, waits for it to exit and then closes
// the backend. In-flight reads are allowed to complete.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		<-c.done
		c.closeErr = c.backend.Close()
	})
	return c.closeErr
}

var _ kcv.Store = (*Cache)(nil)
