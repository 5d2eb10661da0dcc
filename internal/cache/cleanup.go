package cache

import (
	"context"
	"time"

	"github.com/electwix/kv-catalyst/internal/kcv"
)

// cleanupLoop is the single background worker. It alternates between
// waiting on the penalty signal and scanning for ripe staleness records;
// cancellation at the wait point is the only clean way out. Any other
// failure during a pass is fatal for the worker and logged, since an
// unserviced invalidation backlog would otherwise grow without bound.
func (c *Cache) cleanupLoop(ctx context.Context) {
	defer close(c.done)
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("cache cleanup worker failed", "cache", c.name, "panic", r)
		}
	}()
	for {
		if err := c.penalty.Wait(ctx); err != nil {
			return
		}
		c.runCleanup()
	}
}

// runCleanup performs one cleanup pass: drop staleness records past
// their window (the tracker scan does this as a side effect), collect
// records older than the grace period as ripe, evict every cached entry
// whose storage key is ripe, rearm the penalty countdown, and finally
// retire the ripe records: their staleness has been actively enforced,
// so reads no longer need to bypass for the rest of the window.
func (c *Cache) runCleanup() {
	ripe := make(map[kcv.Key]time.Time)
	for _, rec := range c.tracker.Scan() {
		if c.tracker.Age(rec.until) >= c.grace {
			ripe[rec.key] = rec.until
		}
	}
	evicted := 0
	if len(ripe) > 0 {
		for _, q := range c.store.Keys() {
			if _, ok := ripe[q.Key]; ok {
				if c.store.Remove(q) {
					evicted++
				}
			}
		}
	}
	c.penalty.Reset()
	for key, until := range ripe {
		c.tracker.Remove(key, until)
	}
	if len(ripe) > 0 {
		c.log.Debug("cache cleanup pass", "cache", c.name, "ripe", len(ripe), "evicted", evicted)
	}
}
