// Package metrics defines the event sink the caching layer reports to.
//
// The cache only emits increment-by-N events tagged with an Action; what
// a sink does with them (counters, a metrics registry, nothing) is up to
// the caller. Counters is a ready-made atomic implementation used by
// tests and the CLI.
package metrics

import (
	"sync/atomic"

	"github.com/electwix/kv-catalyst/internal/kcv"
)

// Action classifies a cache event.
type Action int

const (
	// Retrieval counts every requested key, hit or miss.
	Retrieval Action = iota
	// Miss counts every key that had to be read from the backend.
	Miss
)

func (a Action) String() string {
	switch a {
	case Retrieval:
		return "retrieval"
	case Miss:
		return "miss"
	default:
		return "unknown"
	}
}

// Sink receives cache events. Implementations must be safe for
// concurrent use.
type Sink interface {
	IncBy(action Action, n int, tx *kcv.Transaction)
}

// Nop discards all events.
type Nop struct{}

func (Nop) IncBy(Action, int, *kcv.Transaction) {}

// Counters is a Sink backed by atomic counters, tagged with the cache
// instance name it observes.
type Counters struct {
	name       string
	retrievals atomic.Int64
	misses     atomic.Int64
}

// NewCounters returns counters for the named cache instance.
func NewCounters(name string) *Counters {
	return &Counters{name: name}
}

// IncBy records n events of the given action.
func (c *Counters) IncBy(action Action, n int, _ *kcv.Transaction) {
	switch action {
	case Retrieval:
		c.retrievals.Add(int64(n))
	case Miss:
		c.misses.Add(int64(n))
	}
}

// Name returns the observed cache instance name.
func (c *Counters) Name() string { return c.name }

// Retrievals returns the total retrieval count.
func (c *Counters) Retrievals() int64 { return c.retrievals.Load() }

// Misses returns the total miss count.
func (c *Counters) Misses() int64 { return c.misses.Load() }

var (
	_ Sink = Nop{}
	_ Sink = (*Counters)(nil)
)
