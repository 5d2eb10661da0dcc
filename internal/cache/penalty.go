package cache

import (
	"context"
	"sync"
)

// penaltyThreshold is how many penalty events accumulate before the
// cleanup worker is released.
const penaltyThreshold = 5

// penaltySignal is a resettable countdown: Notify decrements the
// counter, and the transition to zero releases exactly one waiter
// through a one-slot channel. Further notifications are absorbed until
// Reset rearms the countdown for the next cycle. The channel send
// happens under the mutex, so a countdown reaching zero can never race
// with a reset into a lost or doubled wake.
type penaltySignal struct {
	mu        sync.Mutex
	remaining int
	fire      chan struct{}
}

func newPenaltySignal() *penaltySignal {
	return &penaltySignal{
		remaining: penaltyThreshold,
		fire:      make(chan struct{}, 1),
	}
}

// Notify records one penalty event.
func (p *penaltySignal) Notify() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remaining == 0 {
		return
	}
	p.remaining--
	if p.remaining == 0 {
		select {
		case p.fire <- struct{}{}:
		default:
		}
	}
}

// Reset rearms the countdown. Called after each cleanup pass and on a
// full cache clear.
func (p *penaltySignal) Reset() {
	p.mu.Lock()
	p.remaining = penaltyThreshold
	p.mu.Unlock()
}

// Wait blocks until the countdown fires or ctx is cancelled.
func (p *penaltySignal) Wait(ctx context.Context) error {
	select {
	case <-p.fire:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
