package adapters

import (
	"context"
	"sync"
	"time"
)

// Pacer enforces minimum inter-request spacing per adapter instance to
// respect vendor throttling. It is a last-call timestamp gate, not a token
// bucket: each caller reserves the next free slot under the mutex, then
// waits for it outside the lock.
type Pacer struct {
	mu         sync.Mutex
	minSpacing time.Duration
	nextFree   time.Time

	// swappable for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPacer creates a pacer. A non-positive spacing disables pacing.
func NewPacer(minSpacing time.Duration) *Pacer {
	return &Pacer{
		minSpacing: minSpacing,
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

// Wait blocks until the caller's reserved slot arrives. Concurrent callers
// are serialised minSpacing apart in arrival order.
func (p *Pacer) Wait(ctx context.Context) error {
	if p.minSpacing <= 0 {
		return nil
	}

	p.mu.Lock()
	now := p.now()
	slot := p.nextFree
	if slot.Before(now) {
		slot = now
	}
	p.nextFree = slot.Add(p.minSpacing)
	p.mu.Unlock()

	if wait := slot.Sub(now); wait > 0 {
		return p.sleep(ctx, wait)
	}
	return nil
}
