// Package clock implements the Lamport logical clock that is ticked once
// for every locally originated CRDT operation and reported as the sync
// request's clock. Operations themselves carry wall-clock timestamps.
package clock

import "sync"

// Clock is a monotonically increasing 64-bit Lamport counter. It is safe
// for concurrent use, though the engine's single-executor model (see
// internal/scheduler) means contention is not expected in practice.
type Clock struct {
	mu      sync.Mutex
	current uint64
}

// New creates a Clock seeded at the given value, typically loaded from
// the persistent state store at startup (zero if none was persisted).
func New(seed uint64) *Clock {
	return &Clock{current: seed}
}

// Tick atomically increments the clock and returns the new value. Every
// locally originated operation must call Tick exactly once before it is
// stamped and enqueued; this guarantees strictly increasing timestamps
// across any single-device history.
func (c *Clock) Tick() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current++
	return c.current
}

// Observe folds in a clock value learned from a remote peer (a sync
// response), advancing the local clock to max(current, remote). It never
// moves the clock backwards and is idempotent: observing the same or a
// smaller value twice has no additional effect.
func (c *Clock) Observe(remote uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if remote > c.current {
		c.current = remote
	}
}

// Snapshot reads the current value without side effects.
func (c *Clock) Snapshot() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}
