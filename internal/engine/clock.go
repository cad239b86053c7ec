package engine

import "sync/atomic"

// Clock is the monotonic logical clock stamping admission order on
// incoming requests and scheduled commands.
//
// Admission order breaks priority ties deterministically: two requests
// of equal priority commit in the order they arrived, regardless of
// wall-clock jitter.
//
// Thread-safety: safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Uint64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
// Calls are linearizable - each call returns a unique, increasing value.
func (c *Clock) Next() uint64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() uint64 {
	return c.seq.Load()
}
