package delivery

import (
	"fmt"
	"runtime"
	"sync/atomic"
)

// DefaultCapacity is the default ring size. Power of two.
const DefaultCapacity = 256

// pushSpinBudget bounds how long Push waits for the consumer to free a
// slot before reporting the queue full. Kept small: the producer runs
// on the control path and must stay responsive.
const pushSpinBudget = 64

// DefaultRetryAfterMs is the backoff hint returned on a full queue.
// One consumer processing quantum is typically well under this.
const DefaultRetryAfterMs = 10

// FullError reports bounded resource pressure on the ring. Always
// retryable: the command was NOT enqueued and the caller owns the
// retry decision - nothing is silently discarded.
type FullError struct {
	// RetryAfterMs is the suggested backoff before retrying.
	RetryAfterMs int
}

// Error implements the error interface.
func (e *FullError) Error() string {
	return fmt.Sprintf("command queue full, retry after %dms", e.RetryAfterMs)
}

// Queue is a bounded single-producer/single-consumer command ring.
//
// Thread-safety model:
//   - Push(): exactly ONE producer goroutine (the engine commit loop)
//   - Dequeue(): exactly ONE consumer (the real-time reader)
//
// No other writer is permitted. The ring uses atomic head/tail indexes
// so neither side ever takes a lock; Dequeue never blocks and never
// allocates.
//
// INVARIANT: commands are pushed in non-decreasing AtSample order (the
// scheduler's dispatch discipline); Push rejects violations so the
// consumer can rely on ordered offsets.
type Queue struct {
	buf  []*Command
	mask uint64

	// head is the consumer cursor, tail the producer cursor.
	// tail - head is the current fill level.
	head atomic.Uint64
	tail atomic.Uint64

	retryAfterMs int
	lastOffset   int64 // producer-side only
}

// NewQueue creates a ring with the given capacity, rounded up to a
// power of two. capacity <= 0 selects DefaultCapacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	size := 1
	for size < capacity {
		size <<= 1
	}
	return &Queue{
		buf:          make([]*Command, size),
		mask:         uint64(size - 1),
		retryAfterMs: DefaultRetryAfterMs,
		lastOffset:   -1,
	}
}

// Cap returns the ring capacity.
func (q *Queue) Cap() int {
	return len(q.buf)
}

// Len returns the current fill level. Approximate under concurrency;
// exact when called from the producer or consumer side alone.
func (q *Queue) Len() int {
	return int(q.tail.Load() - q.head.Load())
}

// Free returns the number of open slots, from the producer's view.
func (q *Queue) Free() int {
	return q.Cap() - q.Len()
}

// Push offers a command to the consumer. Producer side only.
//
// If the ring is full, Push spins briefly (bounded budget) for the
// consumer to free a slot, then returns a FullError with a positive
// retry hint. The command is not enqueued on failure.
func (q *Queue) Push(cmd *Command) error {
	if cmd == nil {
		return fmt.Errorf("push nil command")
	}
	if cmd.AtSample < q.lastOffset {
		return fmt.Errorf("command offset %d below last pushed %d: dispatch order broken",
			cmd.AtSample, q.lastOffset)
	}

	tail := q.tail.Load()
	for spin := 0; ; spin++ {
		if tail-q.head.Load() < uint64(len(q.buf)) {
			break
		}
		if spin >= pushSpinBudget {
			return &FullError{RetryAfterMs: q.retryAfterMs}
		}
		runtime.Gosched()
	}

	q.buf[tail&q.mask] = cmd
	q.tail.Store(tail + 1)
	q.lastOffset = cmd.AtSample
	return nil
}

// Dequeue returns the next command, or nil when the ring is empty.
// Consumer side only; never blocks, never allocates. Revoked commands
// are skipped and released.
func (q *Queue) Dequeue() *Command {
	for {
		head := q.head.Load()
		if head == q.tail.Load() {
			return nil
		}
		cmd := q.buf[head&q.mask]
		q.buf[head&q.mask] = nil // release for GC
		q.head.Store(head + 1)
		if cmd.Revoked() {
			continue
		}
		return cmd
	}
}
