package engine

import (
	"sync"
)

// opKind distinguishes what a queued envelope asks the commit loop to do.
type opKind int

const (
	// opApply schedules a bundle.
	opApply opKind = iota + 1
	// opRevoke cancels a bundle's live commands.
	opRevoke
	// opDispatch moves due commands into the delivery ring.
	opDispatch
)

// envelope is one unit of work for the commit loop, paired with a
// reply channel so the submitting goroutine can wait for the outcome.
type envelope struct {
	op        opKind
	req       *Request
	bundleID  string // opRevoke
	admission uint64
	reply     chan envelopeReply
}

// envelopeReply carries the commit loop's answer back to the submitter.
type envelopeReply struct {
	result *Result // opApply
	count  int     // opRevoke: commands revoked; opDispatch: commands pushed
	err    error
}

// requestQueue is a thread-safe FIFO of envelopes feeding the
// single-writer commit loop.
//
// The queue is unbounded: backpressure lives in the delivery ring, not
// here, so a burst of submissions never blocks the control plane.
//
// The signal channel enables context-aware waiting in the Run loop.
type requestQueue struct {
	mu      sync.Mutex
	pending []envelope
	closed  bool
	signal  chan struct{} // buffered size 1, coalesces wakeups
}

func newRequestQueue() *requestQueue {
	return &requestQueue{
		pending: make([]envelope, 0, 16),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds an envelope to the back of the queue.
// Thread-safe; returns false if the queue is closed.
func (q *requestQueue) Enqueue(env envelope) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.pending = append(q.pending, env)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue attempts to dequeue without blocking.
func (q *requestQueue) TryDequeue() (envelope, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return envelope{}, false
	}
	env := q.pending[0]

	// Nil the slot so the envelope's pointers are collectable while the
	// backing array lives on.
	q.pending[0] = envelope{}
	if len(q.pending) == 1 {
		q.pending = q.pending[:0]
	} else {
		q.pending = q.pending[1:]
	}
	return env, true
}

// DrainBatch dequeues everything currently queued. One batch is one
// commit tick for conflict-resolution purposes.
func (q *requestQueue) DrainBatch() []envelope {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil
	}
	batch := make([]envelope, len(q.pending))
	copy(batch, q.pending)
	q.pending = q.pending[:0]
	return batch
}

// Wait returns a channel that signals when envelopes may be available.
// The channel closes when the queue closes.
func (q *requestQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *requestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close signals that no more envelopes will be accepted and wakes any
// blocked waiters.
func (q *requestQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
