package eventlog

import (
	"fmt"
	"log/slog"
	"sync"
)

// DefaultReplayBuffer is how many recent records the sequencer retains
// for Subscribe(afterSeq) replay.
const DefaultReplayBuffer = 4096

// DefaultSubscriberBuffer is the per-subscriber channel capacity.
const DefaultSubscriberBuffer = 256

// Gap reports a missing seq range to a subscriber. Delivery is
// at-least-once with explicit gap signaling: a subscriber either sees
// every record or an explicit Gap, never a silent hole.
type Gap struct {
	// FromSeq and ToSeq bound the missing range, inclusive.
	FromSeq uint64
	ToSeq   uint64
}

// Notice is one delivery to a subscriber: a record, or a gap marker
// when records were lost to replay-buffer eviction or subscriber
// backpressure. Exactly one field is non-nil.
type Notice struct {
	Record *Record
	Gap    *Gap
}

// Sequencer assigns strictly increasing sequence numbers to committed
// changes and fans them out to subscribers.
//
// Thread-safety model:
//   - Append(): called only from the engine's commit loop
//   - Subscribe()/Unsubscribe()/ExportRange(): safe from any goroutine
//
// INVARIANT: Seq increases by exactly 1 per Append. A regression means
// two writers raced the commit path and is fatal (panic).
type Sequencer struct {
	mu      sync.Mutex
	lastSeq uint64

	// buffer is a ring of the most recent records for replay.
	buffer []Record
	cap    int

	subs   map[int]*subscription
	nextID int
}

type subscription struct {
	ch chan Notice

	// missedFrom/missedTo track records dropped on channel overflow.
	// A Gap notice is delivered before the next record that fits.
	missedFrom uint64
	missedTo   uint64
}

// Subscription is a live event feed handed to a subscriber.
type Subscription struct {
	id  int
	seq *Sequencer
	ch  chan Notice
}

// Events returns the subscriber's delivery channel.
func (s *Subscription) Events() <-chan Notice {
	return s.ch
}

// Close detaches the subscription and closes its channel.
func (s *Subscription) Close() {
	s.seq.unsubscribe(s.id)
}

// NewSequencer creates a sequencer with the given replay buffer size.
// bufferSize <= 0 selects DefaultReplayBuffer.
func NewSequencer(bufferSize int) *Sequencer {
	if bufferSize <= 0 {
		bufferSize = DefaultReplayBuffer
	}
	return &Sequencer{
		buffer: make([]Record, 0, bufferSize),
		cap:    bufferSize,
		subs:   make(map[int]*subscription),
	}
}

// LastSeq returns the most recently assigned sequence number.
func (s *Sequencer) LastSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeq
}

// Append assigns the next seq to rec, retains it for replay, and fans
// it out to subscribers. Returns the stored record.
//
// CRITICAL: called only from the commit loop; the single-appender rule
// is what makes Seq gap-free at the source.
func (s *Sequencer) Append(rec Record) Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.lastSeq
	s.lastSeq++
	rec.Seq = s.lastSeq
	if rec.Seq != prev+1 {
		// Unreachable unless the single-appender invariant was broken.
		panic(fmt.Sprintf("eventlog: seq regression: %d -> %d", prev, rec.Seq))
	}

	if len(s.buffer) == s.cap {
		copy(s.buffer, s.buffer[1:])
		s.buffer[len(s.buffer)-1] = rec
	} else {
		s.buffer = append(s.buffer, rec)
	}

	for _, sub := range s.subs {
		s.deliver(sub, rec)
	}
	return rec
}

// deliver attempts a non-blocking send to one subscriber, emitting a
// pending Gap notice first if records were previously dropped.
// Called with s.mu held.
func (s *Sequencer) deliver(sub *subscription, rec Record) {
	if sub.missedFrom != 0 {
		gap := Notice{Gap: &Gap{FromSeq: sub.missedFrom, ToSeq: sub.missedTo}}
		select {
		case sub.ch <- gap:
			sub.missedFrom, sub.missedTo = 0, 0
		default:
			// Still no room: extend the missing range with this record.
			sub.missedTo = rec.Seq
			return
		}
	}

	r := rec
	select {
	case sub.ch <- Notice{Record: &r}:
	default:
		slog.Warn("event subscriber overflow, recording gap",
			"seq", rec.Seq,
		)
		sub.missedFrom, sub.missedTo = rec.Seq, rec.Seq
	}
}

// Subscribe returns a feed of all records with seq > afterSeq.
// Retained records are replayed into the subscription buffer first;
// if afterSeq is older than the replay buffer's tail, the feed starts
// with an explicit Gap notice covering the evicted range.
func (s *Sequencer) Subscribe(afterSeq uint64) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	replay := s.recordsAfter(afterSeq)
	buf := DefaultSubscriberBuffer
	if len(replay)+1 > buf {
		buf = len(replay) + 1
	}

	sub := &subscription{ch: make(chan Notice, buf)}

	// Gap first when the requested start predates the replay buffer.
	if len(s.buffer) > 0 {
		oldest := s.buffer[0].Seq
		if afterSeq+1 < oldest {
			sub.ch <- Notice{Gap: &Gap{FromSeq: afterSeq + 1, ToSeq: oldest - 1}}
		}
	} else if afterSeq < s.lastSeq {
		sub.ch <- Notice{Gap: &Gap{FromSeq: afterSeq + 1, ToSeq: s.lastSeq}}
	}

	for i := range replay {
		r := replay[i]
		sub.ch <- Notice{Record: &r}
	}

	id := s.nextID
	s.nextID++
	s.subs[id] = sub
	return &Subscription{id: id, seq: s, ch: sub.ch}
}

func (s *Sequencer) unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(sub.ch)
	}
}

// recordsAfter returns buffered records with seq > afterSeq.
// Called with s.mu held.
func (s *Sequencer) recordsAfter(afterSeq uint64) []Record {
	out := make([]Record, 0)
	for _, rec := range s.buffer {
		if rec.Seq > afterSeq {
			out = append(out, rec)
		}
	}
	return out
}

// ExportRange returns retained records with from <= seq <= to.
// Returns an error when the requested range starts before the replay
// buffer's tail, so callers cannot mistake eviction for emptiness.
func (s *Sequencer) ExportRange(from, to uint64) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if from == 0 {
		from = 1
	}
	if len(s.buffer) > 0 && from < s.buffer[0].Seq {
		return nil, fmt.Errorf("events before seq %d evicted from replay buffer", s.buffer[0].Seq)
	}
	if len(s.buffer) == 0 && s.lastSeq > 0 && from <= s.lastSeq {
		return nil, fmt.Errorf("events before seq %d evicted from replay buffer", s.lastSeq+1)
	}

	var out []Record
	for _, rec := range s.buffer {
		if rec.Seq >= from && rec.Seq <= to {
			out = append(out, rec)
		}
	}
	return out, nil
}
