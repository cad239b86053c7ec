package testutil

import (
	"fmt"
	"sync"
	"time"
)

// SteppedTime is a wall-clock test double that only moves when stepped.
// TTL behavior (validation binding, confirmation tokens, ledger
// retention) becomes exactly testable: step past the deadline, observe
// the expiry.
//
// Thread-safety: all methods are safe for concurrent use.
type SteppedTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewSteppedTime creates a stepped clock at a fixed, arbitrary epoch.
func NewSteppedTime() *SteppedTime {
	return &SteppedTime{
		now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Now returns the current stepped time. Pass the method value as the
// engine's time source.
func (s *SteppedTime) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Step advances the clock by d.
func (s *SteppedTime) Step(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(d)
}

// SeqIDGenerator produces "prefix-0001", "prefix-0002", ... forever.
// Unlike action.FixedGenerator it never exhausts, which suits scenario
// runs where the number of generated IDs is not known up front.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SeqIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSeqIDGenerator creates a generator with the given prefix.
// An empty prefix defaults to "id".
func NewSeqIDGenerator(prefix string) *SeqIDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &SeqIDGenerator{prefix: prefix}
}

// Generate returns the next sequential identifier.
func (g *SeqIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
