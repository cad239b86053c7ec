package engine

import (
	"sync"
	"time"
)

// DefaultLedgerTTL bounds how long a recorded submission stays
// replayable. Long enough to cover client retry storms, short enough
// that the ledger never grows past one session's worth of requests.
const DefaultLedgerTTL = 10 * time.Minute

// ledgerKey scopes idempotency keys per caller. Two callers reusing
// the same key never collide.
type ledgerKey struct {
	callerID string
	key      string
}

type ledgerEntry struct {
	requestHash string
	result      *Result
	storedAt    time.Time
}

// Ledger is the idempotency ledger: (callerId, idempotencyKey) ->
// request hash + stored result. A replayed submission returns the
// stored result verbatim; a key reused with a different payload is a
// conflict, never a silent re-execution.
//
// Entries expire after the TTL and are pruned lazily on access.
type Ledger struct {
	mu      sync.Mutex
	entries map[ledgerKey]ledgerEntry
	ttl     time.Duration
	now     func() time.Time

	// lastPrune throttles full-map sweeps to once per TTL window.
	lastPrune time.Time
}

// NewLedger creates a ledger. ttl <= 0 selects DefaultLedgerTTL.
// now is the time source; pass time.Now in production.
func NewLedger(ttl time.Duration, now func() time.Time) *Ledger {
	if ttl <= 0 {
		ttl = DefaultLedgerTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		entries: make(map[ledgerKey]ledgerEntry),
		ttl:     ttl,
		now:     now,
	}
}

// Lookup checks a submission against the ledger.
//
// Returns (stored result, nil) on a replay hit, (nil, nil) on a miss,
// and (nil, *Error) when the key was reused with a different payload.
func (l *Ledger) Lookup(callerID, key, requestHash string) (*Result, *Error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked()

	k := ledgerKey{callerID, key}
	entry, ok := l.entries[k]
	if !ok {
		return nil, nil
	}
	// The sweep is throttled, so an entry can outlive its TTL between
	// sweeps. An expired entry is a miss, never a replay.
	if l.now().Sub(entry.storedAt) > l.ttl {
		delete(l.entries, k)
		return nil, nil
	}
	if entry.requestHash != requestHash {
		return nil, newError(CodeIdempotencyKeyConflict, "", "", "",
			"idempotency key %q reused with a different request payload", key)
	}
	return entry.result, nil
}

// Record stores the outcome of a completed submission.
func (l *Ledger) Record(callerID, key, requestHash string, res *Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked()

	l.entries[ledgerKey{callerID, key}] = ledgerEntry{
		requestHash: requestHash,
		result:      res,
		storedAt:    l.now(),
	}
}

// Len returns the number of live entries. Prunes first.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastPrune = time.Time{} // force a sweep
	l.pruneLocked()
	return len(l.entries)
}

// pruneLocked drops expired entries. Called with l.mu held; sweeps at
// most once per TTL window.
func (l *Ledger) pruneLocked() {
	now := l.now()
	if now.Sub(l.lastPrune) < l.ttl {
		return
	}
	l.lastPrune = now
	for k, entry := range l.entries {
		if now.Sub(entry.storedAt) > l.ttl {
			delete(l.entries, k)
		}
	}
}
