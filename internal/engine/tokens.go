package engine

import (
	"sync"
	"time"

	"github.com/azsmith/grainulator-sub004/internal/action"
)

// DefaultConfirmationTTL is how long a confirmation token stays usable.
// Long enough for a human to read a summary and click, short enough
// that stale approvals cannot authorize a changed musical context.
const DefaultConfirmationTTL = 30 * time.Second

// ConfirmationToken authorizes one high-risk commit. Single use, bound
// to the validation result it was issued for.
type ConfirmationToken struct {
	// TokenID is presented back on the scheduling request.
	TokenID string `json:"tokenId"`

	// ValidationID is the validation result this token is bound to.
	ValidationID string `json:"validationId"`

	// ExpiresAt is the hard deadline for use.
	ExpiresAt time.Time `json:"expiresAt"`
}

type tokenEntry struct {
	validationID string
	expiresAt    time.Time
}

// TokenManager issues and consumes confirmation tokens.
//
// Thread-safety: safe from any goroutine.
type TokenManager struct {
	mu     sync.Mutex
	tokens map[string]tokenEntry
	ids    action.IDGenerator
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager creates a token manager. ttl <= 0 selects
// DefaultConfirmationTTL.
func NewTokenManager(ids action.IDGenerator, ttl time.Duration, now func() time.Time) *TokenManager {
	if ttl <= 0 {
		ttl = DefaultConfirmationTTL
	}
	if now == nil {
		now = time.Now
	}
	return &TokenManager{
		tokens: make(map[string]tokenEntry),
		ids:    ids,
		ttl:    ttl,
		now:    now,
	}
}

// Issue creates a token bound to a validation result.
func (m *TokenManager) Issue(validationID string) ConfirmationToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked()

	tok := ConfirmationToken{
		TokenID:      m.ids.Generate(),
		ValidationID: validationID,
		ExpiresAt:    m.now().Add(m.ttl),
	}
	m.tokens[tok.TokenID] = tokenEntry{
		validationID: validationID,
		expiresAt:    tok.ExpiresAt,
	}
	return tok
}

// Consume uses a token exactly once. Fails closed: an unknown, expired,
// already-used, or wrongly-bound token is CONFIRMATION_EXPIRED, and the
// token is gone either way.
func (m *TokenManager) Consume(tokenID, validationID string) *Error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.tokens[tokenID]
	if !ok {
		return newError(CodeConfirmationExpired, "", "", "",
			"confirmation token unknown, expired, or already used")
	}
	delete(m.tokens, tokenID)

	if m.now().After(entry.expiresAt) {
		return newError(CodeConfirmationExpired, "", "", "",
			"confirmation token expired")
	}
	if entry.validationID != validationID {
		return newError(CodeConfirmationExpired, "", "", "",
			"confirmation token bound to a different validation")
	}
	return nil
}

// pruneLocked drops expired tokens. Called with m.mu held.
func (m *TokenManager) pruneLocked() {
	now := m.now()
	for id, entry := range m.tokens {
		if now.After(entry.expiresAt) {
			delete(m.tokens, id)
		}
	}
}
