package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azsmith/grainulator-sub004/internal/action"
	"github.com/azsmith/grainulator-sub004/internal/testutil"
)

func TestTokenManager_IssueAndConsume(t *testing.T) {
	clock := testutil.NewSteppedTime()
	m := NewTokenManager(action.NewFixedGenerator("tok-1"), 0, clock.Now)

	tok := m.Issue("val-1")
	assert.Equal(t, "tok-1", tok.TokenID)
	assert.Equal(t, "val-1", tok.ValidationID)
	assert.Equal(t, clock.Now().Add(DefaultConfirmationTTL), tok.ExpiresAt)

	require.Nil(t, m.Consume(tok.TokenID, "val-1"))
}

func TestTokenManager_SingleUse(t *testing.T) {
	clock := testutil.NewSteppedTime()
	m := NewTokenManager(action.NewFixedGenerator("tok-1"), 0, clock.Now)

	tok := m.Issue("val-1")
	require.Nil(t, m.Consume(tok.TokenID, "val-1"))

	cerr := m.Consume(tok.TokenID, "val-1")
	require.NotNil(t, cerr, "a token authorizes exactly one commit")
	assert.Equal(t, CodeConfirmationExpired, cerr.Code)
}

func TestTokenManager_Expiry(t *testing.T) {
	clock := testutil.NewSteppedTime()
	m := NewTokenManager(action.NewFixedGenerator("tok-1"), 30*time.Second, clock.Now)

	tok := m.Issue("val-1")
	clock.Step(31 * time.Second)

	cerr := m.Consume(tok.TokenID, "val-1")
	require.NotNil(t, cerr)
	assert.Equal(t, CodeConfirmationExpired, cerr.Code)
}

func TestTokenManager_BoundToValidation(t *testing.T) {
	clock := testutil.NewSteppedTime()
	m := NewTokenManager(action.NewFixedGenerator("tok-1"), 0, clock.Now)

	tok := m.Issue("val-1")

	cerr := m.Consume(tok.TokenID, "val-OTHER")
	require.NotNil(t, cerr, "token must not authorize a different validation")
	assert.Equal(t, CodeConfirmationExpired, cerr.Code)

	// Fail-closed: the mismatch burned the token.
	cerr = m.Consume(tok.TokenID, "val-1")
	require.NotNil(t, cerr)
}

func TestTokenManager_UnknownToken(t *testing.T) {
	clock := testutil.NewSteppedTime()
	m := NewTokenManager(action.NewFixedGenerator(), 0, clock.Now)

	cerr := m.Consume("no-such-token", "val-1")
	require.NotNil(t, cerr)
	assert.Equal(t, CodeConfirmationExpired, cerr.Code)
}
