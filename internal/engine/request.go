package engine

import (
	"github.com/azsmith/grainulator-sub004/internal/action"
)

// ApplyMode selects the scheduling policy for a submission.
type ApplyMode string

const (
	// ApplyValidated requires a still-valid validationId on the bundle.
	ApplyValidated ApplyMode = "validated_only"

	// ApplyBestEffort skips prior validation. Only low-risk actions are
	// admitted; anything above is rejected with RISK_ABOVE_POLICY.
	ApplyBestEffort ApplyMode = "best_effort"
)

// Valid reports whether m is a known apply mode.
func (m ApplyMode) Valid() bool {
	return m == ApplyValidated || m == ApplyBestEffort
}

// Request is one scheduling submission. The caller identity is trusted
// input from the session layer; risk and lock policy are enforced here
// regardless of who the caller is.
type Request struct {
	// CallerID identifies the submitting session.
	CallerID string `json:"callerId"`

	// Bundle is the action bundle to schedule.
	Bundle *action.Bundle `json:"bundle"`

	// Mode selects the scheduling policy. Empty means ApplyValidated.
	Mode ApplyMode `json:"applyMode"`

	// IdempotencyKey, when set, makes the submission replay-safe:
	// resubmitting the same (callerId, key, payload) returns the stored
	// result without re-applying.
	IdempotencyKey string `json:"idempotencyKey,omitempty"`

	// ConfirmationToken authorizes high-risk bundles.
	ConfirmationToken string `json:"confirmationToken,omitempty"`
}

// EffectiveMode returns the request's apply mode, defaulting to
// ApplyValidated.
func (r *Request) EffectiveMode() ApplyMode {
	if r.Mode == "" {
		return ApplyValidated
	}
	return r.Mode
}

// Status is the per-action outcome of a scheduling attempt.
type Status string

const (
	// StatusCommitted means the action's changes are in canonical state
	// and its commands are scheduled.
	StatusCommitted Status = "committed"

	// StatusFailed means the action was rejected; Err carries the code.
	StatusFailed Status = "failed"

	// StatusSuperseded means a higher-priority writer won the same path
	// in the same commit tick.
	StatusSuperseded Status = "superseded"
)

// ActionResult is the outcome for one action in a bundle.
type ActionResult struct {
	// ActionID identifies the action within its bundle.
	ActionID string `json:"actionId"`

	// Status is the scheduling outcome.
	Status Status `json:"status"`

	// AtSample and EndSample are the resolved absolute offsets for
	// committed actions.
	AtSample  int64 `json:"atSample,omitempty"`
	EndSample int64 `json:"endSample,omitempty"`

	// StateVersion is the version produced by this action's commit.
	// Zero when the action committed no state (trigger) or failed.
	StateVersion uint64 `json:"stateVersion,omitempty"`

	// Err carries the failure for failed/superseded actions.
	Err *Error `json:"error,omitempty"`
}

// Result is the outcome of one scheduling submission. Stored verbatim
// in the idempotency ledger and replayed on key reuse.
type Result struct {
	// BundleID echoes the submitted bundle.
	BundleID string `json:"bundleId"`

	// OK reports whether every action committed.
	OK bool `json:"ok"`

	// StateVersion is the highest version this submission produced.
	// Zero when nothing committed.
	StateVersion uint64 `json:"stateVersion,omitempty"`

	// Actions holds per-action outcomes in bundle order.
	Actions []ActionResult `json:"actions,omitempty"`

	// Err carries a bundle-level failure (precondition, validation
	// binding, idempotency conflict, queue pressure).
	Err *Error `json:"error,omitempty"`
}
