package engine

import (
	"errors"
	"fmt"
)

// Code categorizes scheduling and commit failures. Codes are part of
// the caller-visible contract and never change meaning.
type Code string

const (
	// CodeOutOfRange indicates a value fails its descriptor's bounds or enum.
	CodeOutOfRange Code = "ACTION_OUT_OF_RANGE"

	// CodeUnknownTarget indicates the target path is not in the registry.
	CodeUnknownTarget Code = "UNKNOWN_TARGET"

	// CodeTypeMismatch indicates the value's type does not match the descriptor.
	CodeTypeMismatch Code = "TYPE_MISMATCH"

	// Recording mutual-exclusion violations.
	CodeRecordingAlreadyActive       Code = "RECORDING_ALREADY_ACTIVE"
	CodeRecordingNotActive           Code = "RECORDING_NOT_ACTIVE"
	CodeRecordingModeUnsupported     Code = "RECORDING_MODE_UNSUPPORTED"
	CodeRecordingFeedbackUnsupported Code = "RECORDING_FEEDBACK_UNSUPPORTED"

	// CodeStaleStateVersion indicates preconditionStateVersion no longer
	// matches the current state version.
	CodeStaleStateVersion Code = "STALE_STATE_VERSION"

	// Time-boxed credential misuse. Both fail closed: the musical
	// context may have moved on, so an expired credential forces
	// re-validation instead of committing against stale assumptions.
	CodeValidationExpired   Code = "VALIDATION_EXPIRED"
	CodeConfirmationExpired Code = "CONFIRMATION_EXPIRED"

	// CodeConfirmationRequired indicates the bundle's risk class needs a
	// confirmation token and none was presented.
	CodeConfirmationRequired Code = "CONFIRMATION_REQUIRED"

	// CodeModuleLocked indicates the target module is locked by an
	// active intent's constraints.
	CodeModuleLocked Code = "MODULE_LOCKED"

	// CodeQueueFullRetry indicates bounded pressure on the delivery
	// queue. Retryable; nothing was enqueued or committed.
	CodeQueueFullRetry Code = "QUEUE_FULL_RETRY"

	// CodeBoundaryMissed indicates a strict action's resolved boundary
	// elapsed before commit.
	CodeBoundaryMissed Code = "BOUNDARY_MISSED"

	// CodeIdempotencyKeyConflict indicates a key reuse with a different
	// request payload.
	CodeIdempotencyKeyConflict Code = "IDEMPOTENCY_KEY_CONFLICT"

	// CodeSceneNotFound indicates recallScene/morphScene named an
	// unknown scene.
	CodeSceneNotFound Code = "SCENE_NOT_FOUND"

	// CodeSuperseded indicates a higher-priority writer won the same
	// path in the same commit tick. Reported, never silently dropped.
	CodeSuperseded Code = "SUPERSEDED"

	// CodeRiskAbovePolicy indicates a best_effort submission carried an
	// action above the low-risk ceiling.
	CodeRiskAbovePolicy Code = "RISK_ABOVE_POLICY"

	// CodeBundleRevoked indicates a revocation found nothing to revoke:
	// the bundle was already revoked or never scheduled anything.
	CodeBundleRevoked Code = "BUNDLE_REVOKED"

	// CodeMalformedBundle indicates the bundle failed structural checks.
	CodeMalformedBundle Code = "MALFORMED_BUNDLE"
)

// Error is a structured scheduling/commit failure with the fields a
// caller needs to react: the failure code, the bundle and action
// involved, the parameter path when one applies, and a retry hint for
// retryable codes.
type Error struct {
	// Code identifies the failure category.
	Code Code

	// Message is a human-readable description.
	Message string

	// BundleID and ActionID locate the failure. ActionID is empty for
	// bundle-level failures.
	BundleID string
	ActionID string

	// Path is the parameter path involved, when one applies.
	Path string

	// RetryAfterMs is a positive backoff hint, set for QUEUE_FULL_RETRY.
	RetryAfterMs int
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.ActionID != "" && e.Path != "":
		return fmt.Sprintf("%s: %s (bundle=%s, action=%s, path=%s)", e.Code, e.Message, e.BundleID, e.ActionID, e.Path)
	case e.ActionID != "":
		return fmt.Sprintf("%s: %s (bundle=%s, action=%s)", e.Code, e.Message, e.BundleID, e.ActionID)
	case e.BundleID != "":
		return fmt.Sprintf("%s: %s (bundle=%s)", e.Code, e.Message, e.BundleID)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// Retryable reports whether the failure is transient and worth
// retrying as-is. Only queue pressure qualifies; every other code
// needs a changed request.
func (e *Error) Retryable() bool {
	return e.Code == CodeQueueFullRetry
}

// CodeOf extracts the failure code from any error in the chain.
// Returns "" when err carries no *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given failure code.
// Uses errors.As to handle wrapped errors.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

func newError(code Code, bundleID, actionID, path, format string, args ...any) *Error {
	return &Error{
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		BundleID: bundleID,
		ActionID: actionID,
		Path:     path,
	}
}
