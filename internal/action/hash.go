package action

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/azsmith/grainulator-sub004/internal/param"
)

// Domain prefixes for content hashing. The version suffix enables
// future algorithm migration without colliding with old hashes.
const (
	domainRequest = "grainulator/request/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null byte prevents
// domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RequestHash computes the content hash of a submission payload.
// Two submissions with the same (callerId, idempotencyKey) must carry
// the same RequestHash to be treated as a replay; a differing hash is
// an IDEMPOTENCY_KEY_CONFLICT.
//
// BundleID and ValidationID are intentionally excluded: a retried
// request legitimately carries a fresh validation, and some callers
// regenerate bundle IDs per attempt. The hash covers what the request
// asks for, not which attempt asked.
func RequestHash(callerID, applyMode string, b *Bundle) (string, error) {
	actions := make([]any, len(b.Actions))
	for i := range b.Actions {
		a := &b.Actions[i]
		m := map[string]any{
			"actionId": a.ActionID,
			"type":     string(a.Type),
			"target":   a.Target,
			"strict":   a.Strict,
		}
		if a.Value != nil {
			m["value"] = a.Value
		}
		if a.From != nil {
			m["from"] = a.From
		}
		if a.To != nil {
			m["to"] = a.To
		}
		if a.Curve != "" {
			m["curve"] = string(a.Curve)
		}
		if a.Mode != "" {
			m["mode"] = a.Mode
		}
		if a.Feedback != nil {
			m["feedback"] = a.Feedback
		}
		if a.Scene != "" {
			m["scene"] = a.Scene
		}
		if a.File != "" {
			m["file"] = a.File
		}
		if a.Time != (TimeSpec{}) {
			m["time"] = map[string]any{
				"anchor":       string(a.Time.Anchor),
				"quantization": string(a.Time.Quantization),
				"atSample":     a.Time.AtSample,
				"durationMs":   int64(a.Time.DurationMs),
			}
		}
		actions[i] = m
	}

	payload := map[string]any{
		"callerId":  callerID,
		"applyMode": applyMode,
		"intentId":  b.IntentID,
		"atomic":    b.Atomic,
		"actions":   actions,
	}
	if b.PreconditionStateVersion != 0 {
		payload["preconditionStateVersion"] = int64(b.PreconditionStateVersion)
	}

	canonical, err := param.MarshalCanonical(payload)
	if err != nil {
		return "", fmt.Errorf("RequestHash: marshal: %w", err)
	}
	return hashWithDomain(domainRequest, canonical), nil
}

// MustRequestHash is like RequestHash but panics on error.
// Use only in tests with known-good inputs.
func MustRequestHash(callerID, applyMode string, b *Bundle) string {
	h, err := RequestHash(callerID, applyMode, b)
	if err != nil {
		panic(err)
	}
	return h
}
