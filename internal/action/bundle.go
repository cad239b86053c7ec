package action

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Cause identifies the kind of writer behind a bundle. It drives
// conflict priority at commit time and is recorded on every event.
type Cause string

const (
	CauseManual    Cause = "manual"
	CauseScheduled Cause = "scheduled"
	CauseAI        Cause = "ai"
	CauseEmergency Cause = "emergency"
)

// Valid reports whether c is a known cause.
func (c Cause) Valid() bool {
	switch c {
	case CauseManual, CauseScheduled, CauseAI, CauseEmergency:
		return true
	default:
		return false
	}
}

// Priority maps a cause to its commit-ordering rank (higher wins).
// Emergency outranks manual direct control, which outranks scheduled
// automation and AI-planned bundles.
func (c Cause) Priority() int {
	switch c {
	case CauseEmergency:
		return 3
	case CauseManual:
		return 2
	default:
		return 1
	}
}

// Bundle is an ordered set of actions submitted and validated together.
type Bundle struct {
	// BundleID identifies the bundle for revocation and events.
	BundleID string `yaml:"bundleId"`

	// IntentID links the bundle back to the planner intent that
	// produced it. Opaque to this core.
	IntentID string `yaml:"intentId"`

	// Atomic bundles commit all-or-nothing; non-atomic bundles commit
	// per-action with individual results.
	Atomic bool `yaml:"atomic"`

	// Actions execute in order. ActionIDs must be unique in the bundle.
	Actions []Action `yaml:"actions"`

	// PreconditionStateVersion, when non-zero, must equal the current
	// stateVersion at commit time or the bundle fails STALE_STATE_VERSION.
	PreconditionStateVersion uint64 `yaml:"preconditionStateVersion"`

	// ValidationID binds the bundle to a prior validation result.
	ValidationID string `yaml:"validationId"`

	// Cause identifies the writer kind. Empty means CauseManual.
	Cause Cause `yaml:"cause"`
}

// EffectiveCause returns the bundle's cause, defaulting to manual.
func (b *Bundle) EffectiveCause() Cause {
	if b.Cause == "" {
		return CauseManual
	}
	return b.Cause
}

// Validate checks structural well-formedness of the bundle and all of
// its actions.
func (b *Bundle) Validate() error {
	if b.BundleID == "" {
		return fmt.Errorf("bundle: missing bundleId")
	}
	if len(b.Actions) == 0 {
		return fmt.Errorf("bundle %s: no actions", b.BundleID)
	}
	if b.Cause != "" && !b.Cause.Valid() {
		return fmt.Errorf("bundle %s: unknown cause %q", b.BundleID, b.Cause)
	}
	seen := make(map[string]bool, len(b.Actions))
	for i := range b.Actions {
		a := &b.Actions[i]
		if err := a.Validate(); err != nil {
			return fmt.Errorf("bundle %s: %w", b.BundleID, err)
		}
		if seen[a.ActionID] {
			return fmt.Errorf("bundle %s: duplicate actionId %q", b.BundleID, a.ActionID)
		}
		seen[a.ActionID] = true
	}
	return nil
}

// IDGenerator generates unique identifiers for bundles, validations,
// and confirmation tokens. Implemented by UUIDv7Generator (production)
// and FixedGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 identifiers.
// Sortability by creation time helps when reading audit logs.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined identifiers for tests.
// Enables deterministic golden trace comparison.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
// Generate panics once all ids are consumed, to catch tests that
// create more identifiers than they declared.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined identifier.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
