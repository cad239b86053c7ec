// Package delivery hands committed commands to the real-time consumer
// over a bounded single-producer/single-consumer ring. The consumer
// side never blocks, never allocates, and never observes partial state.
package delivery

import (
	"sync/atomic"

	"github.com/azsmith/grainulator-sub004/internal/action"
	"github.com/azsmith/grainulator-sub004/internal/param"
)

// Command is a fully resolved, committed instruction for the real-time
// consumer. Ownership is exclusive: the scheduler owns it until Push,
// the consumer owns it after Dequeue - never shared.
type Command struct {
	// ActionID and BundleID link back to the committed action.
	ActionID string
	BundleID string

	// Target is the parameter path the command applies to.
	Target string

	// Type is the originating action type.
	Type action.Type

	// AtSample is the absolute sample offset to apply at.
	// EndSample bounds ramp/morph trajectories.
	AtSample  int64
	EndSample int64

	// Value is the target value (set/toggle/trigger/recording fields).
	Value param.Value

	// From/To/Curve describe a ramp trajectory.
	From  param.Value
	To    param.Value
	Curve action.Curve

	// Mode and Feedback ride along on startRecording commands so the
	// consumer arms the take in one dequeue, never in partial steps.
	Mode     param.Value
	Feedback param.Value

	// SafeUpdateMode and MinSmoothingMs tell the consumer how to apply
	// the change without artifacts.
	SafeUpdateMode param.SafeUpdateMode
	MinSmoothingMs int

	// revoked is set by the control domain before the command is
	// dequeued. The consumer side skips revoked commands; it never
	// writes this flag.
	revoked atomic.Bool
}

// Revoke marks the command as cancelled. Safe to call from the control
// domain at any time; a no-op once the command has been dequeued.
func (c *Command) Revoke() {
	c.revoked.Store(true)
}

// Revoked reports whether the command was cancelled.
func (c *Command) Revoked() bool {
	return c.revoked.Load()
}
