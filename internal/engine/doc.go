// Package engine implements the scheduling and state synchronization
// core between the control plane and the real-time granular engine.
//
// ARCHITECTURE:
//
// Single-Writer Commit Loop:
// All commits happen in one goroutine (Engine.Run) for deterministic
// behavior. This ensures:
// - stateVersion increments by exactly 1 per commit
// - event seq numbers are gap-free at the source
// - conflict resolution within a tick is reproducible
//
// Scheduling Flow:
//  1. Caller validates a bundle (Validate) and, for high risk, obtains a
//     confirmation token (Confirm)
//  2. Apply enqueues the request; the commit loop drains a batch (tick)
//  3. Pipeline per request: idempotency, precondition, validation
//     binding, confirmation, per-action evaluation, timing re-resolve,
//     conflict ordering, capacity reservation
//  4. Commit: state transition + event record(s) + command staging
//  5. Due commands are dispatched into the delivery ring in sample order
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Requests and commands are stamped with a monotonic admission counter
// from Clock.Next(). Priority ties break on admission order, NEVER on
// wall-clock timestamps.
//
// Deterministic Conflict Resolution:
// One drained batch is one tick. Requests are processed in (priority
// desc, admission asc) order; a lower-priority same-path write in the
// same tick is SUPERSEDED - reported and evented, never silently lost.
package engine
