// Package harness provides a conformance harness for the scheduling
// core: YAML scenarios drive the engine through deterministic test
// doubles (stepped clock, manual transport, sequential IDs) and produce
// a trace snapshot suitable for golden file comparison.
//
// A scenario is a list of steps: advance the transport, submit a
// bundle, revoke, dispatch, lock modules. Every step appends trace
// events; the final snapshot also carries the event log and the state
// paths that diverged from registry defaults.
//
// Determinism is the whole point. Identifiers come from a sequential
// generator, wall time from a stepped clock, and transport position
// only moves on an explicit advance step, so the same scenario always
// yields byte-identical traces.
package harness
