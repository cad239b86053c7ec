package harness

import "github.com/azsmith/grainulator-sub004/internal/eventlog"

// TraceEvent is one step's outcome in a scenario trace. Field values
// are plain strings and integers so snapshots marshal identically on
// every run.
type TraceEvent struct {
	// Op names the step: apply, revoke, dispatch, advance, step_clock,
	// lock, unlock.
	Op string `json:"op"`

	// BundleID is set for apply and revoke steps.
	BundleID string `json:"bundleId,omitempty"`

	// Status is "ok" or "failed" for apply/revoke steps.
	Status string `json:"status,omitempty"`

	// Error is the failure code for failed steps.
	Error string `json:"error,omitempty"`

	// StateVersion is the version an apply produced. Zero when nothing
	// committed.
	StateVersion uint64 `json:"stateVersion,omitempty"`

	// Actions holds per-action outcomes for apply steps.
	Actions []ActionTrace `json:"actions,omitempty"`

	// Count is the revoked-command count for revoke steps and the
	// drained-command count for dispatch steps.
	Count int `json:"count,omitempty"`

	// Position is the transport position after an advance step.
	Position int64 `json:"position,omitempty"`

	// Modules lists the modules of a lock/unlock step.
	Modules []string `json:"modules,omitempty"`

	// Commands holds the ring contents drained by a dispatch step.
	Commands []CommandTrace `json:"commands,omitempty"`
}

// ActionTrace is one action's outcome inside an apply trace event.
type ActionTrace struct {
	ActionID  string `json:"actionId"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	AtSample  int64  `json:"atSample"`
	EndSample int64  `json:"endSample,omitempty"`
}

// CommandTrace is one delivered command inside a dispatch trace event.
type CommandTrace struct {
	BundleID string `json:"bundleId"`
	Target   string `json:"target"`
	Type     string `json:"type"`
	AtSample int64  `json:"atSample"`
	Value    string `json:"value,omitempty"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	Mode     string `json:"mode,omitempty"`
	Feedback string `json:"feedback,omitempty"`
}

// Result is the outcome of running one scenario.
type Result struct {
	// Name echoes the scenario name.
	Name string `json:"scenario"`

	// Records holds the raw event log, for callers that archive it.
	// Excluded from snapshots; Events carries the stable rendering.
	Records []eventlog.Record `json:"-"`

	// Trace holds one event per step, in step order.
	Trace []TraceEvent `json:"trace"`

	// Events renders the full event log, one line per record:
	// "seq kind cause [paths]".
	Events []string `json:"events"`

	// FinalStateVersion is the state version after the last step.
	FinalStateVersion uint64 `json:"finalStateVersion"`

	// FinalState lists "path = value" for every path that diverged from
	// the registry defaults, sorted.
	FinalState []string `json:"finalState"`
}
