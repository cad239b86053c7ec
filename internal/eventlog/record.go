// Package eventlog provides the ordered, gap-detectable event stream
// emitted for every committed state change.
package eventlog

import (
	"time"

	"github.com/azsmith/grainulator-sub004/internal/action"
)

// Kind classifies what a committed change did, beyond the raw paths.
type Kind string

const (
	KindStateChanged     Kind = "state.changed"
	KindRecordingStarted Kind = "recording.started"
	KindRecordingStopped Kind = "recording.stopped"
	KindFileLoaded       Kind = "file.loaded"
	KindSceneSaved       Kind = "scene.saved"
	KindSceneRecalled    Kind = "scene.recalled"
	KindSceneMorphed     Kind = "scene.morphed"
	KindBundleSuperseded Kind = "bundle.superseded"
)

// Record is one entry in the append-only event log.
// Records are never mutated after Append.
type Record struct {
	// Seq is the strictly increasing log position.
	Seq uint64 `json:"seq"`

	// StateVersion is the canonical state version the commit produced.
	// Zero for records that did not mutate state (e.g. superseded).
	StateVersion uint64 `json:"stateVersion"`

	// Kind classifies the change.
	Kind Kind `json:"kind"`

	// Paths lists the changed parameter paths, sorted.
	Paths []string `json:"paths,omitempty"`

	// Cause identifies the writer kind behind the commit.
	Cause action.Cause `json:"cause"`

	// BundleID links back to the committed bundle.
	BundleID string `json:"bundleId,omitempty"`

	// At is the wall-clock emission time. Informative only; ordering
	// authority is Seq, never At.
	At time.Time `json:"at"`
}
