// Package action defines the wire-level mutation model: actions, bundles,
// symbolic time specs, and the canonical request hash used for idempotency.
package action

import (
	"fmt"

	"github.com/azsmith/grainulator-sub004/internal/param"
)

// Type enumerates the supported action kinds.
type Type string

const (
	Set                  Type = "set"
	Ramp                 Type = "ramp"
	Toggle               Type = "toggle"
	Trigger              Type = "trigger"
	StartRecording       Type = "startRecording"
	StopRecording        Type = "stopRecording"
	SetRecordingFeedback Type = "setRecordingFeedback"
	SetRecordingMode     Type = "setRecordingMode"
	LoadFile             Type = "loadFile"
	SaveScene            Type = "saveScene"
	RecallScene          Type = "recallScene"
	MorphScene           Type = "morphScene"
)

// Valid reports whether t is a known action type.
func (t Type) Valid() bool {
	switch t {
	case Set, Ramp, Toggle, Trigger,
		StartRecording, StopRecording, SetRecordingFeedback, SetRecordingMode,
		LoadFile, SaveScene, RecallScene, MorphScene:
		return true
	default:
		return false
	}
}

// Anchor selects the musical reference point for an action's timing.
type Anchor string

const (
	// AnchorNow applies at the current transport position.
	AnchorNow Anchor = "now"
	// AnchorNextBeat applies at the next beat boundary.
	AnchorNextBeat Anchor = "next_beat"
	// AnchorNextBar applies at the next bar boundary.
	AnchorNextBar Anchor = "next_bar"
	// AnchorAtPosition applies at an explicit sample position.
	AnchorAtPosition Anchor = "at_transport_position"
)

// Valid reports whether a is a known anchor.
func (a Anchor) Valid() bool {
	switch a {
	case AnchorNow, AnchorNextBeat, AnchorNextBar, AnchorAtPosition:
		return true
	default:
		return false
	}
}

// Quantization selects the musical grid an anchored time snaps to.
type Quantization string

const (
	QuantOff       Quantization = "off"
	QuantSixteenth Quantization = "1/16"
	QuantEighth    Quantization = "1/8"
	QuantQuarter   Quantization = "1/4"
	QuantBar       Quantization = "1_bar"
)

// Valid reports whether q is a known quantization grid.
func (q Quantization) Valid() bool {
	switch q {
	case QuantOff, QuantSixteenth, QuantEighth, QuantQuarter, QuantBar:
		return true
	default:
		return false
	}
}

// Curve shapes a ramp trajectory between From and To.
type Curve string

const (
	CurveLinear      Curve = "linear"
	CurveExponential Curve = "exponential"
	CurveSCurve      Curve = "sCurve"
)

// Valid reports whether c is a known curve.
func (c Curve) Valid() bool {
	switch c {
	case CurveLinear, CurveExponential, CurveSCurve:
		return true
	default:
		return false
	}
}

// TimeSpec is a symbolic timing request, resolved against a live
// transport snapshot by the quantization resolver.
type TimeSpec struct {
	// Anchor selects the reference boundary. Empty means AnchorNow.
	Anchor Anchor `yaml:"anchor"`

	// Quantization snaps the anchored boundary to a later grid line.
	// Empty means QuantOff.
	Quantization Quantization `yaml:"quantization"`

	// AtSample is the explicit position for AnchorAtPosition.
	AtSample int64 `yaml:"atSample"`

	// DurationMs is the ramp/morph length in milliseconds.
	DurationMs int `yaml:"durationMs"`
}

// Action is one mutation request inside a bundle.
type Action struct {
	// ActionID is unique within its bundle.
	ActionID string `yaml:"actionId"`

	// Type selects the operation.
	Type Type `yaml:"type"`

	// Target is the parameter path (or module path for recording and
	// scene operations, e.g. "granular.voiceA").
	Target string `yaml:"target"`

	// Value is the payload for set/toggle/trigger and the per-type
	// payloads of the recording actions.
	Value param.Value `yaml:"-"`

	// From and To bound a ramp trajectory. A nil From means "ramp from
	// the current committed value".
	From param.Value `yaml:"-"`
	To   param.Value `yaml:"-"`

	// Curve shapes ramps and morphs. Empty means CurveLinear.
	Curve Curve `yaml:"curve"`

	// Mode and Feedback carry startRecording payload fields.
	Mode     string      `yaml:"mode"`
	Feedback param.Value `yaml:"-"`

	// Scene names the scene for saveScene/recallScene/morphScene.
	Scene string `yaml:"scene"`

	// File is the loadFile payload.
	File string `yaml:"file"`

	// Time is the symbolic timing request.
	Time TimeSpec `yaml:"time"`

	// Strict makes a missed boundary a commit failure instead of a
	// roll-forward to the next boundary.
	Strict bool `yaml:"strict"`
}

// Validate checks structural well-formedness only. Semantic checks
// (ranges, mutual exclusion, scene existence) belong to the validator.
func (a *Action) Validate() error {
	if a.ActionID == "" {
		return fmt.Errorf("action: missing actionId")
	}
	if !a.Type.Valid() {
		return fmt.Errorf("action %s: unknown type %q", a.ActionID, a.Type)
	}
	if a.Target == "" && a.Type != SaveScene && a.Type != RecallScene && a.Type != MorphScene {
		return fmt.Errorf("action %s: missing target", a.ActionID)
	}
	if a.Time.Anchor != "" && !a.Time.Anchor.Valid() {
		return fmt.Errorf("action %s: unknown anchor %q", a.ActionID, a.Time.Anchor)
	}
	if a.Time.Quantization != "" && !a.Time.Quantization.Valid() {
		return fmt.Errorf("action %s: unknown quantization %q", a.ActionID, a.Time.Quantization)
	}
	if a.Curve != "" && !a.Curve.Valid() {
		return fmt.Errorf("action %s: unknown curve %q", a.ActionID, a.Curve)
	}
	if a.Type == Ramp && a.To == nil {
		return fmt.Errorf("action %s: ramp requires a 'to' value", a.ActionID)
	}
	if a.Time.DurationMs < 0 {
		return fmt.Errorf("action %s: negative duration", a.ActionID)
	}
	return nil
}
