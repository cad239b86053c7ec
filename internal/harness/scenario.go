package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/azsmith/grainulator-sub004/internal/action"
	"github.com/azsmith/grainulator-sub004/internal/param"
)

// Scenario defines one conformance run: an optional transport override
// and an ordered list of steps.
type Scenario struct {
	// Name uniquely identifies the scenario; it is also the golden file
	// name.
	Name string `yaml:"name"`

	// Description explains what the scenario exercises.
	Description string `yaml:"description,omitempty"`

	// Transport overrides the default 48kHz / 120bpm / 4/4 transport.
	Transport *TransportSpec `yaml:"transport,omitempty"`

	// Steps execute in order.
	Steps []Step `yaml:"steps"`
}

// TransportSpec overrides the harness transport.
type TransportSpec struct {
	SampleRate  int     `yaml:"sampleRate"`
	BPM         float64 `yaml:"bpm"`
	BeatsPerBar int     `yaml:"beatsPerBar,omitempty"`
	BeatUnit    int     `yaml:"beatUnit,omitempty"`
}

// Step is one harness operation. Exactly one field group is set.
type Step struct {
	// Advance moves the transport forward by this many samples.
	Advance int64 `yaml:"advance,omitempty"`

	// StepMs moves the wall clock forward (TTL expiry scenarios).
	StepMs int `yaml:"stepMs,omitempty"`

	// Apply submits a bundle through the full scheduling pipeline.
	Apply *BundleSpec `yaml:"apply,omitempty"`

	// Revoke cancels a previously applied bundle's live commands.
	Revoke string `yaml:"revoke,omitempty"`

	// Dispatch moves due commands into the ring and drains it into the
	// trace.
	Dispatch bool `yaml:"dispatch,omitempty"`

	// Lock and Unlock adjust the module lock set.
	Lock   []string `yaml:"lock,omitempty"`
	Unlock []string `yaml:"unlock,omitempty"`
}

// BundleSpec is the YAML shape of one scheduling submission.
type BundleSpec struct {
	BundleID                 string       `yaml:"bundleId"`
	CallerID                 string       `yaml:"callerId,omitempty"`
	Cause                    string       `yaml:"cause,omitempty"`
	Atomic                   bool         `yaml:"atomic,omitempty"`
	Mode                     string       `yaml:"mode,omitempty"`
	IdempotencyKey           string       `yaml:"idempotencyKey,omitempty"`
	PreconditionStateVersion uint64       `yaml:"preconditionStateVersion,omitempty"`
	Confirm                  bool         `yaml:"confirm,omitempty"`
	Actions                  []ActionSpec `yaml:"actions"`
}

// ActionSpec is the YAML shape of one action. Scalar payloads accept
// any YAML scalar and convert through param.FromAny.
type ActionSpec struct {
	ActionID     string `yaml:"actionId"`
	Type         string `yaml:"type"`
	Target       string `yaml:"target,omitempty"`
	Value        any    `yaml:"value,omitempty"`
	From         any    `yaml:"from,omitempty"`
	To           any    `yaml:"to,omitempty"`
	Curve        string `yaml:"curve,omitempty"`
	Mode         string `yaml:"mode,omitempty"`
	Feedback     any    `yaml:"feedback,omitempty"`
	Scene        string `yaml:"scene,omitempty"`
	File         string `yaml:"file,omitempty"`
	Anchor       string `yaml:"anchor,omitempty"`
	Quantization string `yaml:"quantization,omitempty"`
	AtSample     int64  `yaml:"atSample,omitempty"`
	DurationMs   int    `yaml:"durationMs,omitempty"`
	Strict       bool   `yaml:"strict,omitempty"`
}

// LoadScenario parses one scenario file. Unknown YAML fields are
// rejected so typos in scenario files fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load scenario: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Scenario
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if s.Name == "" {
		return nil, fmt.Errorf("scenario %s: missing name", path)
	}
	if len(s.Steps) == 0 {
		return nil, fmt.Errorf("scenario %s: no steps", s.Name)
	}
	return &s, nil
}

// LoadDir loads every *.yaml scenario in a directory, sorted by file
// name so runs are ordered deterministically.
func LoadDir(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("load scenarios: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if ext := filepath.Ext(entry.Name()); ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// toBundle converts a spec to an engine bundle.
func (bs *BundleSpec) toBundle() (*action.Bundle, error) {
	b := &action.Bundle{
		BundleID:                 bs.BundleID,
		Atomic:                   bs.Atomic,
		PreconditionStateVersion: bs.PreconditionStateVersion,
		Cause:                    action.Cause(bs.Cause),
		Actions:                  make([]action.Action, 0, len(bs.Actions)),
	}
	for i := range bs.Actions {
		a, err := bs.Actions[i].toAction()
		if err != nil {
			return nil, fmt.Errorf("bundle %s: %w", bs.BundleID, err)
		}
		b.Actions = append(b.Actions, a)
	}
	return b, nil
}

// toAction converts a spec to an action, translating scalar payloads.
func (as *ActionSpec) toAction() (action.Action, error) {
	a := action.Action{
		ActionID: as.ActionID,
		Type:     action.Type(as.Type),
		Target:   as.Target,
		Curve:    action.Curve(as.Curve),
		Mode:     as.Mode,
		Scene:    as.Scene,
		File:     as.File,
		Time: action.TimeSpec{
			Anchor:       action.Anchor(as.Anchor),
			Quantization: action.Quantization(as.Quantization),
			AtSample:     as.AtSample,
			DurationMs:   as.DurationMs,
		},
		Strict: as.Strict,
	}

	var err error
	if a.Value, err = optionalValue(as.Value); err != nil {
		return action.Action{}, fmt.Errorf("action %s: value: %w", as.ActionID, err)
	}
	if a.From, err = optionalValue(as.From); err != nil {
		return action.Action{}, fmt.Errorf("action %s: from: %w", as.ActionID, err)
	}
	if a.To, err = optionalValue(as.To); err != nil {
		return action.Action{}, fmt.Errorf("action %s: to: %w", as.ActionID, err)
	}
	if a.Feedback, err = optionalValue(as.Feedback); err != nil {
		return action.Action{}, fmt.Errorf("action %s: feedback: %w", as.ActionID, err)
	}
	return a, nil
}

func optionalValue(v any) (param.Value, error) {
	if v == nil {
		return nil, nil
	}
	return param.FromAny(v)
}
