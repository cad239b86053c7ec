package engine

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/azsmith/grainulator-sub004/internal/action"
	"github.com/azsmith/grainulator-sub004/internal/eventlog"
	"github.com/azsmith/grainulator-sub004/internal/param"
	"github.com/azsmith/grainulator-sub004/internal/state"
	"github.com/azsmith/grainulator-sub004/internal/timing"
)

// DefaultValidationTTL bounds how long a validation result can be bound
// to a scheduling request. Short on purpose: the transport keeps moving
// and a validation against last minute's state proves nothing.
const DefaultValidationTTL = 10 * time.Second

// ActionCheck is the per-action outcome of a validation pass.
type ActionCheck struct {
	// ActionID identifies the action within its bundle.
	ActionID string `json:"actionId"`

	// OK reports whether the action passed every check.
	OK bool `json:"ok"`

	// Err carries the failure for rejected actions.
	Err *Error `json:"error,omitempty"`

	// Risk is the action's computed risk class.
	Risk param.RiskClass `json:"risk"`

	// Provisional is the timing resolved against the validation-time
	// transport snapshot. Commit re-resolves against the live transport.
	Provisional timing.Resolved `json:"provisional"`
}

// ValidationResult is the outcome of validating one bundle. A passing
// result is registered under its ValidationID and can be bound to
// exactly one scheduling request before the TTL runs out.
type ValidationResult struct {
	// ValidationID is the handle a scheduling request binds to.
	ValidationID string `json:"validationId"`

	// BundleID is the bundle this result was computed for.
	BundleID string `json:"bundleId"`

	// OK reports whether every action passed.
	OK bool `json:"ok"`

	// Risk is the bundle risk: the maximum across actions.
	Risk param.RiskClass `json:"risk"`

	// RequiresConfirmation is set when Risk is high: scheduling needs a
	// confirmation token.
	RequiresConfirmation bool `json:"requiresConfirmation"`

	// StateVersion is the canonical state version validated against.
	StateVersion uint64 `json:"stateVersion"`

	// ExpiresAt is the binding deadline.
	ExpiresAt time.Time `json:"expiresAt"`

	// Checks holds per-action outcomes in bundle order.
	Checks []ActionCheck `json:"checks"`
}

// check returns the ActionCheck for an action ID.
func (vr *ValidationResult) check(actionID string) (ActionCheck, bool) {
	for i := range vr.Checks {
		if vr.Checks[i].ActionID == actionID {
			return vr.Checks[i], true
		}
	}
	return ActionCheck{}, false
}

// Validator runs the semantic validation pass: descriptor checks,
// recording mutual exclusion, scene existence, risk classification, and
// provisional timing resolution. Passing results are registered for
// single-use binding by the scheduler.
//
// Thread-safety: safe from any goroutine; validation only reads
// snapshots.
type Validator struct {
	registry  *param.Registry
	scenes    *SceneBook
	transport timing.Provider
	ids       action.IDGenerator
	ttl       time.Duration
	now       func() time.Time

	mu      sync.Mutex
	results map[string]*ValidationResult
}

// NewValidator creates a validator. ttl <= 0 selects
// DefaultValidationTTL.
func NewValidator(
	registry *param.Registry,
	scenes *SceneBook,
	transport timing.Provider,
	ids action.IDGenerator,
	ttl time.Duration,
	now func() time.Time,
) *Validator {
	if ttl <= 0 {
		ttl = DefaultValidationTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Validator{
		registry:  registry,
		scenes:    scenes,
		transport: transport,
		ids:       ids,
		ttl:       ttl,
		now:       now,
		results:   make(map[string]*ValidationResult),
	}
}

// Validate checks a bundle against a state snapshot. Actions are
// evaluated in order against a working view, so an action sees the
// effects of the actions before it (startRecording then
// setRecordingFeedback in one bundle validates as intended).
//
// A fully passing result is registered for single-use binding;
// a failing result is returned but never registered.
func (v *Validator) Validate(b *action.Bundle, snap state.Snapshot) (*ValidationResult, error) {
	if b == nil {
		return nil, newError(CodeMalformedBundle, "", "", "", "nil bundle")
	}
	if err := b.Validate(); err != nil {
		return nil, newError(CodeMalformedBundle, b.BundleID, "", "", "%v", err)
	}

	t := v.transport.Snapshot()
	work := newView(snap)
	result := &ValidationResult{
		ValidationID: v.ids.Generate(),
		BundleID:     b.BundleID,
		OK:           true,
		Risk:         param.RiskLow,
		StateVersion: snap.Version(),
		ExpiresAt:    v.now().Add(v.ttl),
		Checks:       make([]ActionCheck, 0, len(b.Actions)),
	}

	for i := range b.Actions {
		a := &b.Actions[i]
		check := ActionCheck{ActionID: a.ActionID, OK: true, Risk: param.RiskLow}

		p, verr := evaluate(v.registry, v.scenes, work, a, b.BundleID)
		if verr != nil {
			check.OK = false
			check.Err = verr
			result.OK = false
			result.Checks = append(result.Checks, check)
			continue
		}

		resolved, err := timing.Resolve(a.Time, t)
		if err != nil {
			check.OK = false
			check.Err = newError(CodeOutOfRange, b.BundleID, a.ActionID, a.Target, "%v", err)
			result.OK = false
			result.Checks = append(result.Checks, check)
			continue
		}

		check.Risk = p.risk
		check.Provisional = resolved
		result.Risk = param.MaxRisk(result.Risk, p.risk)
		result.Checks = append(result.Checks, check)

		// Later actions validate against the staged effects.
		for path, val := range p.changes {
			work.set(path, val)
		}
	}

	result.RequiresConfirmation = result.Risk >= param.RiskHigh

	if result.OK {
		v.mu.Lock()
		v.pruneLocked()
		v.results[result.ValidationID] = result
		v.mu.Unlock()
	}
	return result, nil
}

// Consume binds a registered validation result to a scheduling request,
// exactly once. Unknown, expired, consumed, or wrongly-bound IDs all
// fail closed as VALIDATION_EXPIRED.
func (v *Validator) Consume(validationID, bundleID string) (*ValidationResult, *Error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	result, ok := v.results[validationID]
	if !ok {
		return nil, newError(CodeValidationExpired, bundleID, "", "",
			"validation unknown, expired, or already consumed")
	}
	delete(v.results, validationID)

	if v.now().After(result.ExpiresAt) {
		return nil, newError(CodeValidationExpired, bundleID, "", "",
			"validation expired")
	}
	if result.BundleID != bundleID {
		return nil, newError(CodeValidationExpired, bundleID, "", "",
			"validation bound to a different bundle")
	}
	return result, nil
}

// Pending reports whether a validation result is still registered and
// unexpired. Read-only; never consumes.
func (v *Validator) Pending(validationID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	result, ok := v.results[validationID]
	return ok && !v.now().After(result.ExpiresAt)
}

// pruneLocked drops expired results. Called with v.mu held.
func (v *Validator) pruneLocked() {
	now := v.now()
	for id, result := range v.results {
		if now.After(result.ExpiresAt) {
			delete(v.results, id)
		}
	}
}

// view is a working overlay over an immutable snapshot. Staged changes
// shadow the snapshot so sequential actions in one bundle see each
// other's effects without touching canonical state.
type view struct {
	snap    state.Snapshot
	overlay map[string]param.Value
}

func newView(snap state.Snapshot) *view {
	return &view{snap: snap, overlay: make(map[string]param.Value)}
}

func (v *view) get(path string) (param.Value, bool) {
	if val, ok := v.overlay[path]; ok {
		return val, true
	}
	return v.snap.Get(path)
}

func (v *view) set(path string, val param.Value) {
	v.overlay[path] = val
}

// pathsUnder returns the sorted paths under a prefix segment, merging
// snapshot and overlay.
func (v *view) pathsUnder(prefix string) []string {
	seen := make(map[string]bool)
	for _, path := range v.snap.PathsUnder(prefix) {
		seen[path] = true
	}
	for path := range v.overlay {
		if len(path) > len(prefix) && strings.HasPrefix(path, prefix) && path[len(prefix)] == '.' {
			seen[path] = true
		}
	}
	paths := make([]string, 0, len(seen))
	for path := range seen {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// plannedCommand is one real-time instruction an action will produce,
// before timing is attached.
type plannedCommand struct {
	target string
	typ    action.Type
	value  param.Value
	from   param.Value
	to     param.Value
	curve  action.Curve
	desc   *param.Descriptor // nil for module-level triggers

	// mode and feedback carry the recording payload on startRecording
	// commands.
	mode     param.Value
	feedback param.Value
}

// plan is the evaluated effect of one action: staged state changes,
// planned commands, risk class, and the event kind a commit will emit.
type plan struct {
	risk     param.RiskClass
	changes  map[string]param.Value
	commands []plannedCommand

	// kind is the event record kind. Empty when the action commits no
	// state (trigger).
	kind eventlog.Kind

	// capture holds the scene snapshot for saveScene.
	capture map[string]param.Value
	// scene is the scene name for scene actions.
	scene string
}

// recording sub-paths relative to a module target.
const (
	pathRecordingActive   = ".recording.active"
	pathRecordingMode     = ".recording.mode"
	pathRecordingFeedback = ".recording.feedback"
	pathBufferFile        = ".buffer.file"
)

// modeBufferFreeze rejects feedback writes: a frozen buffer has no
// record head to feed back into.
const modeBufferFreeze = "buffer_freeze"

// evaluate computes the plan for one action against a working view.
// Pure semantic evaluation: no timing, no conflict checks, no commits.
func evaluate(reg *param.Registry, scenes *SceneBook, v *view, a *action.Action, bundleID string) (*plan, *Error) {
	switch a.Type {
	case action.Set:
		return evalSet(reg, v, a, bundleID)
	case action.Ramp:
		return evalRamp(reg, v, a, bundleID)
	case action.Toggle:
		return evalToggle(reg, v, a, bundleID)
	case action.Trigger:
		return evalTrigger(reg, a, bundleID)
	case action.StartRecording:
		return evalStartRecording(reg, v, a, bundleID)
	case action.StopRecording:
		return evalStopRecording(reg, v, a, bundleID)
	case action.SetRecordingFeedback:
		return evalSetRecordingFeedback(reg, v, a, bundleID)
	case action.SetRecordingMode:
		return evalSetRecordingMode(reg, a, bundleID)
	case action.LoadFile:
		return evalLoadFile(reg, v, a, bundleID)
	case action.SaveScene:
		return evalSaveScene(v, a, bundleID)
	case action.RecallScene:
		return evalRecallScene(reg, scenes, a, bundleID)
	case action.MorphScene:
		return evalMorphScene(reg, scenes, v, a, bundleID)
	default:
		return nil, newError(CodeMalformedBundle, bundleID, a.ActionID, "",
			"unknown action type %q", a.Type)
	}
}

// lookupDesc resolves a path to its descriptor or UNKNOWN_TARGET.
func lookupDesc(reg *param.Registry, path, bundleID, actionID string) (*param.Descriptor, *Error) {
	desc, ok := reg.Lookup(path)
	if !ok {
		return nil, newError(CodeUnknownTarget, bundleID, actionID, path,
			"no parameter registered at %q", path)
	}
	return desc, nil
}

// checkValue verifies a value against a descriptor, splitting the
// failure into TYPE_MISMATCH vs ACTION_OUT_OF_RANGE. Returns the value
// coerced to the descriptor type.
func checkValue(desc *param.Descriptor, val param.Value, bundleID, actionID string) (param.Value, *Error) {
	if val == nil {
		return nil, newError(CodeTypeMismatch, bundleID, actionID, desc.Path,
			"missing value for %s parameter", desc.Type)
	}
	if !param.Finite(val) {
		return nil, newError(CodeOutOfRange, bundleID, actionID, desc.Path,
			"value must be finite")
	}
	coerced, ok := param.Coerce(val, desc.Type)
	if !ok {
		return nil, newError(CodeTypeMismatch, bundleID, actionID, desc.Path,
			"expected %s, got %s", desc.Type, val.Type())
	}
	if err := desc.CheckValue(coerced); err != nil {
		code := CodeOutOfRange
		if strings.HasSuffix(desc.Path, pathRecordingMode) {
			code = CodeRecordingModeUnsupported
		}
		return nil, newError(code, bundleID, actionID, desc.Path, "%v", err)
	}
	return coerced, nil
}

func evalSet(reg *param.Registry, v *view, a *action.Action, bundleID string) (*plan, *Error) {
	desc, verr := lookupDesc(reg, a.Target, bundleID, a.ActionID)
	if verr != nil {
		return nil, verr
	}
	val, verr := checkValue(desc, a.Value, bundleID, a.ActionID)
	if verr != nil {
		return nil, verr
	}

	kind := eventlog.KindStateChanged
	switch {
	case strings.HasSuffix(a.Target, pathRecordingActive):
		cur, _ := v.get(a.Target)
		arming := val == param.Bool(true)
		if arming && param.Equal(cur, param.Bool(true)) {
			return nil, newError(CodeRecordingAlreadyActive, bundleID, a.ActionID, a.Target,
				"recording already active")
		}
		if !arming && !param.Equal(cur, param.Bool(true)) {
			return nil, newError(CodeRecordingNotActive, bundleID, a.ActionID, a.Target,
				"recording not active")
		}
		if arming {
			kind = eventlog.KindRecordingStarted
		} else {
			kind = eventlog.KindRecordingStopped
		}
	case strings.HasSuffix(a.Target, pathRecordingFeedback):
		if verr := checkFeedbackSupported(v, strings.TrimSuffix(a.Target, pathRecordingFeedback), bundleID, a.ActionID); verr != nil {
			return nil, verr
		}
	}

	return &plan{
		risk:    desc.RiskClass,
		changes: map[string]param.Value{a.Target: val},
		commands: []plannedCommand{
			{target: a.Target, typ: action.Set, value: val, desc: desc},
		},
		kind: kind,
	}, nil
}

func evalRamp(reg *param.Registry, v *view, a *action.Action, bundleID string) (*plan, *Error) {
	desc, verr := lookupDesc(reg, a.Target, bundleID, a.ActionID)
	if verr != nil {
		return nil, verr
	}
	if desc.Type != param.TypeFloat && desc.Type != param.TypeInt {
		return nil, newError(CodeTypeMismatch, bundleID, a.ActionID, a.Target,
			"ramp requires a numeric parameter, %s is %s", a.Target, desc.Type)
	}
	if a.Time.DurationMs <= 0 {
		return nil, newError(CodeOutOfRange, bundleID, a.ActionID, a.Target,
			"ramp requires a positive durationMs")
	}

	to, verr := checkValue(desc, a.To, bundleID, a.ActionID)
	if verr != nil {
		return nil, verr
	}
	from := a.From
	if from == nil {
		from, _ = v.get(a.Target)
	}
	from, verr = checkValue(desc, from, bundleID, a.ActionID)
	if verr != nil {
		return nil, verr
	}

	curve := a.Curve
	if curve == "" {
		curve = action.CurveLinear
	}

	return &plan{
		risk: desc.RiskClass,
		// Canonical state reflects the trajectory endpoint; the ramp
		// itself lives in the command.
		changes: map[string]param.Value{a.Target: to},
		commands: []plannedCommand{
			{target: a.Target, typ: action.Ramp, from: from, to: to, curve: curve, desc: desc},
		},
		kind: eventlog.KindStateChanged,
	}, nil
}

func evalToggle(reg *param.Registry, v *view, a *action.Action, bundleID string) (*plan, *Error) {
	desc, verr := lookupDesc(reg, a.Target, bundleID, a.ActionID)
	if verr != nil {
		return nil, verr
	}
	if desc.Type != param.TypeBool {
		return nil, newError(CodeTypeMismatch, bundleID, a.ActionID, a.Target,
			"toggle requires a bool parameter, %s is %s", a.Target, desc.Type)
	}

	cur, _ := v.get(a.Target)
	next := param.Bool(!param.Equal(cur, param.Bool(true)))

	kind := eventlog.KindStateChanged
	if strings.HasSuffix(a.Target, pathRecordingActive) {
		if next == param.Bool(true) {
			kind = eventlog.KindRecordingStarted
		} else {
			kind = eventlog.KindRecordingStopped
		}
	}

	return &plan{
		risk:    desc.RiskClass,
		changes: map[string]param.Value{a.Target: next},
		commands: []plannedCommand{
			{target: a.Target, typ: action.Set, value: next, desc: desc},
		},
		kind: kind,
	}, nil
}

func evalTrigger(reg *param.Registry, a *action.Action, bundleID string) (*plan, *Error) {
	// A trigger is momentary: a command with no state commit. The target
	// must be a registered path or a module owning registered paths.
	var desc *param.Descriptor
	if d, ok := reg.Lookup(a.Target); ok {
		desc = d
	} else if !moduleKnown(reg, a.Target) {
		return nil, newError(CodeUnknownTarget, bundleID, a.ActionID, a.Target,
			"no parameter or module registered at %q", a.Target)
	}
	return &plan{
		risk: param.RiskLow,
		commands: []plannedCommand{
			{target: a.Target, typ: action.Trigger, value: a.Value, desc: desc},
		},
	}, nil
}

// moduleKnown reports whether any registered path lives under the
// module prefix.
func moduleKnown(reg *param.Registry, module string) bool {
	for _, path := range reg.Paths() {
		if param.ModuleOf(path) == module {
			return true
		}
	}
	return false
}

// checkFeedbackSupported rejects feedback writes when the module's
// effective recording mode cannot use them.
func checkFeedbackSupported(v *view, module, bundleID, actionID string) *Error {
	mode, ok := v.get(module + pathRecordingMode)
	if !ok {
		return nil
	}
	if param.Equal(mode, param.String(modeBufferFreeze)) {
		return newError(CodeRecordingFeedbackUnsupported, bundleID, actionID,
			module+pathRecordingFeedback,
			"recording mode %s does not support feedback", modeBufferFreeze)
	}
	return nil
}

func evalStartRecording(reg *param.Registry, v *view, a *action.Action, bundleID string) (*plan, *Error) {
	activePath := a.Target + pathRecordingActive
	activeDesc, verr := lookupDesc(reg, activePath, bundleID, a.ActionID)
	if verr != nil {
		return nil, verr
	}
	if cur, _ := v.get(activePath); param.Equal(cur, param.Bool(true)) {
		return nil, newError(CodeRecordingAlreadyActive, bundleID, a.ActionID, activePath,
			"recording already active on %s", a.Target)
	}

	p := &plan{
		risk:    activeDesc.RiskClass,
		changes: map[string]param.Value{activePath: param.Bool(true)},
		kind:    eventlog.KindRecordingStarted,
	}
	// The whole arm rides in one command. The consumer dequeues once per
	// quantum, so mode and feedback landing as separate commands would
	// leave the recording observable in a half-armed state.
	cmd := plannedCommand{
		target: activePath, typ: action.StartRecording, value: param.Bool(true), desc: activeDesc,
	}

	effectiveMode, _ := v.get(a.Target + pathRecordingMode)
	if a.Mode != "" {
		modeDesc, verr := lookupDesc(reg, a.Target+pathRecordingMode, bundleID, a.ActionID)
		if verr != nil {
			return nil, verr
		}
		mode, verr := checkValue(modeDesc, param.String(a.Mode), bundleID, a.ActionID)
		if verr != nil {
			return nil, verr
		}
		effectiveMode = mode
		p.risk = param.MaxRisk(p.risk, modeDesc.RiskClass)
		p.changes[modeDesc.Path] = mode
		cmd.mode = mode
	}

	if a.Feedback != nil {
		if param.Equal(effectiveMode, param.String(modeBufferFreeze)) {
			return nil, newError(CodeRecordingFeedbackUnsupported, bundleID, a.ActionID,
				a.Target+pathRecordingFeedback,
				"recording mode %s does not support feedback", modeBufferFreeze)
		}
		fbDesc, verr := lookupDesc(reg, a.Target+pathRecordingFeedback, bundleID, a.ActionID)
		if verr != nil {
			return nil, verr
		}
		fb, verr := checkValue(fbDesc, a.Feedback, bundleID, a.ActionID)
		if verr != nil {
			return nil, verr
		}
		p.risk = param.MaxRisk(p.risk, fbDesc.RiskClass)
		p.changes[fbDesc.Path] = fb
		cmd.feedback = fb
	}

	p.commands = []plannedCommand{cmd}
	return p, nil
}

func evalStopRecording(reg *param.Registry, v *view, a *action.Action, bundleID string) (*plan, *Error) {
	activePath := a.Target + pathRecordingActive
	desc, verr := lookupDesc(reg, activePath, bundleID, a.ActionID)
	if verr != nil {
		return nil, verr
	}
	if cur, _ := v.get(activePath); !param.Equal(cur, param.Bool(true)) {
		return nil, newError(CodeRecordingNotActive, bundleID, a.ActionID, activePath,
			"recording not active on %s", a.Target)
	}
	return &plan{
		risk:    desc.RiskClass,
		changes: map[string]param.Value{activePath: param.Bool(false)},
		commands: []plannedCommand{
			{target: activePath, typ: action.StopRecording, value: param.Bool(false), desc: desc},
		},
		kind: eventlog.KindRecordingStopped,
	}, nil
}

func evalSetRecordingFeedback(reg *param.Registry, v *view, a *action.Action, bundleID string) (*plan, *Error) {
	fbPath := a.Target + pathRecordingFeedback
	desc, verr := lookupDesc(reg, fbPath, bundleID, a.ActionID)
	if verr != nil {
		return nil, verr
	}
	if verr := checkFeedbackSupported(v, a.Target, bundleID, a.ActionID); verr != nil {
		return nil, verr
	}
	payload := a.Value
	if payload == nil {
		payload = a.Feedback
	}
	fb, verr := checkValue(desc, payload, bundleID, a.ActionID)
	if verr != nil {
		return nil, verr
	}
	return &plan{
		risk:    param.MaxRisk(desc.RiskClass, param.RiskMedium),
		changes: map[string]param.Value{fbPath: fb},
		commands: []plannedCommand{
			{target: fbPath, typ: action.Set, value: fb, desc: desc},
		},
		kind: eventlog.KindStateChanged,
	}, nil
}

func evalSetRecordingMode(reg *param.Registry, a *action.Action, bundleID string) (*plan, *Error) {
	modePath := a.Target + pathRecordingMode
	desc, verr := lookupDesc(reg, modePath, bundleID, a.ActionID)
	if verr != nil {
		return nil, verr
	}
	payload := a.Value
	if payload == nil && a.Mode != "" {
		payload = param.String(a.Mode)
	}
	mode, verr := checkValue(desc, payload, bundleID, a.ActionID)
	if verr != nil {
		return nil, verr
	}
	return &plan{
		risk:    param.MaxRisk(desc.RiskClass, param.RiskMedium),
		changes: map[string]param.Value{modePath: mode},
		commands: []plannedCommand{
			{target: modePath, typ: action.Set, value: mode, desc: desc},
		},
		kind: eventlog.KindStateChanged,
	}, nil
}

func evalLoadFile(reg *param.Registry, v *view, a *action.Action, bundleID string) (*plan, *Error) {
	filePath := a.Target + pathBufferFile
	desc, verr := lookupDesc(reg, filePath, bundleID, a.ActionID)
	if verr != nil {
		return nil, verr
	}
	if a.File == "" {
		return nil, newError(CodeMalformedBundle, bundleID, a.ActionID, filePath,
			"loadFile requires a file")
	}
	// Swapping the buffer out from under an active recording would
	// corrupt the take.
	if cur, _ := v.get(a.Target + pathRecordingActive); param.Equal(cur, param.Bool(true)) {
		return nil, newError(CodeRecordingAlreadyActive, bundleID, a.ActionID, filePath,
			"cannot load file while recording on %s", a.Target)
	}
	val := param.String(a.File)
	return &plan{
		risk:    desc.RiskClass,
		changes: map[string]param.Value{filePath: val},
		commands: []plannedCommand{
			{target: filePath, typ: action.LoadFile, value: val, desc: desc},
		},
		kind: eventlog.KindFileLoaded,
	}, nil
}

func evalSaveScene(v *view, a *action.Action, bundleID string) (*plan, *Error) {
	if a.Scene == "" {
		return nil, newError(CodeMalformedBundle, bundleID, a.ActionID, "",
			"saveScene requires a scene name")
	}
	return &plan{
		risk:    param.RiskLow,
		changes: map[string]param.Value{"scene.current": param.String(a.Scene)},
		kind:    eventlog.KindSceneSaved,
		capture: sceneCapture(v),
		scene:   a.Scene,
	}, nil
}

func evalRecallScene(reg *param.Registry, scenes *SceneBook, a *action.Action, bundleID string) (*plan, *Error) {
	if a.Scene == "" {
		return nil, newError(CodeMalformedBundle, bundleID, a.ActionID, "",
			"recallScene requires a scene name")
	}
	values, ok := scenes.Lookup(a.Scene)
	if !ok {
		return nil, newError(CodeSceneNotFound, bundleID, a.ActionID, "",
			"no scene named %q", a.Scene)
	}

	p := &plan{
		risk:    param.RiskLow,
		changes: make(map[string]param.Value, len(values)+1),
		kind:    eventlog.KindSceneRecalled,
		scene:   a.Scene,
	}
	for _, path := range sortedPaths(values) {
		desc, verr := lookupDesc(reg, path, bundleID, a.ActionID)
		if verr != nil {
			return nil, verr
		}
		val, verr := checkValue(desc, values[path], bundleID, a.ActionID)
		if verr != nil {
			return nil, verr
		}
		p.risk = param.MaxRisk(p.risk, desc.RiskClass)
		p.changes[path] = val
		p.commands = append(p.commands, plannedCommand{
			target: path, typ: action.Set, value: val, desc: desc,
		})
	}
	p.changes["scene.current"] = param.String(a.Scene)
	return p, nil
}

func evalMorphScene(reg *param.Registry, scenes *SceneBook, v *view, a *action.Action, bundleID string) (*plan, *Error) {
	if a.Scene == "" {
		return nil, newError(CodeMalformedBundle, bundleID, a.ActionID, "",
			"morphScene requires a scene name")
	}
	if a.Time.DurationMs <= 0 {
		return nil, newError(CodeOutOfRange, bundleID, a.ActionID, "",
			"morphScene requires a positive durationMs")
	}
	values, ok := scenes.Lookup(a.Scene)
	if !ok {
		return nil, newError(CodeSceneNotFound, bundleID, a.ActionID, "",
			"no scene named %q", a.Scene)
	}

	curve := a.Curve
	if curve == "" {
		curve = action.CurveLinear
	}

	p := &plan{
		risk:    param.RiskLow,
		changes: make(map[string]param.Value),
		kind:    eventlog.KindSceneMorphed,
		scene:   a.Scene,
	}
	for _, path := range sortedPaths(values) {
		desc, verr := lookupDesc(reg, path, bundleID, a.ActionID)
		if verr != nil {
			return nil, verr
		}
		// Only numeric parameters morph; modes and file paths have no
		// meaningful in-between.
		if desc.Type != param.TypeFloat && desc.Type != param.TypeInt {
			continue
		}
		to, verr := checkValue(desc, values[path], bundleID, a.ActionID)
		if verr != nil {
			return nil, verr
		}
		from, _ := v.get(path)
		if param.Equal(from, to) {
			continue
		}
		p.risk = param.MaxRisk(p.risk, desc.RiskClass)
		p.changes[path] = to
		p.commands = append(p.commands, plannedCommand{
			target: path, typ: action.Ramp, from: from, to: to, curve: curve, desc: desc,
		})
	}
	p.changes["scene.current"] = param.String(a.Scene)
	return p, nil
}

func sortedPaths(m map[string]param.Value) []string {
	paths := make([]string, 0, len(m))
	for path := range m {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
