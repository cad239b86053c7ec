package harness

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/azsmith/grainulator-sub004/internal/engine"
	"github.com/azsmith/grainulator-sub004/internal/eventlog"
	"github.com/azsmith/grainulator-sub004/internal/param"
	"github.com/azsmith/grainulator-sub004/internal/testutil"
	"github.com/azsmith/grainulator-sub004/internal/timing"
)

// Harness drives one engine through a scenario's steps.
type Harness struct {
	engine    *engine.Engine
	registry  *param.Registry
	transport *testutil.ManualTransport
	clock     *testutil.SteppedTime
}

// Run executes a scenario against a fresh engine on deterministic test
// doubles and returns the trace.
func Run(scenario *Scenario) (*Result, error) {
	registry, err := param.Builtin()
	if err != nil {
		return nil, fmt.Errorf("harness: load registry: %w", err)
	}

	transport := testutil.NewManualTransport()
	if ts := scenario.Transport; ts != nil {
		num, den := ts.BeatsPerBar, ts.BeatUnit
		if num == 0 {
			num = 4
		}
		if den == 0 {
			den = 4
		}
		transport.Set(timing.Transport{
			SampleRate: ts.SampleRate,
			BPM:        ts.BPM,
			TimeSigNum: num,
			TimeSigDen: den,
			Playing:    true,
		})
	}

	clock := testutil.NewSteppedTime()
	eng := engine.New(registry, transport,
		engine.WithIDGenerator(testutil.NewSeqIDGenerator("gen")),
		engine.WithTimeSource(clock.Now),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	h := &Harness{
		engine:    eng,
		registry:  registry,
		transport: transport,
		clock:     clock,
	}

	result := &Result{Name: scenario.Name, Trace: []TraceEvent{}}
	for i := range scenario.Steps {
		ev, err := h.executeStep(ctx, &scenario.Steps[i])
		if err != nil {
			return nil, fmt.Errorf("scenario %s, step %d: %w", scenario.Name, i+1, err)
		}
		result.Trace = append(result.Trace, ev)
	}

	h.finish(result)
	return result, nil
}

// executeStep runs one step and renders its trace event.
func (h *Harness) executeStep(ctx context.Context, step *Step) (TraceEvent, error) {
	switch {
	case step.Apply != nil:
		return h.executeApply(ctx, step.Apply)

	case step.Revoke != "":
		n, err := h.engine.Revoke(ctx, step.Revoke)
		ev := TraceEvent{Op: "revoke", BundleID: step.Revoke, Status: "ok", Count: n}
		if err != nil {
			ev.Status = "failed"
			ev.Error = string(engine.CodeOf(err))
			if ev.Error == "" {
				return TraceEvent{}, err
			}
		}
		return ev, nil

	case step.Dispatch:
		if _, err := h.engine.DispatchDue(ctx); err != nil {
			return TraceEvent{}, err
		}
		return h.drainCommands(), nil

	case step.Advance != 0:
		h.transport.Advance(step.Advance)
		return TraceEvent{Op: "advance", Position: h.transport.Snapshot().SampleTime}, nil

	case step.StepMs != 0:
		h.clock.Step(time.Duration(step.StepMs) * time.Millisecond)
		return TraceEvent{Op: "step_clock", Count: step.StepMs}, nil

	case len(step.Lock) > 0:
		h.engine.LockModules(step.Lock...)
		return TraceEvent{Op: "lock", Modules: step.Lock}, nil

	case len(step.Unlock) > 0:
		h.engine.UnlockModules(step.Unlock...)
		return TraceEvent{Op: "unlock", Modules: step.Unlock}, nil

	default:
		return TraceEvent{}, fmt.Errorf("empty step")
	}
}

// executeApply runs the full validate -> confirm -> apply flow for one
// bundle spec.
func (h *Harness) executeApply(ctx context.Context, spec *BundleSpec) (TraceEvent, error) {
	b, err := spec.toBundle()
	if err != nil {
		return TraceEvent{}, err
	}

	callerID := spec.CallerID
	if callerID == "" {
		callerID = "harness"
	}
	req := &engine.Request{
		CallerID:       callerID,
		Bundle:         b,
		Mode:           engine.ApplyMode(spec.Mode),
		IdempotencyKey: spec.IdempotencyKey,
	}

	if req.EffectiveMode() == engine.ApplyValidated {
		vr, err := h.engine.Validate(b)
		if err != nil {
			return TraceEvent{
				Op:       "apply",
				BundleID: b.BundleID,
				Status:   "failed",
				Error:    string(engine.CodeOf(err)),
			}, nil
		}
		if !vr.OK {
			return traceValidationFailure(b.BundleID, vr), nil
		}
		b.ValidationID = vr.ValidationID

		if vr.RequiresConfirmation && spec.Confirm {
			tok, err := h.engine.Confirm(vr.ValidationID)
			if err != nil {
				return TraceEvent{}, err
			}
			req.ConfirmationToken = tok.TokenID
		}
	}

	res, err := h.engine.Apply(ctx, req)
	if err != nil {
		return TraceEvent{}, err
	}
	return traceResult(res), nil
}

// traceValidationFailure renders a failed validation as an apply event,
// since the bundle never reaches the commit loop.
func traceValidationFailure(bundleID string, vr *engine.ValidationResult) TraceEvent {
	ev := TraceEvent{Op: "apply", BundleID: bundleID, Status: "failed"}
	for _, check := range vr.Checks {
		at := ActionTrace{ActionID: check.ActionID, Status: "ok", AtSample: check.Provisional.AtSample}
		if check.Err != nil {
			at.Status = "failed"
			at.Error = string(check.Err.Code)
			if ev.Error == "" {
				ev.Error = string(check.Err.Code)
			}
		}
		ev.Actions = append(ev.Actions, at)
	}
	return ev
}

// traceResult renders a scheduling result as an apply event.
func traceResult(res *engine.Result) TraceEvent {
	ev := TraceEvent{
		Op:           "apply",
		BundleID:     res.BundleID,
		Status:       "ok",
		StateVersion: res.StateVersion,
	}
	if !res.OK {
		ev.Status = "failed"
	}
	if res.Err != nil {
		ev.Error = string(res.Err.Code)
	}
	for _, ar := range res.Actions {
		at := ActionTrace{
			ActionID: ar.ActionID,
			Status:   string(ar.Status),
			AtSample: ar.AtSample,
		}
		if ar.EndSample != ar.AtSample {
			at.EndSample = ar.EndSample
		}
		if ar.Err != nil {
			at.Error = string(ar.Err.Code)
		}
		ev.Actions = append(ev.Actions, at)
	}
	return ev
}

// drainCommands empties the delivery ring into a dispatch trace event.
func (h *Harness) drainCommands() TraceEvent {
	ev := TraceEvent{Op: "dispatch"}
	for {
		cmd := h.engine.Commands().Dequeue()
		if cmd == nil {
			break
		}
		ct := CommandTrace{
			BundleID: cmd.BundleID,
			Target:   cmd.Target,
			Type:     string(cmd.Type),
			AtSample: cmd.AtSample,
		}
		if cmd.Value != nil {
			ct.Value = param.Format(cmd.Value)
		}
		if cmd.From != nil {
			ct.From = param.Format(cmd.From)
		}
		if cmd.To != nil {
			ct.To = param.Format(cmd.To)
		}
		if cmd.Mode != nil {
			ct.Mode = param.Format(cmd.Mode)
		}
		if cmd.Feedback != nil {
			ct.Feedback = param.Format(cmd.Feedback)
		}
		ev.Commands = append(ev.Commands, ct)
	}
	ev.Count = len(ev.Commands)
	return ev
}

// finish fills in the event log and final-state sections.
func (h *Harness) finish(result *Result) {
	result.Events = []string{}
	if records, err := h.engine.ExportEvents(1, math.MaxUint64); err == nil {
		result.Records = records
		for _, rec := range records {
			result.Events = append(result.Events, formatEvent(rec))
		}
	}

	snap := h.engine.ExportState()
	result.FinalStateVersion = snap.Version()
	result.FinalState = []string{}
	defaults := h.registry.Defaults()
	for _, path := range snap.Paths() {
		v, _ := snap.Get(path)
		if param.Equal(v, defaults[path]) {
			continue
		}
		result.FinalState = append(result.FinalState, fmt.Sprintf("%s = %s", path, param.Format(v)))
	}
}

// formatEvent renders one event record as a stable single line.
func formatEvent(rec eventlog.Record) string {
	return fmt.Sprintf("seq=%d kind=%s cause=%s version=%d paths=%s",
		rec.Seq, rec.Kind, rec.Cause, rec.StateVersion, strings.Join(rec.Paths, ","))
}
