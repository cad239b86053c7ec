package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/azsmith/grainulator-sub004/internal/action"
	"github.com/azsmith/grainulator-sub004/internal/delivery"
	"github.com/azsmith/grainulator-sub004/internal/eventlog"
	"github.com/azsmith/grainulator-sub004/internal/param"
	"github.com/azsmith/grainulator-sub004/internal/state"
	"github.com/azsmith/grainulator-sub004/internal/timing"
)

// Engine is the scheduling and state synchronization core. It owns
// canonical state, the event sequencer, the delivery ring, and all the
// policy machinery around them (validation, confirmation, idempotency,
// conflicts, locks).
//
// CRITICAL: all commits happen in the single-writer Run loop goroutine.
// External callers use Apply/Revoke/DispatchDue, which enqueue work and
// wait for the loop's reply. Read paths (Validate, ExportState,
// ExportEvents, Subscribe) work from snapshots and are safe from any
// goroutine.
//
// Thread-safety model:
//   - Apply/Revoke/DispatchDue: safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - Validate/Confirm/Export*/Subscribe/Lock*: safe from any goroutine
type Engine struct {
	registry  *param.Registry
	store     *state.Store
	events    *eventlog.Sequencer
	commands  *delivery.Queue
	transport timing.Provider
	ids       action.IDGenerator
	now       func() time.Time

	validator *Validator
	tokens    *TokenManager
	ledger    *Ledger
	scenes    *SceneBook
	sched     *scheduler
	admission *Clock

	requests *requestQueue

	locked *lockSet

	validationTTL   time.Duration
	confirmationTTL time.Duration
	ledgerTTL       time.Duration
	queueCapacity   int
	replayBuffer    int
}

// Option configures an Engine.
type Option func(*Engine)

// WithIDGenerator replaces the UUIDv7 generator; tests pass a
// FixedGenerator for deterministic identifiers.
func WithIDGenerator(ids action.IDGenerator) Option {
	return func(e *Engine) { e.ids = ids }
}

// WithTimeSource replaces the wall clock; tests pass a fixed or
// stepped source to exercise TTLs.
func WithTimeSource(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithQueueCapacity sets the delivery ring capacity.
func WithQueueCapacity(capacity int) Option {
	return func(e *Engine) { e.queueCapacity = capacity }
}

// WithValidationTTL overrides the validation binding window.
func WithValidationTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.validationTTL = ttl }
}

// WithConfirmationTTL overrides the confirmation token lifetime.
func WithConfirmationTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.confirmationTTL = ttl }
}

// WithLedgerTTL overrides the idempotency ledger retention window.
func WithLedgerTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.ledgerTTL = ttl }
}

// WithReplayBuffer sets the event sequencer's replay buffer size.
func WithReplayBuffer(size int) Option {
	return func(e *Engine) { e.replayBuffer = size }
}

// New creates an Engine over a registry and a transport provider.
// Canonical state is seeded from the registry defaults at version 0.
func New(registry *param.Registry, transport timing.Provider, opts ...Option) *Engine {
	e := &Engine{
		registry:  registry,
		transport: transport,
		ids:       action.UUIDv7Generator{},
		now:       time.Now,
		admission: NewClock(),
		requests:  newRequestQueue(),
		locked:    newLockSet(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.store = state.NewStore(registry.Defaults())
	e.events = eventlog.NewSequencer(e.replayBuffer)
	e.commands = delivery.NewQueue(e.queueCapacity)
	e.scenes = NewSceneBook()
	e.validator = NewValidator(registry, e.scenes, transport, e.ids, e.validationTTL, e.now)
	e.tokens = NewTokenManager(e.ids, e.confirmationTTL, e.now)
	e.ledger = NewLedger(e.ledgerTTL, e.now)
	e.sched = newScheduler(e.admission)
	return e
}

// Registry returns the parameter registry.
func (e *Engine) Registry() *param.Registry { return e.registry }

// Commands returns the delivery ring. Exactly one consumer (the
// real-time side) may call Dequeue on it.
func (e *Engine) Commands() *delivery.Queue { return e.commands }

// Scenes returns the stored scene names, sorted.
func (e *Engine) Scenes() []string { return e.scenes.Names() }

// NewBundleID generates a fresh bundle identifier.
func (e *Engine) NewBundleID() string { return e.ids.Generate() }

// Validate runs the validation pass against the current state.
// A passing result is registered for single-use binding within its TTL.
func (e *Engine) Validate(b *action.Bundle) (*ValidationResult, error) {
	return e.validator.Validate(b, e.store.Snapshot())
}

// Confirm issues a confirmation token for a pending validation result.
// The token authorizes exactly one high-risk commit.
func (e *Engine) Confirm(validationID string) (ConfirmationToken, error) {
	if !e.validator.Pending(validationID) {
		return ConfirmationToken{}, newError(CodeValidationExpired, "", "", "",
			"validation unknown, expired, or already consumed")
	}
	return e.tokens.Issue(validationID), nil
}

// ExportState returns an immutable snapshot of canonical state.
func (e *Engine) ExportState() state.Snapshot {
	return e.store.Snapshot()
}

// ExportEvents returns retained event records with from <= seq <= to.
func (e *Engine) ExportEvents(from, to uint64) ([]eventlog.Record, error) {
	return e.events.ExportRange(from, to)
}

// Subscribe returns a live event feed starting after the given seq.
func (e *Engine) Subscribe(afterSeq uint64) *eventlog.Subscription {
	return e.events.Subscribe(afterSeq)
}

// LockModules adds module prefixes to the lock set. Scheduling against
// a locked module fails with MODULE_LOCKED until unlocked.
func (e *Engine) LockModules(modules ...string) {
	e.locked.lock(modules)
}

// UnlockModules removes module prefixes from the lock set.
func (e *Engine) UnlockModules(modules ...string) {
	e.locked.unlock(modules)
}

// Apply submits a bundle for scheduling and waits for the commit
// loop's result. The returned Result is also delivered for failed
// bundles; the error return is reserved for transport-level problems
// (engine stopped, context cancelled).
func (e *Engine) Apply(ctx context.Context, req *Request) (*Result, error) {
	reply := make(chan envelopeReply, 1)
	ok := e.requests.Enqueue(envelope{
		op:        opApply,
		req:       req,
		admission: e.admission.Next(),
		reply:     reply,
	})
	if !ok {
		return nil, fmt.Errorf("engine stopped")
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-reply:
		return r.result, r.err
	}
}

// Revoke cancels a bundle's not-yet-consumed commands: pending ones
// are dropped, ring entries are tombstoned for the consumer to skip.
// Returns how many commands were revoked; revoking a bundle with no
// live commands fails with BUNDLE_REVOKED.
func (e *Engine) Revoke(ctx context.Context, bundleID string) (int, error) {
	reply := make(chan envelopeReply, 1)
	ok := e.requests.Enqueue(envelope{
		op:        opRevoke,
		bundleID:  bundleID,
		admission: e.admission.Next(),
		reply:     reply,
	})
	if !ok {
		return 0, fmt.Errorf("engine stopped")
	}
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case r := <-reply:
		return r.count, r.err
	}
}

// DispatchDue moves commands whose offset the transport has reached
// into the delivery ring. The Run loop also dispatches after every
// commit batch; embedders call this on their control tick.
func (e *Engine) DispatchDue(ctx context.Context) (int, error) {
	reply := make(chan envelopeReply, 1)
	ok := e.requests.Enqueue(envelope{
		op:        opDispatch,
		admission: e.admission.Next(),
		reply:     reply,
	})
	if !ok {
		return 0, fmt.Errorf("engine stopped")
	}
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case r := <-reply:
		return r.count, r.err
	}
}

// Run starts the single-writer commit loop. Blocks until the context
// is cancelled or Stop is called.
//
// CRITICAL: must be called from exactly ONE goroutine. All state
// commits, event appends, and command staging happen here.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting",
		"parameters", e.registry.Len(),
		"queue_capacity", e.commands.Cap(),
	)

	for {
		if batch := e.requests.DrainBatch(); len(batch) > 0 {
			e.processBatch(batch)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.requests.Close()
			e.drainReplies()
			return ctx.Err()

		case <-e.requests.Wait():
			if e.requests.Len() == 0 {
				slog.Info("engine stopping: request queue closed")
				return nil
			}
		}
	}
}

// Stop gracefully shuts down the engine. Closes the request queue,
// which causes Run to return once drained.
func (e *Engine) Stop() {
	e.requests.Close()
}

// drainReplies fails any envelopes still queued at shutdown so no
// submitter blocks forever.
func (e *Engine) drainReplies() {
	for _, env := range e.requests.DrainBatch() {
		env.reply <- envelopeReply{err: fmt.Errorf("engine stopped")}
	}
}

// processBatch handles one commit tick. Control operations run first
// in admission order; apply operations run in conflict order
// (priority descending, admission ascending). Same-path writes within
// the tick resolve by priority: the loser is SUPERSEDED.
func (e *Engine) processBatch(batch []envelope) {
	var applies []envelope
	for _, env := range batch {
		switch env.op {
		case opRevoke:
			n := e.sched.revoke(env.bundleID)
			if n == 0 {
				env.reply <- envelopeReply{err: newError(CodeBundleRevoked, env.bundleID, "", "",
					"bundle has no live commands (already revoked, dispatched, or never scheduled)")}
				continue
			}
			slog.Info("bundle revoked", "bundle_id", env.bundleID, "commands", n)
			env.reply <- envelopeReply{count: n}

		case opDispatch:
			n := e.sched.dispatch(e.transport.Snapshot(), e.commands)
			env.reply <- envelopeReply{count: n}

		case opApply:
			applies = append(applies, env)

		default:
			env.reply <- envelopeReply{err: fmt.Errorf("unknown op %d", env.op)}
		}
	}

	sort.SliceStable(applies, func(i, j int) bool {
		pi := applies[i].req.Bundle.EffectiveCause().Priority()
		pj := applies[j].req.Bundle.EffectiveCause().Priority()
		if pi != pj {
			return pi > pj
		}
		return applies[i].admission < applies[j].admission
	})

	// perTick records the highest priority that wrote each path in this
	// batch; later (lower-priority) writers to the same path lose.
	perTick := make(map[string]int)
	for _, env := range applies {
		res := e.processRequest(env.req, perTick)
		env.reply <- envelopeReply{result: res}
	}

	e.sched.dispatch(e.transport.Snapshot(), e.commands)
}

// processRequest runs the full scheduling pipeline for one submission:
// structure, idempotency, precondition, validation binding,
// confirmation, per-action evaluation and timing, conflict check,
// capacity reservation, then commit + events + command staging.
func (e *Engine) processRequest(req *Request, perTick map[string]int) *Result {
	if req == nil || req.Bundle == nil {
		return &Result{Err: newError(CodeMalformedBundle, "", "", "", "missing bundle")}
	}
	b := req.Bundle
	res := &Result{BundleID: b.BundleID}

	if err := b.Validate(); err != nil {
		res.Err = newError(CodeMalformedBundle, b.BundleID, "", "", "%v", err)
		return res
	}
	mode := req.EffectiveMode()
	if !mode.Valid() {
		res.Err = newError(CodeMalformedBundle, b.BundleID, "", "", "unknown apply mode %q", req.Mode)
		return res
	}
	cause := b.EffectiveCause()

	// Idempotency first: a replayed request must return the stored
	// result before any other check can diverge.
	var requestHash string
	if req.IdempotencyKey != "" {
		var err error
		requestHash, err = action.RequestHash(req.CallerID, string(mode), b)
		if err != nil {
			res.Err = newError(CodeMalformedBundle, b.BundleID, "", "", "request hash: %v", err)
			return res
		}
		stored, lerr := e.ledger.Lookup(req.CallerID, req.IdempotencyKey, requestHash)
		if lerr != nil {
			lerr.BundleID = b.BundleID
			res.Err = lerr
			return res
		}
		if stored != nil {
			slog.Debug("idempotent replay",
				"bundle_id", b.BundleID,
				"caller_id", req.CallerID,
				"key", req.IdempotencyKey,
			)
			return stored
		}
	}
	record := func(r *Result) *Result {
		// Retryable outcomes are never recorded: the retry must be
		// allowed to actually run.
		if req.IdempotencyKey != "" && (r.Err == nil || !r.Err.Retryable()) {
			e.ledger.Record(req.CallerID, req.IdempotencyKey, requestHash, r)
		}
		return r
	}

	if b.PreconditionStateVersion != 0 && b.PreconditionStateVersion != e.store.Version() {
		res.Err = newError(CodeStaleStateVersion, b.BundleID, "", "",
			"precondition stateVersion %d, current %d", b.PreconditionStateVersion, e.store.Version())
		return record(res)
	}

	var vr *ValidationResult
	if mode == ApplyValidated {
		if b.ValidationID == "" {
			res.Err = newError(CodeValidationExpired, b.BundleID, "", "",
				"validated_only submission carries no validationId")
			return record(res)
		}
		bound, verr := e.validator.Consume(b.ValidationID, b.BundleID)
		if verr != nil {
			res.Err = verr
			return record(res)
		}
		vr = bound

		if vr.RequiresConfirmation {
			if req.ConfirmationToken == "" {
				res.Err = newError(CodeConfirmationRequired, b.BundleID, "", "",
					"bundle risk %s requires a confirmation token", vr.Risk)
				return record(res)
			}
			if terr := e.tokens.Consume(req.ConfirmationToken, vr.ValidationID); terr != nil {
				terr.BundleID = b.BundleID
				res.Err = terr
				return record(res)
			}
		}
	}

	live := e.transport.Snapshot()
	work := newView(e.store.Snapshot())
	priority := cause.Priority()

	evals := make([]evaluated, len(b.Actions))
	res.Actions = make([]ActionResult, len(b.Actions))
	failed := false
	commandCount := 0

	for i := range b.Actions {
		a := &b.Actions[i]
		ar := ActionResult{ActionID: a.ActionID, Status: StatusCommitted}

		p, verr := evaluate(e.registry, e.scenes, work, a, b.BundleID)
		if verr == nil && mode == ApplyBestEffort && p.risk > param.RiskLow {
			verr = newError(CodeRiskAbovePolicy, b.BundleID, a.ActionID, a.Target,
				"best_effort admits only low-risk actions, this one is %s", p.risk)
		}
		if verr == nil {
			verr = e.checkLocks(p, b.BundleID, a.ActionID)
		}

		var resolved timing.Resolved
		if verr == nil {
			resolved, verr = e.resolveTiming(a, vr, live, b.BundleID)
		}
		if verr == nil {
			if path, winner, lost := conflicts(p, perTick, priority); lost {
				verr = newError(CodeSuperseded, b.BundleID, a.ActionID, path,
					"superseded by a priority-%d writer in the same tick", winner)
				ar.Status = StatusSuperseded
				e.events.Append(eventlog.Record{
					Kind:     eventlog.KindBundleSuperseded,
					Paths:    sortedPaths(p.changes),
					Cause:    cause,
					BundleID: b.BundleID,
					At:       e.now(),
				})
			}
		}

		if verr != nil {
			if ar.Status == StatusCommitted {
				ar.Status = StatusFailed
			}
			ar.Err = verr
			failed = true
		} else {
			evals[i] = evaluated{plan: p, resolved: resolved}
			commandCount += len(p.commands)
			for path, val := range p.changes {
				work.set(path, val)
			}
		}
		res.Actions[i] = ar
	}

	if b.Atomic && failed {
		// All-or-nothing: untouched actions fail alongside the culprit.
		var first *Error
		for i := range res.Actions {
			if res.Actions[i].Err != nil && first == nil {
				first = res.Actions[i].Err
			}
			if res.Actions[i].Err == nil {
				res.Actions[i].Status = StatusFailed
			}
		}
		res.Err = first
		return record(res)
	}

	// Capacity reservation: pending + ring fill + this submission must
	// fit the ring, or nothing is applied.
	free := e.commands.Cap() - e.commands.Len() - e.sched.pendingLen()
	if b.Atomic && commandCount > free {
		res.Err = &Error{
			Code:         CodeQueueFullRetry,
			Message:      fmt.Sprintf("delivery queue can take %d commands, bundle needs %d", free, commandCount),
			BundleID:     b.BundleID,
			RetryAfterMs: delivery.DefaultRetryAfterMs,
		}
		for i := range res.Actions {
			res.Actions[i].Status = StatusFailed
		}
		return record(res)
	}

	// Apply phase. Atomic bundles commit once; non-atomic bundles commit
	// per action so earlier successes survive later failures.
	if b.Atomic {
		e.applyAtomic(b, cause, evals, res, perTick, priority)
	} else {
		e.applyPerAction(b, cause, evals, res, perTick, priority, &free)
	}

	res.OK = true
	for i := range res.Actions {
		if res.Actions[i].Status != StatusCommitted {
			res.OK = false
			break
		}
	}

	slog.Info("bundle processed",
		"bundle_id", b.BundleID,
		"cause", string(cause),
		"ok", res.OK,
		"state_version", res.StateVersion,
		"actions", len(res.Actions),
	)
	return record(res)
}

// resolveTiming re-resolves an action's symbolic time against the live
// transport. The provisional offsets come from the bound validation
// when one exists, otherwise from a fresh first pass.
func (e *Engine) resolveTiming(a *action.Action, vr *ValidationResult, live timing.Transport, bundleID string) (timing.Resolved, *Error) {
	var provisional timing.Resolved
	if vr != nil {
		if check, ok := vr.check(a.ActionID); ok {
			provisional = check.Provisional
		}
	}
	if provisional == (timing.Resolved{}) {
		first, err := timing.Resolve(a.Time, live)
		if err != nil {
			return timing.Resolved{}, newError(CodeOutOfRange, bundleID, a.ActionID, a.Target, "%v", err)
		}
		provisional = first
	}

	resolved, err := timing.ReResolve(a.Time, provisional, a.Strict, live)
	if err != nil {
		if errors.Is(err, timing.ErrBoundaryMissed) {
			return timing.Resolved{}, newError(CodeBoundaryMissed, bundleID, a.ActionID, a.Target, "%v", err)
		}
		return timing.Resolved{}, newError(CodeOutOfRange, bundleID, a.ActionID, a.Target, "%v", err)
	}
	return resolved, nil
}

// checkLocks rejects a plan touching any locked module.
func (e *Engine) checkLocks(p *plan, bundleID, actionID string) *Error {
	for path := range p.changes {
		if module, hit := e.locked.covering(path); hit {
			return newError(CodeModuleLocked, bundleID, actionID, path,
				"module %s is locked", module)
		}
	}
	for i := range p.commands {
		if module, hit := e.locked.covering(p.commands[i].target); hit {
			return newError(CodeModuleLocked, bundleID, actionID, p.commands[i].target,
				"module %s is locked", module)
		}
	}
	return nil
}

// conflicts reports whether a plan loses to a higher-priority same-tick
// write on any of its paths.
func conflicts(p *plan, perTick map[string]int, priority int) (string, int, bool) {
	for path := range p.changes {
		if winner, ok := perTick[path]; ok && winner > priority {
			return path, winner, true
		}
	}
	return "", 0, false
}

// evaluated pairs an action's plan with its resolved timing.
type evaluated struct {
	plan     *plan
	resolved timing.Resolved
}

// applyAtomic commits every evaluated plan in one state transition.
func (e *Engine) applyAtomic(
	b *action.Bundle,
	cause action.Cause,
	evals []evaluated,
	res *Result,
	perTick map[string]int,
	priority int,
) {
	merged := make(map[string]param.Value)
	for i := range evals {
		for path, val := range evals[i].plan.changes {
			merged[path] = val
		}
	}

	var version uint64
	if len(merged) > 0 {
		v, err := e.store.Commit(merged)
		if err != nil {
			// Unreachable: plans only stage validated finite values.
			res.Err = newError(CodeMalformedBundle, b.BundleID, "", "", "commit: %v", err)
			for i := range res.Actions {
				res.Actions[i].Status = StatusFailed
			}
			return
		}
		version = v
		res.StateVersion = v
	}

	// One commit, one event record: the paths merge across actions and
	// the most specific action kind names the record.
	if kind := bundleEventKind(evals); kind != "" {
		e.events.Append(eventlog.Record{
			StateVersion: version,
			Kind:         kind,
			Paths:        sortedPaths(merged),
			Cause:        cause,
			BundleID:     b.BundleID,
			At:           e.now(),
		})
	}

	for i := range evals {
		e.stageAction(b, evals[i].plan, evals[i].resolved, &res.Actions[i], version, perTick, priority)
	}
}

// bundleEventKind picks the record kind for a single-commit bundle: the
// first action kind more specific than state.changed wins, otherwise
// whatever the actions carry. Empty when no action commits state.
func bundleEventKind(evals []evaluated) eventlog.Kind {
	var kind eventlog.Kind
	for i := range evals {
		k := evals[i].plan.kind
		if k == "" {
			continue
		}
		if kind == "" || kind == eventlog.KindStateChanged {
			kind = k
		}
	}
	return kind
}

// applyPerAction commits evaluated plans one at a time, reserving ring
// capacity per action.
func (e *Engine) applyPerAction(
	b *action.Bundle,
	cause action.Cause,
	evals []evaluated,
	res *Result,
	perTick map[string]int,
	priority int,
	free *int,
) {
	for i := range evals {
		p := evals[i].plan
		if p == nil {
			continue // already failed in evaluation
		}
		if len(p.commands) > *free {
			res.Actions[i] = ActionResult{
				ActionID: res.Actions[i].ActionID,
				Status:   StatusFailed,
				Err: &Error{
					Code:         CodeQueueFullRetry,
					Message:      "delivery queue full",
					BundleID:     b.BundleID,
					ActionID:     res.Actions[i].ActionID,
					RetryAfterMs: delivery.DefaultRetryAfterMs,
				},
			}
			continue
		}
		*free -= len(p.commands)

		var version uint64
		if len(p.changes) > 0 {
			v, err := e.store.Commit(p.changes)
			if err != nil {
				res.Actions[i].Status = StatusFailed
				res.Actions[i].Err = newError(CodeMalformedBundle, b.BundleID, res.Actions[i].ActionID, "", "commit: %v", err)
				continue
			}
			version = v
			res.StateVersion = v
		}
		e.finishAction(b, cause, p, evals[i].resolved, &res.Actions[i], version, perTick, priority)
	}
}

// finishAction emits the action's event record and stages its effects.
// Per-action commits only; an atomic bundle emits one merged record in
// applyAtomic instead.
func (e *Engine) finishAction(
	b *action.Bundle,
	cause action.Cause,
	p *plan,
	resolved timing.Resolved,
	ar *ActionResult,
	version uint64,
	perTick map[string]int,
	priority int,
) {
	if p.kind != "" {
		e.events.Append(eventlog.Record{
			StateVersion: version,
			Kind:         p.kind,
			Paths:        sortedPaths(p.changes),
			Cause:        cause,
			BundleID:     b.BundleID,
			At:           e.now(),
		})
	}
	e.stageAction(b, p, resolved, ar, version, perTick, priority)
}

// stageAction stores scene captures, stages the plan's commands, marks
// the tick's writes, and fills in the action result.
func (e *Engine) stageAction(
	b *action.Bundle,
	p *plan,
	resolved timing.Resolved,
	ar *ActionResult,
	version uint64,
	perTick map[string]int,
	priority int,
) {
	if p.kind == eventlog.KindSceneSaved {
		e.scenes.Save(p.scene, p.capture)
	}

	for i := range p.commands {
		pc := &p.commands[i]
		cmd := &delivery.Command{
			ActionID:  ar.ActionID,
			BundleID:  b.BundleID,
			Target:    pc.target,
			Type:      pc.typ,
			AtSample:  resolved.AtSample,
			EndSample: resolved.EndSample,
			Value:     pc.value,
			From:      pc.from,
			To:        pc.to,
			Curve:     pc.curve,
			Mode:      pc.mode,
			Feedback:  pc.feedback,
		}
		if pc.desc != nil {
			cmd.SafeUpdateMode = pc.desc.SafeUpdateMode
			cmd.MinSmoothingMs = pc.desc.MinSmoothingMs
		} else {
			cmd.SafeUpdateMode = param.UpdateImmediate
		}
		e.sched.add(cmd)
	}

	for path := range p.changes {
		if perTick[path] < priority {
			perTick[path] = priority
		}
	}

	ar.Status = StatusCommitted
	ar.AtSample = resolved.AtSample
	ar.EndSample = resolved.EndSample
	ar.StateVersion = version
}
