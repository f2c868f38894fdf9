// Package engine sequences contract verification around a single
// side-effecting action: precondition check, invariant snapshot, action
// invocation, postcondition check, invariant re-check, persisted-state
// check, result packaging. Phases short-circuit at the first failure;
// assertions within a phase are evaluated exhaustively.
//
// The engine is synchronous per call and stateless between calls:
// concurrent Execute calls share no mutable engine state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/assertion"
	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/contracts"
	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/invariant"
	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/observability"
	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/persisted"
	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/registry"
	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/rollback"
	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/store"
)

// StepExecutor is the verification facade. Construct once, share across
// goroutines; each Execute call owns its own ExecutionContext.
type StepExecutor struct {
	lookup    registry.Lookup
	evaluator *assertion.Evaluator
	tracker   *invariant.Tracker
	persisted *persisted.Verifier
	rollback  *rollback.Resolver
	results   store.StepResultStore
	obs       *observability.Provider
	logger    *slog.Logger
	clock     func() time.Time

	// rollbackOnExecError extends compensation to execution errors that
	// report a prior side effect (EffectError). Off by default to match
	// the conservative reading: a bare execution error proposes nothing.
	rollbackOnExecError bool

	// passThrough gates actions without a registered contract. Nil means
	// everything may run unverified.
	passThrough func(action string) bool
}

// Option configures a StepExecutor.
type Option func(*StepExecutor)

// WithEvaluator replaces the default assertion evaluator (e.g. to install
// custom predicates or a CEL environment).
func WithEvaluator(e *assertion.Evaluator) Option {
	return func(s *StepExecutor) { s.evaluator = e }
}

// WithPersistedVerifier installs the backing-store verifier. Without it,
// contracts carrying persisted assertions fail that phase.
func WithPersistedVerifier(v *persisted.Verifier) Option {
	return func(s *StepExecutor) { s.persisted = v }
}

// WithResultStore enables idempotency and audit persistence of step
// results.
func WithResultStore(rs store.StepResultStore) Option {
	return func(s *StepExecutor) { s.results = rs }
}

// WithObservability wires tracing and RED metrics around the pipeline.
func WithObservability(p *observability.Provider) Option {
	return func(s *StepExecutor) { s.obs = p }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *StepExecutor) { s.logger = l }
}

// WithClock injects a deterministic clock for tests.
func WithClock(now func() time.Time) Option {
	return func(s *StepExecutor) {
		s.clock = now
		s.tracker.WithClock(now)
	}
}

// WithRollbackOnExecutionError makes EffectError-reporting execution
// failures eligible for compensation proposals.
func WithRollbackOnExecutionError() Option {
	return func(s *StepExecutor) { s.rollbackOnExecError = true }
}

// WithPassThroughPolicy restricts which contract-less actions may run
// unverified, e.g. config.VerificationProfile.AllowsUnverified.
func WithPassThroughPolicy(allow func(action string) bool) Option {
	return func(s *StepExecutor) { s.passThrough = allow }
}

// New creates a StepExecutor over the given contract lookup.
func New(lookup registry.Lookup, opts ...Option) *StepExecutor {
	s := &StepExecutor{
		lookup:    lookup,
		evaluator: assertion.New(),
		tracker:   invariant.NewTracker(),
		rollback:  rollback.NewResolver(),
		logger:    slog.Default().With("component", "engine"),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute runs the full verification pipeline for one step. Contract
// outcomes — including violations — are reported in the StepResult; the
// returned error is reserved for engine misuse (nil executor, nil
// context).
func (s *StepExecutor) Execute(ctx context.Context, step Step) (*contracts.StepResult, error) {
	if step.Executor == nil {
		return nil, errors.New("step requires an action executor")
	}
	if step.Context == nil {
		return nil, errors.New("step requires an execution context")
	}
	if step.StepID == "" {
		step.StepID = uuid.NewString()
	}

	var done func(error)
	if s.obs != nil {
		ctx, done = s.obs.TrackOperation(ctx, "engine.execute_step",
			attribute.String("step.action", step.Action),
			attribute.String("step.tenant", step.Context.TenantID),
		)
	}

	start := s.clock()
	res := s.run(ctx, step)
	res.Elapsed = s.clock().Sub(start)

	s.persistResult(ctx, step, res)
	s.logOutcome(step, res)
	if s.obs != nil {
		phase := ""
		if res.Verification != nil {
			phase = string(res.Verification.Phase)
		}
		s.obs.RecordStep(step.StepID, step.Context.TenantID, step.Action,
			string(res.Status), phase, res.Elapsed, res.Succeeded())
	}
	if done != nil {
		done(nil)
	}
	return res, nil
}

// run walks the pipeline; Execute wraps it with timing, persistence and
// telemetry.
func (s *StepExecutor) run(ctx context.Context, step Step) *contracts.StepResult {
	ec := step.Context

	// Idempotency: a step that already reached a terminal state is served
	// from the result store instead of re-running the action.
	if s.results != nil {
		if rec, err := s.results.Get(ctx, step.StepID); err == nil && rec != nil && rec.Result != nil {
			s.logger.Info("step already executed, serving stored result",
				"step_id", step.StepID, "action", step.Action, "status", string(rec.Status))
			return rec.Result
		}
	}

	contract := s.lookup.GetContract(step.Action)
	if contract == nil {
		if s.passThrough != nil && !s.passThrough(step.Action) {
			return &contracts.StepResult{
				StepID: step.StepID,
				Action: step.Action,
				Status: contracts.StatusFailed,
				Verification: &contracts.VerificationResult{
					Phase: contracts.PhasePrecondition,
					FailedAssertions: []contracts.FailedAssertion{{
						AssertionID: "pass_through_denied",
						Description: fmt.Sprintf("action %s has no contract and unverified execution is not permitted", step.Action),
					}},
				},
			}
		}
		// Pass-through mode: not every action has a declared contract.
		return s.runUnverified(ctx, step)
	}

	// 1. Preconditions. Failure here means the action never runs and no
	// compensation is needed: nothing happened.
	pre := s.evaluator.EvaluatePhase(contracts.PhasePrecondition, contract.Preconditions, ec, nil)
	if !pre.Passed {
		return &contracts.StepResult{
			StepID:       step.StepID,
			Action:       step.Action,
			Status:       contracts.StatusFailed,
			Verification: pre,
		}
	}

	// 2. Invariant snapshot, immediately before the action.
	snap := s.tracker.Snapshot(contract.Invariants, ec)

	// 3. Action invocation.
	result, execErr := step.Executor.Execute(ctx, ec.Args)
	if execErr != nil {
		return s.handleExecutionError(contract, step, ec, execErr)
	}

	// 4. Postconditions against the action's result.
	post := s.evaluator.EvaluatePhase(contracts.PhasePostcondition, contract.Postconditions, ec, result)
	if !post.Passed {
		return s.failed(contract, step, ec, result, post)
	}

	// 5. Invariant re-check against the snapshot.
	inv := s.tracker.Verify(contract.Invariants, ec, result, snap)
	if !inv.Passed {
		return s.failed(contract, step, ec, result, inv)
	}

	// 6. Persisted-state assertions, the only I/O phase.
	if len(contract.PersistedAssertions) > 0 {
		pers := s.verifyPersisted(ctx, contract, ec, result)
		if !pers.Passed {
			return s.failed(contract, step, ec, result, pers)
		}
	}

	return &contracts.StepResult{
		StepID:       step.StepID,
		Action:       step.Action,
		Status:       contracts.StatusCompleted,
		Result:       result,
		Verification: contracts.PassingResult(contracts.PhasePersisted),
	}
}

func (s *StepExecutor) runUnverified(ctx context.Context, step Step) *contracts.StepResult {
	result, err := step.Executor.Execute(ctx, step.Context.Args)
	if err != nil {
		return &contracts.StepResult{
			StepID: step.StepID,
			Action: step.Action,
			Status: contracts.StatusFailed,
			Verification: &contracts.VerificationResult{
				Phase: contracts.PhasePostcondition,
				FailedAssertions: []contracts.FailedAssertion{{
					AssertionID: contracts.ExecutionErrorAssertionID,
					Description: "action execution failed",
					Details:     err.Error(),
				}},
			},
		}
	}
	return &contracts.StepResult{
		StepID:       step.StepID,
		Action:       step.Action,
		Status:       contracts.StatusCompleted,
		Result:       result,
		Verification: contracts.PassingResult(contracts.PhasePostcondition),
	}
}

// handleExecutionError wraps an action error as the synthetic
// execution_error assertion. A bare error is treated as "no effect
// occurred" and proposes no compensation; an EffectError is eligible for
// a rollback proposal when the policy allows it.
func (s *StepExecutor) handleExecutionError(contract *contracts.Contract, step Step, ec *contracts.ExecutionContext, execErr error) *contracts.StepResult {
	vr := &contracts.VerificationResult{
		Phase: contracts.PhasePostcondition,
		FailedAssertions: []contracts.FailedAssertion{{
			AssertionID: contracts.ExecutionErrorAssertionID,
			Description: fmt.Sprintf("action %s failed during execution", step.Action),
			Details:     execErr.Error(),
		}},
	}

	if s.rollbackOnExecError {
		if ee, ok := AsEffectError(execErr); ok {
			return s.failed(contract, step, ec, ee.Result, vr)
		}
	}

	return &contracts.StepResult{
		StepID:       step.StepID,
		Action:       step.Action,
		Status:       contracts.StatusFailed,
		Verification: vr,
	}
}

func (s *StepExecutor) verifyPersisted(ctx context.Context, contract *contracts.Contract, ec *contracts.ExecutionContext, result any) *contracts.VerificationResult {
	if s.persisted == nil {
		return &contracts.VerificationResult{
			Phase: contracts.PhasePersisted,
			FailedAssertions: []contracts.FailedAssertion{{
				AssertionID: "persisted_verifier_missing",
				Description: "contract declares persisted assertions but no store verifier is configured",
			}},
		}
	}
	return s.persisted.Verify(ctx, contract.PersistedAssertions, ec, result)
}

// failed resolves the post-effect failure path: propose compensation when
// the contract declares it, surface StatusUnrecoverable when it does not.
func (s *StepExecutor) failed(contract *contracts.Contract, step Step, ec *contracts.ExecutionContext, result any, vr *contracts.VerificationResult) *contracts.StepResult {
	directive := s.rollback.Resolve(contract, ec, result)
	status := contracts.StatusRolledBack
	if directive == nil {
		status = contracts.StatusUnrecoverable
	}
	return &contracts.StepResult{
		StepID:       step.StepID,
		Action:       step.Action,
		Status:       status,
		Result:       result,
		Verification: vr,
		Rollback:     directive,
	}
}

func (s *StepExecutor) persistResult(ctx context.Context, step Step, res *contracts.StepResult) {
	if s.results == nil {
		return
	}
	rec := &store.Record{
		StepID:    step.StepID,
		TenantID:  step.Context.TenantID,
		Action:    step.Action,
		Status:    res.Status,
		Result:    res,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.results.Put(ctx, rec); err != nil {
		// Persistence is best-effort for audit; the verified outcome
		// itself is already in hand.
		s.logger.Error("failed to persist step result",
			"step_id", step.StepID, "action", step.Action, "error", err)
	}
}

func (s *StepExecutor) logOutcome(step Step, res *contracts.StepResult) {
	attrs := []any{
		"step_id", step.StepID,
		"action", step.Action,
		"status", string(res.Status),
		"elapsed", res.Elapsed,
	}
	if res.Status == contracts.StatusCompleted {
		s.logger.Info("step completed", attrs...)
		return
	}
	if res.Verification != nil {
		attrs = append(attrs,
			"phase", string(res.Verification.Phase),
			"failed_assertions", len(res.Verification.FailedAssertions),
		)
	}
	if res.Rollback != nil {
		attrs = append(attrs, "rollback_action", res.Rollback.Action)
	}
	s.logger.Warn("step did not complete cleanly", attrs...)
}
