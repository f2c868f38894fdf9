package contracts

import "time"

// Phase identifies the verification phase a result belongs to.
type Phase string

// Verification phases, in pipeline order.
const (
	PhasePrecondition  Phase = "precondition"
	PhasePostcondition Phase = "postcondition"
	PhaseInvariant     Phase = "invariant"
	PhasePersisted     Phase = "persisted_assertion"
)

// StepStatus is the terminal outcome of one verified step.
type StepStatus string

// Step status constants.
const (
	// StatusCompleted: every phase passed (or no contract was declared).
	StatusCompleted StepStatus = "completed"
	// StatusFailed: a pre-effect phase failed; the action never ran, or the
	// action itself errored with no reported effect.
	StatusFailed StepStatus = "failed"
	// StatusRolledBack: a post-effect phase failed and a compensating
	// directive was resolved. The directive is proposed, not executed.
	StatusRolledBack StepStatus = "rolled_back"
	// StatusUnrecoverable: a post-effect phase failed and the contract
	// declares no compensating action. Callers must surface this as a
	// partial failure; the engine cannot undo the effect.
	StatusUnrecoverable StepStatus = "unrecoverable"
)

// FailedAssertion describes one assertion that did not hold.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type FailedAssertion struct {
	AssertionID string `json:"assertion_id"`
	Description string `json:"description,omitempty"`
	Expected    any    `json:"expected,omitempty"`
	Actual      any    `json:"actual,omitempty"`
	Details     string `json:"details,omitempty"`
}

// ExecutionErrorAssertionID is the synthetic assertion ID used when the
// action executor itself returned an error.
const ExecutionErrorAssertionID = "execution_error"

// VerificationResult is the outcome of one phase. Assertions within a
// phase are evaluated exhaustively: FailedAssertions carries every
// violation, not just the first.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type VerificationResult struct {
	Passed           bool              `json:"passed"`
	Phase            Phase             `json:"phase"`
	FailedAssertions []FailedAssertion `json:"failed_assertions,omitempty"`
	Elapsed          time.Duration     `json:"elapsed_ns"`
}

// PassingResult returns a trivially-passing result for the given phase.
func PassingResult(phase Phase) *VerificationResult {
	return &VerificationResult{Passed: true, Phase: phase}
}

// RollbackDirective is a proposed compensating call. The engine never
// dispatches it; the caller owns execution and should re-verify afterward.
type RollbackDirective struct {
	Action string         `json:"action"`
	Args   map[string]any `json:"args"`
}

// StepResult packages the terminal outcome of one verified step.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type StepResult struct {
	StepID string     `json:"step_id,omitempty"`
	Action string     `json:"action"`
	Status StepStatus `json:"status"`

	// Result is the action's payload, present when the action ran.
	Result any `json:"result,omitempty"`

	// Verification is the triggering phase result on failure, or the final
	// passing result on success.
	Verification *VerificationResult `json:"verification,omitempty"`

	// Rollback is set when compensation was proposed.
	Rollback *RollbackDirective `json:"rollback,omitempty"`

	Elapsed time.Duration `json:"elapsed_ns"`
}

// Succeeded reports whether the step completed with all phases passing.
func (r *StepResult) Succeeded() bool {
	return r != nil && r.Status == StatusCompleted
}
