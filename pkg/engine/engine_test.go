package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/config"
	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/contracts"
	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/persisted"
	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/registry"
	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/store"
)

// spyExecutor counts invocations and plays back a canned result.
type spyExecutor struct {
	calls  int
	result any
	err    error
}

func (s *spyExecutor) Execute(_ context.Context, _ map[string]any) (any, error) {
	s.calls++
	return s.result, s.err
}

// stubQuerier serves canned rows for persisted-state checks.
type stubQuerier struct {
	rows []map[string]any
	err  error
}

func (s *stubQuerier) Query(_ context.Context, _ string, _ []string, _ map[string]any) ([]map[string]any, error) {
	return s.rows, s.err
}

func intPtr(i int) *int { return &i }

func registryWith(t *testing.T, cs ...*contracts.Contract) *registry.InMemoryRegistry {
	t.Helper()
	r := registry.NewInMemoryRegistry()
	for _, c := range cs {
		require.NoError(t, r.Register(c))
	}
	return r
}

func createQuoteContract() *contracts.Contract {
	return &contracts.Contract{
		Action: "create_quote",
		Preconditions: []contracts.Assertion{
			{ID: "customer_exists", Kind: contracts.KindEntityExists, Entity: "customer", Field: "id"},
		},
		Postconditions: []contracts.Assertion{
			{ID: "quote_id_assigned", Kind: contracts.KindEntityExists, Entity: "result", Field: "id"},
		},
		Invariants: []contracts.Assertion{
			{ID: "quote_customer", Kind: contracts.KindFieldEquals, Entity: "result",
				Field: "customer_id", FromArg: "args.customer_id"},
		},
		RollbackAction: "delete_quote",
		RollbackArgs:   map[string]string{"quote_id": "result.id"},
	}
}

func quoteContext() *contracts.ExecutionContext {
	ec := contracts.NewExecutionContext("tenant-1", "actor-1", map[string]any{"customer_id": "c-42"})
	ec.WithEntity("customer", map[string]any{"id": "c-42"})
	return ec
}

func TestExecuteAllPhasesPass(t *testing.T) {
	exec := &spyExecutor{result: map[string]any{"id": "q-1", "customer_id": "c-42"}}
	e := New(registryWith(t, createQuoteContract()))

	res, err := e.Execute(context.Background(), Step{
		Action:   "create_quote",
		Context:  quoteContext(),
		Executor: exec,
	})
	require.NoError(t, err)
	require.Equal(t, contracts.StatusCompleted, res.Status)
	require.True(t, res.Verification.Passed)
	require.Empty(t, res.Verification.FailedAssertions)
	require.Nil(t, res.Rollback)
	require.Equal(t, 1, exec.calls)
	require.NotEmpty(t, res.StepID, "step id generated when absent")
}

// Scenario A: a failing precondition must keep the action from ever
// being invoked.
func TestExecutePreconditionFailureNeverInvokesAction(t *testing.T) {
	exec := &spyExecutor{result: map[string]any{"id": "q-1"}}
	e := New(registryWith(t, createQuoteContract()))

	// Customer entity absent: customer_exists cannot hold.
	ec := contracts.NewExecutionContext("tenant-1", "actor-1", map[string]any{"customer_id": "c-42"})

	res, err := e.Execute(context.Background(), Step{
		Action:   "create_quote",
		Context:  ec,
		Executor: exec,
	})
	require.NoError(t, err)
	require.Equal(t, contracts.StatusFailed, res.Status)
	require.Equal(t, contracts.PhasePrecondition, res.Verification.Phase)
	require.Nil(t, res.Rollback, "no effect occurred, nothing to compensate")
	require.Equal(t, 0, exec.calls, "action executor must not run after a precondition failure")
}

// Scenario B: postcondition failure on a contract with a declared
// rollback produces a rolled_back result with the exact directive.
func TestExecutePostconditionFailureProposesRollback(t *testing.T) {
	exec := &spyExecutor{result: map[string]any{"customer_id": "c-42"}} // no id assigned
	e := New(registryWith(t, createQuoteContract()))

	res, err := e.Execute(context.Background(), Step{
		Action:   "create_quote",
		Context:  quoteContext(),
		Executor: exec,
	})
	require.NoError(t, err)
	require.Equal(t, contracts.StatusRolledBack, res.Status)
	require.Equal(t, contracts.PhasePostcondition, res.Verification.Phase)
	require.Len(t, res.Verification.FailedAssertions, 1)
	require.Equal(t, "quote_id_assigned", res.Verification.FailedAssertions[0].AssertionID)

	require.NotNil(t, res.Rollback)
	require.Equal(t, "delete_quote", res.Rollback.Action)
	require.Contains(t, res.Rollback.Args, "quote_id")
	require.Nil(t, res.Rollback.Args["quote_id"], "result.id was absent; argument resolves to nil")
}

// Rollback proposal correctness: the directive carries the resolved
// result.id value verbatim.
func TestExecuteRollbackArgsResolved(t *testing.T) {
	c := createQuoteContract()
	// Force a postcondition failure on a result that still has an id.
	c.Postconditions = append(c.Postconditions, contracts.Assertion{
		ID: "status_sent", Kind: contracts.KindFieldEquals, Entity: "result",
		Field: "status", Value: "sent",
	})
	exec := &spyExecutor{result: map[string]any{"id": "q-77", "customer_id": "c-42", "status": "draft"}}
	e := New(registryWith(t, c))

	res, err := e.Execute(context.Background(), Step{Action: "create_quote", Context: quoteContext(), Executor: exec})
	require.NoError(t, err)
	require.Equal(t, contracts.StatusRolledBack, res.Status)
	require.Equal(t, map[string]any{"quote_id": "q-77"}, res.Rollback.Args)
}

// A post-effect violation without a declared rollback is unrecoverable,
// not silently "failed".
func TestExecuteUnrecoverableWithoutRollbackAction(t *testing.T) {
	c := createQuoteContract()
	c.RollbackAction = ""
	c.RollbackArgs = nil

	exec := &spyExecutor{result: map[string]any{"customer_id": "c-42"}}
	e := New(registryWith(t, c))

	res, err := e.Execute(context.Background(), Step{Action: "create_quote", Context: quoteContext(), Executor: exec})
	require.NoError(t, err)
	require.Equal(t, contracts.StatusUnrecoverable, res.Status)
	require.Nil(t, res.Rollback)
}

// Scenario D: invariant violation via fromArg mismatch.
func TestExecuteInvariantViolation(t *testing.T) {
	exec := &spyExecutor{result: map[string]any{"id": "q-1", "customer_id": "c-99"}}
	e := New(registryWith(t, createQuoteContract()))

	res, err := e.Execute(context.Background(), Step{Action: "create_quote", Context: quoteContext(), Executor: exec})
	require.NoError(t, err)
	require.Equal(t, contracts.StatusRolledBack, res.Status)
	require.Equal(t, contracts.PhaseInvariant, res.Verification.Phase)
	require.Len(t, res.Verification.FailedAssertions, 1)
	require.Equal(t, "c-42", res.Verification.FailedAssertions[0].Expected)
	require.Equal(t, "c-99", res.Verification.FailedAssertions[0].Actual)
}

// Scenario C: persisted assertion sees zero rows after a failed commit.
func TestExecutePersistedAssertionFailure(t *testing.T) {
	c := createQuoteContract()
	c.PersistedAssertions = []contracts.PersistedAssertion{{
		ID:     "quote_row_committed",
		Table:  "quotes",
		Select: []string{"id"},
		Where:  map[string]string{"id": "result.id"},
		Expect: contracts.PersistedExpectation{Count: intPtr(1)},
	}}

	exec := &spyExecutor{result: map[string]any{"id": "q-1", "customer_id": "c-42"}}
	e := New(registryWith(t, c),
		WithPersistedVerifier(persisted.NewVerifier(&stubQuerier{rows: nil})),
	)

	res, err := e.Execute(context.Background(), Step{Action: "create_quote", Context: quoteContext(), Executor: exec})
	require.NoError(t, err)
	require.Equal(t, contracts.StatusRolledBack, res.Status)
	require.Equal(t, contracts.PhasePersisted, res.Verification.Phase)
	require.Equal(t, "delete_quote", res.Rollback.Action)
	require.Equal(t, map[string]any{"quote_id": "q-1"}, res.Rollback.Args)
}

func TestExecutePersistedAssertionsWithoutVerifierFail(t *testing.T) {
	c := createQuoteContract()
	c.PersistedAssertions = []contracts.PersistedAssertion{{
		ID: "row", Table: "quotes", Select: []string{"id"},
		Expect: contracts.PersistedExpectation{Count: intPtr(1)},
	}}
	exec := &spyExecutor{result: map[string]any{"id": "q-1", "customer_id": "c-42"}}
	e := New(registryWith(t, c))

	res, err := e.Execute(context.Background(), Step{Action: "create_quote", Context: quoteContext(), Executor: exec})
	require.NoError(t, err)
	require.Equal(t, contracts.StatusRolledBack, res.Status)
	require.Equal(t, "persisted_verifier_missing", res.Verification.FailedAssertions[0].AssertionID)
}

// Pass-through mode: actions without contracts run unverified.
func TestExecuteNoContractPassThrough(t *testing.T) {
	exec := &spyExecutor{result: "ok"}
	e := New(registry.NewInMemoryRegistry())

	res, err := e.Execute(context.Background(), Step{
		Action:   "unregistered_action",
		Context:  contracts.NewExecutionContext("t", "a", nil),
		Executor: exec,
	})
	require.NoError(t, err)
	require.Equal(t, contracts.StatusCompleted, res.Status)
	require.Equal(t, "ok", res.Result)
	require.True(t, res.Verification.Passed)
	require.Equal(t, 1, exec.calls)
}

// A deny-mode profile blocks contract-less actions entirely.
func TestExecutePassThroughPolicyDenied(t *testing.T) {
	profile := &config.VerificationProfile{Unverified: config.UnverifiedPolicy{Mode: "deny"}}
	exec := &spyExecutor{result: "ok"}
	e := New(registry.NewInMemoryRegistry(), WithPassThroughPolicy(profile.AllowsUnverified))

	res, err := e.Execute(context.Background(), Step{
		Action:   "unregistered_action",
		Context:  contracts.NewExecutionContext("t", "a", nil),
		Executor: exec,
	})
	require.NoError(t, err)
	require.Equal(t, contracts.StatusFailed, res.Status)
	require.Equal(t, "pass_through_denied", res.Verification.FailedAssertions[0].AssertionID)
	require.Equal(t, 0, exec.calls)
}

func TestExecuteExecutionErrorNoCompensation(t *testing.T) {
	exec := &spyExecutor{err: errors.New("upstream timeout")}
	e := New(registryWith(t, createQuoteContract()))

	res, err := e.Execute(context.Background(), Step{Action: "create_quote", Context: quoteContext(), Executor: exec})
	require.NoError(t, err)
	require.Equal(t, contracts.StatusFailed, res.Status)
	require.Equal(t, contracts.PhasePostcondition, res.Verification.Phase)
	require.Len(t, res.Verification.FailedAssertions, 1)
	f := res.Verification.FailedAssertions[0]
	require.Equal(t, contracts.ExecutionErrorAssertionID, f.AssertionID)
	require.Contains(t, f.Details, "upstream timeout")
	require.Nil(t, res.Rollback)
}

// An executor that reports "effect occurred before error" becomes
// eligible for compensation under the opt-in policy.
func TestExecuteEffectErrorRollbackPolicy(t *testing.T) {
	effectErr := &EffectError{
		Err:    errors.New("write confirmed but response lost"),
		Result: map[string]any{"id": "q-13"},
	}

	// Policy off: plain failure.
	execOff := &spyExecutor{err: effectErr}
	eOff := New(registryWith(t, createQuoteContract()))
	res, err := eOff.Execute(context.Background(), Step{Action: "create_quote", Context: quoteContext(), Executor: execOff})
	require.NoError(t, err)
	require.Equal(t, contracts.StatusFailed, res.Status)
	require.Nil(t, res.Rollback)

	// Policy on: rollback proposed with args resolved from the partial result.
	execOn := &spyExecutor{err: effectErr}
	eOn := New(registryWith(t, createQuoteContract()), WithRollbackOnExecutionError())
	res, err = eOn.Execute(context.Background(), Step{Action: "create_quote", Context: quoteContext(), Executor: execOn})
	require.NoError(t, err)
	require.Equal(t, contracts.StatusRolledBack, res.Status)
	require.Equal(t, map[string]any{"quote_id": "q-13"}, res.Rollback.Args)
}

func TestExecuteIdempotencyServesStoredResult(t *testing.T) {
	exec := &spyExecutor{result: map[string]any{"id": "q-1", "customer_id": "c-42"}}
	rs := store.NewMemoryStore()
	e := New(registryWith(t, createQuoteContract()), WithResultStore(rs))

	first, err := e.Execute(context.Background(), Step{
		StepID:   "step-once",
		Action:   "create_quote",
		Context:  quoteContext(),
		Executor: exec,
	})
	require.NoError(t, err)
	require.Equal(t, contracts.StatusCompleted, first.Status)
	require.Equal(t, 1, exec.calls)

	second, err := e.Execute(context.Background(), Step{
		StepID:   "step-once",
		Action:   "create_quote",
		Context:  quoteContext(),
		Executor: exec,
	})
	require.NoError(t, err)
	require.Equal(t, contracts.StatusCompleted, second.Status)
	require.Equal(t, 1, exec.calls, "stored result must suppress re-execution")
}

func TestExecuteMisuse(t *testing.T) {
	e := New(registry.NewInMemoryRegistry())
	_, err := e.Execute(context.Background(), Step{Action: "x", Context: contracts.NewExecutionContext("t", "a", nil)})
	require.Error(t, err)

	_, err = e.Execute(context.Background(), Step{Action: "x", Executor: &spyExecutor{}})
	require.Error(t, err)
}

func TestExecuteClockInjection(t *testing.T) {
	base := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	calls := 0
	clock := func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * 10 * time.Millisecond)
	}

	exec := &spyExecutor{result: map[string]any{"id": "q-1", "customer_id": "c-42"}}
	e := New(registryWith(t, createQuoteContract()), WithClock(clock))

	res, err := e.Execute(context.Background(), Step{Action: "create_quote", Context: quoteContext(), Executor: exec})
	require.NoError(t, err)
	require.Greater(t, res.Elapsed, time.Duration(0))
}

// Postcondition failures collect every violated assertion, not just the
// first.
func TestExecuteCollectsAllPostconditionFailures(t *testing.T) {
	c := createQuoteContract()
	c.Postconditions = []contracts.Assertion{
		{ID: "id_set", Kind: contracts.KindEntityExists, Entity: "result", Field: "id"},
		{ID: "status_set", Kind: contracts.KindFieldNotNull, Entity: "result", Field: "status"},
	}
	exec := &spyExecutor{result: map[string]any{"customer_id": "c-42"}}
	e := New(registryWith(t, c))

	res, err := e.Execute(context.Background(), Step{Action: "create_quote", Context: quoteContext(), Executor: exec})
	require.NoError(t, err)
	require.Len(t, res.Verification.FailedAssertions, 2)
}
