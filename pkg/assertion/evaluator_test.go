package assertion

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/contracts"
)

func testContext() *contracts.ExecutionContext {
	ec := contracts.NewExecutionContext("tenant-1", "actor-1", map[string]any{
		"customer_id": "c-42",
		"amount":      250.0,
	})
	ec.WithEntity("customer", map[string]any{"id": "c-42", "status": "active"})
	return ec
}

func TestEvaluateEntityExists(t *testing.T) {
	e := New()
	ec := testContext()
	result := map[string]any{"id": "conv-1"}

	pass := contracts.Assertion{ID: "has_id", Kind: contracts.KindEntityExists, Entity: "result", Field: "id"}
	require.Nil(t, e.Evaluate(pass, ec, result))

	failOnResult := contracts.Assertion{ID: "has_ref", Kind: contracts.KindEntityExists, Entity: "result", Field: "reference"}
	f := e.Evaluate(failOnResult, ec, result)
	require.NotNil(t, f)
	require.Equal(t, "has_ref", f.AssertionID)
	require.Nil(t, f.Actual)

	onEntity := contracts.Assertion{ID: "cust_status", Kind: contracts.KindEntityExists, Entity: "customer", Field: "status"}
	require.Nil(t, e.Evaluate(onEntity, ec, result))

	missingEntity := contracts.Assertion{ID: "quote_id", Kind: contracts.KindEntityExists, Entity: "quote", Field: "id"}
	require.NotNil(t, e.Evaluate(missingEntity, ec, result))
}

func TestEvaluateFieldEquals(t *testing.T) {
	e := New()
	ec := testContext()
	result := map[string]any{"customer_id": "c-42", "total": 250, "state": "draft"}

	tests := []struct {
		name string
		a    contracts.Assertion
		pass bool
	}{
		{
			"literal match",
			contracts.Assertion{ID: "a", Kind: contracts.KindFieldEquals, Entity: "result", Field: "state", Value: "draft"},
			true,
		},
		{
			"literal mismatch",
			contracts.Assertion{ID: "a", Kind: contracts.KindFieldEquals, Entity: "result", Field: "state", Value: "sent"},
			false,
		},
		{
			"from arg match",
			contracts.Assertion{ID: "a", Kind: contracts.KindFieldEquals, Entity: "result", Field: "customer_id", FromArg: "args.customer_id"},
			true,
		},
		{
			"numeric cross-type equality",
			contracts.Assertion{ID: "a", Kind: contracts.KindFieldEquals, Entity: "result", Field: "total", FromArg: "args.amount"},
			true,
		},
		{
			"in operator membership",
			contracts.Assertion{ID: "a", Kind: contracts.KindFieldEquals, Entity: "result", Field: "state", Operator: contracts.OpIn, Value: []any{"draft", "sent"}},
			true,
		},
		{
			"in operator miss",
			contracts.Assertion{ID: "a", Kind: contracts.KindFieldEquals, Entity: "result", Field: "state", Operator: contracts.OpIn, Value: []any{"approved"}},
			false,
		},
		{
			"missing field fails rather than crashes",
			contracts.Assertion{ID: "a", Kind: contracts.KindFieldEquals, Entity: "result", Field: "nested.missing", Value: "x"},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := e.Evaluate(tt.a, ec, result)
			if tt.pass {
				require.Nil(t, f)
			} else {
				require.NotNil(t, f)
			}
		})
	}
}

func TestEvaluateFieldNotNull(t *testing.T) {
	e := New()
	ec := testContext()
	result := map[string]any{"id": "x", "status": "failed"}

	require.Nil(t, e.Evaluate(contracts.Assertion{
		ID: "a", Kind: contracts.KindFieldNotNull, Entity: "result", Field: "id",
	}, ec, result))

	require.NotNil(t, e.Evaluate(contracts.Assertion{
		ID: "a", Kind: contracts.KindFieldNotNull, Entity: "result", Field: "missing",
	}, ec, result))

	// != operator asserts difference from a specific value.
	require.NotNil(t, e.Evaluate(contracts.Assertion{
		ID: "a", Kind: contracts.KindFieldNotNull, Entity: "result", Field: "status",
		Operator: contracts.OpNotEqual, Value: "failed",
	}, ec, result))
	require.Nil(t, e.Evaluate(contracts.Assertion{
		ID: "a", Kind: contracts.KindFieldNotNull, Entity: "result", Field: "status",
		Operator: contracts.OpNotEqual, Value: "ok",
	}, ec, result))
}

func TestEvaluateCountEquals(t *testing.T) {
	e := New()
	ec := testContext()
	result := map[string]any{"items": []any{"a", "b", "c"}}

	require.Nil(t, e.Evaluate(contracts.Assertion{
		ID: "a", Kind: contracts.KindCountEquals, Entity: "result", Field: "items", Value: 3,
	}, ec, result))

	f := e.Evaluate(contracts.Assertion{
		ID: "a", Kind: contracts.KindCountEquals, Entity: "result", Field: "items", Value: 2,
	}, ec, result)
	require.NotNil(t, f)
	require.Equal(t, 3, f.Actual)

	notCountable := e.Evaluate(contracts.Assertion{
		ID: "a", Kind: contracts.KindCountEquals, Entity: "result", Field: "items.0", Value: 1,
	}, ec, result)
	require.NotNil(t, notCountable)
}

func TestEvaluateCustomWithoutEvaluatorFailsClosed(t *testing.T) {
	e := New()
	f := e.Evaluate(contracts.Assertion{
		ID: "biz_rule", Kind: contracts.KindCustom, Expr: "args.amount > 0.0",
	}, testContext(), nil)
	require.NotNil(t, f)
	require.Contains(t, f.Details, "no evaluator configured")
}

func TestEvaluatePhaseCollectsAllFailures(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	e := New(WithClock(func() time.Time { return fixed }))
	ec := testContext()
	result := map[string]any{}

	list := []contracts.Assertion{
		{ID: "first", Kind: contracts.KindEntityExists, Entity: "result", Field: "id"},
		{ID: "second", Kind: contracts.KindFieldNotNull, Entity: "result", Field: "name"},
		{ID: "third", Kind: contracts.KindFieldEquals, Entity: "customer", Field: "status", Value: "active"},
	}

	vr := e.EvaluatePhase(contracts.PhasePostcondition, list, ec, result)
	require.False(t, vr.Passed)
	require.Equal(t, contracts.PhasePostcondition, vr.Phase)
	require.Len(t, vr.FailedAssertions, 2, "third assertion holds; first two fail")
	require.Equal(t, "first", vr.FailedAssertions[0].AssertionID)
	require.Equal(t, "second", vr.FailedAssertions[1].AssertionID)
}

func TestEvaluatePhaseEmptyListPasses(t *testing.T) {
	e := New()
	vr := e.EvaluatePhase(contracts.PhasePrecondition, nil, testContext(), nil)
	require.True(t, vr.Passed)
	require.Empty(t, vr.FailedAssertions)
}

func TestCompareOperators(t *testing.T) {
	tests := []struct {
		op       string
		actual   any
		expected any
		want     bool
		wantErr  bool
	}{
		{contracts.OpEqual, "a", "a", true, false},
		{contracts.OpNotEqual, "a", "b", true, false},
		{contracts.OpGreater, 5, 3, true, false},
		{contracts.OpLess, int64(2), 3.5, true, false},
		{contracts.OpGreaterOrEqual, 3.0, 3, true, false},
		{contracts.OpLessOrEqual, 4, 3, false, false},
		{contracts.OpGreater, "a", 3, false, true},
		{contracts.OpNotNull, "x", nil, true, false},
		{contracts.OpNotNull, nil, nil, false, false},
		{contracts.OpIn, "b", []any{"a", "b"}, true, false},
		{"~=", 1, 1, false, true},
	}
	for _, tt := range tests {
		got, err := Compare(tt.op, tt.actual, tt.expected)
		if tt.wantErr {
			require.Error(t, err, "op %s", tt.op)
			continue
		}
		require.NoError(t, err, "op %s", tt.op)
		require.Equal(t, tt.want, got, "op %s actual=%v expected=%v", tt.op, tt.actual, tt.expected)
	}
}

func TestPredicateErrorSurfaces(t *testing.T) {
	ce, err := NewCustomEvaluator()
	require.NoError(t, err)
	ce.RegisterPredicate("flaky", func(_ *contracts.ExecutionContext, _ any) (bool, error) {
		return false, errors.New("datastore offline")
	})

	e := New(WithCustomEvaluator(ce))
	f := e.Evaluate(contracts.Assertion{ID: "flaky", Kind: contracts.KindCustom}, testContext(), nil)
	require.NotNil(t, f)
	require.Contains(t, f.Details, "datastore offline")
}
