package invariant

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/contracts"
)

func TestSnapshotCapturesEntityFields(t *testing.T) {
	ec := contracts.NewExecutionContext("t", "a", nil)
	ec.WithEntity("customer", map[string]any{"id": "c-1", "balance": 100.0})

	invariants := []contracts.Assertion{
		{ID: "cust_id", Kind: contracts.KindFieldEquals, Entity: "customer", Field: "id"},
		{ID: "cust_balance", Kind: contracts.KindFieldEquals, Entity: "customer", Field: "balance"},
		{ID: "missing", Kind: contracts.KindFieldEquals, Entity: "customer", Field: "nope"},
	}

	snap := NewTracker().Snapshot(invariants, ec)
	require.Equal(t, "c-1", snap["cust_id"])
	require.Equal(t, 100.0, snap["cust_balance"])
	require.Nil(t, snap["missing"])
}

// An invariant over an unmutated field must pass regardless of the action
// result: snapshot-then-verify is a round trip.
func TestVerifyRoundTripPasses(t *testing.T) {
	ec := contracts.NewExecutionContext("t", "a", nil)
	ec.WithEntity("customer", map[string]any{"id": "c-1"})

	invariants := []contracts.Assertion{
		{ID: "cust_id", Kind: contracts.KindFieldEquals, Entity: "customer", Field: "id"},
	}

	tracker := NewTracker()
	snap := tracker.Snapshot(invariants, ec)

	for _, result := range []any{nil, map[string]any{}, map[string]any{"id": "other"}, "scalar"} {
		vr := tracker.Verify(invariants, ec, result, snap)
		require.True(t, vr.Passed, "result %v must not affect an unmutated entity field", result)
	}
}

func TestVerifyDetectsDrift(t *testing.T) {
	entity := map[string]any{"status": "active"}
	ec := contracts.NewExecutionContext("t", "a", nil)
	ec.WithEntity("customer", entity)

	invariants := []contracts.Assertion{
		{ID: "status_stable", Kind: contracts.KindFieldEquals, Entity: "customer", Field: "status"},
	}

	tracker := NewTracker()
	snap := tracker.Snapshot(invariants, ec)

	// The action mutates the entity behind the engine's back.
	entity["status"] = "suspended"

	vr := tracker.Verify(invariants, ec, nil, snap)
	require.False(t, vr.Passed)
	require.Len(t, vr.FailedAssertions, 1)
	f := vr.FailedAssertions[0]
	require.Equal(t, "status_stable", f.AssertionID)
	require.Equal(t, "active", f.Expected)
	require.Equal(t, "suspended", f.Actual)
}

func TestVerifyFromArgIdentity(t *testing.T) {
	ec := contracts.NewExecutionContext("t", "a", map[string]any{"customer_id": "c-42"})

	invariants := []contracts.Assertion{
		{
			ID: "conv_customer", Kind: contracts.KindFieldEquals,
			Entity: "result", Field: "customer_id", FromArg: "args.customer_id",
		},
	}
	tracker := NewTracker()
	snap := tracker.Snapshot(invariants, ec)

	good := map[string]any{"customer_id": "c-42"}
	require.True(t, tracker.Verify(invariants, ec, good, snap).Passed)

	bad := map[string]any{"customer_id": "c-99"}
	vr := tracker.Verify(invariants, ec, bad, snap)
	require.False(t, vr.Passed)
	require.Len(t, vr.FailedAssertions, 1)
	require.Equal(t, "c-42", vr.FailedAssertions[0].Expected)
	require.Equal(t, "c-99", vr.FailedAssertions[0].Actual)
}

func TestVerifyMissingSnapshotFails(t *testing.T) {
	ec := contracts.NewExecutionContext("t", "a", nil)
	invariants := []contracts.Assertion{
		{ID: "untracked", Kind: contracts.KindFieldEquals, Entity: "customer", Field: "id"},
	}
	vr := NewTracker().Verify(invariants, ec, nil, map[string]any{})
	require.False(t, vr.Passed)
	require.Contains(t, vr.FailedAssertions[0].Details, "no pre-execution snapshot")
}

func TestVerifyCollectsAllViolations(t *testing.T) {
	entity := map[string]any{"a": 1, "b": 2}
	ec := contracts.NewExecutionContext("t", "a", nil)
	ec.WithEntity("doc", entity)

	invariants := []contracts.Assertion{
		{ID: "a_stable", Kind: contracts.KindFieldEquals, Entity: "doc", Field: "a"},
		{ID: "b_stable", Kind: contracts.KindFieldEquals, Entity: "doc", Field: "b"},
	}
	tracker := NewTracker()
	snap := tracker.Snapshot(invariants, ec)

	entity["a"] = 10
	entity["b"] = 20

	vr := tracker.Verify(invariants, ec, nil, snap)
	require.False(t, vr.Passed)
	require.Len(t, vr.FailedAssertions, 2)
}
