// Package invariant detects unintended mutation across an action's
// execution. The tracker snapshots named entity fields immediately before
// the action runs and re-checks them afterward.
//
// Two rules apply post-execution:
//
//   - an invariant with FromArg must equal the resolved argument value
//     (identity preservation: "the customer on the new conversation is the
//     customer that was passed in");
//   - a field_equals invariant without FromArg must equal its own
//     pre-execution snapshot (drift detection on fields the action should
//     not touch).
package invariant

import (
	"fmt"
	"time"

	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/assertion"
	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/contracts"
	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/refpath"
)

// Tracker snapshots and verifies contract invariants. Stateless; the
// snapshot travels with the caller between the two calls.
type Tracker struct {
	clock func() time.Time
}

// NewTracker creates a Tracker.
func NewTracker() *Tracker {
	return &Tracker{clock: time.Now}
}

// WithClock injects a deterministic clock for tests.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.clock = now
	return t
}

// Snapshot captures the current value of every invariant's field from the
// pre-loaded context entities, keyed by assertion ID. Taken immediately
// before the action executes.
func (t *Tracker) Snapshot(invariants []contracts.Assertion, ec *contracts.ExecutionContext) map[string]any {
	snap := make(map[string]any, len(invariants))
	for _, inv := range invariants {
		snap[inv.ID] = refpath.Traverse(ec.Entity(inv.Entity), inv.Field)
	}
	return snap
}

// Verify re-reads every invariant's field after execution and compares it
// against the argument reference (FromArg rule) or the snapshot (drift
// rule). All violations are collected.
func (t *Tracker) Verify(invariants []contracts.Assertion, ec *contracts.ExecutionContext, result any, snap map[string]any) *contracts.VerificationResult {
	start := t.clock()
	vr := &contracts.VerificationResult{Phase: contracts.PhaseInvariant}

	for _, inv := range invariants {
		post := postValue(inv, ec, result)

		switch {
		case inv.FromArg != "":
			expected := refpath.Resolve(inv.FromArg, ec, result)
			if !assertion.Equal(post, expected) {
				vr.FailedAssertions = append(vr.FailedAssertions, contracts.FailedAssertion{
					AssertionID: inv.ID,
					Description: inv.Description,
					Expected:    expected,
					Actual:      post,
					Details:     fmt.Sprintf("post-execution %s.%s does not match %s", inv.Entity, inv.Field, inv.FromArg),
				})
			}
		case inv.Kind == contracts.KindFieldEquals:
			before, tracked := snap[inv.ID]
			if !tracked {
				vr.FailedAssertions = append(vr.FailedAssertions, contracts.FailedAssertion{
					AssertionID: inv.ID,
					Description: inv.Description,
					Details:     "no pre-execution snapshot for invariant",
				})
				continue
			}
			if !assertion.Equal(post, before) {
				vr.FailedAssertions = append(vr.FailedAssertions, contracts.FailedAssertion{
					AssertionID: inv.ID,
					Description: inv.Description,
					Expected:    before,
					Actual:      post,
					Details:     fmt.Sprintf("%s.%s drifted during execution", inv.Entity, inv.Field),
				})
			}
		}
	}

	vr.Passed = len(vr.FailedAssertions) == 0
	vr.Elapsed = t.clock().Sub(start)
	return vr
}

// postValue reads the invariant's field after execution: from the action
// result when the invariant targets "result", else from the context entity.
func postValue(inv contracts.Assertion, ec *contracts.ExecutionContext, result any) any {
	if inv.Entity == contracts.EntityResult {
		return refpath.Traverse(result, inv.Field)
	}
	return refpath.Traverse(ec.Entity(inv.Entity), inv.Field)
}
