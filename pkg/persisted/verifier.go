// Package persisted verifies durable side effects against the backing
// store. This is the only verification phase that performs I/O; every
// other phase operates purely on the in-memory execution context.
package persisted

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/assertion"
	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/contracts"
	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/refpath"
)

// StoreQuerier is the minimal generic query contract against the backing
// store: select the named fields from one table filtered by equality on
// every where entry. No joins, no inequality filters.
type StoreQuerier interface {
	Query(ctx context.Context, table string, fields []string, where map[string]any) ([]map[string]any, error)
}

// Verifier evaluates persisted-state assertions through a StoreQuerier.
type Verifier struct {
	querier StoreQuerier
	logger  *slog.Logger
	clock   func() time.Time
}

// NewVerifier creates a Verifier backed by the given querier.
func NewVerifier(querier StoreQuerier) *Verifier {
	return &Verifier{
		querier: querier,
		logger:  slog.Default().With("component", "persisted"),
		clock:   time.Now,
	}
}

// WithLogger sets the structured logger.
func (v *Verifier) WithLogger(l *slog.Logger) *Verifier {
	v.logger = l
	return v
}

// WithClock injects a deterministic clock for tests.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.clock = now
	return v
}

// Verify runs every persisted assertion sequentially, in list order, and
// aggregates all failures. Query errors are recorded as failed assertions
// with the error detail rather than aborting the phase.
func (v *Verifier) Verify(ctx context.Context, assertions []contracts.PersistedAssertion, ec *contracts.ExecutionContext, result any) *contracts.VerificationResult {
	start := v.clock()
	vr := &contracts.VerificationResult{Phase: contracts.PhasePersisted}

	for _, pa := range assertions {
		if failed := v.verifyOne(ctx, pa, ec, result); failed != nil {
			vr.FailedAssertions = append(vr.FailedAssertions, *failed)
			v.logger.Debug("persisted assertion failed",
				"assertion", pa.ID,
				"table", pa.Table,
				"details", failed.Details,
			)
		}
	}

	vr.Passed = len(vr.FailedAssertions) == 0
	vr.Elapsed = v.clock().Sub(start)
	return vr
}

func (v *Verifier) verifyOne(ctx context.Context, pa contracts.PersistedAssertion, ec *contracts.ExecutionContext, result any) *contracts.FailedAssertion {
	if v.querier == nil {
		return &contracts.FailedAssertion{
			AssertionID: pa.ID,
			Description: pa.Description,
			Details:     "no backing store querier configured",
		}
	}

	// Resolve where references to concrete scalars; nil resolutions are
	// dropped from the filter rather than matching NULL.
	where := make(map[string]any, len(pa.Where))
	for field, ref := range pa.Where {
		if val := refpath.Resolve(ref, ec, result); val != nil {
			where[field] = val
		}
	}

	rows, err := v.querier.Query(ctx, pa.Table, pa.Select, where)
	if err != nil {
		return &contracts.FailedAssertion{
			AssertionID: pa.ID,
			Description: pa.Description,
			Details:     fmt.Sprintf("query %s: %v", pa.Table, err),
		}
	}

	if pa.Expect.Count != nil && len(rows) != *pa.Expect.Count {
		return &contracts.FailedAssertion{
			AssertionID: pa.ID,
			Description: pa.Description,
			Expected:    fmt.Sprintf("%d rows", *pa.Expect.Count),
			Actual:      fmt.Sprintf("%d rows", len(rows)),
			Details:     fmt.Sprintf("row count mismatch on %s", pa.Table),
		}
	}

	if pa.Expect.Field != "" {
		if len(rows) == 0 {
			return &contracts.FailedAssertion{
				AssertionID: pa.ID,
				Description: pa.Description,
				Expected:    pa.Expect.Value,
				Details:     fmt.Sprintf("no rows returned from %s to check field %s", pa.Table, pa.Expect.Field),
			}
		}
		actual := rows[0][pa.Expect.Field]
		passed, err := assertion.Compare(pa.Expect.Operator, actual, pa.Expect.Value)
		if err != nil {
			return &contracts.FailedAssertion{
				AssertionID: pa.ID,
				Description: pa.Description,
				Expected:    pa.Expect.Value,
				Actual:      actual,
				Details:     err.Error(),
			}
		}
		if !passed {
			return &contracts.FailedAssertion{
				AssertionID: pa.ID,
				Description: pa.Description,
				Expected:    pa.Expect.Value,
				Actual:      actual,
				Details:     fmt.Sprintf("%s.%s %s expectation violated", pa.Table, pa.Expect.Field, pa.Expect.Operator),
			}
		}
	}

	return nil
}
