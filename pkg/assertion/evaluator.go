// Package assertion evaluates declarative contract assertions against the
// in-memory execution context and the action result.
//
// Assertions within a phase are evaluated exhaustively: every violation is
// collected into the phase's VerificationResult, even though the pipeline
// short-circuits between phases.
package assertion

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/contracts"
	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/refpath"
)

// Evaluator evaluates contract assertions. It is stateless apart from the
// custom-assertion machinery and safe for concurrent use.
type Evaluator struct {
	custom *CustomEvaluator
	logger *slog.Logger
	clock  func() time.Time
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithCustomEvaluator installs the evaluator used for "custom" assertions.
func WithCustomEvaluator(ce *CustomEvaluator) Option {
	return func(e *Evaluator) { e.custom = ce }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = l }
}

// WithClock injects a deterministic clock for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.clock = now }
}

// New creates an Evaluator. Without WithCustomEvaluator, custom assertions
// fail closed with a diagnostic detail.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		logger: slog.Default().With("component", "assertion"),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EvaluatePhase evaluates every assertion in the list and aggregates all
// failures. The phase passes iff no assertion failed.
func (e *Evaluator) EvaluatePhase(phase contracts.Phase, list []contracts.Assertion, ec *contracts.ExecutionContext, result any) *contracts.VerificationResult {
	start := e.clock()
	vr := &contracts.VerificationResult{Phase: phase}

	for _, a := range list {
		if failed := e.Evaluate(a, ec, result); failed != nil {
			vr.FailedAssertions = append(vr.FailedAssertions, *failed)
			e.logger.Debug("assertion failed",
				"phase", string(phase),
				"assertion", a.ID,
				"expected", failed.Expected,
				"actual", failed.Actual,
			)
		}
	}

	vr.Passed = len(vr.FailedAssertions) == 0
	vr.Elapsed = e.clock().Sub(start)
	return vr
}

// Evaluate checks one assertion. It returns nil when the assertion holds,
// or a FailedAssertion describing the violation.
func (e *Evaluator) Evaluate(a contracts.Assertion, ec *contracts.ExecutionContext, result any) *contracts.FailedAssertion {
	switch a.Kind {
	case contracts.KindEntityExists:
		return e.evalEntityExists(a, ec, result)
	case contracts.KindFieldEquals:
		return e.evalFieldEquals(a, ec, result)
	case contracts.KindFieldNotNull:
		return e.evalFieldNotNull(a, ec, result)
	case contracts.KindFieldChanged:
		return e.evalFieldChanged(a, ec, result)
	case contracts.KindCountEquals:
		return e.evalCountEquals(a, ec, result)
	case contracts.KindCustom:
		return e.evalCustom(a, ec, result)
	default:
		return fail(a, "defined value", nil, fmt.Sprintf("unknown assertion kind %q", a.Kind))
	}
}

// target returns the value the assertion's entity key addresses: the action
// result for "result", otherwise the named pre-loaded entity.
func target(a contracts.Assertion, ec *contracts.ExecutionContext, result any) any {
	if a.Entity == contracts.EntityResult {
		return result
	}
	return ec.Entity(a.Entity)
}

// actualValue resolves the assertion's field on its target.
func actualValue(a contracts.Assertion, ec *contracts.ExecutionContext, result any) any {
	return refpath.Traverse(target(a, ec, result), a.Field)
}

// expectedValue resolves FromArg when present, else the literal value.
func expectedValue(a contracts.Assertion, ec *contracts.ExecutionContext, result any) any {
	if a.FromArg != "" {
		return refpath.Resolve(a.FromArg, ec, result)
	}
	return a.Value
}

func (e *Evaluator) evalEntityExists(a contracts.Assertion, ec *contracts.ExecutionContext, result any) *contracts.FailedAssertion {
	actual := actualValue(a, ec, result)
	if actual == nil {
		return fail(a, "non-null value", nil, fmt.Sprintf("%s.%s is absent", a.Entity, a.Field))
	}
	return nil
}

func (e *Evaluator) evalFieldEquals(a contracts.Assertion, ec *contracts.ExecutionContext, result any) *contracts.FailedAssertion {
	actual := actualValue(a, ec, result)
	expected := expectedValue(a, ec, result)

	if a.Operator == contracts.OpIn {
		if !Contains(expected, actual) {
			return fail(a, expected, actual, "value not in expected set")
		}
		return nil
	}
	if !Equal(actual, expected) {
		return fail(a, expected, actual, "")
	}
	return nil
}

func (e *Evaluator) evalFieldNotNull(a contracts.Assertion, ec *contracts.ExecutionContext, result any) *contracts.FailedAssertion {
	actual := actualValue(a, ec, result)
	if a.Operator == contracts.OpNotEqual {
		if Equal(actual, a.Value) {
			return fail(a, fmt.Sprintf("!= %v", a.Value), actual, "")
		}
		return nil
	}
	if actual == nil {
		return fail(a, "non-null value", nil, "")
	}
	return nil
}

func (e *Evaluator) evalFieldChanged(a contracts.Assertion, ec *contracts.ExecutionContext, result any) *contracts.FailedAssertion {
	actual := actualValue(a, ec, result)
	if a.FromArg == "" && a.Value == nil {
		// No baseline to compare against: the field must at least be set.
		if actual == nil {
			return fail(a, "changed value", nil, "field absent")
		}
		return nil
	}
	baseline := expectedValue(a, ec, result)
	if Equal(actual, baseline) {
		return fail(a, fmt.Sprintf("value different from %v", baseline), actual, "")
	}
	return nil
}

func (e *Evaluator) evalCountEquals(a contracts.Assertion, ec *contracts.ExecutionContext, result any) *contracts.FailedAssertion {
	actual := actualValue(a, ec, result)
	n, ok := Length(actual)
	if !ok {
		return fail(a, expectedValue(a, ec, result), actual, fmt.Sprintf("value of type %T is not countable", actual))
	}
	expected := expectedValue(a, ec, result)
	passed, err := Compare(a.Operator, n, expected)
	if err != nil {
		return fail(a, expected, n, err.Error())
	}
	if !passed {
		return fail(a, expected, n, "")
	}
	return nil
}

func (e *Evaluator) evalCustom(a contracts.Assertion, ec *contracts.ExecutionContext, result any) *contracts.FailedAssertion {
	if e.custom == nil {
		return fail(a, "registered predicate or expression", nil,
			"custom assertion has no evaluator configured")
	}
	passed, err := e.custom.Evaluate(a, ec, result)
	if err != nil {
		return fail(a, "true", nil, err.Error())
	}
	if !passed {
		return fail(a, "true", false, "custom assertion returned false")
	}
	return nil
}

func fail(a contracts.Assertion, expected, actual any, details string) *contracts.FailedAssertion {
	return &contracts.FailedAssertion{
		AssertionID: a.ID,
		Description: a.Description,
		Expected:    expected,
		Actual:      actual,
		Details:     details,
	}
}
