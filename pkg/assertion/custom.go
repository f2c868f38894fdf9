package assertion

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/contracts"
)

// Predicate is a named check for a custom assertion, keyed by assertion ID.
// Predicates are registered at startup and run in-process; this is the
// preferred extension point because it needs no expression interpreter.
type Predicate func(ec *contracts.ExecutionContext, result any) (bool, error)

// CustomEvaluator resolves "custom" assertions. Resolution order:
//
//  1. a predicate registered under the assertion ID;
//  2. the assertion's CEL expression, compiled once and cached.
//
// An assertion with neither fails closed: a check that cannot be
// evaluated must never report as passing.
type CustomEvaluator struct {
	env        *cel.Env
	mu         sync.RWMutex
	predicates map[string]Predicate
	prgCache   map[string]cel.Program
}

// NewCustomEvaluator builds the CEL environment. Expressions see three
// variables: args, entities (string-keyed maps) and result (dynamic).
func NewCustomEvaluator() (*CustomEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("args", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("entities", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("result", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &CustomEvaluator{
		env:        env,
		predicates: make(map[string]Predicate),
		prgCache:   make(map[string]cel.Program),
	}, nil
}

// RegisterPredicate binds a predicate to an assertion ID. Registering the
// same ID twice replaces the previous predicate.
func (ce *CustomEvaluator) RegisterPredicate(assertionID string, p Predicate) {
	ce.mu.Lock()
	defer ce.mu.Unlock()
	ce.predicates[assertionID] = p
}

// Evaluate runs the custom assertion. Errors mean the assertion could not
// be evaluated and must be treated as failure by the caller.
func (ce *CustomEvaluator) Evaluate(a contracts.Assertion, ec *contracts.ExecutionContext, result any) (bool, error) {
	ce.mu.RLock()
	pred, hasPred := ce.predicates[a.ID]
	ce.mu.RUnlock()

	if hasPred {
		ok, err := pred(ec, result)
		if err != nil {
			return false, fmt.Errorf("predicate %s: %w", a.ID, err)
		}
		return ok, nil
	}

	if a.Expr == "" {
		return false, fmt.Errorf("custom assertion %s: no registered predicate and no expression", a.ID)
	}
	return ce.evaluateExpr(a.Expr, ec, result)
}

func (ce *CustomEvaluator) evaluateExpr(expr string, ec *contracts.ExecutionContext, result any) (bool, error) {
	ce.mu.RLock()
	prg, hit := ce.prgCache[expr]
	ce.mu.RUnlock()

	if !hit {
		ce.mu.Lock()
		// Double check under the write lock.
		if prg, hit = ce.prgCache[expr]; !hit {
			ast, issues := ce.env.Compile(expr)
			if issues != nil && issues.Err() != nil {
				ce.mu.Unlock()
				return false, fmt.Errorf("compile: %w", issues.Err())
			}
			p, err := ce.env.Program(ast,
				cel.InterruptCheckFrequency(100),
				cel.CostLimit(10000), // Hard limit on computational complexity
			)
			if err != nil {
				ce.mu.Unlock()
				return false, fmt.Errorf("program: %w", err)
			}
			ce.prgCache[expr] = p
			prg = p
		}
		ce.mu.Unlock()
	}

	input := map[string]any{
		"args":     mapOrEmpty(ec.Args),
		"entities": mapOrEmpty(ec.Entities),
		"result":   result,
	}
	out, _, err := prg.Eval(input)
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression result is %T, not bool", out.Value())
	}
	return val, nil
}

func mapOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
