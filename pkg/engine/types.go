package engine

import (
	"context"
	"errors"

	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/contracts"
)

// ActionExecutor performs the actual side-effecting call. It is supplied
// by the caller per step; the engine only sees the returned payload or
// error. The engine imposes no timeout of its own: cancellation arrives
// through ctx.
type ActionExecutor interface {
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// ActionFunc adapts a plain function to ActionExecutor.
type ActionFunc func(ctx context.Context, args map[string]any) (any, error)

// Execute implements ActionExecutor.
func (f ActionFunc) Execute(ctx context.Context, args map[string]any) (any, error) {
	return f(ctx, args)
}

// EffectError wraps an action error that occurred AFTER a side effect was
// already applied. Executors that can tell the difference should return
// one so the engine can still propose compensation; a bare error is
// treated as "nothing happened".
type EffectError struct {
	Err error
	// Partial result available despite the error, used to resolve
	// rollback argument references. May be nil.
	Result any
}

// Error implements error.
func (e *EffectError) Error() string {
	return "effect occurred before error: " + e.Err.Error()
}

// Unwrap exposes the underlying cause.
func (e *EffectError) Unwrap() error { return e.Err }

// AsEffectError extracts an EffectError from an error chain.
func AsEffectError(err error) (*EffectError, bool) {
	var ee *EffectError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}

// Step is one verified execution request.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type Step struct {
	// StepID keys idempotency and audit records. Generated when empty.
	StepID string
	// Action selects the contract and names the call for logging.
	Action string
	// Context carries args, pre-loaded entities and prior step outputs.
	Context *contracts.ExecutionContext
	// Executor performs the action.
	Executor ActionExecutor
}
