// Package rollback resolves compensation directives for failed contracts.
//
// The resolver never invokes the compensating action; it has no access to
// an action dispatcher. It returns a directive for the caller to dispatch,
// which keeps the "did compensation actually run" responsibility out of
// the engine and in the orchestrator that owns remote calls.
package rollback

import (
	"log/slog"

	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/contracts"
	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/refpath"
)

// Resolver turns a failed contract into a proposed compensating call.
type Resolver struct {
	logger *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver() *Resolver {
	return &Resolver{logger: slog.Default().With("component", "rollback")}
}

// WithLogger sets the structured logger.
func (r *Resolver) WithLogger(l *slog.Logger) *Resolver {
	r.logger = l
	return r
}

// Resolve returns the compensating directive for the contract, with every
// rollback argument resolved against the execution context and the action
// result. Returns nil when the contract declares no rollback action; the
// caller must surface that as an unrecoverable partial failure.
func (r *Resolver) Resolve(c *contracts.Contract, ec *contracts.ExecutionContext, result any) *contracts.RollbackDirective {
	if !c.HasRollback() {
		r.logger.Warn("no rollback action declared; effect cannot be compensated",
			"action", c.Action,
		)
		return nil
	}

	args := make(map[string]any, len(c.RollbackArgs))
	for param, ref := range c.RollbackArgs {
		args[param] = refpath.Resolve(ref, ec, result)
	}

	r.logger.Info("rollback proposed",
		"action", c.Action,
		"rollback_action", c.RollbackAction,
	)
	return &contracts.RollbackDirective{
		Action: c.RollbackAction,
		Args:   args,
	}
}
