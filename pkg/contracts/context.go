package contracts

// ExecutionContext carries everything one verified call can see: the call
// arguments, pre-loaded domain entities, and outputs of prior steps when a
// multi-step caller threads them through.
//
// A context belongs to exactly one in-flight call and must never be shared
// across concurrent calls. The engine does not mutate it.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type ExecutionContext struct {
	TenantID string `json:"tenant_id"`
	ActorID  string `json:"actor_id"`

	Args         map[string]any `json:"args"`
	Entities     map[string]any `json:"entities,omitempty"`
	PriorOutputs map[string]any `json:"prior_outputs,omitempty"`
}

// NewExecutionContext builds a context with non-nil maps so lookups never
// have to nil-check.
func NewExecutionContext(tenantID, actorID string, args map[string]any) *ExecutionContext {
	if args == nil {
		args = map[string]any{}
	}
	return &ExecutionContext{
		TenantID:     tenantID,
		ActorID:      actorID,
		Args:         args,
		Entities:     map[string]any{},
		PriorOutputs: map[string]any{},
	}
}

// WithEntity attaches a pre-loaded named domain entity and returns the
// context for chaining during setup.
func (ec *ExecutionContext) WithEntity(name string, entity any) *ExecutionContext {
	if ec.Entities == nil {
		ec.Entities = map[string]any{}
	}
	ec.Entities[name] = entity
	return ec
}

// Entity returns the named pre-loaded entity, or nil when absent.
func (ec *ExecutionContext) Entity(name string) any {
	if ec == nil || ec.Entities == nil {
		return nil
	}
	return ec.Entities[name]
}
