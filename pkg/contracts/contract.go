// Package contracts defines the declarative correctness model for
// contract-verified tool execution: per-action contracts, the assertions
// they carry, and the result types every verification phase produces.
//
// Contracts are loaded once at process start and are read-only during
// execution. Nothing in this package performs I/O.
package contracts

import (
	"errors"
	"fmt"
)

// AssertionKind classifies a declarative check.
type AssertionKind string

// Assertion kind constants.
const (
	KindEntityExists AssertionKind = "entity_exists"
	KindFieldEquals  AssertionKind = "field_equals"
	KindFieldNotNull AssertionKind = "field_not_null"
	KindFieldChanged AssertionKind = "field_changed"
	KindCountEquals  AssertionKind = "count_equals"
	KindCustom       AssertionKind = "custom"
)

// Comparison operators accepted by assertions and persisted expectations.
const (
	OpEqual          = "=="
	OpNotEqual       = "!="
	OpGreater        = ">"
	OpLess           = "<"
	OpGreaterOrEqual = ">="
	OpLessOrEqual    = "<="
	OpIn             = "in"
	OpNotNull        = "not_null"
	OpChanged        = "changed"
)

// EntityResult is the reserved entity key that targets the action's
// result payload instead of a pre-loaded context entity.
const EntityResult = "result"

// Assertion is one declarative check inside a contract phase.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type Assertion struct {
	ID          string        `json:"id" yaml:"id"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Kind        AssertionKind `json:"kind" yaml:"kind"`
	// Entity is "result" or the key of a pre-loaded context entity.
	Entity   string `json:"entity" yaml:"entity"`
	Field    string `json:"field,omitempty" yaml:"field,omitempty"`
	Operator string `json:"operator,omitempty" yaml:"operator,omitempty"`
	// Value is the literal expectation. FromArg, when set, is a reference
	// string resolved against the execution context and takes precedence.
	Value   any    `json:"value,omitempty" yaml:"value,omitempty"`
	FromArg string `json:"from_arg,omitempty" yaml:"from_arg,omitempty"`
	// Expr is a CEL boolean expression, used only by kind "custom" when no
	// named predicate is registered for the assertion ID.
	Expr string `json:"expr,omitempty" yaml:"expr,omitempty"`
}

// PersistedExpectation is the post-query check of a persisted assertion.
type PersistedExpectation struct {
	// Count, when non-nil, is compared exactly against the returned row count.
	Count *int `json:"count,omitempty" yaml:"count,omitempty"`
	// Field/Operator/Value compare a single column of the first returned row.
	Field    string `json:"field,omitempty" yaml:"field,omitempty"`
	Operator string `json:"operator,omitempty" yaml:"operator,omitempty"`
	Value    any    `json:"value,omitempty" yaml:"value,omitempty"`
}

// PersistedAssertion checks durable state in the backing store after an
// action ran. Where values are reference strings; only equality filters
// are supported in the query itself.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type PersistedAssertion struct {
	ID          string               `json:"id" yaml:"id"`
	Description string               `json:"description,omitempty" yaml:"description,omitempty"`
	Table       string               `json:"table" yaml:"table"`
	Select      []string             `json:"select" yaml:"select"`
	Where       map[string]string    `json:"where" yaml:"where"`
	Expect      PersistedExpectation `json:"expect" yaml:"expect"`
}

// Contract binds one action type to its correctness rules. A Contract is
// immutable once loaded; concurrent readers need no locking.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type Contract struct {
	Action      string `json:"action" yaml:"action"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	ProcessID   string `json:"process_id,omitempty" yaml:"process_id,omitempty"`
	StepID      string `json:"step_id,omitempty" yaml:"step_id,omitempty"`

	Preconditions       []Assertion          `json:"preconditions,omitempty" yaml:"preconditions,omitempty"`
	Postconditions      []Assertion          `json:"postconditions,omitempty" yaml:"postconditions,omitempty"`
	Invariants          []Assertion          `json:"invariants,omitempty" yaml:"invariants,omitempty"`
	PersistedAssertions []PersistedAssertion `json:"persisted_assertions,omitempty" yaml:"persisted_assertions,omitempty"`

	// RollbackAction names the compensating action proposed when a
	// post-effect phase fails. RollbackArgs maps compensating-action
	// parameter names to reference strings.
	RollbackAction string            `json:"rollback_action,omitempty" yaml:"rollback_action,omitempty"`
	RollbackArgs   map[string]string `json:"rollback_args,omitempty" yaml:"rollback_args,omitempty"`
}

// HasRollback reports whether the contract declares a compensating action.
func (c *Contract) HasRollback() bool {
	return c != nil && c.RollbackAction != ""
}

var validKinds = map[AssertionKind]bool{
	KindEntityExists: true,
	KindFieldEquals:  true,
	KindFieldNotNull: true,
	KindFieldChanged: true,
	KindCountEquals:  true,
	KindCustom:       true,
}

var validOperators = map[string]bool{
	"":               true,
	OpEqual:          true,
	OpNotEqual:       true,
	OpGreater:        true,
	OpLess:           true,
	OpGreaterOrEqual: true,
	OpLessOrEqual:    true,
	OpIn:             true,
	OpNotNull:        true,
	OpChanged:        true,
}

// Validate checks structural well-formedness of a loaded contract.
// It does not resolve references; reference validity is data-dependent.
func (c *Contract) Validate() error {
	if c == nil {
		return errors.New("nil contract")
	}
	if c.Action == "" {
		return errors.New("contract missing action name")
	}

	phases := map[string][]Assertion{
		"preconditions":  c.Preconditions,
		"postconditions": c.Postconditions,
		"invariants":     c.Invariants,
	}
	for phase, list := range phases {
		for i, a := range list {
			if a.ID == "" {
				return fmt.Errorf("%s: %s[%d]: missing assertion id", c.Action, phase, i)
			}
			if !validKinds[a.Kind] {
				return fmt.Errorf("%s: %s[%d] (%s): unknown kind %q", c.Action, phase, i, a.ID, a.Kind)
			}
			if !validOperators[a.Operator] {
				return fmt.Errorf("%s: %s[%d] (%s): unknown operator %q", c.Action, phase, i, a.ID, a.Operator)
			}
			if a.Kind == KindCustom && a.Expr == "" {
				// A registered predicate may still serve it; flagged at
				// evaluation time, not load time.
				continue
			}
		}
	}

	for i, pa := range c.PersistedAssertions {
		if pa.ID == "" {
			return fmt.Errorf("%s: persisted_assertions[%d]: missing assertion id", c.Action, i)
		}
		if pa.Table == "" {
			return fmt.Errorf("%s: persisted_assertions[%d] (%s): missing table", c.Action, i, pa.ID)
		}
		if len(pa.Select) == 0 {
			return fmt.Errorf("%s: persisted_assertions[%d] (%s): empty select list", c.Action, i, pa.ID)
		}
		if pa.Expect.Count == nil && pa.Expect.Field == "" {
			return fmt.Errorf("%s: persisted_assertions[%d] (%s): expectation declares neither count nor field", c.Action, i, pa.ID)
		}
		if pa.Expect.Field != "" && !validOperators[pa.Expect.Operator] {
			return fmt.Errorf("%s: persisted_assertions[%d] (%s): unknown expect operator %q", c.Action, i, pa.ID, pa.Expect.Operator)
		}
	}

	if len(c.RollbackArgs) > 0 && c.RollbackAction == "" {
		return fmt.Errorf("%s: rollback_args declared without rollback_action", c.Action)
	}
	return nil
}
