//go:build property
// +build property

// Property-based tests for reference resolution purity.
package refpath_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/contracts"
	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/refpath"
)

// TestResolveIsPure verifies that resolving any reference string twice
// against the same unchanged context yields identical values, for
// arbitrary argument maps and arbitrary reference strings.
func TestResolveIsPure(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("Resolve(ref, ctx, result) is idempotent", prop.ForAll(
		func(keys []string, values []string, ref string) bool {
			args := make(map[string]any)
			for i := 0; i < len(keys) && i < len(values); i++ {
				if keys[i] != "" {
					args[keys[i]] = values[i]
				}
			}
			ec := contracts.NewExecutionContext("t", "a", args)
			result := map[string]any{"echo": ref}

			first := refpath.Resolve(ref, ec, result)
			second := refpath.Resolve(ref, ec, result)
			return first == second
		},
		gen.SliceOf(gen.Identifier()),
		gen.SliceOf(gen.AlphaString()),
		gen.AlphaString(),
	))

	properties.Property("non-reference strings resolve to themselves", prop.ForAll(
		func(s string) bool {
			if refpath.IsReference(s) {
				return true // covered by the idempotence property
			}
			return refpath.Resolve(s, contracts.NewExecutionContext("t", "a", nil), nil) == s
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
