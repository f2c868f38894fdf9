package assertion

import (
	"fmt"
	"reflect"

	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/contracts"
)

// Equal compares two values for assertion purposes. Numeric values are
// compared by magnitude regardless of concrete type, since JSON decoding,
// YAML contract packs and SQL drivers disagree on int vs int64 vs float64.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
	}
	return reflect.DeepEqual(a, b)
}

// Contains reports whether seq (a slice or array) contains v.
func Contains(seq any, v any) bool {
	rv := reflect.ValueOf(seq)
	if !rv.IsValid() {
		return false
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false
	}
	for i := 0; i < rv.Len(); i++ {
		if Equal(rv.Index(i).Interface(), v) {
			return true
		}
	}
	return false
}

// Compare applies a contract operator to actual/expected. It returns an
// error for operators that need an ordering when either side is not
// numeric, so callers can report the mismatch instead of silently failing.
func Compare(op string, actual, expected any) (bool, error) {
	switch op {
	case contracts.OpEqual, "":
		return Equal(actual, expected), nil
	case contracts.OpNotEqual:
		return !Equal(actual, expected), nil
	case contracts.OpIn:
		return Contains(expected, actual), nil
	case contracts.OpNotNull:
		return actual != nil, nil
	case contracts.OpGreater, contracts.OpLess, contracts.OpGreaterOrEqual, contracts.OpLessOrEqual:
		af, aok := asFloat(actual)
		ef, eok := asFloat(expected)
		if !aok || !eok {
			return false, fmt.Errorf("operator %q requires numeric operands, got %T and %T", op, actual, expected)
		}
		switch op {
		case contracts.OpGreater:
			return af > ef, nil
		case contracts.OpLess:
			return af < ef, nil
		case contracts.OpGreaterOrEqual:
			return af >= ef, nil
		default:
			return af <= ef, nil
		}
	default:
		return false, fmt.Errorf("unsupported operator %q", op)
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// Length returns the element count of a slice, array, map or string, for
// count_equals assertions. ok is false for other types.
func Length(v any) (int, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
		return rv.Len(), true
	default:
		return 0, false
	}
}
