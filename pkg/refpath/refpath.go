// Package refpath resolves the reference-string language used throughout
// contracts: "result.*", "args.*", and "entities.*" address values in the
// current execution context; any other string is a literal.
//
// Resolution is pure and total: a missing key at any path segment yields
// nil (absence), never an error. Callers treat absence as assertion
// failure, not as a crash.
package refpath

import (
	"reflect"
	"strings"

	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/contracts"
)

// Reference prefixes.
const (
	PrefixResult   = "result."
	PrefixArgs     = "args."
	PrefixEntities = "entities."
)

// IsReference reports whether ref addresses the execution context rather
// than being a literal value.
func IsReference(ref string) bool {
	return strings.HasPrefix(ref, PrefixResult) ||
		strings.HasPrefix(ref, PrefixArgs) ||
		strings.HasPrefix(ref, PrefixEntities)
}

// Resolve evaluates ref against the execution context and the action
// result. Non-reference strings come back unchanged as literals.
func Resolve(ref string, ec *contracts.ExecutionContext, result any) any {
	switch {
	case strings.HasPrefix(ref, PrefixResult):
		return Traverse(result, strings.TrimPrefix(ref, PrefixResult))
	case strings.HasPrefix(ref, PrefixArgs):
		if ec == nil {
			return nil
		}
		return Traverse(ec.Args, strings.TrimPrefix(ref, PrefixArgs))
	case strings.HasPrefix(ref, PrefixEntities):
		if ec == nil {
			return nil
		}
		return Traverse(ec.Entities, strings.TrimPrefix(ref, PrefixEntities))
	default:
		return ref
	}
}

// Traverse walks a dot-separated path into v. Maps keyed by string are
// traversed directly; exported struct fields are matched by name or json
// tag so domain entities do not have to be pre-flattened into maps.
func Traverse(v any, path string) any {
	if path == "" {
		return v
	}
	cur := v
	for _, seg := range strings.Split(path, ".") {
		if cur == nil {
			return nil
		}
		cur = field(cur, seg)
	}
	return cur
}

func field(v any, name string) any {
	switch m := v.(type) {
	case map[string]any:
		return m[name]
	case map[string]string:
		if s, ok := m[name]; ok {
			return s
		}
		return nil
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil
		}
		mv := rv.MapIndex(reflect.ValueOf(name))
		if !mv.IsValid() {
			return nil
		}
		return mv.Interface()
	case reflect.Struct:
		t := rv.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			if f.Name == name || jsonTagName(f) == name {
				return rv.Field(i).Interface()
			}
		}
		return nil
	default:
		return nil
	}
}

func jsonTagName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "" || tag == "-" {
		return ""
	}
	if idx := strings.IndexByte(tag, ','); idx >= 0 {
		tag = tag[:idx]
	}
	return tag
}
