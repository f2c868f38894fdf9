package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// packSchema is the structural contract for pack files. Assertion-level
// semantics (operator/kind cross rules) live in Contract.Validate; this
// schema catches shape mistakes early with JSON-pointer diagnostics.
const packSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["schema_version", "contracts"],
  "properties": {
    "schema_version": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "contracts": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["action"],
        "properties": {
          "action": {"type": "string", "minLength": 1},
          "description": {"type": "string"},
          "process_id": {"type": "string"},
          "step_id": {"type": "string"},
          "preconditions": {"$ref": "#/$defs/assertions"},
          "postconditions": {"$ref": "#/$defs/assertions"},
          "invariants": {"$ref": "#/$defs/assertions"},
          "persisted_assertions": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["id", "table", "select"],
              "properties": {
                "id": {"type": "string", "minLength": 1},
                "description": {"type": "string"},
                "table": {"type": "string", "minLength": 1},
                "select": {"type": "array", "items": {"type": "string"}, "minItems": 1},
                "where": {"type": "object", "additionalProperties": {"type": "string"}},
                "expect": {
                  "type": "object",
                  "properties": {
                    "count": {"type": "integer", "minimum": 0},
                    "field": {"type": "string"},
                    "operator": {"type": "string"},
                    "value": {}
                  }
                }
              }
            }
          },
          "rollback_action": {"type": "string"},
          "rollback_args": {"type": "object", "additionalProperties": {"type": "string"}}
        }
      }
    }
  },
  "$defs": {
    "assertions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "kind"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "description": {"type": "string"},
          "kind": {
            "enum": ["entity_exists", "field_equals", "field_not_null", "field_changed", "count_equals", "custom"]
          },
          "entity": {"type": "string"},
          "field": {"type": "string"},
          "operator": {
            "enum": ["==", "!=", ">", "<", ">=", "<=", "in", "not_null", "changed"]
          },
          "value": {},
          "from_arg": {"type": "string"},
          "expr": {"type": "string"}
        }
      }
    }
  }
}`

var compiledPackSchema = jsonschema.MustCompileString("pack.schema.json", packSchema)

// ValidatePackDocument checks a decoded pack document against the pack
// schema. The document is round-tripped through JSON first so YAML-decoded
// values carry the types the schema validator expects.
func ValidatePackDocument(doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("pack document not JSON-representable: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var normalized any
	if err := dec.Decode(&normalized); err != nil {
		return fmt.Errorf("normalize pack document: %w", err)
	}
	if err := compiledPackSchema.Validate(normalized); err != nil {
		return fmt.Errorf("pack schema violation: %w", err)
	}
	return nil
}
