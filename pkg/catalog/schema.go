package catalog

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// descriptorSchema is the JSON Schema every generated tool descriptor must satisfy
const descriptorSchema = `{
  "type": "object",
  "required": ["human_readable_function_title", "function_title", "code", "inputs"],
  "properties": {
    "human_readable_function_title": {"type": "string", "minLength": 1},
    "function_title": {"type": "string", "minLength": 1},
    "function_description": {"type": "string"},
    "tool_type": {"type": "string"},
    "code": {"type": "string", "minLength": 1},
    "inputs": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type"],
        "properties": {
          "type": {"type": "string", "minLength": 1},
          "human_readable_title": {"type": "string"},
          "options": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["value"],
              "properties": {
                "value": {"type": "string"},
                "label": {"type": "string"}
              }
            }
          },
          "min": {"type": "number"},
          "max": {"type": "number"}
        }
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error

	identifierPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)
)

func loadSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(descriptorSchema))
	})
	return schema, schemaErr
}

// ValidateJSON checks raw descriptor JSON against the descriptor schema
func ValidateJSON(raw []byte) error {
	s, err := loadSchema()
	if err != nil {
		return fmt.Errorf("failed to load descriptor schema: %w", err)
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("invalid descriptor: %w", err)
	}

	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("invalid descriptor: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Validate checks a descriptor against the schema and the rules the schema
// cannot express: the entry point must be an identifier, and select/radio
// inputs need options.
func Validate(tool Tool) error {
	if tool.Inputs == nil {
		tool.Inputs = []InputSpec{}
	}
	raw, err := json.Marshal(tool)
	if err != nil {
		return fmt.Errorf("failed to encode descriptor: %w", err)
	}
	if err := ValidateJSON(raw); err != nil {
		return err
	}

	if !identifierPattern.MatchString(tool.FunctionTitle) {
		return fmt.Errorf("invalid descriptor: function_title %q is not an identifier", tool.FunctionTitle)
	}

	for i, in := range tool.Inputs {
		if in.Type.IsChoice() && len(in.Options) == 0 {
			return fmt.Errorf("invalid descriptor: input %d (%s) requires options", i+1, in.Type)
		}
		if in.Min != nil && in.Max != nil && *in.Min > *in.Max {
			return fmt.Errorf("invalid descriptor: input %d has min greater than max", i+1)
		}
	}

	return nil
}
