package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/avelez/codetour/pkg/schema"
)

// requestSchemaJSON is the JSON Schema for TutorialRequest validation.
// Embedded as a constant to avoid filesystem dependencies.
const requestSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://codetour.dev/schemas/tutorial-request.json",
  "type": "object",
  "required": ["repo_url"],
  "properties": {
    "repo_url": {
      "type": "string",
      "minLength": 1,
      "pattern": "^https://github\\.com/[^/]+/[^/]+"
    },
    "language": {
      "type": "string",
      "minLength": 1
    },
    "include_patterns": {
      "type": "array",
      "items": { "type": "string", "minLength": 1 }
    },
    "exclude_patterns": {
      "type": "array",
      "items": { "type": "string", "minLength": 1 }
    },
    "max_file_size": {
      "type": "integer",
      "minimum": 1
    },
    "output_dir": {
      "type": "string"
    }
  },
  "additionalProperties": false
}`

// JSONSchemaValidator implements the Validator interface using JSON Schema Draft 2020-12.
// It is safe for concurrent use.
type JSONSchemaValidator struct {
	requestSchema *jsonschema.Schema
}

// NewJSONSchemaValidator creates a new JSONSchemaValidator with the request schema pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(requestSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal request schema: %w", err)
	}
	if err := c.AddResource("https://codetour.dev/schemas/tutorial-request.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add request schema resource: %w", err)
	}

	reqSchema, err := c.Compile("https://codetour.dev/schemas/tutorial-request.json")
	if err != nil {
		return nil, fmt.Errorf("compile request schema: %w", err)
	}

	return &JSONSchemaValidator{requestSchema: reqSchema}, nil
}

// ValidateRequest validates a TutorialRequest against the embedded JSON Schema.
func (v *JSONSchemaValidator) ValidateRequest(req *schema.TutorialRequest) error {
	if req == nil {
		return schema.NewError(schema.ErrCodeValidation, "tutorial request is nil")
	}

	doc, err := toJSONValue(req)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize tutorial request").WithCause(err)
	}

	if err := v.requestSchema.Validate(doc); err != nil {
		return toCodetourError(err)
	}

	return nil
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toCodetourError converts a jsonschema.ValidationError into a CodetourError
// with clear, actionable messages for API consumers.
func toCodetourError(err error) *schema.CodetourError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error messages
// with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
