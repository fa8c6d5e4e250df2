package docai

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildAnalysisSchema returns the JSON-Schema (draft 2020-12 subset) for the
// document-understanding response. The upstream service is treated as
// untrusted: the payload must validate before any of it becomes Document
// annotations.
func BuildAnalysisSchema() map[string]any {
	entityDef := map[string]any{
		"type":     "object",
		"required": []string{"type"},
		"properties": map[string]any{
			"type":       map[string]any{"type": "string", "minLength": 1},
			"mention":    map[string]any{"type": "string"},
			"normalized": map[string]any{"type": "string"},
			"page":       map[string]any{"type": "integer", "minimum": 0},
			"properties": map[string]any{
				"type":  "array",
				"items": map[string]any{"$ref": "#/$defs/entity"},
			},
		},
		"additionalProperties": true,
	}

	return map[string]any{
		"$defs": map[string]any{"entity": entityDef},
		"type":  "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string"},
			"pages": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []string{"number", "text"},
					"properties": map[string]any{
						"number": map[string]any{"type": "integer", "minimum": 1},
						"text":   map[string]any{"type": "string"},
					},
					"additionalProperties": true,
				},
			},
			"entities": map[string]any{
				"type":  "array",
				"items": map[string]any{"$ref": "#/$defs/entity"},
			},
			"tables": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []string{"headers", "rows"},
					"properties": map[string]any{
						"page":    map[string]any{"type": "integer", "minimum": 0},
						"headers": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
						"rows": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type":  "array",
								"items": map[string]any{"type": "string"},
							},
						},
					},
					"additionalProperties": true,
				},
			},
		},
		"additionalProperties": true,
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
