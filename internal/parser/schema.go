package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/statement-agent/constants"
)

// ProgramJSONSchema returns the JSON Schema a program document must
// satisfy. It is also handed to LLM generators as the output contract.
func ProgramJSONSchema() map[string]any {
	str := map[string]any{"type": "string"}
	strList := map[string]any{"type": "array", "items": str}

	column := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"name", "role"},
		"properties": map[string]any{
			"name": map[string]any{"type": "string", "minLength": 1},
			"role": map[string]any{"type": "string", "enum": constants.RolesAsStringSlice()},
		},
	}
	colRange := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"field", "start"},
		"properties": map[string]any{
			"field": map[string]any{"type": "string", "minLength": 1},
			"start": map[string]any{"type": "integer", "minimum": 0},
			"end":   map[string]any{"type": "integer", "minimum": 0},
		},
	}
	segmenter := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"kind"},
		"properties": map[string]any{
			"kind":    map[string]any{"type": "string", "enum": []string{"columns", "delimiter", "tokens"}},
			"columns": map[string]any{"type": "array", "items": colRange},
			"pattern": str,
			"fields":  strList,
		},
	}

	synonyms := map[string]any{}
	for _, r := range constants.RolesAsStringSlice() {
		synonyms[r] = strList
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"version", "source", "columns"},
		"properties": map[string]any{
			"version":            map[string]any{"type": "integer", "const": ProgramVersion},
			"source":             map[string]any{"type": "string", "pattern": `^[A-Za-z0-9_.-]+$`},
			"columns":            map[string]any{"type": "array", "minItems": 1, "items": column},
			"locale":             map[string]any{"type": "string", "enum": []string{"", "none", "US", "EU", "IN"}},
			"ambiguous_decimal":  map[string]any{"type": "boolean"},
			"date_patterns":      strList,
			"output_date_layout": str,
			"currency_symbols":   str,
			"min_rows":           map[string]any{"type": "integer", "minimum": 0},
			"header_synonyms": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties":           synonyms,
			},
			"positional_columns": map[string]any{"type": "array", "items": map[string]any{"type": "integer", "minimum": -1}},
			"segmenters":         map[string]any{"type": "array", "items": segmenter},
			"credit_keywords":    strList,
			"debit_keywords":     strList,
			"skip_patterns":      strList,
			"clean_descriptions": map[string]any{"type": "boolean"},
			"drop_blank_rows":    map[string]any{"type": "boolean"},
			"disable_stitching":  map[string]any{"type": "boolean"},
			"sheet":              str,
			"notes":              str,
		},
	}
}

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func programSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		b, err := json.Marshal(ProgramJSONSchema())
		if err != nil {
			compileErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("program.json", bytes.NewReader(b)); err != nil {
			compileErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiledSchema, compileErr = compiler.Compile("program.json")
	})
	return compiledSchema, compileErr
}

// ValidateJSON checks data against ProgramJSONSchema.
func ValidateJSON(data []byte) error {
	schema, err := programSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: unmarshal: %v", ErrInvalidProgram, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProgram, err)
	}
	return nil
}
