// Package validation checks posted screen data against the rules declared on
// the screen, and defines the address validation collaborator.
package validation

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/formflow/errors"
	"github.com/c360/formflow/flowconfig"
	"github.com/c360/formflow/submission"
)

// Errors maps a field name to its messages
type Errors map[string][]string

// Add appends messages for field
func (e Errors) Add(field string, messages ...string) {
	e[field] = append(e[field], messages...)
}

// Merge appends every message of other
func (e Errors) Merge(other map[string][]string) {
	for field, messages := range other {
		e.Add(field, messages...)
	}
}

// Fields returns the failing field names sorted
func (e Errors) Fields() []string {
	out := make([]string, 0, len(e))
	for k := range e {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Validator validates the fields posted to a screen
type Validator interface {
	Validate(flow string, screen *flowconfig.ScreenConfig, form *submission.FormSubmission) (Errors, error)
}

// SchemaValidator validates posted fields against a JSON Schema built from
// the screen's validation block. Compiled schemas are cached per screen.
type SchemaValidator struct {
	schemas sync.Map // flow/screen -> *gojsonschema.Schema
}

// NewSchemaValidator creates a SchemaValidator
func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{}
}

// Validate returns field errors, or an empty set when the screen declares no
// rules. Blank values count as missing so that required fields must be
// filled in.
func (v *SchemaValidator) Validate(flow string, screen *flowconfig.ScreenConfig, form *submission.FormSubmission) (Errors, error) {
	out := Errors{}
	if screen == nil || screen.Validation == nil {
		return out, nil
	}

	schema, err := v.schema(flow, screen)
	if err != nil {
		return nil, err
	}

	doc := make(map[string]any)
	for k, val := range form.ValidatableFields() {
		if isBlank(val) {
			continue
		}
		doc[k] = val.Interface()
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, errors.WrapInvalid(err, "SchemaValidator", "Validate", "schema evaluation")
	}
	if result.Valid() {
		return out, nil
	}

	for _, re := range result.Errors() {
		field := re.Field()
		if re.Type() == "required" {
			if prop, ok := re.Details()["property"].(string); ok {
				field = prop
			}
		}
		if _, seen := out[field]; seen && screen.Validation.Messages[field] != "" {
			continue
		}
		if msg, ok := screen.Validation.Messages[field]; ok && msg != "" {
			out.Add(field, msg)
			continue
		}
		out.Add(field, re.Description())
	}
	return out, nil
}

func (v *SchemaValidator) schema(flow string, screen *flowconfig.ScreenConfig) (*gojsonschema.Schema, error) {
	key := flow + "/" + screen.Name
	if cached, ok := v.schemas.Load(key); ok {
		return cached.(*gojsonschema.Schema), nil
	}

	properties := make(map[string]any, len(screen.Validation.Fields))
	for field, rules := range screen.Validation.Fields {
		properties[field] = rules
	}
	def := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(screen.Validation.Required) > 0 {
		def["required"] = screen.Validation.Required
	}

	raw, err := json.Marshal(def)
	if err != nil {
		return nil, errors.NewConfigError(flow, screen.Name, fmt.Sprintf("validation rules cannot be encoded: %v", err))
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		cerr := errors.NewConfigError(flow, screen.Name, "validation rules are not a valid JSON Schema")
		cerr.Err = err
		return nil, cerr
	}

	actual, _ := v.schemas.LoadOrStore(key, schema)
	return actual.(*gojsonschema.Schema), nil
}

func isBlank(v submission.Value) bool {
	switch v.Kind() {
	case submission.KindScalar:
		s, _ := v.AsScalar()
		return s == ""
	case submission.KindList:
		items, _ := v.AsList()
		return len(items) == 0
	default:
		its, _ := v.AsIterations()
		return len(its) == 0
	}
}
