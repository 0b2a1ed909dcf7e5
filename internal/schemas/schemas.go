// Package schemas validates inbound JSON payloads against embedded
// JSON Schema documents before they reach decoding, so transport
// adapters reject malformed submissions with field-level errors instead
// of half-decoded structs.
package schemas

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed submit_signal.schema.json
var submitSignalSchema string

// FieldError is a single schema violation at a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates every schema violation found in one
// payload. Transport adapters render the field list back to the caller.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("payload validation failed")
	for _, fe := range e.Errors {
		sb.WriteString("; ")
		sb.WriteString(fe.Field)
		sb.WriteString(": ")
		sb.WriteString(fe.Message)
	}
	return sb.String()
}

// Validator checks payloads against one compiled schema. Compilation
// happens once at construction; Validate is safe for concurrent use.
type Validator struct {
	schema *gojsonschema.Schema
}

// NewSubmitSignalValidator compiles the embedded signal submission
// schema. Failure means the embedded document itself is broken, which
// only happens on a bad build.
func NewSubmitSignalValidator() (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(submitSignalSchema))
	if err != nil {
		return nil, fmt.Errorf("compile submit signal schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// MustSubmitSignalValidator is NewSubmitSignalValidator for wiring
// paths where a broken embedded schema cannot be handled anyway.
func MustSubmitSignalValidator() *Validator {
	v, err := NewSubmitSignalValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// Validate checks one JSON payload. It returns *ValidationError when
// the document parses but violates the schema, and a plain error when
// the document is not JSON at all.
func (v *Validator) Validate(payload []byte) error {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return fmt.Errorf("parse payload: %w", err)
	}
	if result.Valid() {
		return nil
	}

	ve := &ValidationError{Errors: make([]FieldError, 0, len(result.Errors()))}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		ve.Errors = append(ve.Errors, FieldError{Field: field, Message: desc.Description()})
	}
	return ve
}
