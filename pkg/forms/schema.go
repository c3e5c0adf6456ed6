// Package forms provides the field schema and form definitions of the
// stepper form.
package forms

import (
	"fmt"
)

// Result is the outcome of checking one field. Error is empty exactly
// when Success is true.
type Result struct {
	Success bool
	Error   string
}

// OK returns a passing result.
func OK() Result {
	return Result{Success: true}
}

// Fail returns a failing result carrying msg.
func Fail(msg string) Result {
	return Result{Success: false, Error: msg}
}

// Field is one named field and its validators, run in order.
type Field struct {
	Name       string
	Validators []Validator
}

// Schema is a set of independently checkable fields.
type Schema struct {
	fields map[string]Field
	order  []string
}

// NewSchema builds a schema. A later field with a repeated name replaces
// the earlier one.
func NewSchema(fields ...Field) *Schema {
	s := &Schema{fields: make(map[string]Field, len(fields))}
	for _, f := range fields {
		if _, ok := s.fields[f.Name]; !ok {
			s.order = append(s.order, f.Name)
		}
		s.fields[f.Name] = f
	}
	return s
}

// ContactSchema is the schema of the default contact form.
func ContactSchema() *Schema {
	return NewSchema(
		Field{Name: "name", Validators: []Validator{Required()}},
		Field{Name: "email", Validators: []Validator{Email()}},
		Field{Name: "message", Validators: []Validator{Required()}},
	)
}

// Fields returns the field names in declaration order.
func (s *Schema) Fields() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Has reports whether the schema defines name.
func (s *Schema) Has(name string) bool {
	_, ok := s.fields[name]
	return ok
}

// Pick returns a schema restricted to the named fields. Unknown names are
// ignored.
func (s *Schema) Pick(names ...string) *Schema {
	var fields []Field
	for _, name := range names {
		if f, ok := s.fields[name]; ok {
			fields = append(fields, f)
		}
	}
	return NewSchema(fields...)
}

// Check validates value against the named field and reports the first
// failing validator's message. It never panics; an unknown field fails.
func (s *Schema) Check(name string, value any) Result {
	f, ok := s.fields[name]
	if !ok {
		return Fail(fmt.Sprintf("campo desconocido: %s", name))
	}
	for _, v := range f.Validators {
		if err := v.Validate(value); err != nil {
			return Fail(v.Message())
		}
	}
	return OK()
}

// CheckAll validates every field present in values and returns the
// failures keyed by field name.
func (s *Schema) CheckAll(values map[string]any) map[string]Result {
	failures := make(map[string]Result)
	for _, name := range s.order {
		if r := s.Check(name, values[name]); !r.Success {
			failures[name] = r
		}
	}
	return failures
}
