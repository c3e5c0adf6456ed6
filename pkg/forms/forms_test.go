package forms

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestContactSchema_Check(t *testing.T) {
	s := ContactSchema()

	tests := []struct {
		name  string
		field string
		value any
		want  Result
	}{
		{"empty name", "name", "", Fail(MsgRequired)},
		{"blank name", "name", "   ", OK()},
		{"blank message", "message", "\n", OK()},
		{"missing name", "name", nil, Fail(MsgRequired)},
		{"valid name", "name", "Ana", OK()},
		{"malformed email", "email", "not-an-email", Fail(MsgEmail)},
		{"empty email", "email", "", Fail(MsgEmail)},
		{"double dot email", "email", "ana..b@example.com", Fail(MsgEmail)},
		{"leading dot email", "email", ".ana@example.com", Fail(MsgEmail)},
		{"valid email", "email", "ana@example.com", OK()},
		{"plus email", "email", "ana+web@mail.example.org", OK()},
		{"empty message", "message", "", Fail(MsgRequired)},
		{"valid message", "message", "Hello", OK()},
		{"unknown field", "phone", "123", Fail("campo desconocido: phone")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, s.Check(tt.field, tt.value)); diff != "" {
				t.Errorf("Check(%q, %v) mismatch (-want +got):\n%s", tt.field, tt.value, diff)
			}
		})
	}
}

func TestSchema_FirstFailingValidatorWins(t *testing.T) {
	s := NewSchema(Field{Name: "code", Validators: []Validator{
		Required("obligatorio"),
		MinLength(3, "corto"),
		Pattern(`^[A-Z]+$`, "mayúsculas"),
	}})

	if r := s.Check("code", ""); r.Error != "obligatorio" {
		t.Errorf("expected required message, got %q", r.Error)
	}
	if r := s.Check("code", "AB"); r.Error != "corto" {
		t.Errorf("expected min length message, got %q", r.Error)
	}
	if r := s.Check("code", "abc"); r.Error != "mayúsculas" {
		t.Errorf("expected pattern message, got %q", r.Error)
	}
	if r := s.Check("code", "ABC"); !r.Success || r.Error != "" {
		t.Errorf("expected success, got %+v", r)
	}
}

func TestSchema_PickAndFields(t *testing.T) {
	s := ContactSchema()
	if diff := cmp.Diff([]string{"name", "email", "message"}, s.Fields()); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}

	picked := s.Pick("email", "nope")
	if !picked.Has("email") || picked.Has("name") {
		t.Errorf("unexpected picked fields %v", picked.Fields())
	}
}

func TestSchema_CheckAll(t *testing.T) {
	failures := ContactSchema().CheckAll(map[string]any{
		"name":  "Ana",
		"email": "nope",
	})
	want := map[string]Result{
		"email":   Fail(MsgEmail),
		"message": Fail(MsgRequired),
	}
	if diff := cmp.Diff(want, failures); diff != "" {
		t.Errorf("CheckAll mismatch (-want +got):\n%s", diff)
	}
}

func TestMaxLength(t *testing.T) {
	v := MaxLength(3)
	if v.Validate("ñññ") != nil {
		t.Error("length is counted in characters")
	}
	if v.Validate("abcd") == nil {
		t.Error("expected too long")
	}
	if v.Validate("Jose\u0301") == nil {
		t.Error("expected too long")
	}
	if MinLength(4).Validate("Jose\u0301") != nil || MaxLength(4).Validate("Jose\u0301") != nil {
		t.Error("a combining accent counts with its letter")
	}
}

func TestDefaultDefinition(t *testing.T) {
	d := DefaultDefinition()

	if diff := cmp.Diff([]string{"name", "email", "message"}, d.FieldNames()); diff != "" {
		t.Errorf("field names mismatch (-want +got):\n%s", diff)
	}
	if !d.Steps[2].IsTextarea() || d.Steps[1].InputType() != "email" {
		t.Errorf("unexpected step types %+v", d.Steps)
	}

	s, err := d.Schema()
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	if r := s.Check("email", "not-an-email"); r.Error != MsgEmail {
		t.Errorf("expected %q, got %q", MsgEmail, r.Error)
	}
	if r := s.Check("name", ""); r.Error != MsgRequired {
		t.Errorf("expected %q, got %q", MsgRequired, r.Error)
	}
}

func TestParseDefinition_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{"no steps", "name: x\nsteps: []\n", ErrNoSteps},
		{"duplicate", "steps:\n  - field: a\n  - field: a\n", ErrDuplicateField},
		{"unknown rule", "steps:\n  - field: a\n    rules:\n      - kind: shout\n", ErrUnknownRule},
		{"bad type", "steps:\n  - field: a\n    type: date\n", ErrFieldType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDefinition([]byte(tt.yaml))
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestParseDefinition_BadPattern(t *testing.T) {
	_, err := ParseDefinition([]byte("steps:\n  - field: a\n    rules:\n      - kind: pattern\n        pattern: \"(\"\n"))
	if err == nil {
		t.Error("expected pattern compile error")
	}
}

func TestParseDefinition_MalformedYAML(t *testing.T) {
	if _, err := ParseDefinition([]byte("steps: [")); err == nil {
		t.Error("expected decode error")
	}
}
