package forms

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// FieldType identifies the input rendered for a step.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldEmail    FieldType = "email"
	FieldTextarea FieldType = "textarea"
)

// Rule kinds accepted in definitions.
const (
	RuleRequired  = "required"
	RuleEmail     = "email"
	RuleMinLength = "min_length"
	RuleMaxLength = "max_length"
	RulePattern   = "pattern"
)

// Definition errors.
var (
	ErrNoSteps        = errors.New("form definition has no steps")
	ErrDuplicateField = errors.New("duplicate field in form definition")
	ErrUnknownRule    = errors.New("unknown rule kind")
	ErrFieldType      = errors.New("unsupported field type")
)

//go:embed definitions/contact.yaml
var contactDefinition []byte

// Definition describes a stepper form: its steps in order, one validated
// field per step.
type Definition struct {
	Name   string           `yaml:"name"`
	Action string           `yaml:"action"`
	Steps  []StepDefinition `yaml:"steps"`
}

// StepDefinition is one step of a Definition.
type StepDefinition struct {
	Field       string           `yaml:"field"`
	Type        FieldType        `yaml:"type"`
	Label       string           `yaml:"label"`
	Placeholder string           `yaml:"placeholder"`
	Rules       []RuleDefinition `yaml:"rules"`
}

// RuleDefinition is one validator of a step.
type RuleDefinition struct {
	Kind    string `yaml:"kind"`
	Min     int    `yaml:"min,omitempty"`
	Max     int    `yaml:"max,omitempty"`
	Pattern string `yaml:"pattern,omitempty"`
	Message string `yaml:"message,omitempty"`
}

// ParseDefinition decodes and validates a YAML definition.
func ParseDefinition(data []byte) (*Definition, error) {
	var d Definition
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode form definition: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// LoadDefinition reads a YAML definition from path.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read form definition: %w", err)
	}
	return ParseDefinition(data)
}

// DefaultDefinition returns the built-in contact form.
func DefaultDefinition() *Definition {
	d, err := ParseDefinition(contactDefinition)
	if err != nil {
		panic(fmt.Sprintf("forms: built-in definition: %v", err))
	}
	return d
}

// Validate checks structural constraints: at least one step, unique field
// names, known field types and rule kinds, compilable patterns.
func (d *Definition) Validate() error {
	if len(d.Steps) == 0 {
		return ErrNoSteps
	}
	seen := make(map[string]bool, len(d.Steps))
	for i, step := range d.Steps {
		if step.Field == "" {
			return fmt.Errorf("step %d: missing field name", i)
		}
		if seen[step.Field] {
			return fmt.Errorf("%w: %s", ErrDuplicateField, step.Field)
		}
		seen[step.Field] = true

		switch step.Type {
		case "", FieldText, FieldEmail, FieldTextarea:
		default:
			return fmt.Errorf("%w: %s", ErrFieldType, step.Type)
		}

		for _, rule := range step.Rules {
			if _, err := rule.validator(); err != nil {
				return fmt.Errorf("step %s: %w", step.Field, err)
			}
		}
	}
	return nil
}

// FieldNames returns the step to field mapping.
func (d *Definition) FieldNames() []string {
	names := make([]string, len(d.Steps))
	for i, s := range d.Steps {
		names[i] = s.Field
	}
	return names
}

// Schema builds the validation schema of the definition.
func (d *Definition) Schema() (*Schema, error) {
	fields := make([]Field, 0, len(d.Steps))
	for _, step := range d.Steps {
		f := Field{Name: step.Field}
		for _, rule := range step.Rules {
			v, err := rule.validator()
			if err != nil {
				return nil, fmt.Errorf("step %s: %w", step.Field, err)
			}
			f.Validators = append(f.Validators, v)
		}
		fields = append(fields, f)
	}
	return NewSchema(fields...), nil
}

func (r RuleDefinition) validator() (Validator, error) {
	switch r.Kind {
	case RuleRequired:
		return Required(r.Message), nil
	case RuleEmail:
		return Email(r.Message), nil
	case RuleMinLength:
		return MinLength(r.Min, r.Message), nil
	case RuleMaxLength:
		return MaxLength(r.Max, r.Message), nil
	case RulePattern:
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile pattern: %w", err)
		}
		return PatternValidator{Re: re, Msg: r.Message}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRule, r.Kind)
	}
}

// InputType returns the HTML input type for the step, or "" for a
// textarea.
func (s StepDefinition) InputType() string {
	switch s.Type {
	case FieldEmail:
		return "email"
	case FieldTextarea:
		return ""
	default:
		return "text"
	}
}

// IsTextarea reports whether the step renders a textarea.
func (s StepDefinition) IsTextarea() bool {
	return s.Type == FieldTextarea
}
