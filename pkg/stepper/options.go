package stepper

import (
	"fmt"
	"time"

	"github.com/gabrielmiguelok/stepform/pkg/dom"
	"github.com/gabrielmiguelok/stepform/pkg/forms"
	"github.com/gabrielmiguelok/stepform/pkg/logging"
	"github.com/gabrielmiguelok/stepform/pkg/motion"
)

// Default timings.
const (
	DefaultValidationDelay  = 300 * time.Millisecond
	DefaultFocusDelay       = 100 * time.Millisecond
	DefaultProgressDuration = motion.DefaultDuration
)

// ErrorAttr marks the inline error span so it can be found and removed.
const ErrorAttr = "data-step-error"

// DefaultErrorClasses style the inline error span.
var DefaultErrorClasses = []string{"text-carnation", "mt-2", "font-general-sans", "text-[15px]"}

// SubmitMode selects what a successful submit does.
type SubmitMode string

const (
	// SubmitNative invokes the browser's native form submission.
	SubmitNative SubmitMode = "native"
	// SubmitPanel hides the form and reveals the success panel.
	SubmitPanel SubmitMode = "panel"
)

// ParseSubmitMode parses a configured submit mode. Empty means native.
func ParseSubmitMode(s string) (SubmitMode, error) {
	switch SubmitMode(s) {
	case "", SubmitNative:
		return SubmitNative, nil
	case SubmitPanel:
		return SubmitPanel, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrSubmitMode, s)
	}
}

// Selectors locate the parts of the form in the page.
type Selectors struct {
	Form           string
	Steps          string
	Progress       string
	Submit         string
	Success        string
	Next           string
	Prev           string
	InputContainer string

	// Inputs receive Enter handling.
	Inputs string

	// Focus picks the control focused when a step becomes active.
	Focus string
}

// DefaultSelectors returns the selectors of the contact page markup.
func DefaultSelectors() Selectors {
	return Selectors{
		Form:           "#contact-form",
		Steps:          ".step",
		Progress:       "#progress",
		Submit:         "#submit-btn",
		Success:        "#success-advise",
		Next:           ".next",
		Prev:           ".prev",
		InputContainer: ".input-container",
		Inputs:         `input[type="text"], input[type="email"]`,
		Focus:          `input[type="text"], input[type="email"], textarea`,
	}
}

func (s Selectors) withDefaults() Selectors {
	def := DefaultSelectors()
	for _, f := range []struct {
		dst *string
		def string
	}{
		{&s.Form, def.Form},
		{&s.Steps, def.Steps},
		{&s.Progress, def.Progress},
		{&s.Submit, def.Submit},
		{&s.Success, def.Success},
		{&s.Next, def.Next},
		{&s.Prev, def.Prev},
		{&s.InputContainer, def.InputContainer},
		{&s.Inputs, def.Inputs},
		{&s.Focus, def.Focus},
	} {
		if *f.dst == "" {
			*f.dst = f.def
		}
	}
	return s
}

func (s Selectors) compile() error {
	for _, sel := range []string{
		s.Form, s.Steps, s.Progress, s.Submit, s.Success,
		s.Next, s.Prev, s.InputContainer, s.Inputs, s.Focus,
	} {
		if _, err := dom.Compile(sel); err != nil {
			return err
		}
	}
	return nil
}

// Observer receives session transitions. Implementations must not block.
type Observer interface {
	StepChanged(from, to int)
	ValidationFailed(field string)
	Submitted(mode SubmitMode)
}

type nopObserver struct{}

func (nopObserver) StepChanged(int, int)    {}
func (nopObserver) ValidationFailed(string) {}
func (nopObserver) Submitted(SubmitMode)    {}

// Options configure a Session. Zero fields take defaults.
type Options struct {
	Selectors Selectors

	// Fields maps step index to the validated field; the input carrying
	// the field name as id is read on validation.
	Fields []string
	Schema *forms.Schema

	ValidationDelay  time.Duration
	FocusDelay       time.Duration
	ProgressDuration time.Duration
	Easing           motion.Easing

	// FocusOnTransitionEnd defers focus until the step panel finishes its
	// CSS transition, with FocusDelay as the fallback.
	FocusOnTransitionEnd bool

	SubmitMode   SubmitMode
	ErrorClasses []string

	Logger   logging.Logger
	Observer Observer
}

// DefaultOptions returns the contact form configuration.
func DefaultOptions() Options {
	return Options{
		Selectors:        DefaultSelectors(),
		Fields:           []string{"name", "email", "message"},
		Schema:           forms.ContactSchema(),
		ValidationDelay:  DefaultValidationDelay,
		FocusDelay:       DefaultFocusDelay,
		ProgressDuration: DefaultProgressDuration,
		Easing:           motion.Linear,
		SubmitMode:       SubmitNative,
		ErrorClasses:     DefaultErrorClasses,
	}
}

// OptionsFromDefinition returns DefaultOptions with the fields and schema
// of d.
func OptionsFromDefinition(d *forms.Definition) (Options, error) {
	schema, err := d.Schema()
	if err != nil {
		return Options{}, err
	}
	opts := DefaultOptions()
	opts.Fields = d.FieldNames()
	opts.Schema = schema
	return opts, nil
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	o.Selectors = o.Selectors.withDefaults()
	if o.Fields == nil {
		o.Fields = def.Fields
	}
	if o.Schema == nil {
		o.Schema = def.Schema
	}
	if o.ValidationDelay <= 0 {
		o.ValidationDelay = def.ValidationDelay
	}
	if o.FocusDelay <= 0 {
		o.FocusDelay = def.FocusDelay
	}
	if o.ProgressDuration <= 0 {
		o.ProgressDuration = def.ProgressDuration
	}
	if o.Easing == nil {
		o.Easing = def.Easing
	}
	if o.SubmitMode == "" {
		o.SubmitMode = def.SubmitMode
	}
	if o.ErrorClasses == nil {
		o.ErrorClasses = def.ErrorClasses
	}
	o.Logger = logging.OrNop(o.Logger)
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	return o
}
