// Package stepper implements the multi-step contact form controller.
//
// A Session drives one rendered form: it shows one step panel at a time,
// validates the active step's field before advancing, animates the
// progress bar, and validates the last step before submitting. Every
// listener, timer and animation a session acquires is released by
// Dispose, after which nothing it registered fires again.
//
// Sessions run on a single event loop and are not safe for concurrent use.
package stepper

import (
	"errors"
	"fmt"
	"time"

	"github.com/gabrielmiguelok/stepform/pkg/dispose"
	"github.com/gabrielmiguelok/stepform/pkg/dom"
	"github.com/gabrielmiguelok/stepform/pkg/forms"
	"github.com/gabrielmiguelok/stepform/pkg/js"
	"github.com/gabrielmiguelok/stepform/pkg/logging"
	"github.com/gabrielmiguelok/stepform/pkg/motion"
)

// Init errors.
var (
	ErrFormNotFound = errors.New("stepper: form not found")
	ErrNoSteps      = errors.New("stepper: form has no steps")
	ErrStepMismatch = errors.New("stepper: step count does not match field mapping")
	ErrUnknownField = errors.New("stepper: field not in schema")
	ErrSubmitMode   = errors.New("stepper: unknown submit mode")
)

// Scheduler provides the timers and animation frames of the event loop
// the session runs on.
type Scheduler interface {
	motion.FrameSource
	AfterFunc(d time.Duration, fn func()) dispose.Handle
}

// Session is the live controller state of one rendered form.
type Session struct {
	doc   *dom.Document
	sched Scheduler
	opts  Options
	log   logging.Logger

	form     *dom.Element
	steps    []*dom.Element
	progress *dom.Element
	submit   *dom.Element
	success  *dom.Element

	current    int
	submitting bool
	submitted  bool
	disposed   bool

	handles  dispose.Stack
	timers   map[*timer]struct{}
	progAnim *motion.Animator
}

type timer struct {
	h dispose.Handle
}

// Init binds a session to the form found in doc and shows the first step.
// It returns ErrFormNotFound when the page has no form, which callers
// treat as nothing to bind.
func Init(doc *dom.Document, sched Scheduler, opts Options) (*Session, error) {
	opts = opts.withDefaults()
	sel := opts.Selectors
	if err := sel.compile(); err != nil {
		return nil, err
	}
	if _, err := ParseSubmitMode(string(opts.SubmitMode)); err != nil {
		return nil, err
	}

	form := doc.QuerySelector(sel.Form)
	if form == nil {
		return nil, ErrFormNotFound
	}
	steps := form.QuerySelectorAll(sel.Steps)
	if len(steps) == 0 {
		return nil, ErrNoSteps
	}
	if len(steps) != len(opts.Fields) {
		return nil, fmt.Errorf("%w: %d steps, %d fields", ErrStepMismatch, len(steps), len(opts.Fields))
	}
	for _, f := range opts.Fields {
		if !opts.Schema.Has(f) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownField, f)
		}
	}

	s := &Session{
		doc:      doc,
		sched:    sched,
		opts:     opts,
		log:      opts.Logger.With(logging.Component("stepper")),
		form:     form,
		steps:    steps,
		progress: doc.QuerySelector(sel.Progress),
		submit:   doc.QuerySelector(sel.Submit),
		success:  doc.QuerySelector(sel.Success),
		timers:   make(map[*timer]struct{}),
		progAnim: motion.NewAnimator(sched, opts.ProgressDuration, opts.Easing),
	}
	s.bind()
	s.showStep(0)

	s.log.Debug("session bound", logging.Int("steps", len(steps)))
	return s, nil
}

func (s *Session) bind() {
	sel := s.opts.Selectors

	for _, btn := range s.form.QuerySelectorAll(sel.Next) {
		s.handles.Add(btn.AddEventListener(dom.EventClick, func(*dom.Event) {
			s.advance(btn)
		}))
	}
	for _, btn := range s.form.QuerySelectorAll(sel.Prev) {
		s.handles.Add(btn.AddEventListener(dom.EventClick, func(*dom.Event) {
			s.retreat()
		}))
	}

	if s.submit != nil {
		s.handles.Add(s.form.AddEventListener(dom.EventSubmit, s.handleSubmit, dom.PreventDefault()))
		s.handles.Add(s.submit.AddEventListener(dom.EventClick, func(*dom.Event) {
			s.form.RequestSubmit()
		}))
	}

	for _, input := range s.form.QuerySelectorAll(sel.Inputs) {
		s.handles.Add(input.AddEventListener(dom.EventKeyDown, s.handleEnter, dom.Keys("Enter"), dom.PreventDefault()))
	}

	s.handles.Add(s.progAnim)
}

// advance validates the active step and moves forward on success.
func (s *Session) advance(btn *dom.Element) {
	if s.disposed || s.submitted {
		return
	}
	setDisabled(btn, true)
	if s.current >= len(s.steps)-1 {
		setDisabled(btn, false)
		return
	}

	index := s.current
	container := s.steps[index].QuerySelector(s.opts.Selectors.InputContainer)
	clearError(container)

	s.after(s.opts.ValidationDelay, func() {
		defer setDisabled(btn, false)
		if s.current != index {
			return
		}
		if res := s.Validate(index); !res.Success {
			s.showError(container, res.Error)
			s.opts.Observer.ValidationFailed(s.opts.Fields[index])
			return
		}
		s.moveTo(index + 1)
	})
}

func (s *Session) retreat() {
	if s.disposed || s.submitted || s.current <= 0 {
		return
	}
	s.moveTo(s.current - 1)
}

func (s *Session) moveTo(index int) {
	from := s.current
	s.current = index
	s.showStep(index)
	s.animateProgress(ProgressTarget(index, len(s.steps)))
	s.opts.Observer.StepChanged(from, index)
	s.log.Debug("step changed", logging.Int("from", from), logging.Int("to", index))
}

// handleEnter turns Enter in a text input into advancing, or into a
// submit request on the last step.
func (s *Session) handleEnter(ev *dom.Event) {
	ev.PreventDefault()
	if s.disposed {
		return
	}
	if s.current == len(s.steps)-1 {
		s.form.RequestSubmit()
		return
	}
	if next := s.steps[s.current].QuerySelector(s.opts.Selectors.Next); next != nil {
		next.Click()
	}
}

// handleSubmit intercepts the form's submit event and submits only after
// the last step validates.
func (s *Session) handleSubmit(ev *dom.Event) {
	ev.PreventDefault()
	if s.disposed || s.submitted || s.submitting {
		return
	}
	last := len(s.steps) - 1
	if s.current != last {
		return
	}

	container := s.steps[last].QuerySelector(s.opts.Selectors.InputContainer)
	setDisabled(s.submit, true)
	clearError(container)
	s.submitting = true

	s.after(s.opts.ValidationDelay, func() {
		s.submitting = false
		defer setDisabled(s.submit, false)
		if s.current != last {
			return
		}
		if res := s.Validate(last); !res.Success {
			s.showError(container, res.Error)
			s.opts.Observer.ValidationFailed(s.opts.Fields[last])
			return
		}

		s.submitted = true
		s.animateProgress(ProgressTarget(len(s.steps), len(s.steps)))
		switch s.opts.SubmitMode {
		case SubmitPanel:
			s.form.AddClass("hidden")
			if s.success != nil {
				s.success.RemoveClass("hidden")
			}
		default:
			s.form.Submit()
		}
		s.opts.Observer.Submitted(s.opts.SubmitMode)
		s.log.Debug("form submitted", logging.String("mode", string(s.opts.SubmitMode)))
	})
}

// Validate checks the field mapped to step index against the schema,
// reading the current value of the input whose id is the field name.
func (s *Session) Validate(index int) forms.Result {
	if index < 0 || index >= len(s.opts.Fields) {
		return forms.Fail(fmt.Sprintf("paso fuera de rango: %d", index))
	}
	field := s.opts.Fields[index]
	value := ""
	if input := s.doc.GetElementByID(field); input != nil {
		value = input.Value()
	}
	return s.opts.Schema.Check(field, value)
}

// showStep makes step index the only active panel and focuses its input.
func (s *Session) showStep(index int) {
	for i, step := range s.steps {
		step.ToggleClass("hidden", i != index)
		step.ToggleClass("active", i == index)
	}

	step := s.steps[index]
	input := step.QuerySelector(s.opts.Selectors.Focus)
	if input == nil {
		return
	}
	if s.opts.FocusOnTransitionEnd {
		input.Focus(js.AfterTransition(step.Key()), js.Delay(int(s.opts.FocusDelay/time.Millisecond)))
		return
	}
	s.after(s.opts.FocusDelay, func() {
		input.Focus()
	})
}

func (s *Session) animateProgress(to float64) {
	if s.progress == nil {
		return
	}
	bar := s.progress
	s.progAnim.AnimateTo(bar.NumberValue(), to, func(v float64) {
		bar.SetProperty("value", v)
	})
}

func (s *Session) showError(container *dom.Element, msg string) {
	if container == nil {
		return
	}
	span := s.doc.CreateElement("span")
	span.SetAttribute(ErrorAttr, "")
	span.SetAttribute("role", "alert")
	span.AddClass(s.opts.ErrorClasses...)
	span.SetTextContent(msg)
	container.AppendChild(span)
}

func clearError(container *dom.Element) {
	if container == nil {
		return
	}
	if span := container.QuerySelector("span[" + ErrorAttr + "]"); span != nil {
		span.Remove()
	}
}

func setDisabled(el *dom.Element, disabled bool) {
	if el == nil {
		return
	}
	if disabled {
		el.SetAttribute("disabled", "true")
		el.AddClass("disabled")
		return
	}
	el.RemoveAttribute("disabled")
	el.RemoveClass("disabled")
}

// after schedules fn on the session's loop. Pending callbacks are
// canceled by Dispose.
func (s *Session) after(d time.Duration, fn func()) {
	t := &timer{}
	t.h = s.sched.AfterFunc(d, func() {
		delete(s.timers, t)
		if s.disposed {
			return
		}
		fn()
	})
	s.timers[t] = struct{}{}
}

// ProgressTarget is the progress bar value for step index of n:
// index*(100/n).
func ProgressTarget(index, n int) float64 {
	if n <= 0 {
		return 0
	}
	return float64(index) * (100 / float64(n))
}

// Step returns the 0-based active step.
func (s *Session) Step() int {
	return s.current
}

// StepCount returns the number of step panels.
func (s *Session) StepCount() int {
	return len(s.steps)
}

// Submitted reports whether the form passed final validation and was
// submitted.
func (s *Session) Submitted() bool {
	return s.submitted
}

// SubmitMode returns the configured submit mode.
func (s *Session) SubmitMode() SubmitMode {
	return s.opts.SubmitMode
}

// Pending returns the number of scheduled callbacks not yet run.
func (s *Session) Pending() int {
	return len(s.timers)
}

// HandleCount returns the number of listener and animation handles the
// session holds.
func (s *Session) HandleCount() int {
	return s.handles.Len()
}

// Disposed reports whether Dispose has run.
func (s *Session) Disposed() bool {
	return s.disposed
}

// Dispose cancels pending timers and animations and removes every
// listener. It is idempotent.
func (s *Session) Dispose() {
	if s.disposed {
		return
	}
	s.disposed = true
	for t := range s.timers {
		t.h.Dispose()
		delete(s.timers, t)
	}
	s.handles.Dispose()
	s.log.Debug("session disposed")
}
