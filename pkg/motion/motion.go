// Package motion interpolates numeric values over time, one sample per
// display frame.
package motion

import (
	"time"

	"github.com/gabrielmiguelok/stepform/pkg/dispose"
)

// DefaultDuration is the duration of a progress animation.
const DefaultDuration = 300 * time.Millisecond

// FrameSource schedules callbacks on the next display frame.
type FrameSource interface {
	// Now returns the current frame clock time.
	Now() time.Time

	// RequestFrame runs fn once, on the next frame. Disposing the handle
	// before then cancels the callback.
	RequestFrame(fn func(now time.Time)) dispose.Handle
}

// Easing maps linear progress in [0,1] to eased progress.
type Easing func(t float64) float64

// Linear is the identity easing.
func Linear(t float64) float64 {
	return t
}

// EaseOutCubic decelerates toward the end.
func EaseOutCubic(t float64) float64 {
	u := 1 - t
	return 1 - u*u*u
}

// EaseInOutQuad accelerates then decelerates.
func EaseInOutQuad(t float64) float64 {
	if t < 0.5 {
		return 2 * t * t
	}
	u := -2*t + 2
	return 1 - u*u/2
}

// EasingByName resolves a configured easing name. Unknown names fall back
// to Linear.
func EasingByName(name string) Easing {
	switch name {
	case "ease-out-cubic":
		return EaseOutCubic
	case "ease-in-out-quad":
		return EaseInOutQuad
	default:
		return Linear
	}
}

// Clamp limits v so it never passes to when moving from from toward to.
func Clamp(v, from, to float64) float64 {
	if to > from {
		if v > to {
			return to
		}
		return v
	}
	if v < to {
		return to
	}
	return v
}

// Spec describes one animation.
type Spec struct {
	From     float64
	To       float64
	Duration time.Duration
	Easing   Easing
}

// Task is one running interpolation. It samples once per frame, applies
// the clamped value, and lands exactly on the target on its last frame.
type Task struct {
	src   FrameSource
	spec  Spec
	start time.Time
	apply func(float64)

	frame    dispose.Handle
	value    float64
	done     bool
	canceled bool
}

// Start begins interpolating and schedules the first frame.
func Start(src FrameSource, spec Spec, apply func(float64)) *Task {
	if spec.Easing == nil {
		spec.Easing = Linear
	}
	t := &Task{
		src:   src,
		spec:  spec,
		start: src.Now(),
		apply: apply,
		value: spec.From,
	}
	t.frame = src.RequestFrame(t.tick)
	return t
}

func (t *Task) tick(now time.Time) {
	if t.done {
		return
	}

	progress := 1.0
	if t.spec.Duration > 0 {
		progress = float64(now.Sub(t.start)) / float64(t.spec.Duration)
	}
	if progress < 0 {
		progress = 0
	}

	if progress >= 1 {
		t.value = t.spec.To
		t.done = true
	} else {
		v := t.spec.From + (t.spec.To-t.spec.From)*t.spec.Easing(progress)
		t.value = Clamp(v, t.spec.From, t.spec.To)
	}

	if t.apply != nil {
		t.apply(t.value)
	}
	if !t.done {
		t.frame = t.src.RequestFrame(t.tick)
	}
}

// Cancel stops the task where it is. It is a no-op once the task is done.
func (t *Task) Cancel() {
	if t.done {
		return
	}
	t.done = true
	t.canceled = true
	if t.frame != nil {
		t.frame.Dispose()
	}
}

// Dispose cancels the task.
func (t *Task) Dispose() {
	t.Cancel()
}

// Done reports whether the task finished or was canceled.
func (t *Task) Done() bool {
	return t.done
}

// Canceled reports whether the task was canceled before finishing.
func (t *Task) Canceled() bool {
	return t.canceled
}

// Value returns the last applied value.
func (t *Task) Value() float64 {
	return t.value
}

// Target returns the value the task is heading to.
func (t *Task) Target() float64 {
	return t.spec.To
}

// Animator runs at most one task at a time. A new target supersedes the
// in-flight task, which is canceled first.
type Animator struct {
	src      FrameSource
	duration time.Duration
	easing   Easing
	current  *Task
}

// NewAnimator creates an animator. A zero duration uses DefaultDuration.
func NewAnimator(src FrameSource, duration time.Duration, easing Easing) *Animator {
	if duration <= 0 {
		duration = DefaultDuration
	}
	if easing == nil {
		easing = Linear
	}
	return &Animator{src: src, duration: duration, easing: easing}
}

// AnimateTo cancels any running task and starts a new one from from to to.
func (a *Animator) AnimateTo(from, to float64, apply func(float64)) *Task {
	a.Cancel()
	a.current = Start(a.src, Spec{
		From:     from,
		To:       to,
		Duration: a.duration,
		Easing:   a.easing,
	}, apply)
	return a.current
}

// Active reports whether a task is running.
func (a *Animator) Active() bool {
	return a.current != nil && !a.current.Done()
}

// Current returns the most recent task, or nil.
func (a *Animator) Current() *Task {
	return a.current
}

// Cancel stops the running task, if any.
func (a *Animator) Cancel() {
	if a.current != nil {
		a.current.Cancel()
	}
}

// Dispose cancels the running task.
func (a *Animator) Dispose() {
	a.Cancel()
}
