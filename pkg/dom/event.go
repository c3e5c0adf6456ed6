package dom

import (
	"github.com/gabrielmiguelok/stepform/pkg/js"
)

// Event types the runtime forwards.
const (
	EventClick   = "click"
	EventKeyDown = "keydown"
	EventSubmit  = "submit"
	EventInput   = "input"
)

// Event is a DOM event delivered to listeners. Events do not bubble: a
// listener only sees events dispatched on the element it is attached to.
type Event struct {
	// Type is the event type, e.g. "click".
	Type string

	// Target is the element the event was dispatched on. Nil for
	// document-level events.
	Target *Element

	// Key is the KeyboardEvent.key value for keyboard events.
	Key string

	// Detail carries extra data for document-level events.
	Detail map[string]any

	defaultPrevented bool
}

// PreventDefault marks the event's default action as canceled. The client
// runtime cancels browser defaults up front for listeners registered with
// the PreventDefault option; this flag covers server-dispatched events.
func (e *Event) PreventDefault() {
	e.defaultPrevented = true
}

// DefaultPrevented reports whether PreventDefault was called.
func (e *Event) DefaultPrevented() bool {
	return e.defaultPrevented
}

// Listener handles a dispatched event.
type Listener func(ev *Event)

type listener struct {
	fn      Listener
	opts    listenOptions
	removed bool
}

type listenOptions struct {
	preventDefault bool
	keys           []string
}

// accepts reports whether the listener filters ev in.
func (l *listener) accepts(ev *Event) bool {
	if len(l.opts.keys) == 0 {
		return true
	}
	for _, k := range l.opts.keys {
		if k == ev.Key {
			return true
		}
	}
	return false
}

// ListenOption configures an event listener.
type ListenOption func(*listenOptions)

// PreventDefault asks the client to cancel the browser default action for
// forwarded events.
func PreventDefault() ListenOption {
	return func(o *listenOptions) {
		o.preventDefault = true
	}
}

// Keys restricts a keyboard listener to the given key values.
func Keys(keys ...string) ListenOption {
	return func(o *listenOptions) {
		o.keys = append(o.keys, keys...)
	}
}

// mergeListenOptions combines the options of every listener of one type on
// one element into the single listen command the client keeps.
func mergeListenOptions(ls []*listener) []js.ListenOption {
	prevent := false
	unfiltered := false
	seen := make(map[string]bool)
	var keys []string

	for _, l := range ls {
		if l.opts.preventDefault {
			prevent = true
		}
		if len(l.opts.keys) == 0 {
			unfiltered = true
			continue
		}
		for _, k := range l.opts.keys {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}

	var opts []js.ListenOption
	if prevent {
		opts = append(opts, js.PreventDefault())
	}
	if !unfiltered && len(keys) > 0 {
		opts = append(opts, js.Keys(keys...))
	}
	return opts
}
