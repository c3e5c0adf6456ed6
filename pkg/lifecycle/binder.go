// Package lifecycle binds page-scoped controllers to page navigation
// events.
package lifecycle

import (
	"github.com/gabrielmiguelok/stepform/pkg/dispose"
	"github.com/gabrielmiguelok/stepform/pkg/dom"
	"github.com/gabrielmiguelok/stepform/pkg/logging"
)

// Page lifecycle events, dispatched on the document.
const (
	EventPageLoad   = "page-load"
	EventAfterSwap  = "after-swap"
	EventBeforeSwap = "before-swap"
)

// Events lists the lifecycle event types.
var Events = []string{EventPageLoad, EventAfterSwap, EventBeforeSwap}

// IsEvent reports whether typ is a lifecycle event.
func IsEvent(typ string) bool {
	for _, e := range Events {
		if e == typ {
			return true
		}
	}
	return false
}

// Session is a page-scoped controller.
type Session interface {
	Dispose()
}

// Factory builds a session for the current page. It returns nil when the
// page has nothing to bind.
type Factory func() (Session, error)

// Binder owns at most one live session. It rebinds on page-load and
// after-swap and unbinds on before-swap.
type Binder struct {
	doc     *dom.Document
	factory Factory
	log     logging.Logger

	current Session
	handles dispose.Stack
	binds   int
}

// NewBinder creates a binder for doc. Call Attach to start listening.
func NewBinder(doc *dom.Document, factory Factory, logger logging.Logger) *Binder {
	return &Binder{
		doc:     doc,
		factory: factory,
		log:     logging.OrNop(logger).With(logging.Component("lifecycle")),
	}
}

// Attach registers the binder's document listeners. It is idempotent.
func (b *Binder) Attach() {
	if b.handles.Len() > 0 {
		return
	}
	b.handles.Add(b.doc.AddEventListener(EventPageLoad, func(*dom.Event) { b.Bind() }))
	b.handles.Add(b.doc.AddEventListener(EventAfterSwap, func(*dom.Event) { b.Bind() }))
	b.handles.Add(b.doc.AddEventListener(EventBeforeSwap, func(*dom.Event) { b.Unbind() }))
}

// Bind disposes the current session and builds a fresh one. A factory
// error leaves the binder with no session.
func (b *Binder) Bind() {
	b.Unbind()

	s, err := b.factory()
	if err != nil {
		b.log.Warn("bind failed", logging.Err(err))
		return
	}
	if s == nil {
		b.log.Debug("nothing to bind")
		return
	}
	b.current = s
	b.binds++
	b.log.Debug("session bound", logging.Int("binds", b.binds))
}

// Unbind disposes the current session, if any.
func (b *Binder) Unbind() {
	if b.current == nil {
		return
	}
	b.current.Dispose()
	b.current = nil
	b.log.Debug("session unbound")
}

// Current returns the live session, or nil.
func (b *Binder) Current() Session {
	return b.current
}

// Binds returns how many sessions the binder has built.
func (b *Binder) Binds() int {
	return b.binds
}

// Detach removes the binder's listeners and unbinds.
func (b *Binder) Detach() {
	b.handles.Dispose()
	b.Unbind()
}
