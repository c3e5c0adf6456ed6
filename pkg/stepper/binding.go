package stepper

import (
	"errors"

	"github.com/gabrielmiguelok/stepform/pkg/dom"
	"github.com/gabrielmiguelok/stepform/pkg/lifecycle"
)

// NewFactory returns a lifecycle factory that initializes a session on the
// current page of doc. Pages without the form bind nothing.
func NewFactory(doc *dom.Document, sched Scheduler, opts Options) lifecycle.Factory {
	return func() (lifecycle.Session, error) {
		s, err := Init(doc, sched, opts)
		if errors.Is(err, ErrFormNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
