// Package live runs stepform pages for connected browsers.
//
// Each connection owns a Loop: client events, timers and animation frames
// all run on the loop goroutine one at a time, so page controllers never
// need locks. DOM mutations made during a loop turn are flushed to the
// client as one patch after the turn.
package live

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gabrielmiguelok/stepform/pkg/dispose"
)

// DefaultFrameInterval approximates a 60Hz display refresh.
const DefaultFrameInterval = 16 * time.Millisecond

// Scheduler is the timer and frame surface the loop offers to page
// controllers.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) dispose.Handle
	RequestFrame(fn func(now time.Time)) dispose.Handle
}

// Loop serializes work for one connection.
type Loop struct {
	tasks         chan func()
	stop          chan struct{}
	stopped       chan struct{}
	stopOnce      sync.Once
	frameInterval time.Duration
	afterTurn     func()
}

// NewLoop creates a loop. A non-positive frameInterval uses
// DefaultFrameInterval.
func NewLoop(frameInterval time.Duration) *Loop {
	if frameInterval <= 0 {
		frameInterval = DefaultFrameInterval
	}
	return &Loop{
		tasks:         make(chan func(), 64),
		stop:          make(chan struct{}),
		stopped:       make(chan struct{}),
		frameInterval: frameInterval,
	}
}

// AfterTurn sets a hook run after every task. Set it before Run.
func (l *Loop) AfterTurn(fn func()) {
	l.afterTurn = fn
}

// Run processes tasks until Stop is called.
func (l *Loop) Run() {
	defer close(l.stopped)
	for {
		select {
		case fn := <-l.tasks:
			fn()
			if l.afterTurn != nil {
				l.afterTurn()
			}
		case <-l.stop:
			return
		}
	}
}

// Post queues fn to run on the loop. It reports false once the loop has
// stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.stop:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.stop:
		return false
	}
}

// Do runs fn on the loop and waits for it to finish. It reports false if
// the loop stopped first.
func (l *Loop) Do(fn func()) bool {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return false
	}
	select {
	case <-done:
		return true
	case <-l.stopped:
		return false
	}
}

// Stop ends Run and waits for the current task to finish. Queued tasks are
// dropped.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
	<-l.stopped
}

// Now returns the wall clock.
func (l *Loop) Now() time.Time {
	return time.Now()
}

// AfterFunc runs fn on the loop after d. Disposing the handle cancels it;
// a callback already queued is skipped.
func (l *Loop) AfterFunc(d time.Duration, fn func()) dispose.Handle {
	t := &loopTimer{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if !t.canceled.Load() {
				fn()
			}
		})
	})
	return t
}

// RequestFrame runs fn on the loop at the next frame.
func (l *Loop) RequestFrame(fn func(now time.Time)) dispose.Handle {
	return l.AfterFunc(l.frameInterval, func() {
		fn(l.Now())
	})
}

type loopTimer struct {
	timer    *time.Timer
	canceled atomic.Bool
}

func (t *loopTimer) Dispose() {
	t.canceled.Store(true)
	t.timer.Stop()
}

var _ Scheduler = (*Loop)(nil)
