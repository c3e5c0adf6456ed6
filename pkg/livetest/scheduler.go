// Package livetest provides testing utilities for stepform.
package livetest

import (
	"sort"
	"time"

	"github.com/gabrielmiguelok/stepform/pkg/dispose"
)

// FrameInterval is the frame period of the manual scheduler.
const FrameInterval = 16 * time.Millisecond

// Epoch is the manual scheduler's starting time.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Scheduler is a manual clock implementing timers and display frames.
// Nothing runs until the test calls Advance, Frame or Flush, and callbacks
// run on the calling goroutine, like the live event loop.
type Scheduler struct {
	now      time.Time
	interval time.Duration
	seq      int
	queue    []*scheduled
}

type scheduled struct {
	due      time.Time
	seq      int
	fn       func(now time.Time)
	canceled bool
	ran      bool
}

func (s *scheduled) Dispose() {
	s.canceled = true
}

// NewScheduler creates a scheduler at Epoch with the default frame
// interval.
func NewScheduler() *Scheduler {
	return &Scheduler{now: Epoch, interval: FrameInterval}
}

// Now returns the scheduler's clock.
func (s *Scheduler) Now() time.Time {
	return s.now
}

// AfterFunc runs fn once d has elapsed on the scheduler's clock.
func (s *Scheduler) AfterFunc(d time.Duration, fn func()) dispose.Handle {
	return s.schedule(d, func(time.Time) { fn() })
}

// RequestFrame runs fn on the next frame.
func (s *Scheduler) RequestFrame(fn func(now time.Time)) dispose.Handle {
	return s.schedule(s.interval, fn)
}

func (s *Scheduler) schedule(d time.Duration, fn func(time.Time)) dispose.Handle {
	if d < 0 {
		d = 0
	}
	s.seq++
	item := &scheduled{due: s.now.Add(d), seq: s.seq, fn: fn}
	s.queue = append(s.queue, item)
	return item
}

// Advance moves the clock forward by d, running every callback that comes
// due, in due order. Callbacks scheduled while advancing run too when they
// fall inside the window.
func (s *Scheduler) Advance(d time.Duration) {
	target := s.now.Add(d)
	for {
		next := s.nextDue(target)
		if next == nil {
			break
		}
		s.now = next.due
		next.ran = true
		next.fn(s.now)
	}
	s.now = target
}

// Frame advances the clock by one frame interval.
func (s *Scheduler) Frame() {
	s.Advance(s.interval)
}

// Flush advances until nothing is pending, up to limit. It returns false
// if callbacks were still pending when the limit was reached.
func (s *Scheduler) Flush(limit time.Duration) bool {
	deadline := s.now.Add(limit)
	for s.Pending() > 0 {
		if !s.now.Before(deadline) {
			return false
		}
		s.Frame()
	}
	return true
}

// Pending returns the number of callbacks still waiting to run.
func (s *Scheduler) Pending() int {
	n := 0
	for _, item := range s.queue {
		if !item.canceled && !item.ran {
			n++
		}
	}
	return n
}

func (s *Scheduler) nextDue(limit time.Time) *scheduled {
	live := s.queue[:0]
	for _, item := range s.queue {
		if !item.canceled && !item.ran {
			live = append(live, item)
		}
	}
	s.queue = live

	sort.SliceStable(s.queue, func(i, j int) bool {
		if s.queue[i].due.Equal(s.queue[j].due) {
			return s.queue[i].seq < s.queue[j].seq
		}
		return s.queue[i].due.Before(s.queue[j].due)
	})

	if len(s.queue) == 0 || s.queue[0].due.After(limit) {
		return nil
	}
	return s.queue[0]
}
