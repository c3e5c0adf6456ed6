// Package dispose provides scoped resource handles.
//
// Every operation that registers something that must later be released
// (an event listener, a timer, an animation) returns a Handle. Owners
// collect handles in a Stack and release them all at once.
package dispose

// Handle releases a single acquired resource.
// Dispose must be safe to call more than once.
type Handle interface {
	Dispose()
}

// Func adapts a plain function to the Handle interface.
// A Func is not idempotent on its own; wrap it with Once when needed.
type Func func()

// Dispose calls f.
func (f Func) Dispose() {
	if f != nil {
		f()
	}
}

// Once returns a Handle that calls fn at most once.
func Once(fn func()) Handle {
	return &once{fn: fn}
}

type once struct {
	fn func()
}

func (o *once) Dispose() {
	if o.fn == nil {
		return
	}
	fn := o.fn
	o.fn = nil
	fn()
}

// Nop is a Handle that holds nothing.
var Nop Handle = Func(nil)

// Stack collects handles and releases them in reverse acquisition order.
// The zero value is ready to use. A Stack is not safe for concurrent use;
// callers confine it to one goroutine.
type Stack struct {
	handles []Handle
}

// Add pushes h onto the stack and returns it.
func (s *Stack) Add(h Handle) Handle {
	if h != nil {
		s.handles = append(s.handles, h)
	}
	return h
}

// Len returns the number of handles still held.
func (s *Stack) Len() int {
	return len(s.handles)
}

// Dispose releases every held handle, last acquired first, and empties the
// stack. Handles added while disposing are released too.
func (s *Stack) Dispose() {
	for len(s.handles) > 0 {
		last := len(s.handles) - 1
		h := s.handles[last]
		s.handles[last] = nil
		s.handles = s.handles[:last]
		h.Dispose()
	}
}
