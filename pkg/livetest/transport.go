package livetest

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gabrielmiguelok/stepform/pkg/protocol"
)

// ErrTransportClosed is returned by Send after Close.
var ErrTransportClosed = errors.New("livetest: transport closed")

// MockTransport is an in-memory live transport. Tests feed client messages
// with Receive and inspect what the server sent.
type MockTransport struct {
	ID string

	in   chan *protocol.Message
	done chan struct{}

	mu          sync.Mutex
	cond        *sync.Cond
	sent        []*protocol.Message
	closed      bool
	errorToSend error
}

// NewMockTransport creates an open transport.
func NewMockTransport() *MockTransport {
	mt := &MockTransport{
		ID:   "test-conn-" + uuid.New().String()[:8],
		in:   make(chan *protocol.Message, 64),
		done: make(chan struct{}),
	}
	mt.cond = sync.NewCond(&mt.mu)
	return mt
}

// Send records a message sent by the server.
func (mt *MockTransport) Send(msg *protocol.Message) error {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	if mt.errorToSend != nil {
		return mt.errorToSend
	}
	if mt.closed {
		return ErrTransportClosed
	}
	mt.sent = append(mt.sent, msg)
	mt.cond.Broadcast()
	return nil
}

// Receive returns the channel of client messages.
func (mt *MockTransport) Receive() <-chan *protocol.Message {
	return mt.in
}

// Done is closed once the transport closes.
func (mt *MockTransport) Done() <-chan struct{} {
	return mt.done
}

// Close closes the transport. It is safe to call more than once.
func (mt *MockTransport) Close() error {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	if !mt.closed {
		mt.closed = true
		close(mt.done)
		mt.cond.Broadcast()
	}
	return nil
}

// Closed reports whether Close was called.
func (mt *MockTransport) Closed() bool {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return mt.closed
}

// Deliver simulates the client sending msg.
func (mt *MockTransport) Deliver(msg *protocol.Message) {
	mt.in <- msg
}

// SetError makes Send fail with err until ClearError.
func (mt *MockTransport) SetError(err error) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.errorToSend = err
}

// ClearError clears any error set with SetError.
func (mt *MockTransport) ClearError() {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.errorToSend = nil
}

// Sent returns a copy of all messages sent so far.
func (mt *MockTransport) Sent() []*protocol.Message {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	out := make([]*protocol.Message, len(mt.sent))
	copy(out, mt.sent)
	return out
}

// SentCount returns the number of sent messages.
func (mt *MockTransport) SentCount() int {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return len(mt.sent)
}

// WaitFor blocks until the server has sent a message with ref, or timeout
// elapses. It returns nil on timeout.
func (mt *MockTransport) WaitFor(ref string, timeout time.Duration) *protocol.Message {
	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		mt.mu.Lock()
		mt.cond.Broadcast()
		mt.mu.Unlock()
	})
	defer timer.Stop()

	mt.mu.Lock()
	defer mt.mu.Unlock()
	for {
		for _, msg := range mt.sent {
			if msg.Ref == ref {
				return msg
			}
		}
		if mt.closed || !time.Now().Before(deadline) {
			return nil
		}
		mt.cond.Wait()
	}
}
