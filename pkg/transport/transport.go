// Package transport carries stepform protocol messages between the server
// and browsers. WebSocket is the only mechanism; the message encoding is
// negotiated per connection through the WebSocket subprotocol.
package transport

import (
	"errors"
	"sync"
	"time"

	"github.com/gabrielmiguelok/stepform/pkg/protocol"
)

// Common transport errors.
var (
	ErrNotConnected     = errors.New("transport not connected")
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendTimeout      = errors.New("send timeout")
)

// Config holds transport configuration.
type Config struct {
	// ReadTimeout is the maximum time to wait for the next client message.
	// Clients send heartbeats well within it.
	ReadTimeout time.Duration

	// WriteTimeout bounds a single write, and how long Send waits for
	// buffer space.
	WriteTimeout time.Duration

	// PingInterval is how often the server pings the client.
	PingInterval time.Duration

	// MaxMessageSize is the maximum client message size in bytes
	MaxMessageSize int64

	// SendBufferSize is the size of the send channel buffer
	SendBufferSize int

	// ReceiveBufferSize is the size of the receive channel buffer
	ReceiveBufferSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		PingInterval:      30 * time.Second,
		MaxMessageSize:    64 * 1024,
		SendBufferSize:    256,
		ReceiveBufferSize: 256,
	}
}

func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = d.ReadTimeout
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = d.WriteTimeout
	}
	if out.PingInterval <= 0 {
		out.PingInterval = d.PingInterval
	}
	if out.MaxMessageSize <= 0 {
		out.MaxMessageSize = d.MaxMessageSize
	}
	if out.SendBufferSize <= 0 {
		out.SendBufferSize = d.SendBufferSize
	}
	if out.ReceiveBufferSize <= 0 {
		out.ReceiveBufferSize = d.ReceiveBufferSize
	}
	return &out
}

// base holds the channels shared by the transport loops.
type base struct {
	config    *Config
	connected bool
	sendCh    chan *protocol.Message
	recvCh    chan *protocol.Message
	closeCh   chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
}

func newBase(config *Config) *base {
	config = config.withDefaults()
	return &base{
		config:  config,
		sendCh:  make(chan *protocol.Message, config.SendBufferSize),
		recvCh:  make(chan *protocol.Message, config.ReceiveBufferSize),
		closeCh: make(chan struct{}),
	}
}

// IsConnected returns the connection status.
func (t *base) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

func (t *base) setConnected(connected bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = connected
}

// Receive returns the channel of client messages.
func (t *base) Receive() <-chan *protocol.Message {
	return t.recvCh
}

// Done is closed when the transport closes.
func (t *base) Done() <-chan struct{} {
	return t.closeCh
}

// closeBase reports whether this call closed the transport.
func (t *base) closeBase() bool {
	closed := false
	t.closeOnce.Do(func() {
		t.setConnected(false)
		close(t.closeCh)
		closed = true
	})
	return closed
}

// Closer is a transport the Manager can close.
type Closer interface {
	Close() error
}

// Manager tracks open transports so they can be closed together at
// shutdown.
type Manager struct {
	transports map[string]Closer
	mu         sync.RWMutex
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{
		transports: make(map[string]Closer),
	}
}

// Add registers a transport.
func (m *Manager) Add(id string, t Closer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transports[id] = t
}

// Remove unregisters a transport.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.transports, id)
}

// Count returns the number of transports.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.transports)
}

// CloseAll closes and unregisters every transport.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.transports
	m.transports = make(map[string]Closer)
	m.mu.Unlock()

	for _, t := range all {
		t.Close()
	}
}
