package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/gabrielmiguelok/stepform/pkg/logging"
	"github.com/gabrielmiguelok/stepform/pkg/protocol"
)

// WebSocket security errors
var (
	ErrOriginNotAllowed = errors.New("origin not allowed")
)

// WebSocketConfig configures WebSocket security settings.
type WebSocketConfig struct {
	// AllowedOrigins is a list of allowed origins for WebSocket connections.
	// If empty and InsecureDevMode is false, only same-origin connections are allowed.
	AllowedOrigins []string

	// InsecureDevMode disables origin validation (ONLY for development).
	InsecureDevMode bool
}

// DefaultWebSocketConfig returns secure default configuration.
func DefaultWebSocketConfig() *WebSocketConfig {
	return &WebSocketConfig{}
}

// isOriginAllowed checks if the origin may open a WebSocket to requestHost.
func (c *WebSocketConfig) isOriginAllowed(origin string, requestHost string) bool {
	if c != nil && c.InsecureDevMode {
		return true
	}

	// Empty origin = not a browser (allowed)
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if originURL.Host == requestHost {
		return true
	}

	if c != nil {
		for _, allowed := range c.AllowedOrigins {
			if allowed == "*" || allowed == origin {
				return true
			}
			if allowedURL, err := url.Parse(allowed); err == nil && allowedURL.Host != "" {
				if allowedURL.Host == originURL.Host {
					return true
				}
			}
		}
	}

	return false
}

// originPatterns converts AllowedOrigins to the host patterns the
// websocket library checks on accept.
func (c *WebSocketConfig) originPatterns() []string {
	if c == nil {
		return nil
	}
	patterns := make([]string, 0, len(c.AllowedOrigins))
	for _, allowed := range c.AllowedOrigins {
		if u, err := url.Parse(allowed); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, allowed)
	}
	return patterns
}

// WebSocketTransport is the server side of one browser WebSocket.
type WebSocketTransport struct {
	*base
	id    string
	conn  *websocket.Conn
	codec protocol.Codec
	log   logging.Logger
	mu    sync.Mutex
}

// Accept validates the request origin, upgrades the connection and starts
// the read, write and ping loops. The encoding follows the negotiated
// subprotocol, falling back to the registry default.
func Accept(w http.ResponseWriter, r *http.Request, config *Config, wsConfig *WebSocketConfig, codecs *protocol.CodecRegistry, logger logging.Logger) (*WebSocketTransport, error) {
	if wsConfig == nil {
		wsConfig = DefaultWebSocketConfig()
	}
	if codecs == nil {
		codecs = protocol.DefaultCodecRegistry
	}

	origin := r.Header.Get("Origin")
	if !wsConfig.isOriginAllowed(origin, r.Host) {
		http.Error(w, "Forbidden: Origin not allowed", http.StatusForbidden)
		return nil, ErrOriginNotAllowed
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       codecs.Subprotocols(),
		InsecureSkipVerify: wsConfig.InsecureDevMode,
		OriginPatterns:     wsConfig.originPatterns(),
	})
	if err != nil {
		return nil, fmt.Errorf("accept websocket: %w", err)
	}

	t := &WebSocketTransport{
		base:  newBase(config),
		id:    uuid.NewString(),
		conn:  conn,
		codec: codecs.ForSubprotocol(conn.Subprotocol()),
	}
	t.log = logging.OrNop(logger).With(
		logging.Component("transport"),
		logging.Conn(t.id),
		logging.String("codec", t.codec.Name()),
	)
	t.setConnected(true)
	conn.SetReadLimit(t.config.MaxMessageSize)

	go t.readLoop()
	go t.writeLoop()
	go t.pingLoop()

	return t, nil
}

// ID returns the connection id assigned on accept.
func (t *WebSocketTransport) ID() string {
	return t.id
}

// Codec returns the negotiated codec.
func (t *WebSocketTransport) Codec() protocol.Codec {
	return t.codec
}

// Send queues a message for the client.
func (t *WebSocketTransport) Send(msg *protocol.Message) error {
	if !t.IsConnected() {
		return ErrNotConnected
	}

	timer := time.NewTimer(t.config.WriteTimeout)
	defer timer.Stop()

	select {
	case t.sendCh <- msg:
		return nil
	case <-t.closeCh:
		return ErrConnectionClosed
	case <-timer.C:
		return ErrSendTimeout
	}
}

// Close closes the WebSocket connection. It is safe to call more than
// once.
func (t *WebSocketTransport) Close() error {
	if !t.closeBase() {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.Close(websocket.StatusNormalClosure, "closing")
}

func (t *WebSocketTransport) readLoop() {
	defer t.Close()

	for {
		ctx, cancel := context.WithTimeout(context.Background(), t.config.ReadTimeout)
		_, data, err := t.conn.Read(ctx)
		cancel()

		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				t.log.Debug("client closed")
			default:
				select {
				case <-t.closeCh:
				default:
					t.log.Debug("read failed", logging.Err(err))
				}
			}
			return
		}

		msg, err := t.codec.Decode(data)
		if err != nil {
			t.log.Warn("dropping invalid message", logging.Err(err), logging.Int("bytes", len(data)))
			continue
		}

		select {
		case t.recvCh <- msg:
		case <-t.closeCh:
			return
		}
	}
}

func (t *WebSocketTransport) writeLoop() {
	typ := websocket.MessageText
	if t.codec.Binary() {
		typ = websocket.MessageBinary
	}

	for {
		select {
		case msg := <-t.sendCh:
			data, err := t.codec.Encode(msg)
			if err != nil {
				t.log.Error("encode failed", logging.String("event", msg.Event), logging.Err(err))
				continue
			}

			ctx, cancel := context.WithTimeout(context.Background(), t.config.WriteTimeout)
			err = t.conn.Write(ctx, typ, data)
			cancel()

			if err != nil {
				t.log.Debug("write failed", logging.Err(err))
				t.Close()
				return
			}

		case <-t.closeCh:
			return
		}
	}
}

// pingLoop pings the client periodically; a missed pong closes the
// transport.
func (t *WebSocketTransport) pingLoop() {
	ticker := time.NewTicker(t.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), t.config.WriteTimeout)
			err := t.conn.Ping(ctx)
			cancel()
			if err != nil {
				t.log.Debug("ping failed", logging.Err(err))
				t.Close()
				return
			}
		case <-t.closeCh:
			return
		}
	}
}

// WebSocketHandler upgrades requests and hands each transport to OnAccept,
// which runs for the lifetime of the connection.
type WebSocketHandler struct {
	Config   *Config
	Security *WebSocketConfig
	Codecs   *protocol.CodecRegistry
	Logger   logging.Logger
	OnAccept func(ctx context.Context, t *WebSocketTransport)
}

// ServeHTTP handles HTTP requests and upgrades to WebSocket.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t, err := Accept(w, r, h.Config, h.Security, h.Codecs, h.Logger)
	if err != nil {
		logging.OrNop(h.Logger).Warn("websocket upgrade failed",
			logging.String("origin", r.Header.Get("Origin")),
			logging.Err(err),
		)
		return
	}
	defer t.Close()

	if h.OnAccept != nil {
		h.OnAccept(r.Context(), t)
	}
}
