package live

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gabrielmiguelok/stepform/pkg/dom"
	"github.com/gabrielmiguelok/stepform/pkg/lifecycle"
	"github.com/gabrielmiguelok/stepform/pkg/logging"
	"github.com/gabrielmiguelok/stepform/pkg/protocol"
)

// Connection errors.
var (
	ErrNoPage      = errors.New("live: no page loaded")
	ErrUnknownNode = errors.New("live: unknown node key")
	ErrRateLimited = errors.New("live: too many events")
)

// Transport carries protocol messages to and from one client.
type Transport interface {
	Send(msg *protocol.Message) error
	Receive() <-chan *protocol.Message
	Done() <-chan struct{}
	Close() error
}

// Renderer renders the page served at path, the same HTML the HTTP layer
// annotates for the browser.
type Renderer interface {
	Render(path string) ([]byte, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(path string) ([]byte, error)

// Render implements Renderer.
func (f RendererFunc) Render(path string) ([]byte, error) {
	return f(path)
}

// BindFunc returns the factory building the page controller for doc.
type BindFunc func(doc *dom.Document, sched Scheduler) lifecycle.Factory

// Limiter budgets the DOM events of each connection, keyed by its id.
type Limiter interface {
	Allow(key string) bool
	Forget(key string)
}

// Observer receives connection events. Implementations must be safe for
// concurrent use.
type Observer interface {
	ConnOpened()
	ConnClosed()
	MessageHandled(event string, d time.Duration, err error)
	PatchFlushed(ops int)
	Panic()
}

type nopObserver struct{}

func (nopObserver) ConnOpened()                                {}
func (nopObserver) ConnClosed()                                {}
func (nopObserver) MessageHandled(string, time.Duration, error) {}
func (nopObserver) PatchFlushed(int)                           {}
func (nopObserver) Panic()                                     {}

// Config configures a connection.
type Config struct {
	Renderer      Renderer
	Bind          BindFunc
	FrameInterval time.Duration
	Logger        logging.Logger
	Observer      Observer

	// Events is optional. DOM events over budget fail with ErrRateLimited.
	Events Limiter
}

// Conn is one live connection: a transport, the mirror of the page the
// client shows, and the lifecycle binder driving its controller.
type Conn struct {
	id        string
	transport Transport
	cfg       Config
	loop      *Loop
	router    *protocol.Router
	log       logging.Logger

	// Owned by the loop goroutine.
	doc    *dom.Document
	binder *lifecycle.Binder
}

// NewConn creates a connection with the given id.
func NewConn(id string, t Transport, cfg Config) *Conn {
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	log := logging.OrNop(cfg.Logger).With(logging.Component("live"), logging.Conn(id))

	c := &Conn{
		id:        id,
		transport: t,
		cfg:       cfg,
		loop:      NewLoop(cfg.FrameInterval),
		log:       log,
	}

	c.router = protocol.NewRouter()
	c.router.Use(protocol.LoggingMiddleware(log))
	c.router.Use(protocol.RecoveryMiddleware(func(r any) {
		cfg.Observer.Panic()
		log.Error("handler panic", logging.Any("panic", r))
	}))
	c.router.OnFunc(protocol.EventLifecycle, c.handleLifecycle)
	c.router.OnFunc(protocol.EventDOM, c.handleDOM)
	c.router.OnFunc(protocol.EventHeartbeat, func(ctx context.Context, msg *protocol.Message) (*protocol.Message, error) {
		return protocol.HeartbeatMessage(c.id), nil
	})

	c.loop.AfterTurn(c.flush)
	return c
}

// ID returns the connection id.
func (c *Conn) ID() string {
	return c.id
}

// Serve pumps client messages onto the loop until the transport closes or
// ctx is done, then tears the page down.
func (c *Conn) Serve(ctx context.Context) error {
	c.cfg.Observer.ConnOpened()
	c.log.Info("connection opened")
	go c.loop.Run()

	defer func() {
		c.loop.Do(c.teardown)
		c.loop.Stop()
		c.transport.Close()
		c.cfg.Observer.ConnClosed()
		c.log.Info("connection closed")
	}()

	for {
		select {
		case msg, ok := <-c.transport.Receive():
			if !ok {
				return nil
			}
			c.loop.Post(func() { c.handle(ctx, msg) })
		case <-c.transport.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Conn) handle(ctx context.Context, msg *protocol.Message) {
	start := time.Now()
	reply, err := c.router.HandleMessage(ctx, msg)
	c.cfg.Observer.MessageHandled(msg.Event, time.Since(start), err)

	if err != nil && msg.Ref != "" {
		c.send(protocol.ErrorMessage(c.id, err.Error()).WithRef(msg.Ref))
		return
	}
	if reply != nil {
		c.send(reply.WithRef(msg.Ref))
	} else if msg.Ref != "" {
		c.flush()
		c.send(protocol.ReplyMessage(msg.Ref, c.id, "ok"))
	}
}

func (c *Conn) handleLifecycle(ctx context.Context, msg *protocol.Message) (*protocol.Message, error) {
	ev, err := msg.LifecycleEvent()
	if err != nil {
		return nil, err
	}
	if !lifecycle.IsEvent(ev.Type) {
		return nil, fmt.Errorf("%w: unknown lifecycle event %q", protocol.ErrInvalidMessage, ev.Type)
	}

	switch ev.Type {
	case lifecycle.EventPageLoad, lifecycle.EventAfterSwap:
		if err := c.load(ev.Path); err != nil {
			return nil, err
		}
	case lifecycle.EventBeforeSwap:
		if c.doc == nil {
			return nil, ErrNoPage
		}
	}

	c.doc.Dispatch(&dom.Event{Type: ev.Type, Detail: map[string]any{"path": ev.Path}})
	return nil, nil
}

// load renders path into the page mirror. The first load creates the
// document and its binder; later loads swap the content in place so
// document-level listeners survive.
func (c *Conn) load(path string) error {
	html, err := c.cfg.Renderer.Render(path)
	if err != nil {
		return fmt.Errorf("render %s: %w", path, err)
	}
	next, err := dom.Parse(bytes.NewReader(html))
	if err != nil {
		return err
	}

	if c.doc == nil {
		c.doc = next
		c.binder = lifecycle.NewBinder(c.doc, c.cfg.Bind(c.doc, c.loop), c.log)
		c.binder.Attach()
		return nil
	}
	c.doc.Swap(next)
	return nil
}

func (c *Conn) handleDOM(ctx context.Context, msg *protocol.Message) (*protocol.Message, error) {
	if c.doc == nil {
		return nil, ErrNoPage
	}
	if c.cfg.Events != nil && !c.cfg.Events.Allow(c.id) {
		return nil, ErrRateLimited
	}
	ev, err := msg.DOMEvent()
	if err != nil {
		return nil, err
	}

	c.doc.SetValues(ev.Values)
	el := c.doc.ElementByKey(ev.Target)
	if el == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, ev.Target)
	}
	el.Dispatch(&dom.Event{Type: ev.Type, Key: ev.Key})
	return nil, nil
}

// flush sends the patches recorded during the last loop turn.
func (c *Conn) flush() {
	if c.doc == nil || c.doc.PendingPatches() == 0 {
		return
	}
	ops := c.doc.TakePatches()
	c.send(protocol.PatchMessage(c.id, ops))
	c.cfg.Observer.PatchFlushed(len(ops))
}

func (c *Conn) send(msg *protocol.Message) {
	if err := c.transport.Send(msg); err != nil {
		c.log.Warn("send failed", logging.String("event", msg.Event), logging.Err(err))
	}
}

func (c *Conn) teardown() {
	if c.binder != nil {
		c.binder.Detach()
		c.binder = nil
	}
	if c.cfg.Events != nil {
		c.cfg.Events.Forget(c.id)
	}
}
