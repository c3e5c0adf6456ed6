package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gabrielmiguelok/stepform/pkg/logging"
)

// Common handler errors.
var (
	ErrHandlerNotFound = errors.New("handler not found for event")
	ErrHandlerPanic    = errors.New("handler panicked")
)

// MessageHandler processes protocol messages.
type MessageHandler interface {
	// HandleMessage processes a message and returns an optional response.
	HandleMessage(ctx context.Context, msg *Message) (*Message, error)
}

// MessageHandlerFunc is an adapter to allow functions as MessageHandler.
type MessageHandlerFunc func(ctx context.Context, msg *Message) (*Message, error)

// HandleMessage implements MessageHandler.
func (f MessageHandlerFunc) HandleMessage(ctx context.Context, msg *Message) (*Message, error) {
	return f(ctx, msg)
}

// MiddlewareFunc is middleware that wraps message handling.
type MiddlewareFunc func(next MessageHandler) MessageHandler

// RouterStats counts routed messages.
type RouterStats struct {
	Received  int64
	Processed int64
	Errored   int64
}

// Router routes messages to handlers by event name.
type Router struct {
	routes     map[string]MessageHandler
	middleware []MiddlewareFunc
	mu         sync.RWMutex

	received  atomic.Int64
	processed atomic.Int64
	errored   atomic.Int64
}

// NewRouter creates a new event router.
func NewRouter() *Router {
	return &Router{
		routes: make(map[string]MessageHandler),
	}
}

// On registers a handler for an event.
func (r *Router) On(event string, handler MessageHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[event] = handler
}

// OnFunc registers a handler function for an event.
func (r *Router) OnFunc(event string, fn func(ctx context.Context, msg *Message) (*Message, error)) {
	r.On(event, MessageHandlerFunc(fn))
}

// Use adds middleware. Middleware added first runs outermost.
func (r *Router) Use(mw MiddlewareFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw)
}

// HandleMessage implements MessageHandler.
func (r *Router) HandleMessage(ctx context.Context, msg *Message) (*Message, error) {
	r.mu.RLock()
	handler, ok := r.routes[msg.Event]
	middleware := make([]MiddlewareFunc, len(r.middleware))
	copy(middleware, r.middleware)
	r.mu.RUnlock()

	r.received.Add(1)

	if !ok {
		r.errored.Add(1)
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotFound, msg.Event)
	}

	for i := len(middleware) - 1; i >= 0; i-- {
		handler = middleware[i](handler)
	}

	result, err := handler.HandleMessage(ctx, msg)
	if err != nil {
		r.errored.Add(1)
	} else {
		r.processed.Add(1)
	}
	return result, err
}

// Stats returns the router counters.
func (r *Router) Stats() RouterStats {
	return RouterStats{
		Received:  r.received.Load(),
		Processed: r.processed.Load(),
		Errored:   r.errored.Load(),
	}
}

// Common middleware

// LoggingMiddleware logs message handling at debug level and failures at
// warn level.
func LoggingMiddleware(logger logging.Logger) MiddlewareFunc {
	logger = logging.OrNop(logger)
	return func(next MessageHandler) MessageHandler {
		return MessageHandlerFunc(func(ctx context.Context, msg *Message) (*Message, error) {
			start := time.Now()
			result, err := next.HandleMessage(ctx, msg)

			fields := []logging.Field{
				logging.String("type", msg.Type.String()),
				logging.String("event", msg.Event),
				logging.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.Warn("message failed", append(fields, logging.Err(err))...)
			} else {
				logger.Debug("message handled", fields...)
			}
			return result, err
		})
	}
}

// RecoveryMiddleware turns handler panics into ErrHandlerPanic errors.
func RecoveryMiddleware(onPanic func(any)) MiddlewareFunc {
	return func(next MessageHandler) MessageHandler {
		return MessageHandlerFunc(func(ctx context.Context, msg *Message) (result *Message, err error) {
			defer func() {
				if r := recover(); r != nil {
					if onPanic != nil {
						onPanic(r)
					}
					err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
				}
			}()
			return next.HandleMessage(ctx, msg)
		})
	}
}
