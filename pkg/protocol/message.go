// Package protocol defines the wire protocol between the stepform client
// runtime and the live server.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gabrielmiguelok/stepform/pkg/js"
)

// MessageType identifies the type of protocol message.
type MessageType uint8

const (
	// MsgEvent carries a client event: a forwarded DOM event or a page
	// lifecycle signal.
	MsgEvent MessageType = iota
	// MsgPatch carries DOM commands for the client to apply.
	MsgPatch
	// MsgReply answers a client request.
	MsgReply
	// MsgError reports a server-side failure.
	MsgError
	// MsgHeartbeat keeps the connection alive.
	MsgHeartbeat
)

// String returns a string representation of the message type.
func (mt MessageType) String() string {
	switch mt {
	case MsgEvent:
		return "event"
	case MsgPatch:
		return "patch"
	case MsgReply:
		return "reply"
	case MsgError:
		return "error"
	case MsgHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// Event names.
const (
	EventDOM       = "dom"
	EventLifecycle = "lifecycle"
	EventPatch     = "patch"
	EventError     = "error"
	EventHeartbeat = "heartbeat"
	EventReply     = "reply"
)

// Message represents a protocol message exchanged between client and server.
type Message struct {
	// Type identifies what kind of message this is
	Type MessageType `json:"t" msgpack:"t"`

	// Ref is a correlation ID for request/response matching
	Ref string `json:"ref,omitempty" msgpack:"ref,omitempty"`

	// Topic is the connection id the message belongs to
	Topic string `json:"topic" msgpack:"topic"`

	// Event is the specific event name (e.g., "dom", "lifecycle")
	Event string `json:"event,omitempty" msgpack:"event,omitempty"`

	// Payload contains the message data
	Payload map[string]any `json:"payload,omitempty" msgpack:"payload,omitempty"`

	// Timestamp when the message was created
	Timestamp int64 `json:"ts,omitempty" msgpack:"ts,omitempty"`
}

// NewMessage creates a new message with the given parameters.
func NewMessage(msgType MessageType, topic, event string) *Message {
	return &Message{
		Type:      msgType,
		Topic:     topic,
		Event:     event,
		Payload:   make(map[string]any),
		Timestamp: time.Now().UnixMilli(),
	}
}

// WithRef adds a reference ID to the message.
func (m *Message) WithRef(ref string) *Message {
	m.Ref = ref
	return m
}

// WithPayload sets the message payload.
func (m *Message) WithPayload(payload map[string]any) *Message {
	m.Payload = payload
	return m
}

// GetPayloadString retrieves a string value from the payload.
func (m *Message) GetPayloadString(key string) string {
	if m.Payload == nil {
		return ""
	}
	if v, ok := m.Payload[key].(string); ok {
		return v
	}
	return ""
}

// DOMEvent is a browser event forwarded by the client runtime.
type DOMEvent struct {
	// Target is the key of the element the event fired on.
	Target string `json:"target"`
	// Type is the DOM event type, e.g. "click".
	Type string `json:"type"`
	// Key is KeyboardEvent.key for keyboard events.
	Key string `json:"key,omitempty"`
	// Values maps element keys to the current values of the page's form
	// controls.
	Values map[string]string `json:"values,omitempty"`
}

// LifecycleEvent is a page navigation signal.
type LifecycleEvent struct {
	Type string `json:"type"`
	Path string `json:"path,omitempty"`
}

// Patch is a batch of DOM commands.
type Patch struct {
	Ops js.Commands `json:"ops"`
}

// DOMEvent decodes the payload of a "dom" event message.
func (m *Message) DOMEvent() (DOMEvent, error) {
	var ev DOMEvent
	if err := m.decodePayload(EventDOM, &ev); err != nil {
		return DOMEvent{}, err
	}
	if ev.Target == "" || ev.Type == "" {
		return DOMEvent{}, fmt.Errorf("%w: dom event needs target and type", ErrInvalidMessage)
	}
	return ev, nil
}

// LifecycleEvent decodes the payload of a "lifecycle" event message.
func (m *Message) LifecycleEvent() (LifecycleEvent, error) {
	var ev LifecycleEvent
	if err := m.decodePayload(EventLifecycle, &ev); err != nil {
		return LifecycleEvent{}, err
	}
	if ev.Type == "" {
		return LifecycleEvent{}, fmt.Errorf("%w: lifecycle event needs type", ErrInvalidMessage)
	}
	return ev, nil
}

// Patch decodes the payload of a "patch" message.
func (m *Message) Patch() (Patch, error) {
	var p Patch
	err := m.decodePayload(EventPatch, &p)
	return p, err
}

// decodePayload converts the generic payload map into dst. Payloads arrive
// as generic maps from either codec, so they are normalized through JSON.
func (m *Message) decodePayload(event string, dst any) error {
	if m.Event != event {
		return fmt.Errorf("%w: expected %q event, got %q", ErrInvalidMessage, event, m.Event)
	}
	data, err := json.Marshal(m.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return nil
}

// IsHeartbeat returns true if this is a heartbeat message.
func (m *Message) IsHeartbeat() bool {
	return m.Type == MsgHeartbeat
}

// Constructors

// DOMEventMessage creates a client DOM event message.
func DOMEventMessage(topic string, ev DOMEvent) *Message {
	payload := map[string]any{
		"target": ev.Target,
		"type":   ev.Type,
	}
	if ev.Key != "" {
		payload["key"] = ev.Key
	}
	if len(ev.Values) > 0 {
		values := make(map[string]any, len(ev.Values))
		for k, v := range ev.Values {
			values[k] = v
		}
		payload["values"] = values
	}
	return NewMessage(MsgEvent, topic, EventDOM).WithPayload(payload)
}

// LifecycleMessage creates a page lifecycle message.
func LifecycleMessage(topic, typ, path string) *Message {
	return NewMessage(MsgEvent, topic, EventLifecycle).WithPayload(map[string]any{
		"type": typ,
		"path": path,
	})
}

// PatchMessage creates a patch message carrying ops.
func PatchMessage(topic string, ops js.Commands) *Message {
	return NewMessage(MsgPatch, topic, EventPatch).WithPayload(map[string]any{
		"ops": ops,
	})
}

// ErrorMessage creates an error message.
func ErrorMessage(topic, reason string) *Message {
	return NewMessage(MsgError, topic, EventError).WithPayload(map[string]any{
		"reason": reason,
	})
}

// HeartbeatMessage creates a heartbeat message.
func HeartbeatMessage(topic string) *Message {
	return NewMessage(MsgHeartbeat, topic, EventHeartbeat)
}

// ReplyMessage creates a reply to ref.
func ReplyMessage(ref, topic, status string) *Message {
	return NewMessage(MsgReply, topic, EventReply).
		WithRef(ref).
		WithPayload(map[string]any{"status": status})
}
