package protocol

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gabrielmiguelok/stepform/pkg/js"
)

func TestDOMEvent_FromClientJSON(t *testing.T) {
	data := []byte(`{"t":0,"topic":"c1","event":"dom","payload":{"target":"12","type":"keydown","key":"Enter","values":{"9":"Ana","14":""}}}`)

	msg, err := NewJSONCodec().Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ev, err := msg.DOMEvent()
	if err != nil {
		t.Fatalf("dom event: %v", err)
	}

	want := DOMEvent{
		Target: "12",
		Type:   "keydown",
		Key:    "Enter",
		Values: map[string]string{"9": "Ana", "14": ""},
	}
	if diff := cmp.Diff(want, ev); diff != "" {
		t.Errorf("dom event mismatch (-want +got):\n%s", diff)
	}
}

func TestDOMEvent_Invalid(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
	}{
		{"wrong event", LifecycleMessage("c1", "page-load", "/")},
		{"missing target", NewMessage(MsgEvent, "c1", EventDOM).WithPayload(map[string]any{"type": "click"})},
		{"bad values", NewMessage(MsgEvent, "c1", EventDOM).WithPayload(map[string]any{
			"target": "1", "type": "click", "values": []any{"x"},
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.msg.DOMEvent(); !errors.Is(err, ErrInvalidMessage) {
				t.Errorf("expected ErrInvalidMessage, got %v", err)
			}
		})
	}
}

func TestLifecycleEvent(t *testing.T) {
	ev, err := LifecycleMessage("c1", "after-swap", "/servicios").LifecycleEvent()
	if err != nil {
		t.Fatalf("lifecycle: %v", err)
	}
	if ev.Type != "after-swap" || ev.Path != "/servicios" {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestPatch_CodecRoundTrip(t *testing.T) {
	ops := js.Commands{
		js.JS.AddClass("3", "active"),
		js.JS.SetProp("5", "value", 50.0),
		js.JS.Listen("8", "keydown", js.PreventDefault(), js.Keys("Enter")),
	}

	for _, codec := range []Codec{NewJSONCodec(), NewMsgPackCodec()} {
		t.Run(codec.Name(), func(t *testing.T) {
			data, err := codec.Encode(PatchMessage("c1", ops))
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			msg, err := codec.Decode(data)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if msg.Type != MsgPatch || msg.Topic != "c1" {
				t.Errorf("unexpected header %+v", msg)
			}
			p, err := msg.Patch()
			if err != nil {
				t.Fatalf("patch: %v", err)
			}
			if diff := cmp.Diff(ops.Ops(), p.Ops.Ops()); diff != "" {
				t.Errorf("ops mismatch (-want +got):\n%s", diff)
			}
			if p.Ops[1].Value != 50.0 {
				t.Errorf("expected value 50, got %v", p.Ops[1].Value)
			}
		})
	}
}

func TestDOMEventMessage_MsgPack(t *testing.T) {
	codec := NewMsgPackCodec()
	in := DOMEvent{Target: "4", Type: "click", Values: map[string]string{"9": "Ana"}}

	data, err := codec.Encode(DOMEventMessage("c1", in))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	msg, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	out, err := msg.DOMEvent()
	if err != nil {
		t.Fatalf("dom event: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("dom event mismatch (-want +got):\n%s", diff)
	}
}

func TestCodecRegistry(t *testing.T) {
	r := NewCodecRegistry()

	if r.ForSubprotocol("").Name() != "json" {
		t.Error("expected json by default")
	}
	if r.ForSubprotocol(SubprotocolMsgPack).Name() != "msgpack" {
		t.Error("expected msgpack for its subprotocol")
	}
	if diff := cmp.Diff([]string{SubprotocolJSON, SubprotocolMsgPack}, r.Subprotocols()); diff != "" {
		t.Errorf("subprotocols mismatch (-want +got):\n%s", diff)
	}

	if err := r.SetDefault("msgpack"); err != nil {
		t.Fatalf("set default: %v", err)
	}
	if r.Subprotocols()[0] != SubprotocolMsgPack {
		t.Error("expected default subprotocol first")
	}
	if err := r.SetDefault("phoenix"); !errors.Is(err, ErrUnknownCodec) {
		t.Errorf("expected ErrUnknownCodec, got %v", err)
	}
}

func TestCodec_DecodeGarbage(t *testing.T) {
	for _, codec := range []Codec{NewJSONCodec(), NewMsgPackCodec()} {
		if _, err := codec.Decode([]byte{0xc1, '{'}); !errors.Is(err, ErrInvalidMessage) {
			t.Errorf("%s: expected ErrInvalidMessage, got %v", codec.Name(), err)
		}
	}
}

func TestRouter(t *testing.T) {
	r := NewRouter()
	var order []string
	r.Use(func(next MessageHandler) MessageHandler {
		return MessageHandlerFunc(func(ctx context.Context, msg *Message) (*Message, error) {
			order = append(order, "outer")
			return next.HandleMessage(ctx, msg)
		})
	})
	r.Use(RecoveryMiddleware(nil))
	r.OnFunc(EventHeartbeat, func(ctx context.Context, msg *Message) (*Message, error) {
		order = append(order, "handler")
		return HeartbeatMessage(msg.Topic), nil
	})
	r.OnFunc(EventDOM, func(ctx context.Context, msg *Message) (*Message, error) {
		panic("boom")
	})

	reply, err := r.HandleMessage(context.Background(), HeartbeatMessage("c1"))
	if err != nil || reply == nil || !reply.IsHeartbeat() {
		t.Fatalf("unexpected heartbeat result %v, %v", reply, err)
	}
	if diff := cmp.Diff([]string{"outer", "handler"}, order); diff != "" {
		t.Errorf("middleware order mismatch (-want +got):\n%s", diff)
	}

	if _, err := r.HandleMessage(context.Background(), DOMEventMessage("c1", DOMEvent{Target: "1", Type: "click"})); !errors.Is(err, ErrHandlerPanic) {
		t.Errorf("expected ErrHandlerPanic, got %v", err)
	}
	if _, err := r.HandleMessage(context.Background(), NewMessage(MsgEvent, "c1", "nope")); !errors.Is(err, ErrHandlerNotFound) {
		t.Errorf("expected ErrHandlerNotFound, got %v", err)
	}

	want := RouterStats{Received: 3, Processed: 1, Errored: 2}
	if diff := cmp.Diff(want, r.Stats()); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestMessageType_String(t *testing.T) {
	if MsgPatch.String() != "patch" || MessageType(99).String() != "unknown" {
		t.Error("unexpected message type names")
	}
}
