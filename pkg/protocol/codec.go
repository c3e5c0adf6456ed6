package protocol

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Common codec errors.
var (
	ErrInvalidMessage = errors.New("invalid message format")
	ErrUnknownCodec   = errors.New("unknown codec type")
)

// WebSocket subprotocols, one per codec.
const (
	SubprotocolJSON    = "stepform.json"
	SubprotocolMsgPack = "stepform.msgpack"
)

// Codec handles message encoding/decoding.
type Codec interface {
	// Encode serializes a message to bytes.
	Encode(msg *Message) ([]byte, error)

	// Decode deserializes bytes to a message.
	Decode(data []byte) (*Message, error)

	// Name returns the codec name.
	Name() string

	// Subprotocol returns the WebSocket subprotocol selecting the codec.
	Subprotocol() string

	// Binary reports whether frames are binary rather than text.
	Binary() bool
}

// JSONCodec implements Codec using JSON encoding. It is the default; the
// browser runtime speaks it without extra code.
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec.
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Encode encodes a message to JSON.
func (c *JSONCodec) Encode(msg *Message) ([]byte, error) {
	return json.Marshal(msg)
}

// Decode decodes JSON to a message.
func (c *JSONCodec) Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.Join(ErrInvalidMessage, err)
	}
	return &msg, nil
}

// Name returns "json".
func (c *JSONCodec) Name() string {
	return "json"
}

// Subprotocol returns SubprotocolJSON.
func (c *JSONCodec) Subprotocol() string {
	return SubprotocolJSON
}

// Binary returns false.
func (c *JSONCodec) Binary() bool {
	return false
}

// MsgPackCodec implements Codec using MessagePack encoding.
type MsgPackCodec struct{}

// NewMsgPackCodec creates a new MsgPack codec.
func NewMsgPackCodec() *MsgPackCodec {
	return &MsgPackCodec{}
}

// Encode encodes a message to MsgPack.
func (c *MsgPackCodec) Encode(msg *Message) ([]byte, error) {
	return msgpack.Marshal(msg)
}

// Decode decodes MsgPack to a message.
func (c *MsgPackCodec) Decode(data []byte) (*Message, error) {
	var msg Message
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return nil, errors.Join(ErrInvalidMessage, err)
	}
	return &msg, nil
}

// Name returns "msgpack".
func (c *MsgPackCodec) Name() string {
	return "msgpack"
}

// Subprotocol returns SubprotocolMsgPack.
func (c *MsgPackCodec) Subprotocol() string {
	return SubprotocolMsgPack
}

// Binary returns true.
func (c *MsgPackCodec) Binary() bool {
	return true
}

// CodecRegistry manages available codecs.
type CodecRegistry struct {
	codecs   map[string]Codec
	byProto  map[string]Codec
	fallback Codec
	mu       sync.RWMutex
}

// NewCodecRegistry creates a new codec registry with the JSON and
// MessagePack codecs, JSON being the default.
func NewCodecRegistry() *CodecRegistry {
	r := &CodecRegistry{
		codecs:  make(map[string]Codec),
		byProto: make(map[string]Codec),
	}

	jsonCodec := NewJSONCodec()
	r.Register(jsonCodec)
	r.Register(NewMsgPackCodec())
	r.fallback = jsonCodec

	return r
}

// Register adds a codec to the registry.
func (r *CodecRegistry) Register(codec Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[codec.Name()] = codec
	r.byProto[codec.Subprotocol()] = codec
}

// Get retrieves a codec by name.
func (r *CodecRegistry) Get(name string) (Codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[name]
	return c, ok
}

// ForSubprotocol returns the codec negotiated by subprotocol, or the
// default codec when none was negotiated.
func (r *CodecRegistry) ForSubprotocol(proto string) Codec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.byProto[proto]; ok {
		return c
	}
	return r.fallback
}

// Subprotocols lists the registered subprotocols, the default first.
func (r *CodecRegistry) Subprotocols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var rest []string
	for p := range r.byProto {
		if p != r.fallback.Subprotocol() {
			rest = append(rest, p)
		}
	}
	sort.Strings(rest)
	return append([]string{r.fallback.Subprotocol()}, rest...)
}

// Default returns the default codec.
func (r *CodecRegistry) Default() Codec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallback
}

// SetDefault sets the default codec.
func (r *CodecRegistry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.codecs[name]
	if !ok {
		return ErrUnknownCodec
	}
	r.fallback = c
	return nil
}

// DefaultCodecRegistry is the global codec registry.
var DefaultCodecRegistry = NewCodecRegistry()

// Encode encodes a message using the default codec.
func Encode(msg *Message) ([]byte, error) {
	return DefaultCodecRegistry.Default().Encode(msg)
}

// Decode decodes data using the default codec.
func Decode(data []byte) (*Message, error) {
	return DefaultCodecRegistry.Default().Decode(data)
}
