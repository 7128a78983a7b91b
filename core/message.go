package core

import (
	"reflect"

	"github.com/google/uuid"
)

// Message is the unit of data flowing along workflow edges. Each message
// carries a unique ID for correlation, an arbitrary payload and optional
// metadata. Messages delivered to multiple targets (fan-out) are cloned so
// concurrent handlers cannot observe each other's mutations.
type Message struct {
	ID       string         `json:"id"`
	Payload  any            `json:"payload"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewMessage creates a message wrapping the given payload.
func NewMessage(payload any) Message {
	return Message{
		ID:      NewID(),
		Payload: payload,
	}
}

// NewMessageWithMetadata creates a message carrying both a payload and metadata.
func NewMessageWithMetadata(payload any, metadata map[string]any) Message {
	m := NewMessage(payload)
	m.Metadata = metadata
	return m
}

// PayloadType reports the dynamic type of the payload, or nil for a nil payload.
// The runner uses it to check compatibility against a target executor's InputType.
func (m Message) PayloadType() reflect.Type {
	if m.Payload == nil {
		return nil
	}
	return reflect.TypeOf(m.Payload)
}

// Clone returns an independent copy of the message with a fresh ID. Maps,
// slices and byte slices in the payload and metadata are copied recursively;
// other payload kinds are copied by value.
func (m Message) Clone() Message {
	c := Message{
		ID:      NewID(),
		Payload: cloneValue(m.Payload),
	}
	if m.Metadata != nil {
		md := make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			md[k] = cloneValue(v)
		}
		c.Metadata = md
	}
	return c
}

// cloneValue deep-copies the container types JSON-ish payloads are built from.
// Struct payloads are shared by value semantics at the top level; pointer
// payloads remain shared, which callers must account for.
func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		c := make(map[string]any, len(val))
		for k, e := range val {
			c[k] = cloneValue(e)
		}
		return c
	case []any:
		c := make([]any, len(val))
		for i, e := range val {
			c[i] = cloneValue(e)
		}
		return c
	case []byte:
		c := make([]byte, len(val))
		copy(c, val)
		return c
	case []string:
		c := make([]string, len(val))
		copy(c, val)
		return c
	case []Message:
		c := make([]Message, len(val))
		for i, e := range val {
			c[i] = e.Clone()
		}
		return c
	default:
		return v
	}
}

// NewID generates a new unique identifier for runs, messages and events.
//
// This function creates a UUID-based unique identifier that can be used
// for correlation throughout the framework.
//
// Returns a string representation of a new UUID.
func NewID() string { return uuid.NewString() }
