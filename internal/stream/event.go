// ABOUTME: Raw stream event types and error value normalization
// ABOUTME: Resolves the string-vs-structured error shape once at the boundary

package stream

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/skeinworks/skein/internal/identity"
)

// Role identifies who produced a message.
type Role string

// Message roles.
const (
	RoleUser       Role = "user"
	RoleAgent      Role = "agent"
	RoleToolCall   Role = "tool_call"
	RoleToolResult Role = "tool_result"
)

// RawMessage is one raw delivery from the stream. The same logical
// message (same ID) may be delivered multiple times; tool-call output
// may arrive as partial deltas (Delta=true) that append to the entry.
type RawMessage struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Delta   bool   `json:"delta,omitempty"`
	// CallID links a tool result back to its tool call.
	CallID string `json:"call_id,omitempty"`
}

// EventKind discriminates stream events.
type EventKind int

// Stream event kinds.
const (
	KindThreadCreated EventKind = iota
	KindMessage
	KindError
	KindDone
)

// Event is one occurrence on the raw stream.
type Event struct {
	Kind     EventKind
	ThreadID string     // set for KindThreadCreated
	Message  RawMessage // set for KindMessage
	Err      ErrorValue // set for KindError
}

// ErrorKind tags the original shape of a stream error value.
type ErrorKind int

// Error value shapes.
const (
	ErrorPlainText ErrorKind = iota
	ErrorStructured
)

// ErrorValue is a stream error resolved to plain text. Downstream logic
// (error ring, circuit breaker) only ever sees Text.
type ErrorValue struct {
	Kind ErrorKind
	Text string
}

// NormalizeError resolves a raw error payload into an ErrorValue.
// Structured payloads ({"error": ...}, {"message": ...}, {"detail": ...})
// contribute their text field; anything else is taken verbatim.
func NormalizeError(raw []byte) ErrorValue {
	trimmed := strings.TrimSpace(string(raw))

	var obj struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, text := range []string{obj.Error, obj.Message, obj.Detail} {
			if text != "" {
				return ErrorValue{Kind: ErrorStructured, Text: text}
			}
		}
	}

	// JSON string payloads unquote to their contents.
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ErrorValue{Kind: ErrorPlainText, Text: s}
	}

	return ErrorValue{Kind: ErrorPlainText, Text: trimmed}
}

// OpenOptions identify the stream to open or resume.
type OpenOptions struct {
	Endpoint     string
	AssistantKey string
	ThreadID     string // empty means create a new thread
	Identity     identity.Context
}

// Stream is a live connection to the agent backend.
type Stream interface {
	// Events returns the raw event feed. Nothing is emitted after Stop.
	Events() <-chan Event
	// Submit sends user input into the stream.
	Submit(ctx context.Context, input string) error
	// Stop cancels in-flight activity and retires the stream.
	Stop()
}

// Opener creates streams. The session controller depends on this
// interface, never on a concrete transport.
type Opener interface {
	Open(ctx context.Context, opts OpenOptions) (Stream, error)
}
