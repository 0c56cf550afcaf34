// ABOUTME: Tests for the message stabilizer
// ABOUTME: Verifies dedupe-by-id, delta merging, order stability, and the waiting predicate

package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStabilizer_AppendsInArrivalOrder(t *testing.T) {
	s := NewStabilizer()
	s.Apply(RawMessage{ID: "m1", Role: RoleUser, Content: "hi"})
	s.Apply(RawMessage{ID: "m2", Role: RoleAgent, Content: "hello"})

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, 0, msgs[0].SequenceIndex)
	assert.Equal(t, "m2", msgs[1].ID)
	assert.Equal(t, 1, msgs[1].SequenceIndex)
}

func TestStabilizer_DuplicateDeliveriesCollapse(t *testing.T) {
	s := NewStabilizer()
	s.Apply(RawMessage{ID: "m1", Role: RoleAgent, Content: "hello"})
	s.Apply(RawMessage{ID: "m1", Role: RoleAgent, Content: "hello"})
	s.Apply(RawMessage{ID: "m1", Role: RoleAgent, Content: "hello again"})

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello again", msgs[0].Content)
}

func TestStabilizer_DeltasMergeIntoOneEntry(t *testing.T) {
	s := NewStabilizer()
	s.Apply(RawMessage{ID: "tc1", Role: RoleToolCall, Content: "ls", Delta: true})
	s.Apply(RawMessage{ID: "tc1", Role: RoleToolCall, Content: " -la", Delta: true})
	s.Apply(RawMessage{ID: "tc1", Role: RoleToolCall, Content: " /tmp", Delta: true})

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "ls -la /tmp", msgs[0].Content)
	assert.Equal(t, RoleToolCall, msgs[0].Role)
}

func TestStabilizer_StableAcrossReads(t *testing.T) {
	s := NewStabilizer()
	s.Apply(RawMessage{ID: "m1", Role: RoleUser, Content: "a"})
	s.Apply(RawMessage{ID: "m2", Role: RoleAgent, Content: "b"})

	first := s.Messages()
	second := s.Messages()
	assert.Equal(t, first, second)

	// Re-delivering known messages must not reorder anything.
	s.Apply(RawMessage{ID: "m1", Role: RoleUser, Content: "a"})
	third := s.Messages()
	assert.Equal(t, first, third)
}

func TestStabilizer_WaitingForUser(t *testing.T) {
	s := NewStabilizer()
	assert.False(t, s.WaitingForUser(), "empty transcript is not waiting")

	s.Apply(RawMessage{ID: "m1", Role: RoleUser, Content: "hi"})
	assert.False(t, s.WaitingForUser(), "user message last means agent turn")

	s.Apply(RawMessage{ID: "m2", Role: RoleAgent, Content: "hello"})
	assert.True(t, s.WaitingForUser())
}

func TestStabilizer_PendingToolBlocksWaiting(t *testing.T) {
	s := NewStabilizer()
	s.Apply(RawMessage{ID: "m1", Role: RoleUser, Content: "list files"})
	s.Apply(RawMessage{ID: "tc1", Role: RoleToolCall, Content: "ls"})
	s.Apply(RawMessage{ID: "m2", Role: RoleAgent, Content: "working on it"})

	assert.False(t, s.WaitingForUser(), "tool call has no result yet")

	s.Apply(RawMessage{ID: "tr1", Role: RoleToolResult, CallID: "tc1", Content: "a.txt"})
	s.Apply(RawMessage{ID: "m3", Role: RoleAgent, Content: "done: a.txt"})
	assert.True(t, s.WaitingForUser())
}

func TestStabilizer_IgnoresEmptyID(t *testing.T) {
	s := NewStabilizer()
	s.Apply(RawMessage{Role: RoleAgent, Content: "no id"})
	assert.Equal(t, 0, s.Len())
}

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantKind ErrorKind
		wantText string
	}{
		{"structured error field", `{"error": "timeout"}`, ErrorStructured, "timeout"},
		{"structured message field", `{"message": "boom"}`, ErrorStructured, "boom"},
		{"structured detail field", `{"detail": "denied"}`, ErrorStructured, "denied"},
		{"json string", `"plain failure"`, ErrorPlainText, "plain failure"},
		{"bare text", `connection reset`, ErrorPlainText, "connection reset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeError([]byte(tt.raw))
			assert.Equal(t, tt.wantKind, got.Kind)
			assert.Equal(t, tt.wantText, got.Text)
		})
	}
}
