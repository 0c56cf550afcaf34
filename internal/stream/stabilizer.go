// ABOUTME: Converts the raw, possibly duplicated/partial message feed into a stable transcript
// ABOUTME: Dedupes by message id, merges tool-call deltas, never reorders emitted entries

package stream

// StableMessage is one entry of the stabilized transcript.
type StableMessage struct {
	ID            string
	Role          Role
	Content       string
	SequenceIndex int
}

// Stabilizer accumulates raw deliveries into an append-only ordered
// sequence. Insertion order equals conversation order; no two entries
// share an id. One Stabilizer serves one thread session.
type Stabilizer struct {
	messages     []StableMessage
	index        map[string]int      // message id -> position in messages
	pendingTools map[string]struct{} // tool call ids awaiting a result
}

// NewStabilizer creates an empty stabilizer.
func NewStabilizer() *Stabilizer {
	return &Stabilizer{
		index:        make(map[string]int),
		pendingTools: make(map[string]struct{}),
	}
}

// Apply folds one raw delivery into the transcript.
//
// A delivery for a known id updates that entry in place: deltas append
// to the content, full snapshots replace it (so duplicate deliveries
// collapse to one entry). A delivery for a new id appends an entry with
// the next sequence index.
func (s *Stabilizer) Apply(m RawMessage) {
	if m.ID == "" {
		return
	}

	if i, ok := s.index[m.ID]; ok {
		if m.Delta {
			s.messages[i].Content += m.Content
		} else {
			s.messages[i].Content = m.Content
		}
	} else {
		s.index[m.ID] = len(s.messages)
		s.messages = append(s.messages, StableMessage{
			ID:            m.ID,
			Role:          m.Role,
			Content:       m.Content,
			SequenceIndex: len(s.messages),
		})
	}

	switch m.Role {
	case RoleToolCall:
		if !m.Delta {
			// A full snapshot marks the call as issued and awaiting result.
			s.pendingTools[m.ID] = struct{}{}
		} else if _, ok := s.pendingTools[m.ID]; !ok {
			s.pendingTools[m.ID] = struct{}{}
		}
	case RoleToolResult:
		if m.CallID != "" {
			delete(s.pendingTools, m.CallID)
		}
	}
}

// Messages returns the stabilized transcript. The returned slice is a
// copy; already-emitted entries are identical across calls for the same
// logical state.
func (s *Stabilizer) Messages() []StableMessage {
	out := make([]StableMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of stabilized entries.
func (s *Stabilizer) Len() int {
	return len(s.messages)
}

// Last returns the most recent entry, if any.
func (s *Stabilizer) Last() (StableMessage, bool) {
	if len(s.messages) == 0 {
		return StableMessage{}, false
	}
	return s.messages[len(s.messages)-1], true
}

// WaitingForUser reports whether the conversation is at rest: the last
// stabilized entry is an agent message and no tool call is awaiting its
// result.
func (s *Stabilizer) WaitingForUser() bool {
	last, ok := s.Last()
	if !ok {
		return false
	}
	return last.Role == RoleAgent && len(s.pendingTools) == 0
}
