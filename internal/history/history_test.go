// ABOUTME: Tests for the chat history store
// ABOUTME: Verifies the cap, ordering, upsert-in-place, titles, and ownership

package history

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memPersister keeps everything in memory; failSaves makes SaveChats fail.
type memPersister struct {
	chats     []SavedChat
	owner     string
	failSaves bool
	saveCalls int
}

func (m *memPersister) SaveChats(chats []SavedChat) error {
	m.saveCalls++
	if m.failSaves {
		return errors.New("disk full")
	}
	m.chats = chats
	return nil
}

func (m *memPersister) LoadChats() ([]SavedChat, error) { return m.chats, nil }
func (m *memPersister) SaveOwner(userID string) error   { m.owner = userID; return nil }
func (m *memPersister) LoadOwner() (string, error)      { return m.owner, nil }
func (m *memPersister) Close() error                    { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestStore returns a store with a deterministic clock that advances
// one second per observation.
func newTestStore(t *testing.T, p Persister) *Store {
	t.Helper()
	if p == nil {
		p = &memPersister{}
	}
	s, err := New(p, testLogger())
	require.NoError(t, err)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return s
}

func TestStore_UpsertCreatesAndUpdatesInPlace(t *testing.T) {
	s := newTestStore(t, nil)

	s.Upsert("t1", "first message", "")
	s.Upsert("t1", "second message", "")

	chats := s.List()
	require.Len(t, chats, 1)
	assert.Equal(t, "t1", chats[0].ThreadID)
	assert.True(t, chats[0].UpdatedAt.After(chats[0].CreatedAt),
		"updatedAt should come from the second call")
	assert.Equal(t, "first message", chats[0].FirstMessagePreview)
}

func TestStore_NeverExceedsMaxChats(t *testing.T) {
	s := newTestStore(t, nil)

	for i := 0; i < MaxChats+1; i++ {
		s.Upsert(fmt.Sprintf("t%03d", i), "hello", "")
	}

	chats := s.List()
	require.Len(t, chats, MaxChats)

	// The least-recently-updated chat (t000) was evicted.
	for _, c := range chats {
		assert.NotEqual(t, "t000", c.ThreadID)
	}
}

func TestStore_SortedDescendingByUpdatedAt(t *testing.T) {
	s := newTestStore(t, nil)

	s.Upsert("a", "m", "")
	s.Upsert("b", "m", "")
	s.Upsert("c", "m", "")
	s.Upsert("a", "again", "") // bump a to the top

	chats := s.List()
	require.Len(t, chats, 3)
	assert.Equal(t, "a", chats[0].ThreadID)
	for i := 1; i < len(chats); i++ {
		assert.False(t, chats[i].UpdatedAt.After(chats[i-1].UpdatedAt))
	}
}

func TestStore_TitleDerivation(t *testing.T) {
	t.Run("explicit title wins", func(t *testing.T) {
		s := newTestStore(t, nil)
		s.Upsert("t1", "some preview", "My Chat")
		c, ok := s.Get("t1")
		require.True(t, ok)
		assert.Equal(t, "My Chat", c.Title)
	})

	t.Run("preview is stripped of markup", func(t *testing.T) {
		s := newTestStore(t, nil)
		s.Upsert("t1", "# Hello **world**, check [this](http://example.com)", "")
		c, ok := s.Get("t1")
		require.True(t, ok)
		assert.Equal(t, "Hello world, check this", c.Title)
	})

	t.Run("preview is truncated to 100 characters", func(t *testing.T) {
		s := newTestStore(t, nil)
		long := ""
		for i := 0; i < 30; i++ {
			long += "abcdefghij"
		}
		s.Upsert("t1", long, "")
		c, ok := s.Get("t1")
		require.True(t, ok)
		assert.Equal(t, 100, len([]rune(c.Title)))
	})

	t.Run("dated placeholder without preview", func(t *testing.T) {
		s := newTestStore(t, nil)
		s.Upsert("t1", "", "")
		c, ok := s.Get("t1")
		require.True(t, ok)
		assert.Contains(t, c.Title, "Chat from")
	})

	t.Run("empty preview does not clobber existing title", func(t *testing.T) {
		s := newTestStore(t, nil)
		s.Upsert("t1", "hello there", "")
		s.Upsert("t1", "", "")
		c, ok := s.Get("t1")
		require.True(t, ok)
		assert.Equal(t, "hello there", c.Title)
	})

	t.Run("rename survives later messages", func(t *testing.T) {
		s := newTestStore(t, nil)
		s.Upsert("t1", "first message", "")
		s.Rename("t1", "My Renamed Chat")
		s.Upsert("t1", "a later message", "")
		c, ok := s.Get("t1")
		require.True(t, ok)
		assert.Equal(t, "My Renamed Chat", c.Title)
		assert.Equal(t, "first message", c.FirstMessagePreview)
	})

	t.Run("first preview names the chat exactly once", func(t *testing.T) {
		s := newTestStore(t, nil)
		s.Upsert("t1", "", "")
		s.Upsert("t1", "first message", "")
		s.Upsert("t1", "second message", "")
		c, ok := s.Get("t1")
		require.True(t, ok)
		assert.Equal(t, "first message", c.Title)
		assert.Equal(t, "first message", c.FirstMessagePreview)
	})

	t.Run("explicit title replaces a derived one on update", func(t *testing.T) {
		s := newTestStore(t, nil)
		s.Upsert("t1", "first message", "")
		s.Upsert("t1", "", "Pinned Title")
		c, ok := s.Get("t1")
		require.True(t, ok)
		assert.Equal(t, "Pinned Title", c.Title)
	})
}

func TestStore_Rename(t *testing.T) {
	s := newTestStore(t, nil)

	s.Upsert("t1", "hello", "")
	s.Rename("t1", "Renamed")

	c, ok := s.Get("t1")
	require.True(t, ok)
	assert.Equal(t, "Renamed", c.Title)

	// Unknown thread is a silent no-op.
	s.Rename("missing", "X")
	assert.Len(t, s.List(), 1)
}

func TestStore_Remove(t *testing.T) {
	s := newTestStore(t, nil)

	s.Upsert("t1", "a", "")
	s.Upsert("t2", "b", "")
	s.Remove("t1")

	chats := s.List()
	require.Len(t, chats, 1)
	assert.Equal(t, "t2", chats[0].ThreadID)

	_, ok := s.Get("t1")
	assert.False(t, ok)
}

func TestStore_ClearOnLogout(t *testing.T) {
	s := newTestStore(t, nil)

	for i := 0; i < 10; i++ {
		s.Upsert(fmt.Sprintf("t%d", i), "m", "")
	}
	require.Len(t, s.List(), 10)

	s.Clear()
	assert.Empty(t, s.List())
}

func TestStore_OwnerChangeClears(t *testing.T) {
	p := &memPersister{}
	s := newTestStore(t, p)

	s.SetOwner("alice")
	s.Upsert("t1", "m", "")
	s.Upsert("t2", "m", "")

	// Same owner: nothing happens.
	s.SetOwner("alice")
	assert.Len(t, s.List(), 2)

	// Different owner: collection is wiped.
	s.SetOwner("bob")
	assert.Empty(t, s.List())
	assert.Equal(t, "bob", p.owner)
}

func TestStore_PersistenceFailureKeepsMemoryState(t *testing.T) {
	p := &memPersister{failSaves: true}
	s := newTestStore(t, p)

	s.Upsert("t1", "hello", "")

	// In-memory view stays authoritative despite the failed write.
	chats := s.List()
	require.Len(t, chats, 1)
	assert.Equal(t, "t1", chats[0].ThreadID)
	assert.Positive(t, p.saveCalls)
}

func TestStore_SQLiteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chats.db")

	persister, err := NewSQLiteStore(path)
	require.NoError(t, err)

	s, err := New(persister, testLogger())
	require.NoError(t, err)
	s.SetOwner("alice")
	s.Upsert("t1", "hello world", "")
	s.Upsert("t2", "second chat", "")
	require.NoError(t, persister.Close())

	// Reopen and verify the collection and owner survived.
	persister2, err := NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { persister2.Close() })

	s2, err := New(persister2, testLogger())
	require.NoError(t, err)

	chats := s2.List()
	require.Len(t, chats, 2)
	assert.Equal(t, "t2", chats[0].ThreadID)
	assert.Equal(t, "t1", chats[1].ThreadID)

	// Reopening under a different identity wipes the collection.
	s2.SetOwner("bob")
	assert.Empty(t, s2.List())
}

func TestStripMarkup(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text", "hello world", "hello world"},
		{"bold and italics", "**bold** and *italic*", "bold and italic"},
		{"heading", "# Title here", "Title here"},
		{"link keeps text", "[click me](http://example.com)", "click me"},
		{"inline code", "run `go test` now", "run go test now"},
		{"list markers", "- one\n- two", "one two"},
		{"collapses whitespace", "a\n\nb   c", "a b c"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripMarkup(tt.in))
		})
	}
}
