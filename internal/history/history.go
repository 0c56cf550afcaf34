// ABOUTME: Bounded, persisted registry of chat thread metadata
// ABOUTME: Upsert/rename/remove/clear with MaxChats cap and updatedAt ordering

package history

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// MaxChats is the maximum number of saved chats retained. Mutations that
// push the collection past the cap evict the least-recently-updated chats.
const MaxChats = 50

// maxTitleLen caps derived titles.
const maxTitleLen = 100

// SavedChat is one thread's navigation metadata.
type SavedChat struct {
	ThreadID            string    `json:"thread_id"`
	Title               string    `json:"title"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
	FirstMessagePreview string    `json:"first_message_preview,omitempty"`
}

// Persister is the durable storage the Store writes through to.
type Persister interface {
	SaveChats(chats []SavedChat) error
	LoadChats() ([]SavedChat, error)
	SaveOwner(userID string) error
	LoadOwner() (string, error)
	Close() error
}

// Store is the process-wide chat history registry. All mutations persist
// synchronously; persistence failures are logged but never roll back the
// in-memory state.
type Store struct {
	mu        sync.RWMutex
	chats     []SavedChat
	owner     string
	persister Persister
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Store backed by the given persister, loading any
// previously persisted collection and owner.
func New(p Persister, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		persister: p,
		logger:    logger.With("component", "history"),
		now:       time.Now,
	}

	chats, err := p.LoadChats()
	if err != nil {
		return nil, fmt.Errorf("loading saved chats: %w", err)
	}
	owner, err := p.LoadOwner()
	if err != nil {
		return nil, fmt.Errorf("loading owner: %w", err)
	}

	s.chats = chats
	s.owner = owner
	s.sortAndTruncateLocked()
	return s, nil
}

// SetOwner records the authenticated identity owning this collection.
// A change of owner wipes the collection first so chats never leak
// across identities.
func (s *Store) SetOwner(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.owner == userID {
		return
	}

	if s.owner != "" && len(s.chats) > 0 {
		s.logger.Info("owner changed, clearing chat history",
			"previous_owner", s.owner,
			"chats_dropped", len(s.chats))
		s.chats = nil
		s.persistLocked()
	}

	s.owner = userID
	if err := s.persister.SaveOwner(userID); err != nil {
		s.logger.Error("failed to persist owner", "error", err)
	}
}

// Upsert creates or updates the chat record for threadID and bumps its
// update time. An explicit title always wins; a title derived from the
// preview is set at most once, alongside FirstMessagePreview. The
// collection is re-sorted and truncated to MaxChats afterwards.
func (s *Store) Upsert(threadID, messagePreview, explicitTitle string) {
	if threadID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	for i := range s.chats {
		if s.chats[i].ThreadID != threadID {
			continue
		}
		if explicitTitle != "" {
			s.chats[i].Title = explicitTitle
		} else if s.chats[i].FirstMessagePreview == "" && messagePreview != "" {
			// The first preview names the chat; later messages never
			// rename it, so explicit titles survive.
			if title := deriveTitle("", messagePreview, now); title != "" {
				s.chats[i].Title = title
			}
		}
		if s.chats[i].FirstMessagePreview == "" && messagePreview != "" {
			s.chats[i].FirstMessagePreview = messagePreview
		}
		s.chats[i].UpdatedAt = now
		s.sortAndTruncateLocked()
		s.persistLocked()
		return
	}

	title := deriveTitle(explicitTitle, messagePreview, now)
	if title == "" {
		title = placeholderTitle(now)
	}
	s.chats = append(s.chats, SavedChat{
		ThreadID:            threadID,
		Title:               title,
		CreatedAt:           now,
		UpdatedAt:           now,
		FirstMessagePreview: messagePreview,
	})
	s.sortAndTruncateLocked()
	s.persistLocked()
}

// Rename sets an explicit title for an existing chat. Unknown thread IDs
// are a silent no-op.
func (s *Store) Rename(threadID, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.chats {
		if s.chats[i].ThreadID != threadID {
			continue
		}
		s.chats[i].Title = title
		s.chats[i].UpdatedAt = s.now()
		s.sortAndTruncateLocked()
		s.persistLocked()
		return
	}
}

// Remove deletes the chat record for threadID. Navigating away from a
// removed open thread is the caller's responsibility.
func (s *Store) Remove(threadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.chats {
		if s.chats[i].ThreadID == threadID {
			s.chats = append(s.chats[:i], s.chats[i+1:]...)
			s.persistLocked()
			return
		}
	}
}

// Clear wipes the entire collection. Called on logout.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chats = nil
	s.persistLocked()
}

// List returns the saved chats, most recently updated first.
func (s *Store) List() []SavedChat {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SavedChat, len(s.chats))
	copy(out, s.chats)
	return out
}

// Get returns the saved chat for threadID, if present.
func (s *Store) Get(threadID string) (SavedChat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.chats {
		if c.ThreadID == threadID {
			return c, true
		}
	}
	return SavedChat{}, false
}

// sortAndTruncateLocked re-sorts by UpdatedAt descending and drops the
// oldest-updated chats beyond MaxChats. Must be called with mu held.
func (s *Store) sortAndTruncateLocked() {
	sort.SliceStable(s.chats, func(i, j int) bool {
		return s.chats[i].UpdatedAt.After(s.chats[j].UpdatedAt)
	})
	if len(s.chats) > MaxChats {
		s.chats = s.chats[:MaxChats]
	}
}

// persistLocked writes the collection through to durable storage.
// Best-effort: a failure is logged and the in-memory view stays
// authoritative. Must be called with mu held.
func (s *Store) persistLocked() {
	chats := make([]SavedChat, len(s.chats))
	copy(chats, s.chats)
	if err := s.persister.SaveChats(chats); err != nil {
		s.logger.Error("failed to persist chat history", "error", err,
			"chats", len(chats))
	}
}

// deriveTitle applies the title cascade: explicit title, then stripped
// and truncated preview. Returns "" when neither yields a title.
func deriveTitle(explicit, preview string, _ time.Time) string {
	if explicit != "" {
		return explicit
	}
	if preview == "" {
		return ""
	}
	stripped := StripMarkup(preview)
	if stripped == "" {
		return ""
	}
	return truncate(stripped, maxTitleLen)
}

// placeholderTitle is used for chats created before any message arrived.
func placeholderTitle(now time.Time) string {
	return "Chat from " + now.Format("Jan 2, 2006 15:04")
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
