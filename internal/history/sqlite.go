// ABOUTME: SQLite implementation of the history Persister using modernc.org/sqlite
// ABOUTME: Serializes the chat collection under a fixed key in a kv table

package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Fixed keys in the kv table. The whole collection lives under one
// record so a single write commits the full view.
const (
	kvKeyChats = "saved_chats"
	kvKeyOwner = "owner"
)

// SQLiteStore implements Persister using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite persister at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "history-store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("history store initialized", "path", path)
	return s, nil
}

// createSchema creates the kv table if it doesn't exist.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveChats serializes the full collection under the fixed chats key.
func (s *SQLiteStore) SaveChats(chats []SavedChat) error {
	data, err := json.Marshal(chats)
	if err != nil {
		return fmt.Errorf("serializing chats: %w", err)
	}
	return s.put(kvKeyChats, string(data))
}

// LoadChats returns the persisted collection, or nil when none exists.
func (s *SQLiteStore) LoadChats() ([]SavedChat, error) {
	value, ok, err := s.get(kvKeyChats)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var chats []SavedChat
	if err := json.Unmarshal([]byte(value), &chats); err != nil {
		return nil, fmt.Errorf("deserializing chats: %w", err)
	}
	return chats, nil
}

// SaveOwner records the identity owning the collection.
func (s *SQLiteStore) SaveOwner(userID string) error {
	return s.put(kvKeyOwner, userID)
}

// LoadOwner returns the recorded owner, or "" when none is recorded.
func (s *SQLiteStore) LoadOwner() (string, error) {
	value, ok, err := s.get(kvKeyOwner)
	if err != nil || !ok {
		return "", err
	}
	return value, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) put(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) get(key string) (value string, ok bool, err error) {
	err = s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", key, err)
	}
	return value, true, nil
}
