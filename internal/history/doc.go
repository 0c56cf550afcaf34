// Package history provides the bounded, persisted registry of chat
// thread metadata shown in navigation.
//
// # Store
//
// The Store keeps at most MaxChats SavedChat records, sorted descending
// by update time. Thread IDs are unique: upserting an existing thread
// updates it in place. Every mutation persists the full collection
// synchronously before it is considered committed; a persistence failure
// is logged and the in-memory view stays authoritative for the process
// lifetime.
//
//	store, _ := history.New(persister, logger)
//	store.Upsert("thread-1", "hello **world**", "")
//	chats := store.List()
//
// # Ownership
//
// The collection belongs to exactly one authenticated identity at a
// time. SetOwner records the identity; detecting a different owner (or
// logout via Clear) wipes the collection so chats never leak across
// identities.
//
// # Titles
//
// Upsert derives a title when none is given explicitly: the message
// preview is stripped of markdown markup and truncated to 100
// characters; with no preview a dated placeholder is used.
//
// # Persistence
//
// SQLiteStore persists the serialized collection under a fixed key in a
// kv table, giving single-record durability with SQLite's crash safety.
package history
