// Package persistence saves and restores widget conversations.
//
// An Adapter is bound to one widget id and writes a widget.Snapshot under
// the key "chatbot_conversation_{widgetId}" of a SnapshotStore. Snapshots
// are valid for one hour; Load discards and deletes anything older.
//
// Save failures are logged and swallowed: a conversation keeps working in
// memory even when its backing store is unavailable.
//
// Two SnapshotStore implementations are provided:
//
//   - BoltStore: a single bbolt file with one bucket, JSON values
//   - MemoryStore: a map, for tests and the preview TUI
//
// An Adapter created with Disabled set (the iframe preview environment)
// never touches its store.
package persistence
