// Package store provides persistent storage for chatdesk using SQLite.
//
// # Architecture
//
// The store is split into small interfaces, one per concern:
//
//   - AgentStore: prompt-configured agents
//   - WidgetStore: chatbot widget configurations and demos
//   - UsageStore: per-connection usage limits and history
//   - TicketStore: support tickets and replies
//   - APIKeyStore: hashed dashboard API keys
//
// Store composes them. SQLiteStore implements all of them in a single
// struct; MockStore is the in-memory equivalent for tests.
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Timestamps are stored as fixed-width UTC text so that ORDER BY on the
// column is chronological.
//
// # Error Handling
//
//   - ErrNotFound: requested entity does not exist, or an update/delete matched no rows
//   - ErrDuplicate: an entity with the same id (or API key prefix) already exists
//
// # Testing
//
// Use NewMockStore() for unit tests, or NewSQLiteStore(":memory:") for
// a throwaway real database.
package store
