// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Opens the database, enables WAL, and creates the schema on startup

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed. The path ":memory:" keeps
// everything in a single in-memory connection.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every pooled connection to ":memory:" would see its own empty database
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS agents (
			id            TEXT PRIMARY KEY,
			owner_id      TEXT NOT NULL,
			name          TEXT NOT NULL,
			system_prompt TEXT NOT NULL,
			model         TEXT,
			temperature   REAL NOT NULL DEFAULT 0.7,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_agents_owner ON agents(owner_id);

		CREATE TABLE IF NOT EXISTS chatbot_configs (
			id          TEXT PRIMARY KEY,
			owner_id    TEXT NOT NULL,
			agent_id    TEXT NOT NULL,
			config_json TEXT NOT NULL,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_chatbot_configs_owner ON chatbot_configs(owner_id);

		CREATE TABLE IF NOT EXISTS demos (
			id          TEXT PRIMARY KEY,
			owner_id    TEXT NOT NULL,
			config_json TEXT NOT NULL,
			usage_limit INTEGER NOT NULL DEFAULT 0,
			used_count  INTEGER NOT NULL DEFAULT 0,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL,

			CHECK (used_count >= 0)
		);

		CREATE INDEX IF NOT EXISTS idx_demos_owner ON demos(owner_id);

		CREATE TABLE IF NOT EXISTS usage_limits (
			connection_id TEXT PRIMARY KEY,
			enabled       INTEGER NOT NULL DEFAULT 0,
			usage_limit   INTEGER NOT NULL,
			period_days   INTEGER NOT NULL,
			overage       INTEGER NOT NULL DEFAULT 0,
			used_count    INTEGER NOT NULL DEFAULT 0,
			period_start  TEXT NOT NULL,
			updated_at    TEXT NOT NULL,

			CHECK (period_days IN (30, 90, 365))
		);

		CREATE TABLE IF NOT EXISTS usage_records (
			id            TEXT PRIMARY KEY,
			connection_id TEXT NOT NULL,
			count         INTEGER NOT NULL,
			overage       INTEGER NOT NULL DEFAULT 0,
			created_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_usage_records_connection
			ON usage_records(connection_id, created_at);

		CREATE TABLE IF NOT EXISTS tickets (
			id          TEXT PRIMARY KEY,
			owner_id    TEXT NOT NULL,
			subject     TEXT NOT NULL,
			description TEXT NOT NULL,
			category    TEXT NOT NULL,
			status      TEXT NOT NULL,
			priority    TEXT NOT NULL,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL,
			resolved_at TEXT,

			CHECK (status IN ('open', 'in_progress', 'resolved', 'closed')),
			CHECK (priority IN ('low', 'medium', 'high', 'urgent')),
			CHECK (category IN ('billing', 'technical', 'agent', 'general'))
		);

		CREATE INDEX IF NOT EXISTS idx_tickets_owner ON tickets(owner_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);

		CREATE TABLE IF NOT EXISTS ticket_replies (
			id         TEXT PRIMARY KEY,
			ticket_id  TEXT NOT NULL,
			author     TEXT NOT NULL,
			body       TEXT NOT NULL,
			staff      INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			FOREIGN KEY (ticket_id) REFERENCES tickets(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_ticket_replies_ticket ON ticket_replies(ticket_id, created_at);

		CREATE TABLE IF NOT EXISTS api_keys (
			id           TEXT PRIMARY KEY,
			owner_id     TEXT NOT NULL,
			name         TEXT NOT NULL,
			prefix       TEXT NOT NULL UNIQUE,
			hash         BLOB NOT NULL,
			created_at   TEXT NOT NULL,
			last_used_at TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_api_keys_owner ON api_keys(owner_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE or PRIMARY KEY constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}

// isForeignKeyViolation checks if the error is a SQLite FOREIGN KEY constraint violation
func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// nullString maps "" to SQL NULL
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// timeLayout is fixed width so TEXT columns sort chronologically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatTime renders a timestamp for storage
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime is the inverse of formatTime
func parseTime(field, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s: %w", field, err)
	}
	return t, nil
}

// parseNullTime parses an optional timestamp column
func parseNullTime(field string, value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	t, err := parseTime(field, value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// requireAffected maps a zero-row UPDATE/DELETE to ErrNotFound
func requireAffected(result sql.Result, op string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: getting rows affected: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Ensure SQLiteStore implements the Store interface.
var _ Store = (*SQLiteStore)(nil)
