// ABOUTME: SQLite persistence for hashed dashboard API keys
// ABOUTME: Keys are looked up by their unique display prefix and verified by the auth layer

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const apiKeyColumns = `id, owner_id, name, prefix, hash, created_at, last_used_at`

// CreateAPIKey stores a new API key.
func (s *SQLiteStore) CreateAPIKey(ctx context.Context, key *APIKey) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_keys (`+apiKeyColumns+`) VALUES (?, ?, ?, ?, ?, ?, NULL)`,
		key.ID,
		key.OwnerID,
		key.Name,
		key.Prefix,
		key.Hash,
		formatTime(key.CreatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting api key: %w", err)
	}

	s.logger.Debug("created api key", "id", key.ID, "prefix", key.Prefix)
	return nil
}

// GetAPIKeyByPrefix retrieves an API key by its display prefix.
func (s *SQLiteStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) (*APIKey, error) {
	key, err := scanAPIKey(s.db.QueryRowContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE prefix = ?`, prefix))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return key, err
}

// ListAPIKeys returns an owner's API keys, newest first.
func (s *SQLiteStore) ListAPIKeys(ctx context.Context, ownerID string) ([]*APIKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying api keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []*APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating api keys: %w", err)
	}
	return keys, nil
}

// DeleteAPIKey removes an API key.
func (s *SQLiteStore) DeleteAPIKey(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting api key: %w", err)
	}
	return requireAffected(result, "deleting api key")
}

// TouchAPIKey records that a key was just used.
func (s *SQLiteStore) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = ? WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("touching api key: %w", err)
	}
	return requireAffected(result, "touching api key")
}

func scanAPIKey(row rowScanner) (*APIKey, error) {
	var key APIKey
	var createdAt string
	var lastUsedAt sql.NullString

	err := row.Scan(&key.ID, &key.OwnerID, &key.Name, &key.Prefix, &key.Hash, &createdAt, &lastUsedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning api key: %w", err)
	}

	if key.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return nil, err
	}
	if key.LastUsedAt, err = parseNullTime("last_used_at", lastUsedAt); err != nil {
		return nil, err
	}
	return &key, nil
}
