// ABOUTME: SQLite persistence for per-connection usage limits and their history
// ABOUTME: One limit row per connection plus an append-only, deletable record log

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetUsageLimit retrieves the usage limit configured for a connection.
func (s *SQLiteStore) GetUsageLimit(ctx context.Context, connectionID string) (*UsageLimit, error) {
	query := `
		SELECT connection_id, enabled, usage_limit, period_days, overage, used_count, period_start, updated_at
		FROM usage_limits
		WHERE connection_id = ?
	`

	var limit UsageLimit
	var enabled, overage int
	var periodStart, updatedAt string

	err := s.db.QueryRowContext(ctx, query, connectionID).Scan(
		&limit.ConnectionID,
		&enabled,
		&limit.Limit,
		&limit.PeriodDays,
		&overage,
		&limit.UsedCount,
		&periodStart,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying usage limit: %w", err)
	}

	limit.Enabled = enabled == 1
	limit.Overage = overage == 1
	if limit.PeriodStart, err = parseTime("period_start", periodStart); err != nil {
		return nil, err
	}
	if limit.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return nil, err
	}
	return &limit, nil
}

// SaveUsageLimit inserts or replaces a connection's usage limit.
func (s *SQLiteStore) SaveUsageLimit(ctx context.Context, limit *UsageLimit) error {
	query := `
		INSERT INTO usage_limits (
			connection_id, enabled, usage_limit, period_days, overage, used_count, period_start, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(connection_id) DO UPDATE SET
			enabled = excluded.enabled,
			usage_limit = excluded.usage_limit,
			period_days = excluded.period_days,
			overage = excluded.overage,
			used_count = excluded.used_count,
			period_start = excluded.period_start,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		limit.ConnectionID,
		boolToInt(limit.Enabled),
		limit.Limit,
		limit.PeriodDays,
		boolToInt(limit.Overage),
		limit.UsedCount,
		formatTime(limit.PeriodStart),
		formatTime(limit.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving usage limit: %w", err)
	}

	s.logger.Debug("saved usage limit",
		"connection_id", limit.ConnectionID,
		"enabled", limit.Enabled,
		"limit", limit.Limit,
		"used", limit.UsedCount,
	)
	return nil
}

// AddUsageRecord appends an entry to a connection's usage history.
func (s *SQLiteStore) AddUsageRecord(ctx context.Context, record *UsageRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_records (id, connection_id, count, overage, created_at) VALUES (?, ?, ?, ?, ?)`,
		record.ID,
		record.ConnectionID,
		record.Count,
		boolToInt(record.Overage),
		formatTime(record.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting usage record: %w", err)
	}
	return nil
}

// ListUsageRecords returns a connection's usage history, newest first.
// A non-positive limit returns every record.
func (s *SQLiteStore) ListUsageRecords(ctx context.Context, connectionID string, limit int) ([]*UsageRecord, error) {
	query := `
		SELECT id, connection_id, count, overage, created_at
		FROM usage_records
		WHERE connection_id = ?
		ORDER BY created_at DESC
	`
	args := []any{connectionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying usage records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*UsageRecord
	for rows.Next() {
		var record UsageRecord
		var overage int
		var createdAt string
		if err := rows.Scan(&record.ID, &record.ConnectionID, &record.Count, &overage, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning usage record: %w", err)
		}
		record.Overage = overage == 1
		if record.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage records: %w", err)
	}
	return records, nil
}

// GetUsageRecord retrieves a single history entry.
func (s *SQLiteStore) GetUsageRecord(ctx context.Context, id string) (*UsageRecord, error) {
	var record UsageRecord
	var overage int
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, connection_id, count, overage, created_at FROM usage_records WHERE id = ?`, id,
	).Scan(&record.ID, &record.ConnectionID, &record.Count, &overage, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying usage record: %w", err)
	}
	record.Overage = overage == 1
	if record.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return nil, err
	}
	return &record, nil
}

// DeleteUsageRecord removes a single history entry.
func (s *SQLiteStore) DeleteUsageRecord(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM usage_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting usage record: %w", err)
	}
	return requireAffected(result, "deleting usage record")
}

// ClearUsageRecords removes a connection's entire history and returns the number of rows removed.
func (s *SQLiteStore) ClearUsageRecords(ctx context.Context, connectionID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM usage_records WHERE connection_id = ?`, connectionID)
	if err != nil {
		return 0, fmt.Errorf("clearing usage records: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return n, nil
}
