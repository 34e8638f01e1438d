// ABOUTME: SQLite persistence for chatbot widget configurations and demos
// ABOUTME: Configs are stored as JSON blobs; demo usage counters are incremented atomically

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/2389/chatdesk/internal/widget"
)

// CreateWidgetConfig stores a new widget configuration.
func (s *SQLiteStore) CreateWidgetConfig(ctx context.Context, cfg *widget.Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding widget config: %w", err)
	}

	query := `
		INSERT INTO chatbot_configs (id, owner_id, agent_id, config_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		cfg.ID,
		cfg.OwnerID,
		cfg.SelectedAgent,
		string(data),
		formatTime(cfg.CreatedAt),
		formatTime(cfg.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting widget config: %w", err)
	}

	s.logger.Debug("created widget config", "id", cfg.ID, "agent_id", cfg.SelectedAgent)
	return nil
}

// GetWidgetConfig retrieves a widget configuration by ID.
func (s *SQLiteStore) GetWidgetConfig(ctx context.Context, id string) (*widget.Config, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT config_json FROM chatbot_configs WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying widget config: %w", err)
	}
	return decodeWidgetConfig(data)
}

// ListWidgetConfigs returns an owner's widget configurations, newest first.
func (s *SQLiteStore) ListWidgetConfigs(ctx context.Context, ownerID string) ([]*widget.Config, error) {
	query := `SELECT config_json FROM chatbot_configs`
	var args []any
	if ownerID != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying widget configs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var configs []*widget.Config
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning widget config: %w", err)
		}
		cfg, err := decodeWidgetConfig(data)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating widget configs: %w", err)
	}
	return configs, nil
}

// UpdateWidgetConfig replaces a widget configuration wholesale.
func (s *SQLiteStore) UpdateWidgetConfig(ctx context.Context, cfg *widget.Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding widget config: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE chatbot_configs SET agent_id = ?, config_json = ?, updated_at = ? WHERE id = ?`,
		cfg.SelectedAgent, string(data), formatTime(cfg.UpdatedAt), cfg.ID,
	)
	if err != nil {
		return fmt.Errorf("updating widget config: %w", err)
	}
	return requireAffected(result, "updating widget config")
}

// DeleteWidgetConfig removes a widget configuration.
func (s *SQLiteStore) DeleteWidgetConfig(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM chatbot_configs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting widget config: %w", err)
	}
	return requireAffected(result, "deleting widget config")
}

func decodeWidgetConfig(data string) (*widget.Config, error) {
	var cfg widget.Config
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		return nil, fmt.Errorf("decoding widget config: %w", err)
	}
	return &cfg, nil
}

const demoColumns = `id, owner_id, config_json, usage_limit, used_count, created_at, updated_at`

// CreateDemo stores a new demo.
func (s *SQLiteStore) CreateDemo(ctx context.Context, demo *widget.Demo) error {
	data, err := json.Marshal(demo.Config)
	if err != nil {
		return fmt.Errorf("encoding demo config: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO demos (`+demoColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		demo.ID,
		demo.OwnerID,
		string(data),
		demo.UsageLimit,
		demo.UsedCount,
		formatTime(demo.CreatedAt),
		formatTime(demo.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting demo: %w", err)
	}

	s.logger.Debug("created demo", "id", demo.ID, "usage_limit", demo.UsageLimit)
	return nil
}

// GetDemo retrieves a demo by ID.
func (s *SQLiteStore) GetDemo(ctx context.Context, id string) (*widget.Demo, error) {
	demo, err := scanDemo(s.db.QueryRowContext(ctx, `SELECT `+demoColumns+` FROM demos WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return demo, err
}

// ListDemos returns an owner's demos, newest first.
func (s *SQLiteStore) ListDemos(ctx context.Context, ownerID string) ([]*widget.Demo, error) {
	query := `SELECT ` + demoColumns + ` FROM demos`
	var args []any
	if ownerID != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying demos: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var demos []*widget.Demo
	for rows.Next() {
		demo, err := scanDemo(rows)
		if err != nil {
			return nil, err
		}
		demos = append(demos, demo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating demos: %w", err)
	}
	return demos, nil
}

// UpdateDemo replaces a demo's config and limit. The used count is never
// lowered here; it only moves through IncrementDemoUsage.
func (s *SQLiteStore) UpdateDemo(ctx context.Context, demo *widget.Demo) error {
	data, err := json.Marshal(demo.Config)
	if err != nil {
		return fmt.Errorf("encoding demo config: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE demos SET config_json = ?, usage_limit = ?, updated_at = ? WHERE id = ?`,
		string(data), demo.UsageLimit, formatTime(demo.UpdatedAt), demo.ID,
	)
	if err != nil {
		return fmt.Errorf("updating demo: %w", err)
	}
	return requireAffected(result, "updating demo")
}

// DeleteDemo removes a demo.
func (s *SQLiteStore) DeleteDemo(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM demos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting demo: %w", err)
	}
	return requireAffected(result, "deleting demo")
}

// IncrementDemoUsage atomically adds one to the demo's used count.
func (s *SQLiteStore) IncrementDemoUsage(ctx context.Context, id string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`UPDATE demos SET used_count = used_count + 1 WHERE id = ? RETURNING used_count`, id,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("incrementing demo usage: %w", err)
	}
	return count, nil
}

func scanDemo(row rowScanner) (*widget.Demo, error) {
	var demo widget.Demo
	var data, createdAt, updatedAt string

	err := row.Scan(&demo.ID, &demo.OwnerID, &data, &demo.UsageLimit, &demo.UsedCount, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning demo: %w", err)
	}

	if err := json.Unmarshal([]byte(data), &demo.Config); err != nil {
		return nil, fmt.Errorf("decoding demo config: %w", err)
	}
	if demo.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return nil, err
	}
	if demo.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return nil, err
	}
	return &demo, nil
}
