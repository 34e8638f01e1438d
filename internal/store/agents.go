// ABOUTME: SQLite persistence for prompt-configured chat agents
// ABOUTME: CRUD operations keyed by agent id, listed per owner

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const agentColumns = `id, owner_id, name, system_prompt, model, temperature, created_at, updated_at`

// CreateAgent stores a new agent.
func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *Agent) error {
	query := `INSERT INTO agents (` + agentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		agent.ID,
		agent.OwnerID,
		agent.Name,
		agent.SystemPrompt,
		nullString(agent.Model),
		agent.Temperature,
		formatTime(agent.CreatedAt),
		formatTime(agent.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting agent: %w", err)
	}

	s.logger.Debug("created agent", "id", agent.ID, "owner_id", agent.OwnerID)
	return nil
}

// GetAgent retrieves an agent by ID.
func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE id = ?`

	agent, err := scanAgent(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return agent, nil
}

// ListAgents returns an owner's agents ordered by name. An empty ownerID lists all agents.
func (s *SQLiteStore) ListAgents(ctx context.Context, ownerID string) ([]*Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents`
	var args []any
	if ownerID != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY name ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var agents []*Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agents: %w", err)
	}
	return agents, nil
}

// UpdateAgent replaces an agent's editable fields.
func (s *SQLiteStore) UpdateAgent(ctx context.Context, agent *Agent) error {
	query := `
		UPDATE agents
		SET name = ?, system_prompt = ?, model = ?, temperature = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		agent.Name,
		agent.SystemPrompt,
		nullString(agent.Model),
		agent.Temperature,
		formatTime(agent.UpdatedAt),
		agent.ID,
	)
	if err != nil {
		return fmt.Errorf("updating agent: %w", err)
	}
	return requireAffected(result, "updating agent")
}

// DeleteAgent removes an agent.
func (s *SQLiteStore) DeleteAgent(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting agent: %w", err)
	}
	return requireAffected(result, "deleting agent")
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*Agent, error) {
	var agent Agent
	var model sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&agent.ID,
		&agent.OwnerID,
		&agent.Name,
		&agent.SystemPrompt,
		&model,
		&agent.Temperature,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning agent: %w", err)
	}

	agent.Model = model.String
	if agent.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return nil, err
	}
	if agent.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return nil, err
	}
	return &agent, nil
}
