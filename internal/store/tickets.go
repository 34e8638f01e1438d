// ABOUTME: SQLite persistence for support tickets and their reply threads
// ABOUTME: Tickets are filtered by owner and status; replies are ordered oldest first

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const ticketColumns = `id, owner_id, subject, description, category, status, priority, created_at, updated_at, resolved_at`

// CreateTicket stores a new ticket.
func (s *SQLiteStore) CreateTicket(ctx context.Context, ticket *Ticket) error {
	var resolvedAt any
	if ticket.ResolvedAt != nil {
		resolvedAt = formatTime(*ticket.ResolvedAt)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tickets (`+ticketColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ticket.ID,
		ticket.OwnerID,
		ticket.Subject,
		ticket.Description,
		ticket.Category,
		ticket.Status,
		ticket.Priority,
		formatTime(ticket.CreatedAt),
		formatTime(ticket.UpdatedAt),
		resolvedAt,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting ticket: %w", err)
	}

	s.logger.Debug("created ticket", "id", ticket.ID, "category", ticket.Category)
	return nil
}

// GetTicket retrieves a ticket by ID.
func (s *SQLiteStore) GetTicket(ctx context.Context, id string) (*Ticket, error) {
	ticket, err := scanTicket(s.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ticket, err
}

// ListTickets returns tickets matching the filter, newest first.
func (s *SQLiteStore) ListTickets(ctx context.Context, filter TicketFilter) ([]*Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE 1=1`
	var args []any

	if filter.OwnerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, filter.OwnerID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tickets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tickets []*Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tickets: %w", err)
	}
	return tickets, nil
}

// UpdateTicket saves a ticket's mutable fields.
func (s *SQLiteStore) UpdateTicket(ctx context.Context, ticket *Ticket) error {
	var resolvedAt any
	if ticket.ResolvedAt != nil {
		resolvedAt = formatTime(*ticket.ResolvedAt)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE tickets
		SET subject = ?, description = ?, category = ?, status = ?, priority = ?, updated_at = ?, resolved_at = ?
		WHERE id = ?`,
		ticket.Subject,
		ticket.Description,
		ticket.Category,
		ticket.Status,
		ticket.Priority,
		formatTime(ticket.UpdatedAt),
		resolvedAt,
		ticket.ID,
	)
	if err != nil {
		return fmt.Errorf("updating ticket: %w", err)
	}
	return requireAffected(result, "updating ticket")
}

// AddTicketReply appends a reply to a ticket.
func (s *SQLiteStore) AddTicketReply(ctx context.Context, reply *TicketReply) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ticket_replies (id, ticket_id, author, body, staff, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		reply.ID,
		reply.TicketID,
		reply.Author,
		reply.Body,
		boolToInt(reply.Staff),
		formatTime(reply.CreatedAt),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("inserting ticket reply: %w", err)
	}
	return nil
}

// ListTicketReplies returns a ticket's replies, oldest first.
func (s *SQLiteStore) ListTicketReplies(ctx context.Context, ticketID string) ([]*TicketReply, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ticket_id, author, body, staff, created_at
		FROM ticket_replies
		WHERE ticket_id = ?
		ORDER BY created_at ASC`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("querying ticket replies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var replies []*TicketReply
	for rows.Next() {
		var reply TicketReply
		var staff int
		var createdAt string
		if err := rows.Scan(&reply.ID, &reply.TicketID, &reply.Author, &reply.Body, &staff, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning ticket reply: %w", err)
		}
		reply.Staff = staff == 1
		if reply.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		replies = append(replies, &reply)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ticket replies: %w", err)
	}
	return replies, nil
}

func scanTicket(row rowScanner) (*Ticket, error) {
	var ticket Ticket
	var createdAt, updatedAt string
	var resolvedAt sql.NullString

	err := row.Scan(
		&ticket.ID,
		&ticket.OwnerID,
		&ticket.Subject,
		&ticket.Description,
		&ticket.Category,
		&ticket.Status,
		&ticket.Priority,
		&createdAt,
		&updatedAt,
		&resolvedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning ticket: %w", err)
	}

	if ticket.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return nil, err
	}
	if ticket.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return nil, err
	}
	if ticket.ResolvedAt, err = parseNullTime("resolved_at", resolvedAt); err != nil {
		return nil, err
	}
	return &ticket, nil
}
