// ABOUTME: Dashboard handlers for support tickets and their reply threads
// ABOUTME: Ticket ids are "TK" plus the creation time in nanoseconds

package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/chatdesk/internal/auth"
	"github.com/2389/chatdesk/internal/store"
)

// CreateTicketRequest is the JSON body for POST /api/tickets.
type CreateTicketRequest struct {
	Subject     string `json:"subject"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Priority    string `json:"priority"`
}

// UpdateTicketRequest is the JSON body for PATCH /api/tickets/{id}. Absent
// fields are left unchanged.
type UpdateTicketRequest struct {
	Status   *string `json:"status,omitempty"`
	Priority *string `json:"priority,omitempty"`
}

// TicketReplyRequest is the JSON body for POST /api/tickets/{id}/replies.
type TicketReplyRequest struct {
	Body string `json:"body"`
}

// TicketResponse is the JSON representation of a ticket.
type TicketResponse struct {
	ID          string     `json:"id"`
	Subject     string     `json:"subject"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
}

// TicketReplyResponse is the JSON representation of a ticket reply.
type TicketReplyResponse struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	Staff     bool      `json:"staff"`
	CreatedAt time.Time `json:"createdAt"`
}

func ticketResponse(t *store.Ticket) TicketResponse {
	return TicketResponse{
		ID:          t.ID,
		Subject:     t.Subject,
		Description: t.Description,
		Category:    t.Category,
		Status:      t.Status,
		Priority:    t.Priority,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		ResolvedAt:  t.ResolvedAt,
	}
}

func validCategory(c string) bool {
	switch c {
	case store.TicketCategoryBilling, store.TicketCategoryTechnical, store.TicketCategoryAgent, store.TicketCategoryGeneral:
		return true
	}
	return false
}

func validStatus(s string) bool {
	switch s {
	case store.TicketStatusOpen, store.TicketStatusInProgress, store.TicketStatusResolved, store.TicketStatusClosed:
		return true
	}
	return false
}

func validPriority(p string) bool {
	switch p {
	case store.TicketPriorityLow, store.TicketPriorityMedium, store.TicketPriorityHigh, store.TicketPriorityUrgent:
		return true
	}
	return false
}

func (req *CreateTicketRequest) normalize() error {
	req.Subject = strings.TrimSpace(req.Subject)
	if req.Subject == "" {
		return errors.New("subject is required")
	}
	if strings.TrimSpace(req.Description) == "" {
		return errors.New("description is required")
	}
	if req.Category == "" {
		req.Category = store.TicketCategoryGeneral
	}
	if !validCategory(req.Category) {
		return fmt.Errorf("invalid category %q", req.Category)
	}
	if req.Priority == "" {
		req.Priority = store.TicketPriorityMedium
	}
	if !validPriority(req.Priority) {
		return fmt.Errorf("invalid priority %q", req.Priority)
	}
	return nil
}

func (g *Gateway) ownedTicket(r *http.Request) (*store.Ticket, error) {
	t, err := g.store.GetTicket(r.Context(), r.PathValue("id"))
	if err != nil {
		return nil, err
	}
	if t.OwnerID != auth.MustFromContext(r.Context()).OwnerID {
		return nil, store.ErrNotFound
	}
	return t, nil
}

// handleListTickets handles GET /api/tickets?status=&limit=.
func (g *Gateway) handleListTickets(w http.ResponseWriter, r *http.Request) {
	filter := store.TicketFilter{
		OwnerID: auth.MustFromContext(r.Context()).OwnerID,
		Status:  r.URL.Query().Get("status"),
	}
	if filter.Status != "" && !validStatus(filter.Status) {
		g.sendJSONError(w, http.StatusBadRequest, "invalid status")
		return
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			g.sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}

	tickets, err := g.store.ListTickets(r.Context(), filter)
	if err != nil {
		g.sendStoreError(w, err, "ticket")
		return
	}
	out := make([]TicketResponse, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, ticketResponse(t))
	}
	g.writeJSON(w, http.StatusOK, out)
}

// handleCreateTicket handles POST /api/tickets.
func (g *Gateway) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var req CreateTicketRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.normalize(); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := g.now()
	t := &store.Ticket{
		ID:          fmt.Sprintf("TK%d", now.UnixNano()),
		OwnerID:     auth.MustFromContext(r.Context()).OwnerID,
		Subject:     req.Subject,
		Description: req.Description,
		Category:    req.Category,
		Status:      store.TicketStatusOpen,
		Priority:    req.Priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := g.store.CreateTicket(r.Context(), t); err != nil {
		g.sendStoreError(w, err, "ticket")
		return
	}
	g.logger.Info("ticket created", "ticket_id", t.ID, "owner_id", t.OwnerID, "category", t.Category)
	g.writeJSON(w, http.StatusCreated, ticketResponse(t))
}

// handleGetTicket handles GET /api/tickets/{id}.
func (g *Gateway) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	t, err := g.ownedTicket(r)
	if err != nil {
		g.sendStoreError(w, err, "ticket")
		return
	}
	g.writeJSON(w, http.StatusOK, ticketResponse(t))
}

// handleUpdateTicket handles PATCH /api/tickets/{id}. Moving to resolved
// stamps resolvedAt; moving back to open or in_progress clears it.
func (g *Gateway) handleUpdateTicket(w http.ResponseWriter, r *http.Request) {
	t, err := g.ownedTicket(r)
	if err != nil {
		g.sendStoreError(w, err, "ticket")
		return
	}
	var req UpdateTicketRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := g.now()
	if req.Priority != nil {
		if !validPriority(*req.Priority) {
			g.sendJSONError(w, http.StatusBadRequest, "invalid priority")
			return
		}
		t.Priority = *req.Priority
	}
	if req.Status != nil {
		if !validStatus(*req.Status) {
			g.sendJSONError(w, http.StatusBadRequest, "invalid status")
			return
		}
		switch {
		case *req.Status == store.TicketStatusResolved && t.Status != store.TicketStatusResolved:
			t.ResolvedAt = &now
		case *req.Status == store.TicketStatusOpen, *req.Status == store.TicketStatusInProgress:
			t.ResolvedAt = nil
		}
		t.Status = *req.Status
	}
	t.UpdatedAt = now

	if err := g.store.UpdateTicket(r.Context(), t); err != nil {
		g.sendStoreError(w, err, "ticket")
		return
	}
	g.writeJSON(w, http.StatusOK, ticketResponse(t))
}

// handleListTicketReplies handles GET /api/tickets/{id}/replies.
func (g *Gateway) handleListTicketReplies(w http.ResponseWriter, r *http.Request) {
	t, err := g.ownedTicket(r)
	if err != nil {
		g.sendStoreError(w, err, "ticket")
		return
	}
	replies, err := g.store.ListTicketReplies(r.Context(), t.ID)
	if err != nil {
		g.sendStoreError(w, err, "ticket reply")
		return
	}
	out := make([]TicketReplyResponse, 0, len(replies))
	for _, rep := range replies {
		out = append(out, TicketReplyResponse{
			ID: rep.ID, Author: rep.Author, Body: rep.Body, Staff: rep.Staff, CreatedAt: rep.CreatedAt,
		})
	}
	g.writeJSON(w, http.StatusOK, out)
}

// handleAddTicketReply handles POST /api/tickets/{id}/replies. Replies from
// the dashboard are customer replies; staff reply through chatdesk-admin.
func (g *Gateway) handleAddTicketReply(w http.ResponseWriter, r *http.Request) {
	t, err := g.ownedTicket(r)
	if err != nil {
		g.sendStoreError(w, err, "ticket")
		return
	}
	var req TicketReplyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		g.sendJSONError(w, http.StatusBadRequest, "body is required")
		return
	}

	rep := &store.TicketReply{
		ID:        uuid.New().String(),
		TicketID:  t.ID,
		Author:    auth.MustFromContext(r.Context()).OwnerID,
		Body:      req.Body,
		CreatedAt: g.now(),
	}
	if err := g.store.AddTicketReply(r.Context(), rep); err != nil {
		g.sendStoreError(w, err, "ticket")
		return
	}
	g.writeJSON(w, http.StatusCreated, TicketReplyResponse{
		ID: rep.ID, Author: rep.Author, Body: rep.Body, Staff: rep.Staff, CreatedAt: rep.CreatedAt,
	})
}
