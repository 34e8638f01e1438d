// ABOUTME: Dashboard handlers for per-connection usage limits and usage history
// ABOUTME: A connection is one of the owner's widgets; widget traffic is counted under its id

package gateway

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/chatdesk/internal/store"
	"github.com/2389/chatdesk/internal/usage"
)

// UsageLimitResponse is the JSON representation of a connection's usage limit.
type UsageLimitResponse struct {
	ConnectionID string    `json:"connectionId"`
	Enabled      bool      `json:"enabled"`
	Limit        int       `json:"limit"`
	PeriodDays   int       `json:"periodDays"`
	Overage      bool      `json:"overage"`
	UsedCount    int       `json:"usedCount"`
	PeriodStart  time.Time `json:"periodStart"`
	PeriodEnd    time.Time `json:"periodEnd"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func usageLimitResponse(l *store.UsageLimit) UsageLimitResponse {
	return UsageLimitResponse{
		ConnectionID: l.ConnectionID,
		Enabled:      l.Enabled,
		Limit:        l.Limit,
		PeriodDays:   l.PeriodDays,
		Overage:      l.Overage,
		UsedCount:    l.UsedCount,
		PeriodStart:  l.PeriodStart,
		PeriodEnd:    l.PeriodEnd(),
		UpdatedAt:    l.UpdatedAt,
	}
}

// UpdateUsageLimitRequest is the JSON body for PUT /api/connections/{id}/usage-limit.
type UpdateUsageLimitRequest struct {
	usage.Settings
	// Confirm acknowledges that a period change resets the counter.
	Confirm bool `json:"confirm"`
}

// UsageRecordResponse is one usage history entry.
type UsageRecordResponse struct {
	ID        string    `json:"id"`
	Count     int       `json:"count"`
	Overage   bool      `json:"overage"`
	CreatedAt time.Time `json:"createdAt"`
}

// ownedConnection checks that the connection is one of the caller's widgets.
func (g *Gateway) ownedConnection(ctx context.Context, connectionID string) error {
	_, err := g.ownedConfig(ctx, connectionID)
	return err
}

// handleGetUsageLimit handles GET /api/connections/{id}/usage-limit.
func (g *Gateway) handleGetUsageLimit(w http.ResponseWriter, r *http.Request) {
	connID := r.PathValue("id")
	if err := g.ownedConnection(r.Context(), connID); err != nil {
		g.sendStoreError(w, err, "connection")
		return
	}
	limit, err := g.usage.Get(r.Context(), connID)
	if err != nil {
		g.sendStoreError(w, err, "usage limit")
		return
	}
	g.writeJSON(w, http.StatusOK, usageLimitResponse(limit))
}

// handleUpdateUsageLimit handles PUT /api/connections/{id}/usage-limit.
// A period change on a counter above zero answers 409 until the request
// carries confirm=true.
func (g *Gateway) handleUpdateUsageLimit(w http.ResponseWriter, r *http.Request) {
	connID := r.PathValue("id")
	if err := g.ownedConnection(r.Context(), connID); err != nil {
		g.sendStoreError(w, err, "connection")
		return
	}
	var req UpdateUsageLimitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit, err := g.usage.Update(r.Context(), connID, req.Settings, req.Confirm)
	switch {
	case err == nil:
		g.writeJSON(w, http.StatusOK, usageLimitResponse(limit))
	case errors.Is(err, usage.ErrConfirmationRequired):
		g.writeJSON(w, http.StatusConflict, map[string]any{
			"error":                err.Error(),
			"confirmationRequired": true,
		})
	case errors.Is(err, usage.ErrInvalidPeriod), errors.Is(err, usage.ErrInvalidLimit):
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
	default:
		g.sendStoreError(w, err, "usage limit")
	}
}

// handleListUsageHistory handles GET /api/connections/{id}/usage-history?limit=N.
func (g *Gateway) handleListUsageHistory(w http.ResponseWriter, r *http.Request) {
	connID := r.PathValue("id")
	if err := g.ownedConnection(r.Context(), connID); err != nil {
		g.sendStoreError(w, err, "connection")
		return
	}
	n := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			g.sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		n = parsed
	}

	records, err := g.usage.History(r.Context(), connID, n)
	if err != nil {
		g.sendStoreError(w, err, "usage history")
		return
	}
	out := make([]UsageRecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, UsageRecordResponse{ID: rec.ID, Count: rec.Count, Overage: rec.Overage, CreatedAt: rec.CreatedAt})
	}
	g.writeJSON(w, http.StatusOK, out)
}

// handleClearUsageHistory handles DELETE /api/connections/{id}/usage-history.
func (g *Gateway) handleClearUsageHistory(w http.ResponseWriter, r *http.Request) {
	connID := r.PathValue("id")
	if err := g.ownedConnection(r.Context(), connID); err != nil {
		g.sendStoreError(w, err, "connection")
		return
	}
	n, err := g.usage.ClearHistory(r.Context(), connID)
	if err != nil {
		g.sendStoreError(w, err, "usage history")
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// handleDeleteUsageRecord handles DELETE /api/usage-history/{recordId}.
func (g *Gateway) handleDeleteUsageRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := g.store.GetUsageRecord(r.Context(), r.PathValue("recordId"))
	if err != nil {
		g.sendStoreError(w, err, "usage record")
		return
	}
	if err := g.ownedConnection(r.Context(), rec.ConnectionID); err != nil {
		// Records of other owners' connections are invisible.
		g.sendStoreError(w, err, "usage record")
		return
	}
	if err := g.usage.DeleteHistory(r.Context(), rec.ID); err != nil {
		g.sendStoreError(w, err, "usage record")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
