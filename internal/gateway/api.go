// ABOUTME: Public HTTP API used by embedded widgets and demos: ask, config lookup, demo usage
// ABOUTME: Also holds the JSON response helpers shared by every handler

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/2389/chatdesk/internal/agent"
	"github.com/2389/chatdesk/internal/auth"
	"github.com/2389/chatdesk/internal/store"
	"github.com/2389/chatdesk/internal/transport"
	"github.com/2389/chatdesk/internal/widget"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// HeaderRequestID makes demo usage increments idempotent.
const HeaderRequestID = "X-Request-ID"

var (
	errUsageLimitReached = errors.New("usage limit reached")
	errAgentNotAssigned  = errors.New("agent not assigned to this widget")
)

// ConfigResponse is the JSON response for GET /api/chatbot-configs/{id}.
type ConfigResponse struct {
	Success bool          `json:"success"`
	Config  widget.Config `json:"config"`
}

// DemoUsageResponse is the JSON response for POST /api/demo/{demoId}/usage.
type DemoUsageResponse struct {
	Success    bool `json:"success"`
	UsedCount  int  `json:"usedCount"`
	UsageLimit int  `json:"usageLimit"`
	Remaining  int  `json:"remaining"`
	Replayed   bool `json:"replayed"`
}

// writeJSON writes v as a JSON response.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("failed to write response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.writeJSON(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return errors.New("invalid JSON body")
	}
	return nil
}

// sendStoreError maps store errors to HTTP responses.
func (g *Gateway) sendStoreError(w http.ResponseWriter, err error, what string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		g.sendJSONError(w, http.StatusNotFound, what+" not found")
	case errors.Is(err, store.ErrDuplicate):
		g.sendJSONError(w, http.StatusConflict, what+" already exists")
	default:
		g.logger.Error("store operation failed", "entity", what, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

// handleAsk handles POST /api/agents/{agentId}/ask.
//
// Public callers identify themselves with the x-public-kind headers; widget
// traffic is counted against the widget's usage limit and demo traffic is
// refused once the demo is used up. Anyone else must present dashboard
// credentials for the agent's owner.
func (g *Gateway) handleAsk(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agentId")

	var req transport.AskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		g.sendJSONError(w, http.StatusBadRequest, "message is required")
		return
	}
	req.AgentID = agentID

	var (
		reply string
		err   error
	)
	if id, ok := auth.PublicIdentityFromRequest(r); ok {
		reply, err = g.askPublic(r.Context(), id, req)
	} else {
		reply, err = g.askDashboard(r, req)
	}

	switch {
	case err == nil:
		g.writeJSON(w, http.StatusOK, transport.AskResponse{Reply: reply})
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrInvalidAPIKey), errors.Is(err, auth.ErrMissingCredentials):
		g.sendJSONError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, errUsageLimitReached):
		g.sendJSONError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, errAgentNotAssigned):
		g.sendJSONError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, agent.ErrAgentNotFound):
		g.sendJSONError(w, http.StatusNotFound, "agent not found")
	case errors.Is(err, store.ErrNotFound):
		g.sendJSONError(w, http.StatusNotFound, "widget not found")
	case errors.Is(err, agent.ErrProviderUnavailable):
		g.sendJSONError(w, http.StatusBadGateway, "agent unavailable")
	default:
		g.logger.Error("ask failed", "agent_id", agentID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

// askPublic answers widget or demo traffic.
func (g *Gateway) askPublic(ctx context.Context, id transport.PublicIdentity, req transport.AskRequest) (string, error) {
	// The public token is a fixed marker, not a secret.
	if !auth.ValidPublicToken(id.Token) {
		return "", fmt.Errorf("%w: public token", auth.ErrInvalidToken)
	}

	switch id.Kind {
	case transport.KindDemo:
		return g.askDemo(ctx, id.ID, req)

	default:
		cfg, err := g.store.GetWidgetConfig(ctx, id.ID)
		if err != nil {
			return "", fmt.Errorf("loading widget: %w", err)
		}
		if cfg.SelectedAgent != req.AgentID {
			return "", errAgentNotAssigned
		}
		return g.askCounted(ctx, cfg.ID, req)
	}
}

// askDemo answers for a demo whose stored quota is not yet used up.
func (g *Gateway) askDemo(ctx context.Context, demoID string, req transport.AskRequest) (string, error) {
	demo, err := g.store.GetDemo(ctx, demoID)
	if err != nil {
		return "", fmt.Errorf("loading demo: %w", err)
	}
	if demo.Config.SelectedAgent != req.AgentID {
		return "", errAgentNotAssigned
	}
	if demo.LimitReached() {
		return "", fmt.Errorf("demo %s: %w", demo.ID, errUsageLimitReached)
	}
	return g.agents.Ask(ctx, req.AgentID, req)
}

// askCounted records one message against connectionID's usage limit and
// then asks the agent.
func (g *Gateway) askCounted(ctx context.Context, connectionID string, req transport.AskRequest) (string, error) {
	decision, err := g.usage.Record(ctx, connectionID)
	if err != nil {
		return "", fmt.Errorf("recording usage: %w", err)
	}
	if !decision.Allowed {
		return "", fmt.Errorf("connection %s: %w", connectionID, errUsageLimitReached)
	}
	if decision.Overage {
		g.logger.Info("usage over limit", "connection_id", connectionID, "used", decision.Used)
	}
	return g.agents.Ask(ctx, req.AgentID, req)
}

// askDashboard answers an authenticated owner testing their own agent.
func (g *Gateway) askDashboard(r *http.Request, req transport.AskRequest) (string, error) {
	ident, err := g.authn.Authenticate(r)
	if err != nil {
		return "", err
	}
	a, err := g.store.GetAgent(r.Context(), req.AgentID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && a.OwnerID != ident.OwnerID) {
		return "", agent.ErrAgentNotFound
	}
	if err != nil {
		return "", fmt.Errorf("loading agent: %w", err)
	}
	return g.agents.Ask(r.Context(), req.AgentID, req)
}

// handlePublicConfig handles GET /api/chatbot-configs/{id}.
func (g *Gateway) handlePublicConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := g.store.GetWidgetConfig(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		g.writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "chatbot config not found"})
		return
	}
	if err != nil {
		g.sendStoreError(w, err, "chatbot config")
		return
	}
	g.writeJSON(w, http.StatusOK, ConfigResponse{Success: true, Config: cfg.WithDefaults()})
}

// handleDemoUsage handles POST /api/demo/{demoId}/usage. Repeating a
// request with the same X-Request-ID does not count twice.
func (g *Gateway) handleDemoUsage(w http.ResponseWriter, r *http.Request) {
	demoID := r.PathValue("demoId")
	used, replayed, err := g.demoUsage.Increment(r.Context(), demoID, r.Header.Get(HeaderRequestID))
	if err != nil {
		g.sendStoreError(w, err, "demo")
		return
	}

	demo, err := g.store.GetDemo(r.Context(), demoID)
	if err != nil {
		g.sendStoreError(w, err, "demo")
		return
	}
	// Report the count this request produced, even on replay.
	demo.UsedCount = used
	g.writeJSON(w, http.StatusOK, DemoUsageResponse{
		Success:    true,
		UsedCount:  used,
		UsageLimit: demo.UsageLimit,
		Remaining:  demo.Remaining(),
		Replayed:   replayed,
	})
}
