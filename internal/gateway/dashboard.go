// ABOUTME: Dashboard CRUD handlers for agents, chatbot widget configs and demos
// ABOUTME: Every resource is scoped to the authenticated owner; foreign ids read as not found

package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/chatdesk/internal/auth"
	"github.com/2389/chatdesk/internal/store"
	"github.com/2389/chatdesk/internal/widget"
)

// AgentRequest is the JSON body for creating or updating an agent.
type AgentRequest struct {
	Name         string  `json:"name"`
	SystemPrompt string  `json:"systemPrompt"`
	Model        string  `json:"model,omitempty"`
	Temperature  float64 `json:"temperature"`
}

// AgentResponse is the JSON representation of an agent.
type AgentResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	SystemPrompt string    `json:"systemPrompt"`
	Model        string    `json:"model,omitempty"`
	Temperature  float64   `json:"temperature"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func agentResponse(a *store.Agent) AgentResponse {
	return AgentResponse{
		ID:           a.ID,
		Name:         a.Name,
		SystemPrompt: a.SystemPrompt,
		Model:        a.Model,
		Temperature:  a.Temperature,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func (req AgentRequest) validate() error {
	if strings.TrimSpace(req.Name) == "" {
		return errors.New("name is required")
	}
	if req.Temperature < 0 || req.Temperature > 2 {
		return errors.New("temperature must be between 0 and 2")
	}
	return nil
}

// DemoRequest is the JSON body for creating or updating a demo.
type DemoRequest struct {
	Config     widget.Config `json:"config"`
	UsageLimit int           `json:"usageLimit"`
}

func (g *Gateway) now() time.Time {
	return g.clock.Now().UTC()
}

// ownedAgent loads an agent and hides agents of other owners.
func (g *Gateway) ownedAgent(ctx context.Context, id string) (*store.Agent, error) {
	a, err := g.store.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.OwnerID != auth.MustFromContext(ctx).OwnerID {
		return nil, store.ErrNotFound
	}
	return a, nil
}

func (g *Gateway) ownedConfig(ctx context.Context, id string) (*widget.Config, error) {
	cfg, err := g.store.GetWidgetConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	if cfg.OwnerID != auth.MustFromContext(ctx).OwnerID {
		return nil, store.ErrNotFound
	}
	return cfg, nil
}

func (g *Gateway) ownedDemo(ctx context.Context, id string) (*widget.Demo, error) {
	demo, err := g.store.GetDemo(ctx, id)
	if err != nil {
		return nil, err
	}
	if demo.OwnerID != auth.MustFromContext(ctx).OwnerID {
		return nil, store.ErrNotFound
	}
	return demo, nil
}

// handleListAgents handles GET /api/agents.
func (g *Gateway) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := g.store.ListAgents(r.Context(), auth.MustFromContext(r.Context()).OwnerID)
	if err != nil {
		g.sendStoreError(w, err, "agent")
		return
	}
	out := make([]AgentResponse, 0, len(agents))
	for _, a := range agents {
		out = append(out, agentResponse(a))
	}
	g.writeJSON(w, http.StatusOK, out)
}

// handleCreateAgent handles POST /api/agents.
func (g *Gateway) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req AgentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := g.now()
	a := &store.Agent{
		ID:           uuid.New().String(),
		OwnerID:      auth.MustFromContext(r.Context()).OwnerID,
		Name:         strings.TrimSpace(req.Name),
		SystemPrompt: req.SystemPrompt,
		Model:        req.Model,
		Temperature:  req.Temperature,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := g.store.CreateAgent(r.Context(), a); err != nil {
		g.sendStoreError(w, err, "agent")
		return
	}
	g.logger.Info("agent created", "agent_id", a.ID, "owner_id", a.OwnerID)
	g.writeJSON(w, http.StatusCreated, agentResponse(a))
}

// handleGetAgent handles GET /api/agents/{id}.
func (g *Gateway) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	a, err := g.ownedAgent(r.Context(), r.PathValue("id"))
	if err != nil {
		g.sendStoreError(w, err, "agent")
		return
	}
	g.writeJSON(w, http.StatusOK, agentResponse(a))
}

// handleUpdateAgent handles PUT /api/agents/{id}.
func (g *Gateway) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	a, err := g.ownedAgent(r.Context(), r.PathValue("id"))
	if err != nil {
		g.sendStoreError(w, err, "agent")
		return
	}
	var req AgentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	a.Name = strings.TrimSpace(req.Name)
	a.SystemPrompt = req.SystemPrompt
	a.Model = req.Model
	a.Temperature = req.Temperature
	a.UpdatedAt = g.now()
	if err := g.store.UpdateAgent(r.Context(), a); err != nil {
		g.sendStoreError(w, err, "agent")
		return
	}
	g.writeJSON(w, http.StatusOK, agentResponse(a))
}

// handleDeleteAgent handles DELETE /api/agents/{id}.
func (g *Gateway) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	a, err := g.ownedAgent(r.Context(), r.PathValue("id"))
	if err != nil {
		g.sendStoreError(w, err, "agent")
		return
	}
	if err := g.store.DeleteAgent(r.Context(), a.ID); err != nil {
		g.sendStoreError(w, err, "agent")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// prepareConfig applies defaults, checks the schema and that the selected
// agent belongs to the caller.
func (g *Gateway) prepareConfig(ctx context.Context, cfg widget.Config) (widget.Config, error) {
	cfg = cfg.WithDefaults()
	if err := widget.Validate(cfg); err != nil {
		return cfg, err
	}
	if _, err := g.ownedAgent(ctx, cfg.SelectedAgent); err != nil {
		return cfg, errors.New("selectedAgent: unknown agent")
	}
	return cfg, nil
}

// handleListConfigs handles GET /api/chatbot-configs.
func (g *Gateway) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	cfgs, err := g.store.ListWidgetConfigs(r.Context(), auth.MustFromContext(r.Context()).OwnerID)
	if err != nil {
		g.sendStoreError(w, err, "chatbot config")
		return
	}
	if cfgs == nil {
		cfgs = []*widget.Config{}
	}
	g.writeJSON(w, http.StatusOK, cfgs)
}

// handleCreateConfig handles POST /api/chatbot-configs.
func (g *Gateway) handleCreateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg widget.Config
	if err := decodeJSON(w, r, &cfg); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	cfg, err := g.prepareConfig(r.Context(), cfg)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := g.now()
	cfg.OwnerID = auth.MustFromContext(r.Context()).OwnerID
	cfg.CreatedAt = now
	cfg.UpdatedAt = now
	if err := g.store.CreateWidgetConfig(r.Context(), &cfg); err != nil {
		g.sendStoreError(w, err, "chatbot config")
		return
	}
	g.logger.Info("chatbot config created", "widget_id", cfg.ID, "owner_id", cfg.OwnerID)
	g.writeJSON(w, http.StatusCreated, ConfigResponse{Success: true, Config: cfg})
}

// handleUpdateConfig handles PUT /api/chatbot-configs/{id}. The stored
// config is replaced wholesale.
func (g *Gateway) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	existing, err := g.ownedConfig(r.Context(), r.PathValue("id"))
	if err != nil {
		g.sendStoreError(w, err, "chatbot config")
		return
	}
	var cfg widget.Config
	if err := decodeJSON(w, r, &cfg); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg.ID = existing.ID
	cfg, err = g.prepareConfig(r.Context(), cfg)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg.OwnerID = existing.OwnerID
	cfg.CreatedAt = existing.CreatedAt
	cfg.UpdatedAt = g.now()
	if err := g.store.UpdateWidgetConfig(r.Context(), &cfg); err != nil {
		g.sendStoreError(w, err, "chatbot config")
		return
	}
	g.writeJSON(w, http.StatusOK, ConfigResponse{Success: true, Config: cfg})
}

// handleDeleteConfig handles DELETE /api/chatbot-configs/{id}.
func (g *Gateway) handleDeleteConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := g.ownedConfig(r.Context(), r.PathValue("id"))
	if err != nil {
		g.sendStoreError(w, err, "chatbot config")
		return
	}
	if err := g.store.DeleteWidgetConfig(r.Context(), cfg.ID); err != nil {
		g.sendStoreError(w, err, "chatbot config")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListDemos handles GET /api/demos.
func (g *Gateway) handleListDemos(w http.ResponseWriter, r *http.Request) {
	demos, err := g.store.ListDemos(r.Context(), auth.MustFromContext(r.Context()).OwnerID)
	if err != nil {
		g.sendStoreError(w, err, "demo")
		return
	}
	if demos == nil {
		demos = []*widget.Demo{}
	}
	g.writeJSON(w, http.StatusOK, demos)
}

// handleCreateDemo handles POST /api/demos.
func (g *Gateway) handleCreateDemo(w http.ResponseWriter, r *http.Request) {
	var req DemoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UsageLimit < 0 {
		g.sendJSONError(w, http.StatusBadRequest, "usageLimit must not be negative")
		return
	}

	id := uuid.New().String()
	req.Config.ID = id
	cfg, err := g.prepareConfig(r.Context(), req.Config)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := g.now()
	demo := &widget.Demo{
		ID:         id,
		OwnerID:    auth.MustFromContext(r.Context()).OwnerID,
		Config:     cfg,
		UsageLimit: req.UsageLimit,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := g.store.CreateDemo(r.Context(), demo); err != nil {
		g.sendStoreError(w, err, "demo")
		return
	}
	g.logger.Info("demo created", "demo_id", demo.ID, "owner_id", demo.OwnerID, "usage_limit", demo.UsageLimit)
	g.writeJSON(w, http.StatusCreated, demo)
}

// handleGetDemo handles GET /api/demos/{id}.
func (g *Gateway) handleGetDemo(w http.ResponseWriter, r *http.Request) {
	demo, err := g.ownedDemo(r.Context(), r.PathValue("id"))
	if err != nil {
		g.sendStoreError(w, err, "demo")
		return
	}
	g.writeJSON(w, http.StatusOK, demo)
}

// handleUpdateDemo handles PUT /api/demos/{id}. The used count is kept.
func (g *Gateway) handleUpdateDemo(w http.ResponseWriter, r *http.Request) {
	demo, err := g.ownedDemo(r.Context(), r.PathValue("id"))
	if err != nil {
		g.sendStoreError(w, err, "demo")
		return
	}
	var req DemoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UsageLimit < 0 {
		g.sendJSONError(w, http.StatusBadRequest, "usageLimit must not be negative")
		return
	}
	req.Config.ID = demo.ID
	cfg, err := g.prepareConfig(r.Context(), req.Config)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	demo.Config = cfg
	demo.UsageLimit = req.UsageLimit
	demo.UpdatedAt = g.now()
	if err := g.store.UpdateDemo(r.Context(), demo); err != nil {
		g.sendStoreError(w, err, "demo")
		return
	}
	g.writeJSON(w, http.StatusOK, demo)
}

// handleDeleteDemo handles DELETE /api/demos/{id}.
func (g *Gateway) handleDeleteDemo(w http.ResponseWriter, r *http.Request) {
	demo, err := g.ownedDemo(r.Context(), r.PathValue("id"))
	if err != nil {
		g.sendStoreError(w, err, "demo")
		return
	}
	if err := g.store.DeleteDemo(r.Context(), demo.ID); err != nil {
		g.sendStoreError(w, err, "demo")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
