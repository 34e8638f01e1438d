// ABOUTME: Tests for dashboard CRUD of agents, chatbot configs and demos
// ABOUTME: Checks owner scoping: another owner's resources read as not found

package gateway

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chatdesk/internal/widget"
)

func TestDashboardRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/api/agents", "/api/chatbot-configs", "/api/demos", "/api/tickets", "/api/api-keys"} {
		rec := env.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	req := http.Header{"Authorization": []string{"Bearer not-a-jwt"}}
	rec := env.do(t, http.MethodGet, "/api/agents", "", nil, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAgentCRUD(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/agents", "owner-1", AgentRequest{Name: "Support", SystemPrompt: "Help.", Temperature: 0.4})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[AgentResponse](t, rec)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "Support", created.Name)

	rec = env.do(t, http.MethodGet, "/api/agents", "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]AgentResponse](t, rec), 1)

	rec = env.do(t, http.MethodGet, "/api/agents", "owner-2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]AgentResponse](t, rec))

	rec = env.do(t, http.MethodGet, "/api/agents/"+created.ID, "owner-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/agents/"+created.ID, "owner-1", AgentRequest{Name: "Sales", Temperature: 1})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Sales", decode[AgentResponse](t, rec).Name)

	rec = env.do(t, http.MethodPut, "/api/agents/"+created.ID, "owner-1", AgentRequest{Name: "Sales", Temperature: 3})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/agents/"+created.ID, "owner-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/agents/"+created.ID, "owner-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/agents/"+created.ID, "owner-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateAgentValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/agents", "owner-1", AgentRequest{Name: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/agents", "owner-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatbotConfigCRUD(t *testing.T) {
	env := newTestEnv(t)
	env.seedAgent(t, "a1", "owner-1")
	env.seedAgent(t, "foreign", "owner-2")

	rec := env.do(t, http.MethodPost, "/api/chatbot-configs", "owner-1", widget.Config{Name: "Site", SelectedAgent: "a1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[ConfigResponse](t, rec)
	require.True(t, created.Success)
	id := created.Config.ID
	require.NotEmpty(t, id)
	assert.Equal(t, widget.DefaultWidth, created.Config.Width)
	assert.Equal(t, "owner-1", created.Config.OwnerID)

	// An agent the caller does not own cannot be selected.
	rec = env.do(t, http.MethodPost, "/api/chatbot-configs", "owner-1", widget.Config{Name: "Site", SelectedAgent: "foreign"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/chatbot-configs", "owner-1", widget.Config{Name: "Site", SelectedAgent: "a1", PrimaryColor: "red"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/chatbot-configs", "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]widget.Config](t, rec), 1)

	rec = env.do(t, http.MethodPut, "/api/chatbot-configs/"+id, "owner-1", widget.Config{Name: "Renamed", SelectedAgent: "a1", Theme: widget.ThemeDark})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[ConfigResponse](t, rec)
	assert.Equal(t, "Renamed", updated.Config.Name)
	assert.Equal(t, widget.ThemeDark, updated.Config.Theme)
	assert.Equal(t, id, updated.Config.ID)

	rec = env.do(t, http.MethodPut, "/api/chatbot-configs/"+id, "owner-2", widget.Config{Name: "Hijack", SelectedAgent: "foreign"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/chatbot-configs/"+id, "owner-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/chatbot-configs/"+id, "owner-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/chatbot-configs/"+id, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDemoCRUD(t *testing.T) {
	env := newTestEnv(t)
	env.seedAgent(t, "a1", "owner-1")

	rec := env.do(t, http.MethodPost, "/api/demos", "owner-1", DemoRequest{Config: widget.Config{Name: "Pitch", SelectedAgent: "a1"}, UsageLimit: 10})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	demo := decode[widget.Demo](t, rec)
	require.NotEmpty(t, demo.ID)
	assert.Equal(t, demo.ID, demo.Config.ID)
	assert.Equal(t, 10, demo.UsageLimit)
	assert.Zero(t, demo.UsedCount)

	rec = env.do(t, http.MethodPost, "/api/demos", "owner-1", DemoRequest{Config: widget.Config{Name: "Pitch", SelectedAgent: "a1"}, UsageLimit: -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/demos/"+demo.ID, "owner-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Usage survives an update.
	rec = env.do(t, http.MethodPost, "/api/demo/"+demo.ID+"/usage", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/demos/"+demo.ID, "owner-1", DemoRequest{Config: widget.Config{Name: "Pitch v2", SelectedAgent: "a1"}, UsageLimit: 20})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[widget.Demo](t, rec)
	assert.Equal(t, "Pitch v2", updated.Config.Name)
	assert.Equal(t, 20, updated.UsageLimit)
	assert.Equal(t, 1, updated.UsedCount)

	rec = env.do(t, http.MethodGet, "/api/demos", "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]widget.Demo](t, rec), 1)

	rec = env.do(t, http.MethodDelete, "/api/demos/"+demo.ID, "owner-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
