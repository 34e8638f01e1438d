// ABOUTME: Dashboard handlers for creating, listing and revoking API keys
// ABOUTME: The plaintext key is returned once, at creation

package gateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/2389/chatdesk/internal/auth"
	"github.com/2389/chatdesk/internal/store"
)

// CreateAPIKeyRequest is the JSON body for POST /api/api-keys.
type CreateAPIKeyRequest struct {
	Name string `json:"name"`
}

// APIKeyResponse describes a stored key. Key is only set in the creation response.
type APIKeyResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	Key        string     `json:"key,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
}

func apiKeyResponse(k *store.APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:         k.ID,
		Name:       k.Name,
		Prefix:     k.Prefix,
		CreatedAt:  k.CreatedAt,
		LastUsedAt: k.LastUsedAt,
	}
}

// handleListAPIKeys handles GET /api/api-keys.
func (g *Gateway) handleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := g.store.ListAPIKeys(r.Context(), auth.MustFromContext(r.Context()).OwnerID)
	if err != nil {
		g.sendStoreError(w, err, "api key")
		return
	}
	out := make([]APIKeyResponse, 0, len(keys))
	for _, k := range keys {
		out = append(out, apiKeyResponse(k))
	}
	g.writeJSON(w, http.StatusOK, out)
}

// handleCreateAPIKey handles POST /api/api-keys.
func (g *Gateway) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req CreateAPIKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		g.sendJSONError(w, http.StatusBadRequest, "name is required")
		return
	}

	plaintext, key, err := g.apiKeys.Create(r.Context(), auth.MustFromContext(r.Context()).OwnerID, name)
	if err != nil {
		g.sendStoreError(w, err, "api key")
		return
	}
	resp := apiKeyResponse(key)
	resp.Key = plaintext
	g.writeJSON(w, http.StatusCreated, resp)
}

// handleDeleteAPIKey handles DELETE /api/api-keys/{id}.
func (g *Gateway) handleDeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	owner := auth.MustFromContext(r.Context()).OwnerID

	keys, err := g.store.ListAPIKeys(r.Context(), owner)
	if err != nil {
		g.sendStoreError(w, err, "api key")
		return
	}
	found := false
	for _, k := range keys {
		if k.ID == id {
			found = true
			break
		}
	}
	if !found {
		g.sendJSONError(w, http.StatusNotFound, "api key not found")
		return
	}

	if err := g.store.DeleteAPIKey(r.Context(), id); err != nil {
		g.sendStoreError(w, err, "api key")
		return
	}
	g.logger.Info("api key revoked", "key_id", id, "owner_id", owner)
	w.WriteHeader(http.StatusNoContent)
}
