// ABOUTME: Tests for the API key dashboard endpoints
// ABOUTME: Created keys authenticate later dashboard calls until revoked

package gateway

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/chatdesk/internal/auth"
)

func TestAPIKeyLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.gw.apiKeys.SetCost(bcrypt.MinCost)

	rec := env.do(t, http.MethodPost, "/api/api-keys", "owner-1", CreateAPIKeyRequest{Name: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/api-keys", "owner-1", CreateAPIKeyRequest{Name: "ci"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[APIKeyResponse](t, rec)
	require.True(t, strings.HasPrefix(created.Key, auth.APIKeyPrefix))
	assert.True(t, strings.HasPrefix(created.Key, created.Prefix))

	keyHeader := http.Header{auth.HeaderAPIKey: []string{created.Key}}
	rec = env.do(t, http.MethodGet, "/api/api-keys", "", nil, keyHeader)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decode[[]APIKeyResponse](t, rec)
	require.Len(t, listed, 1)
	assert.Empty(t, listed[0].Key)
	assert.Equal(t, "ci", listed[0].Name)

	rec = env.do(t, http.MethodDelete, "/api/api-keys/"+created.ID, "owner-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/api-keys/"+created.ID, "owner-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/api-keys", "", nil, keyHeader)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
