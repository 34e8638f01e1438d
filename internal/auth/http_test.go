// ABOUTME: Tests for dashboard authentication middleware, API keys and public identity
// ABOUTME: Uses MockStore for key storage and httptest for requests

package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/chatdesk/internal/store"
	"github.com/2389/chatdesk/internal/transport"
)

func newTestKeys(t *testing.T) (*APIKeys, *store.MockStore) {
	t.Helper()
	st := store.NewMockStore()
	keys := NewAPIKeys(st, nil)
	keys.cost = bcrypt.MinCost
	return keys, st
}

func TestAPIKeys_CreateAndVerify(t *testing.T) {
	keys, st := newTestKeys(t)

	plaintext, key, err := keys.Create(t.Context(), "owner-1", "ci")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(plaintext, APIKeyPrefix))
	assert.Equal(t, plaintext[:prefixLen], key.Prefix)
	assert.NotContains(t, string(key.Hash), plaintext)

	got, err := keys.Verify(t.Context(), plaintext)
	require.NoError(t, err)
	assert.Equal(t, key.ID, got.ID)
	assert.Equal(t, "owner-1", got.OwnerID)

	stored, err := st.ListAPIKeys(t.Context(), "owner-1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.NotNil(t, stored[0].LastUsedAt)
}

func TestAPIKeys_VerifyRejects(t *testing.T) {
	keys, _ := newTestKeys(t)
	plaintext, _, err := keys.Create(t.Context(), "owner-1", "ci")
	require.NoError(t, err)

	tests := []struct {
		name string
		key  string
	}{
		{"no prefix", "xx_abcdefghijklmnop"},
		{"too short", "cd_abc"},
		{"unknown prefix", "cd_zzzzzzzzzzzzzzzzzzzz"},
		{"tampered secret", plaintext[:len(plaintext)-1] + "!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := keys.Verify(t.Context(), tt.key)
			assert.ErrorIs(t, err, ErrInvalidAPIKey)
		})
	}
}

func TestMiddleware(t *testing.T) {
	verifier := newTestVerifier(t)
	keys, _ := newTestKeys(t)
	apiKey, stored, err := keys.Create(t.Context(), "owner-key", "ci")
	require.NoError(t, err)

	validJWT, err := verifier.Generate("owner-jwt", time.Hour)
	require.NoError(t, err)
	expiredJWT, err := verifier.Generate("owner-jwt", -time.Hour)
	require.NoError(t, err)

	authn := NewAuthenticator(verifier, keys, nil)

	tests := []struct {
		name       string
		headers    map[string]string
		wantStatus int
		wantID     *Identity
		wantError  string
	}{
		{
			name:       "bearer token",
			headers:    map[string]string{"Authorization": "Bearer " + validJWT},
			wantStatus: http.StatusOK,
			wantID:     &Identity{OwnerID: "owner-jwt", Method: MethodJWT},
		},
		{
			name:       "api key",
			headers:    map[string]string{HeaderAPIKey: apiKey},
			wantStatus: http.StatusOK,
			wantID:     &Identity{OwnerID: "owner-key", Method: MethodAPIKey, KeyID: stored.ID},
		},
		{
			name:       "no credentials",
			wantStatus: http.StatusUnauthorized,
			wantError:  "missing credentials",
		},
		{
			name:       "basic auth",
			headers:    map[string]string{"Authorization": "Basic abc"},
			wantStatus: http.StatusUnauthorized,
			wantError:  "invalid credentials",
		},
		{
			name:       "expired token",
			headers:    map[string]string{"Authorization": "Bearer " + expiredJWT},
			wantStatus: http.StatusUnauthorized,
			wantError:  "token expired",
		},
		{
			name:       "bad api key",
			headers:    map[string]string{HeaderAPIKey: "cd_nope-nope-nope"},
			wantStatus: http.StatusUnauthorized,
			wantError:  "invalid api key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *Identity
			handler := authn.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = FromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/agents", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantID != nil {
				assert.Equal(t, tt.wantID, got)
				return
			}
			assert.Nil(t, got)
			var body map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantError, body["error"])
		})
	}
}

func TestMustFromContextPanics(t *testing.T) {
	assert.Panics(t, func() { MustFromContext(t.Context()) })

	ctx := WithIdentity(t.Context(), &Identity{OwnerID: "o"})
	assert.Equal(t, "o", MustFromContext(ctx).OwnerID)
}

func TestPublicIdentityFromRequest(t *testing.T) {
	t.Run("widget", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/agents/a/ask", nil)
		transport.PublicIdentity{Kind: transport.KindWidget, ID: "w1"}.Apply(req.Header)

		id, ok := PublicIdentityFromRequest(req)
		require.True(t, ok)
		assert.Equal(t, transport.KindWidget, id.Kind)
		assert.Equal(t, "w1", id.ID)
		assert.True(t, ValidPublicToken(id.Token))
	})

	t.Run("demo", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/agents/a/ask", nil)
		transport.PublicIdentity{Kind: transport.KindDemo, ID: "d1", Token: "other"}.Apply(req.Header)

		id, ok := PublicIdentityFromRequest(req)
		require.True(t, ok)
		assert.Equal(t, "d1", id.ID)
		assert.False(t, ValidPublicToken(id.Token))
	})

	t.Run("missing headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/agents/a/ask", nil)
		_, ok := PublicIdentityFromRequest(req)
		assert.False(t, ok)
	})

	t.Run("kind without id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/agents/a/ask", nil)
		req.Header.Set(transport.HeaderPublicKind, "widget")
		_, ok := PublicIdentityFromRequest(req)
		assert.False(t, ok)
	})
}
