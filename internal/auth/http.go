// ABOUTME: HTTP middleware for dashboard authentication (JWT bearer or X-API-Key)
// ABOUTME: Also extracts the public widget/demo identity sent by embedded callers

package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/2389/chatdesk/internal/transport"
)

// HeaderAPIKey carries a dashboard API key.
const HeaderAPIKey = "X-API-Key"

// ErrMissingCredentials indicates neither a bearer token nor an API key was sent.
var ErrMissingCredentials = errors.New("missing credentials")

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// Authenticator resolves dashboard credentials to an Identity.
type Authenticator struct {
	verifier TokenVerifier
	keys     *APIKeys
	logger   *slog.Logger
}

// NewAuthenticator creates an Authenticator. A nil verifier disables bearer
// tokens; nil keys disables API keys.
func NewAuthenticator(verifier TokenVerifier, keys *APIKeys, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		verifier: verifier,
		keys:     keys,
		logger:   logger.With("component", "auth"),
	}
}

// Authenticate checks the request's credentials. An API key wins over a
// bearer token when both are present.
func (a *Authenticator) Authenticate(r *http.Request) (*Identity, error) {
	if key := r.Header.Get(HeaderAPIKey); key != "" && a.keys != nil {
		stored, err := a.keys.Verify(r.Context(), key)
		if err != nil {
			return nil, err
		}
		return &Identity{OwnerID: stored.OwnerID, Method: MethodAPIKey, KeyID: stored.ID}, nil
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, ErrMissingCredentials
	}
	token, errMsg := extractBearerToken(authHeader)
	if errMsg != "" {
		return nil, errors.Join(ErrInvalidToken, errors.New(errMsg))
	}
	if a.verifier == nil {
		return nil, fmt.Errorf("%w: bearer tokens are disabled", ErrInvalidToken)
	}
	ownerID, err := a.verifier.Verify(token)
	if err != nil {
		return nil, err
	}
	return &Identity{OwnerID: ownerID, Method: MethodJWT}, nil
}

// Middleware rejects unauthenticated requests with 401 and otherwise
// attaches the Identity to the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.Authenticate(r)
		if err != nil {
			a.logger.Debug("rejected dashboard request", "path", r.URL.Path, "error", err)
			writeUnauthorized(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	msg := "invalid credentials"
	switch {
	case errors.Is(err, ErrMissingCredentials):
		msg = "missing credentials"
	case errors.Is(err, ErrExpiredToken):
		msg = "token expired"
	case errors.Is(err, ErrInvalidAPIKey):
		msg = "invalid api key"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// PublicIdentityFromRequest extracts the widget or demo identity headers.
// ok is false when x-public-kind is absent, unknown, or the id is missing.
func PublicIdentityFromRequest(r *http.Request) (transport.PublicIdentity, bool) {
	kind := transport.PublicKind(strings.ToLower(strings.TrimSpace(r.Header.Get(transport.HeaderPublicKind))))
	var id transport.PublicIdentity
	switch kind {
	case transport.KindWidget:
		id = transport.PublicIdentity{
			Kind:  kind,
			ID:    r.Header.Get(transport.HeaderWidgetID),
			Token: r.Header.Get(transport.HeaderWidgetToken),
		}
	case transport.KindDemo:
		id = transport.PublicIdentity{
			Kind:  kind,
			ID:    r.Header.Get(transport.HeaderDemoID),
			Token: r.Header.Get(transport.HeaderDemoToken),
		}
	default:
		return transport.PublicIdentity{}, false
	}
	if id.ID == "" {
		return transport.PublicIdentity{}, false
	}
	return id, true
}

// ValidPublicToken reports whether token is acceptable for public traffic.
// The value is the static "public" marker; it is not a secret.
func ValidPublicToken(token string) bool {
	return token == transport.PublicToken
}
