// ABOUTME: Authentication context for tracking the dashboard owner through handlers
// ABOUTME: Provides WithIdentity/FromContext for propagating identity via context

package auth

import "context"

// Method names how a caller authenticated.
type Method string

const (
	MethodJWT    Method = "jwt"
	MethodAPIKey Method = "api_key"
)

// Identity is the authenticated dashboard owner.
type Identity struct {
	OwnerID string
	Method  Method
	KeyID   string // set for MethodAPIKey
}

type identityKey struct{}

// WithIdentity returns a new context with id attached.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the Identity, or nil if the request is unauthenticated.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}

// MustFromContext retrieves the Identity, panicking if not present.
func MustFromContext(ctx context.Context) *Identity {
	id := FromContext(ctx)
	if id == nil {
		panic("auth: Identity not found in context")
	}
	return id
}
