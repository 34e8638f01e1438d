// Package auth authenticates chatdesk HTTP callers.
//
// # Dashboard callers
//
// Dashboard requests carry one of:
//
//   - Authorization: Bearer <jwt>  HS256 token issued by the session provider,
//     owner id in the "sub" claim. Verified with auth.jwt_secret.
//   - X-API-Key: cd_<random>  key created through the API keys endpoint.
//     Looked up by prefix and checked against its bcrypt hash.
//
// Middleware attaches an Identity to the request context; handlers read it
// with FromContext.
//
// # Public callers
//
// Embedded widgets and demo pages send x-public-kind plus the widget or demo
// id and token headers. PublicIdentityFromRequest extracts them. The token is
// the static value "public" and is accepted as-is.
package auth
