// Package dedupe remembers the outcome of idempotent operations for a
// limited time, keyed by a caller-supplied request id.
//
// The gateway wraps demo usage increments in Cache.Do so that a client
// retrying POST /api/demo/{id}/usage with the same X-Request-ID gets the
// original result instead of a second increment.
package dedupe
