// Package transport carries a visitor's message to the agent backend and
// returns the reply.
//
// The Transport interface has one method, Ask. HTTPTransport implements it
// against POST /api/agents/{agentId}/ask. Embedded widgets and shared demos
// authenticate with a PublicIdentity, which adds the x-public-kind,
// x-widget-id/x-widget-token (or x-demo-id/x-demo-token) headers. Dashboard
// and preview callers send no identity headers.
//
// BuildHistory converts a widget conversation into the previousMessages
// payload: the "welcome" greeting is dropped and only the most recent turns
// are kept.
//
// Failures are never shown to a visitor as errors. Callers substitute
// ApologyReply, or a rotating Apologies response for demos, when Ask fails.
package transport
