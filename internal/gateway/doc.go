// Package gateway is the chatdesk HTTP server.
//
// # Overview
//
// Gateway owns the store, the snapshot store, the agent service and the
// widget session hub, and serves every HTTP surface:
//
//   - Public widget traffic: the ask endpoint, config lookup, demo usage
//     counting, the widget page at /widget/{id}, and widget sessions with
//     their SSE event streams.
//   - Dashboard API: agents, chatbot configs, demos, usage limits and
//     history, support tickets and API keys. Every dashboard route goes
//     through auth.Authenticator and is scoped to the caller's owner id.
//   - /health and /health/ready.
//
// # Widget sessions
//
// A session is one conversation.Controller hosted in the gateway for one
// visitor of one widget. The browser runtime (assets/static/widget.js)
// creates a session, drives it with open/close/reset/messages calls, and
// listens on /api/sessions/{sid}/events for two kinds of SSE events:
//
//	event: state   conversation state, with bot messages rendered to HTML
//	event: host    WIDGET_READY / WIDGET_OPEN / WIDGET_CLOSE for the host page
//
// Sessions idle for longer than widgets.session_idle_ttl are shut down.
//
// # Listeners
//
// The HTTP server listens on server.http_addr, or on a Tailscale node
// (tsnet) when tailscale.enabled is set. With tailscale.funnel the widget
// is reachable from the public internet.
package gateway
