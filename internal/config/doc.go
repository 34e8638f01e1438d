// Package config handles configuration loading for chatdesk-gateway.
//
// # Overview
//
// Configuration is loaded from YAML (or TOML, by file extension) with
// environment variable expansion. A .env file in the working directory is
// loaded by the gateway binary before the config file is read.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from CHATDESK_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/chatdesk/gateway.yaml
//  3. ~/.config/chatdesk/gateway.yaml
//
// # Environment Variable Expansion
//
//	auth:
//	  jwt_secret: "${CHATDESK_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to "".
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	  public_url: "https://chat.example.com"
//
//	database:
//	  path: "/var/lib/chatdesk/chatdesk.db"
//
//	snapshots:
//	  path: "/var/lib/chatdesk/snapshots.bolt"   # empty: in-memory
//
//	auth:
//	  jwt_secret: "${CHATDESK_JWT_SECRET}"        # >= 32 bytes
//
//	provider:
//	  base_url: "https://api.openai.com/v1"       # empty: echo provider
//	  api_key: "${OPENAI_API_KEY}"
//	  model: "gpt-4o-mini"
//	  timeout: "60s"
//
//	widgets:
//	  welcome_delay: "400ms"
//	  welcome_typing: "1500ms"
//	  min_reply_delay: "800ms"
//	  session_idle_ttl: "30m"
//	  history_window: 20
//	  demo_dedupe_ttl: "10m"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates the HTTP address (unless tailscale is enabled), the
// database path, the JWT secret length and duration formats.
package config
