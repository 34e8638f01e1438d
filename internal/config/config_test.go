// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
server:
  http_addr: "0.0.0.0:8080"
  public_url: "https://chat.example.com"

database:
  path: "./test.db"

snapshots:
  path: "./snapshots.bolt"

provider:
  base_url: "https://api.example.com/v1"
  model: "small"
  timeout: "15s"

widgets:
  welcome_delay: "200ms"
  welcome_typing: "1s"
  min_reply_delay: "500ms"
  history_window: 8

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "https://chat.example.com", cfg.Server.PublicURL)
	assert.Equal(t, "./test.db", cfg.Database.Path)
	assert.Equal(t, "./snapshots.bolt", cfg.Snapshots.Path)
	assert.Equal(t, 15*time.Second, cfg.Provider.Timeout)
	assert.Equal(t, 200*time.Millisecond, cfg.Widgets.WelcomeDelay)
	assert.Equal(t, time.Second, cfg.Widgets.WelcomeTyping)
	assert.Equal(t, 500*time.Millisecond, cfg.Widgets.MinReplyDelay)
	assert.Equal(t, 8, cfg.Widgets.HistoryWindow)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
server:
  http_addr: "127.0.0.1:8080"
database:
  path: ":memory:"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultWelcomeDelay, cfg.Widgets.WelcomeDelay)
	assert.Equal(t, DefaultWelcomeTyping, cfg.Widgets.WelcomeTyping)
	assert.Equal(t, DefaultMinReplyDelay, cfg.Widgets.MinReplyDelay)
	assert.Equal(t, DefaultSessionIdleTTL, cfg.Widgets.SessionIdleTTL)
	assert.Equal(t, DefaultHistoryWindow, cfg.Widgets.HistoryWindow)
	assert.Equal(t, DefaultProviderTimeout, cfg.Provider.Timeout)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[server]
http_addr = "0.0.0.0:9090"

[database]
path = "./toml.db"

[widgets]
min_reply_delay = "1s"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.HTTPAddr)
	assert.Equal(t, "./toml.db", cfg.Database.Path)
	assert.Equal(t, time.Second, cfg.Widgets.MinReplyDelay)
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("CHATDESK_TEST_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("CHATDESK_TEST_DB", "/tmp/env.db")

	path := writeConfig(t, "config.yaml", `
server:
  http_addr: "0.0.0.0:8080"
database:
  path: "${CHATDESK_TEST_DB}"
auth:
  jwt_secret: "${CHATDESK_TEST_SECRET}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/env.db", cfg.Database.Path)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", cfg.Auth.JWTSecret)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing http addr",
			content: "database:\n  path: x.db\n",
			wantErr: "server.http_addr is required",
		},
		{
			name:    "missing database",
			content: "server:\n  http_addr: \":8080\"\n",
			wantErr: "database.path is required",
		},
		{
			name:    "short secret",
			content: "server:\n  http_addr: \":8080\"\ndatabase:\n  path: x.db\nauth:\n  jwt_secret: short\n",
			wantErr: "jwt_secret must be at least 32 bytes",
		},
		{
			name:    "bad duration",
			content: "server:\n  http_addr: \":8080\"\ndatabase:\n  path: x.db\nwidgets:\n  welcome_delay: soon\n",
			wantErr: "widgets.welcome_delay",
		},
		{
			name:    "tailscale without hostname",
			content: "tailscale:\n  enabled: true\ndatabase:\n  path: x.db\n",
			wantErr: "tailscale.hostname is required",
		},
		{
			name:    "invalid yaml",
			content: "server: [",
			wantErr: "parsing config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "config.yaml", tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}
