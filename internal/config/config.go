// ABOUTME: Configuration loading and parsing for chatdesk-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete chatdesk-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Snapshots SnapshotsConfig `yaml:"snapshots" toml:"snapshots"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Provider  ProviderConfig  `yaml:"provider" toml:"provider"`
	Widgets   WidgetsConfig   `yaml:"widgets" toml:"widgets"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
	// PublicURL is the externally reachable base URL, used in embed snippets
	PublicURL string `yaml:"public_url" toml:"public_url"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // Enable public Funnel so third-party pages can reach the widget
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// SnapshotsConfig holds conversation snapshot storage configuration
type SnapshotsConfig struct {
	// Path to the bbolt file; empty keeps snapshots in memory only
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// ProviderConfig holds the chat-completion provider configuration
type ProviderConfig struct {
	// BaseURL of an OpenAI-compatible API; empty selects the echo provider
	BaseURL string        `yaml:"base_url" toml:"base_url"`
	APIKey  string        `yaml:"api_key" toml:"api_key"`
	Model   string        `yaml:"model" toml:"model"`
	Timeout time.Duration `yaml:"-" toml:"-"`

	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// WidgetsConfig holds conversation timing configuration
type WidgetsConfig struct {
	WelcomeDelay    time.Duration `yaml:"-" toml:"-"`
	WelcomeTyping   time.Duration `yaml:"-" toml:"-"`
	MinReplyDelay   time.Duration `yaml:"-" toml:"-"`
	SessionIdleTTL  time.Duration `yaml:"-" toml:"-"`
	HistoryWindow   int           `yaml:"history_window" toml:"history_window"`
	DemoDedupeTTL   time.Duration `yaml:"-" toml:"-"`
	DemoDedupeLimit int           `yaml:"demo_dedupe_limit" toml:"demo_dedupe_limit"`

	// Raw string values for YAML/TOML unmarshaling
	WelcomeDelayRaw   string `yaml:"welcome_delay" toml:"welcome_delay"`
	WelcomeTypingRaw  string `yaml:"welcome_typing" toml:"welcome_typing"`
	MinReplyDelayRaw  string `yaml:"min_reply_delay" toml:"min_reply_delay"`
	SessionIdleTTLRaw string `yaml:"session_idle_ttl" toml:"session_idle_ttl"`
	DemoDedupeTTLRaw  string `yaml:"demo_dedupe_ttl" toml:"demo_dedupe_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default timing values, applied when the file leaves them unset.
const (
	DefaultWelcomeDelay    = 400 * time.Millisecond
	DefaultWelcomeTyping   = 1500 * time.Millisecond
	DefaultMinReplyDelay   = 800 * time.Millisecond
	DefaultSessionIdleTTL  = 30 * time.Minute
	DefaultHistoryWindow   = 20
	DefaultDemoDedupeTTL   = 10 * time.Minute
	DefaultDemoDedupeLimit = 10000
	DefaultProviderTimeout = 60 * time.Second
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// Server address is required unless Tailscale is enabled
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}

	if c.Widgets.HistoryWindow < 0 {
		return fmt.Errorf("widgets.history_window must not be negative")
	}

	return nil
}

// applyDefaults fills unset timing values.
func (c *Config) applyDefaults() {
	w := &c.Widgets
	if w.WelcomeDelay == 0 {
		w.WelcomeDelay = DefaultWelcomeDelay
	}
	if w.WelcomeTyping == 0 {
		w.WelcomeTyping = DefaultWelcomeTyping
	}
	if w.MinReplyDelay == 0 {
		w.MinReplyDelay = DefaultMinReplyDelay
	}
	if w.SessionIdleTTL == 0 {
		w.SessionIdleTTL = DefaultSessionIdleTTL
	}
	if w.HistoryWindow == 0 {
		w.HistoryWindow = DefaultHistoryWindow
	}
	if w.DemoDedupeTTL == 0 {
		w.DemoDedupeTTL = DefaultDemoDedupeTTL
	}
	if w.DemoDedupeLimit == 0 {
		w.DemoDedupeLimit = DefaultDemoDedupeLimit
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = DefaultProviderTimeout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"widgets.welcome_delay", cfg.Widgets.WelcomeDelayRaw, &cfg.Widgets.WelcomeDelay},
		{"widgets.welcome_typing", cfg.Widgets.WelcomeTypingRaw, &cfg.Widgets.WelcomeTyping},
		{"widgets.min_reply_delay", cfg.Widgets.MinReplyDelayRaw, &cfg.Widgets.MinReplyDelay},
		{"widgets.session_idle_ttl", cfg.Widgets.SessionIdleTTLRaw, &cfg.Widgets.SessionIdleTTL},
		{"widgets.demo_dedupe_ttl", cfg.Widgets.DemoDedupeTTLRaw, &cfg.Widgets.DemoDedupeTTL},
		{"provider.timeout", cfg.Provider.TimeoutRaw, &cfg.Provider.Timeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
