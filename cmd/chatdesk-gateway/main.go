// ABOUTME: Entry point for chatdesk-gateway, the widget and dashboard HTTP server
// ABOUTME: Commands: serve, init, bootstrap, health and ready

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/2389/chatdesk/internal/auth"
	"github.com/2389/chatdesk/internal/config"
	"github.com/2389/chatdesk/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
       _           _      _           _
   ___| |__   __ _| |_ __| | ___  ___| | __
  / __| '_ \ / _' | __/ _' |/ _ \/ __| |/ /
 | (__| | | | (_| | || (_| |  __/\__ \   <
  \___|_| |_|\__,_|\__\__,_|\___||___/_|\_\
`

func usage() {
	fmt.Println("Usage: chatdesk-gateway <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                    Start the gateway server")
	fmt.Println("  init                     Create a new config file interactively")
	fmt.Println("  bootstrap [--owner ID]   Create a config with a fresh secret and an owner token")
	fmt.Println("  health                   Check gateway liveness")
	fmt.Println("  ready                    Check gateway readiness and session count")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath := config.DefaultPath()
	if _, err := config.LoadEnvFiles(".env", filepath.Join(filepath.Dir(configPath), ".env")); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, configPath)
	case "init":
		err = runInit(os.Stdin, configPath)
	case "bootstrap":
		err = runBootstrap(configPath, os.Args[2:])
	case "health":
		err = probe(ctx, configPath, "/health")
	case "ready":
		err = probe(ctx, configPath, "/health/ready")
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context, configPath string) error {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	if cfg.Provider.BaseURL != "" {
		fmt.Printf("Provider:  %s", cfg.Provider.BaseURL)
		if cfg.Provider.Model != "" {
			gray.Printf(" (%s)", cfg.Provider.Model)
		}
		fmt.Println()
	} else {
		fmt.Print("Provider:  ")
		yellow.Println("echo (no provider.base_url)")
	}
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Print("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}
	fmt.Println()

	logger.Info("starting chatdesk-gateway", "config", configPath, "http_addr", cfg.Server.HTTPAddr, "version", version)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	return gw.Run(ctx)
}

// probe GETs a health endpoint and prints the body.
func probe(ctx context.Context, configPath, path string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+cfg.Server.HTTPAddr+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	fmt.Println(strings.TrimSpace(string(body)))
	return nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// configOptions are the values written into a generated config file.
type configOptions struct {
	HTTPAddr      string
	DBPath        string
	SnapshotsPath string
	JWTSecret     string
	ProviderURL   string
	ProviderModel string
	Tailscale     bool
	TSHostname    string
	TSFunnel      bool
	LogLevel      string
	LogFormat     string
}

func renderConfig(o configOptions, generatedBy string) string {
	var b strings.Builder
	b.WriteString("# chatdesk-gateway configuration\n")
	fmt.Fprintf(&b, "# Generated by chatdesk-gateway %s\n\n", generatedBy)

	fmt.Fprintf(&b, "server:\n  http_addr: %q\n\n", o.HTTPAddr)
	fmt.Fprintf(&b, "database:\n  path: %q\n\n", o.DBPath)
	fmt.Fprintf(&b, "snapshots:\n  path: %q\n\n", o.SnapshotsPath)
	if o.JWTSecret != "" {
		fmt.Fprintf(&b, "auth:\n  jwt_secret: %q\n\n", o.JWTSecret)
	}

	b.WriteString("provider:\n")
	if o.ProviderURL != "" {
		fmt.Fprintf(&b, "  base_url: %q\n", o.ProviderURL)
		b.WriteString("  api_key: \"${CHATDESK_PROVIDER_KEY}\"\n")
		if o.ProviderModel != "" {
			fmt.Fprintf(&b, "  model: %q\n", o.ProviderModel)
		}
	}
	b.WriteString("  timeout: \"60s\"\n\n")

	fmt.Fprintf(&b, "tailscale:\n  enabled: %t\n", o.Tailscale)
	if o.Tailscale {
		fmt.Fprintf(&b, "  hostname: %q\n  funnel: %t\n", o.TSHostname, o.TSFunnel)
	}
	b.WriteString("\n")

	b.WriteString("widgets:\n")
	b.WriteString("  welcome_delay: \"400ms\"\n")
	b.WriteString("  welcome_typing: \"1500ms\"\n")
	b.WriteString("  min_reply_delay: \"800ms\"\n")
	b.WriteString("  session_idle_ttl: \"30m\"\n")
	b.WriteString("  history_window: 20\n\n")

	fmt.Fprintf(&b, "logging:\n  level: %q\n  format: %q\n", o.LogLevel, o.LogFormat)
	return b.String()
}

func writeConfigFile(path, content string, o configOptions) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(o.DBPath), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	// The file carries the JWT secret.
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// runBootstrap writes a config with a fresh JWT secret when none exists and
// issues a 30 day dashboard token for an owner id.
func runBootstrap(configPath string, args []string) error {
	fs := flag.NewFlagSet("bootstrap", flag.ContinueOnError)
	owner := fs.String("owner", "", "owner id to issue a token for (default: new uuid)")
	ttl := fs.Duration("ttl", 30*24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	ownerID := strings.TrimSpace(*owner)
	if ownerID == "" {
		ownerID = uuid.New().String()
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		secret, err := randomSecret()
		if err != nil {
			return err
		}
		dataDir := config.DataDir()
		o := configOptions{
			HTTPAddr:      "localhost:8080",
			DBPath:        filepath.Join(dataDir, "chatdesk.db"),
			SnapshotsPath: filepath.Join(dataDir, "snapshots.db"),
			JWTSecret:     secret,
			LogLevel:      "info",
			LogFormat:     "text",
		}
		if err := writeConfigFile(configPath, renderConfig(o, "bootstrap"), o); err != nil {
			return err
		}
		green.Printf("  ✓ Created config: %s\n", configPath)
	} else {
		cyan.Printf("  Using existing config: %s\n", configPath)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret not configured in %s (required for bootstrap)", configPath)
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}
	token, err := verifier.Generate(ownerID, *ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	tokenPath := filepath.Join(filepath.Dir(configPath), "token")
	if err := os.WriteFile(tokenPath, []byte(token), 0o600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	green.Printf("  ✓ Saved token: %s\n", tokenPath)

	fmt.Println()
	green.Println("  Bootstrap complete!")
	fmt.Println()
	cyan.Println("  Owner")
	cyan.Println("  -----")
	fmt.Printf("  ID:      %s\n", ownerID)
	fmt.Printf("  Token:   %s (expires %s)\n", tokenPath, time.Now().Add(*ttl).UTC().Format("Jan 02, 2006"))
	fmt.Println()
	yellow.Println("  Ready to go:")
	fmt.Println("    chatdesk-gateway serve                 # start the gateway")
	fmt.Println("    chatdesk-admin agents create --owner " + ownerID + " --name Support")
	fmt.Println()
	return nil
}

func runInit(in io.Reader, defaultPath string) error {
	reader := bufio.NewReader(in)

	fmt.Println("chatdesk-gateway configuration setup")
	fmt.Println("====================================")
	fmt.Println()

	dataDir := config.DataDir()
	outputFile := prompt(reader, "Config file path", defaultPath)
	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	o := configOptions{}
	fmt.Println("\n--- Server ---")
	o.HTTPAddr = prompt(reader, "HTTP address", "localhost:8080")

	fmt.Println("\n--- Storage ---")
	o.DBPath = prompt(reader, "SQLite database path", filepath.Join(dataDir, "chatdesk.db"))
	o.SnapshotsPath = prompt(reader, "Conversation snapshot file", filepath.Join(dataDir, "snapshots.db"))

	fmt.Println("\n--- Dashboard auth ---")
	if yes(prompt(reader, "Generate a JWT secret?", "yes")) {
		secret, err := randomSecret()
		if err != nil {
			return err
		}
		o.JWTSecret = secret
	}

	fmt.Println("\n--- Completion provider ---")
	o.ProviderURL = prompt(reader, "OpenAI-compatible base URL (empty for echo)", "")
	if o.ProviderURL != "" {
		o.ProviderModel = prompt(reader, "Default model", "gpt-4o-mini")
	}

	fmt.Println("\n--- Tailscale ---")
	o.Tailscale = yes(prompt(reader, "Enable Tailscale?", "no"))
	if o.Tailscale {
		o.TSHostname = prompt(reader, "Tailscale hostname", "chatdesk")
		o.TSFunnel = yes(prompt(reader, "Enable Funnel (public HTTPS)?", "yes"))
	}

	fmt.Println("\n--- Logging ---")
	o.LogLevel = prompt(reader, "Log level (debug/info/warn/error)", "info")
	o.LogFormat = prompt(reader, "Log format (text/json)", "text")

	if err := writeConfigFile(outputFile, renderConfig(o, "init"), o); err != nil {
		return err
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	if o.ProviderURL != "" {
		fmt.Println("Set CHATDESK_PROVIDER_KEY in the environment or a .env file next to the config.")
	}
	fmt.Println("\nTo start the server:")
	fmt.Println("  chatdesk-gateway serve")
	return nil
}

func yes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// EOF keeps the default.
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}
