// ABOUTME: Terminal preview of a chatdesk widget, talking to a running gateway
// ABOUTME: Loads the widget config over HTTP and runs the conversation in-process

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/2389/chatdesk/internal/config"
	"github.com/2389/chatdesk/internal/conversation"
	"github.com/2389/chatdesk/internal/transport"
	"github.com/2389/chatdesk/internal/widget"
)

// publicConfig is the body of GET /api/chatbot-configs/{id}.
type publicConfig struct {
	Success bool          `json:"success"`
	Config  widget.Config `json:"config"`
}

func fetchConfig(ctx context.Context, client *http.Client, baseURL, id string) (widget.Config, error) {
	endpoint := strings.TrimSuffix(baseURL, "/") + "/api/chatbot-configs/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return widget.Config{}, fmt.Errorf("creating request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return widget.Config{}, fmt.Errorf("fetching widget config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return widget.Config{}, fmt.Errorf("widget %s not found", id)
	}
	if resp.StatusCode != http.StatusOK {
		return widget.Config{}, fmt.Errorf("fetching widget config: status %d", resp.StatusCode)
	}
	var body publicConfig
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return widget.Config{}, fmt.Errorf("decoding widget config: %w", err)
	}
	if !body.Success {
		return widget.Config{}, fmt.Errorf("widget %s unavailable", id)
	}
	return body.Config, nil
}

// echoTransport answers locally so layouts can be checked without a gateway.
var echoTransport = transport.Func(func(ctx context.Context, req transport.AskRequest) (string, error) {
	return "You said: " + req.Message, nil
})

type options struct {
	gateway  string
	widgetID string
	demoID   string
	agentID  string
	mode     string
	token    string
	offline  bool
	logFile  string
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("widget-preview", flag.ContinueOnError)
	fs.StringVar(&o.gateway, "gateway", "http://localhost:8080", "Gateway base URL")
	fs.StringVar(&o.widgetID, "widget", "", "Widget config id to preview")
	fs.StringVar(&o.demoID, "demo", "", "Demo id to preview (requires -agent)")
	fs.StringVar(&o.agentID, "agent", "", "Agent id; overrides the widget's selected agent")
	fs.StringVar(&o.mode, "mode", "production", "Conversation mode: production, preview or dashboard")
	fs.StringVar(&o.token, "token", os.Getenv("CHATDESK_TOKEN"), "Dashboard bearer token (dashboard mode)")
	fs.BoolVar(&o.offline, "offline", false, "Echo replies locally instead of calling the gateway")
	fs.StringVar(&o.logFile, "log", "", "Write debug logs to this file")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.widgetID == "" && o.demoID == "" && !o.offline {
		return o, fmt.Errorf("one of -widget, -demo or -offline is required")
	}
	if o.widgetID != "" && o.demoID != "" {
		return o, fmt.Errorf("-widget and -demo are mutually exclusive")
	}
	if o.demoID != "" && o.agentID == "" && !o.offline {
		return o, fmt.Errorf("-demo requires -agent")
	}
	return o, nil
}

// buildOptions resolves the widget config and transport for a session.
func buildOptions(ctx context.Context, o options, client *http.Client) (conversation.Options, error) {
	mode, ok := conversation.ParseMode(o.mode)
	if !ok {
		return conversation.Options{}, fmt.Errorf("unknown mode %q", o.mode)
	}

	cfg := widget.Config{ID: "preview", ChatTitle: "Preview", ShowWelcomeMessage: true, WelcomeMessage: "Hi! This is an offline preview."}
	switch {
	case o.widgetID != "" && !o.offline:
		fetched, err := fetchConfig(ctx, client, o.gateway, o.widgetID)
		if err != nil {
			return conversation.Options{}, err
		}
		cfg = fetched
	case o.demoID != "":
		cfg = widget.Config{ID: o.demoID, ChatTitle: "Demo"}
	}
	if o.agentID != "" {
		cfg.SelectedAgent = o.agentID
	}

	var tr transport.Transport = echoTransport
	if !o.offline {
		httpOpts := []transport.HTTPOption{transport.WithHTTPClient(client)}
		switch {
		case mode == conversation.ModeDashboard:
			if o.token == "" {
				return conversation.Options{}, fmt.Errorf("dashboard mode needs -token or CHATDESK_TOKEN")
			}
			httpOpts = append(httpOpts, transport.WithHeader("Authorization", "Bearer "+o.token))
		case o.demoID != "":
			httpOpts = append(httpOpts, transport.WithPublicIdentity(transport.PublicIdentity{Kind: transport.KindDemo, ID: o.demoID}))
		default:
			httpOpts = append(httpOpts, transport.WithPublicIdentity(transport.PublicIdentity{Kind: transport.KindWidget, ID: cfg.ID}))
		}
		tr = transport.NewHTTPTransport(o.gateway, httpOpts...)
	}

	return conversation.Options{
		Config:    cfg,
		Mode:      mode,
		Transport: tr,
	}, nil
}

func run(ctx context.Context, args []string) error {
	o, err := parseFlags(args)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if o.logFile != "" {
		f, err := os.OpenFile(o.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer f.Close()
		logger = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	opts, err := buildOptions(ctx, o, &http.Client{Timeout: 60 * time.Second})
	if err != nil {
		return err
	}
	opts.Logger = logger

	ctrl := conversation.New(opts)
	defer ctrl.Shutdown()
	ctrl.Restore(ctx)
	ctrl.Open()

	p := tea.NewProgram(newModel(ctx, ctrl), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("running preview: %w", err)
	}
	return nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if _, err := config.LoadEnvFiles(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := run(ctx, os.Args[1:]); err != nil {
		cancel()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
