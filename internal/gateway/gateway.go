// ABOUTME: Gateway orchestrator that wires storage, agents, usage and widget sessions
// ABOUTME: Manages the HTTP server lifecycle, optional Tailscale listener and health endpoints

package gateway

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/chatdesk/internal/agent"
	"github.com/2389/chatdesk/internal/assets"
	"github.com/2389/chatdesk/internal/auth"
	"github.com/2389/chatdesk/internal/config"
	"github.com/2389/chatdesk/internal/conversation"
	"github.com/2389/chatdesk/internal/dedupe"
	"github.com/2389/chatdesk/internal/hostbridge"
	"github.com/2389/chatdesk/internal/persistence"
	"github.com/2389/chatdesk/internal/store"
	"github.com/2389/chatdesk/internal/usage"
)

// Gateway is the chatdesk server.
type Gateway struct {
	config    *config.Config
	store     store.Store
	snapshots persistence.SnapshotStore
	agents    *agent.Service
	usage     *usage.Service
	demoUsage *usage.DemoUsage
	dedupe    *dedupe.Cache[int]
	apiKeys   *auth.APIKeys
	authn     *auth.Authenticator
	hub       *hostbridge.Hub
	sessions  *sessionHub
	pages     *template.Template
	clock     conversation.Clock
	logger    *slog.Logger

	httpServer  *http.Server
	tsnetServer *tsnet.Server

	// closers are released on Shutdown, in order
	closers []io.Closer
}

// Deps are the collaborators New builds from config; tests supply their own.
type Deps struct {
	Store     store.Store
	Snapshots persistence.SnapshotStore
	Completer agent.Completer
	Clock     conversation.Clock
}

// initStore opens the SQLite database named by config or CHATDESK_DB_PATH.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("CHATDESK_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// initSnapshots opens the bbolt snapshot file, or an in-memory store when no path is set.
func initSnapshots(cfg *config.Config, logger *slog.Logger) (persistence.SnapshotStore, io.Closer, error) {
	if cfg.Snapshots.Path == "" {
		logger.Warn("snapshots.path not set - widget conversations are kept in memory only")
		return persistence.NewMemoryStore(), nil, nil
	}
	bs, err := persistence.OpenBoltStore(cfg.Snapshots.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening snapshot store: %w", err)
	}
	return bs, bs, nil
}

// initCompleter selects the completion provider.
func initCompleter(cfg *config.Config, logger *slog.Logger) agent.Completer {
	if cfg.Provider.BaseURL == "" {
		logger.Warn("provider.base_url not set - agents answer with the echo provider")
		return agent.EchoCompleter{}
	}
	logger.Info("completion provider configured", "base_url", cfg.Provider.BaseURL, "model", cfg.Provider.Model)
	return agent.NewOpenAICompleter(cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Provider.Model, cfg.Provider.Timeout)
}

// New creates a Gateway from configuration, opening its databases.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}
	snaps, snapCloser, err := initSnapshots(cfg, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	gw, err := NewWithDeps(cfg, Deps{
		Store:     s,
		Snapshots: snaps,
		Completer: initCompleter(cfg, logger),
	}, logger)
	if err != nil {
		_ = s.Close()
		if snapCloser != nil {
			_ = snapCloser.Close()
		}
		return nil, err
	}
	if snapCloser != nil {
		gw.closers = append(gw.closers, snapCloser)
	}
	return gw, nil
}

// NewWithDeps creates a Gateway around existing collaborators. The store
// is closed on Shutdown.
func NewWithDeps(cfg *config.Config, deps Deps, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Store == nil {
		return nil, errors.New("gateway: store is required")
	}
	if deps.Snapshots == nil {
		deps.Snapshots = persistence.NewMemoryStore()
	}
	if deps.Clock == nil {
		deps.Clock = conversation.RealClock{}
	}

	pages, err := assets.Templates(pageFuncs)
	if err != nil {
		return nil, fmt.Errorf("parsing page templates: %w", err)
	}

	dedupeTTL := cfg.Widgets.DemoDedupeTTL
	if dedupeTTL <= 0 {
		dedupeTTL = config.DefaultDemoDedupeTTL
	}
	dedupeLimit := cfg.Widgets.DemoDedupeLimit
	if dedupeLimit <= 0 {
		dedupeLimit = config.DefaultDemoDedupeLimit
	}
	cache := dedupe.New[int](dedupeTTL, dedupeLimit)

	apiKeys := auth.NewAPIKeys(deps.Store, logger)
	var verifier auth.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		v, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		if err != nil {
			cache.Close()
			return nil, fmt.Errorf("creating JWT verifier: %w", err)
		}
		verifier = v
		logger.Info("dashboard auth enabled (JWT + API keys)")
	} else {
		logger.Warn("no jwt_secret configured - dashboard accepts API keys only")
	}

	hub := hostbridge.NewHub(logger)
	gw := &Gateway{
		config:    cfg,
		store:     deps.Store,
		snapshots: deps.Snapshots,
		agents:    agent.NewService(deps.Store, deps.Completer, logger),
		usage:     usage.NewService(deps.Store, logger, usage.WithClock(deps.Clock.Now)),
		demoUsage: usage.NewDemoUsage(deps.Store, cache, logger),
		dedupe:    cache,
		apiKeys:   apiKeys,
		authn:     auth.NewAuthenticator(verifier, apiKeys, logger),
		hub:       hub,
		pages:     pages,
		clock:     deps.Clock,
		logger:    logger.With("component", "gateway"),
	}

	idle := cfg.Widgets.SessionIdleTTL
	if idle <= 0 {
		idle = config.DefaultSessionIdleTTL
	}
	gw.sessions = newSessionHub(idle, logger)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return gw, nil
}

// Handler returns the gateway's HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// routes builds the HTTP mux.
func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)

	// Public widget surface
	mux.HandleFunc("POST /api/agents/{agentId}/ask", g.handleAsk)
	mux.HandleFunc("GET /api/chatbot-configs/{id}", g.handlePublicConfig)
	mux.HandleFunc("POST /api/demo/{demoId}/usage", g.handleDemoUsage)
	mux.HandleFunc("GET /widget/{id}", g.handleWidgetPage)
	mux.HandleFunc("GET /demo/{id}", g.handleDemoPage)
	mux.Handle("GET /static/", http.StripPrefix("/static/", assets.FileServer()))

	mux.HandleFunc("POST /api/widgets/{id}/sessions", g.handleCreateWidgetSession)
	mux.HandleFunc("POST /api/demos/{id}/sessions", g.handleCreateDemoSession)
	mux.HandleFunc("GET /api/sessions/{sid}", g.handleGetSession)
	mux.HandleFunc("POST /api/sessions/{sid}/open", g.handleSessionOpen)
	mux.HandleFunc("POST /api/sessions/{sid}/close", g.handleSessionClose)
	mux.HandleFunc("POST /api/sessions/{sid}/reset", g.handleSessionReset)
	mux.HandleFunc("POST /api/sessions/{sid}/messages", g.handleSessionMessage)
	mux.HandleFunc("GET /api/sessions/{sid}/events", g.handleSessionEvents)

	// Dashboard API
	dash := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, g.authn.Middleware(h))
	}
	dash("GET /api/agents", g.handleListAgents)
	dash("POST /api/agents", g.handleCreateAgent)
	dash("GET /api/agents/{id}", g.handleGetAgent)
	dash("PUT /api/agents/{id}", g.handleUpdateAgent)
	dash("DELETE /api/agents/{id}", g.handleDeleteAgent)

	dash("GET /api/chatbot-configs", g.handleListConfigs)
	dash("POST /api/chatbot-configs", g.handleCreateConfig)
	dash("PUT /api/chatbot-configs/{id}", g.handleUpdateConfig)
	dash("DELETE /api/chatbot-configs/{id}", g.handleDeleteConfig)

	dash("GET /api/demos", g.handleListDemos)
	dash("POST /api/demos", g.handleCreateDemo)
	dash("GET /api/demos/{id}", g.handleGetDemo)
	dash("PUT /api/demos/{id}", g.handleUpdateDemo)
	dash("DELETE /api/demos/{id}", g.handleDeleteDemo)

	dash("GET /api/connections/{id}/usage-limit", g.handleGetUsageLimit)
	dash("PUT /api/connections/{id}/usage-limit", g.handleUpdateUsageLimit)
	dash("GET /api/connections/{id}/usage-history", g.handleListUsageHistory)
	dash("DELETE /api/connections/{id}/usage-history", g.handleClearUsageHistory)
	dash("DELETE /api/usage-history/{recordId}", g.handleDeleteUsageRecord)

	dash("GET /api/tickets", g.handleListTickets)
	dash("POST /api/tickets", g.handleCreateTicket)
	dash("GET /api/tickets/{id}", g.handleGetTicket)
	dash("PATCH /api/tickets/{id}", g.handleUpdateTicket)
	dash("GET /api/tickets/{id}/replies", g.handleListTicketReplies)
	dash("POST /api/tickets/{id}/replies", g.handleAddTicketReply)

	dash("GET /api/api-keys", g.handleListAPIKeys)
	dash("POST /api/api-keys", g.handleCreateAPIKey)
	dash("DELETE /api/api-keys/{id}", g.handleDeleteAPIKey)

	return g.logRequests(mux)
}

// logRequests logs each request at debug level.
func (g *Gateway) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		g.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// setupListener creates the HTTP listener (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.http_addr is ignored when tailscale is enabled", "http_addr", g.config.Server.HTTPAddr)
		}
		return g.setupTailscaleListener(ctx)
	}

	g.logger.Info("starting gateway", "http_addr", g.config.Server.HTTPAddr)
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// Run starts the HTTP server and blocks until ctx is canceled or the server fails.
// Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	go g.sessions.runEviction(ctx)

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	// The run context is already canceled here.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownErr := g.Shutdown(shutdownCtx)

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "chatdesk", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListener starts a tsnet node and listens on :80, or on
// :443 through Funnel so that customer sites can load the widget.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}
	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	var ln net.Listener
	if tsCfg.Funnel {
		g.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err = g.tsnetServer.ListenFunnel("tcp", ":443")
	} else {
		ln, err = g.tsnetServer.Listen("tcp", ":80")
	}
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale: %w", err)
	}
	return ln, nil
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = strings.TrimSuffix(status.Self.DNSName, ".")
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the server, ends every widget session and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	g.sessions.closeAll()
	g.hub.Close()
	g.dedupe.Close()

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	for _, c := range g.closers {
		errs = appendCloseError(errs, "snapshot store close", c.Close())
	}
	errs = appendCloseError(errs, "store close", g.store.Close())

	return errors.Join(errs...)
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK when the database answers.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	// A lookup of an id that never exists exercises the database cheaply.
	if _, err := g.store.GetAgent(ctx, "readiness-probe"); err != nil && !errors.Is(err, store.ErrNotFound) {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d sessions)", g.sessions.count())
}
