// ABOUTME: Gateway-hosted widget conversations driven over HTTP and server-sent events
// ABOUTME: Each session owns one conversation controller and is evicted after sitting idle

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/chatdesk/internal/conversation"
	"github.com/2389/chatdesk/internal/hostbridge"
	"github.com/2389/chatdesk/internal/persistence"
	"github.com/2389/chatdesk/internal/transport"
	"github.com/2389/chatdesk/internal/widget"
)

// sseKeepAlive is the interval between SSE comment pings.
const sseKeepAlive = 15 * time.Second

// session is one visitor's live conversation.
type session struct {
	id        string
	visitorID string
	ctrl      *conversation.Controller

	mu       sync.Mutex
	lastSeen time.Time
	lastHost *hostbridge.Event
}

func (s *session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// lastHostEvent returns the most recent host event, for late subscribers.
func (s *session) lastHostEvent() (hostbridge.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastHost == nil {
		return hostbridge.Event{}, false
	}
	return *s.lastHost, true
}

// sessionBridge remembers the last event before handing it to the hub.
type sessionBridge struct {
	sess *session
	next hostbridge.Bridge
}

func (b *sessionBridge) Post(ev hostbridge.Event) error {
	b.sess.mu.Lock()
	b.sess.lastHost = &ev
	b.sess.mu.Unlock()
	return b.next.Post(ev)
}

// sessionHub tracks live sessions by id.
type sessionHub struct {
	mu       sync.Mutex
	sessions map[string]*session
	idle     time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

func newSessionHub(idle time.Duration, logger *slog.Logger) *sessionHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &sessionHub{
		sessions: make(map[string]*session),
		idle:     idle,
		now:      time.Now,
		logger:   logger.With("component", "sessions"),
	}
}

func (h *sessionHub) add(s *session) {
	s.touch(h.now())
	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()
	h.logger.Debug("session started", "session_id", s.id, "visitor_id", s.visitorID)
}

// get returns the session and marks it active.
func (h *sessionHub) get(id string) (*session, bool) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	h.mu.Unlock()
	if ok {
		s.touch(h.now())
	}
	return s, ok
}

func (h *sessionHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// evictIdle shuts down sessions unseen for longer than the idle TTL.
func (h *sessionHub) evictIdle() int {
	cutoff := h.now().Add(-h.idle)

	h.mu.Lock()
	var stale []*session
	for id, s := range h.sessions {
		if s.idleSince().Before(cutoff) {
			stale = append(stale, s)
			delete(h.sessions, id)
		}
	}
	h.mu.Unlock()

	for _, s := range stale {
		s.ctrl.Shutdown()
		h.logger.Debug("session evicted", "session_id", s.id)
	}
	return len(stale)
}

// runEviction evicts idle sessions until ctx is done.
func (h *sessionHub) runEviction(ctx context.Context) {
	interval := h.idle / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := h.evictIdle(); n > 0 {
				h.logger.Info("evicted idle sessions", "count", n)
			}
		}
	}
}

// closeAll shuts down every session.
func (h *sessionHub) closeAll() {
	h.mu.Lock()
	all := h.sessions
	h.sessions = make(map[string]*session)
	h.mu.Unlock()
	for _, s := range all {
		s.ctrl.Shutdown()
	}
}

// SessionResponse is returned when a session is created or read.
type SessionResponse struct {
	SessionID string    `json:"sessionId"`
	VisitorID string    `json:"visitorId"`
	State     stateView `json:"state"`
}

// MessageRequest is the JSON body for POST /api/sessions/{sid}/messages.
type MessageRequest struct {
	Text string `json:"text"`
}

// stateView is a conversation state plus the HTML rendering of each bot message.
type stateView struct {
	conversation.State
	Rendered map[string]string `json:"rendered,omitempty"`
}

func newStateView(st conversation.State) stateView {
	return stateView{State: st, Rendered: renderBotMessages(st.Messages)}
}

// visitorFromRequest returns the visitor id from the query, or a new one.
func visitorFromRequest(r *http.Request) string {
	if v := r.URL.Query().Get("visitor"); v != "" {
		if id, err := uuid.Parse(v); err == nil {
			return id.String()
		}
	}
	return uuid.New().String()
}

func (g *Gateway) timings() conversation.Timings {
	w := g.config.Widgets
	return conversation.Timings{
		WelcomeDelay:  w.WelcomeDelay,
		WelcomeTyping: w.WelcomeTyping,
		MinReplyDelay: w.MinReplyDelay,
		HistoryWindow: w.HistoryWindow,
	}
}

// startSession builds, registers and restores a conversation.
func (g *Gateway) startSession(ctx context.Context, visitorID string, opts conversation.Options) *session {
	sess := &session{id: uuid.New().String(), visitorID: visitorID}

	opts.Persistence = persistence.NewAdapter(
		persistence.Namespace(g.snapshots, visitorID),
		opts.Config.ID,
		persistence.Options{Now: g.clock.Now, Logger: g.logger},
	)
	opts.Bridge = &sessionBridge{sess: sess, next: g.hub.Bridge(sess.id)}
	opts.Clock = g.clock
	opts.Logger = g.logger
	opts.Timings = g.timings()

	sess.ctrl = conversation.New(opts)
	g.sessions.add(sess)
	sess.ctrl.Restore(ctx)
	return sess
}

// handleCreateWidgetSession handles POST /api/widgets/{id}/sessions?mode=&visitor=.
// Query parameters may override the widget's display fields. Dashboard and
// preview sessions skip usage counting, so they require the owner's
// credentials.
func (g *Gateway) handleCreateWidgetSession(w http.ResponseWriter, r *http.Request) {
	mode, ok := conversation.ParseMode(r.URL.Query().Get("mode"))
	if !ok {
		g.sendJSONError(w, http.StatusBadRequest, "invalid mode")
		return
	}

	cfg, err := g.store.GetWidgetConfig(r.Context(), r.PathValue("id"))
	if err != nil {
		g.sendStoreError(w, err, "widget")
		return
	}
	if mode != conversation.ModeProduction {
		ident, err := g.authn.Authenticate(r)
		if err != nil {
			g.sendJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if cfg.OwnerID != ident.OwnerID {
			g.sendJSONError(w, http.StatusNotFound, "widget not found")
			return
		}
	}

	conf := hostbridge.ApplyOverrides(*cfg, r.URL.Query())
	var tr transport.Transport = g.agents.Transport()
	if mode == conversation.ModeProduction {
		connID := cfg.ID
		tr = transport.Func(func(ctx context.Context, req transport.AskRequest) (string, error) {
			return g.askCounted(ctx, connID, req)
		})
	}

	visitorID := visitorFromRequest(r)
	sess := g.startSession(r.Context(), visitorID, conversation.Options{
		Config:    conf,
		Mode:      mode,
		Transport: tr,
	})
	g.writeJSON(w, http.StatusCreated, SessionResponse{
		SessionID: sess.id,
		VisitorID: visitorID,
		State:     newStateView(sess.ctrl.State()),
	})
}

// handleCreateDemoSession handles POST /api/demos/{id}/sessions?visitor=.
// Demo sessions count answered turns against the demo's quota and answer
// failures with rotating canned replies.
func (g *Gateway) handleCreateDemoSession(w http.ResponseWriter, r *http.Request) {
	demo, err := g.store.GetDemo(r.Context(), r.PathValue("id"))
	if err != nil {
		g.sendStoreError(w, err, "demo")
		return
	}

	conf := demo.Config
	conf.ID = demo.ID
	visitorID := visitorFromRequest(r)
	sess := g.startSession(r.Context(), visitorID, conversation.Options{
		Config:    conf,
		Mode:      conversation.ModeProduction,
		Transport: g.demoTransport(demo.ID),
		Usage:     g.demoUsage.Counter(demo),
		Apologies: transport.NewApologies(transport.DemoResponses...),
	})
	g.writeJSON(w, http.StatusCreated, SessionResponse{
		SessionID: sess.id,
		VisitorID: visitorID,
		State:     newStateView(sess.ctrl.State()),
	})
}

// demoTransport asks on behalf of a demo session, refusing once the stored
// quota is used up by any session sharing the demo.
func (g *Gateway) demoTransport(demoID string) transport.Transport {
	return transport.Func(func(ctx context.Context, req transport.AskRequest) (string, error) {
		return g.askDemo(ctx, demoID, req)
	})
}

// withSession resolves {sid} or answers 404.
func (g *Gateway) withSession(w http.ResponseWriter, r *http.Request) (*session, bool) {
	sess, ok := g.sessions.get(r.PathValue("sid"))
	if !ok {
		g.sendJSONError(w, http.StatusNotFound, "session not found")
	}
	return sess, ok
}

func (g *Gateway) writeSession(w http.ResponseWriter, status int, sess *session) {
	g.writeJSON(w, status, SessionResponse{
		SessionID: sess.id,
		VisitorID: sess.visitorID,
		State:     newStateView(sess.ctrl.State()),
	})
}

// handleGetSession handles GET /api/sessions/{sid}.
func (g *Gateway) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if sess, ok := g.withSession(w, r); ok {
		g.writeSession(w, http.StatusOK, sess)
	}
}

// handleSessionOpen handles POST /api/sessions/{sid}/open.
func (g *Gateway) handleSessionOpen(w http.ResponseWriter, r *http.Request) {
	if sess, ok := g.withSession(w, r); ok {
		sess.ctrl.Open()
		g.writeSession(w, http.StatusOK, sess)
	}
}

// handleSessionClose handles POST /api/sessions/{sid}/close.
func (g *Gateway) handleSessionClose(w http.ResponseWriter, r *http.Request) {
	if sess, ok := g.withSession(w, r); ok {
		sess.ctrl.Close()
		g.writeSession(w, http.StatusOK, sess)
	}
}

// handleSessionReset handles POST /api/sessions/{sid}/reset.
func (g *Gateway) handleSessionReset(w http.ResponseWriter, r *http.Request) {
	if sess, ok := g.withSession(w, r); ok {
		sess.ctrl.Reset(r.Context())
		g.writeSession(w, http.StatusOK, sess)
	}
}

// handleSessionMessage handles POST /api/sessions/{sid}/messages. The reply
// arrives later on the event stream; the response carries the state with
// the visitor's message appended.
func (g *Gateway) handleSessionMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := g.withSession(w, r)
	if !ok {
		return
	}
	var req MessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := sess.ctrl.Submit(r.Context(), req.Text)
	switch {
	case err == nil:
		g.writeSession(w, http.StatusAccepted, sess)
	case errors.Is(err, conversation.ErrEmptyMessage):
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, conversation.ErrBusy):
		g.sendJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, conversation.ErrLimitReached):
		g.sendJSONError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, conversation.ErrClosed):
		g.sendJSONError(w, http.StatusGone, err.Error())
	default:
		g.logger.Error("submit failed", "session_id", sess.id, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

// writeSSE writes one named event.
func writeSSE(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", event, err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// handleSessionEvents handles GET /api/sessions/{sid}/events.
//
// The stream carries "state" events with the full conversation state and
// "host" events with lifecycle messages for the embedding page. The last
// host event is replayed on connect.
func (g *Gateway) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := g.withSession(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		g.sendJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	states := sess.ctrl.Subscribe(ctx)
	hostEvents, _ := g.hub.Subscribe(ctx, sess.id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if ev, ok := sess.lastHostEvent(); ok {
		if err := writeSSE(w, "host", ev); err != nil {
			return
		}
	}
	flusher.Flush()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			err = writeSSE(w, "state", newStateView(st))
		case ev, ok := <-hostEvents:
			if !ok {
				return
			}
			err = writeSSE(w, "host", ev)
		case <-keepAlive.C:
			sess.touch(g.sessions.now())
			_, err = fmt.Fprint(w, ": ping\n\n")
		}
		if err != nil {
			g.logger.Debug("event stream write failed", "session_id", sess.id, "error", err)
			return
		}
		flusher.Flush()
	}
}

// renderBotMessages renders bot message text as HTML, keyed by message id.
func renderBotMessages(msgs []widget.Message) map[string]string {
	var out map[string]string
	for _, m := range msgs {
		if !m.IsBot {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[m.ID] = string(renderMarkdown(m.Text))
	}
	return out
}
