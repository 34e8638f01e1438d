// ABOUTME: Tests for gateway-hosted widget sessions and their event stream
// ABOUTME: Exchanges run against the echo provider with millisecond timings

package gateway

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chatdesk/internal/hostbridge"
	"github.com/2389/chatdesk/internal/store"
	"github.com/2389/chatdesk/internal/transport"
)

// startSession creates a session and returns its response.
func (e *testEnv) startSession(t *testing.T, path, owner string) SessionResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, path, owner, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[SessionResponse](t, rec)
}

// exchange posts a message and waits for the reply to land.
func (e *testEnv) exchange(t *testing.T, sid, text string) SessionResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/sessions/"+sid+"/messages", "", MessageRequest{Text: text})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	sess, ok := e.gw.sessions.get(sid)
	require.True(t, ok)
	sess.ctrl.Wait()

	rec = e.do(t, http.MethodGet, "/api/sessions/"+sid, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	return decode[SessionResponse](t, rec)
}

func TestWidgetSessionExchange(t *testing.T) {
	env := newTestEnv(t)
	env.seedAgent(t, "a1", "owner-1")
	env.seedWidget(t, "w1", "owner-1", "a1")

	created := env.startSession(t, "/api/widgets/w1/sessions", "")
	require.NotEmpty(t, created.SessionID)
	require.NotEmpty(t, created.VisitorID)
	assert.Equal(t, "production", created.State.Mode)
	assert.Empty(t, created.State.Messages)

	got := env.exchange(t, created.SessionID, "hello there")
	require.Len(t, got.State.Messages, 2)
	assert.Equal(t, "hello there", got.State.Messages[0].Text)
	bot := got.State.Messages[1]
	assert.True(t, bot.IsBot)
	assert.Equal(t, "You said: hello there", bot.Text)
	assert.Contains(t, got.State.Rendered[bot.ID], "<p>You said: hello there</p>")
	assert.False(t, got.State.IsTyping)

	rec := env.do(t, http.MethodPost, "/api/sessions/"+created.SessionID+"/messages", "", MessageRequest{Text: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/sessions/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWidgetSessionPersistsPerVisitor(t *testing.T) {
	env := newTestEnv(t)
	env.seedAgent(t, "a1", "owner-1")
	env.seedWidget(t, "w1", "owner-1", "a1")

	first := env.startSession(t, "/api/widgets/w1/sessions", "")
	env.exchange(t, first.SessionID, "remember me")

	again := env.startSession(t, "/api/widgets/w1/sessions?visitor="+first.VisitorID, "")
	assert.Equal(t, first.VisitorID, again.VisitorID)
	assert.Len(t, again.State.Messages, 2)

	other := env.startSession(t, "/api/widgets/w1/sessions", "")
	assert.NotEqual(t, first.VisitorID, other.VisitorID)
	assert.Empty(t, other.State.Messages)

	// Reset clears the stored conversation too.
	rec := env.do(t, http.MethodPost, "/api/sessions/"+again.SessionID+"/reset", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	third := env.startSession(t, "/api/widgets/w1/sessions?visitor="+first.VisitorID, "")
	assert.Empty(t, third.State.Messages)
}

func TestWidgetSessionModes(t *testing.T) {
	env := newTestEnv(t)
	env.seedAgent(t, "a1", "owner-1")
	env.seedWidget(t, "w1", "owner-1", "a1")

	rec := env.do(t, http.MethodPost, "/api/widgets/w1/sessions?mode=kiosk", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/widgets/w1/sessions?mode=dashboard", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/widgets/w1/sessions?mode=dashboard", "owner-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	dash := env.startSession(t, "/api/widgets/w1/sessions?mode=dashboard", "owner-1")
	assert.Equal(t, "dashboard", dash.State.Mode)

	rec = env.do(t, http.MethodPost, "/api/widgets/w1/sessions?mode=preview", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/widgets/w1/sessions?mode=preview", "owner-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	preview := env.startSession(t, "/api/widgets/w1/sessions?mode=preview&theme=dark", "owner-1")
	assert.Equal(t, "preview", preview.State.Mode)

	rec = env.do(t, http.MethodPost, "/api/widgets/missing/sessions", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWidgetSessionUsageLimit(t *testing.T) {
	env := newTestEnv(t)
	env.seedAgent(t, "a1", "owner-1")
	env.seedWidget(t, "w1", "owner-1", "a1")
	require.NoError(t, env.store.SaveUsageLimit(context.Background(), &store.UsageLimit{
		ConnectionID: "w1", Enabled: true, Limit: 1, PeriodDays: 30, PeriodStart: time.Now(),
	}))

	sess := env.startSession(t, "/api/widgets/w1/sessions", "")
	got := env.exchange(t, sess.SessionID, "one")
	assert.Equal(t, "You said: one", got.State.Messages[1].Text)

	got = env.exchange(t, sess.SessionID, "two")
	require.Len(t, got.State.Messages, 4)
	assert.Equal(t, transport.ApologyReply, got.State.Messages[3].Text)

	// Uncounted modes are closed to anonymous visitors.
	for _, mode := range []string{"preview", "dashboard"} {
		rec := env.do(t, http.MethodPost, "/api/widgets/w1/sessions?mode="+mode, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, mode)
	}

	// Dashboard sessions are not counted.
	dash := env.startSession(t, "/api/widgets/w1/sessions?mode=dashboard", "owner-1")
	got = env.exchange(t, dash.SessionID, "three")
	assert.Equal(t, "You said: three", got.State.Messages[len(got.State.Messages)-1].Text)
}

func TestDemoSession(t *testing.T) {
	env := newTestEnv(t)
	env.seedAgent(t, "a1", "owner-1")
	env.seedDemo(t, "d1", "owner-1", "a1", 1, 0)

	sess := env.startSession(t, "/api/demos/d1/sessions", "")
	assert.Equal(t, 1, sess.State.UsageLimit)
	assert.False(t, sess.State.LimitReached)

	got := env.exchange(t, sess.SessionID, "pitch me")
	assert.True(t, got.State.LimitReached)
	assert.Equal(t, 1, got.State.UsedCount)

	rec := env.do(t, http.MethodPost, "/api/sessions/"+sess.SessionID+"/messages", "", MessageRequest{Text: "more"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	demo, err := env.store.GetDemo(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, 1, demo.UsedCount)

	rec = env.do(t, http.MethodPost, "/api/demos/missing/sessions", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDemoSessionsShareQuota(t *testing.T) {
	env := newTestEnv(t)
	env.seedAgent(t, "a1", "owner-1")
	env.seedDemo(t, "d1", "owner-1", "a1", 1, 0)

	first := env.startSession(t, "/api/demos/d1/sessions", "")
	second := env.startSession(t, "/api/demos/d1/sessions", "")
	assert.False(t, second.State.LimitReached)

	got := env.exchange(t, first.SessionID, "pitch me")
	assert.Equal(t, "You said: pitch me", got.State.Messages[1].Text)

	rec := env.do(t, http.MethodPost, "/api/sessions/"+second.SessionID+"/messages", "", MessageRequest{Text: "me too"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/sessions/"+second.SessionID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[SessionResponse](t, rec).State
	assert.True(t, st.LimitReached)
	assert.Empty(t, st.Messages)

	demo, err := env.store.GetDemo(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, 1, demo.UsedCount)
}

func TestDemoSessionRefusesExhaustedDemo(t *testing.T) {
	env := newTestEnv(t)
	env.seedAgent(t, "a1", "owner-1")
	env.seedDemo(t, "d1", "owner-1", "a1", 1, 0)

	_, err := env.gw.demoTransport("d1").Ask(context.Background(), transport.AskRequest{AgentID: "a1", Message: "hi"})
	require.NoError(t, err)

	_, err = env.store.IncrementDemoUsage(context.Background(), "d1")
	require.NoError(t, err)
	_, err = env.gw.demoTransport("d1").Ask(context.Background(), transport.AskRequest{AgentID: "a1", Message: "hi"})
	assert.ErrorIs(t, err, errUsageLimitReached)

	_, err = env.gw.demoTransport("d1").Ask(context.Background(), transport.AskRequest{AgentID: "other", Message: "hi"})
	assert.ErrorIs(t, err, errAgentNotAssigned)
}

func TestSessionOpenCloseHostEvents(t *testing.T) {
	env := newTestEnv(t)
	env.seedAgent(t, "a1", "owner-1")
	env.seedWidget(t, "w1", "owner-1", "a1")

	created := env.startSession(t, "/api/widgets/w1/sessions", "")
	sess, ok := env.gw.sessions.get(created.SessionID)
	require.True(t, ok)

	ev, ok := sess.lastHostEvent()
	require.True(t, ok)
	assert.Equal(t, hostbridge.EventReady, ev.Type)
	assert.Equal(t, "w1", ev.Data.WidgetID)

	rec := env.do(t, http.MethodPost, "/api/sessions/"+created.SessionID+"/open", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[SessionResponse](t, rec).State.IsOpen)
	ev, _ = sess.lastHostEvent()
	assert.Equal(t, hostbridge.EventOpen, ev.Type)

	rec = env.do(t, http.MethodPost, "/api/sessions/"+created.SessionID+"/close", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[SessionResponse](t, rec).State.IsOpen)
	ev, _ = sess.lastHostEvent()
	assert.Equal(t, hostbridge.EventClose, ev.Type)
}

func TestSessionEventStream(t *testing.T) {
	env := newTestEnv(t)
	env.seedAgent(t, "a1", "owner-1")
	env.seedWidget(t, "w1", "owner-1", "a1")
	created := env.startSession(t, "/api/widgets/w1/sessions", "")

	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/sessions/"+created.SessionID+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	seen := map[string]string{}
	scanner := bufio.NewScanner(resp.Body)
	var event string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			seen[event] = strings.TrimPrefix(line, "data: ")
		}
		if seen["host"] != "" && seen["state"] != "" {
			break
		}
	}
	assert.Contains(t, seen["host"], string(hostbridge.EventReady))
	assert.Contains(t, seen["state"], `"widgetId":"w1"`)

	// Opening the chat reaches the stream as both a host and a state event.
	rec := env.do(t, http.MethodPost, "/api/sessions/"+created.SessionID+"/open", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var gotOpen bool
	for scanner.Scan() {
		if strings.Contains(scanner.Text(), string(hostbridge.EventOpen)) {
			gotOpen = true
			break
		}
	}
	assert.True(t, gotOpen)
}

func TestSessionEviction(t *testing.T) {
	env := newTestEnv(t)
	env.seedAgent(t, "a1", "owner-1")
	env.seedWidget(t, "w1", "owner-1", "a1")
	created := env.startSession(t, "/api/widgets/w1/sessions", "")
	require.Equal(t, 1, env.gw.sessions.count())

	assert.Zero(t, env.gw.sessions.evictIdle())

	env.gw.sessions.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	assert.Equal(t, 1, env.gw.sessions.evictIdle())
	assert.Zero(t, env.gw.sessions.count())

	rec := env.do(t, http.MethodGet, "/api/sessions/"+created.SessionID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
