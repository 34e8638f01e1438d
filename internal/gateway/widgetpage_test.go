// ABOUTME: Tests for the server-rendered widget and demo pages
// ABOUTME: Covers query overrides, stored conversations and markdown rendering

package gateway

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chatdesk/internal/persistence"
	"github.com/2389/chatdesk/internal/widget"
)

func TestWidgetPage(t *testing.T) {
	env := newTestEnv(t)
	env.seedAgent(t, "a1", "owner-1")
	env.seedWidget(t, "w1", "owner-1", "a1")

	rec := env.do(t, http.MethodGet, "/widget/w1?theme=dark&themeColor=%23ff0000", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "<title>Support</title>")
	assert.Contains(t, body, `data-theme="dark"`)
	assert.Contains(t, body, "--cd-primary: #ff0000")
	assert.Contains(t, body, "window.CHATDESK")
	assert.Contains(t, body, "cd-bottom cd-right")

	rec = env.do(t, http.MethodGet, "/widget/w1?mode=kiosk", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/widget/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "unavailable")
}

func TestWidgetPageRendersStoredConversation(t *testing.T) {
	env := newTestEnv(t)
	env.seedAgent(t, "a1", "owner-1")
	env.seedWidget(t, "w1", "owner-1", "a1")

	visitor := uuid.New().String()
	adapter := persistence.NewAdapter(persistence.Namespace(env.gw.snapshots, visitor), "w1", persistence.Options{})
	now := time.Now()
	adapter.Save(context.Background(), []widget.Message{
		widget.NewUserMessage("<b>hi</b>", now),
		widget.NewBotMessage("**Welcome** back <script>alert(1)</script>", now),
	}, true)

	rec := env.do(t, http.MethodGet, "/widget/w1?visitor="+visitor, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<strong>Welcome</strong>")
	assert.Contains(t, body, "&lt;b&gt;hi&lt;/b&gt;")
	assert.NotContains(t, body, "<script>alert(1)</script>")

	// Previews never show stored conversations.
	rec = env.do(t, http.MethodGet, "/widget/w1?mode=preview&visitor="+visitor, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "<strong>Welcome</strong>")
}

func TestDemoPage(t *testing.T) {
	env := newTestEnv(t)
	env.seedAgent(t, "a1", "owner-1")
	env.seedDemo(t, "d1", "owner-1", "a1", 5, 0)

	rec := env.do(t, http.MethodGet, "/demo/d1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "d1")

	rec = env.do(t, http.MethodGet, "/demo/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRenderMarkdown(t *testing.T) {
	assert.Equal(t, "<p><em>hi</em></p>\n", string(renderMarkdown("*hi*")))
	assert.Contains(t, string(renderMarkdown("see https://example.com")), `<a href="https://example.com">`)
	assert.NotContains(t, string(renderMarkdown("<img src=x onerror=alert(1)>")), "<img")

	rendered := renderBotMessages([]widget.Message{
		{ID: "u", Text: "*user*"},
		{ID: "b", Text: "*bot*", IsBot: true},
	})
	assert.Len(t, rendered, 1)
	assert.Contains(t, rendered["b"], "<em>bot</em>")
}
