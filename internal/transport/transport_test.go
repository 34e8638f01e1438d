package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chatdesk/internal/widget"
)

func TestBuildHistory_ExcludesWelcome(t *testing.T) {
	now := time.Now()
	msgs := []widget.Message{
		widget.NewWelcomeMessage("Hello!", now),
		widget.NewUserMessage("Hi", now),
		widget.NewBotMessage("Hey", now),
	}

	turns := BuildHistory(msgs, 0)
	require.Len(t, turns, 2)
	assert.Equal(t, Turn{Role: RoleUser, Content: "Hi"}, turns[0])
	assert.Equal(t, Turn{Role: RoleAssistant, Content: "Hey"}, turns[1])
}

func TestBuildHistory_Window(t *testing.T) {
	now := time.Now()
	var msgs []widget.Message
	for i := 0; i < 30; i++ {
		msgs = append(msgs, widget.NewUserMessage(string(rune('a'+i%26)), now))
	}

	assert.Len(t, BuildHistory(msgs, 0), DefaultHistoryWindow)

	turns := BuildHistory(msgs, 5)
	require.Len(t, turns, 5)
	assert.Equal(t, msgs[29].Text, turns[4].Content)
	assert.Equal(t, msgs[25].Text, turns[0].Content)
}

func TestBuildHistory_Empty(t *testing.T) {
	turns := BuildHistory(nil, 0)
	assert.NotNil(t, turns)
	assert.Empty(t, turns)
}

func TestApologies_Rotate(t *testing.T) {
	a := NewApologies("one", "two")
	assert.Equal(t, "one", a.Next())
	assert.Equal(t, "two", a.Next())
	assert.Equal(t, "one", a.Next())

	assert.Equal(t, ApologyReply, NewApologies().Next())
}

func TestHTTPTransport_Ask(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	var gotHeader http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeader = r.Header.Clone()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(AskResponse{Reply: "Hello back"})
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL + "/")
	reply, err := tr.Ask(context.Background(), AskRequest{
		AgentID:          "agent-1",
		Message:          "Hello",
		PreviousMessages: []Turn{{Role: RoleUser, Content: "earlier"}},
		WelcomeMessage:   "Welcome!",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello back", reply)
	assert.Equal(t, "/api/agents/agent-1/ask", gotPath)
	assert.Equal(t, "Hello", gotBody["message"])
	assert.Equal(t, "Welcome!", gotBody["welcomeMessage"])
	assert.Len(t, gotBody["previousMessages"], 1)

	// Dashboard/preview callers send no identity headers
	assert.Empty(t, gotHeader.Get(HeaderPublicKind))
	assert.Empty(t, gotHeader.Get(HeaderWidgetID))
}

func TestHTTPTransport_PublicIdentity(t *testing.T) {
	tests := []struct {
		name      string
		identity  PublicIdentity
		idHeader  string
		tokHeader string
	}{
		{"widget", PublicIdentity{Kind: KindWidget, ID: "w1"}, HeaderWidgetID, HeaderWidgetToken},
		{"demo", PublicIdentity{Kind: KindDemo, ID: "d1", Token: "tok"}, HeaderDemoID, HeaderDemoToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotHeader http.Header
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotHeader = r.Header.Clone()
				_ = json.NewEncoder(w).Encode(AskResponse{Reply: "ok"})
			}))
			defer srv.Close()

			tr := NewHTTPTransport(srv.URL, WithPublicIdentity(tt.identity))
			_, err := tr.Ask(context.Background(), AskRequest{AgentID: "a", Message: "m"})
			require.NoError(t, err)

			assert.Equal(t, string(tt.identity.Kind), gotHeader.Get(HeaderPublicKind))
			assert.Equal(t, tt.identity.ID, gotHeader.Get(tt.idHeader))
			wantToken := tt.identity.Token
			if wantToken == "" {
				wantToken = PublicToken
			}
			assert.Equal(t, wantToken, gotHeader.Get(tt.tokHeader))
		})
	}
}

func TestHTTPTransport_MissingReplyFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	reply, err := NewHTTPTransport(srv.URL).Ask(context.Background(), AskRequest{AgentID: "a", Message: "m"})
	require.NoError(t, err)
	assert.Equal(t, FallbackReply, reply)
}

func TestHTTPTransport_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"usage limit reached"}`))
	}))
	defer srv.Close()

	_, err := NewHTTPTransport(srv.URL).Ask(context.Background(), AskRequest{AgentID: "a", Message: "m"})
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Equal(t, "usage limit reached", statusErr.Message)
}

func TestHTTPTransport_ConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewHTTPTransport(url).Ask(context.Background(), AskRequest{AgentID: "a", Message: "m"})
	assert.Error(t, err)
}

func TestHTTPTransport_StaticHeader(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"reply":"ok"}`))
	}))
	defer srv.Close()

	_, err := NewHTTPTransport(srv.URL, WithHeader("Authorization", "Bearer t")).
		Ask(context.Background(), AskRequest{AgentID: "a", Message: "m"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer t", auth)
}
