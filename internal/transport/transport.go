// ABOUTME: Transport interface and request/history types for agent exchanges
// ABOUTME: BuildHistory maps widget messages to role/content turns for the backend

package transport

import (
	"context"

	"github.com/2389/chatdesk/internal/widget"
)

// DefaultHistoryWindow is the number of prior turns sent with each request.
const DefaultHistoryWindow = 20

// Role is the author of a turn as seen by the completion backend.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one prior message in the conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// AskRequest is the body of POST /api/agents/{agentId}/ask.
type AskRequest struct {
	AgentID          string `json:"-"`
	Message          string `json:"message"`
	PreviousMessages []Turn `json:"previousMessages"`
	WelcomeMessage   string `json:"welcomeMessage,omitempty"`
}

// AskResponse is the body returned by the ask endpoint.
type AskResponse struct {
	Reply string `json:"reply"`
}

// Transport sends one visitor message and returns the agent's reply.
type Transport interface {
	Ask(ctx context.Context, req AskRequest) (string, error)
}

// Func adapts a plain function to Transport.
type Func func(ctx context.Context, req AskRequest) (string, error)

// Ask calls f.
func (f Func) Ask(ctx context.Context, req AskRequest) (string, error) {
	return f(ctx, req)
}

// BuildHistory converts conversation messages to turns, skipping the
// welcome greeting and keeping at most window entries from the end.
// A window of zero or less uses DefaultHistoryWindow.
func BuildHistory(messages []widget.Message, window int) []Turn {
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	turns := make([]Turn, 0, len(messages))
	for _, m := range messages {
		if m.IsWelcome() {
			continue
		}
		role := RoleUser
		if m.IsBot {
			role = RoleAssistant
		}
		turns = append(turns, Turn{Role: role, Content: m.Text})
	}
	if len(turns) > window {
		turns = turns[len(turns)-window:]
	}
	return turns
}
