// ABOUTME: Agent service: resolves the agent, assembles the prompt and calls the completer
// ABOUTME: Implements the backend side of POST /api/agents/{agentId}/ask

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/chatdesk/internal/store"
	"github.com/2389/chatdesk/internal/transport"
)

// ErrAgentNotFound indicates the specified agent was not found.
var ErrAgentNotFound = errors.New("agent not found")

// Service answers ask requests.
type Service struct {
	agents    store.AgentStore
	completer Completer
	logger    *slog.Logger
}

// NewService creates a Service. Pass nil logger for default.
func NewService(agents store.AgentStore, completer Completer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if completer == nil {
		completer = EchoCompleter{}
	}
	return &Service{
		agents:    agents,
		completer: completer,
		logger:    logger.With("component", "agent"),
	}
}

// Ask returns the agent's reply to req.
func (s *Service) Ask(ctx context.Context, agentID string, req transport.AskRequest) (string, error) {
	a, err := s.agents.GetAgent(ctx, agentID)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	if err != nil {
		return "", fmt.Errorf("loading agent: %w", err)
	}

	start := time.Now()
	reply, err := s.completer.Complete(ctx, CompletionRequest{
		Model:       a.Model,
		Temperature: a.Temperature,
		Messages:    BuildMessages(a, req),
	})
	if err != nil {
		s.logger.Warn("completion failed", "agent_id", agentID, "error", err)
		return "", err
	}

	s.logger.Debug("completion done",
		"agent_id", agentID,
		"history", len(req.PreviousMessages),
		"duration", time.Since(start))
	return reply, nil
}

// Transport returns a transport.Transport that answers in-process,
// for widget sessions hosted by the gateway itself.
func (s *Service) Transport() transport.Transport {
	return transport.Func(func(ctx context.Context, req transport.AskRequest) (string, error) {
		reply, err := s.Ask(ctx, req.AgentID, req)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(reply) == "" {
			return transport.FallbackReply, nil
		}
		return reply, nil
	})
}

// BuildMessages assembles the completion messages for an ask request.
func BuildMessages(a *store.Agent, req transport.AskRequest) []ChatMessage {
	system := strings.TrimSpace(a.SystemPrompt)
	if w := strings.TrimSpace(req.WelcomeMessage); w != "" {
		system += "\n\nThe visitor was greeted with: \"" + w + "\""
	}

	msgs := make([]ChatMessage, 0, len(req.PreviousMessages)+2)
	if system != "" {
		msgs = append(msgs, ChatMessage{Role: "system", Content: system})
	}
	for _, turn := range req.PreviousMessages {
		if turn.Role != transport.RoleUser && turn.Role != transport.RoleAssistant {
			continue
		}
		msgs = append(msgs, ChatMessage{Role: string(turn.Role), Content: turn.Content})
	}
	msgs = append(msgs, ChatMessage{Role: "user", Content: req.Message})
	return msgs
}
