// ABOUTME: Chat completion clients: OpenAI-compatible HTTP provider and a local echo fallback
// ABOUTME: Non-2xx responses and transport failures wrap ErrProviderUnavailable

package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrProviderUnavailable indicates the completion provider could not answer.
var ErrProviderUnavailable = errors.New("completion provider unavailable")

// ChatMessage is one message in a completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a provider-neutral completion request.
type CompletionRequest struct {
	Model       string
	Temperature float64
	Messages    []ChatMessage
}

// Completer produces the assistant's next message.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// OpenAICompleter calls an OpenAI-compatible chat completions endpoint.
type OpenAICompleter struct {
	baseURL      string
	apiKey       string
	defaultModel string
	client       *http.Client
}

// NewOpenAICompleter creates a completer for baseURL (e.g. https://api.openai.com/v1).
func NewOpenAICompleter(baseURL, apiKey, defaultModel string, timeout time.Duration) *OpenAICompleter {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAICompleter{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		apiKey:       apiKey,
		defaultModel: defaultModel,
		client:       &http.Client{Timeout: timeout},
	}
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends the conversation and returns the first choice's content.
func (c *OpenAICompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}
	body, err := json.Marshal(chatCompletionRequest{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %v", ErrProviderUnavailable, err)
	}

	var out chatCompletionResponse
	decodeErr := json.Unmarshal(data, &out)

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(data))
		if decodeErr == nil && out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return "", fmt.Errorf("%w: status %d: %s", ErrProviderUnavailable, resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("%w: decoding response: %v", ErrProviderUnavailable, decodeErr)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrProviderUnavailable)
	}
	return out.Choices[0].Message.Content, nil
}

// EchoCompleter repeats the last user message. Used when no provider is configured.
type EchoCompleter struct{}

// Complete echoes the most recent user message.
func (EchoCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return "You said: " + req.Messages[i].Content, nil
		}
	}
	return "Hello! How can I help?", nil
}

var (
	_ Completer = (*OpenAICompleter)(nil)
	_ Completer = EchoCompleter{}
)
