// ABOUTME: HTTP client for the agent ask endpoint with optional public widget identity
// ABOUTME: Non-2xx responses become errors; an empty reply becomes FallbackReply

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Header names sent by public (embedded) callers.
const (
	HeaderPublicKind  = "x-public-kind"
	HeaderWidgetID    = "x-widget-id"
	HeaderWidgetToken = "x-widget-token"
	HeaderDemoID      = "x-demo-id"
	HeaderDemoToken   = "x-demo-token"
)

// PublicToken is the static token value embedded widgets and demos send.
const PublicToken = "public"

// PublicKind identifies what kind of anonymous caller is asking.
type PublicKind string

const (
	KindWidget PublicKind = "widget"
	KindDemo   PublicKind = "demo"
)

// PublicIdentity authorizes anonymous traffic from an embed or demo.
type PublicIdentity struct {
	Kind  PublicKind
	ID    string
	Token string
}

// Apply sets the identity headers on h.
func (p PublicIdentity) Apply(h http.Header) {
	token := p.Token
	if token == "" {
		token = PublicToken
	}
	h.Set(HeaderPublicKind, string(p.Kind))
	switch p.Kind {
	case KindDemo:
		h.Set(HeaderDemoID, p.ID)
		h.Set(HeaderDemoToken, token)
	default:
		h.Set(HeaderWidgetID, p.ID)
		h.Set(HeaderWidgetToken, token)
	}
}

// HTTPTransport posts ask requests to a chatdesk gateway.
type HTTPTransport struct {
	baseURL  string
	client   *http.Client
	identity *PublicIdentity
	header   http.Header
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithPublicIdentity attaches widget or demo identity headers to every request.
func WithPublicIdentity(id PublicIdentity) HTTPOption {
	return func(t *HTTPTransport) {
		t.identity = &id
	}
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTPTransport) {
		t.client = c
	}
}

// WithHeader adds a static header, e.g. an Authorization bearer for dashboard use.
func WithHeader(key, value string) HTTPOption {
	return func(t *HTTPTransport) {
		t.header.Set(key, value)
	}
}

// NewHTTPTransport creates a transport for the gateway at baseURL.
func NewHTTPTransport(baseURL string, opts ...HTTPOption) *HTTPTransport {
	t := &HTTPTransport{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
		header:  make(http.Header),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Ask sends the request and returns the reply text.
func (t *HTTPTransport) Ask(ctx context.Context, req AskRequest) (string, error) {
	if req.PreviousMessages == nil {
		req.PreviousMessages = []Turn{}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := t.baseURL + "/api/agents/" + url.PathEscape(req.AgentID) + "/ask"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range t.header {
		httpReq.Header[k] = v
	}
	if t.identity != nil {
		t.identity.Apply(httpReq.Header)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", handleErrorResponse(resp)
	}

	var out AskResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if strings.TrimSpace(out.Reply) == "" {
		return FallbackReply, nil
	}
	return out.Reply, nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ask returned status %d: %s", e.StatusCode, e.Message)
}

// handleErrorResponse extracts an error message from a non-2xx response.
func handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var errResp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return &StatusError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}

var _ Transport = (*HTTPTransport)(nil)
