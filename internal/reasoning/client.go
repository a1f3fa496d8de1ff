package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"agentassert/internal/config"
)

// Client speaks the Azure OpenAI chat-completions protocol for one
// configured deployment. Deterministic settings (temperature 0, top_p 0,
// fixed seed) are applied to every request so repeated evaluations of
// the same case converge.
type Client struct {
	cfg        config.ReasoningConfig
	httpClient *http.Client
	baseURL    string
}

// NewClient builds a client from validated config. Credentials must
// already be populated via LoadEnvCredentials.
func NewClient(cfg config.ReasoningConfig) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.GetRequestTimeout(),
		},
		baseURL: fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
			strings.TrimRight(cfg.Endpoint, "/"), cfg.Deployment, cfg.APIVersion),
	}
}

// Chat performs one chat-completions round trip and returns the first
// choice's message. HTTP and transport failures map onto the typed
// error taxonomy; context expiry maps to *TimeoutError.
func (c *Client) Chat(ctx context.Context, messages []Message, tools []map[string]interface{}) (Message, error) {
	req := chatRequest{
		Messages:    messages,
		Temperature: 0,
		TopP:        0,
		MaxTokens:   c.cfg.MaxTokens,
		Seed:        c.cfg.Seed,
		Tools:       tools,
	}
	if len(tools) > 0 {
		req.ToolChoice = "auto"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Message{}, &ServiceError{Kind: KindProtocol, Msg: "encode request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return Message{}, &ServiceError{Kind: KindProtocol, Msg: "build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if timeoutCause(ctx, err) {
			return Message{}, &TimeoutError{Op: "chat request", Err: err}
		}
		return Message{}, &ServiceError{Kind: KindNetwork, Msg: "request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return Message{}, &ServiceError{Kind: KindNetwork, Msg: "read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return Message{}, statusError(resp.StatusCode, raw)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Message{}, &ServiceError{Kind: KindProtocol, Msg: "decode response", Err: err}
	}
	if len(parsed.Choices) == 0 {
		return Message{}, &ServiceError{Kind: KindProtocol, Msg: "response contains no choices"}
	}

	return parsed.Choices[0].Message, nil
}

// statusError maps a non-200 status onto the error taxonomy.
func statusError(status int, body []byte) *ServiceError {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &ServiceError{Kind: KindAuth, Status: status, Msg: msg}
	case status == http.StatusTooManyRequests:
		return &ServiceError{Kind: KindQuota, Status: status, Msg: msg}
	case status >= 500:
		return &ServiceError{Kind: KindNetwork, Status: status, Msg: msg}
	default:
		return &ServiceError{Kind: KindProtocol, Status: status, Msg: msg}
	}
}

// timeoutCause reports whether a transport error was a deadline rather
// than a genuine network fault.
func timeoutCause(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return errors.Is(ctx.Err(), context.DeadlineExceeded)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
