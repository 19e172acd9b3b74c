// Package llm is the LLM Dispatcher: a provider-agnostic chat-completion client with one
// concrete adapter per wire family (spec §4.4), built around the teacher's options-pattern
// Client + dynamic-dispatch hooks shape (mcp/architect_client.go, mcp/localai_client.go). The
// teacher's own base mcp.Client was not present in the retrieval pack; it is re-derived here
// from the two subtype files' call sites (c.Client.buildUrl(), c.logger, c.APIKey, c.BaseURL,
// c.Model, c.hooks).
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"perpilot/internal/apperr"
	"perpilot/internal/logger"
)

// Message is one turn of a chat-completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the provider-neutral chat-completion call, passed to Client.Dispatch.
type Request struct {
	Messages []Message
	Metadata map[string]any
	Config   GenerateConfig
}

// GenerateConfig carries the optional sampling parameters spec §4.4 exposes on the neutral
// GenerateStrategyCode call: temperature ∈ [0,2], maxTokens ∈ [1,∞), topP ∈ (0,1], topK ∈
// [1,∞). A nil pointer (or zero MaxTokens/TopK) means "caller didn't set it" — each provider's
// body builder drops whatever it doesn't carry a wire field for.
type GenerateConfig struct {
	Temperature *float64
	MaxTokens   int
	TopP        *float64
	TopK        int
}

func (cfg GenerateConfig) applyOpenAIStyle(body map[string]any) {
	if cfg.Temperature != nil {
		body["temperature"] = *cfg.Temperature
	}
	if cfg.MaxTokens > 0 {
		body["max_tokens"] = cfg.MaxTokens
	}
	if cfg.TopP != nil {
		body["top_p"] = *cfg.TopP
	}
	// top_k has no field in the OpenAI-compatible/Anthropic wire formats; dropped silently.
}

// hooks is the seam every provider adapter overrides to customize wire behavior while reusing
// the base Client's HTTP plumbing, matching the teacher's hooks dispatch pattern.
type hooks interface {
	buildUrl() string
	setAuthHeader(h http.Header)
	buildMCPRequestBody(systemPrompt, userPrompt string) map[string]any
	buildRequestBodyFromRequest(req *Request) map[string]any
	parseMCPResponse(body []byte) (string, error)
}

// Client is the base chat-completion client. Provider adapters embed *Client and assign
// themselves to its hooks field so base methods dispatch back into the adapter's overrides.
type Client struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string

	httpClient *http.Client
	hooks      hooks
	logger     *logger.Logger
}

// ClientOption configures a Client at construction time.
type ClientOption func(*Client)

func WithProvider(p string) ClientOption { return func(c *Client) { c.Provider = p } }
func WithModel(m string) ClientOption    { return func(c *Client) { c.Model = m } }
func WithBaseURL(u string) ClientOption  { return func(c *Client) { c.BaseURL = u } }
func WithAPIKey(k string) ClientOption   { return func(c *Client) { c.APIKey = k } }
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient builds a base client with the default (OpenAI-compatible) hook behavior. Provider
// adapters call this, then overwrite baseClient.hooks with themselves.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger.With("llm"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.hooks = c
	return c
}

// Default hook implementations: OpenAI-compatible /chat/completions with Bearer auth. Providers
// that are wire-compatible (azure_openai, deepseek) reuse these directly.

func (c *Client) buildUrl() string {
	return fmt.Sprintf("%s/chat/completions", c.BaseURL)
}

func (c *Client) setAuthHeader(h http.Header) {
	h.Set("Authorization", "Bearer "+c.APIKey)
}

func (c *Client) buildMCPRequestBody(systemPrompt, userPrompt string) map[string]any {
	return map[string]any{
		"model": c.Model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
	}
}

func (c *Client) buildRequestBodyFromRequest(req *Request) map[string]any {
	msgs := make([]map[string]string, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, map[string]string{"role": m.Role, "content": m.Content})
	}
	body := map[string]any{"model": c.Model, "messages": msgs}
	req.Config.applyOpenAIStyle(body)
	return body
}

func (c *Client) parseMCPResponse(body []byte) (string, error) {
	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", apperr.Wrap(apperr.MalformedUpstream, "decode chat completion response", err)
	}
	if resp.Error != nil {
		return "", apperr.New(apperr.UpstreamPermanent, resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", apperr.New(apperr.MalformedUpstream, "no choices in chat completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Dispatch sends req and returns the extracted completion text, dispatching every wire-shaping
// step through c.hooks so a provider adapter's overrides take effect.
func (c *Client) Dispatch(ctx context.Context, req *Request) (string, error) {
	body := c.hooks.buildRequestBodyFromRequest(req)
	return c.doRequest(ctx, body)
}

// DispatchPrompt is the simple system+user prompt path used by callers that don't need
// multi-turn history (mirrors the teacher's buildMCPRequestBody call sites).
func (c *Client) DispatchPrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	body := c.hooks.buildMCPRequestBody(systemPrompt, userPrompt)
	return c.doRequest(ctx, body)
}

func (c *Client) doRequest(ctx context.Context, body map[string]any) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "marshal request body", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.hooks.buildUrl(), bytes.NewReader(payload))
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "build http request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.hooks.setAuthHeader(httpReq.Header)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", apperr.Wrap(apperr.UpstreamTransient, "llm request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperr.Wrap(apperr.UpstreamTransient, "read llm response", err)
	}

	if err := statusToErr(resp.StatusCode, respBody); err != nil {
		return "", err
	}

	raw, err := c.hooks.parseMCPResponse(respBody)
	if err != nil {
		return "", err
	}
	return extractCode(raw), nil
}

func statusToErr(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperr.New(apperr.UpstreamAuth, fmt.Sprintf("llm rejected credentials (status %d): %s", status, body))
	case status == http.StatusTooManyRequests || status >= 500:
		return apperr.New(apperr.UpstreamTransient, fmt.Sprintf("llm transient error (status %d): %s", status, body))
	default:
		return apperr.New(apperr.UpstreamPermanent, fmt.Sprintf("llm error (status %d): %s", status, body))
	}
}
