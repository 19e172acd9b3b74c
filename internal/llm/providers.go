package llm

import (
	"fmt"
	"net/http"
	"strings"
)

// OpenAI-compatible providers (openai, azure_openai, deepseek) share the base Client's hooks
// verbatim (spec §4.4: "shared, bearer auth, /chat/completions"); no override is needed beyond
// setting the provider name, default model, and base URL.

const (
	defaultOpenAIBaseURL   = "https://api.openai.com/v1"
	defaultDeepSeekBaseURL = "https://api.deepseek.com/v1"
)

// NewOpenAI builds a client against OpenAI's own API.
func NewOpenAI(apiKey, model string, opts ...ClientOption) *Client {
	base := append([]ClientOption{
		WithProvider("openai"), WithModel(model), WithBaseURL(defaultOpenAIBaseURL), WithAPIKey(apiKey),
	}, opts...)
	return NewClient(base...)
}

// NewAzureOpenAI builds a client against an Azure OpenAI deployment. Azure's REST surface is
// otherwise OpenAI-compatible; callers pass the full deployment base URL (including api-version
// query string) via WithBaseURL.
func NewAzureOpenAI(apiKey, model, baseURL string, opts ...ClientOption) *Client {
	base := append([]ClientOption{
		WithProvider("azure_openai"), WithModel(model), WithBaseURL(baseURL), WithAPIKey(apiKey),
	}, opts...)
	return NewClient(base...)
}

// NewDeepSeek builds a client against DeepSeek's OpenAI-compatible API.
func NewDeepSeek(apiKey, model string, opts ...ClientOption) *Client {
	if model == "" {
		model = "deepseek-chat"
	}
	base := append([]ClientOption{
		WithProvider("deepseek"), WithModel(model), WithBaseURL(defaultDeepSeekBaseURL), WithAPIKey(apiKey),
	}, opts...)
	return NewClient(base...)
}

// AnthropicClient overrides the base Client's hooks for Anthropic's /messages wire format:
// x-api-key + anthropic-version headers instead of Bearer auth, and a distinct response shape.
type AnthropicClient struct {
	*Client
}

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion        = "2023-06-01"
)

// NewAnthropic builds a client against Anthropic's Messages API.
func NewAnthropic(apiKey, model string, opts ...ClientOption) *AnthropicClient {
	base := append([]ClientOption{
		WithProvider("anthropic"), WithModel(model), WithBaseURL(defaultAnthropicBaseURL), WithAPIKey(apiKey),
	}, opts...)
	baseClient := NewClient(base...)
	ac := &AnthropicClient{Client: baseClient}
	baseClient.hooks = ac
	return ac
}

func (c *AnthropicClient) buildUrl() string {
	return fmt.Sprintf("%s/messages", c.BaseURL)
}

func (c *AnthropicClient) setAuthHeader(h http.Header) {
	h.Set("x-api-key", c.APIKey)
	h.Set("anthropic-version", anthropicVersion)
}

func (c *AnthropicClient) buildMCPRequestBody(systemPrompt, userPrompt string) map[string]any {
	return map[string]any{
		"model":      c.Model,
		"max_tokens": 4096,
		"system":     systemPrompt,
		"messages": []map[string]string{
			{"role": "user", "content": userPrompt},
		},
	}
}

func (c *AnthropicClient) buildRequestBodyFromRequest(req *Request) map[string]any {
	var system string
	msgs := make([]map[string]string, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		msgs = append(msgs, map[string]string{"role": m.Role, "content": m.Content})
	}
	body := map[string]any{"model": c.Model, "max_tokens": 4096, "messages": msgs}
	req.Config.applyOpenAIStyle(body)
	if system != "" {
		body["system"] = system
	}
	return body
}

func (c *AnthropicClient) parseMCPResponse(body []byte) (string, error) {
	var resp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := parseJSON(body, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", newUpstreamError(resp.Error.Message)
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

// GeminiClient overrides the base Client's hooks for Gemini's generateContent wire format:
// the API key travels as a query parameter, not a header, and the model is embedded in the URL.
type GeminiClient struct {
	*Client
}

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

// NewGemini builds a client against Google's Gemini generateContent API.
func NewGemini(apiKey, model string, opts ...ClientOption) *GeminiClient {
	base := append([]ClientOption{
		WithProvider("gemini"), WithModel(model), WithBaseURL(defaultGeminiBaseURL), WithAPIKey(apiKey),
	}, opts...)
	baseClient := NewClient(base...)
	gc := &GeminiClient{Client: baseClient}
	baseClient.hooks = gc
	return gc
}

func (c *GeminiClient) buildUrl() string {
	return fmt.Sprintf("%s/%s:generateContent?key=%s", c.BaseURL, c.Model, c.APIKey)
}

func (c *GeminiClient) setAuthHeader(h http.Header) {
	// Gemini authenticates via the ?key= query parameter; no header is required.
}

func (c *GeminiClient) buildMCPRequestBody(systemPrompt, userPrompt string) map[string]any {
	return map[string]any{
		"systemInstruction": map[string]any{
			"parts": []map[string]string{{"text": systemPrompt}},
		},
		"contents": []map[string]any{
			{"role": "user", "parts": []map[string]string{{"text": userPrompt}}},
		},
		"generationConfig": geminiGenerationConfig(GenerateConfig{}),
	}
}

func (c *GeminiClient) buildRequestBodyFromRequest(req *Request) map[string]any {
	var system string
	contents := make([]map[string]any, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		role := m.Role
		if role == "assistant" {
			role = "model"
		}
		contents = append(contents, map[string]any{
			"role": role, "parts": []map[string]string{{"text": m.Content}},
		})
	}
	body := map[string]any{
		"contents":         contents,
		"generationConfig": geminiGenerationConfig(req.Config),
	}
	if system != "" {
		body["systemInstruction"] = map[string]any{"parts": []map[string]string{{"text": system}}}
	}
	return body
}

// geminiGenerationConfig maps GenerateConfig onto Gemini's generationConfig fields: temperature,
// maxOutputTokens, topP, topK (spec §4.4). Defaults to temperature 0.7 when unset, matching the
// provider's own previous fixed behavior.
func geminiGenerationConfig(cfg GenerateConfig) map[string]any {
	out := map[string]any{"temperature": 0.7}
	if cfg.Temperature != nil {
		out["temperature"] = *cfg.Temperature
	}
	if cfg.MaxTokens > 0 {
		out["maxOutputTokens"] = cfg.MaxTokens
	}
	if cfg.TopP != nil {
		out["topP"] = *cfg.TopP
	}
	if cfg.TopK > 0 {
		out["topK"] = cfg.TopK
	}
	return out
}

func (c *GeminiClient) parseMCPResponse(body []byte) (string, error) {
	var resp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := parseJSON(body, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", newUpstreamError(resp.Error.Message)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", newMalformedError("no candidates in gemini response")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}
