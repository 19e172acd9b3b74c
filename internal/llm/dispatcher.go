package llm

import (
	"context"

	"perpilot/internal/apperr"
)

// Dispatcher is what internal/strategy programs against: a single Dispatch method, independent
// of which provider backs it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *Request) (string, error)
}

// ProviderConfig is the subset of store.Provider the Dispatcher factory needs.
type ProviderConfig struct {
	Type    string
	Model   string
	BaseURL string
	APIKey  string
}

// New builds the Dispatcher matching cfg.Type, per spec §4.4's provider table.
func New(cfg ProviderConfig) (Dispatcher, error) {
	var opts []ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}

	switch cfg.Type {
	case "openai":
		return NewOpenAI(cfg.APIKey, cfg.Model, opts...), nil
	case "azure_openai":
		if cfg.BaseURL == "" {
			return nil, apperr.New(apperr.ValidationFailed, "azure_openai requires a deployment base URL")
		}
		return NewAzureOpenAI(cfg.APIKey, cfg.Model, cfg.BaseURL), nil
	case "deepseek":
		return NewDeepSeek(cfg.APIKey, cfg.Model, opts...), nil
	case "anthropic":
		return NewAnthropic(cfg.APIKey, cfg.Model, opts...), nil
	case "gemini":
		return NewGemini(cfg.APIKey, cfg.Model, opts...), nil
	default:
		return nil, apperr.New(apperr.ValidationFailed, "unknown llm provider type: "+cfg.Type)
	}
}
