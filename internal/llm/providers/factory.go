package providers

import (
	"fmt"
	"net/http"

	"ragquery/internal/config"
	"ragquery/internal/llm"
	"ragquery/internal/llm/anthropic"
	openaillm "ragquery/internal/llm/openai"
)

// Build constructs an llm.Provider from the configured LLMConfig. Supported
// providers are "openai" (default, also used for OpenAI-compatible
// self-hosted endpoints) and "anthropic".
func Build(cfg config.LLMConfig, httpClient *http.Client) (llm.Provider, error) {
	switch cfg.Provider {
	case "", "openai", "local":
		oc := cfg.OpenAI
		if cfg.Provider == "local" {
			oc.API = "completions"
		}
		return openaillm.New(oc, httpClient), nil
	case "anthropic":
		return anthropic.New(cfg.Anthropic, httpClient), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}
