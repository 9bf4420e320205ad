package llm

import (
	"fmt"

	"kbsearch/config"
	"kbsearch/internal/port"
)

// New builds the generative model client named by cfg.Provider.
func New(cfg config.RerankConfig) (port.LLM, error) {
	switch cfg.Provider {
	case "ollama", "":
		return NewOllamaLLM(cfg.BaseURL, cfg.Model), nil
	case "openai":
		return NewOpenAIChat(cfg.APIKeyEnv, cfg.Model, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported generative provider: %s", cfg.Provider)
	}
}

// Options converts the configured sampling settings.
func Options(cfg config.RerankConfig) port.GenerateOptions {
	return port.GenerateOptions{
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		NumCtx:      cfg.NumCtx,
	}
}
