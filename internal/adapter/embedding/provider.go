package embedding

import (
	"fmt"

	"kbsearch/config"
	"kbsearch/internal/port"
)

// New builds the embedder named by cfg.Provider.
func New(cfg config.EmbeddingConfig) (port.Embedder, error) {
	if cfg.Model == "" {
		cfg.Model = config.DefaultEmbeddingModel(cfg.Provider)
	}
	switch cfg.Provider {
	case "openai":
		return NewOpenAIEmbedder(cfg.APIKeyEnv, cfg.Model, cfg.BaseURL, cfg.Dimension, cfg.BatchSize)
	case "ollama":
		return NewOllamaEmbedder(cfg.Model, cfg.BaseURL, cfg.Dimension, cfg.BatchSize), nil
	case "hash", "":
		return NewHashEmbedder(cfg.Dimension), nil
	case "mock":
		return NewMockEmbedder(cfg.Dimension, nil), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}
