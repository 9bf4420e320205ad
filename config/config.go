package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the knowledge-base search engine.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieve  RetrieveConfig  `yaml:"retrieve"`
	Rerank    RerankConfig    `yaml:"rerank"`
	Answer    AnswerConfig    `yaml:"answer"`
	Source    SourceConfig    `yaml:"source"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StoreConfig selects where articles and embeddings live.
type StoreConfig struct {
	Driver string `yaml:"driver"` // "bolt" or "sqlite"
	Path   string `yaml:"path"`   // empty means <dir>/.kbsearch/kb.db
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`    // "openai", "ollama", "hash", "mock"
	Model     string `yaml:"model"`       // e.g., "nomic-embed-text"
	APIKeyEnv string `yaml:"api_key_env"` // Environment variable for API key
	BaseURL   string `yaml:"base_url"`
	Dimension int    `yaml:"dimension"` // 0 picks the model's known dimension
	BatchSize int    `yaml:"batch_size"`
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	Limit              int           `yaml:"limit"`
	RelevanceThreshold float64       `yaml:"relevance_threshold"`
	PoolSize           int           `yaml:"pool_size"`         // minimum candidate pool handed to the reranker
	SmallPoolBypass    int           `yaml:"small_pool_bypass"` // pools this small skip the model
	CacheSize          int           `yaml:"cache_size"`        // 0 disables the query cache
	CacheTTL           time.Duration `yaml:"cache_ttl"`
}

// RerankConfig holds the generative reranker configuration.
type RerankConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Provider     string        `yaml:"provider"` // "ollama" or "openai"
	Model        string        `yaml:"model"`
	BaseURL      string        `yaml:"base_url"`
	APIKeyEnv    string        `yaml:"api_key_env"`
	Timeout      time.Duration `yaml:"timeout"`
	Temperature  float64       `yaml:"temperature"`
	TopP         float64       `yaml:"top_p"`
	NumCtx       int           `yaml:"num_ctx"`
	ExcerptChars int           `yaml:"excerpt_chars"`
}

// AnswerConfig controls how an answer is composed from retrieved articles.
type AnswerConfig struct {
	Compose         bool   `yaml:"compose"` // let the generative model write the answer
	ExcerptChars    int    `yaml:"excerpt_chars"`
	Suggestions     int    `yaml:"suggestions"`
	FallbackMessage string `yaml:"fallback_message"`
}

// SourceConfig filters ingestion files.
type SourceConfig struct {
	Includes  []string `yaml:"includes"`
	Excludes  []string `yaml:"excludes"`
	StripHTML bool     `yaml:"strip_html"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Driver: "bolt",
		},
		Embedding: EmbeddingConfig{
			Provider:  "hash",
			Model:     "", // provider default
			APIKeyEnv: "OPENAI_API_KEY",
			Dimension: 0, // provider default
			BatchSize: 64,
		},
		Retrieve: RetrieveConfig{
			Limit:              5,
			RelevanceThreshold: 0.3,
			PoolSize:           10,
			SmallPoolBypass:    3,
			CacheSize:          100,
			CacheTTL:           5 * time.Minute,
		},
		Rerank: RerankConfig{
			Enabled:      false, // Disabled by default (requires a running model)
			Provider:     "ollama",
			Model:        "llama3.1:8b",
			BaseURL:      "", // provider default
			APIKeyEnv:    "OPENAI_API_KEY",
			Timeout:      30 * time.Second,
			Temperature:  0.1,
			TopP:         0.9,
			NumCtx:       4096,
			ExcerptChars: 300,
		},
		Answer: AnswerConfig{
			Compose:         false,
			ExcerptChars:    500,
			Suggestions:     3,
			FallbackMessage: "I couldn't find relevant information in our knowledge base. Please try rephrasing your question, or contact support.",
		},
		Source: SourceConfig{
			Includes:  []string{"**/*.json"},
			Excludes:  []string{"**/.kbsearch/**", "**/node_modules/**", "**/.git/**"},
			StripHTML: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "bolt", "sqlite":
	default:
		return fmt.Errorf("unsupported store driver: %q", c.Store.Driver)
	}
	switch c.Embedding.Provider {
	case "openai", "ollama", "hash", "mock":
	default:
		return fmt.Errorf("unsupported embedding provider: %q", c.Embedding.Provider)
	}
	if c.Embedding.Model == "" && (c.Embedding.Provider == "openai" || c.Embedding.Provider == "ollama") {
		return fmt.Errorf("embedding.model is required for provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimension < 0 || (c.Embedding.Dimension == 0 && c.Embedding.Provider == "mock") {
		return fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Retrieve.Limit <= 0 {
		return fmt.Errorf("retrieve.limit must be positive, got %d", c.Retrieve.Limit)
	}
	if c.Retrieve.PoolSize <= 0 {
		return fmt.Errorf("retrieve.pool_size must be positive, got %d", c.Retrieve.PoolSize)
	}
	if c.Retrieve.SmallPoolBypass < 0 {
		return fmt.Errorf("retrieve.small_pool_bypass must not be negative, got %d", c.Retrieve.SmallPoolBypass)
	}
	if c.Retrieve.RelevanceThreshold < -1 || c.Retrieve.RelevanceThreshold > 1 {
		return fmt.Errorf("retrieve.relevance_threshold must be within [-1, 1], got %f", c.Retrieve.RelevanceThreshold)
	}
	if c.Rerank.Enabled || c.Answer.Compose {
		switch c.Rerank.Provider {
		case "ollama", "openai":
		default:
			return fmt.Errorf("unsupported rerank provider: %q", c.Rerank.Provider)
		}
		if c.Rerank.Timeout <= 0 {
			return fmt.Errorf("rerank.timeout must be positive, got %s", c.Rerank.Timeout)
		}
	}
	return nil
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = DefaultEmbeddingModel(cfg.Embedding.Provider)
	}

	return cfg, nil
}

// DefaultEmbeddingModel names the model a network provider uses when none is
// configured. Offline providers have no model and get "".
func DefaultEmbeddingModel(provider string) string {
	switch provider {
	case "openai":
		return "text-embedding-3-small"
	case "ollama":
		return "nomic-embed-text"
	default:
		return ""
	}
}

// LoadFromDir loads configuration from a directory (looks for kbsearch.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "kbsearch.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".kbsearch", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// StoreDBPath returns the store path, defaulting into the data directory.
func (c *Config) StoreDBPath(dir string) string {
	if c.Store.Path != "" {
		if filepath.IsAbs(c.Store.Path) {
			return c.Store.Path
		}
		return filepath.Join(dir, c.Store.Path)
	}
	return filepath.Join(dir, ".kbsearch", "kb.db")
}

// EnsureDataDir ensures the .kbsearch directory exists.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, ".kbsearch"), 0755)
}
