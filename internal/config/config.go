// Package config loads askdata configuration from YAML with environment
// variable overrides. The config file is optional; defaults target a local
// Data Catalog and an embedded SQLite vector store.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all askdata configuration.
type Config struct {
	// LLM completion providers. SQLGen answers question-to-VQL and repair
	// prompts; Chat answers final natural-language generation prompts.
	SQLGen LLMConfig `yaml:"sql_gen"`
	Chat   LLMConfig `yaml:"chat"`

	// Embeddings configuration
	Embeddings EmbeddingsConfig `yaml:"embeddings"`

	// Vector store configuration
	VectorStore VectorStoreConfig `yaml:"vector_store"`

	// Data Catalog connection
	Catalog CatalogConfig `yaml:"catalog"`

	// Retrieval tuning
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Pipeline tuning
	Pipeline PipelineConfig `yaml:"pipeline"`

	// HTTP server
	Server ServerConfig `yaml:"server"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures one completion provider slot.
type LLMConfig struct {
	Provider string `yaml:"provider"` // gemini, openai
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// EmbeddingsConfig configures the embedding engine.
type EmbeddingsConfig struct {
	Provider       string `yaml:"provider"` // ollama, genai
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`
	GenAIAPIKey    string `yaml:"genai_api_key"`
	GenAIModel     string `yaml:"genai_model"`
}

// VectorStoreConfig configures the schema index backend.
type VectorStoreConfig struct {
	Provider string `yaml:"provider"` // sqlite, pgvector

	// sqlite
	DatabasePath string `yaml:"database_path"`

	// pgvector
	PostgresDSN string `yaml:"postgres_dsn"`

	// Index names. The sample index holds per-view example rows used to
	// ground literal formatting in generated queries.
	ViewsIndex  string `yaml:"views_index"`
	SampleIndex string `yaml:"sample_index"`
}

// CatalogConfig configures the Data Catalog endpoints.
type CatalogConfig struct {
	URL       string `yaml:"url"`
	ServerID  int    `yaml:"server_id"`
	VerifySSL bool   `yaml:"verify_ssl"`
	RowLimit  int    `yaml:"row_limit"`
	Timeout   string `yaml:"timeout"`
}

// RetrievalConfig tunes the schema retriever.
type RetrievalConfig struct {
	K           int `yaml:"k"`
	MaxRounds   int `yaml:"max_rounds"`
	SampleK     int `yaml:"sample_k"`
	ChunkTokens int `yaml:"chunk_tokens"`
}

// PipelineConfig tunes query generation and repair.
type PipelineConfig struct {
	MaxRepairAttempts int  `yaml:"max_repair_attempts"`
	Markdown          bool `yaml:"markdown"`
	Disclaimer        bool `yaml:"disclaimer"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr    string `yaml:"addr"`
	Metrics bool   `yaml:"metrics"`
}

// LoggingConfig configures zap output.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns sensible defaults for a local deployment.
func DefaultConfig() Config {
	return Config{
		SQLGen: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.5-flash",
			Timeout:  "120s",
		},
		Chat: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.5-flash",
			Timeout:  "120s",
		},
		Embeddings: EmbeddingsConfig{
			Provider:       "ollama",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
		},
		VectorStore: VectorStoreConfig{
			Provider:     "sqlite",
			DatabasePath: "askdata.db",
			ViewsIndex:   "ai_sdk_views",
			SampleIndex:  "ai_sdk_sample_data",
		},
		Catalog: CatalogConfig{
			URL:      "http://localhost:9090/denodo-data-catalog",
			ServerID: 1,
			RowLimit: 100,
			Timeout:  "60s",
		},
		Retrieval: RetrievalConfig{
			K:           5,
			MaxRounds:   2,
			SampleK:     3,
			ChunkTokens: 7500,
		},
		Pipeline: PipelineConfig{
			MaxRepairAttempts: 2,
			Markdown:          true,
		},
		Server: ServerConfig{
			Addr:    ":8008",
			Metrics: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file returns defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return &cfg, nil
}

// Save writes configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		applyKey(&c.SQLGen, "openai", key)
		applyKey(&c.Chat, "openai", key)
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		applyKey(&c.SQLGen, "gemini", key)
		applyKey(&c.Chat, "gemini", key)
		if c.Embeddings.GenAIAPIKey == "" {
			c.Embeddings.GenAIAPIKey = key
		}
	}

	if url := os.Getenv("DATA_CATALOG_URL"); url != "" {
		c.Catalog.URL = url
	}
	if id := os.Getenv("DATA_CATALOG_SERVER_ID"); id != "" {
		if n, err := strconv.Atoi(id); err == nil {
			c.Catalog.ServerID = n
		}
	}
	if v := os.Getenv("DATA_CATALOG_VERIFY_SSL"); v != "" {
		c.Catalog.VerifySSL = v == "1" || v == "true"
	}

	if dsn := os.Getenv("ASKDATA_POSTGRES_DSN"); dsn != "" {
		c.VectorStore.Provider = "pgvector"
		c.VectorStore.PostgresDSN = dsn
	}
	if path := os.Getenv("ASKDATA_DB"); path != "" {
		c.VectorStore.DatabasePath = path
	}
}

// applyKey sets the API key, taking over the provider only when the slot has
// no key yet. A key already present in the file wins over the environment.
func applyKey(slot *LLMConfig, provider, key string) {
	if slot.APIKey != "" {
		return
	}
	slot.APIKey = key
	if slot.Provider == "" {
		slot.Provider = provider
	}
}

// LLMTimeout returns the completion timeout for a provider slot.
func (l LLMConfig) LLMTimeout() time.Duration {
	d, err := time.ParseDuration(l.Timeout)
	if err != nil || d <= 0 {
		return 120 * time.Second
	}
	return d
}

// CatalogTimeout returns the Data Catalog request timeout.
func (c CatalogConfig) CatalogTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}
