package llm

import (
	"fmt"

	"askdata/internal/config"
)

// NewClient creates a completion client from a provider slot. Provider
// identity is resolved here once; the rest of the pipeline only sees Client.
func NewClient(cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGeminiClient(GeminiConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.LLMTimeout(),
		}), nil
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.LLMTimeout(),
		}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s (use 'gemini' or 'openai')", cfg.Provider)
	}
}
