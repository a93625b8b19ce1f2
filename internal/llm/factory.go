package llm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/seenimoa/finanalyst/internal/config"
)

// NewProvider builds the provider selected by cfg.LLM.Provider.
func NewProvider(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (LLMProvider, error) {
	if cfg.LLM.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	switch cfg.LLM.Provider {
	case ProviderOpenAI, "":
		return NewOpenAIProvider(cfg.LLM.APIKey,
			WithBaseURL(cfg.LLM.BaseURL),
			WithModel(cfg.LLM.Model),
			WithRequestsPerMinute(cfg.LLM.RequestsPerMinute),
			WithLogger(logger),
		)
	case ProviderEino:
		return NewEinoProvider(ctx, EinoConfig{
			APIKey:            cfg.LLM.APIKey,
			BaseURL:           cfg.LLM.BaseURL,
			Model:             cfg.LLM.Model,
			Timeout:           cfg.LLMTimeout(),
			RequestsPerMinute: cfg.LLM.RequestsPerMinute,
			Logger:            logger,
		})
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.LLM.Provider)
	}
}

// DefaultChatOptions returns per-request options derived from cfg.
func DefaultChatOptions(cfg *config.Config) *ChatOptions {
	return &ChatOptions{
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	}
}
