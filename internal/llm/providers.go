// Package llm builds the chat model and embedder selected by configuration
// and installs optional tracing for eino components.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	openaiEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	geminiModel "github.com/cloudwego/eino-ext/components/model/gemini"
	openaiModel "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"github.com/tbourn/persona-rag-backend/internal/config"
	"github.com/tbourn/persona-rag-backend/internal/search"
)

// ErrMissingAPIKey is returned when a hosted provider is selected without a key.
var ErrMissingAPIKey = errors.New("api key is required")

// NewChatModel returns the chat model for cfg.Provider (openai or gemini).
func NewChatModel(ctx context.Context, cfg config.LLMConfig) (model.BaseChatModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s chat model: %w (set LLM_API_KEY)", cfg.Provider, ErrMissingAPIKey)
	}
	switch cfg.Provider {
	case "openai":
		return openaiModel.NewChatModel(ctx, &openaiModel.ChatModelConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	case "gemini":
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("create genai client: %w", err)
		}
		return geminiModel.NewChatModel(ctx, &geminiModel.Config{
			Client: client,
			Model:  cfg.Model,
		})
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// NewEmbedder returns the embedder for cfg.Provider (openai or local).
func NewEmbedder(ctx context.Context, cfg config.EmbeddingConfig) (embedding.Embedder, error) {
	switch cfg.Provider {
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai embedder: %w (set EMBEDDING_API_KEY or LLM_API_KEY)", ErrMissingAPIKey)
		}
		return openaiEmbed.NewEmbedder(ctx, &openaiEmbed.EmbeddingConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	case "local":
		return search.NewHashEmbedder(
			search.WithDim(cfg.Dim),
			search.WithStopwords(search.DefaultStopwords),
		), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.Provider)
	}
}

// EmbedderName identifies the vector space an embedder produces. Index
// versions built under a different name never share vectors.
func EmbedderName(cfg config.EmbeddingConfig) string {
	if cfg.Provider == "local" {
		return "local:" + strconv.Itoa(cfg.Dim)
	}
	return cfg.Provider + ":" + cfg.Model
}
