package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tbourn/persona-rag-backend/internal/config"
	"github.com/tbourn/persona-rag-backend/internal/search"
)

func TestNewChatModel_Validation(t *testing.T) {
	ctx := context.Background()
	if _, err := NewChatModel(ctx, config.LLMConfig{Provider: "openai"}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
	if _, err := NewChatModel(ctx, config.LLMConfig{Provider: "llama", APIKey: "k"}); err == nil {
		t.Fatalf("expected unsupported provider error")
	}
}

func TestNewChatModel_OpenAI(t *testing.T) {
	m, err := NewChatModel(context.Background(), config.LLMConfig{
		Provider: "openai",
		APIKey:   "sk-test",
		BaseURL:  "http://127.0.0.1:1/v1",
		Model:    "gpt-3.5-turbo",
	})
	if err != nil || m == nil {
		t.Fatalf("NewChatModel(openai) = %v, %v", m, err)
	}
}

func TestNewEmbedder(t *testing.T) {
	ctx := context.Background()

	e, err := NewEmbedder(ctx, config.EmbeddingConfig{Provider: "local", Dim: 32})
	if err != nil {
		t.Fatalf("local embedder: %v", err)
	}
	he, ok := e.(*search.HashEmbedder)
	if !ok || he.Dim() != 32 {
		t.Fatalf("expected 32-dim hash embedder, got %T", e)
	}

	if _, err := NewEmbedder(ctx, config.EmbeddingConfig{Provider: "openai"}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
	if _, err := NewEmbedder(ctx, config.EmbeddingConfig{Provider: "openai", APIKey: "sk", Model: "text-embedding-ada-002"}); err != nil {
		t.Fatalf("openai embedder: %v", err)
	}
	if _, err := NewEmbedder(ctx, config.EmbeddingConfig{Provider: "cohere"}); err == nil {
		t.Fatalf("expected unsupported provider error")
	}
}

func TestEmbedderName(t *testing.T) {
	if got := EmbedderName(config.EmbeddingConfig{Provider: "local", Dim: 64}); got != "local:64" {
		t.Fatalf("local name = %q", got)
	}
	if got := EmbedderName(config.EmbeddingConfig{Provider: "openai", Model: "text-embedding-ada-002"}); got != "openai:text-embedding-ada-002" {
		t.Fatalf("openai name = %q", got)
	}
}

func TestSetupCozeLoop_DisabledIsNoop(t *testing.T) {
	closeFn, err := SetupCozeLoop(context.Background(), config.TracingConfig{CozeLoopToken: "t"}, zerolog.Nop())
	if err != nil || closeFn == nil {
		t.Fatalf("disabled setup = %v", err)
	}
	closeFn(context.Background())
}
