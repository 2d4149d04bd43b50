package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

type ProviderConfig struct {
	Provider       string
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string
}

// Provider holds the chat model and the embedding client for one backend.
type Provider struct {
	Chat       llms.Model
	Embeddings embeddings.EmbedderClient
}

// NewProvider connects to openai, ollama or gemini.
func NewProvider(ctx context.Context, config ProviderConfig) (*Provider, error) {
	switch config.Provider {
	case "", "openai":
		opts := []openai.Option{
			openai.WithToken(config.APIKey),
			openai.WithModel(config.Model),
			openai.WithEmbeddingModel(config.EmbeddingModel),
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		client, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM: %w", err)
		}
		return &Provider{Chat: client, Embeddings: client}, nil

	case "ollama":
		chat, err := ollama.New(ollama.WithModel(config.Model),
			ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM: %w", err)
		}
		// ollama embeds with whichever model the client was built for
		emb, err := ollama.New(ollama.WithModel(config.EmbeddingModel),
			ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		return &Provider{Chat: chat, Embeddings: emb}, nil

	case "gemini":
		client, err := NewGemini(ctx, config.APIKey, config.Model, config.EmbeddingModel)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM: %w", err)
		}
		return &Provider{Chat: client, Embeddings: client}, nil

	default:
		return nil, fmt.Errorf("unknown provider %q", config.Provider)
	}
}
