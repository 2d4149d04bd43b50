package main

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xhad/aba/internal/logger"
	"github.com/xhad/aba/internal/types"
	"github.com/xhad/aba/pkg/arxiv"
	"github.com/xhad/aba/pkg/config"
	"github.com/xhad/aba/pkg/extractor"
	"github.com/xhad/aba/pkg/llm"
	"github.com/xhad/aba/pkg/pipeline"
	"github.com/xhad/aba/pkg/processor"
	"github.com/xhad/aba/pkg/store"
)

// app holds the long-lived clients shared by every session.
type app struct {
	config    *config.Config
	provider  *llm.Provider
	embedder  *llm.Embedder
	store     types.VectorStore
	extractor *extractor.PDFExtractor
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	provider, err := llm.NewProvider(ctx, llm.ProviderConfig{
		Provider:       cfg.LLM.Provider,
		BaseURL:        cfg.LLM.BaseURL,
		APIKey:         cfg.LLM.APIKey,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}

	embedder, err := llm.NewEmbedderWithConfig(provider.Embeddings, llm.EmbedderConfig{
		Dimension: cfg.Database.VectorDim,
		CacheSize: cfg.Retrieval.CacheSize,
		CacheTTL:  cfg.CacheTTL(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}

	vectorStore, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	logger.L().Info("services ready",
		zap.String("provider", cfg.LLM.Provider),
		zap.String("model", cfg.LLM.Model),
		zap.String("backend", cfg.Database.Backend))

	return &app{
		config:    cfg,
		provider:  provider,
		embedder:  embedder,
		store:     vectorStore,
		extractor: extractor.New(),
	}, nil
}

func newStore(ctx context.Context, cfg *config.Config) (types.VectorStore, error) {
	if cfg.Database.Backend == config.BackendMemory {
		return store.NewMemoryStore(store.MemoryStoreConfig{
			VectorDim: cfg.Database.VectorDim,
			MaxInsert: cfg.Database.MaxInsert,
		}), nil
	}

	vs, err := store.NewWithConfig(ctx, store.VectorStoreConfig{
		ConnString: cfg.Database.URL,
		Token:      cfg.Database.Token,
		TableName:  cfg.Database.TableName,
		VectorDim:  cfg.Database.VectorDim,
		MaxInsert:  cfg.Database.MaxInsert,
	})
	if err != nil {
		return nil, err
	}
	return vs, nil
}

// newSession builds a pipeline with its own history over the shared store.
func (a *app) newSession() (*pipeline.Pipeline, error) {
	engine, err := llm.NewWithModel(a.provider.Chat, llm.ChatConfig{
		Temperature: a.config.LLM.Temperature,
		MaxTokens:   a.config.LLM.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}

	return pipeline.NewWithConfig(pipeline.PipelineConfig{
		TopK:            a.config.Retrieval.TopK,
		MaxPromptChars:  a.config.Retrieval.MaxPromptChars,
		MaxOutputTokens: a.config.LLM.MaxTokens,
		HistoryTurns:    a.config.Retrieval.HistoryTurns,
		Timeout:         a.config.Timeout(),
	}, pipeline.Dependencies{
		Extractor: a.extractor,
		Processor: processor.NewWithConfig(processor.ProcessorConfig{
			ChunkSize:    a.config.Processor.ChunkSize,
			ChunkOverlap: a.config.Processor.ChunkOverlap,
			Separator:    a.config.Processor.Separator,
		}),
		Embedder:    a.embedder,
		Store:       a.store,
		Synthesizer: engine,
	})
}

func (a *app) summarizer() (*llm.Summarizer, error) {
	engine, err := llm.NewWithModel(a.provider.Chat, llm.ChatConfig{
		Temperature:    a.config.Summary.Temperature,
		MaxTokens:      a.config.Summary.MaxTokens,
		SystemTemplate: llm.SummarySystemTemplate,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}

	return llm.NewSummarizer(engine, llm.SummaryConfig{
		MaxInputChars: a.config.Summary.MaxInputChars,
		MaxTokens:     a.config.Summary.MaxTokens,
	}), nil
}

// documentText extracts the full text of a PDF, pages joined in order.
func (a *app) documentText(data []byte) (string, error) {
	pages, err := a.extractor.Extract(data)
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, page := range pages {
		text.WriteString(page.Text)
	}
	return text.String(), nil
}

func (a *app) Close() {
	a.store.Close()
}

func newArxiv(cfg *config.Config) (*arxiv.Client, error) {
	return arxiv.NewWithConfig(arxiv.ArxivConfig{
		BaseURL:    cfg.Arxiv.BaseURL,
		RateLimit:  cfg.Arxiv.RateLimit,
		MaxResults: cfg.Arxiv.MaxResults,
		Timeout:    cfg.ArxivTimeout(),
	})
}
