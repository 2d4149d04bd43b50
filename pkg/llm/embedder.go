package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/tmc/langchaingo/embeddings"
	"go.uber.org/zap"

	"github.com/xhad/aba/internal/logger"
	"github.com/xhad/aba/internal/types"
)

type EmbedderConfig struct {
	// Dimension every returned vector must have. Zero disables the check.
	Dimension int
	BatchSize int
	CacheSize int
	CacheTTL  time.Duration
}

// Embedder wraps a langchaingo embedder with dimension checks, error
// classification and a small cache of query vectors.
type Embedder struct {
	config EmbedderConfig
	embed  embeddings.Embedder
	cache  *expirable.LRU[string, []float32]
}

func NewEmbedderWithConfig(client embeddings.EmbedderClient, config EmbedderConfig) (*Embedder, error) {
	if client == nil {
		return nil, fmt.Errorf("embedding client is required")
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 32
	}

	emb, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(config.BatchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	e := &Embedder{
		config: config,
		embed:  emb,
	}
	if config.CacheSize > 0 && config.CacheTTL > 0 {
		e.cache = expirable.NewLRU[string, []float32](config.CacheSize, nil, config.CacheTTL)
	}
	return e, nil
}

func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := e.embed.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrEmbeddingService, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", types.ErrEmbeddingService, len(vectors), len(texts))
	}
	for i, v := range vectors {
		if err := e.checkDimension(v); err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
	}

	logger.L().Debug("embedded documents", zap.Int("count", len(vectors)))
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if e.cache != nil {
		if cached, ok := e.cache.Get(text); ok {
			logger.L().Debug("embedding cache hit")
			return cloneEmbedding(cached), nil
		}
	}

	vector, err := e.embed.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrEmbeddingService, err)
	}
	if err := e.checkDimension(vector); err != nil {
		return nil, err
	}

	if e.cache != nil {
		e.cache.Add(text, cloneEmbedding(vector))
	}
	return vector, nil
}

func (e *Embedder) checkDimension(v []float32) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty vector", types.ErrEmbeddingService)
	}
	if e.config.Dimension > 0 && len(v) != e.config.Dimension {
		return fmt.Errorf("%w: vector has dimension %d, want %d", types.ErrEmbeddingService, len(v), e.config.Dimension)
	}
	return nil
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}

var _ types.Embedder = (*Embedder)(nil)
