package types

import (
	"context"

	"github.com/xhad/aba/internal/models"
)

// Core interfaces
type Extractor interface {
	Extract(data []byte) ([]models.Page, error)
}

// Embedder has the same shape as langchaingo's embeddings.Embedder.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type VectorStore interface {
	// Insert persists at most InsertLimit() of the given chunks, in order, and
	// reports how many were stored.
	Insert(ctx context.Context, chunks []models.EmbeddedChunk) (int, error)
	Search(ctx context.Context, query []float32, k int) ([]models.SearchResult, error)
	InsertLimit() int
	Close()
}

type Synthesizer interface {
	Complete(ctx context.Context, prompt string, maxOutputTokens int) (string, error)
}
