package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/xhad/aba/internal/logger"
	"github.com/xhad/aba/internal/models"
	"github.com/xhad/aba/internal/types"
)

type MemoryStoreConfig struct {
	VectorDim int
	MaxInsert int
}

// MemoryStore is an in-process VectorStore with exact cosine search. It is
// used when no database is configured and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	config  MemoryStoreConfig
	entries []models.EmbeddedChunk
	index   map[string]int
	closed  bool
}

func NewMemoryStore(config MemoryStoreConfig) *MemoryStore {
	if config.MaxInsert <= 0 {
		config.MaxInsert = 50
	}
	return &MemoryStore{
		config: config,
		index:  make(map[string]int),
	}
}

func (m *MemoryStore) InsertLimit() int {
	return m.config.MaxInsert
}

func (m *MemoryStore) Insert(ctx context.Context, chunks []models.EmbeddedChunk) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, fmt.Errorf("%w: store is closed", types.ErrStorageUnavailable)
	}

	if len(chunks) > m.config.MaxInsert {
		logger.L().Warn("insert batch capped",
			zap.Int("requested", len(chunks)),
			zap.Int("limit", m.config.MaxInsert))
		chunks = chunks[:m.config.MaxInsert]
	}

	// validate first so a bad batch leaves the store untouched
	for _, c := range chunks {
		if len(c.Vector) == 0 || (m.config.VectorDim > 0 && len(c.Vector) != m.config.VectorDim) {
			return 0, fmt.Errorf("%w: chunk %s has dimension %d, store expects %d", types.ErrDimensionMismatch, c.ID, len(c.Vector), m.config.VectorDim)
		}
	}

	for _, c := range chunks {
		c.Vector = append([]float32(nil), c.Vector...)
		if i, ok := m.index[c.ID]; ok {
			m.entries[i] = c
			continue
		}
		m.index[c.ID] = len(m.entries)
		m.entries = append(m.entries, c)
	}

	return len(chunks), nil
}

func (m *MemoryStore) Search(ctx context.Context, query []float32, k int) ([]models.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("%w: store is closed", types.ErrStorageUnavailable)
	}
	if k <= 0 || len(m.entries) == 0 {
		return nil, nil
	}

	results := make([]models.SearchResult, 0, len(m.entries))
	for _, e := range m.entries {
		results = append(results, models.SearchResult{
			Chunk: e.Chunk,
			Score: cosineSimilarity(query, e.Vector),
		})
	}

	// stable, so equal scores keep insertion order
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryStore) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.entries = nil
	m.index = nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ types.VectorStore = (*MemoryStore)(nil)
