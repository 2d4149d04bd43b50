package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/xhad/aba/internal/logger"
	"github.com/xhad/aba/internal/models"
	"github.com/xhad/aba/internal/types"
	"github.com/xhad/aba/pkg/processor"
)

type State int

const (
	StateEmpty State = iota
	StateIngesting
	StateReady
	StateQuerying
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateIngesting:
		return "ingesting"
	case StateReady:
		return "ready"
	case StateQuerying:
		return "querying"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type PipelineConfig struct {
	TopK            int
	MaxPromptChars  int
	MaxOutputTokens int
	// HistoryTurns bounds how many recent turns are offered to the prompt.
	HistoryTurns int
	// Timeout wraps a whole Ingest or Ask call.
	Timeout time.Duration
}

// Dependencies are the collaborators a Pipeline drives. The store may be
// shared with other pipelines.
type Dependencies struct {
	Extractor   types.Extractor
	Processor   processor.Processor
	Embedder    types.Embedder
	Store       types.VectorStore
	Synthesizer types.Synthesizer
}

type IngestResult struct {
	DocumentID string `json:"document_id"`
	Name       string `json:"name"`
	Pages      int    `json:"pages"`
	// Chunks is how many chunks the document produced, Stored how many were
	// kept after the store's insert limit.
	Chunks int  `json:"chunks"`
	Stored int  `json:"stored"`
	Capped bool `json:"capped"`
}

type Answer struct {
	Text    string
	Sources []models.SearchResult
}

// Pipeline is one question-answering session over the documents it ingests.
// Calls are serialized: one ingestion or one question runs at a time.
type Pipeline struct {
	mu       sync.Mutex
	config   PipelineConfig
	deps     Dependencies
	state    State
	document *IngestResult
	history  []models.ConversationTurn
}

func NewWithConfig(config PipelineConfig, deps Dependencies) (*Pipeline, error) {
	if deps.Extractor == nil || deps.Embedder == nil || deps.Store == nil || deps.Synthesizer == nil {
		return nil, fmt.Errorf("%w: pipeline is missing a dependency", types.ErrConfiguration)
	}
	if config.TopK <= 0 {
		config.TopK = 4
	}
	if config.MaxPromptChars <= 0 {
		config.MaxPromptChars = 12000
	}
	if config.MaxOutputTokens <= 0 {
		config.MaxOutputTokens = 500
	}
	if config.HistoryTurns <= 0 {
		config.HistoryTurns = 10
	}
	if config.Timeout <= 0 {
		config.Timeout = 120 * time.Second
	}

	return &Pipeline{
		config: config,
		deps:   deps,
		state:  StateEmpty,
	}, nil
}

func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Document describes the most recently ingested document, if any.
func (p *Pipeline) Document() (IngestResult, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.document == nil {
		return IngestResult{}, false
	}
	return *p.document, true
}

func (p *Pipeline) History() []models.ConversationTurn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.ConversationTurn(nil), p.history...)
}

// Ingest extracts, chunks, embeds and stores a PDF. Embedding finishes before
// anything is written, and the write is a single insert, so a failure leaves
// the store as it was and the session in its previous state.
func (p *Pipeline) Ingest(ctx context.Context, src models.Source) (IngestResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateClosed {
		return IngestResult{}, types.ErrSessionClosed
	}

	previous := p.state
	p.state = StateIngesting

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	start := time.Now()
	result, err := p.ingest(ctx, src)
	if err != nil {
		p.state = previous
		logger.L().Error("ingestion failed",
			zap.String("source", src.Name),
			zap.Error(err))
		return IngestResult{}, err
	}

	p.state = StateReady
	p.document = &result

	logger.L().Info("document ingested",
		zap.String("source", result.Name),
		zap.Int("pages", result.Pages),
		zap.Int("chunks", result.Chunks),
		zap.Int("stored", result.Stored),
		zap.Duration("took", time.Since(start)))

	return result, nil
}

func (p *Pipeline) ingest(ctx context.Context, src models.Source) (IngestResult, error) {
	pages, err := p.deps.Extractor.Extract(src.Data)
	if err != nil {
		return IngestResult{}, classify(err, types.ErrInvalidDocument)
	}

	doc := models.Document{
		ID:     processor.DocumentID(src.Data),
		Name:   src.Name,
		Source: src.URL,
		Pages:  pages,
	}

	chunks := p.deps.Processor.Split(doc)
	if len(chunks) == 0 {
		return IngestResult{}, types.ErrEmptyDocument
	}

	result := IngestResult{
		DocumentID: doc.ID,
		Name:       doc.Name,
		Pages:      len(pages),
		Chunks:     len(chunks),
	}

	if limit := p.deps.Store.InsertLimit(); limit > 0 && len(chunks) > limit {
		logger.L().Warn("document exceeds insert limit, keeping the first chunks",
			zap.Int("chunks", len(chunks)),
			zap.Int("limit", limit))
		chunks = chunks[:limit]
		result.Capped = true
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := p.deps.Embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return IngestResult{}, classify(err, types.ErrEmbeddingService)
	}
	if len(vectors) != len(chunks) {
		return IngestResult{}, fmt.Errorf("%w: got %d vectors for %d chunks", types.ErrEmbeddingService, len(vectors), len(chunks))
	}

	embedded := make([]models.EmbeddedChunk, len(chunks))
	for i, c := range chunks {
		embedded[i] = models.EmbeddedChunk{
			Chunk:  c,
			Vector: vectors[i],
			Metadata: map[string]interface{}{
				"source":      doc.Name,
				"url":         doc.Source,
				"document_id": doc.ID,
				"chunk_index": c.Index,
			},
		}
	}

	stored, err := p.deps.Store.Insert(ctx, embedded)
	if err != nil {
		return IngestResult{}, classify(err, types.ErrStorageUnavailable)
	}
	if stored == 0 {
		return IngestResult{}, types.ErrEmptyDocument
	}
	result.Stored = stored
	if stored < result.Chunks {
		result.Capped = true
	}

	return result, nil
}

// Ask answers a question from the stored chunks and the session's history.
// When an external service fails the answer text is AnswerUnavailable, the
// error says which service, and the history is left untouched.
func (p *Pipeline) Ask(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)

	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateClosed:
		return Answer{}, types.ErrSessionClosed
	case StateEmpty:
		return Answer{}, types.ErrNoDocumentLoaded
	}
	if question == "" {
		return Answer{}, types.ErrEmptyQuestion
	}

	p.state = StateQuerying
	defer func() { p.state = StateReady }()

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	vector, err := p.deps.Embedder.EmbedQuery(ctx, question)
	if err != nil {
		return p.unavailable(classify(err, types.ErrEmbeddingService))
	}

	results, err := p.deps.Store.Search(ctx, vector, p.config.TopK)
	if err != nil {
		return p.unavailable(classify(err, types.ErrStorageUnavailable))
	}

	history := p.history
	if len(history) > p.config.HistoryTurns {
		history = history[len(history)-p.config.HistoryTurns:]
	}

	prompt := BuildPrompt(PromptInput{
		Question: question,
		Context:  results,
		History:  history,
	}, p.config.MaxPromptChars)

	logger.L().Debug("asking",
		zap.Int("sources", len(results)),
		zap.Int("history", len(history)),
		zap.Int("prompt_chars", utf8.RuneCountInString(prompt)))

	text, err := p.deps.Synthesizer.Complete(ctx, prompt, p.config.MaxOutputTokens)
	if err != nil {
		return p.unavailable(classify(err, types.ErrSynthesisService))
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return p.unavailable(fmt.Errorf("%w: empty answer", types.ErrSynthesisService))
	}

	p.history = append(p.history, models.ConversationTurn{Question: question, Answer: text})

	return Answer{Text: text, Sources: results}, nil
}

func (p *Pipeline) unavailable(err error) (Answer, error) {
	logger.L().Error("question failed", zap.Error(err))
	return Answer{Text: AnswerUnavailable}, err
}

// Close ends the session and forgets its history. The store stays open for
// other sessions.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateClosed
	p.history = nil
	p.document = nil
}

// classified are the sentinels a collaborator may already have attached.
var classified = []error{
	types.ErrInvalidDocument,
	types.ErrEmptyDocument,
	types.ErrEmbeddingService,
	types.ErrSynthesisService,
	types.ErrStorageUnavailable,
	types.ErrDimensionMismatch,
}

// classify makes sure err carries a sentinel, defaulting to the given one,
// while keeping the original cause.
func classify(err, sentinel error) error {
	for _, known := range classified {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
