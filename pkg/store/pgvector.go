package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/xhad/aba/internal/logger"
	"github.com/xhad/aba/internal/models"
	"github.com/xhad/aba/internal/types"
)

type VectorStoreConfig struct {
	ConnString string
	// Token, when set, is used as the database password.
	Token     string
	TableName string
	VectorDim int
	MaxInsert int
}

// VectorStore keeps embedded chunks in a pgvector table and ranks them by
// cosine similarity. Several sessions may share one table.
type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
	table  string
}

func NewWithConfig(ctx context.Context, config VectorStoreConfig) (*VectorStore, error) {
	if config.ConnString == "" {
		return nil, fmt.Errorf("%w: database url is required", types.ErrConfiguration)
	}
	if config.TableName == "" {
		config.TableName = "pdf_qa"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 1536 // Default for OpenAI embeddings
	}
	if config.MaxInsert == 0 {
		config.MaxInsert = 50
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid database url: %v", types.ErrConfiguration, err)
	}
	if config.Token != "" {
		poolConfig.ConnConfig.Password = config.Token
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to database: %v", types.ErrStorageUnavailable, err)
	}

	vs := &VectorStore{
		config: config,
		pool:   pool,
		table:  pgx.Identifier{config.TableName}.Sanitize(),
	}

	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.L().Info("vector store ready",
		zap.String("table", config.TableName),
		zap.Int("dim", config.VectorDim))

	return vs, nil
}

func (vs *VectorStore) initialize(ctx context.Context) error {
	if err := vs.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: failed to reach database: %v", types.ErrStorageUnavailable, err)
	}

	// Enable pgvector extension
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("%w: failed to create vector extension: %v", types.ErrStorageUnavailable, err)
	}

	// seq records insertion order and breaks score ties
	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			seq BIGSERIAL,
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			source TEXT,
			content TEXT NOT NULL,
			chunk_index INTEGER,
			embedding vector(%d),
			metadata JSONB
		)`, vs.table, vs.config.VectorDim)

	_, err = vs.pool.Exec(ctx, createTable)
	if err != nil {
		return fmt.Errorf("%w: failed to create table: %v", types.ErrStorageUnavailable, err)
	}

	// Create vector index
	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s
		ON %s
		USING hnsw (embedding vector_cosine_ops)`,
		pgx.Identifier{vs.config.TableName + "_embedding_idx"}.Sanitize(), vs.table)

	_, err = vs.pool.Exec(ctx, createIndex)
	if err != nil {
		return fmt.Errorf("%w: failed to create index: %v", types.ErrStorageUnavailable, err)
	}

	return nil
}

func (vs *VectorStore) InsertLimit() int {
	return vs.config.MaxInsert
}

// Insert upserts at most MaxInsert chunks in one transaction. Re-inserting a
// chunk replaces its content but keeps its original position.
func (vs *VectorStore) Insert(ctx context.Context, chunks []models.EmbeddedChunk) (int, error) {
	if len(chunks) > vs.config.MaxInsert {
		logger.L().Warn("insert batch capped",
			zap.Int("requested", len(chunks)),
			zap.Int("limit", vs.config.MaxInsert))
		chunks = chunks[:vs.config.MaxInsert]
	}
	if len(chunks) == 0 {
		return 0, nil
	}
	for _, c := range chunks {
		if len(c.Vector) != vs.config.VectorDim {
			return 0, fmt.Errorf("%w: chunk %s has dimension %d, table expects %d", types.ErrDimensionMismatch, c.ID, len(c.Vector), vs.config.VectorDim)
		}
	}

	// Begin transaction
	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to begin transaction: %v", types.ErrStorageUnavailable, err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, document_id, source, content, chunk_index, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`,
		vs.table)

	batch := &pgx.Batch{}
	for _, c := range chunks {
		source, _ := c.Metadata["source"].(string)
		batch.Queue(stmt,
			c.ID,
			c.DocumentID,
			sanitizeText(source),
			sanitizeText(c.Text),
			c.Index,
			pgvector.NewVector(c.Vector),
			c.Metadata,
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("%w: failed to insert chunks: %v", types.ErrStorageUnavailable, err)
	}

	// Commit transaction
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%w: failed to commit transaction: %v", types.ErrStorageUnavailable, err)
	}

	logger.L().Debug("chunks stored", zap.Int("count", len(chunks)))
	return len(chunks), nil
}

// Search returns the k chunks closest to query, best first.
func (vs *VectorStore) Search(ctx context.Context, query []float32, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}

	sql := fmt.Sprintf(`
		SELECT id, document_id, chunk_index, content, 1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1, seq
		LIMIT $2`,
		vs.table)

	rows, err := vs.pool.Query(ctx, sql, pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query chunks: %v", types.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var results []models.SearchResult
	for rows.Next() {
		var r models.SearchResult
		err := rows.Scan(
			&r.Chunk.ID,
			&r.Chunk.DocumentID,
			&r.Chunk.Index,
			&r.Chunk.Text,
			&r.Score,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", types.ErrStorageUnavailable, err)
	}

	return results, nil
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

// sanitizeText drops invalid UTF-8 and NUL bytes, both of which Postgres
// rejects in TEXT columns. PDF extraction produces either now and then.
func sanitizeText(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}

var _ types.VectorStore = (*VectorStore)(nil)
