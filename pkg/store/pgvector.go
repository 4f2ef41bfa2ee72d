package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/xhad/pgai-rag/internal/models"
	"github.com/xhad/pgai-rag/pkg/llm"
	"github.com/xhad/pgai-rag/pkg/logging"
)

type VectorStoreConfig struct {
	ConnString     string
	TableName      string
	VectorDim      int
	Extension      string
	EmbeddingModel string
	Host           string // Ollama server URL as seen by the database
	MaxConns       int32
	Logger         *zap.Logger
}

type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewWithConfig(ctx context.Context, config VectorStoreConfig) (*VectorStore, error) {
	config = config.withDefaults()

	poolConfig, err := pgxpool.ParseConfig(config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = config.MaxConns
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "pgai-rag"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	return &VectorStore{
		config: config,
		pool:   pool,
		logger: logging.OrNop(config.Logger).Named("store"),
	}, nil
}

func (c VectorStoreConfig) withDefaults() VectorStoreConfig {
	if c.TableName == "" {
		c.TableName = "documents"
	}
	if c.VectorDim == 0 {
		c.VectorDim = 768 // nomic-embed-text
	}
	if c.Extension == "" {
		c.Extension = "ai"
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = "nomic-embed-text"
	}
	if c.Host == "" {
		c.Host = "http://localhost:11434"
	}
	if c.MaxConns == 0 {
		c.MaxConns = 4
	}
	return c
}

// Pool exposes the underlying pool so the llm engines share it.
func (vs *VectorStore) Pool() *pgxpool.Pool {
	return vs.pool
}

// EnsureExtension creates the extension (and, through CASCADE, pgvector).
// The statement may have to wait for other sessions installing it, so the
// caller is expected to bound ctx.
func (vs *VectorStore) EnsureExtension(ctx context.Context) error {
	vs.logger.Info("Ensuring extension", zap.String("extension", vs.config.Extension))

	_, err := vs.pool.Exec(ctx, fmt.Sprintf("CREATE EXTENSION IF NOT EXISTS %s CASCADE", vs.config.Extension))
	return extensionError(ctx, vs.config.Extension, err)
}

// extensionError reports a deadline hit while creating the extension as a
// timeout rather than as the driver's cancellation error.
func extensionError(ctx context.Context, extension string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("timed out creating extension %s: %w", extension, ctx.Err())
	}
	return fmt.Errorf("failed to create extension %s: %w", extension, err)
}

// HasEmbeddingFunction reports whether the extension's embed function is
// installed.
func (vs *VectorStore) HasEmbeddingFunction(ctx context.Context) (bool, error) {
	schema, name := splitSchemaName(llm.EmbedFunction)

	var count int
	err := vs.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM pg_catalog.pg_proc p
		JOIN pg_catalog.pg_namespace n ON n.oid = p.pronamespace
		WHERE n.nspname = $1 AND p.proname = $2`,
		schema, name,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to look up %s: %w", llm.EmbedFunction, err)
	}

	vs.logger.Debug("Embedding function check", zap.String("function", llm.EmbedFunction), zap.Int("matches", count))
	return count > 0, nil
}

func (vs *VectorStore) EnsureSchema(ctx context.Context) error {
	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id SERIAL PRIMARY KEY,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d)
		)`, vs.config.TableName, vs.config.VectorDim)

	if _, err := vs.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	vs.logger.Info("Table ready", zap.String("table", vs.config.TableName), zap.Int("dimensions", vs.config.VectorDim))
	return nil
}

// Reset removes every document and restarts the id sequence.
func (vs *VectorStore) Reset(ctx context.Context) error {
	if _, err := vs.pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY", vs.config.TableName)); err != nil {
		return fmt.Errorf("failed to clear table: %w", err)
	}

	return nil
}

// Insert stores doc. The embedding is computed by the database from the
// stored content.
func (vs *VectorStore) Insert(ctx context.Context, doc models.Document) (int64, error) {
	stmt := fmt.Sprintf(`
		INSERT INTO %s (title, content, embedding)
		VALUES ($1, $2, %s($3, $2, host => $4))
		RETURNING id`,
		vs.config.TableName, llm.EmbedFunction)

	var id int64
	err := vs.pool.QueryRow(ctx, stmt,
		sanitizeUTF8(doc.Title),
		sanitizeUTF8(doc.Content),
		vs.config.EmbeddingModel,
		vs.config.Host,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert document %q: %w", doc.Title, err)
	}

	vs.logger.Debug("Inserted document", zap.Int64("id", id), zap.String("title", doc.Title))
	return id, nil
}

func (vs *VectorStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := vs.pool.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", vs.config.TableName)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}

	return count, nil
}

// Query returns the limit documents nearest to queryEmbedding by cosine
// distance, nearest first.
func (vs *VectorStore) Query(ctx context.Context, queryEmbedding pgvector.Vector, limit int) ([]models.RetrievedDocument, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	query := fmt.Sprintf(`
		SELECT id, title, content, embedding, embedding <=> $1 AS distance
		FROM %s
		WHERE embedding IS NOT NULL
		ORDER BY distance, id
		LIMIT $2`,
		vs.config.TableName)

	rows, err := vs.pool.Query(ctx, query, queryEmbedding, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []models.RetrievedDocument
	for rows.Next() {
		var doc models.RetrievedDocument
		err := rows.Scan(
			&doc.ID,
			&doc.Title,
			&doc.Content,
			&doc.Embedding,
			&doc.Distance,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	return docs, nil
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

func splitSchemaName(name string) (string, string) {
	if schema, fn, ok := strings.Cut(name, "."); ok {
		return schema, fn
	}
	return "public", name
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "")
}
