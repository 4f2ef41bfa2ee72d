package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// SQL functions provided by the ai extension.
const (
	EmbedFunction    = "ai.ollama_embed"
	GenerateFunction = "ai.ollama_generate"
)

// Querier is the part of a pgx connection or pool the engines need.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// EmbedderConfig represents the configuration for an embedder.
type EmbedderConfig struct {
	Model   string
	Host    string // Ollama server URL as seen by the database
	Timeout time.Duration
}

// Embedder asks the database extension for embeddings, so the vectors it
// returns are produced by the same function that fills the documents table.
type Embedder struct {
	config EmbedderConfig
	db     Querier
}

func NewEmbedderWithConfig(db Querier, config EmbedderConfig) *Embedder {
	if config.Model == "" {
		config.Model = "nomic-embed-text"
	}
	if config.Host == "" {
		config.Host = "http://localhost:11434"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Minute
	}

	return &Embedder{
		config: config,
		db:     db,
	}
}

// Model returns the embedding model name.
func (e *Embedder) Model() string {
	return e.config.Model
}

// Host returns the inference server URL passed to the extension.
func (e *Embedder) Host() string {
	return e.config.Host
}

// Embed returns the embedding of text.
func (e *Embedder) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	query := fmt.Sprintf("SELECT %s($1, $2, host => $3)", EmbedFunction)

	var embedding pgvector.Vector
	if err := e.db.QueryRow(ctx, query, e.config.Model, text, e.config.Host).Scan(&embedding); err != nil {
		return pgvector.Vector{}, fmt.Errorf("failed to create embedding: %w", err)
	}

	if len(embedding.Slice()) == 0 {
		return pgvector.Vector{}, fmt.Errorf("model %s returned an empty embedding", e.config.Model)
	}

	return embedding, nil
}
