package types

import (
	"context"

	"github.com/pgvector/pgvector-go"
	"github.com/xhad/pgai-rag/internal/models"
)

// Core interfaces
type VectorStore interface {
	EnsureExtension(ctx context.Context) error
	HasEmbeddingFunction(ctx context.Context) (bool, error)
	EnsureSchema(ctx context.Context) error
	Reset(ctx context.Context) error
	Insert(ctx context.Context, doc models.Document) (int64, error)
	Count(ctx context.Context) (int, error)
	Query(ctx context.Context, embedding pgvector.Vector, limit int) ([]models.RetrievedDocument, error)
	Close()
}

type Embedder interface {
	Embed(ctx context.Context, text string) (pgvector.Vector, error)
}

type ChatEngine interface {
	Chat(ctx context.Context, query string, docs []models.RetrievedDocument) (models.Answer, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Recognizer extracts text from a single image file.
type Recognizer interface {
	Recognize(ctx context.Context, path string) (string, error)
	Close() error
}

// Source produces the documents ingested by a run.
type Source interface {
	Name() string
	Load(ctx context.Context) ([]models.Document, error)
}
