// Package source loads the documents a run ingests.
package source

import (
	"context"

	"github.com/xhad/pgai-rag/internal/models"
)

// DemoDocuments is the built-in corpus used by the text command.
var DemoDocuments = []models.Document{
	{
		Title:   "PostgreSQL",
		Content: "PostgreSQL is an open source object-relational database system with over thirty years of active development. It is known for reliability, feature robustness and performance.",
	},
	{
		Title:   "pgvector",
		Content: "pgvector is a PostgreSQL extension for vector similarity search. It adds a vector column type and distance operators such as <-> for Euclidean distance and <=> for cosine distance.",
	},
	{
		Title:   "pgai",
		Content: "The ai extension brings embedding and text generation to PostgreSQL. Functions such as ai.ollama_embed and ai.ollama_generate call a model server directly from SQL, so documents can be embedded inside an INSERT statement.",
	},
	{
		Title:   "Ollama",
		Content: "Ollama runs large language models locally. It serves models like llama3.2 for text generation and nomic-embed-text for embeddings over a small HTTP API.",
	},
	{
		Title:   "Retrieval-augmented generation",
		Content: "Retrieval-augmented generation finds the documents closest to a question by vector distance and passes them to a language model as context, so the answer is grounded in stored data.",
	},
}

// Static serves a fixed set of documents.
type Static struct {
	docs []models.Document
}

// NewStatic returns a source over docs, or over DemoDocuments when docs is
// empty.
func NewStatic(docs ...models.Document) *Static {
	if len(docs) == 0 {
		docs = DemoDocuments
	}
	return &Static{docs: docs}
}

func (s *Static) Name() string {
	return "text"
}

func (s *Static) Load(ctx context.Context) ([]models.Document, error) {
	out := make([]models.Document, len(s.docs))
	copy(out, s.docs)
	return out, nil
}
