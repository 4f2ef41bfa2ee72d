// Package pipeline runs one ingest, retrieve and generate pass against the
// database.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/xhad/pgai-rag/internal/models"
	"github.com/xhad/pgai-rag/internal/types"
	"github.com/xhad/pgai-rag/pkg/logging"
)

// ErrEmbeddingUnavailable is returned when the database has no embedding
// function. Nothing is created or inserted in that case.
var ErrEmbeddingUnavailable = errors.New("embedding function not available in the database")

type Config struct {
	Query            string
	Limit            int
	ExtensionTimeout time.Duration
	RequestTimeout   time.Duration

	// Hooks for console progress. All optional.
	OnIngestStart func(total int)
	OnIngest      func(doc models.Document)
	OnGenerate    func() (done func())
}

// Result summarizes a run.
type Result struct {
	Ingested  int
	Retrieved []models.RetrievedDocument
	Answer    models.Answer
}

type Pipeline struct {
	config   Config
	store    types.VectorStore
	embedder types.Embedder
	chat     types.ChatEngine
	logger   *zap.Logger
	out      io.Writer
}

type Option func(*Pipeline)

func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logging.OrNop(logger)
	}
}

// WithOutput sets where step banners and the answer are printed.
func WithOutput(w io.Writer) Option {
	return func(p *Pipeline) {
		p.out = w
	}
}

func NewWithConfig(config Config, store types.VectorStore, embedder types.Embedder, chat types.ChatEngine, opts ...Option) (*Pipeline, error) {
	if store == nil || embedder == nil || chat == nil {
		return nil, fmt.Errorf("pipeline requires a store, an embedder and a chat engine")
	}
	if config.Query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if config.Limit == 0 {
		config.Limit = 3
	}
	if config.Limit < 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", config.Limit)
	}
	if config.ExtensionTimeout == 0 {
		config.ExtensionTimeout = 5 * time.Minute
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 10 * time.Minute
	}

	p := &Pipeline{
		config:   config,
		store:    store,
		embedder: embedder,
		chat:     chat,
		logger:   zap.NewNop(),
		out:      os.Stdout,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("pipeline")

	return p, nil
}

func (p *Pipeline) step(format string, args ...any) {
	color.New(color.FgBlue).Fprintf(p.out, "\n"+format+"\n", args...)
}

func (p *Pipeline) ok(format string, args ...any) {
	color.New(color.FgGreen).Fprintf(p.out, "✓ "+format+"\n", args...)
}

// Run executes every step in order and stops at the first failure. The table
// is cleared before the source is loaded, so a source that yields nothing
// leaves it empty and the run ends after ingest.
func (p *Pipeline) Run(ctx context.Context, src types.Source) (*Result, error) {
	if err := p.bootstrap(ctx); err != nil {
		return nil, err
	}

	ingested, err := p.ingest(ctx, src)
	if err != nil {
		return nil, err
	}
	if ingested == 0 {
		color.New(color.FgYellow).Fprintf(p.out, "No %s documents to search, skipping retrieval\n", src.Name())
		p.logger.Warn("Nothing ingested, skipping retrieval and generation", zap.String("source", src.Name()))
		return &Result{}, nil
	}

	retrieved, err := p.retrieve(ctx)
	if err != nil {
		return nil, err
	}

	answer, err := p.generate(ctx, retrieved)
	if err != nil {
		return nil, err
	}

	return &Result{
		Ingested:  ingested,
		Retrieved: retrieved,
		Answer:    answer,
	}, nil
}

func (p *Pipeline) bootstrap(ctx context.Context) error {
	p.step("Setting up database")

	extCtx, cancel := context.WithTimeout(ctx, p.config.ExtensionTimeout)
	defer cancel()
	if err := p.store.EnsureExtension(extCtx); err != nil {
		return fmt.Errorf("extension setup failed after up to %s: %w", p.config.ExtensionTimeout, err)
	}

	available, err := p.store.HasEmbeddingFunction(ctx)
	if err != nil {
		return err
	}
	if !available {
		color.New(color.FgRed).Fprintln(p.out, "Embedding function not found. Check that the ai extension is installed and up to date.")
		p.logger.Error("Embedding function missing, stopping run")
		return ErrEmbeddingUnavailable
	}

	if err := p.store.EnsureSchema(ctx); err != nil {
		return err
	}

	p.ok("Database ready")
	return nil
}

func (p *Pipeline) ingest(ctx context.Context, src types.Source) (int, error) {
	if err := p.store.Reset(ctx); err != nil {
		return 0, err
	}

	p.step("Loading %s documents", src.Name())

	docs, err := src.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load %s documents: %w", src.Name(), err)
	}

	if len(docs) > 0 && p.config.OnIngestStart != nil {
		p.config.OnIngestStart(len(docs))
	}
	for _, doc := range docs {
		insertCtx, cancel := context.WithTimeout(ctx, p.config.RequestTimeout)
		id, err := p.store.Insert(insertCtx, doc)
		cancel()
		if err != nil {
			return 0, err
		}
		p.logger.Debug("Document stored", zap.Int64("id", id), zap.String("title", doc.Title))
		if p.config.OnIngest != nil {
			p.config.OnIngest(doc)
		}
	}

	count, err := p.store.Count(ctx)
	if err != nil {
		return 0, err
	}
	if count != len(docs) {
		return 0, fmt.Errorf("stored %d documents, expected %d", count, len(docs))
	}

	p.ok("Stored %d documents", count)
	p.logger.Info("Ingest complete", zap.String("source", src.Name()), zap.Int("documents", count))
	return count, nil
}

func (p *Pipeline) retrieve(ctx context.Context) ([]models.RetrievedDocument, error) {
	p.step("Searching for: %s", p.config.Query)

	embedding, err := p.embedder.Embed(ctx, p.config.Query)
	if err != nil {
		return nil, err
	}

	docs, err := p.store.Query(ctx, embedding, p.config.Limit)
	if err != nil {
		return nil, err
	}

	for i, doc := range docs {
		fmt.Fprintf(p.out, "%d. %s (distance %.4f)\n", i+1, doc.Title, doc.Distance)
	}
	return docs, nil
}

func (p *Pipeline) generate(ctx context.Context, docs []models.RetrievedDocument) (models.Answer, error) {
	p.step("Generating answer")

	var done func()
	if p.config.OnGenerate != nil {
		done = p.config.OnGenerate()
	}
	answer, err := p.chat.Chat(ctx, p.config.Query, docs)
	if done != nil {
		done()
	}
	if err != nil {
		return models.Answer{}, err
	}

	if !answer.Structured {
		p.logger.Warn("Response had no response field, printing raw payload")
	}
	color.New(color.FgCyan).Fprintf(p.out, "\nAssistant: %s\n", answer.Text)

	return answer, nil
}
