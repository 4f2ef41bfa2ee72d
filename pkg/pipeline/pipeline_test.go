package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/pgai-rag/internal/models"
	"github.com/xhad/pgai-rag/pkg/llm"
	"github.com/xhad/pgai-rag/pkg/pipeline"
	"github.com/xhad/pgai-rag/pkg/source"
)

func init() {
	color.NoColor = true
}

// embed maps text onto a tiny vector space keyed by topic words.
func embed(text string) pgvector.Vector {
	lower := strings.ToLower(text)
	v := make([]float32, 4)
	for i, word := range []string{"postgres", "vector", "model", "ocean"} {
		v[i] = float32(strings.Count(lower, word)) + 0.01
	}
	return pgvector.NewVector(v)
}

func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

type fakeStore struct {
	calls       []string
	hasFunction bool
	hangOnExt   bool
	docs        []models.Document
	insertErr   error
	countDelta  int
}

func (f *fakeStore) EnsureExtension(ctx context.Context) error {
	f.calls = append(f.calls, "extension")
	if f.hangOnExt {
		<-ctx.Done()
		return fmt.Errorf("timed out creating extension ai: %w", ctx.Err())
	}
	return nil
}

func (f *fakeStore) HasEmbeddingFunction(ctx context.Context) (bool, error) {
	f.calls = append(f.calls, "capability")
	return f.hasFunction, nil
}

func (f *fakeStore) EnsureSchema(ctx context.Context) error {
	f.calls = append(f.calls, "schema")
	return nil
}

func (f *fakeStore) Reset(ctx context.Context) error {
	f.calls = append(f.calls, "reset")
	f.docs = nil
	return nil
}

func (f *fakeStore) Insert(ctx context.Context, doc models.Document) (int64, error) {
	f.calls = append(f.calls, "insert")
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	doc.ID = int64(len(f.docs) + 1)
	doc.Embedding = embed(doc.Content)
	f.docs = append(f.docs, doc)
	return doc.ID, nil
}

func (f *fakeStore) Count(ctx context.Context) (int, error) {
	f.calls = append(f.calls, "count")
	return len(f.docs) + f.countDelta, nil
}

func (f *fakeStore) Query(ctx context.Context, query pgvector.Vector, limit int) ([]models.RetrievedDocument, error) {
	f.calls = append(f.calls, "query")
	var out []models.RetrievedDocument
	for _, doc := range f.docs {
		out = append(out, models.RetrievedDocument{
			Document: doc,
			Distance: cosineDistance(doc.Embedding.Slice(), query.Slice()),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) Close() {}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	return embed(text), nil
}

type fakeChat struct {
	raw   string
	docs  []models.RetrievedDocument
	calls int
}

func (f *fakeChat) Chat(ctx context.Context, query string, docs []models.RetrievedDocument) (models.Answer, error) {
	f.calls++
	f.docs = docs
	return llm.ParseResponse(f.raw), nil
}

var corpus = []models.Document{
	{Title: "pg", Content: "Postgres is a database. Postgres stores rows."},
	{Title: "vec", Content: "A vector column stores a vector for postgres."},
	{Title: "llm", Content: "A model generates text."},
	{Title: "sea", Content: "The ocean is deep and the ocean is wide."},
	{Title: "mix", Content: "A model can embed a vector."},
}

func newPipeline(t *testing.T, store *fakeStore, chat *fakeChat, out *bytes.Buffer) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.NewWithConfig(pipeline.Config{
		Query: "How does postgres store a vector?",
		Limit: 3,
	}, store, fakeEmbedder{}, chat, pipeline.WithOutput(out))
	require.NoError(t, err)
	return p
}

func TestRun(t *testing.T) {
	store := &fakeStore{hasFunction: true}
	chat := &fakeChat{raw: `{"model":"llama3.2","response":"It uses pgvector.","done":true}`}
	var out bytes.Buffer

	result, err := newPipeline(t, store, chat, &out).Run(context.Background(), source.NewStatic(corpus...))
	require.NoError(t, err)

	assert.Equal(t, len(corpus), result.Ingested)
	assert.Equal(t, []string{
		"extension", "capability", "schema", "reset",
		"insert", "insert", "insert", "insert", "insert",
		"count", "query",
	}, store.calls)

	require.Len(t, result.Retrieved, 3)
	for i := 1; i < len(result.Retrieved); i++ {
		assert.LessOrEqual(t, result.Retrieved[i-1].Distance, result.Retrieved[i].Distance)
	}
	assert.Equal(t, "vec", result.Retrieved[0].Title)
	assert.Equal(t, result.Retrieved, chat.docs)

	assert.True(t, result.Answer.Structured)
	assert.Equal(t, "It uses pgvector.", result.Answer.Text)
	assert.Contains(t, out.String(), "Assistant: It uses pgvector.")
}

func TestRunStopsWithoutEmbeddingFunction(t *testing.T) {
	store := &fakeStore{hasFunction: false}
	chat := &fakeChat{}
	var out bytes.Buffer

	result, err := newPipeline(t, store, chat, &out).Run(context.Background(), source.NewStatic(corpus...))
	assert.ErrorIs(t, err, pipeline.ErrEmbeddingUnavailable)
	assert.Nil(t, result)
	assert.Equal(t, []string{"extension", "capability"}, store.calls)
	assert.Zero(t, chat.calls)
	assert.Contains(t, out.String(), "Embedding function not found")
}

func TestRunPrintsRawPayload(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "plain words from the model"},
		{"missing field", `{"model":"llama3.2","done":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			result, err := newPipeline(t, &fakeStore{hasFunction: true}, &fakeChat{raw: tt.raw}, &out).
				Run(context.Background(), source.NewStatic(corpus...))
			require.NoError(t, err)

			assert.False(t, result.Answer.Structured)
			assert.Equal(t, tt.raw, result.Answer.Text)
			assert.Contains(t, out.String(), "Assistant: "+tt.raw)
		})
	}
}

func TestRunCountMismatch(t *testing.T) {
	store := &fakeStore{hasFunction: true, countDelta: 1}
	var out bytes.Buffer

	_, err := newPipeline(t, store, &fakeChat{}, &out).Run(context.Background(), source.NewStatic(corpus...))
	assert.ErrorContains(t, err, "expected 5")
	assert.NotContains(t, store.calls, "query")
}

func TestRunInsertError(t *testing.T) {
	store := &fakeStore{hasFunction: true, insertErr: errors.New("model not found")}
	var out bytes.Buffer

	_, err := newPipeline(t, store, &fakeChat{}, &out).Run(context.Background(), source.NewStatic(corpus...))
	assert.ErrorContains(t, err, "model not found")
	assert.NotContains(t, store.calls, "count")
}

// recordingSource notes in the store's call log when it is loaded.
type recordingSource struct {
	store *fakeStore
	docs  []models.Document
}

func (r recordingSource) Name() string { return "images" }

func (r recordingSource) Load(ctx context.Context) ([]models.Document, error) {
	r.store.calls = append(r.store.calls, "load")
	return r.docs, nil
}

func TestRunNoDocuments(t *testing.T) {
	store := &fakeStore{hasFunction: true}
	chat := &fakeChat{raw: "ok"}
	var out bytes.Buffer
	p := newPipeline(t, store, chat, &out)

	_, err := p.Run(context.Background(), source.NewStatic(corpus...))
	require.NoError(t, err)
	require.Len(t, store.docs, len(corpus))

	store.calls = nil
	chat.calls = 0
	result, err := p.Run(context.Background(), recordingSource{store: store})
	require.NoError(t, err)

	assert.Zero(t, result.Ingested)
	assert.Empty(t, result.Retrieved)
	assert.Empty(t, store.docs)
	assert.Equal(t, []string{"extension", "capability", "schema", "reset", "load", "count"}, store.calls)
	assert.Zero(t, chat.calls)
	assert.Contains(t, out.String(), "No images documents to search")
}

func TestRunResetsBeforeLoading(t *testing.T) {
	store := &fakeStore{hasFunction: true}
	var out bytes.Buffer

	_, err := newPipeline(t, store, &fakeChat{raw: "ok"}, &out).
		Run(context.Background(), recordingSource{store: store, docs: corpus[:2]})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"extension", "capability", "schema", "reset", "load",
		"insert", "insert", "count", "query",
	}, store.calls)
}

func TestRunExtensionTimeout(t *testing.T) {
	store := &fakeStore{hasFunction: true, hangOnExt: true}
	chat := &fakeChat{}
	p, err := pipeline.NewWithConfig(pipeline.Config{
		Query:            "postgres",
		ExtensionTimeout: 20 * time.Millisecond,
	}, store, fakeEmbedder{}, chat, pipeline.WithOutput(&bytes.Buffer{}))
	require.NoError(t, err)

	result, err := p.Run(context.Background(), source.NewStatic(corpus...))
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "20ms")
	assert.Contains(t, err.Error(), "timed out")

	assert.Equal(t, []string{"extension"}, store.calls)
	assert.Empty(t, store.docs)
	assert.Zero(t, chat.calls)
}

func TestRunHooks(t *testing.T) {
	var total, ingested, generating, finished int
	p, err := pipeline.NewWithConfig(pipeline.Config{
		Query:         "postgres",
		OnIngestStart: func(n int) { total = n },
		OnIngest:      func(models.Document) { ingested++ },
		OnGenerate: func() func() {
			generating++
			return func() { finished++ }
		},
	}, &fakeStore{hasFunction: true}, fakeEmbedder{}, &fakeChat{raw: "ok"}, pipeline.WithOutput(&bytes.Buffer{}))
	require.NoError(t, err)

	result, err := p.Run(context.Background(), source.NewStatic(corpus...))
	require.NoError(t, err)
	assert.Len(t, result.Retrieved, 3)
	assert.Equal(t, 5, total)
	assert.Equal(t, 5, ingested)
	assert.Equal(t, 1, generating)
	assert.Equal(t, 1, finished)
}

func TestNewWithConfig(t *testing.T) {
	store := &fakeStore{}

	_, err := pipeline.NewWithConfig(pipeline.Config{}, store, fakeEmbedder{}, &fakeChat{})
	assert.Error(t, err)

	_, err = pipeline.NewWithConfig(pipeline.Config{Query: "q", Limit: -1}, store, fakeEmbedder{}, &fakeChat{})
	assert.Error(t, err)

	_, err = pipeline.NewWithConfig(pipeline.Config{Query: "q"}, nil, fakeEmbedder{}, &fakeChat{})
	assert.Error(t, err)
}
