package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/xhad/pgai-rag/internal/models"
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Model           string
	Host            string // Ollama server URL as seen by the database
	SystemTemplate  string
	ContextTemplate string
	SummaryTemplate string
	Timeout         time.Duration
}

// ChatEngine generates text through the database extension.
type ChatEngine struct {
	config ChatConfig
	db     Querier
}

// NewWithConfig creates a new ChatEngine with the given configuration.
func NewWithConfig(db Querier, config ChatConfig) (*ChatEngine, error) {
	if db == nil {
		return nil, fmt.Errorf("chat engine requires a database handle")
	}
	if config.Model == "" {
		config.Model = "llama3.2"
	}
	if config.Host == "" {
		config.Host = "http://localhost:11434"
	}
	if config.Timeout < 0 {
		return nil, fmt.Errorf("timeout cannot be negative")
	} else if config.Timeout == 0 {
		config.Timeout = 10 * time.Minute
	}
	if config.SystemTemplate == "" {
		config.SystemTemplate = "You are a helpful assistant. Answer the question using only the provided context. If the context does not contain the answer, say so."
	}
	if config.ContextTemplate == "" {
		config.ContextTemplate = "Context:\n%s\nQuestion: %s"
	}
	if config.SummaryTemplate == "" {
		config.SummaryTemplate = "Summarize the following text extracted from an image in a few sentences. Keep names, numbers and dates.\n\n%s"
	}

	return &ChatEngine{
		config: config,
		db:     db,
	}, nil
}

// Generate runs the extension's generate function and returns the JSON
// envelope it produced as text.
func (ce *ChatEngine) Generate(ctx context.Context, prompt, system string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ce.config.Timeout)
	defer cancel()

	query := fmt.Sprintf(
		"SELECT %s($1, $2, host => $3, system_prompt => NULLIF($4, ''))::text",
		GenerateFunction,
	)

	var raw *string
	if err := ce.db.QueryRow(ctx, query, ce.config.Model, prompt, ce.config.Host, system).Scan(&raw); err != nil {
		return "", fmt.Errorf("generate error: %w", err)
	}
	if raw == nil {
		return "", nil
	}

	return *raw, nil
}

// Chat answers query using docs as context.
func (ce *ChatEngine) Chat(ctx context.Context, query string, docs []models.RetrievedDocument) (models.Answer, error) {
	raw, err := ce.Generate(ctx, ce.BuildPrompt(query, docs), ce.config.SystemTemplate)
	if err != nil {
		return models.Answer{}, fmt.Errorf("chat error: %w", err)
	}

	return ParseResponse(raw), nil
}

// Summarize condenses text for ingestion.
func (ce *ChatEngine) Summarize(ctx context.Context, text string) (string, error) {
	raw, err := ce.Generate(ctx, fmt.Sprintf(ce.config.SummaryTemplate, text), "")
	if err != nil {
		return "", fmt.Errorf("summarize error: %w", err)
	}

	return strings.TrimSpace(ParseResponse(raw).Text), nil
}

// BuildPrompt joins the retrieved documents into the context template.
func (ce *ChatEngine) BuildPrompt(query string, docs []models.RetrievedDocument) string {
	var contextBuilder strings.Builder
	for _, doc := range docs {
		contextBuilder.WriteString(fmt.Sprintf("Source: %s\n%s\n\n", doc.Title, doc.Content))
	}

	return fmt.Sprintf(ce.config.ContextTemplate, contextBuilder.String(), query)
}

// ParseResponse extracts the response field of a generate envelope. Payloads
// that are not JSON, or that lack a string response field, come back as-is.
func ParseResponse(raw string) models.Answer {
	answer := models.Answer{
		Text: raw,
		Raw:  raw,
	}

	if !gjson.Valid(raw) {
		return answer
	}

	response := gjson.Get(raw, "response")
	if !response.Exists() || response.Type != gjson.String {
		return answer
	}

	answer.Text = response.String()
	answer.Structured = true
	return answer
}
