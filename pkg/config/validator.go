package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Database
	if c.Database.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "database.url",
			Message: "database URL is required",
		})
	} else if u, err := url.Parse(c.Database.URL); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
		errors = append(errors, ValidationError{
			Field:   "database.url",
			Message: "invalid database URL",
		})
	}

	// Table names are interpolated into SQL.
	if !identifierPattern.MatchString(c.Database.TableName) {
		errors = append(errors, ValidationError{
			Field:   "database.table_name",
			Message: fmt.Sprintf("invalid table name: %q", c.Database.TableName),
		})
	}

	if !identifierPattern.MatchString(c.Database.Extension) || strings.Contains(c.Database.Extension, ".") {
		errors = append(errors, ValidationError{
			Field:   "database.extension",
			Message: fmt.Sprintf("invalid extension name: %q", c.Database.Extension),
		})
	}

	if c.Database.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if c.Database.ExtensionTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "database.extension_timeout",
			Message: "extension_timeout must be positive",
		})
	}

	// LLM
	if c.LLM.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.host",
			Message: "Ollama host is required",
		})
	} else if u, err := url.Parse(c.LLM.Host); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.host",
			Message: "invalid Ollama host URL",
		})
	}

	if c.LLM.Model == "" || c.LLM.EmbeddingModel == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.model",
			Message: "model and embedding_model are required",
		})
	}

	if c.LLM.RequestTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.request_timeout",
			Message: "request_timeout must be positive",
		})
	}

	if c.LLM.SummaryTemplate != "" && strings.Count(c.LLM.SummaryTemplate, "%s") != 1 {
		errors = append(errors, ValidationError{
			Field:   "llm.summary_template",
			Message: "summary_template must contain exactly one %s",
		})
	}

	// Retrieval
	if strings.TrimSpace(c.Retrieval.Query) == "" {
		errors = append(errors, ValidationError{
			Field:   "retrieval.query",
			Message: "query must not be empty",
		})
	}

	if c.Retrieval.Limit < 1 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.limit",
			Message: "limit must be positive",
		})
	}

	// OCR
	switch c.OCR.Engine {
	case "vision", "tesseract":
	default:
		errors = append(errors, ValidationError{
			Field:   "ocr.engine",
			Message: fmt.Sprintf("unknown OCR engine: %s", c.OCR.Engine),
		})
	}

	// Scraper
	if c.Scraper.MaxDepth < 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.max_depth",
			Message: "max_depth must not be negative",
		})
	}

	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	for _, ext := range c.Scraper.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") && ext != "" && ext != "/" {
			errors = append(errors, ValidationError{
				Field:   "scraper.allowed_extensions",
				Message: fmt.Sprintf("invalid extension format: %s", ext),
			})
		}
	}

	// Processor
	if c.Processor.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Processor.ChunkOverlap < 0 || c.Processor.ChunkOverlap >= c.Processor.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	return errors
}
