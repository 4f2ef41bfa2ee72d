package processor

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xhad/pgai-rag/internal/models"
)

// ProcessorConfig sizes are in bytes. A zero ChunkOverlap or MinChunkLength
// selects the default; a negative one disables it.
type ProcessorConfig struct {
	ChunkSize       int
	ChunkOverlap    int
	MinChunkLength  int
	RemoveStopwords bool
	CustomStopwords []string
	Lowercase       bool
}

type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.ChunkSize == 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = 200
	} else if config.ChunkOverlap < 0 {
		config.ChunkOverlap = 0
	}
	if config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = config.ChunkSize / 5
	}
	if config.MinChunkLength == 0 {
		config.MinChunkLength = 100
	} else if config.MinChunkLength < 0 {
		config.MinChunkLength = 0
	}

	return Processor{
		config: config,
	}
}

// Process cleans and chunks each document.
func (p *Processor) Process(docs []models.Document) ([]models.ProcessedDocument, error) {
	var processed []models.ProcessedDocument

	for _, doc := range docs {
		cleanContent := p.Clean(doc.Content)

		processed = append(processed, models.ProcessedDocument{
			Document: doc,
			Chunks:   p.splitIntoChunks(cleanContent),
		})
	}

	return processed, nil
}

// Split processes docs and returns one document per chunk. Documents split
// into several chunks get a part suffix on their title.
func (p *Processor) Split(docs []models.Document) ([]models.Document, error) {
	processed, err := p.Process(docs)
	if err != nil {
		return nil, err
	}

	var out []models.Document
	for _, doc := range processed {
		for i, chunk := range doc.Chunks {
			title := doc.Title
			if len(doc.Chunks) > 1 {
				title = fmt.Sprintf("%s (part %d/%d)", doc.Title, i+1, len(doc.Chunks))
			}
			out = append(out, models.Document{
				Title:   title,
				Content: chunk,
				Source:  doc.Source,
			})
		}
	}

	return out, nil
}

// Clean normalizes whitespace, drops invalid UTF-8 and optionally stopwords.
func (p *Processor) Clean(text string) string {
	text = strings.ToValidUTF8(text, "")

	if p.config.Lowercase {
		text = strings.ToLower(text)
	}

	// Replace runs of whitespace with single space
	text = strings.Join(strings.Fields(text), " ")

	if p.config.RemoveStopwords {
		text = p.removeStopwords(text)
	}

	return strings.TrimSpace(text)
}

func (p *Processor) splitIntoChunks(text string) []string {
	if text == "" {
		return nil
	}
	// Short text stays whole regardless of MinChunkLength.
	if len(text) <= p.config.ChunkSize {
		return []string{text}
	}

	var chunks []string
	currentChunk := strings.Builder{}

	for _, sentence := range p.splitIntoSentences(text) {
		if currentChunk.Len() > 0 && currentChunk.Len()+len(sentence) > p.config.ChunkSize {
			if currentChunk.Len() >= p.config.MinChunkLength {
				chunks = append(chunks, strings.TrimSpace(currentChunk.String()))
			}

			// Start new chunk with overlap
			previous := currentChunk.String()
			currentChunk.Reset()
			if p.config.ChunkOverlap > 0 && len(previous) > p.config.ChunkOverlap {
				currentChunk.WriteString(overlapTail(previous, p.config.ChunkOverlap))
			}
		}

		currentChunk.WriteString(sentence)
		currentChunk.WriteString(" ")
	}

	if currentChunk.Len() >= p.config.MinChunkLength || len(chunks) == 0 {
		chunks = append(chunks, strings.TrimSpace(currentChunk.String()))
	}

	return chunks
}

// overlapTail returns about n trailing bytes of s, starting on a rune
// boundary.
func overlapTail(s string, n int) string {
	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}

func (p *Processor) splitIntoSentences(text string) []string {
	var sentences []string
	current := strings.Builder{}

	for i := 0; i < len(text); i++ {
		current.WriteByte(text[i])

		switch text[i] {
		case '.', '!', '?':
			if i+1 == len(text) || text[i+1] == ' ' || text[i+1] == '\n' {
				sentences = append(sentences, strings.TrimSpace(current.String()))
				current.Reset()
			}
		}
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}

func (p *Processor) removeStopwords(text string) string {
	stopwords := make(map[string]struct{})
	for _, w := range getStopwords() {
		stopwords[w] = struct{}{}
	}
	for _, w := range p.config.CustomStopwords {
		stopwords[strings.ToLower(w)] = struct{}{}
	}

	var filtered []string
	for _, word := range strings.Fields(text) {
		if _, ok := stopwords[strings.ToLower(word)]; !ok {
			filtered = append(filtered, word)
		}
	}

	return strings.Join(filtered, " ")
}

// Common English stopwords
func getStopwords() []string {
	return []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for",
		"from", "has", "he", "in", "is", "it", "its", "of", "on",
		"that", "the", "to", "was", "were", "will", "with",
	}
}
