package ocr

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"

	"github.com/xhad/pgai-rag/pkg/logging"
)

const transcribePrompt = "Transcribe all text visible in this image exactly as written. Reply with the text only. If the image contains no text, reply with nothing."

// VisionEngine reads text from images with a multimodal model served by
// Ollama.
type VisionEngine struct {
	llm     llms.Model
	timeout time.Duration
	logger  *zap.Logger
}

func NewVisionEngine(config Config) (*VisionEngine, error) {
	if config.Model == "" {
		config.Model = "llava"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}

	llm, err := ollama.New(
		ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vision model: %w", err)
	}

	return newVisionEngine(llm, config), nil
}

func newVisionEngine(llm llms.Model, config Config) *VisionEngine {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Minute
	}
	return &VisionEngine{
		llm:     llm,
		timeout: config.Timeout,
		logger:  logging.OrNop(config.Logger).Named("ocr"),
	}
}

func (v *VisionEngine) Recognize(ctx context.Context, path string) (string, error) {
	mime := mimeType(path)
	if mime == "" {
		return "", fmt.Errorf("unsupported image type: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	content := []llms.MessageContent{
		{
			Role: schema.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.BinaryPart(mime, data),
				llms.TextPart(transcribePrompt),
			},
		},
	}

	resp, err := v.llm.GenerateContent(ctx, content, llms.WithTemperature(0))
	if err != nil {
		return "", fmt.Errorf("vision model error: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", nil
	}

	text := strings.TrimSpace(resp.Choices[0].Content)
	v.logger.Debug("Recognized image", zap.String("path", path), zap.Int("chars", len(text)))
	return text, nil
}

func (v *VisionEngine) Close() error {
	return nil
}
