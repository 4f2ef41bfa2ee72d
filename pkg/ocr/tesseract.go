//go:build tesseract

package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"go.uber.org/zap"

	"github.com/xhad/pgai-rag/pkg/logging"
)

// TesseractEngine runs Tesseract in-process. Model files come from the
// inference folder when one of ModelDirNames exists there, otherwise from
// the system tessdata.
type TesseractEngine struct {
	client *gosseract.Client
	logger *zap.Logger
}

func NewTesseractEngine(config Config) (*TesseractEngine, error) {
	logger := logging.OrNop(config.Logger).Named("ocr")
	client := gosseract.NewClient()

	if dir, ok := DetectModelDir(config.InferenceDir); ok {
		logger.Info("Using OCR models", zap.String("dir", dir))
		if err := client.SetTessdataPrefix(dir); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to set tessdata dir: %w", err)
		}
	}

	if config.Language != "" {
		if err := client.SetLanguage(strings.Split(config.Language, "+")...); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to set OCR language: %w", err)
		}
	}

	return &TesseractEngine{client: client, logger: logger}, nil
}

func (t *TesseractEngine) Recognize(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !IsSupported(path) {
		return "", fmt.Errorf("unsupported image type: %s", path)
	}

	if err := t.client.SetImage(path); err != nil {
		return "", fmt.Errorf("failed to load image: %w", err)
	}

	text, err := t.client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract error: %w", err)
	}

	return strings.TrimSpace(text), nil
}

func (t *TesseractEngine) Close() error {
	return t.client.Close()
}
