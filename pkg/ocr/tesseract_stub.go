//go:build !tesseract

package ocr

import (
	"context"
	"errors"
)

// ErrTesseractUnavailable is returned when the binary was built without the
// tesseract tag.
var ErrTesseractUnavailable = errors.New("tesseract support not compiled in; rebuild with -tags tesseract")

type TesseractEngine struct{}

func NewTesseractEngine(config Config) (*TesseractEngine, error) {
	return nil, ErrTesseractUnavailable
}

func (t *TesseractEngine) Recognize(ctx context.Context, path string) (string, error) {
	return "", ErrTesseractUnavailable
}

func (t *TesseractEngine) Close() error {
	return nil
}
