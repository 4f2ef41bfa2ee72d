package source

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/xhad/pgai-rag/internal/models"
	"github.com/xhad/pgai-rag/internal/types"
	"github.com/xhad/pgai-rag/pkg/logging"
	"github.com/xhad/pgai-rag/pkg/ocr"
	"github.com/xhad/pgai-rag/pkg/processor"
)

type ImagesConfig struct {
	Dir        string
	Recognizer types.Recognizer
	Summarizer types.Summarizer // optional
	Processor  processor.ProcessorConfig
	OnProgress func(path string)
	Logger     *zap.Logger
}

// Images turns every supported image in a folder into one document.
type Images struct {
	config    ImagesConfig
	processor processor.Processor
	logger    *zap.Logger
}

func NewImages(config ImagesConfig) (*Images, error) {
	if config.Recognizer == nil {
		return nil, fmt.Errorf("images source requires a recognizer")
	}
	if config.Dir == "" {
		config.Dir = "images"
	}

	return &Images{
		config:    config,
		processor: processor.NewWithConfig(config.Processor),
		logger:    logging.OrNop(config.Logger).Named("images"),
	}, nil
}

func (s *Images) Name() string {
	return "images"
}

// Count returns how many images Load will visit.
func (s *Images) Count() (int, error) {
	paths, err := ocr.ListImages(s.config.Dir)
	return len(paths), err
}

// Load recognizes each image in turn. An image that fails or yields no text
// is logged and skipped.
func (s *Images) Load(ctx context.Context) ([]models.Document, error) {
	paths, err := ocr.ListImages(s.config.Dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		s.logger.Warn("No images found", zap.String("dir", s.config.Dir))
		return nil, nil
	}

	var docs []models.Document
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		doc, ok := s.load(ctx, path)
		if s.config.OnProgress != nil {
			s.config.OnProgress(path)
		}
		if ok {
			docs = append(docs, doc)
		}
	}

	s.logger.Info("Images loaded", zap.Int("images", len(paths)), zap.Int("documents", len(docs)))
	return docs, nil
}

func (s *Images) load(ctx context.Context, path string) (models.Document, bool) {
	logger := s.logger.With(zap.String("path", path))

	text, err := s.config.Recognizer.Recognize(ctx, path)
	if err != nil {
		logger.Warn("OCR failed, skipping image", zap.Error(err))
		return models.Document{}, false
	}

	text = s.processor.Clean(text)
	if text == "" {
		logger.Info("No text found, skipping image")
		return models.Document{}, false
	}

	if s.config.Summarizer != nil {
		summary, err := s.config.Summarizer.Summarize(ctx, text)
		if err != nil {
			logger.Warn("Summarize failed, skipping image", zap.Error(err))
			return models.Document{}, false
		}
		if summary == "" {
			logger.Info("Empty summary, skipping image")
			return models.Document{}, false
		}
		text = summary
	}

	return models.Document{
		Title:   filepath.Base(path),
		Content: text,
		Source:  path,
	}, true
}
