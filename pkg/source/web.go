package source

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xhad/pgai-rag/internal/models"
	"github.com/xhad/pgai-rag/pkg/logging"
	"github.com/xhad/pgai-rag/pkg/processor"
	"github.com/xhad/pgai-rag/pkg/scraper"
)

type WebConfig struct {
	URL       string
	Scraper   scraper.ScraperConfig
	Processor processor.ProcessorConfig
	Logger    *zap.Logger
}

// Web crawls a site and yields one document per chunk of page text.
type Web struct {
	config    WebConfig
	scraper   *scraper.Scraper
	processor processor.Processor
	logger    *zap.Logger
}

func NewWeb(config WebConfig) (*Web, error) {
	config.Scraper.BaseURL = config.URL
	if config.Scraper.Logger == nil {
		config.Scraper.Logger = config.Logger
	}

	s, err := scraper.NewWithConfig(config.Scraper)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize scraper: %w", err)
	}

	return &Web{
		config:    config,
		scraper:   s,
		processor: processor.NewWithConfig(config.Processor),
		logger:    logging.OrNop(config.Logger).Named("web"),
	}, nil
}

func (w *Web) Name() string {
	return "web"
}

func (w *Web) Load(ctx context.Context) ([]models.Document, error) {
	pages, err := w.scraper.Scrape(ctx, w.config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to scrape %s: %w", w.config.URL, err)
	}

	docs, err := w.processor.Split(pages)
	if err != nil {
		return nil, fmt.Errorf("failed to process pages: %w", err)
	}

	w.logger.Info("Pages loaded", zap.Int("pages", len(pages)), zap.Int("chunks", len(docs)))
	return docs, nil
}
