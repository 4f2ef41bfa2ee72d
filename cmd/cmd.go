package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xhad/pgai-rag/internal/models"
	"github.com/xhad/pgai-rag/internal/types"
	"github.com/xhad/pgai-rag/pkg/llm"
	"github.com/xhad/pgai-rag/pkg/ocr"
	"github.com/xhad/pgai-rag/pkg/pipeline"
	"github.com/xhad/pgai-rag/pkg/processor"
	"github.com/xhad/pgai-rag/pkg/scraper"
	"github.com/xhad/pgai-rag/pkg/source"
	"github.com/xhad/pgai-rag/pkg/store"
)

var errInterrupted = errors.New("interrupted")

var textCmd = &cobra.Command{
	Use:   "text",
	Short: "Ingest the built-in documents and answer the query",
	Args:  cobra.NoArgs,
	RunE:  runText,
}

var imagesCmd = &cobra.Command{
	Use:   "images [dir]",
	Short: "OCR the images in a folder, ingest the text and answer the query",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runImages,
}

var webCmd = &cobra.Command{
	Use:   "web <url>",
	Short: "Scrape a site, ingest its pages and answer the query",
	Args:  cobra.ExactArgs(1),
	RunE:  runWeb,
}

func runText(cmd *cobra.Command, args []string) error {
	return run(cmd.Context(), func(*llm.ChatEngine) (types.Source, func(), error) {
		return source.NewStatic(), func() {}, nil
	})
}

func runImages(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		cfg.OCR.ImagesDir = args[0]
	}

	return run(cmd.Context(), func(chat *llm.ChatEngine) (types.Source, func(), error) {
		recognizer, err := ocr.New(ocr.Config{
			Engine:       cfg.OCR.Engine,
			BaseURL:      cfg.OCR.BaseURL,
			Model:        cfg.OCR.Model,
			Language:     cfg.OCR.Language,
			InferenceDir: cfg.OCR.InferenceDir,
			Timeout:      cfg.LLM.RequestTimeout,
			Logger:       logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize OCR engine: %w", err)
		}

		imagesConfig := source.ImagesConfig{
			Dir:        cfg.OCR.ImagesDir,
			Recognizer: recognizer,
			Processor:  processorConfig(),
			Logger:     logger,
		}
		if cfg.OCR.Summarize {
			imagesConfig.Summarizer = chat
		}

		var bar *progressbar.ProgressBar
		if cfg.UI.Progress {
			imagesConfig.OnProgress = func(path string) {
				if bar != nil {
					bar.Describe(color.BlueString("Reading %s", filepath.Base(path)))
					bar.Add(1)
				}
			}
		}

		src, err := source.NewImages(imagesConfig)
		if err != nil {
			recognizer.Close()
			return nil, nil, err
		}

		if cfg.UI.Progress {
			total, err := src.Count()
			if err != nil {
				recognizer.Close()
				return nil, nil, err
			}
			bar = getProgressBar(total, "Reading images")
		}

		return src, func() {
			if bar != nil {
				bar.Finish()
			}
			recognizer.Close()
		}, nil
	})
}

func runWeb(cmd *cobra.Command, args []string) error {
	return run(cmd.Context(), func(*llm.ChatEngine) (types.Source, func(), error) {
		var bar *progressbar.ProgressBar
		scraperConfig := scraper.ScraperConfig{
			MaxDepth:          cfg.Scraper.MaxDepth,
			RateLimit:         cfg.Scraper.RateLimit,
			IgnorePatterns:    cfg.Scraper.IgnorePatterns,
			AllowedExtensions: cfg.Scraper.AllowedExtensions,
		}
		if cfg.UI.Progress {
			bar = getProgressBar(-1, "Scraping pages")
			scraperConfig.OnProgress = func(url string) {
				bar.Add(1)
			}
		}

		src, err := source.NewWeb(source.WebConfig{
			URL:       args[0],
			Scraper:   scraperConfig,
			Processor: processorConfig(),
			Logger:    logger,
		})
		if err != nil {
			return nil, nil, err
		}

		return src, func() {
			if bar != nil {
				bar.Finish()
			}
		}, nil
	})
}

// processorConfig maps the config onto the processor. Config values are
// already defaulted, so a zero there means "none".
func processorConfig() processor.ProcessorConfig {
	return processor.ProcessorConfig{
		ChunkSize:       cfg.Processor.ChunkSize,
		ChunkOverlap:    explicitZero(cfg.Processor.ChunkOverlap),
		MinChunkLength:  explicitZero(cfg.Processor.MinChunkLength),
		RemoveStopwords: cfg.Processor.RemoveStopwords,
	}
}

func explicitZero(n int) int {
	if n == 0 {
		return -1
	}
	return n
}

// sourceFactory builds the run's document source. The returned func
// releases whatever the source holds.
type sourceFactory func(chat *llm.ChatEngine) (types.Source, func(), error)

func run(ctx context.Context, newSource sourceFactory) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	vectorStore, err := store.NewWithConfig(ctx, store.VectorStoreConfig{
		ConnString:     cfg.Database.URL,
		TableName:      cfg.Database.TableName,
		VectorDim:      cfg.Database.VectorDim,
		Extension:      cfg.Database.Extension,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		Host:           cfg.LLM.Host,
		MaxConns:       cfg.Database.MaxConns,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize vector store: %w", err)
	}
	defer vectorStore.Close()

	embedder := llm.NewEmbedderWithConfig(vectorStore.Pool(), llm.EmbedderConfig{
		Model:   cfg.LLM.EmbeddingModel,
		Host:    cfg.LLM.Host,
		Timeout: cfg.LLM.RequestTimeout,
	})

	chatEngine, err := llm.NewWithConfig(vectorStore.Pool(), llm.ChatConfig{
		Model:           cfg.LLM.Model,
		Host:            cfg.LLM.Host,
		SystemTemplate:  cfg.LLM.SystemTemplate,
		ContextTemplate: cfg.LLM.ContextTemplate,
		SummaryTemplate: cfg.LLM.SummaryTemplate,
		Timeout:         cfg.LLM.RequestTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize chat engine: %w", err)
	}

	src, release, err := newSource(chatEngine)
	if err != nil {
		return err
	}
	release = sync.OnceFunc(release)
	defer release()

	pipelineConfig := pipeline.Config{
		Query:            cfg.Retrieval.Query,
		Limit:            cfg.Retrieval.Limit,
		ExtensionTimeout: cfg.Database.ExtensionTimeout,
		RequestTimeout:   cfg.LLM.RequestTimeout,
	}
	if cfg.UI.Progress {
		var storageBar *progressbar.ProgressBar
		pipelineConfig.OnIngestStart = func(total int) {
			release()
			storageBar = getProgressBar(total, "Storing in vector database")
		}
		pipelineConfig.OnIngest = func(models.Document) {
			storageBar.Add(1)
		}
		pipelineConfig.OnGenerate = func() func() {
			return startSpinner("Generating response")
		}
	}

	p, err := pipeline.NewWithConfig(pipelineConfig, vectorStore, embedder, chatEngine, pipeline.WithLogger(logger))
	if err != nil {
		return err
	}

	logger.Info("Starting run",
		zap.String("source", src.Name()),
		zap.String("model", cfg.LLM.Model),
		zap.String("embedding_model", cfg.LLM.EmbeddingModel),
	)

	start := time.Now()
	result, err := p.Run(ctx, src)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return errInterrupted
		}
		return err
	}

	logger.Info("Run complete",
		zap.Int("ingested", result.Ingested),
		zap.Int("retrieved", len(result.Retrieved)),
		zap.Bool("structured", result.Answer.Structured),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("items"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionClearOnFinish(),
	)
}

// startSpinner animates a spinner until the returned func is called.
func startSpinner(description string) func() {
	spinner := getSpinner(description)
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				spinner.Add(1)
			}
		}
	}()

	return func() {
		close(done)
		<-stopped
		spinner.Finish()
	}
}
