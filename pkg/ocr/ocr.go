// Package ocr finds images on disk and turns them into text.
package ocr

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xhad/pgai-rag/internal/types"
)

var imageTypes = map[string]string{
	".jpg": "image/jpeg",
	".png": "image/png",
	".bmp": "image/bmp",
}

// ModelDirNames are the subfolders of the inference folder searched for
// OCR model artifacts, in order of preference.
var ModelDirNames = []string{"tessdata_best", "tessdata", "tessdata_fast"}

type Config struct {
	Engine       string // "vision" or "tesseract"
	BaseURL      string // Ollama server URL as seen by this process
	Model        string
	Language     string
	InferenceDir string
	Timeout      time.Duration
	Logger       *zap.Logger
}

// New returns the recognizer selected by config.Engine.
func New(config Config) (types.Recognizer, error) {
	switch config.Engine {
	case "", "vision":
		engine, err := NewVisionEngine(config)
		if err != nil {
			return nil, err
		}
		return engine, nil
	case "tesseract":
		engine, err := NewTesseractEngine(config)
		if err != nil {
			return nil, err
		}
		return engine, nil
	default:
		return nil, fmt.Errorf("unknown OCR engine %q", config.Engine)
	}
}

// IsSupported reports whether path has a supported image extension.
func IsSupported(path string) bool {
	_, ok := imageTypes[strings.ToLower(filepath.Ext(path))]
	return ok
}

func mimeType(path string) string {
	return imageTypes[strings.ToLower(filepath.Ext(path))]
}

// ListImages returns the supported images directly inside dir, sorted by
// name. A missing dir is not an error.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read images folder: %w", err)
	}

	var images []string
	for _, entry := range entries {
		if entry.IsDir() || !IsSupported(entry.Name()) {
			continue
		}
		images = append(images, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(images)

	return images, nil
}

// DetectModelDir returns the first of ModelDirNames present under root.
func DetectModelDir(root string) (string, bool) {
	if root == "" {
		return "", false
	}
	for _, name := range ModelDirNames {
		dir := filepath.Join(root, name)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir, true
		}
	}
	return "", false
}
