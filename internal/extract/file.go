package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"crawlmind/internal/pkg/pdfextract"
)

// Loader reads a file on disk into text segments.
type Loader func(path string) ([]string, error)

func DefaultLoaders() map[FileType]Loader {
	return map[FileType]Loader{
		FileTypeText: loadText,
		FileTypePDF:  loadPDF,
	}
}

// loadScoped writes the upload to a temp file, runs the loader on it and
// removes the file whatever the outcome.
func loadScoped(src Source, load Loader) ([]string, error) {
	tmp, err := os.CreateTemp("", "crawlmind-upload-*"+filepath.Ext(src.Name))
	if err != nil {
		return nil, fmt.Errorf("create temp file failed: %w", err)
	}
	path := tmp.Name()
	defer os.Remove(path)

	if _, err := tmp.Write(src.Content); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("write temp file failed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp file failed: %w", err)
	}

	segments, err := load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoad, src.Name, err)
	}
	return segments, nil
}

func loadText(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("file is not valid utf-8")
	}
	return []string{string(raw)}, nil
}

func loadPDF(path string) ([]string, error) {
	return pdfextract.ExtractPages(path)
}
