// Package extract turns ingestion sources (web pages, uploaded files) into
// plain text segments, one per page or document.
package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrNoContent         = errors.New("no usable content extracted")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrLoad              = errors.New("failed to load document")
	ErrInvalidSource     = errors.New("invalid source")
)

type SourceKind int

const (
	SourceURL SourceKind = iota + 1
	SourceFile
)

type FileType string

const (
	FileTypeText FileType = "text"
	FileTypePDF  FileType = "pdf"
)

// Source is one ingestion input. It only lives for one ingestion request.
type Source struct {
	Kind    SourceKind
	URL     string
	Name    string
	Content []byte
	// Type is the declared file type. Empty means infer from Name.
	Type FileType
}

func URL(raw string) Source {
	return Source{Kind: SourceURL, URL: strings.TrimSpace(raw)}
}

func File(name string, content []byte) Source {
	return Source{Kind: SourceFile, Name: name, Content: content}
}

// Label names the source in logs and error reports.
func (s Source) Label() string {
	if s.Kind == SourceURL {
		return s.URL
	}
	return s.Name
}

// Extractor produces text segments for a source.
type Extractor interface {
	Extract(ctx context.Context, src Source) ([]string, error)
}

// PageFetcher retrieves the readable text of a web page. It may return several
// segments when the fetch follows more than one page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) ([]string, error)
}

type Options struct {
	CrawlTimeout    time.Duration
	FetchTimeout    time.Duration
	MinContentChars int
}

// Service dispatches URLs to the page fetchers and files to format loaders.
type Service struct {
	primary  PageFetcher
	fallback PageFetcher
	loaders  map[FileType]Loader
	opts     Options
}

func NewService(primary, fallback PageFetcher, opts Options) *Service {
	if opts.CrawlTimeout <= 0 {
		opts.CrawlTimeout = 5 * time.Minute
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	if opts.MinContentChars <= 0 {
		opts.MinContentChars = 50
	}
	return &Service{
		primary:  primary,
		fallback: fallback,
		loaders:  DefaultLoaders(),
		opts:     opts,
	}
}

func (s *Service) Extract(ctx context.Context, src Source) ([]string, error) {
	switch src.Kind {
	case SourceURL:
		return s.extractURL(ctx, src.URL)
	case SourceFile:
		return s.extractFile(src)
	default:
		return nil, ErrInvalidSource
	}
}

func (s *Service) extractURL(ctx context.Context, url string) ([]string, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("%w: %q is not an http(s) url", ErrInvalidSource, url)
	}

	if s.primary != nil {
		segments, err := s.fetchWithTimeout(ctx, s.primary, url, s.opts.CrawlTimeout)
		if err == nil {
			if usable := s.usable(segments); len(usable) > 0 {
				return usable, nil
			}
		}
	}

	if s.fallback != nil {
		segments, err := s.fetchWithTimeout(ctx, s.fallback, url, s.opts.FetchTimeout)
		if err != nil {
			return nil, fmt.Errorf("%w: fallback fetch of %s failed: %v", ErrNoContent, url, err)
		}
		if usable := s.usable(segments); len(usable) > 0 {
			return usable, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoContent, url)
}

func (s *Service) fetchWithTimeout(ctx context.Context, f PageFetcher, url string, timeout time.Duration) ([]string, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return f.Fetch(fetchCtx, url)
}

// usable keeps segments with enough visible text that are not crawler error
// banners.
func (s *Service) usable(segments []string) []string {
	var out []string
	for _, seg := range segments {
		trimmed := strings.TrimSpace(seg)
		if strings.HasPrefix(trimmed, "# Failed to crawl") || strings.HasPrefix(trimmed, "# Error crawling") {
			continue
		}
		if len([]rune(trimmed)) <= s.opts.MinContentChars {
			continue
		}
		out = append(out, seg)
	}
	return out
}

func (s *Service) extractFile(src Source) ([]string, error) {
	fileType := src.Type
	if fileType == "" {
		fileType = TypeFromName(src.Name)
	}
	loader, ok := s.loaders[fileType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, src.Name)
	}
	return loadScoped(src, loader)
}

// TypeFromName maps a file extension to a loader type. Unknown extensions map
// to the empty type.
func TypeFromName(name string) FileType {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md", ".markdown":
		return FileTypeText
	case ".pdf":
		return FileTypePDF
	default:
		return ""
	}
}
