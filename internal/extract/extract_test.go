package extract

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	segments []string
	err      error
	calls    int
}

func (s *stubFetcher) Fetch(ctx context.Context, url string) ([]string, error) {
	s.calls++
	return s.segments, s.err
}

var longText = strings.Repeat("Go makes it simple to build reliable software. ", 3)

func TestExtractURLUsesPrimary(t *testing.T) {
	primary := &stubFetcher{segments: []string{longText}}
	fallback := &stubFetcher{segments: []string{"unused"}}
	svc := NewService(primary, fallback, Options{})

	segments, err := svc.Extract(context.Background(), URL("https://example.test"))
	require.NoError(t, err)
	assert.Equal(t, []string{longText}, segments)
	assert.Equal(t, 0, fallback.calls)
}

func TestExtractURLFallsBackOnThinContent(t *testing.T) {
	primary := &stubFetcher{segments: []string{"# Failed to crawl https://example.test " + longText, "tiny"}}
	fallback := &stubFetcher{segments: []string{longText}}
	svc := NewService(primary, fallback, Options{})

	segments, err := svc.Extract(context.Background(), URL("https://example.test"))
	require.NoError(t, err)
	assert.Equal(t, []string{longText}, segments)
	assert.Equal(t, 1, fallback.calls)
}

func TestExtractURLFallsBackOnPrimaryError(t *testing.T) {
	primary := &stubFetcher{err: errors.New("browser crashed")}
	fallback := &stubFetcher{segments: []string{longText}}
	svc := NewService(primary, fallback, Options{})

	segments, err := svc.Extract(context.Background(), URL("https://example.test"))
	require.NoError(t, err)
	assert.Len(t, segments, 1)
}

func TestExtractURLNoContent(t *testing.T) {
	svc := NewService(&stubFetcher{segments: []string{"short"}}, &stubFetcher{segments: []string{""}}, Options{})

	_, err := svc.Extract(context.Background(), URL("https://example.test"))
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestExtractURLRejectsNonHTTP(t *testing.T) {
	svc := NewService(&stubFetcher{}, &stubFetcher{}, Options{})
	_, err := svc.Extract(context.Background(), URL("file:///etc/passwd"))
	assert.ErrorIs(t, err, ErrInvalidSource)
}

func TestExtractTextFile(t *testing.T) {
	svc := NewService(nil, nil, Options{})
	segments, err := svc.Extract(context.Background(), File("notes.md", []byte("  hello notes  ")))
	require.NoError(t, err)
	assert.Equal(t, []string{"  hello notes  "}, segments)
}

func TestExtractUnsupportedFile(t *testing.T) {
	svc := NewService(nil, nil, Options{})
	_, err := svc.Extract(context.Background(), File("sheet.xlsx", []byte("PK")))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExtractInvalidUTF8IsLoadError(t *testing.T) {
	svc := NewService(nil, nil, Options{})
	_, err := svc.Extract(context.Background(), File("bad.txt", []byte{0xff, 0xfe, 0xfd}))
	assert.ErrorIs(t, err, ErrLoad)
}

func TestExtractBrokenPDFIsLoadError(t *testing.T) {
	svc := NewService(nil, nil, Options{})
	_, err := svc.Extract(context.Background(), File("paper.pdf", []byte("%PDF-nonsense")))
	assert.ErrorIs(t, err, ErrLoad)
}

func TestScopedTempFileRemoved(t *testing.T) {
	var seen string
	_, err := loadScoped(File("a.txt", []byte("x")), func(path string) ([]string, error) {
		seen = path
		return nil, errors.New("loader blew up")
	})
	require.Error(t, err)
	require.NotEmpty(t, seen)
	_, statErr := os.Stat(seen)
	assert.True(t, os.IsNotExist(statErr))
	assert.Equal(t, ".txt", filepath.Ext(seen))
}

func TestCrawlServiceFetcher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/crawl", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		_, _ = w.Write([]byte(`{"results":[
			{"url":"a","success":true,"markdown":"page one"},
			{"url":"b","success":true,"markdown":{"raw_markdown":"page two"}},
			{"url":"c","success":false,"markdown":"ignored"}
		]}`))
	}))
	defer server.Close()

	f := NewCrawlServiceFetcher(server.URL+"/", "", server.Client())
	segments, err := f.Fetch(context.Background(), "https://example.test")
	require.NoError(t, err)
	assert.Equal(t, []string{"page one", "page two"}, segments)
}

func TestHTTPFetcherStripsMarkup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "crawlmind-test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`<html><head><title>t</title><style>body{}</style></head>
<body><nav>menu</nav><h1>Title</h1><p>First   paragraph.</p><script>alert(1)</script><p>Second</p></body></html>`))
	}))
	defer server.Close()

	f := NewHTTPFetcher("crawlmind-test", server.Client())
	segments, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, "Title\nFirst paragraph.\nSecond", segments[0])
}

func TestTypeFromName(t *testing.T) {
	assert.Equal(t, FileTypePDF, TypeFromName("Report.PDF"))
	assert.Equal(t, FileTypeText, TypeFromName("readme.txt"))
	assert.Equal(t, FileType(""), TypeFromName("image.png"))
}
