package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"crawlmind/internal/extract"
	"crawlmind/internal/knowledge"
	"crawlmind/internal/model"
	"crawlmind/internal/retry"
)

type pageFetcher struct {
	pages map[string][]string
}

func (f *pageFetcher) Fetch(_ context.Context, url string) ([]string, error) {
	pages, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("crawl %s: not found", url)
	}
	return pages, nil
}

// fakeEmbedder maps text onto a small vector. Texts listed in vectors get
// that vector; others get one derived from their length.
type fakeEmbedder struct {
	mu          sync.Mutex
	vectors     map[string][]float32
	failOn      int
	failWith    error
	calls       int
	credentials []string
}

func (e *fakeEmbedder) Embed(_ context.Context, text, credential string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.credentials = append(e.credentials, credential)
	if e.failOn > 0 && e.calls == e.failOn {
		return nil, e.failWith
	}
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, float32(len(text) % 7)}, nil
}

type fakeGenerator struct {
	contexts []string
	answer   string
	err      error
}

func (g *fakeGenerator) Generate(_ context.Context, contextText, question, _ string) (string, error) {
	g.contexts = append(g.contexts, contextText)
	if g.err != nil {
		return "", g.err
	}
	if g.answer != "" {
		return g.answer, nil
	}
	return "answer to " + question, nil
}

type recordingPublisher struct {
	records []model.IngestionRecord
}

func (p *recordingPublisher) PublishIngestion(_ context.Context, record model.IngestionRecord) error {
	p.records = append(p.records, record)
	return nil
}

// failingAddStore behaves like the wrapped store except that every write of
// records fails.
type failingAddStore struct {
	knowledge.Store
}

func (s failingAddStore) CreateOrGet(ctx context.Context, identity string) (knowledge.Handle, error) {
	h, err := s.Store.CreateOrGet(ctx, identity)
	if err != nil {
		return nil, err
	}
	return failingAddHandle{h}, nil
}

type failingAddHandle struct {
	knowledge.Handle
}

func (failingAddHandle) Add(context.Context, knowledge.CollectionRef, []knowledge.Record) error {
	return fmt.Errorf("%w: database is locked", knowledge.ErrStoreWrite)
}

var errUpstream = errors.New("upstream exploded")

func longPage(topic string) string {
	return topic + ": " + strings.Repeat("a long enough paragraph about "+topic+". ", 3)
}

type fixture struct {
	store     *knowledge.SQLiteStore
	fetcher   *pageFetcher
	embedder  *fakeEmbedder
	generator *fakeGenerator
	events    *recordingPublisher
	ingest    *IngestionService
	query     *QueryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     knowledge.NewSQLiteStore(t.TempDir(), retry.Policy{Attempts: 1, Delay: time.Millisecond}),
		fetcher:   &pageFetcher{pages: map[string][]string{}},
		embedder:  &fakeEmbedder{vectors: map[string][]float32{}},
		generator: &fakeGenerator{},
		events:    &recordingPublisher{},
	}
	extractor := extract.NewService(f.fetcher, nil, extract.Options{})
	f.ingest = NewIngestionService(extractor, f.embedder, f.store, f.events, "")
	f.query = NewQueryService(f.embedder, f.generator, f.store, DefaultTopK, "")
	return f
}

func (f *fixture) withClock(at time.Time) {
	f.ingest.now = func() time.Time { return at }
}

func newSession(identity string) *SessionContext {
	return &SessionContext{Identity: identity, SessionID: DefaultSessionID, Credential: "key-1"}
}
