package app

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crawlmind/internal/extract"
	"crawlmind/internal/knowledge"
)

func ingestPages(t *testing.T, f *fixture, sess *SessionContext, url string, pages ...string) IngestResult {
	t.Helper()
	f.fetcher.pages[url] = pages
	result, err := f.ingest.Ingest(context.Background(), IngestInput{Session: sess, Sources: []extract.Source{extract.URL(url)}})
	require.NoError(t, err)
	return *result
}

func TestAskIsStable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess := newSession("user_1")
	pages := []string{longPage("alpha"), longPage("beta"), longPage("gamma"), longPage("delta"), longPage("epsilon")}
	for i, p := range pages {
		f.embedder.vectors[strings.TrimSpace(p)] = []float32{1, float32(i)}
	}
	f.embedder.vectors["question"] = []float32{1, 0}
	ingestPages(t, f, sess, docsURL, pages...)

	first, err := f.query.Ask(ctx, sess, "question")
	require.NoError(t, err)
	second, err := f.query.Ask(ctx, sess, "question")
	require.NoError(t, err)

	assert.Equal(t, 4, first.SourcesCount)
	assert.Equal(t, first, second)
	require.Len(t, f.generator.contexts, 2)
	assert.Equal(t, f.generator.contexts[0], f.generator.contexts[1])
	assert.True(t, strings.HasPrefix(f.generator.contexts[0], strings.TrimSpace(pages[0])+"\n\n"))
	assert.NotContains(t, f.generator.contexts[0], "epsilon")
}

func TestAskEmptyRetrievalUsesMarker(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	h, err := f.store.CreateOrGet(ctx, "user_1")
	require.NoError(t, err)
	_, err = h.NewCollection(ctx, time.Now())
	require.NoError(t, err)
	require.NoError(t, h.Close())

	result, err := f.query.Ask(ctx, newSession("user_1"), "anything?")
	require.NoError(t, err)
	assert.Equal(t, 0, result.SourcesCount)
	assert.Equal(t, NoContextMarker, result.ContextPreview)
	require.Len(t, f.generator.contexts, 1)
	assert.Equal(t, NoContextMarker, f.generator.contexts[0])
}

func TestAskWithoutKnowledgeBase(t *testing.T) {
	f := newFixture(t)
	sess := newSession("user_1")

	_, err := f.query.Ask(context.Background(), sess, "hello?")
	require.ErrorIs(t, err, knowledge.ErrNoKnowledgeBase)
	assert.Equal(t, KindRetrieval, KindOf(err))
	require.Len(t, sess.Transcript, 1)
	assert.Equal(t, UserMessage(err), sess.Transcript[0].Answer)
	assert.Empty(t, f.generator.contexts)
}

func TestAskEmbeddingFailureIsRecorded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess := newSession("user_1")
	ingestPages(t, f, sess, docsURL, longPage("alpha"))

	f.embedder.failOn = f.embedder.calls + 1
	f.embedder.failWith = fmt.Errorf("%w: API key not valid", ErrInvalidAPIKey)
	_, err := f.query.Ask(ctx, sess, "alpha?")
	require.ErrorIs(t, err, ErrInvalidAPIKey)
	require.Len(t, sess.Transcript, 1)
	assert.Equal(t, "Invalid API key. Please check your key and try again.", sess.Transcript[0].Answer)
}

func TestAskGenerationFailureBecomesAnswer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess := newSession("user_1")
	ingestPages(t, f, sess, docsURL, longPage("alpha"))
	f.generator.err = fmt.Errorf("%w: quota exceeded", ErrGeneration)

	result, err := f.query.Ask(ctx, sess, "alpha?")
	require.NoError(t, err)
	assert.True(t, result.GenerationFailed)
	assert.True(t, strings.HasPrefix(result.Answer, "Error generating answer: "))
	assert.Contains(t, result.Answer, "quota exceeded")
	require.Len(t, sess.Transcript, 1)
	assert.Equal(t, result.Answer, sess.Transcript[0].Answer)
}

func TestAskPrefersSessionCollection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.withClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	older := ingestPages(t, f, newSession("user_1"), docsURL, longPage("alpha"))
	f.withClock(time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC))
	newer := ingestPages(t, f, newSession("user_1"), "https://example.com/other", longPage("beta"))

	pinned := newSession("user_1")
	pinned.CollectionRef = older.Collection.Name
	result, err := f.query.Ask(ctx, pinned, "q")
	require.NoError(t, err)
	assert.Equal(t, older.Collection.Name, result.Collection)

	fresh := newSession("user_1")
	result, err = f.query.Ask(ctx, fresh, "q")
	require.NoError(t, err)
	assert.Equal(t, newer.Collection.Name, result.Collection)
	assert.Equal(t, newer.Collection.Name, fresh.CollectionRef)

	stale := newSession("user_1")
	stale.CollectionRef = "user_1_collection_20200101_000000"
	result, err = f.query.Ask(ctx, stale, "q")
	require.NoError(t, err)
	assert.Equal(t, newer.Collection.Name, result.Collection)
}

func TestAskInputChecks(t *testing.T) {
	f := newFixture(t)

	_, err := f.query.Ask(context.Background(), newSession("user_1"), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)

	sess := newSession("user_1")
	sess.Credential = ""
	_, err = f.query.Ask(context.Background(), sess, "q")
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.Empty(t, sess.Transcript)
}

func TestAskWithoutSession(t *testing.T) {
	f := newFixture(t)
	q := NewQueryService(f.embedder, f.generator, f.store, DefaultTopK, "key-1")

	_, err := q.Ask(context.Background(), nil, "anyone?")
	assert.ErrorIs(t, err, knowledge.ErrNoKnowledgeBase)

	_, err = f.query.Ask(context.Background(), nil, "anyone?")
	assert.ErrorIs(t, err, ErrMissingCredential)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short"))
	long := strings.Repeat("x", 600)
	got := preview(long)
	assert.Len(t, got, contextPreviewLen+3)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, strings.Repeat("x", contextPreviewLen), preview(strings.Repeat("x", contextPreviewLen)))
}
