package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crawlmind/internal/app"
	"crawlmind/internal/extract"
	"crawlmind/internal/knowledge"
)

type fakeAsker struct {
	err error
}

func (f *fakeAsker) Ask(_ context.Context, sess *app.SessionContext, question string) (*app.QueryResult, error) {
	if f.err != nil {
		sess.AppendTurn(question, app.UserMessage(f.err), time.Now())
		return nil, f.err
	}
	sess.AppendTurn(question, "answer to "+question, time.Now())
	return &app.QueryResult{Answer: "answer to " + question, SourcesCount: 2}, nil
}

type fakeIngester struct {
	got []extract.Source
}

func (f *fakeIngester) Ingest(_ context.Context, input app.IngestInput) (*app.IngestResult, error) {
	f.got = input.Sources
	input.Session.CollectionRef = "crawlmind_collection_20240615_120000"
	return &app.IngestResult{
		ChunksAdded: len(input.Sources),
		Collection:  knowledge.CollectionRef{Name: input.Session.CollectionRef},
		State:       app.StateDone,
	}, nil
}

type countingSaver struct {
	saves int
}

func (s *countingSaver) Save(context.Context, *app.SessionContext) error {
	s.saves++
	return nil
}

// drain runs cmd and every command batched inside it, returning the
// messages they produce.
func drain(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, drain(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

func newModel(asker Asker, ingester Ingester, saver SessionSaver) Model {
	m := New(context.Background(), ingester, asker, saver, &app.SessionContext{SessionID: app.DefaultSessionID})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return next.(Model)
}

// enter types line and presses Enter, then feeds the pipeline result back.
func enter(t *testing.T, m Model, line string) Model {
	t.Helper()
	m.input.SetValue(line)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	for _, msg := range drain(cmd) {
		switch msg.(type) {
		case answerMsg, ingestDoneMsg:
			next, _ = m.Update(msg)
			m = next.(Model)
		}
	}
	return m
}

func TestAskAppendsTurn(t *testing.T) {
	saver := &countingSaver{}
	m := newModel(&fakeAsker{}, &fakeIngester{}, saver)

	m = enter(t, m, "what is crawlmind?")

	assert.False(t, m.busy)
	require.Len(t, m.session.Transcript, 1)
	assert.Equal(t, "answer to what is crawlmind?", m.session.Transcript[0].Answer)
	assert.Contains(t, m.status, "2 source(s)")
	assert.Equal(t, 1, saver.saves)
	assert.Contains(t, m.View(), "what is crawlmind?")
	assert.Empty(t, m.input.Value())
}

func TestAskFailureShowsUserMessage(t *testing.T) {
	m := newModel(&fakeAsker{err: knowledge.ErrNoKnowledgeBase}, &fakeIngester{}, nil)

	m = enter(t, m, "anything?")

	require.Len(t, m.session.Transcript, 1)
	assert.Contains(t, m.status, "No documents found")
	assert.Contains(t, m.status, "RetrievalError")
}

func TestIngestCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("# Notes"), 0o644))

	ingester := &fakeIngester{}
	m := newModel(&fakeAsker{}, ingester, nil)

	m = enter(t, m, ":ingest https://example.com "+path)

	require.Len(t, ingester.got, 2)
	assert.Equal(t, extract.SourceURL, ingester.got[0].Kind)
	assert.Equal(t, "notes.md", ingester.got[1].Name)
	assert.Equal(t, "crawlmind_collection_20240615_120000", m.session.CollectionRef)
	assert.Contains(t, m.status, "Added 2 chunk(s)")
	assert.Contains(t, m.View(), m.session.CollectionRef)
}

func TestCommands(t *testing.T) {
	m := newModel(&fakeAsker{}, &fakeIngester{}, nil)
	m = enter(t, m, "first")
	require.Len(t, m.session.Transcript, 1)

	m = enter(t, m, ":reset")
	assert.Empty(t, m.session.Transcript)

	m = enter(t, m, ":ingest")
	assert.Contains(t, m.status, "usage")

	m = enter(t, m, ":bogus")
	assert.Contains(t, m.status, "unknown command")

	m.input.SetValue(":quit")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestEnterIgnoredWhileBusy(t *testing.T) {
	m := newModel(&fakeAsker{}, &fakeIngester{}, nil)
	m.busy = true
	m.input.SetValue("queued?")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Equal(t, "queued?", next.(Model).input.Value())
}

func TestParseSources(t *testing.T) {
	_, err := ParseSources([]string{"/does/not/exist.txt"})
	assert.Error(t, err)

	sources, err := ParseSources([]string{"http://a.example"})
	require.NoError(t, err)
	assert.Equal(t, "http://a.example", sources[0].URL)
}

func TestDescribeIngestError(t *testing.T) {
	s := describeIngest(nil, fmt.Errorf("%w: https://example.com", extract.ErrNoContent))
	assert.Contains(t, s, "No content could be extracted")
}
