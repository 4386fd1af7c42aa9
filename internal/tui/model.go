// Package tui is a terminal chat front end over the ingestion and query
// pipelines. It runs them in-process against the same store as the server.
package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"crawlmind/internal/app"
	"crawlmind/internal/extract"
)

// Ingester and Asker are the TUI-facing subsets of the pipeline services.
type Ingester interface {
	Ingest(ctx context.Context, input app.IngestInput) (*app.IngestResult, error)
}

type Asker interface {
	Ask(ctx context.Context, sess *app.SessionContext, question string) (*app.QueryResult, error)
}

// SessionSaver persists the session after every turn. Optional.
type SessionSaver interface {
	Save(ctx context.Context, sess *app.SessionContext) error
}

// Pipelines run on a copy of the session; the copy comes back with the
// result and replaces the model's session.
type ingestDoneMsg struct {
	session *app.SessionContext
	result  *app.IngestResult
	err     error
}

type answerMsg struct {
	session *app.SessionContext
	result  *app.QueryResult
	err     error
}

// Model is the Bubble Tea model of the chat screen.
type Model struct {
	ctx      context.Context
	ingester Ingester
	asker    Asker
	saver    SessionSaver
	session  *app.SessionContext

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	busy   bool
	ready  bool
	status string
}

func New(ctx context.Context, ingester Ingester, asker Asker, saver SessionSaver, session *app.SessionContext) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question, or :ingest <url|file> ..."
	ti.Focus()
	ti.CharLimit = 4000

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ctx:      ctx,
		ingester: ingester,
		asker:    asker,
		saver:    saver,
		session:  session,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		status:   "Add sources with :ingest, then ask away. :reset clears the chat, :quit exits.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		tw, th := transcriptBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		// header, status and the input line
		m.viewport.Width = max(20, msg.Width-tw)
		m.viewport.Height = max(3, msg.Height-3-ih-th)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if msg.Type == tea.KeyEnter {
			if m.busy {
				return m, nil
			}
			line := strings.TrimSpace(m.input.Value())
			if line == "" {
				return m, nil
			}
			m.input.SetValue("")
			return m.submit(line)
		}
		if msg.Type == tea.KeyPgUp || msg.Type == tea.KeyPgDown {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case ingestDoneMsg:
		m.busy = false
		m.session = msg.session
		m.status = describeIngest(msg.result, msg.err)
		m.save()
		return m, nil

	case answerMsg:
		m.busy = false
		m.session = msg.session
		switch {
		case msg.err != nil:
			m.status = errorStyle.Render(string(app.KindOf(msg.err)) + ": " + app.UserMessage(msg.err))
		case msg.result.GenerationFailed:
			m.status = errorStyle.Render("Answer generation failed.")
		default:
			m.status = fmt.Sprintf("Answered from %d source(s).", msg.result.SourcesCount)
		}
		m.save()
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit(line string) (tea.Model, tea.Cmd) {
	if !strings.HasPrefix(line, ":") {
		m.busy = true
		m.status = "Thinking..."
		return m, tea.Batch(m.spinner.Tick, m.ask(line))
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case ":quit", ":q":
		return m, tea.Quit
	case ":reset":
		m.session.Transcript = nil
		m.save()
		m.status = "Chat cleared."
		m.refresh()
		return m, nil
	case ":ingest":
		sources, err := ParseSources(fields[1:])
		if err != nil {
			m.status = errorStyle.Render(err.Error())
			return m, nil
		}
		m.busy = true
		m.status = fmt.Sprintf("Ingesting %d source(s)...", len(sources))
		return m, tea.Batch(m.spinner.Tick, m.ingest(sources))
	default:
		m.status = errorStyle.Render("unknown command " + fields[0])
		return m, nil
	}
}

func (m Model) ask(question string) tea.Cmd {
	ctx, asker, sess := m.ctx, m.asker, cloneSession(m.session)
	return func() tea.Msg {
		result, err := asker.Ask(ctx, sess, question)
		return answerMsg{session: sess, result: result, err: err}
	}
}

func (m Model) ingest(sources []extract.Source) tea.Cmd {
	ctx, ingester, sess := m.ctx, m.ingester, cloneSession(m.session)
	return func() tea.Msg {
		result, err := ingester.Ingest(ctx, app.IngestInput{Session: sess, Sources: sources})
		return ingestDoneMsg{session: sess, result: result, err: err}
	}
}

func cloneSession(s *app.SessionContext) *app.SessionContext {
	c := *s
	c.Transcript = slices.Clone(s.Transcript)
	return &c
}

func (m *Model) save() {
	if m.saver == nil {
		return
	}
	if err := m.saver.Save(m.ctx, m.session); err != nil {
		m.status = errorStyle.Render("saving session failed: " + err.Error())
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(renderTranscript(m.session, m.viewport.Width))
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("CrawlMind")
	if m.session.CollectionRef != "" {
		header += dimStyle.Render("  " + m.session.CollectionRef)
	}
	status := m.status
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" +
		transcriptBoxStyle.Render(m.viewport.View()) + "\n" +
		inputBoxStyle.Render(m.input.View()) + "\n" +
		statusStyle.Render(status)
}

// ParseSources turns ":ingest" arguments into sources. Arguments starting
// with http:// or https:// are URLs, everything else is read as a local file.
func ParseSources(args []string) ([]extract.Source, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("usage: :ingest <url|file> ...")
	}
	sources := make([]extract.Source, 0, len(args))
	for _, arg := range args {
		if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
			sources = append(sources, extract.URL(arg))
			continue
		}
		content, err := os.ReadFile(arg)
		if err != nil {
			return nil, fmt.Errorf("read %s failed: %w", arg, err)
		}
		sources = append(sources, extract.File(filepath.Base(arg), content))
	}
	return sources, nil
}

func describeIngest(result *app.IngestResult, err error) string {
	if err != nil {
		return errorStyle.Render(string(app.KindOf(err)) + ": " + app.UserMessage(err))
	}
	s := fmt.Sprintf("Added %d chunk(s) to %s.", result.ChunksAdded, result.Collection.Name)
	if n := len(result.FailedSources); n > 0 {
		s += fmt.Sprintf(" %d source(s) failed.", n)
	}
	return s
}

func renderTranscript(sess *app.SessionContext, width int) string {
	if len(sess.Transcript) == 0 {
		return dimStyle.Render("No questions yet.")
	}
	body := lipgloss.NewStyle().Width(width)
	var b strings.Builder
	for i, turn := range sess.Transcript {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(body.Render(questionStyle.Render("You: ") + turn.Question))
		b.WriteString("\n")
		b.WriteString(body.Render(answerStyle.Render("CrawlMind: ") + turn.Answer))
	}
	return b.String()
}

var (
	headerStyle        = lipgloss.NewStyle().Bold(true)
	dimStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	questionStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	answerStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
