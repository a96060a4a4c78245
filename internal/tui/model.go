package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"legalrag/internal/session"
)

// ChatPort is the TUI-facing subset of the session orchestrator.
type ChatPort interface {
	Answer(ctx context.Context, st session.State, question string) (string, session.State, session.Trace)
}

// answerMsg carries a finished turn back into the update loop.
type answerMsg struct {
	question string
	answer   string
	state    session.State
	trace    session.Trace
}

// Model is the Bubble Tea model for the chat session.
type Model struct {
	chat     ChatPort
	timeout  time.Duration
	state    session.State
	input    textinput.Model
	viewport viewport.Model
	question string
	answer   string
	trace    session.Trace
	status   string
	// cursor selects a cited excerpt; -1 shows the answer.
	cursor int
	busy   bool
	ready  bool
}

// New creates a chat model starting from st. A zero timeout means turns
// run without a deadline.
func New(chat ChatPort, st session.State, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question, /tasks, /task <name> [model], exit"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		chat:     chat,
		timeout:  timeout,
		state:    st,
		input:    ti,
		viewport: vp,
		cursor:   -1,
		status:   fmt.Sprintf("Task %s, model %s. Type a question.", st.Task, st.Model),
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) ask(q string) tea.Cmd {
	chat, st, timeout := m.chat, m.state, m.timeout
	return func() tea.Msg {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		answer, next, trace := chat.Answer(ctx, st, q)
		return answerMsg{question: q, answer: answer, state: next, trace: trace}
	}
}

// Update handles key, window and turn events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header and question, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.viewport.SetContent(m.render())
		return m, nil
	case answerMsg:
		m.busy = false
		m.question = msg.question
		m.answer = msg.answer
		m.state = msg.state
		m.trace = msg.trace
		m.cursor = -1
		m.status = statusLine(msg.trace, msg.state)
		m.viewport.SetContent(m.render())
		m.viewport.GotoTop()
		if msg.trace.Path == session.PathExit {
			return m, tea.Quit
		}
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.busy = true
			m.input.SetValue("")
			m.status = "Thinking..."
			return m, m.ask(q)
		case "down", "tab":
			if n := len(m.trace.Hits); n > 0 {
				m.cursor = (m.cursor+2)%(n+1) - 1
				m.viewport.SetContent(m.render())
				return m, nil
			}
		case "up", "shift+tab":
			if n := len(m.trace.Hits); n > 0 {
				m.cursor = (m.cursor+n+1)%(n+1) - 1
				m.viewport.SetContent(m.render())
				return m, nil
			}
		case "pgdown", "pgup":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the TUI layout and current answer.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Legal RAG")
	question := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.question)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	body := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + question + "\n" + body + "\n" + input + "\n" + status
}

func (m Model) render() string {
	if m.answer == "" {
		return "No answer yet."
	}
	if m.cursor < 0 || m.cursor >= len(m.trace.Hits) {
		return m.answer + renderCitations(m.trace)
	}
	h := m.trace.Hits[m.cursor]
	title := fmt.Sprintf("Excerpt %d/%d  [%s] Art. %s, Comma %s  score=%.3f",
		m.cursor+1, len(m.trace.Hits), h.Chunk.DocumentTitle, h.Chunk.ArticleID, h.Chunk.ParagraphID, h.FinalScore())
	return title + "\n\n" + highlightBestSentence(h.Chunk.Text, m.trace.Query)
}

func renderCitations(t session.Trace) string {
	if len(t.Hits) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n")
	b.WriteString(citationStyle.Render("Sources (up/down to inspect):"))
	for i, h := range t.Hits {
		fmt.Fprintf(&b, "\n%2d. [%s] Art. %s, Comma %s  %.3f",
			i+1, h.Chunk.DocumentTitle, h.Chunk.ArticleID, h.Chunk.ParagraphID, h.FinalScore())
	}
	return b.String()
}

func statusLine(t session.Trace, st session.State) string {
	s := fmt.Sprintf("path=%s task=%s model=%s", t.Path, st.Task, st.Model)
	if t.Model != "" && t.Model != st.Model {
		s += " (turn model " + t.Model + ")"
	}
	if t.Degraded {
		s += " degraded"
	}
	if t.Duration > 0 {
		s += fmt.Sprintf(" %s", t.Duration.Round(time.Millisecond))
	}
	return s
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	citationStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?;]+[.!?;])`)
)

// highlightBestSentence emphasizes the sentence sharing the most words with query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx, bestScore := 0, -1
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore, bestIdx = score, i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sent = highlightStyle.Render(sent)
		}
		sentences[i] = sent
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := map[string]struct{}{}
	for _, t := range unicodeWordRe.FindAllString(strings.ToLower(sentence), -1) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
