// Package tui is the interactive question loop.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hyperjump/primr/internal/models"
	"github.com/hyperjump/primr/pkg/utils"
)

// Answerer is the TUI-facing subset of the answer orchestrator.
type Answerer interface {
	AnswerDetailed(ctx context.Context, question string, k int) models.Answer
}

// answerMsg carries a finished answer back into Update.
type answerMsg struct {
	answer models.Answer
}

type exchange struct {
	question string
	answer   models.Answer
}

// Model is the Bubble Tea model for the question loop.
type Model struct {
	ctx      context.Context
	answerer Answerer
	k        int
	input    textinput.Model
	viewport viewport.Model
	history  []exchange
	summary  string
	status   string
	pending  bool
	ready    bool
}

// New creates a model. summary is shown under the title, typically the loaded store's size.
func New(ctx context.Context, answerer Answerer, k int, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question, or press Enter on an empty line to quit"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		ctx:      ctx,
		answerer: answerer,
		k:        k,
		input:    ti,
		viewport: vp,
		summary:  summary,
		status:   "Ready.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := historyBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // title+summary, status, spacer
		vh := msg.Height - reserved - rh
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, vh)
		m.refresh()
		return m, nil
	case answerMsg:
		m.pending = false
		m.history = append(m.history, exchange{question: msg.answer.Question, answer: msg.answer})
		m.status = fmt.Sprintf("Answered in %dms (%s).", msg.answer.DurationMS, msg.answer.Outcome)
		m.refresh()
		m.viewport.GotoBottom()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.Type {
		case tea.KeyEnter:
			q := strings.TrimSpace(m.input.Value())
			if q == "" {
				return m, tea.Quit
			}
			if m.pending {
				return m, nil
			}
			m.pending = true
			m.input.SetValue("")
			m.status = "🔍 Searching our knowledge base..."
			return m, m.ask(q)
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(question string) tea.Cmd {
	ctx, answerer, k := m.ctx, m.answerer, m.k
	return func() tea.Msg {
		return answerMsg{answer: answerer.AnswerDetailed(ctx, question, k)}
	}
}

// View renders the title, history, input and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := titleStyle.Render("Primr Assistant")
	summary := dimStyle.Render(m.summary)
	history := historyBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + summary + "\n" + history + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(renderHistory(m.history, m.viewport.Width))
}

func renderHistory(history []exchange, width int) string {
	if len(history) == 0 {
		return dimStyle.Render("No questions yet.")
	}
	wrap := lipgloss.NewStyle().Width(max(20, width-2))
	var b strings.Builder
	for i, ex := range history {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(questionStyle.Render("Q: " + ex.question))
		b.WriteString("\n")
		b.WriteString(wrap.Render(ex.answer.Answer))
		if srcs := sources(ex.answer.Sources); srcs != "" {
			b.WriteString("\n")
			b.WriteString(dimStyle.Render("Sources: " + srcs))
		}
	}
	return b.String()
}

// sources lists distinct match sources with their best score, in rank order.
func sources(matches []models.Match) string {
	seen := make(map[string]bool, len(matches))
	var parts []string
	for _, m := range matches {
		src := m.Source()
		if src == "" {
			src = utils.Truncate(m.Text, 30)
		}
		if seen[src] {
			continue
		}
		seen[src] = true
		parts = append(parts, fmt.Sprintf("%s (%.2f)", src, m.Score))
	}
	return strings.Join(parts, ", ")
}

var (
	titleStyle      = lipgloss.NewStyle().Bold(true)
	dimStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	questionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	historyBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
