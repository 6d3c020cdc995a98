package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"agentic-rag/internal/models"
)

// SourcePreviewLen is how many characters of a source chunk are shown.
const SourcePreviewLen = 200

// AnswerPort is the TUI-facing subset of the answer pipeline.
type AnswerPort interface {
	Ask(ctx context.Context, question string) (models.Answer, error)
}

type answerMsg struct {
	answer models.Answer
	err    error
}

// Model is the Bubble Tea model for the chat session.
type Model struct {
	ctx         context.Context
	pipeline    AnswerPort
	input       textinput.Model
	viewport    viewport.Model
	spinner     spinner.Model
	history     []models.Turn
	busy        bool
	showDetails bool
	ready       bool
	backend     string
}

// New creates a chat model. backend is shown in the header.
func New(ctx context.Context, pipeline AnswerPort, backend string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question about the document and press Enter"
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	return Model{
		ctx:      ctx,
		pipeline: pipeline,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		backend:  backend,
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

// History returns the turns of the session so far.
func (m Model) History() []models.Turn { return m.history }

func (m Model) Busy() bool { return m.busy }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, hh := historyBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 2 + ih + 1 + 1 // header lines, input box, status, spacer
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-hh)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyTab:
			m.showDetails = !m.showDetails
			m.refresh()
			return m, nil
		case tea.KeyUp, tea.KeyDown, tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case tea.KeyEnter:
			if m.busy {
				return m, nil
			}
			q := strings.TrimSpace(m.input.Value())
			if q == "" {
				return m, nil
			}
			m.history = append(m.history, models.Turn{Role: models.RoleUser, Content: q})
			m.input.Reset()
			m.busy = true
			m.refresh()
			return m, tea.Batch(m.spinner.Tick, m.askCmd(q))
		}
		if m.busy {
			return m, nil
		}

	case answerMsg:
		m.busy = false
		turn := models.Turn{Role: models.RoleAssistant, Err: msg.err}
		if msg.err != nil {
			turn.Content = msg.err.Error()
		} else {
			ans := msg.answer
			turn.Content = ans.Answer
			turn.Answer = &ans
		}
		m.history = append(m.history, turn)
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

func (m Model) askCmd(question string) tea.Cmd {
	ctx, pipeline := m.ctx, m.pipeline
	return func() tea.Msg {
		ans, err := pipeline.Ask(ctx, question)
		return answerMsg{answer: ans, err: err}
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := titleStyle.Render("Agentic AI RAG Chat")
	sub := mutedStyle.Render(fmt.Sprintf("index: %s  ·  tab: toggle sources  ·  esc: quit", m.backend))
	status := mutedStyle.Render("Ready.")
	if m.busy {
		status = m.spinner.View() + " Thinking..."
	}
	return header + "\n" + sub + "\n" +
		historyBoxStyle.Render(m.viewport.View()) + "\n" +
		inputBoxStyle.Render(m.input.View()) + "\n" +
		status
}

func (m *Model) refresh() {
	m.viewport.SetContent(renderHistory(m.history, m.showDetails, m.viewport.Width))
	m.viewport.GotoBottom()
}

func renderHistory(history []models.Turn, details bool, width int) string {
	if len(history) == 0 {
		return mutedStyle.Render("No questions yet.")
	}
	wrap := lipgloss.NewStyle()
	if width > 0 {
		wrap = wrap.Width(width)
	}

	var b strings.Builder
	for i, t := range history {
		if i > 0 {
			b.WriteString("\n")
		}
		switch {
		case t.Role == models.RoleUser:
			b.WriteString(wrap.Render(userStyle.Render("You: ") + t.Content))
		case t.Err != nil:
			b.WriteString(wrap.Render(errorStyle.Render("Error: " + t.Err.Error())))
		default:
			b.WriteString(wrap.Render(assistantStyle.Render("Assistant: ") + t.Content))
			if t.Answer != nil {
				b.WriteString("\n" + renderDetails(*t.Answer, details, wrap))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderDetails(a models.Answer, open bool, wrap lipgloss.Style) string {
	line := mutedStyle.Render(fmt.Sprintf("Confidence: %.2f", a.Confidence))
	if !open {
		return line + mutedStyle.Render(fmt.Sprintf("  (%d sources, tab to show)", len(a.UsedContext)))
	}
	var b strings.Builder
	b.WriteString(line + "\n" + mutedStyle.Render("Sources:"))
	if len(a.UsedContext) == 0 {
		b.WriteString("\n" + mutedStyle.Render("  none"))
	}
	for _, src := range a.UsedContext {
		b.WriteString("\n" + wrap.Render(sourceStyle.Render("- "+Truncate(src, SourcePreviewLen))))
	}
	return b.String()
}

// Truncate shortens s to n characters followed by "..." when it is longer.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

var (
	titleStyle      = lipgloss.NewStyle().Bold(true)
	mutedStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	sourceStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	spinnerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	historyBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
