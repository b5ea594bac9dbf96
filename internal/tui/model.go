package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/xhad/newsqa/internal/app"
)

// Port is the TUI-facing subset of the orchestrator.
type Port interface {
	ProcessURLs(ctx context.Context, urls []string) app.Outcome
	Ask(ctx context.Context, question string) app.Outcome
}

type outcomeMsg struct {
	action  string
	outcome app.Outcome
}

// Model is the Bubble Tea model for the research form: N URL fields, a
// "Process URLs" button and a question field.
type Model struct {
	ctx      context.Context
	port     Port
	urls     []textinput.Model
	question textinput.Model
	spinner  spinner.Model
	focus    int
	busy     string
	outcome  *app.Outcome
	width    int
}

// New creates a form with the given number of URL fields.
func New(ctx context.Context, port Port, fields int) Model {
	if fields < 1 {
		fields = 3
	}
	urls := make([]textinput.Model, fields)
	for i := range urls {
		ti := textinput.New()
		ti.Prompt = fmt.Sprintf("URL %d: ", i+1)
		ti.Placeholder = "https://"
		ti.CharLimit = 0
		urls[i] = ti
	}
	urls[0].Focus()

	q := textinput.New()
	q.Prompt = "> "
	q.Placeholder = "Ask a question about the news articles"
	q.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{ctx: ctx, port: port, urls: urls, question: q, spinner: sp, width: 80}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

// focus positions: 0..len(urls)-1 are URL fields, then the button, then the question.
func (m Model) buttonPos() int   { return len(m.urls) }
func (m Model) questionPos() int { return len(m.urls) + 1 }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case spinner.TickMsg:
		if m.busy == "" {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case outcomeMsg:
		m.busy = ""
		if msg.outcome.State != app.StateIdle {
			out := msg.outcome
			m.outcome = &out
		}
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "tab", "down":
			return m.setFocus(m.focus + 1), nil
		case "shift+tab", "up":
			return m.setFocus(m.focus - 1), nil
		case "ctrl+p":
			return m.startProcess()
		case "enter":
			switch {
			case m.focus == m.buttonPos():
				return m.startProcess()
			case m.focus == m.questionPos():
				return m.startAsk()
			default:
				return m.setFocus(m.focus + 1), nil
			}
		}
	}

	var cmd tea.Cmd
	if m.focus < len(m.urls) {
		m.urls[m.focus], cmd = m.urls[m.focus].Update(msg)
	} else if m.focus == m.questionPos() {
		m.question, cmd = m.question.Update(msg)
	}
	return m, cmd
}

func (m Model) setFocus(pos int) Model {
	n := m.questionPos() + 1
	m.focus = (pos%n + n) % n
	for i := range m.urls {
		if i == m.focus {
			m.urls[i].Focus()
		} else {
			m.urls[i].Blur()
		}
	}
	if m.focus == m.questionPos() {
		m.question.Focus()
	} else {
		m.question.Blur()
	}
	return m
}

func (m Model) startProcess() (tea.Model, tea.Cmd) {
	if m.busy != "" {
		return m, nil
	}
	urls := make([]string, len(m.urls))
	for i, u := range m.urls {
		urls[i] = u.Value()
	}
	m.busy = "Loading and Processing URLs...."
	ctx, port := m.ctx, m.port
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		return outcomeMsg{action: "process", outcome: port.ProcessURLs(ctx, urls)}
	})
}

func (m Model) startAsk() (tea.Model, tea.Cmd) {
	q := strings.TrimSpace(m.question.Value())
	if m.busy != "" || q == "" {
		return m, nil
	}
	m.busy = "Thinking..."
	ctx, port := m.ctx, m.port
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		return outcomeMsg{action: "ask", outcome: port.Ask(ctx, q)}
	})
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("News Research Tool"))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("News Article URLs"))
	b.WriteString("\n")
	for _, u := range m.urls {
		b.WriteString(u.View())
		b.WriteString("\n")
	}
	button := buttonStyle
	if m.focus == m.buttonPos() {
		button = buttonFocusStyle
	}
	b.WriteString(button.Render("Process URLs"))
	b.WriteString("\n\n")
	b.WriteString(boxStyle.Render(m.question.View()))
	b.WriteString("\n")

	if m.busy != "" {
		b.WriteString(m.spinner.View() + " " + m.busy + "\n")
	} else if m.outcome != nil {
		b.WriteString(m.renderOutcome())
	}

	b.WriteString(helpStyle.Render("tab: next field • ctrl+p: process URLs • enter: ask • esc: quit"))
	return b.String()
}

func (m Model) renderOutcome() string {
	out := m.outcome
	width := max(20, m.width-4)
	switch out.Level {
	case app.LevelWarning:
		return warningStyle.Width(width).Render(out.Message) + "\n"
	case app.LevelError:
		msg := out.Message
		if out.Detail != "" {
			msg += "\n" + out.Detail
		}
		return errorStyle.Width(width).Render(msg) + "\n"
	}
	if out.Answer == nil {
		msg := out.Message
		if out.Detail != "" {
			msg += " (" + out.Detail + ")"
		}
		return successStyle.Render(msg) + "\n"
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("Answer"))
	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Width(width).Render(out.Answer.Answer))
	b.WriteString("\n")
	if out.Answer.Sources != "" {
		b.WriteString(headerStyle.Render("Sources"))
		b.WriteString("\n")
		for _, src := range strings.Split(out.Answer.Sources, "\n") {
			b.WriteString(sourceStyle.Render(src))
			b.WriteString("\n")
		}
	}
	return b.String()
}

var (
	titleStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle      = lipgloss.NewStyle().Bold(true).Underline(true)
	boxStyle         = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	buttonStyle      = lipgloss.NewStyle().Padding(0, 2).Border(lipgloss.NormalBorder())
	buttonFocusStyle = buttonStyle.Copy().BorderForeground(lipgloss.Color("10")).Bold(true)
	successStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warningStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	sourceStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	helpStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
