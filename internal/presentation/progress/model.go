// Package progress renders the progress of long-running commands.
package progress

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tesso57/readsync/internal/application/usecase"
	"github.com/tesso57/readsync/internal/presentation/textutil"
)

const maxBarWidth = 60

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	currentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// UpdateMsg carries one progress notification.
type UpdateMsg usecase.Progress

// DoneMsg ends the view with a summary line.
type DoneMsg struct {
	Summary string
	Err     error
}

// Model shows a spinner, and a bar once the total is known.
type Model struct {
	title    string
	updates  <-chan usecase.Progress
	spinner  spinner.Model
	bar      progress.Model
	width    int
	current  usecase.Progress
	finished bool
	done     DoneMsg
}

// New creates a model reading notifications from updates; updates may be nil.
func New(title string, updates <-chan usecase.Progress) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return Model{
		title:   title,
		updates: updates,
		spinner: s,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		width:   80,
	}
}

// Init starts the spinner and the notification listener.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, listen(m.updates))
}

func listen(updates <-chan usecase.Progress) tea.Cmd {
	if updates == nil {
		return nil
	}
	return func() tea.Msg {
		p, ok := <-updates
		if !ok {
			return nil
		}
		return UpdateMsg(p)
	}
}

// Update handles notifications, resizes and completion.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case UpdateMsg:
		m.current = usecase.Progress(msg)
		return m, listen(m.updates)
	case DoneMsg:
		m.finished = true
		m.done = msg
		return m, tea.Quit
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = min(max(msg.Width-10, 10), maxBarWidth)
		return m, nil
	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the current state.
func (m Model) View() string {
	if m.finished {
		if m.done.Err != nil {
			return errorStyle.Render("✗ "+m.done.Err.Error()) + "\n"
		}
		return "✓ " + m.done.Summary + "\n"
	}

	var b strings.Builder
	b.WriteString(m.spinner.View())
	b.WriteString(" ")
	b.WriteString(titleStyle.Render(m.title))
	if m.current.Total > 0 {
		fmt.Fprintf(&b, " %d/%d\n", m.current.Done, m.current.Total)
		b.WriteString(m.bar.ViewAs(float64(m.current.Done) / float64(m.current.Total)))
	}
	if m.current.Current != "" {
		b.WriteString("\n")
		b.WriteString(currentStyle.Render(textutil.Cell(m.current.Current, max(m.width-2, 10))))
	}
	b.WriteString("\n")
	return b.String()
}
