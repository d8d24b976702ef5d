// Package tui renders a live training dashboard with bubbletea.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mnemonlabs/mnemon/internal/ui"
)

// TUI adapts a bubbletea program to the ui.UI interface. Updates are
// sent as messages, so the trainer goroutine never touches the model.
type TUI struct {
	program *tea.Program
}

func NewTUI(p *tea.Program) *TUI {
	return &TUI{program: p}
}

var _ ui.UI = (*TUI)(nil)

func (t *TUI) UpdateStatus(status string) {
	t.program.Send(StatusMsg(status))
}

func (t *TUI) UpdateProgress(p ui.Progress) {
	t.program.Send(ProgressMsg(p))
}

func (t *TUI) Log(msg string) {
	t.program.Send(LogMsg(msg))
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	metricStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AFAFAF"))
)

type Model struct {
	Title    string
	Status   string
	Episode  int
	Total    int
	Reward   float64
	Epsilon  float64
	Accuracy float64
	Log      []string
	Progress progress.Model
	Viewport viewport.Model
	Quitting bool
	Ready    bool
	Width    int
	Height   int
}

type LogMsg string
type StatusMsg string
type ProgressMsg ui.Progress

// NewModel builds the dashboard model. totalEpisodes sizes the
// progress bar and may be 0 when the run length is unknown upfront.
func NewModel(title string, totalEpisodes int) Model {
	p := progress.New(progress.WithDefaultGradient())
	return Model{
		Title:    title,
		Status:   "Initializing...",
		Total:    totalEpisodes,
		Progress: p,
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.String() == "q" {
			m.Quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		if !m.Ready {
			m.Viewport = viewport.New(msg.Width, msg.Height-10)
			m.Ready = true
		} else {
			m.Viewport.Width = msg.Width
			m.Viewport.Height = msg.Height - 10
		}

	case LogMsg:
		m.Log = append(m.Log, string(msg))
		m.Viewport.SetContent(strings.Join(m.Log, "\n"))
		m.Viewport.GotoBottom()

	case StatusMsg:
		m.Status = string(msg)

	case ProgressMsg:
		m.Episode = msg.Episode
		if msg.Total > 0 {
			m.Total = msg.Total
		}
		m.Reward = msg.AvgReward
		m.Epsilon = msg.Epsilon
		m.Accuracy = msg.Accuracy
	}

	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	if !m.Ready {
		return "\n  Initializing..."
	}

	header := titleStyle.Render(" " + m.Title + " ")
	status := infoStyle.Render(fmt.Sprintf(" Status: %s ", m.Status))
	episode := fmt.Sprintf(" Episode: %d/%d ", m.Episode, m.Total)
	metrics := metricStyle.Render(fmt.Sprintf(" avg reward %.3f | epsilon %.4f | accuracy %.2f ",
		m.Reward, m.Epsilon, m.Accuracy))

	frac := 0.0
	if m.Total > 0 {
		frac = float64(m.Episode) / float64(m.Total)
	}
	prog := m.Progress.ViewAs(frac)

	view := fmt.Sprintf("%s%s%s\n%s\n\n%s\n\n%s",
		header, status, episode,
		metrics,
		m.Viewport.View(),
		prog)

	if m.Quitting {
		return view + "\n  Quitting...\n"
	}

	return view
}
