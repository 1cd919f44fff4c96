// ABOUTME: Terminal User Interface using bubbletea framework
// ABOUTME: Full-screen sync status with push, pull, flush and audit controls
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/studysync/sync"
)

// ViewMode represents the current TUI view
type ViewMode int

const (
	ViewStatus ViewMode = iota
	ViewAudit
	ViewGraph
)

// Model is the main bubbletea model
type Model struct {
	orch     *sync.Orchestrator
	viewMode ViewMode

	status   sync.StatusReport
	spinner  spinner.Model
	busy     string
	messages []string

	// Audit view state
	selectedRow int

	// Graph view state
	graphDOT string

	width  int
	height int
	now    func() time.Time
}

// NewModel creates a new TUI model
func NewModel(o *sync.Orchestrator) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = syncSyncingStyle

	m := Model{
		orch:     o,
		viewMode: ViewStatus,
		spinner:  s,
		width:    80,
		height:   24,
		now:      time.Now,
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case SyncCompleteMsg:
		m.handleSyncComplete(msg)
		return m, nil
	case VerifyCompleteMsg:
		m.handleVerifyComplete(msg)
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	switch m.viewMode {
	case ViewStatus:
		return m.renderStatusView()
	case ViewAudit:
		return m.renderAuditView()
	case ViewGraph:
		return m.renderGraphView()
	}
	return ""
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	}

	switch m.viewMode {
	case ViewStatus:
		return m.handleStatusKeys(msg)
	case ViewAudit:
		return m.handleAuditKeys(msg)
	case ViewGraph:
		return m.handleGraphKeys(msg)
	}
	return m, nil
}

func (m *Model) refresh() {
	m.status = m.orch.Status()
}

// addMessage adds a timestamped line to the activity log.
func (m *Model) addMessage(msg string) {
	m.messages = append(m.messages, fmt.Sprintf("[%s] %s", m.now().Format("15:04:05"), msg))
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Underline(true)

	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Width(14)

	syncIdleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	syncSyncingStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("11")).
				Bold(true)

	syncErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	messageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			MarginTop(1)
)
