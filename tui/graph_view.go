// ABOUTME: TUI view showing the audit chain as graphviz DOT source
// ABOUTME: Renders the newest links of the chain with the broken link highlighted
package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/studysync/viz"
)

const graphEntries = 10

func (m Model) renderGraphView() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("AUDIT CHAIN"))
	s.WriteString("\n\n")

	// DOT source (scrollable in future)
	if m.graphDOT == "" {
		s.WriteString("Generating graph...\n")
	} else {
		s.WriteString(lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Render(m.graphDOT))
	}

	s.WriteString("\n\n")
	s.WriteString(m.renderGraphHelp())
	return s.String()
}

func (m Model) renderGraphHelp() string {
	help := []string{
		"Esc: Back",
		"q: Quit",
	}
	return helpStyle.Render(strings.Join(help, " • "))
}

func (m Model) handleGraphKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.viewMode = ViewStatus
		m.graphDOT = ""
	}
	return m, nil
}

func (m *Model) generateGraph() {
	log := m.orch.Audit()
	dot, err := viz.NewGraphGenerator(graphEntries).GenerateAuditChainGraph(log.Entries(), log.Verify())
	if err != nil {
		m.graphDOT = "Error: " + err.Error()
		return
	}
	m.graphDOT = dot
}
