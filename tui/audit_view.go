// ABOUTME: TUI view listing the newest audit log entries
// ABOUTME: Table of timestamp, action, resource and severity with cursor navigation
package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
)

const auditRows = 50

func (m Model) renderAuditView() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("AUDIT LOG"))
	s.WriteString("\n\n")

	entries := m.orch.Audit().Tail(auditRows)
	if len(entries) == 0 {
		s.WriteString(messageStyle.Render("No audit entries yet."))
		s.WriteString("\n")
		s.WriteString(m.renderAuditHelp())
		return s.String()
	}

	columns := []table.Column{
		{Title: "Time", Width: 24},
		{Title: "Action", Width: 24},
		{Title: "Resource", Width: 16},
		{Title: "Severity", Width: 10},
	}

	// Newest first.
	rows := make([]table.Row, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		rows = append(rows, table.Row{e.Timestamp, e.Action, e.ResourceType, e.Severity})
	}

	height := m.height - 10
	if height < 3 {
		height = 3
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(height),
	)
	if m.selectedRow < len(rows) {
		t.SetCursor(m.selectedRow)
	}

	s.WriteString(t.View())
	s.WriteString("\n")
	s.WriteString(m.renderAuditHelp())
	return s.String()
}

func (m Model) renderAuditHelp() string {
	help := []string{
		"↑/↓: Navigate",
		"Esc: Back",
		"q: Quit",
	}
	return helpStyle.Render(strings.Join(help, " • "))
}

func (m Model) handleAuditKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.selectedRow > 0 {
			m.selectedRow--
		}
	case "down", "j":
		if m.selectedRow < len(m.orch.Audit().Tail(auditRows))-1 {
			m.selectedRow++
		}
	case "esc":
		m.viewMode = ViewStatus
	}
	return m, nil
}
