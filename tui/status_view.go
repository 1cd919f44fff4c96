// ABOUTME: TUI view for sync status and controls
// ABOUTME: Shows sign-in state, last sync, retry queue depth and audit chain health
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/harperreed/studysync/merge"
	"github.com/harperreed/studysync/models"
	"github.com/harperreed/studysync/sync"
)

// SyncCompleteMsg is sent when a sync operation completes.
type SyncCompleteMsg struct {
	Op     string
	Result sync.SyncResult
}

// VerifyCompleteMsg carries an audit chain verification.
type VerifyCompleteMsg struct {
	Result models.VerifyResult
}

func (m Model) renderStatusView() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("StudySync"))
	s.WriteString("\n\n")

	s.WriteString(headerStyle.Render("Status"))
	s.WriteString("\n\n")

	st := m.status
	account := syncErrorStyle.Render("✗ Not signed in")
	if st.LoggedIn && st.User != nil {
		account = syncIdleStyle.Render("✓ " + userLabel(st.User))
	}
	s.WriteString(labelStyle.Render("Account") + account + "\n")

	remote := st.Remote
	if !st.Configured {
		remote = "not configured"
	}
	s.WriteString(labelStyle.Render("Remote") + remote + "\n")

	conn := syncIdleStyle.Render("online")
	if !st.Online {
		conn = syncErrorStyle.Render("offline")
	}
	s.WriteString(labelStyle.Render("Connection") + conn + "\n")

	switch {
	case m.busy != "":
		s.WriteString(labelStyle.Render("Sync") + m.spinner.View() + syncSyncingStyle.Render(" "+m.busy+"..."))
	case st.LastSyncedAt == "":
		s.WriteString(labelStyle.Render("Sync") + messageStyle.Render("Not synced yet"))
	default:
		s.WriteString(labelStyle.Render("Sync") + syncIdleStyle.Render("✓ Idle") +
			messageStyle.Render(" • Last synced "+formatTimeSince(st.LastSyncedAt, m.now())))
	}
	s.WriteString("\n")

	queue := fmt.Sprintf("%d pending", st.QueueDepth)
	if st.QueueDepth > 0 {
		queue = syncSyncingStyle.Render(queue)
	}
	s.WriteString(labelStyle.Render("Retry queue") + queue + "\n")

	if st.Audit.OK {
		s.WriteString(labelStyle.Render("Audit chain") + syncIdleStyle.Render(fmt.Sprintf("✓ valid (%d entries)", st.Audit.Total)))
	} else {
		s.WriteString(labelStyle.Render("Audit chain") + syncErrorStyle.Render(fmt.Sprintf("✗ broken at entry %d", st.Audit.BrokenAt)))
	}
	s.WriteString("\n\n")

	if len(m.messages) > 0 {
		s.WriteString(headerStyle.Render("Recent Activity"))
		s.WriteString("\n\n")
		start := 0
		if len(m.messages) > 5 {
			start = len(m.messages) - 5
		}
		for _, line := range m.messages[start:] {
			s.WriteString(messageStyle.Render("  " + line))
			s.WriteString("\n")
		}
	}

	s.WriteString(m.renderStatusHelp())
	return s.String()
}

func (m Model) renderStatusHelp() string {
	help := []string{
		"p: Push",
		"l: Pull",
		"f: Flush queue",
		"v: Verify audit",
		"a: Audit log",
		"g: Chain graph",
		"r: Refresh",
		"q: Quit",
	}
	return helpStyle.Render(strings.Join(help, " • "))
}

func (m Model) handleStatusKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "p":
		return m.start(sync.OpPush, func(ctx context.Context) sync.SyncResult {
			return m.orch.PushToRemote(ctx, sync.TriggerManual)
		})
	case "l":
		return m.start(sync.OpPull, m.orch.PullFromRemote)
	case "f":
		return m.start(sync.OpFlush, m.orch.FlushRetryQueue)
	case "v":
		return m, m.verify()
	case "a":
		m.viewMode = ViewAudit
		m.selectedRow = 0
	case "g":
		m.viewMode = ViewGraph
		m.generateGraph()
	case "r":
		m.refresh()
	}
	return m, nil
}

// start runs op in the background. Only one operation runs at a time from
// the TUI; the orchestrator rejects overlap from other callers.
func (m Model) start(op string, fn func(context.Context) sync.SyncResult) (tea.Model, tea.Cmd) {
	if m.busy != "" {
		m.addMessage(fmt.Sprintf("%s already running", m.busy))
		return m, nil
	}
	m.busy = op
	m.addMessage(fmt.Sprintf("Starting %s...", op))
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		return SyncCompleteMsg{Op: op, Result: fn(ctx)}
	})
}

func (m Model) verify() tea.Cmd {
	return func() tea.Msg {
		return VerifyCompleteMsg{Result: m.orch.Audit().Verify()}
	}
}

// handleSyncComplete handles sync completion messages.
func (m *Model) handleSyncComplete(msg SyncCompleteMsg) {
	m.busy = ""
	m.addMessage(describeResult(msg.Op, msg.Result))
	m.refresh()
}

func (m *Model) handleVerifyComplete(msg VerifyCompleteMsg) {
	m.status.Audit = msg.Result
	if msg.Result.OK {
		m.addMessage(fmt.Sprintf("✓ audit chain valid (%d entries)", msg.Result.Total))
		return
	}
	m.addMessage(fmt.Sprintf("✗ audit chain broken at entry %d", msg.Result.BrokenAt))
}

func describeResult(op string, r sync.SyncResult) string {
	switch r.Status {
	case sync.StatusOK:
		if len(r.Warnings) > 0 {
			return fmt.Sprintf("✓ %s completed with warnings: %s", op, strings.Join(r.Warnings, "; "))
		}
		return fmt.Sprintf("✓ %s completed", op)
	case sync.StatusSkipped:
		return fmt.Sprintf("- %s skipped: %s", op, r.Reason)
	case sync.StatusQueued:
		return fmt.Sprintf("⟳ %s queued: %s", op, r.Reason)
	}
	if r.Error != nil {
		return fmt.Sprintf("✗ %s failed: %s", op, r.Error.Error())
	}
	return fmt.Sprintf("✗ %s failed", op)
}

func userLabel(u *models.User) string {
	if u.Email != "" {
		return u.Email
	}
	return u.ID
}

// formatTimeSince formats a stored timestamp in a human-readable way.
func formatTimeSince(ts string, now time.Time) string {
	ms := merge.ParseMillis(ts)
	if ms == 0 {
		return ts
	}
	duration := now.Sub(time.UnixMilli(ms))

	if duration < time.Minute {
		return "just now"
	} else if duration < time.Hour {
		minutes := int(duration.Minutes())
		if minutes == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	} else if duration < 24*time.Hour {
		hours := int(duration.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	}
	days := int(duration.Hours() / 24)
	if days == 1 {
		return "1 day ago"
	}
	return fmt.Sprintf("%d days ago", days)
}
