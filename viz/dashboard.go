// ABOUTME: Terminal dashboard statistics and rendering
// ABOUTME: Study progress, sync health and audit activity in one ASCII view
package viz

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/harperreed/studysync/models"
	"github.com/harperreed/studysync/sync"
)

type DashboardStats struct {
	// Study progress
	CompletedCount int
	StreakDays     int

	// Sync health
	LoggedIn     bool
	UserID       string
	Remote       string
	Online       bool
	LastSyncedAt string
	QueueDepth   int

	// Audit
	Audit          models.VerifyResult
	ActionCounts   map[string]int
	RecentActivity []ActivityItem
}

type ActivityItem struct {
	Timestamp   string
	Description string
	Severity    string
}

// GenerateDashboardStats reads everything from local state; it never
// contacts the remote.
func GenerateDashboardStats(o *sync.Orchestrator, now time.Time) *DashboardStats {
	snap := o.Local().BuildLocalPayload()
	status := o.Status()

	stats := &DashboardStats{
		CompletedCount: sync.CountCompleted(snap.Field(models.FieldProgress).Data),
		StreakDays:     sync.StreakDays(snap.Field(models.FieldActivity).Data, now),
		LoggedIn:       status.LoggedIn,
		Remote:         status.Remote,
		Online:         status.Online,
		LastSyncedAt:   status.LastSyncedAt,
		QueueDepth:     status.QueueDepth,
		Audit:          status.Audit,
		ActionCounts:   make(map[string]int),
	}
	if status.User != nil {
		stats.UserID = status.User.ID
	}

	for _, e := range o.Audit().Entries() {
		stats.ActionCounts[e.Action]++
	}
	for _, e := range o.Audit().Tail(5) {
		stats.RecentActivity = append(stats.RecentActivity, ActivityItem{
			Timestamp:   e.Timestamp,
			Description: e.Action + " " + e.ResourceType,
			Severity:    e.Severity,
		})
	}
	return stats
}

func RenderDashboard(stats *DashboardStats) string {
	var out strings.Builder

	out.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	out.WriteString("  STUDYSYNC DASHBOARD\n")
	out.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

	out.WriteString("PROGRESS\n")
	out.WriteString(fmt.Sprintf("  ✅ %d completed  🔥 %d day streak\n\n", stats.CompletedCount, stats.StreakDays))

	out.WriteString("SYNC\n")
	if stats.LoggedIn {
		out.WriteString(fmt.Sprintf("  Signed in as %s (%s)\n", stats.UserID, stats.Remote))
	} else {
		out.WriteString("  Not signed in\n")
	}
	online := "online"
	if !stats.Online {
		online = "offline"
	}
	last := stats.LastSyncedAt
	if last == "" {
		last = "never"
	}
	out.WriteString(fmt.Sprintf("  %s • last synced %s • %d queued\n\n", online, last, stats.QueueDepth))

	out.WriteString("AUDIT\n")
	renderActions(&out, stats.ActionCounts)
	if stats.Audit.OK {
		out.WriteString(fmt.Sprintf("  ✓ chain valid (%d entries)\n", stats.Audit.Total))
	} else {
		out.WriteString(fmt.Sprintf("  ⚠️  chain broken at entry %d\n", stats.Audit.BrokenAt))
	}

	if len(stats.RecentActivity) > 0 {
		out.WriteString("\nRECENT ACTIVITY\n")
		for _, a := range stats.RecentActivity {
			out.WriteString(fmt.Sprintf("  %s  %-8s %s\n", a.Timestamp, a.Severity, a.Description))
		}
	}

	return out.String()
}

func renderActions(out *strings.Builder, counts map[string]int) {
	actions := make([]string, 0, len(counts))
	maxCount := 1
	for action, n := range counts {
		actions = append(actions, action)
		if n > maxCount {
			maxCount = n
		}
	}
	sort.Strings(actions)

	for _, action := range actions {
		n := counts[action]
		barLength := (n * 10) / maxCount
		bar := strings.Repeat("█", barLength) + strings.Repeat("░", 10-barLength)
		out.WriteString(fmt.Sprintf("  %-22s %s  %3d\n", action, bar, n))
	}
}
