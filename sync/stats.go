// ABOUTME: Leaderboard statistics derived from a study snapshot
// ABOUTME: Completed item count and the current daily activity streak
package sync

import (
	"time"

	"github.com/harperreed/studysync/models"
)

// DeriveLeaderboard computes the leaderboard row for a snapshot.
func DeriveLeaderboard(userID, displayName string, snap models.SyncSnapshot, now time.Time) models.LeaderboardRow {
	return models.LeaderboardRow{
		UserID:         userID,
		DisplayName:    displayName,
		CompletedCount: CountCompleted(snap.Field(models.FieldProgress).Data),
		StreakDays:     StreakDays(snap.Field(models.FieldActivity).Data, now),
		UpdatedAt:      models.FormatTimestamp(now),
	}
}

// CountCompleted counts completed items. Progress is a map of item id to
// either a boolean or an object with a boolean "completed" member.
func CountCompleted(progress any) int {
	items, ok := progress.(map[string]any)
	if !ok {
		return 0
	}
	n := 0
	for _, v := range items {
		switch val := v.(type) {
		case bool:
			if val {
				n++
			}
		case map[string]any:
			if done, _ := val["completed"].(bool); done {
				n++
			}
		}
	}
	return n
}

// StreakDays counts consecutive active days ending today or yesterday.
// Activity is either a map keyed by date or a list of objects with a "date"
// or "timestamp" member.
func StreakDays(activity any, now time.Time) int {
	days := activityDays(activity)
	if len(days) == 0 {
		return 0
	}

	today := now.UTC().Truncate(24 * time.Hour)
	cursor := today
	if !days[cursor.Format(time.DateOnly)] {
		cursor = cursor.AddDate(0, 0, -1)
		if !days[cursor.Format(time.DateOnly)] {
			return 0
		}
	}

	streak := 0
	for days[cursor.Format(time.DateOnly)] {
		streak++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return streak
}

func activityDays(activity any) map[string]bool {
	days := make(map[string]bool)
	add := func(s string) {
		if d, ok := toDay(s); ok {
			days[d] = true
		}
	}

	switch val := activity.(type) {
	case map[string]any:
		for k := range val {
			add(k)
		}
	case []any:
		for _, item := range val {
			switch it := item.(type) {
			case string:
				add(it)
			case map[string]any:
				if s, ok := it["date"].(string); ok {
					add(s)
				} else if s, ok := it["timestamp"].(string); ok {
					add(s)
				}
			}
		}
	}
	return days
}

func toDay(s string) (string, bool) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.Format(time.DateOnly), true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC().Format(time.DateOnly), true
	}
	return "", false
}
