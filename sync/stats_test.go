// ABOUTME: Tests for leaderboard statistics
// ABOUTME: Covers completion counting and streak calculation across activity shapes
package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/harperreed/studysync/models"
)

func TestCountCompleted(t *testing.T) {
	progress := map[string]any{
		"l1": true,
		"l2": false,
		"l3": map[string]any{"completed": true},
		"l4": map[string]any{"completed": false},
		"l5": "yes",
	}
	assert.Equal(t, 2, CountCompleted(progress))
	assert.Equal(t, 0, CountCompleted(nil))
	assert.Equal(t, 0, CountCompleted([]any{true}))
}

func TestStreakDays(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		activity any
		want     int
	}{
		{name: "empty", activity: nil, want: 0},
		{
			name:     "map ending today",
			activity: map[string]any{"2026-03-10": 1.0, "2026-03-09": 1.0, "2026-03-07": 1.0},
			want:     2,
		},
		{
			name:     "list ending yesterday",
			activity: []any{"2026-03-09", "2026-03-08", "2026-03-07"},
			want:     3,
		},
		{
			name: "objects with timestamps",
			activity: []any{
				map[string]any{"timestamp": "2026-03-10T08:00:00.000Z"},
				map[string]any{"date": "2026-03-09"},
				map[string]any{"other": "ignored"},
			},
			want: 2,
		},
		{name: "broken streak", activity: []any{"2026-03-07"}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StreakDays(tt.activity, now))
		})
	}
}

func TestDeriveLeaderboard(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	snap := models.SyncSnapshot{Fields: map[string]models.SyncField{
		models.FieldProgress: {Data: map[string]any{"a": true, "b": true}},
		models.FieldActivity: {Data: []any{"2026-03-10"}},
	}}

	row := DeriveLeaderboard("u-1", "Learner", snap, now)
	assert.Equal(t, "u-1", row.UserID)
	assert.Equal(t, "Learner", row.DisplayName)
	assert.Equal(t, 2, row.CompletedCount)
	assert.Equal(t, 1, row.StreakDays)
	assert.Equal(t, "2026-03-10T00:00:00.000Z", row.UpdatedAt)
}
