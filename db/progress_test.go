// ABOUTME: Tests for profile, progress, leaderboard and sync_state rows
// ABOUTME: Uses in-memory SQLite for fast isolated tests
package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/studysync/models"
)

func TestProfileUpsert(t *testing.T) {
	db := openTestDB(t)
	u, err := CreateUser(db, "a@example.com", "pw")
	require.NoError(t, err)

	_, err = GetProfile(db, u.ID)
	assert.ErrorIs(t, err, ErrProfileNotFound)

	require.NoError(t, UpsertProfile(db, models.Profile{ID: u.ID, Email: u.Email, UpdatedAt: "2026-01-01T00:00:00.000Z"}))
	require.NoError(t, UpsertProfile(db, models.Profile{ID: u.ID, Email: u.Email, DisplayName: "Ada", UpdatedAt: "2026-01-02T00:00:00.000Z"}))

	p, err := GetProfile(db, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", p.DisplayName)
	assert.Equal(t, "2026-01-02T00:00:00.000Z", p.UpdatedAt)
}

func TestProfileRequiresUser(t *testing.T) {
	db := openTestDB(t)
	err := UpsertProfile(db, models.Profile{ID: "ghost", UpdatedAt: "2026-01-01T00:00:00.000Z"})
	assert.Error(t, err)
}

func TestProgressRoundTrip(t *testing.T) {
	db := openTestDB(t)
	u, err := CreateUser(db, "a@example.com", "pw")
	require.NoError(t, err)
	require.NoError(t, UpsertProfile(db, models.Profile{ID: u.ID, UpdatedAt: "2026-01-01T00:00:00.000Z"}))

	_, err = GetProgress(db, u.ID)
	assert.ErrorIs(t, err, ErrProgressNotFound)

	row := models.ProgressRow{
		UserID:    u.ID,
		Progress:  models.SyncField{Data: map[string]any{"lesson-1": true}, UpdatedAt: "2026-01-01T00:00:00.000Z"},
		Plan:      models.SyncField{Data: map[string]any{"goal": "daily"}, UpdatedAt: "2026-01-01T00:00:00.000Z"},
		Activity:  models.SyncField{Data: []any{"2026-01-01"}, UpdatedAt: "2026-01-01T00:00:00.000Z"},
		UpdatedAt: "2026-01-01T00:00:01.000Z",
	}
	require.NoError(t, UpsertProgress(db, row))

	got, err := GetProgress(db, u.ID)
	require.NoError(t, err)
	assert.Equal(t, row, *got)

	row.Plan = models.SyncField{Data: map[string]any{"goal": "weekly"}, UpdatedAt: "2026-01-03T00:00:00.000Z"}
	require.NoError(t, UpsertProgress(db, row))
	got, err = GetProgress(db, u.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"goal": "weekly"}, got.Plan.Data)
}

func TestDecodeFieldDefaults(t *testing.T) {
	assert.Equal(t, models.EmptyField(), decodeField("not json"))
	assert.Equal(t, models.EmptyField(), decodeField(`{"updatedAt":"x"}`))
}

func TestLeaderboardOrdering(t *testing.T) {
	db := openTestDB(t)
	for i, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		u, err := CreateUser(db, email, "pw")
		require.NoError(t, err)
		require.NoError(t, UpsertProfile(db, models.Profile{ID: u.ID, UpdatedAt: "2026-01-01T00:00:00.000Z"}))
		require.NoError(t, UpsertLeaderboard(db, models.LeaderboardRow{
			UserID:         u.ID,
			DisplayName:    email,
			CompletedCount: i * 5,
			StreakDays:     i,
			UpdatedAt:      "2026-01-01T00:00:00.000Z",
		}))
	}

	rows, err := ListLeaderboard(db, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "c@example.com", rows[0].DisplayName)
	assert.Equal(t, 10, rows[0].CompletedCount)
	assert.Equal(t, "b@example.com", rows[1].DisplayName)
}

func TestSyncStateRecording(t *testing.T) {
	db := openTestDB(t)

	state, err := GetSyncState(db, "device-1")
	require.NoError(t, err)
	assert.Nil(t, state)

	require.NoError(t, RecordPush(db, "device-1", "user-1"))
	require.NoError(t, RecordPull(db, "device-1", "user-1"))

	state, err = GetSyncState(db, "device-1")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "idle", state.Status)
	require.NotNil(t, state.UserID)
	assert.Equal(t, "user-1", *state.UserID)
	assert.NotNil(t, state.LastPushTime)
	assert.NotNil(t, state.LastPullTime)

	msg := "disk full"
	require.NoError(t, UpdateSyncStatus(db, "device-2", "error", &msg))
	states, err := GetAllSyncStates(db)
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, "device-2", states[1].DeviceID)
	require.NotNil(t, states[1].ErrorMessage)
	assert.Equal(t, "disk full", *states[1].ErrorMessage)
}
