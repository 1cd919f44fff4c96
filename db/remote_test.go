// ABOUTME: Tests for the SQLite-backed sync remote
// ABOUTME: Covers sign-in events, ownership policy and absent rows
package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/studysync/models"
)

func TestRemoteSignIn(t *testing.T) {
	db := openTestDB(t)
	u, err := CreateUser(db, "a@example.com", "pw")
	require.NoError(t, err)

	r := NewRemote(db, "device-1")
	var events []models.AuthEvent
	r.SubscribeAuth(func(ev models.AuthEvent) { events = append(events, ev) })

	_, err = r.SignIn(context.Background(), "a@example.com", "bad")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNotAuthenticated)

	user, err := r.SignIn(context.Background(), "a@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, u.ID, user.ID)
	require.Len(t, events, 1)
	assert.Equal(t, models.AuthSignedIn, events[0].Kind)

	current, err := r.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, u.ID, current.ID)

	require.NoError(t, r.SignOut(context.Background()))
	current, err = r.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Nil(t, current)
	assert.Equal(t, models.AuthSignedOut, events[1].Kind)
}

func TestRemoteResume(t *testing.T) {
	db := openTestDB(t)
	u, err := CreateUser(db, "a@example.com", "pw")
	require.NoError(t, err)

	r := NewRemote(db, "device-1")
	require.NoError(t, r.Resume(u.ID))
	current, err := r.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, u.ID, current.ID)

	assert.ErrorIs(t, r.Resume("missing"), ErrUserNotFound)
}

func TestRemoteRequiresSignIn(t *testing.T) {
	db := openTestDB(t)
	r := NewRemote(db, "device-1")

	err := r.UpsertProfile(context.Background(), models.Profile{ID: "u"})
	assert.ErrorIs(t, err, models.ErrNotAuthenticated)
}

func TestRemoteRejectsForeignRows(t *testing.T) {
	db := openTestDB(t)
	a, err := CreateUser(db, "a@example.com", "pw")
	require.NoError(t, err)
	b, err := CreateUser(db, "b@example.com", "pw")
	require.NoError(t, err)

	r := NewRemote(db, "device-1")
	require.NoError(t, r.Resume(a.ID))
	ctx := context.Background()

	err = r.UpsertProfile(ctx, models.Profile{ID: b.ID, UpdatedAt: "2026-01-01T00:00:00.000Z"})
	assert.ErrorIs(t, err, models.ErrPolicyViolation)
	err = r.UpsertProgress(ctx, models.ProgressRow{UserID: b.ID})
	assert.ErrorIs(t, err, models.ErrPolicyViolation)
	_, err = r.FetchProgress(ctx, b.ID)
	assert.ErrorIs(t, err, models.ErrPolicyViolation)
}

func TestRemoteProgressWithoutProfileIsPolicyViolation(t *testing.T) {
	db := openTestDB(t)
	a, err := CreateUser(db, "a@example.com", "pw")
	require.NoError(t, err)

	r := NewRemote(db, "device-1")
	require.NoError(t, r.Resume(a.ID))

	err = r.UpsertProgress(context.Background(), models.ProgressRow{
		UserID:    a.ID,
		Progress:  models.EmptyField(),
		Plan:      models.EmptyField(),
		Activity:  models.EmptyField(),
		UpdatedAt: "2026-01-01T00:00:00.000Z",
	})
	assert.ErrorIs(t, err, models.ErrPolicyViolation)
}

func TestRemoteRowsAndSyncState(t *testing.T) {
	db := openTestDB(t)
	a, err := CreateUser(db, "a@example.com", "pw")
	require.NoError(t, err)

	r := NewRemote(db, "device-1")
	require.NoError(t, r.Resume(a.ID))
	ctx := context.Background()

	row, err := r.FetchProgress(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, row, "absent row is not an error")

	require.NoError(t, r.UpsertProfile(ctx, models.Profile{ID: a.ID, UpdatedAt: "2026-01-01T00:00:00.000Z"}))
	require.NoError(t, r.UpsertProgress(ctx, models.ProgressRow{
		UserID:    a.ID,
		Progress:  models.SyncField{Data: map[string]any{"x": true}, UpdatedAt: "2026-01-01T00:00:00.000Z"},
		Plan:      models.EmptyField(),
		Activity:  models.EmptyField(),
		UpdatedAt: "2026-01-01T00:00:00.000Z",
	}))
	require.NoError(t, r.UpsertLeaderboard(ctx, models.LeaderboardRow{UserID: a.ID, CompletedCount: 1, UpdatedAt: "2026-01-01T00:00:00.000Z"}))

	row, err = r.FetchProgress(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, map[string]any{"x": true}, row.Progress.Data)

	state, err := GetSyncState(db, "device-1")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.NotNil(t, state.LastPushTime)
	assert.NotNil(t, state.LastPullTime)

	assert.NoError(t, r.Ping(ctx))
}
