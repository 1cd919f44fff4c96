// ABOUTME: Tests for sync data models
// ABOUTME: Validates snapshot defaults, row conversion, auth feed and error classification
package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotFieldDefaults(t *testing.T) {
	s := NewSnapshot()
	f := s.Field(FieldPlan)

	assert.Equal(t, "", f.UpdatedAt)
	assert.Equal(t, map[string]any{}, f.Data)
}

func TestProgressRowRoundTrip(t *testing.T) {
	s := NewSnapshot()
	s.Fields[FieldProgress] = SyncField{Data: map[string]any{"m1": true}, UpdatedAt: "2026-01-02T00:00:00.000Z"}
	s.Fields[FieldActivity] = SyncField{Data: []any{"a"}, UpdatedAt: "2026-01-01T00:00:00.000Z"}

	row := ProgressRowFromSnapshot("u1", s, "2026-01-03T00:00:00.000Z")
	assert.Equal(t, "u1", row.UserID)
	assert.Equal(t, "", row.Plan.UpdatedAt)

	back := row.Snapshot()
	assert.Equal(t, s.Fields[FieldProgress], back.Fields[FieldProgress])
	assert.Equal(t, s.Fields[FieldActivity], back.Fields[FieldActivity])
	assert.Equal(t, "2026-01-03T00:00:00.000Z", back.UpdatedAt)
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 6_000_000, time.FixedZone("x", 3600))
	assert.Equal(t, "2026-01-02T02:04:05.006Z", FormatTimestamp(ts))
}

func TestAuthFeedSubscribeUnsubscribe(t *testing.T) {
	feed := NewAuthFeed()

	var got []AuthEventKind
	unsubA := feed.Subscribe(func(ev AuthEvent) { got = append(got, "a:"+ev.Kind) })
	feed.Subscribe(func(ev AuthEvent) { got = append(got, "b:"+ev.Kind) })
	require.Equal(t, 2, feed.Len())

	feed.Publish(AuthEvent{Kind: AuthSignedIn})
	unsubA()
	feed.Publish(AuthEvent{Kind: AuthSignedOut})

	assert.Equal(t, []AuthEventKind{"a:signed_in", "b:signed_in", "b:signed_out"}, got)
	assert.Equal(t, 1, feed.Len())
}

func TestRemoteErrorIs(t *testing.T) {
	policy := &RemoteError{Op: "upsert profile", Status: 403, Kind: RemotePolicy, Err: errors.New("denied")}
	wrapped := fmt.Errorf("failed to push: %w", policy)

	assert.True(t, errors.Is(wrapped, ErrPolicyViolation))
	assert.False(t, errors.Is(wrapped, ErrNotAuthenticated))
	assert.False(t, policy.Temporary())
	assert.Contains(t, policy.Error(), "status 403")

	var re *RemoteError
	require.True(t, errors.As(wrapped, &re))
	assert.Equal(t, RemotePolicy, re.Kind)

	offline := &RemoteError{Op: "fetch", Kind: RemoteConnectivity, Err: errors.New("dial tcp: refused")}
	assert.True(t, offline.Temporary())
	assert.Equal(t, "fetch: dial tcp: refused", offline.Error())
}
