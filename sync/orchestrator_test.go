// ABOUTME: Tests for the sync orchestrator against an in-memory fake remote
// ABOUTME: Covers preconditions, single-flight, offline queueing, error taxonomy and auth resync
package sync

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/studysync/kvstore"
	"github.com/harperreed/studysync/models"
)

type fakeRemote struct {
	mu       gosync.Mutex
	user      *models.User
	userErr   error
	userCalls int
	rows     map[string]models.ProgressRow
	profiles []models.Profile
	boards   []models.LeaderboardRow
	calls    []string

	profileErr  error
	progressErr error
	fetchErr    error
	boardErr    error

	// When set, UpsertProfile signals entered and waits for release.
	entered chan struct{}
	release chan struct{}

	feed *models.AuthFeed
}

func newFakeRemote(user *models.User) *fakeRemote {
	return &fakeRemote{
		user: user,
		rows: make(map[string]models.ProgressRow),
		feed: models.NewAuthFeed(),
	}
}

func (f *fakeRemote) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeRemote) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRemote) count(call string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeRemote) sessionLookups() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userCalls
}

func (f *fakeRemote) CurrentUser(ctx context.Context) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userCalls++
	if f.userErr != nil {
		return nil, f.userErr
	}
	if f.user == nil {
		return nil, nil
	}
	u := *f.user
	return &u, nil
}

func (f *fakeRemote) UpsertProfile(ctx context.Context, p models.Profile) error {
	f.record("profile")
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.profileErr != nil {
		return f.profileErr
	}
	f.profiles = append(f.profiles, p)
	return nil
}

func (f *fakeRemote) UpsertProgress(ctx context.Context, row models.ProgressRow) error {
	f.record("progress")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.progressErr != nil {
		return f.progressErr
	}
	f.rows[row.UserID] = row
	return nil
}

func (f *fakeRemote) FetchProgress(ctx context.Context, userID string) (*models.ProgressRow, error) {
	f.record("fetch")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	row, ok := f.rows[userID]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (f *fakeRemote) UpsertLeaderboard(ctx context.Context, row models.LeaderboardRow) error {
	f.record("leaderboard")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.boardErr != nil {
		return f.boardErr
	}
	f.boards = append(f.boards, row)
	return nil
}

func (f *fakeRemote) SubscribeAuth(fn func(models.AuthEvent)) func() {
	return f.feed.Subscribe(fn)
}

var testUser = &models.User{ID: "user-1", Email: "learner@example.com"}

func testConfig() *Config {
	return &Config{Remote: RemoteCharm, DeviceID: "device-1", KeyPrefix: DefaultKeyPrefix}
}

type harness struct {
	orch   *Orchestrator
	remote *fakeRemote
	conn   *StaticConnectivity
	store  kvstore.Store
}

func newHarness(t *testing.T, user *models.User) *harness {
	t.Helper()
	remote := newFakeRemote(user)
	conn := NewStaticConnectivity(true)
	store := kvstore.NewMemory()
	orch := New(Options{
		Config:       testConfig(),
		Remote:       remote,
		Store:        store,
		Connectivity: conn,
	})
	if user != nil {
		orch.setUser(user)
	}
	return &harness{orch: orch, remote: remote, conn: conn, store: store}
}

func auditActions(o *Orchestrator) []string {
	var actions []string
	for _, e := range o.Audit().Entries() {
		actions = append(actions, e.Action)
	}
	return actions
}

func connectivityErr() error {
	return &models.RemoteError{Op: "test", Kind: models.RemoteConnectivity, Err: errors.New("connection refused")}
}

func TestPushSkipsWhenNotConfigured(t *testing.T) {
	orch := New(Options{Config: &Config{}, Remote: newFakeRemote(testUser), Store: kvstore.NewMemory()})

	res := orch.PushToRemote(context.Background(), TriggerManual)
	assert.False(t, res.OK)
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Equal(t, CodeNotConfigured, res.Reason)
}

func TestPushSkipsWithoutRemote(t *testing.T) {
	orch := New(Options{Config: testConfig(), Store: kvstore.NewMemory()})

	res := orch.PushToRemote(context.Background(), TriggerManual)
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Equal(t, CodeClientUnavailable, res.Reason)
}

func TestPushSkipsWhenSignedOut(t *testing.T) {
	h := newHarness(t, nil)

	res := h.orch.PushToRemote(context.Background(), TriggerManual)
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Equal(t, CodeNotLoggedIn, res.Reason)
	assert.Empty(t, h.remote.Calls())
}

func TestPushWritesRowsInOrder(t *testing.T) {
	h := newHarness(t, testUser)
	h.orch.Local().SetField(models.FieldProgress, map[string]any{"lesson-1": true, "lesson-2": false})
	h.orch.Queue().Enqueue(CodeOffline, nil)

	res := h.orch.PushToRemote(context.Background(), TriggerManual)
	require.True(t, res.OK, "push failed: %+v", res)
	assert.Equal(t, StatusOK, res.Status)
	assert.NotEmpty(t, res.SyncedAt)
	assert.Empty(t, res.Warnings)

	assert.Equal(t, []string{"profile", "progress", "leaderboard"}, h.remote.Calls())
	row := h.remote.rows[testUser.ID]
	assert.Equal(t, res.SyncedAt, row.UpdatedAt)
	assert.Equal(t, map[string]any{"lesson-1": true, "lesson-2": false}, row.Progress.Data)
	require.Len(t, h.remote.boards, 1)
	assert.Equal(t, 1, h.remote.boards[0].CompletedCount)

	assert.Equal(t, 0, h.orch.Queue().Len(), "successful push clears the queue")
	assert.Equal(t, res.SyncedAt, h.orch.Local().LastSyncedAt())
	assert.Contains(t, auditActions(h.orch), ActionPush)
}

func TestPushOfflineQueues(t *testing.T) {
	h := newHarness(t, testUser)
	h.conn.SetOnline(false)

	res := h.orch.PushToRemote(context.Background(), TriggerManual)
	assert.False(t, res.OK)
	assert.Equal(t, StatusQueued, res.Status)
	assert.Equal(t, CodeOffline, res.Reason)
	assert.Empty(t, h.remote.Calls(), "offline push must not reach the remote")
	assert.Zero(t, h.remote.sessionLookups(), "offline push uses the cached identity")
	assert.Equal(t, 1, h.orch.Queue().Len())
	assert.Contains(t, auditActions(h.orch), ActionQueued)
}

func TestFlushAfterReconnect(t *testing.T) {
	h := newHarness(t, testUser)
	h.conn.SetOnline(false)
	h.orch.PushToRemote(context.Background(), TriggerManual)
	require.Equal(t, 1, h.orch.Queue().Len())

	offline := h.orch.FlushRetryQueue(context.Background())
	assert.Equal(t, StatusQueued, offline.Status)
	assert.Equal(t, 1, h.orch.Queue().Len(), "offline flush does not grow the queue")

	h.conn.SetOnline(true)
	res := h.orch.FlushRetryQueue(context.Background())
	require.True(t, res.OK, "flush failed: %+v", res)
	assert.Equal(t, OpFlush, res.Op)
	assert.Equal(t, TriggerRetry, res.Trigger)
	assert.Equal(t, 0, h.orch.Queue().Len())
	assert.Contains(t, h.remote.rows, testUser.ID)
}

func TestFlushEmptyQueueSkips(t *testing.T) {
	h := newHarness(t, testUser)

	res := h.orch.FlushRetryQueue(context.Background())
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Equal(t, CodeQueueEmpty, res.Reason)
	assert.Empty(t, h.remote.Calls())
}

func TestRetryQueueIsBounded(t *testing.T) {
	h := newHarness(t, testUser)
	h.conn.SetOnline(false)

	for i := 0; i < DefaultRetryCap+5; i++ {
		h.orch.PushToRemote(context.Background(), TriggerPeriodic)
	}
	assert.Equal(t, DefaultRetryCap, h.orch.Queue().Len())
}

func TestSingleFlight(t *testing.T) {
	h := newHarness(t, testUser)
	h.remote.entered = make(chan struct{})
	h.remote.release = make(chan struct{})

	done := make(chan SyncResult)
	go func() {
		done <- h.orch.PushToRemote(context.Background(), TriggerManual)
	}()
	<-h.remote.entered

	second := h.orch.PushToRemote(context.Background(), TriggerPeriodic)
	assert.Equal(t, StatusSkipped, second.Status)
	assert.Equal(t, CodeInFlight, second.Reason)

	pull := h.orch.PullFromRemote(context.Background())
	assert.Equal(t, CodeInFlight, pull.Reason, "pull shares the guard")

	close(h.remote.release)
	first := <-done
	assert.True(t, first.OK)
	assert.Equal(t, 1, h.remote.count("profile"))
	assert.Equal(t, 1, h.remote.sessionLookups(), "coalesced callers never reach the remote")

	h.remote.entered = nil
	assert.True(t, h.orch.PushToRemote(context.Background(), TriggerManual).OK, "guard is released")
}

func TestPushPolicyViolation(t *testing.T) {
	h := newHarness(t, testUser)
	h.remote.profileErr = &models.RemoteError{Op: "upsert profile", Status: 403, Kind: models.RemotePolicy, Err: errors.New("forbidden")}

	res := h.orch.PushToRemote(context.Background(), TriggerManual)
	assert.Equal(t, StatusError, res.Status)
	require.NotNil(t, res.Error)
	assert.Equal(t, CodePolicyViolation, res.Error.Code)
	assert.Equal(t, 0, h.orch.Queue().Len(), "policy violations are not retried")
	assert.NotContains(t, h.remote.Calls(), "progress")

	entries := h.orch.Audit().Entries()
	require.NotEmpty(t, entries)
	last := entries[len(entries)-1]
	assert.Equal(t, ActionPolicyViolation, last.Action)
	assert.Equal(t, models.SeverityCritical, last.Severity)
}

func TestPushProfileFailure(t *testing.T) {
	h := newHarness(t, testUser)
	h.remote.profileErr = errors.New("boom")

	res := h.orch.PushToRemote(context.Background(), TriggerManual)
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, CodeProfileUpsertFailed, res.Reason)
	assert.Equal(t, 0, h.orch.Queue().Len())
}

func TestPushProgressConnectivityQueues(t *testing.T) {
	h := newHarness(t, testUser)
	h.remote.progressErr = connectivityErr()

	res := h.orch.PushToRemote(context.Background(), TriggerManual)
	assert.Equal(t, StatusQueued, res.Status)
	assert.Equal(t, CodeNetwork, res.Reason)
	require.NotNil(t, res.Error)
	assert.Equal(t, CodeNetwork, res.Error.Code)
	assert.Equal(t, 1, h.orch.Queue().Len())
	assert.Empty(t, h.orch.Local().LastSyncedAt())
}

func TestPushUnauthorizedIsNotQueued(t *testing.T) {
	h := newHarness(t, testUser)
	h.remote.progressErr = &models.RemoteError{Op: "upsert progress", Status: 401, Kind: models.RemoteUnauthorized, Err: errors.New("expired")}

	res := h.orch.PushToRemote(context.Background(), TriggerManual)
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, CodeUnauthorized, res.Reason)
	assert.Equal(t, 0, h.orch.Queue().Len())
}

func TestPushLeaderboardFailureIsWarning(t *testing.T) {
	h := newHarness(t, testUser)
	h.remote.boardErr = errors.New("leaderboard table missing")

	res := h.orch.PushToRemote(context.Background(), TriggerManual)
	assert.True(t, res.OK)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "leaderboard")
	assert.NotEmpty(t, h.orch.Local().LastSyncedAt())
}

func TestPullMergesRemoteRow(t *testing.T) {
	h := newHarness(t, testUser)
	h.orch.Local().writeField(models.FieldProgress, models.SyncField{
		Data:      map[string]any{"a": float64(1)},
		UpdatedAt: "2026-01-01T00:00:00.000Z",
	})
	h.remote.rows[testUser.ID] = models.ProgressRow{
		UserID:    testUser.ID,
		Progress:  models.SyncField{Data: map[string]any{"b": float64(2)}, UpdatedAt: "2026-01-02T00:00:00.000Z"},
		Plan:      models.EmptyField(),
		Activity:  models.EmptyField(),
		UpdatedAt: "2026-01-02T00:00:00.000Z",
	}

	res := h.orch.PullFromRemote(context.Background())
	require.True(t, res.OK, "pull failed: %+v", res)
	assert.Equal(t, OpPull, res.Op)

	got := h.orch.Local().Field(models.FieldProgress)
	assert.Equal(t, map[string]any{"a": float64(1), "b": float64(2)}, got.Data)
	assert.Equal(t, "2026-01-02T00:00:00.000Z", got.UpdatedAt)
	assert.Equal(t, res.SyncedAt, h.orch.Local().LastSyncedAt())
	assert.Contains(t, auditActions(h.orch), ActionPull)
}

func TestPullWithoutRemoteRow(t *testing.T) {
	h := newHarness(t, testUser)
	h.orch.Local().SetField(models.FieldPlan, map[string]any{"goal": "daily"})

	res := h.orch.PullFromRemote(context.Background())
	require.True(t, res.OK)
	assert.Equal(t, map[string]any{"goal": "daily"}, h.orch.Local().Field(models.FieldPlan).Data)
}

func TestPullConnectivityIsNotQueued(t *testing.T) {
	h := newHarness(t, testUser)
	h.remote.fetchErr = connectivityErr()

	res := h.orch.PullFromRemote(context.Background())
	assert.False(t, res.OK)
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, CodeNetwork, res.Reason)
	assert.Equal(t, 0, h.orch.Queue().Len())
	assert.NotContains(t, auditActions(h.orch), ActionQueued)
	assert.Empty(t, h.orch.Local().LastSyncedAt())
}

func TestPullFetchFailure(t *testing.T) {
	h := newHarness(t, testUser)
	h.remote.fetchErr = &models.RemoteError{Op: "fetch progress", Status: 500, Kind: models.RemoteServer, Err: errors.New("internal")}

	res := h.orch.PullFromRemote(context.Background())
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, CodeFetchFailed, res.Reason)
}

func TestSessionLookupFailureIsReported(t *testing.T) {
	h := newHarness(t, testUser)
	h.remote.userErr = &models.RemoteError{Op: "get user", Status: 500, Kind: models.RemoteServer, Err: errors.New("internal")}

	res := h.orch.PushToRemote(context.Background(), TriggerManual)
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, CodeSessionCheckFailed, res.Reason)
	require.NotNil(t, res.Error)
	assert.Contains(t, res.Error.Message, "internal")
	assert.Equal(t, 0, h.orch.Queue().Len())
	assert.Empty(t, h.remote.Calls())
	assert.True(t, h.orch.AuthState().LoggedIn, "a server fault does not sign the user out")

	h.remote.mu.Lock()
	h.remote.userErr = nil
	h.remote.mu.Unlock()
	assert.True(t, h.orch.PushToRemote(context.Background(), TriggerManual).OK, "guard is released")
}

func TestSessionLookupUnauthorizedIsNotLoggedIn(t *testing.T) {
	h := newHarness(t, testUser)
	h.remote.userErr = &models.RemoteError{Op: "get user", Status: 401, Kind: models.RemoteUnauthorized, Err: errors.New("expired")}

	res := h.orch.PushToRemote(context.Background(), TriggerManual)
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Equal(t, CodeNotLoggedIn, res.Reason)
}

func TestCachedUserUsedWhenRemoteUnreachable(t *testing.T) {
	h := newHarness(t, testUser)
	require.True(t, h.orch.PushToRemote(context.Background(), TriggerManual).OK)

	h.remote.mu.Lock()
	h.remote.userErr = connectivityErr()
	h.remote.mu.Unlock()
	h.conn.SetOnline(false)

	res := h.orch.PushToRemote(context.Background(), TriggerManual)
	assert.Equal(t, StatusQueued, res.Status, "cached identity lets the push queue")
	assert.Equal(t, CodeOffline, res.Reason)
}

func TestCachedUserSurvivesRestart(t *testing.T) {
	h := newHarness(t, testUser)
	require.True(t, h.orch.PushToRemote(context.Background(), TriggerManual).OK)

	again := New(Options{Config: testConfig(), Remote: h.remote, Store: h.store})
	state := again.AuthState()
	assert.True(t, state.LoggedIn)
	require.NotNil(t, state.User)
	assert.Equal(t, testUser.ID, state.User.ID)
	assert.NotEmpty(t, state.LastSyncedAt)
}

func TestSignInRunsPullPushFlush(t *testing.T) {
	h := newHarness(t, testUser)

	var states []models.AuthState
	unsubscribe := h.orch.Subscribe(func(s models.AuthState) { states = append(states, s) })
	defer unsubscribe()

	results := h.orch.HandleAuthEvent(context.Background(), models.AuthEvent{Kind: models.AuthSignedIn, User: testUser})
	require.Len(t, results, 3)
	assert.Equal(t, OpPull, results[0].Op)
	assert.Equal(t, OpPush, results[1].Op)
	assert.Equal(t, OpFlush, results[2].Op)
	assert.True(t, results[0].OK)
	assert.True(t, results[1].OK)
	assert.Equal(t, CodeQueueEmpty, results[2].Reason)
	for _, r := range results {
		assert.Equal(t, TriggerAuth, r.Trigger)
	}

	assert.Equal(t, []string{"fetch", "profile", "progress", "leaderboard"}, h.remote.Calls())

	require.NotEmpty(t, states)
	assert.True(t, states[0].LoggedIn)
	assert.NotEmpty(t, states[len(states)-1].LastSyncedAt)
	assert.Contains(t, auditActions(h.orch), ActionSignedIn)
}

func TestSignInFlushesQueuedWork(t *testing.T) {
	h := newHarness(t, testUser)
	h.orch.Queue().Enqueue(CodeOffline, nil)
	h.remote.progressErr = connectivityErr()

	results := h.orch.HandleAuthEvent(context.Background(), models.AuthEvent{Kind: models.AuthSessionRestore, User: testUser})
	require.Len(t, results, 3)
	assert.Equal(t, StatusQueued, results[1].Status)
	assert.Equal(t, StatusQueued, results[2].Status)
	assert.NotContains(t, auditActions(h.orch), ActionSignedIn, "restored sessions are not new sign-ins")
}

func TestSignInHoldsPushWhenPullFails(t *testing.T) {
	tests := []struct {
		name     string
		fetchErr error
		reason   string
	}{
		{
			name:     "server error",
			fetchErr: &models.RemoteError{Op: "fetch progress", Status: 500, Kind: models.RemoteServer, Err: errors.New("internal")},
			reason:   CodeFetchFailed,
		},
		{
			name:     "unreachable",
			fetchErr: connectivityErr(),
			reason:   CodeNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testUser)
			h.orch.Local().writeField(models.FieldProgress, models.SyncField{
				Data:      map[string]any{"a": float64(1)},
				UpdatedAt: "2026-01-01T00:00:00.000Z",
			})
			h.orch.Queue().Enqueue(CodeOffline, nil)
			h.remote.rows[testUser.ID] = models.ProgressRow{
				UserID:    testUser.ID,
				Progress:  models.SyncField{Data: map[string]any{"remoteOnly": float64(7)}, UpdatedAt: "2026-01-02T00:00:00.000Z"},
				Plan:      models.EmptyField(),
				Activity:  models.EmptyField(),
				UpdatedAt: "2026-01-02T00:00:00.000Z",
			}
			h.remote.fetchErr = tt.fetchErr

			results := h.orch.HandleAuthEvent(context.Background(), models.AuthEvent{Kind: models.AuthSignedIn, User: testUser})
			require.Len(t, results, 3)
			assert.Equal(t, StatusError, results[0].Status)
			assert.Equal(t, tt.reason, results[0].Reason)
			assert.Equal(t, OpPush, results[1].Op)
			assert.Equal(t, StatusSkipped, results[1].Status)
			assert.Equal(t, CodePullFailed, results[1].Reason)
			assert.Equal(t, OpFlush, results[2].Op)
			assert.Equal(t, CodePullFailed, results[2].Reason)

			assert.Equal(t, []string{"fetch"}, h.remote.Calls())
			assert.Equal(t, map[string]any{"remoteOnly": float64(7)}, h.remote.rows[testUser.ID].Progress.Data)
			assert.Equal(t, 1, h.orch.Queue().Len(), "queued work waits for a successful pull")
		})
	}
}

func TestSignOutClearsIdentity(t *testing.T) {
	h := newHarness(t, testUser)
	h.orch.HandleAuthEvent(context.Background(), models.AuthEvent{Kind: models.AuthSignedIn, User: testUser})

	var last models.AuthState
	h.orch.Subscribe(func(s models.AuthState) { last = s })

	h.remote.mu.Lock()
	h.remote.user = nil
	h.remote.mu.Unlock()

	results := h.orch.HandleAuthEvent(context.Background(), models.AuthEvent{Kind: models.AuthSignedOut})
	assert.Nil(t, results)
	assert.False(t, last.LoggedIn)
	assert.Nil(t, last.User)
	assert.False(t, h.orch.Local().AuthStatus().LoggedIn)
	assert.Contains(t, auditActions(h.orch), ActionSignedOut)

	res := h.orch.PushToRemote(context.Background(), TriggerManual)
	assert.Equal(t, CodeNotLoggedIn, res.Reason)
}

func TestAuditChainStaysValid(t *testing.T) {
	h := newHarness(t, testUser)
	h.orch.HandleAuthEvent(context.Background(), models.AuthEvent{Kind: models.AuthSignedIn, User: testUser})
	h.conn.SetOnline(false)
	h.orch.PushToRemote(context.Background(), TriggerManual)

	status := h.orch.Status()
	assert.True(t, status.Audit.OK)
	assert.Equal(t, len(h.orch.Audit().Entries()), status.Audit.Total)
	assert.Equal(t, 1, status.QueueDepth)
	assert.False(t, status.Online)
	assert.True(t, status.LoggedIn)
}

func TestSchedulerRestoresSessionAndPushes(t *testing.T) {
	h := newHarness(t, testUser)
	h.orch.cfg.AutoSync = true
	h.orch.cfg.SyncInterval = "20ms"
	h.orch.cfg.RetryInterval = "20ms"

	h.orch.Start(context.Background())
	defer h.orch.Stop()

	assert.Eventually(t, func() bool {
		return h.remote.count("fetch") >= 1 && h.remote.count("progress") >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchedulerFlushesOnReconnect(t *testing.T) {
	h := newHarness(t, nil)
	h.orch.cfg.AutoSync = false

	h.orch.Start(context.Background())
	defer h.orch.Stop()

	h.remote.mu.Lock()
	h.remote.user = testUser
	h.remote.mu.Unlock()
	h.orch.setUser(testUser)
	h.conn.SetOnline(false)
	res := h.orch.PushToRemote(context.Background(), TriggerManual)
	require.Equal(t, StatusQueued, res.Status)

	h.conn.SetOnline(true)
	assert.Eventually(t, func() bool {
		return h.orch.Queue().Len() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchedulerReactsToRemoteAuthEvents(t *testing.T) {
	h := newHarness(t, nil)
	h.orch.cfg.AutoSync = false

	h.orch.Start(context.Background())
	defer h.orch.Stop()

	h.remote.mu.Lock()
	h.remote.user = testUser
	h.remote.mu.Unlock()
	h.remote.feed.Publish(models.AuthEvent{Kind: models.AuthSignedIn, User: testUser})

	assert.Eventually(t, func() bool {
		return h.remote.count("progress") == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, h.orch.AuthState().LoggedIn)
}

func TestStopIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	h.orch.Start(context.Background())
	h.orch.Stop()
	h.orch.Stop()
}
