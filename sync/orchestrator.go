// ABOUTME: Sync orchestrator coordinating local state, remote backend and retry queue
// ABOUTME: Single-flight push/pull/flush with classified outcomes and audit records
package sync

import (
	"context"
	"errors"
	gosync "sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/harperreed/studysync/audit"
	"github.com/harperreed/studysync/kvstore"
	"github.com/harperreed/studysync/logging"
	"github.com/harperreed/studysync/merge"
	"github.com/harperreed/studysync/models"
)

// Audit actions recorded by the orchestrator.
const (
	ActionPush            = "sync.push"
	ActionPull            = "sync.pull"
	ActionQueued          = "sync.queued"
	ActionFailed          = "sync.failed"
	ActionPolicyViolation = "sync.policy_violation"
	ActionSignedIn        = "auth.signed_in"
	ActionSignedOut       = "auth.signed_out"
)

// Options wires an Orchestrator. Store is required; everything else has a default.
type Options struct {
	Config       *Config
	Remote       Remote
	Store        kvstore.Store
	Audit        *audit.Log
	Connectivity Connectivity
	Logger       *zap.Logger
	Now          func() time.Time
	RetryCap     int
}

// Orchestrator runs synchronization for one device and one user.
type Orchestrator struct {
	cfg    *Config
	remote Remote
	local  *LocalState
	queue  *RetryQueue
	audit  *audit.Log
	conn   Connectivity
	logger *zap.Logger
	now    func() time.Time

	inFlight atomic.Bool
	authMu   gosync.Mutex

	userMu gosync.RWMutex
	user   *models.User

	state *models.Feed[models.AuthState]

	runMu       gosync.Mutex
	cancel      context.CancelFunc
	unsubscribe func()
	spawnMu     gosync.Mutex
	stopped     bool
	wg          gosync.WaitGroup
}

// New builds an orchestrator from its collaborators.
func New(opts Options) *Orchestrator {
	logger := logging.OrNop(opts.Logger)
	store := opts.Store
	if store == nil {
		store = kvstore.NewMemory()
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = &Config{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	conn := opts.Connectivity
	if conn == nil {
		conn = NewStaticConnectivity(true)
	}
	auditLog := opts.Audit
	if auditLog == nil {
		auditLog = audit.New(store, audit.Options{Logger: logger})
	}

	local := NewLocalState(store, logger)
	local.now = now
	queue := NewRetryQueue(store, opts.RetryCap, logger)
	queue.now = now

	o := &Orchestrator{
		cfg:    cfg,
		remote: opts.Remote,
		local:  local,
		queue:  queue,
		audit:  auditLog,
		conn:   conn,
		logger: logger,
		now:    now,
		state:  models.NewFeed[models.AuthState](),
	}
	if cached := local.AuthStatus(); cached.LoggedIn {
		o.user = cached.User
	}
	return o
}

// Local returns the device-resident state.
func (o *Orchestrator) Local() *LocalState { return o.local }

// Queue returns the retry queue.
func (o *Orchestrator) Queue() *RetryQueue { return o.queue }

// Audit returns the audit log.
func (o *Orchestrator) Audit() *audit.Log { return o.audit }

// Config returns the configuration in use.
func (o *Orchestrator) Config() *Config { return o.cfg }

// Subscribe registers a listener for sign-in and last-synced changes.
func (o *Orchestrator) Subscribe(fn func(models.AuthState)) func() {
	return o.state.Subscribe(fn)
}

// AuthState returns the current sign-in state.
func (o *Orchestrator) AuthState() models.AuthState {
	u := o.cachedUser()
	return models.AuthState{
		LoggedIn:     u != nil,
		User:         u,
		LastSyncedAt: o.local.LastSyncedAt(),
	}
}

// StatusReport summarizes the orchestrator for display.
type StatusReport struct {
	models.AuthState
	Configured bool                `json:"configured"`
	Remote     string              `json:"remote"`
	Online     bool                `json:"online"`
	InFlight   bool                `json:"inFlight"`
	QueueDepth int                 `json:"queueDepth"`
	Audit      models.VerifyResult `json:"audit"`
}

// Status reports the current state without touching the remote.
func (o *Orchestrator) Status() StatusReport {
	return StatusReport{
		AuthState:  o.AuthState(),
		Configured: o.cfg.IsConfigured(),
		Remote:     o.cfg.Remote,
		Online:     o.conn.Online(),
		InFlight:   o.inFlight.Load(),
		QueueDepth: o.queue.Len(),
		Audit:      o.audit.Verify(),
	}
}

// PushToRemote sends the local snapshot to the remote.
func (o *Orchestrator) PushToRemote(ctx context.Context, trigger string) SyncResult {
	if trigger == "" {
		trigger = TriggerManual
	}
	user, res, ok := o.acquire(ctx, OpPush, trigger)
	if !ok {
		return res
	}
	defer o.inFlight.Store(false)

	return o.push(ctx, OpPush, trigger, user)
}

// PullFromRemote fetches the remote row, merges it with local state and
// applies the result locally.
func (o *Orchestrator) PullFromRemote(ctx context.Context) SyncResult {
	return o.pull(ctx, TriggerManual)
}

// FlushRetryQueue retries a deferred sync. Success drops the whole queue.
func (o *Orchestrator) FlushRetryQueue(ctx context.Context) SyncResult {
	return o.flush(ctx, TriggerRetry)
}

func (o *Orchestrator) flush(ctx context.Context, trigger string) SyncResult {
	user, res, ok := o.acquire(ctx, OpFlush, trigger)
	if !ok {
		return res
	}
	defer o.inFlight.Store(false)

	if o.queue.Len() == 0 {
		return skipped(OpFlush, trigger, CodeQueueEmpty)
	}
	return o.push(ctx, OpFlush, trigger, user)
}

// acquire checks the preconditions shared by every operation and takes the
// single-flight guard before anything talks to the remote. The caller
// releases the guard when ok is true.
func (o *Orchestrator) acquire(ctx context.Context, op, trigger string) (*models.User, SyncResult, bool) {
	var res SyncResult
	switch {
	case !o.cfg.IsConfigured():
		res = skipped(op, trigger, CodeNotConfigured)
	case o.remote == nil:
		res = skipped(op, trigger, CodeClientUnavailable)
	}
	if res.Status != "" {
		o.logger.Debug("sync skipped", zap.String("op", op), zap.String("reason", res.Reason))
		return nil, res, false
	}

	if !o.inFlight.CompareAndSwap(false, true) {
		o.logger.Debug("sync already in flight", zap.String("op", op), zap.String("trigger", trigger))
		return nil, skipped(op, trigger, CodeInFlight), false
	}

	user, err := o.resolveUser(ctx)
	if err != nil {
		o.inFlight.Store(false)
		return nil, o.failure(op, trigger, CodeSessionCheckFailed, "session", "", err), false
	}
	if user == nil {
		o.inFlight.Store(false)
		return nil, skipped(op, trigger, CodeNotLoggedIn), false
	}
	return user, SyncResult{}, true
}

func (o *Orchestrator) push(ctx context.Context, op, trigger string, user *models.User) SyncResult {
	if !o.conn.Online() {
		if op != OpFlush {
			o.enqueue(CodeOffline, trigger, nil)
		}
		return queued(op, trigger, CodeOffline, nil)
	}

	snap := o.local.BuildLocalPayload()

	profile := models.Profile{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: o.displayName(user),
		UpdatedAt:   models.FormatTimestamp(o.now()),
	}
	if err := o.remote.UpsertProfile(ctx, profile); err != nil {
		return o.failure(op, trigger, CodeProfileUpsertFailed, "profile", user.ID, err)
	}

	syncedAt := models.FormatTimestamp(o.now())
	row := models.ProgressRowFromSnapshot(user.ID, snap, syncedAt)
	if err := o.remote.UpsertProgress(ctx, row); err != nil {
		return o.failure(op, trigger, CodeProgressUpsertFailed, "progress", user.ID, err)
	}

	var warnings []string
	board := DeriveLeaderboard(user.ID, o.displayName(user), snap, o.now())
	if err := o.remote.UpsertLeaderboard(ctx, board); err != nil {
		o.logger.Warn("leaderboard update failed", zap.String("user", user.ID), zap.Error(err))
		warnings = append(warnings, "leaderboard: "+err.Error())
	}

	o.queue.Clear()
	o.local.SetLastSyncedAt(syncedAt)
	o.record(ActionPush, "progress", user.ID, models.SeverityInfo, map[string]any{
		"op":       op,
		"trigger":  trigger,
		"fields":   len(snap.Fields),
		"warnings": len(warnings),
	})
	o.notify()

	o.logger.Info("push complete", zap.String("op", op), zap.String("trigger", trigger), zap.String("synced_at", syncedAt))
	return SyncResult{
		OK:       true,
		Op:       op,
		Status:   StatusOK,
		Warnings: warnings,
		SyncedAt: syncedAt,
		Trigger:  trigger,
	}
}

func (o *Orchestrator) pull(ctx context.Context, trigger string) SyncResult {
	user, res, ok := o.acquire(ctx, OpPull, trigger)
	if !ok {
		return res
	}
	defer o.inFlight.Store(false)

	row, err := o.remote.FetchProgress(ctx, user.ID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return o.failure(OpPull, trigger, CodeFetchFailed, "progress", user.ID, err)
	}

	remote := models.NewSnapshot()
	if row != nil {
		remote = row.Snapshot()
	}
	merged := merge.MergeData(o.local.BuildLocalPayload(), remote)
	o.local.ApplyReconciledPayload(merged)

	syncedAt := models.FormatTimestamp(o.now())
	o.local.SetLastSyncedAt(syncedAt)
	o.record(ActionPull, "progress", user.ID, models.SeverityInfo, map[string]any{
		"trigger":   trigger,
		"remoteRow": row != nil,
	})
	o.notify()

	o.logger.Info("pull complete", zap.String("trigger", trigger), zap.Bool("remote_row", row != nil))
	return SyncResult{OK: true, Op: OpPull, Status: StatusOK, SyncedAt: syncedAt, Trigger: trigger}
}

// failure converts a remote error into a result. Connectivity-shaped push
// errors are queued; a pull is reported and left for the next attempt.
func (o *Orchestrator) failure(op, trigger, code, resourceType, userID string, err error) SyncResult {
	switch {
	case IsPolicyViolation(err):
		o.logger.Error("remote rejected write", zap.String("op", op), zap.String("resource", resourceType), zap.Error(err))
		o.record(ActionPolicyViolation, resourceType, userID, models.SeverityCritical, map[string]any{
			"op":    op,
			"error": err.Error(),
		})
		return failed(op, trigger, CodePolicyViolation, err)

	case IsConnectivityError(err) && op == OpPull:
		o.logger.Info("remote unreachable, pull not applied", zap.Error(err))
		o.record(ActionFailed, resourceType, userID, models.SeverityWarning, map[string]any{
			"op":    op,
			"code":  CodeNetwork,
			"error": err.Error(),
		})
		return failed(op, trigger, CodeNetwork, err)

	case IsConnectivityError(err):
		o.logger.Info("remote unreachable, queued for retry", zap.String("op", op), zap.Error(err))
		if op != OpFlush {
			o.enqueue(CodeNetwork, trigger, err)
		}
		return queued(op, trigger, CodeNetwork, err)

	case IsUnauthorized(err):
		o.logger.Warn("remote session rejected", zap.String("op", op), zap.Error(err))
		o.record(ActionFailed, resourceType, userID, models.SeverityWarning, map[string]any{
			"op":    op,
			"code":  CodeUnauthorized,
			"error": err.Error(),
		})
		return failed(op, trigger, CodeUnauthorized, err)

	default:
		o.logger.Error("sync failed", zap.String("op", op), zap.String("code", code), zap.Error(err))
		o.record(ActionFailed, resourceType, userID, models.SeverityWarning, map[string]any{
			"op":    op,
			"code":  code,
			"error": err.Error(),
		})
		return failed(op, trigger, code, err)
	}
}

func (o *Orchestrator) enqueue(reason, trigger string, cause error) {
	payload := map[string]any{"trigger": trigger}
	if cause != nil {
		payload["error"] = cause.Error()
	}
	entry := o.queue.Enqueue(reason, payload)
	o.record(ActionQueued, "retry_queue", entry.ID, models.SeverityWarning, map[string]any{
		"reason":  reason,
		"trigger": trigger,
	})
}

// HandleAuthEvent reacts to an identity transition. Sign-in and session
// restore run pull, push and flush strictly in that order. Push and flush
// only run once the pull has been applied, so a stale local snapshot never
// replaces a remote row it has not seen.
func (o *Orchestrator) HandleAuthEvent(ctx context.Context, ev models.AuthEvent) []SyncResult {
	o.authMu.Lock()
	defer o.authMu.Unlock()

	switch ev.Kind {
	case models.AuthSignedIn, models.AuthSessionRestore:
		user := ev.User
		if user == nil && o.remote != nil {
			var err error
			user, err = o.resolveUser(ctx)
			if err != nil {
				return []SyncResult{o.failure(OpPull, TriggerAuth, CodeSessionCheckFailed, "session", "", err)}
			}
		}
		if user == nil {
			return nil
		}
		o.setUser(user)
		if ev.Kind == models.AuthSignedIn {
			o.record(ActionSignedIn, "session", user.ID, models.SeverityInfo, map[string]any{"email": user.Email})
		}
		o.notify()

		results := make([]SyncResult, 0, 3)
		pulled := o.pull(ctx, TriggerAuth)
		results = append(results, pulled)
		if pulled.Status != StatusOK {
			o.logger.Warn("pull not applied, holding local changes",
				zap.String("user", user.ID), zap.String("reason", pulled.Reason))
			return append(results,
				skipped(OpPush, TriggerAuth, CodePullFailed),
				skipped(OpFlush, TriggerAuth, CodePullFailed))
		}
		results = append(results, o.PushToRemote(ctx, TriggerAuth))
		results = append(results, o.flush(ctx, TriggerAuth))
		return results

	case models.AuthSignedOut:
		prev := o.cachedUser()
		o.setUser(nil)
		userID := ""
		if prev != nil {
			userID = prev.ID
		}
		o.record(ActionSignedOut, "session", userID, models.SeverityInfo, nil)
		o.notify()

	case models.AuthTokenRefreshed:
		if ev.User != nil {
			o.setUser(ev.User)
		}
		o.notify()
	}
	return nil
}

// resolveUser returns the signed-in identity, or nil when there is no
// session. Offline, or when the remote cannot be reached, the cached identity
// stands so pushes still queue. Other lookup failures are returned.
func (o *Orchestrator) resolveUser(ctx context.Context) (*models.User, error) {
	if !o.conn.Online() {
		return o.cachedUser(), nil
	}
	u, err := o.remote.CurrentUser(ctx)
	switch {
	case err == nil:
	case IsConnectivityError(err):
		return o.cachedUser(), nil
	case IsUnauthorized(err):
		o.logger.Debug("no remote session", zap.Error(err))
		u = nil
	default:
		o.logger.Warn("session lookup failed", zap.Error(err))
		return nil, err
	}
	if o.setUser(u) {
		o.notify()
	}
	return u, nil
}

func (o *Orchestrator) cachedUser() *models.User {
	o.userMu.RLock()
	defer o.userMu.RUnlock()
	if o.user == nil {
		return nil
	}
	u := *o.user
	return &u
}

// setUser updates the cached identity and reports whether it changed.
func (o *Orchestrator) setUser(u *models.User) bool {
	o.userMu.Lock()
	changed := (o.user == nil) != (u == nil) || (u != nil && o.user.ID != u.ID)
	if u != nil {
		copied := *u
		o.user = &copied
	} else {
		o.user = nil
	}
	o.userMu.Unlock()

	if changed {
		o.local.SetAuthStatus(models.AuthState{LoggedIn: u != nil, User: u})
	}
	return changed
}

func (o *Orchestrator) notify() {
	o.state.Publish(o.AuthState())
}

func (o *Orchestrator) displayName(u *models.User) string {
	if o.cfg.DisplayName != "" {
		return o.cfg.DisplayName
	}
	return u.Email
}

func (o *Orchestrator) record(action, resourceType, resourceID, severity string, details map[string]any) {
	if o.audit == nil {
		return
	}
	if _, err := o.audit.Append(action, resourceType, resourceID, severity, details); err != nil {
		o.logger.Warn("failed to append audit entry", zap.String("action", action), zap.Error(err))
	}
}
