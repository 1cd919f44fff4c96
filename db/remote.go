// ABOUTME: Sync remote backed directly by the SQLite row store
// ABOUTME: Enforces that a signed-in user only writes their own rows
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/harperreed/studysync/models"
)

// Remote adapts the row store to the sync orchestrator. It plays the role a
// hosted backend would: it knows who is signed in and rejects writes to other
// users' rows.
type Remote struct {
	db       *sql.DB
	deviceID string
	feed     *models.AuthFeed

	mu   sync.RWMutex
	user *models.User
}

// NewRemote wraps an open database for deviceID.
func NewRemote(db *sql.DB, deviceID string) *Remote {
	return &Remote{db: db, deviceID: deviceID, feed: models.NewAuthFeed()}
}

// Resume restores a previous sign-in without a password.
func (r *Remote) Resume(userID string) error {
	u, err := GetUser(r.db, userID)
	if err != nil {
		return err
	}
	r.setUser(&models.User{ID: u.ID, Email: u.Email})
	return nil
}

// SignIn checks credentials and announces the new identity.
func (r *Remote) SignIn(ctx context.Context, email, password string) (*models.User, error) {
	u, err := Authenticate(r.db, email, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return nil, &models.RemoteError{Op: "sign in", Kind: models.RemoteUnauthorized, Err: err}
		}
		return nil, r.wrap("sign in", err)
	}
	user := &models.User{ID: u.ID, Email: u.Email}
	r.setUser(user)
	r.feed.Publish(models.AuthEvent{Kind: models.AuthSignedIn, User: user})
	return user, nil
}

// SignOut forgets the identity and announces it.
func (r *Remote) SignOut(ctx context.Context) error {
	r.setUser(nil)
	r.feed.Publish(models.AuthEvent{Kind: models.AuthSignedOut})
	return nil
}

func (r *Remote) SubscribeAuth(fn func(models.AuthEvent)) func() {
	return r.feed.Subscribe(fn)
}

func (r *Remote) CurrentUser(ctx context.Context) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.user == nil {
		return nil, nil
	}
	u := *r.user
	return &u, nil
}

func (r *Remote) UpsertProfile(ctx context.Context, p models.Profile) error {
	if err := r.authorize("upsert profile", p.ID); err != nil {
		return err
	}
	if err := UpsertProfile(r.db, p); err != nil {
		return r.wrap("upsert profile", err)
	}
	return nil
}

func (r *Remote) UpsertProgress(ctx context.Context, row models.ProgressRow) error {
	if err := r.authorize("upsert progress", row.UserID); err != nil {
		return err
	}
	if err := UpsertProgress(r.db, row); err != nil {
		return r.wrap("upsert progress", err)
	}
	if err := RecordPush(r.db, r.deviceID, row.UserID); err != nil {
		return r.wrap("upsert progress", err)
	}
	return nil
}

func (r *Remote) FetchProgress(ctx context.Context, userID string) (*models.ProgressRow, error) {
	if err := r.authorize("fetch progress", userID); err != nil {
		return nil, err
	}
	row, err := GetProgress(r.db, userID)
	if errors.Is(err, ErrProgressNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, r.wrap("fetch progress", err)
	}
	if err := RecordPull(r.db, r.deviceID, userID); err != nil {
		return nil, r.wrap("fetch progress", err)
	}
	return row, nil
}

func (r *Remote) UpsertLeaderboard(ctx context.Context, row models.LeaderboardRow) error {
	if err := r.authorize("upsert leaderboard", row.UserID); err != nil {
		return err
	}
	if err := UpsertLeaderboard(r.db, row); err != nil {
		return r.wrap("upsert leaderboard", err)
	}
	return nil
}

// Ping checks the database connection.
func (r *Remote) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return &models.RemoteError{Op: "ping", Kind: models.RemoteConnectivity, Err: err}
	}
	return nil
}

func (r *Remote) authorize(op, ownerID string) error {
	r.mu.RLock()
	user := r.user
	r.mu.RUnlock()

	if user == nil {
		return &models.RemoteError{Op: op, Kind: models.RemoteUnauthorized, Err: models.ErrNotAuthenticated}
	}
	if ownerID != user.ID {
		return &models.RemoteError{
			Op:   op,
			Kind: models.RemotePolicy,
			Err:  fmt.Errorf("user %s cannot write rows owned by %s", user.ID, ownerID),
		}
	}
	return nil
}

func (r *Remote) setUser(u *models.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.user = u
}

// wrap classifies a storage failure. A locked or busy database is worth
// retrying; constraint failures are not.
func (r *Remote) wrap(op string, err error) error {
	kind := models.RemoteServer
	msg := err.Error()
	switch {
	case containsAny(msg, "database is locked", "busy", "unable to open"):
		kind = models.RemoteConnectivity
	case containsAny(msg, "FOREIGN KEY constraint failed"):
		kind = models.RemotePolicy
	}
	return &models.RemoteError{Op: op, Kind: kind, Err: err}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
