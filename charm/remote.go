// ABOUTME: Sync remote storing study rows in Charm KV
// ABOUTME: Rows are JSON values under prefixed keys, published with kv.Sync

package charm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v3"

	"github.com/harperreed/studysync/models"
)

// Row key namespaces.
const (
	profilesNS    = "profiles/"
	progressNS    = "progress/"
	leaderboardNS = "leaderboard/"
)

// Remote keeps one user's rows in the charm KV store. The user is the
// charm account linked to this device's SSH key.
type Remote struct {
	client *Client
	feed   *models.AuthFeed

	mu   sync.RWMutex
	user *models.User
}

// NewRemote wraps a charm client.
func NewRemote(c *Client) *Remote {
	return &Remote{client: c, feed: models.NewAuthFeed()}
}

// Client returns the underlying charm client.
func (r *Remote) Client() *Client {
	return r.client
}

// Link resolves the charm account and announces it as signed in.
func (r *Remote) Link(ctx context.Context) (*models.User, error) {
	id, err := r.client.ID()
	if err != nil {
		return nil, &models.RemoteError{Op: "link", Kind: models.RemoteConnectivity, Err: err}
	}
	user := &models.User{ID: id}
	r.setUser(user)
	r.feed.Publish(models.AuthEvent{Kind: models.AuthSignedIn, User: user})
	return user, nil
}

// Unlink forgets the account for this process and announces it.
func (r *Remote) Unlink(ctx context.Context) {
	r.setUser(nil)
	r.feed.Publish(models.AuthEvent{Kind: models.AuthSignedOut})
}

func (r *Remote) SubscribeAuth(fn func(models.AuthEvent)) func() {
	return r.feed.Subscribe(fn)
}

// CurrentUser returns the linked account, resolving it on first use.
func (r *Remote) CurrentUser(ctx context.Context) (*models.User, error) {
	r.mu.RLock()
	user := r.user
	r.mu.RUnlock()
	if user != nil {
		u := *user
		return &u, nil
	}

	id, err := r.client.ID()
	if err != nil {
		return nil, &models.RemoteError{Op: "get user", Kind: models.RemoteConnectivity, Err: err}
	}
	user = &models.User{ID: id}
	r.setUser(user)
	u := *user
	return &u, nil
}

func (r *Remote) UpsertProfile(ctx context.Context, p models.Profile) error {
	return r.put("upsert profile", p.ID, profilesNS, p)
}

func (r *Remote) UpsertProgress(ctx context.Context, row models.ProgressRow) error {
	return r.put("upsert progress", row.UserID, progressNS, row)
}

func (r *Remote) UpsertLeaderboard(ctx context.Context, row models.LeaderboardRow) error {
	return r.put("upsert leaderboard", row.UserID, leaderboardNS, row)
}

// FetchProgress syncs to pick up other devices' writes, then reads the row.
func (r *Remote) FetchProgress(ctx context.Context, userID string) (*models.ProgressRow, error) {
	const op = "fetch progress"
	if err := r.authorize(op, userID); err != nil {
		return nil, err
	}
	if err := r.client.Sync(); err != nil {
		return nil, &models.RemoteError{Op: op, Kind: models.RemoteConnectivity, Err: err}
	}

	raw, err := r.client.Get(r.key(progressNS, userID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &models.RemoteError{Op: op, Kind: models.RemoteServer, Err: err}
	}

	var row models.ProgressRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, &models.RemoteError{Op: op, Kind: models.RemoteServer, Err: fmt.Errorf("failed to decode progress row: %w", err)}
	}
	return &row, nil
}

// Ping checks that the charm server answers a sync.
func (r *Remote) Ping(ctx context.Context) error {
	if err := r.client.Sync(); err != nil {
		return &models.RemoteError{Op: "ping", Kind: models.RemoteConnectivity, Err: err}
	}
	return nil
}

// put writes locally, then syncs. A failed sync leaves the write in the
// local charm store and is reported as a connectivity failure.
func (r *Remote) put(op, ownerID, ns string, v any) error {
	if err := r.authorize(op, ownerID); err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", op, err)
	}
	if err := r.client.Set(r.key(ns, ownerID), raw); err != nil {
		return &models.RemoteError{Op: op, Kind: models.RemoteServer, Err: err}
	}
	if err := r.client.Sync(); err != nil {
		return &models.RemoteError{Op: op, Kind: models.RemoteConnectivity, Err: err}
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
	if user.ID != ownerID {
		return &models.RemoteError{
			Op:   op,
			Kind: models.RemotePolicy,
			Err:  fmt.Errorf("account %s cannot write rows owned by %s", user.ID, ownerID),
		}
	}
	return nil
}

func (r *Remote) key(ns, id string) []byte {
	return []byte(r.client.Config().KeyPrefix + ns + id)
}

func (r *Remote) setUser(u *models.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.user = u
}
