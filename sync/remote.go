// ABOUTME: Remote backend contract used by the orchestrator
// ABOUTME: Profile, progress and leaderboard rows plus identity and auth events
package sync

import (
	"context"

	"github.com/harperreed/studysync/models"
)

// Remote is the narrow operation set the orchestrator needs from a backend.
// Implementations return *models.RemoteError (or wrap the models sentinels)
// so failures can be classified.
type Remote interface {
	// CurrentUser returns the signed-in user, or nil when signed out.
	CurrentUser(ctx context.Context) (*models.User, error)
	UpsertProfile(ctx context.Context, p models.Profile) error
	UpsertProgress(ctx context.Context, row models.ProgressRow) error
	// FetchProgress returns nil, nil when the user has no row yet.
	FetchProgress(ctx context.Context, userID string) (*models.ProgressRow, error)
	UpsertLeaderboard(ctx context.Context, row models.LeaderboardRow) error
	SubscribeAuth(fn func(models.AuthEvent)) (unsubscribe func())
}
