// ABOUTME: Profile, progress and leaderboard row operations
// ABOUTME: Progress fields are stored as wrapped JSON columns, one row per user
package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/harperreed/studysync/models"
)

var (
	ErrProfileNotFound  = errors.New("profile not found")
	ErrProgressNotFound = errors.New("progress not found")
)

// UpsertProfile creates or replaces a profile row.
func UpsertProfile(db *sql.DB, p models.Profile) error {
	_, err := db.Exec(`
		INSERT INTO profiles (id, email, display_name, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			display_name = excluded.display_name,
			updated_at = excluded.updated_at
	`, p.ID, p.Email, p.DisplayName, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

// GetProfile loads a profile row.
func GetProfile(db *sql.DB, id string) (*models.Profile, error) {
	var p models.Profile
	var email, displayName sql.NullString
	err := db.QueryRow(`
		SELECT id, email, display_name, updated_at FROM profiles WHERE id = ?
	`, id).Scan(&p.ID, &email, &displayName, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	p.Email = email.String
	p.DisplayName = displayName.String
	return &p, nil
}

// UpsertProgress creates or replaces the user's progress row.
func UpsertProgress(db *sql.DB, row models.ProgressRow) error {
	cols := make([][]byte, 0, 3)
	for _, f := range []models.SyncField{row.Progress, row.Plan, row.Activity} {
		raw, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("failed to encode progress field: %w", err)
		}
		cols = append(cols, raw)
	}

	_, err := db.Exec(`
		INSERT INTO progress (user_id, progress, plan, activity, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			progress = excluded.progress,
			plan = excluded.plan,
			activity = excluded.activity,
			updated_at = excluded.updated_at
	`, row.UserID, string(cols[0]), string(cols[1]), string(cols[2]), row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert progress: %w", err)
	}
	return nil
}

// GetProgress loads the user's progress row.
func GetProgress(db *sql.DB, userID string) (*models.ProgressRow, error) {
	var row models.ProgressRow
	var progress, plan, activity string
	err := db.QueryRow(`
		SELECT user_id, progress, plan, activity, updated_at FROM progress WHERE user_id = ?
	`, userID).Scan(&row.UserID, &progress, &plan, &activity, &row.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrProgressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}

	row.Progress = decodeField(progress)
	row.Plan = decodeField(plan)
	row.Activity = decodeField(activity)
	return &row, nil
}

func decodeField(raw string) models.SyncField {
	var f models.SyncField
	if err := json.Unmarshal([]byte(raw), &f); err != nil || f.Data == nil {
		return models.EmptyField()
	}
	return f
}

// UpsertLeaderboard creates or replaces a leaderboard row.
func UpsertLeaderboard(db *sql.DB, row models.LeaderboardRow) error {
	_, err := db.Exec(`
		INSERT INTO leaderboard (user_id, display_name, completed_count, streak_days, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			display_name = excluded.display_name,
			completed_count = excluded.completed_count,
			streak_days = excluded.streak_days,
			updated_at = excluded.updated_at
	`, row.UserID, row.DisplayName, row.CompletedCount, row.StreakDays, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert leaderboard: %w", err)
	}
	return nil
}

// ListLeaderboard returns the top rows by completed count.
func ListLeaderboard(db *sql.DB, limit int) ([]models.LeaderboardRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`
		SELECT user_id, display_name, completed_count, streak_days, updated_at
		FROM leaderboard
		ORDER BY completed_count DESC, streak_days DESC, user_id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.LeaderboardRow
	for rows.Next() {
		var r models.LeaderboardRow
		var displayName sql.NullString
		if err := rows.Scan(&r.UserID, &displayName, &r.CompletedCount, &r.StreakDays, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		r.DisplayName = displayName.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leaderboard: %w", err)
	}
	return out, nil
}
