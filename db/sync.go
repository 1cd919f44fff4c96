// ABOUTME: Database operations for the per-device sync_state table
// ABOUTME: Records last push and pull times and sync errors for each device
package db

import (
	"database/sql"
	"fmt"
	"time"
)

// SyncState represents the sync state for a device.
type SyncState struct {
	DeviceID     string
	UserID       *string
	LastPushTime *time.Time
	LastPullTime *time.Time
	Status       string
	ErrorMessage *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

const syncStateColumns = `device_id, user_id, last_push_time, last_pull_time, status, error_message, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSyncState(row scanner) (*SyncState, error) {
	var state SyncState
	var userID, status, errorMessage sql.NullString
	var lastPush, lastPull sql.NullTime

	if err := row.Scan(
		&state.DeviceID,
		&userID,
		&lastPush,
		&lastPull,
		&status,
		&errorMessage,
		&state.CreatedAt,
		&state.UpdatedAt,
	); err != nil {
		return nil, err
	}

	state.Status = status.String
	if userID.Valid {
		state.UserID = &userID.String
	}
	if lastPush.Valid {
		state.LastPushTime = &lastPush.Time
	}
	if lastPull.Valid {
		state.LastPullTime = &lastPull.Time
	}
	if errorMessage.Valid {
		state.ErrorMessage = &errorMessage.String
	}
	return &state, nil
}

// GetSyncState retrieves the sync state for a device.
func GetSyncState(db *sql.DB, deviceID string) (*SyncState, error) {
	state, err := scanSyncState(db.QueryRow(`SELECT `+syncStateColumns+` FROM sync_state WHERE device_id = ?`, deviceID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}
	return state, nil
}

// RecordPush marks a successful push from a device.
func RecordPush(db *sql.DB, deviceID, userID string) error {
	return recordSync(db, "last_push_time", deviceID, userID)
}

// RecordPull marks a successful pull to a device.
func RecordPull(db *sql.DB, deviceID, userID string) error {
	return recordSync(db, "last_pull_time", deviceID, userID)
}

func recordSync(db *sql.DB, column, deviceID, userID string) error {
	_, err := db.Exec(`
		INSERT INTO sync_state (device_id, user_id, `+column+`, status, created_at, updated_at)
		VALUES (?, ?, ?, 'idle', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(device_id) DO UPDATE SET
			user_id = excluded.user_id,
			`+column+` = excluded.`+column+`,
			status = 'idle',
			error_message = NULL,
			updated_at = CURRENT_TIMESTAMP
	`, deviceID, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record sync: %w", err)
	}
	return nil
}

// UpdateSyncStatus updates the sync status for a device.
func UpdateSyncStatus(db *sql.DB, deviceID, status string, errorMsg *string) error {
	var errorMsgVal sql.NullString
	if errorMsg != nil {
		errorMsgVal = sql.NullString{String: *errorMsg, Valid: true}
	}

	_, err := db.Exec(`
		INSERT INTO sync_state (device_id, status, error_message, created_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(device_id) DO UPDATE SET
			status = excluded.status,
			error_message = excluded.error_message,
			updated_at = CURRENT_TIMESTAMP
	`, deviceID, status, errorMsgVal)
	if err != nil {
		return fmt.Errorf("failed to update sync status: %w", err)
	}
	return nil
}

// GetAllSyncStates retrieves the sync state for all devices.
func GetAllSyncStates(db *sql.DB) ([]SyncState, error) {
	rows, err := db.Query(`SELECT ` + syncStateColumns + ` FROM sync_state ORDER BY device_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync states: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var states []SyncState
	for rows.Next() {
		state, err := scanSyncState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync state: %w", err)
		}
		states = append(states, *state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync states: %w", err)
	}
	return states, nil
}
