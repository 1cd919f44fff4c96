// ABOUTME: Database schema definitions for the self-hosted study backend
// ABOUTME: Users, sessions, profiles, progress rows, leaderboard and per-device sync state
package db

import (
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS sessions (
	access_token TEXT PRIMARY KEY,
	refresh_token TEXT NOT NULL UNIQUE,
	user_id TEXT NOT NULL,
	expires_at DATETIME NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);

CREATE TABLE IF NOT EXISTS profiles (
	id TEXT PRIMARY KEY,
	email TEXT,
	display_name TEXT,
	updated_at TEXT NOT NULL,
	FOREIGN KEY (id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS progress (
	user_id TEXT PRIMARY KEY,
	progress TEXT NOT NULL,
	plan TEXT NOT NULL,
	activity TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	FOREIGN KEY (user_id) REFERENCES profiles(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS leaderboard (
	user_id TEXT PRIMARY KEY,
	display_name TEXT,
	completed_count INTEGER NOT NULL DEFAULT 0,
	streak_days INTEGER NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL,
	FOREIGN KEY (user_id) REFERENCES profiles(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_leaderboard_completed ON leaderboard(completed_count DESC);

CREATE TABLE IF NOT EXISTS sync_state (
	device_id TEXT PRIMARY KEY,
	user_id TEXT,
	last_push_time DATETIME,
	last_pull_time DATETIME,
	status TEXT CHECK(status IN ('idle', 'syncing', 'error')),
	error_message TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
