// ABOUTME: Data models for synchronized study state and remote rows
// ABOUTME: Defines SyncField, SyncSnapshot, RetryQueueEntry, AuditLogEntry and remote row shapes
package models

import (
	"encoding/json"
	"time"
)

// Tracked field names. Each one is persisted under its own local storage key.
const (
	FieldProgress = "progress" // completed items
	FieldPlan     = "plan"     // plan configuration
	FieldActivity = "activity" // activity log
)

// TrackedFields lists the fields every snapshot carries, in a stable order.
var TrackedFields = []string{FieldProgress, FieldPlan, FieldActivity}

// SyncField is one named unit of synchronizable state.
// UpdatedAt is an ISO-8601 timestamp; the empty string means "never set".
type SyncField struct {
	Data      any    `json:"data"`
	UpdatedAt string `json:"updatedAt"`
}

// EmptyField returns the default used for missing or malformed fields.
func EmptyField() SyncField {
	return SyncField{Data: map[string]any{}, UpdatedAt: ""}
}

// SyncSnapshot maps field names to fields plus an aggregate timestamp.
// It is derived on every cycle and never stored as a whole.
type SyncSnapshot struct {
	Fields    map[string]SyncField `json:"fields"`
	UpdatedAt string               `json:"updatedAt"`
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() SyncSnapshot {
	return SyncSnapshot{Fields: make(map[string]SyncField)}
}

// Field returns the named field, or an empty field when absent.
func (s SyncSnapshot) Field(name string) SyncField {
	if f, ok := s.Fields[name]; ok {
		return f
	}
	return EmptyField()
}

// RetryQueueEntry is one deferred synchronization attempt.
type RetryQueueEntry struct {
	ID       string          `json:"id"`
	Reason   string          `json:"reason"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	QueuedAt string          `json:"queuedAt"`
}

// Severity levels for audit entries.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// AuditLogEntry is one immutable link in the hash-chained audit log.
type AuditLogEntry struct {
	ID           string         `json:"id" yaml:"id"`
	Timestamp    string         `json:"timestamp" yaml:"timestamp"`
	Action       string         `json:"action" yaml:"action"`
	ResourceType string         `json:"resourceType" yaml:"resourceType"`
	ResourceID   string         `json:"resourceId" yaml:"resourceId"`
	Severity     string         `json:"severity" yaml:"severity"`
	Details      map[string]any `json:"details" yaml:"details"`
	PreviousHash string         `json:"previousHash" yaml:"previousHash"`
	Hash         string         `json:"hash" yaml:"hash"`
}

// VerifyResult reports the outcome of walking the audit chain.
// BrokenAt is -1 when the chain is consistent.
type VerifyResult struct {
	OK           bool   `json:"ok"`
	Total        int    `json:"total"`
	BrokenAt     int    `json:"brokenAt"`
	ExpectedHash string `json:"expectedHash,omitempty"`
	ObservedHash string `json:"observedHash,omitempty"`
	Truncated    int    `json:"truncated,omitempty"`
	Corrupt      bool   `json:"corrupt,omitempty"`
}

// User is the identity reported by a remote backend.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Profile is the identity row every other remote row depends on.
type Profile struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	UpdatedAt   string `json:"updated_at"`
}

// ProgressRow is the single authoritative remote row per user.
type ProgressRow struct {
	UserID    string    `json:"user_id"`
	Progress  SyncField `json:"progress"`
	Plan      SyncField `json:"plan"`
	Activity  SyncField `json:"activity"`
	UpdatedAt string    `json:"updated_at"`
}

// ProgressRowFromSnapshot lays a snapshot out as a remote row.
func ProgressRowFromSnapshot(userID string, s SyncSnapshot, updatedAt string) ProgressRow {
	return ProgressRow{
		UserID:    userID,
		Progress:  s.Field(FieldProgress),
		Plan:      s.Field(FieldPlan),
		Activity:  s.Field(FieldActivity),
		UpdatedAt: updatedAt,
	}
}

// Snapshot converts a remote row back to a snapshot.
func (r ProgressRow) Snapshot() SyncSnapshot {
	return SyncSnapshot{
		Fields: map[string]SyncField{
			FieldProgress: r.Progress,
			FieldPlan:     r.Plan,
			FieldActivity: r.Activity,
		},
		UpdatedAt: r.UpdatedAt,
	}
}

// LeaderboardRow is the best-effort derived stats row.
type LeaderboardRow struct {
	UserID         string `json:"user_id"`
	DisplayName    string `json:"display_name,omitempty"`
	CompletedCount int    `json:"completed_count"`
	StreakDays     int    `json:"streak_days"`
	UpdatedAt      string `json:"updated_at"`
}

// AuthState is delivered to auth listeners on every state change.
type AuthState struct {
	LoggedIn     bool   `json:"loggedIn"`
	User         *User  `json:"user,omitempty"`
	LastSyncedAt string `json:"lastSyncedAt,omitempty"`
}

// FormatTimestamp renders a time the way every stored timestamp is written.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
