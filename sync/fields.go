// ABOUTME: Local field storage and snapshot assembly for synchronization
// ABOUTME: Unwraps stored fields, builds local payloads and applies reconciled ones
package sync

import (
	"encoding/json"
	"errors"
	"sort"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/harperreed/studysync/kvstore"
	"github.com/harperreed/studysync/logging"
	"github.com/harperreed/studysync/merge"
	"github.com/harperreed/studysync/models"
)

// Local storage keys besides the tracked fields.
const (
	KeyRetryQueue   = "retry_queue"
	KeyLastSyncedAt = "last_synced_at"
	KeyAuthStatus   = "auth_status"
)

// PayloadProvider replaces the plain field read/write when the host
// application assembles richer state than the stored fields.
type PayloadProvider interface {
	BuildPayload() (models.SyncSnapshot, error)
	ApplyPayload(models.SyncSnapshot) error
}

// Unwrap interprets a stored value. A map with a "data" member is a wrapped
// field; anything else is legacy raw data with no timestamp. Never fails.
func Unwrap(raw any) models.SyncField {
	if raw == nil {
		return models.EmptyField()
	}
	if m, ok := raw.(map[string]any); ok {
		if data, wrapped := m["data"]; wrapped {
			ts, _ := m["updatedAt"].(string)
			return models.SyncField{Data: data, UpdatedAt: ts}
		}
	}
	return models.SyncField{Data: raw, UpdatedAt: ""}
}

// UnwrapJSON decodes and unwraps a stored value; malformed input degrades to
// an empty field.
func UnwrapJSON(raw []byte) models.SyncField {
	if len(raw) == 0 {
		return models.EmptyField()
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return models.EmptyField()
	}
	return Unwrap(v)
}

// LocalState reads and writes device-resident sync state. Store failures are
// logged and degrade to defaults; they never reach callers.
type LocalState struct {
	mu       gosync.RWMutex
	store    kvstore.Store
	provider PayloadProvider
	now      func() time.Time
	logger   *zap.Logger
}

// NewLocalState wraps store.
func NewLocalState(store kvstore.Store, logger *zap.Logger) *LocalState {
	return &LocalState{
		store:  store,
		now:    time.Now,
		logger: logging.OrNop(logger),
	}
}

// Store returns the underlying store.
func (s *LocalState) Store() kvstore.Store {
	return s.store
}

// SetProvider registers a richer payload source, or clears it with nil.
func (s *LocalState) SetProvider(p PayloadProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provider = p
}

func (s *LocalState) currentProvider() PayloadProvider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.provider
}

// Field reads one stored field.
func (s *LocalState) Field(name string) models.SyncField {
	raw, err := s.store.Get(name)
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			s.logger.Warn("failed to read field", zap.String("field", name), zap.Error(err))
		}
		return models.EmptyField()
	}
	return UnwrapJSON(raw)
}

// SetField stamps data with the current time and stores it. This is how
// local edits enter the system.
func (s *LocalState) SetField(name string, data any) models.SyncField {
	f := models.SyncField{Data: data, UpdatedAt: models.FormatTimestamp(s.now())}
	s.writeField(name, f)
	return f
}

func (s *LocalState) writeField(name string, f models.SyncField) {
	raw, err := json.Marshal(f)
	if err != nil {
		s.logger.Warn("failed to encode field", zap.String("field", name), zap.Error(err))
		return
	}
	if err := s.store.Set(name, raw); err != nil {
		s.logger.Warn("failed to write field", zap.String("field", name), zap.Error(err))
	}
}

// BuildLocalPayload reads every tracked field into a snapshot.
func (s *LocalState) BuildLocalPayload() models.SyncSnapshot {
	if p := s.currentProvider(); p != nil {
		snap, err := p.BuildPayload()
		if err == nil {
			return withAggregate(snap)
		}
		s.logger.Warn("payload provider failed, reading stored fields", zap.Error(err))
	}

	snap := models.NewSnapshot()
	for _, name := range models.TrackedFields {
		snap.Fields[name] = s.Field(name)
	}
	return withAggregate(snap)
}

// ApplyReconciledPayload writes every field of snap back. Applying the same
// snapshot twice leaves the same state.
func (s *LocalState) ApplyReconciledPayload(snap models.SyncSnapshot) {
	if p := s.currentProvider(); p != nil {
		err := p.ApplyPayload(snap)
		if err == nil {
			return
		}
		s.logger.Warn("payload provider apply failed, writing stored fields", zap.Error(err))
	}

	names := make([]string, 0, len(snap.Fields))
	for name := range snap.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s.writeField(name, snap.Fields[name])
	}
}

// LastSyncedAt returns the last successful sync time, or "".
func (s *LocalState) LastSyncedAt() string {
	raw, err := s.store.Get(KeyLastSyncedAt)
	if err != nil {
		return ""
	}
	return string(raw)
}

// SetLastSyncedAt records a successful sync time.
func (s *LocalState) SetLastSyncedAt(ts string) {
	if err := s.store.Set(KeyLastSyncedAt, []byte(ts)); err != nil {
		s.logger.Warn("failed to record last sync", zap.Error(err))
	}
}

// AuthStatus returns the cached sign-in state.
func (s *LocalState) AuthStatus() models.AuthState {
	var st models.AuthState
	raw, err := s.store.Get(KeyAuthStatus)
	if err != nil {
		return st
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return models.AuthState{}
	}
	return st
}

// SetAuthStatus caches the sign-in state.
func (s *LocalState) SetAuthStatus(st models.AuthState) {
	raw, err := json.Marshal(st)
	if err != nil {
		return
	}
	if err := s.store.Set(KeyAuthStatus, raw); err != nil {
		s.logger.Warn("failed to cache auth status", zap.Error(err))
	}
}

func withAggregate(snap models.SyncSnapshot) models.SyncSnapshot {
	if snap.Fields == nil {
		snap.Fields = make(map[string]models.SyncField)
	}
	ts := snap.UpdatedAt
	for _, f := range snap.Fields {
		ts = merge.LatestTimestamp(ts, f.UpdatedAt)
	}
	snap.UpdatedAt = ts
	return snap
}
