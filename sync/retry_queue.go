// ABOUTME: Bounded retry queue of deferred sync attempts in the local store
// ABOUTME: Newest entries kept, oldest evicted; cleared wholesale on success
package sync

import (
	"encoding/json"
	"errors"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/harperreed/studysync/kvstore"
	"github.com/harperreed/studysync/logging"
	"github.com/harperreed/studysync/models"
)

// DefaultRetryCap bounds the queue length.
const DefaultRetryCap = 25

// RetryQueue records that a sync is owed. Entries exist to trigger a retry;
// a retry always re-derives the current snapshot instead of replaying payloads.
type RetryQueue struct {
	mu     gosync.Mutex
	store  kvstore.Store
	cap    int
	now    func() time.Time
	newID  func() string
	logger *zap.Logger
}

// NewRetryQueue creates a queue over store. cap <= 0 selects DefaultRetryCap.
func NewRetryQueue(store kvstore.Store, cap int, logger *zap.Logger) *RetryQueue {
	if cap <= 0 {
		cap = DefaultRetryCap
	}
	return &RetryQueue{
		store:  store,
		cap:    cap,
		now:    time.Now,
		newID:  NewULID,
		logger: logging.OrNop(logger),
	}
}

// Enqueue appends an entry and evicts the oldest beyond the cap.
func (q *RetryQueue) Enqueue(reason string, payload any) models.RetryQueueEntry {
	entry := models.RetryQueueEntry{
		ID:       q.newID(),
		Reason:   reason,
		QueuedAt: models.FormatTimestamp(q.now()),
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			entry.Payload = raw
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	entries := append(q.load(), entry)
	if over := len(entries) - q.cap; over > 0 {
		entries = entries[over:]
	}
	q.save(entries)
	return entry
}

// Entries returns the queued entries, oldest first.
func (q *RetryQueue) Entries() []models.RetryQueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load()
}

// Len returns the queue depth.
func (q *RetryQueue) Len() int {
	return len(q.Entries())
}

// Clear drops every entry.
func (q *RetryQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.store.Delete(KeyRetryQueue); err != nil {
		q.logger.Warn("failed to clear retry queue", zap.Error(err))
	}
}

func (q *RetryQueue) load() []models.RetryQueueEntry {
	raw, err := q.store.Get(KeyRetryQueue)
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			q.logger.Warn("failed to read retry queue", zap.Error(err))
		}
		return nil
	}
	var entries []models.RetryQueueEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		q.logger.Warn("retry queue is corrupt, resetting", zap.Error(err))
		return nil
	}
	return entries
}

func (q *RetryQueue) save(entries []models.RetryQueueEntry) {
	raw, err := json.Marshal(entries)
	if err != nil {
		return
	}
	if err := q.store.Set(KeyRetryQueue, raw); err != nil {
		q.logger.Warn("failed to persist retry queue", zap.Error(err))
	}
}
