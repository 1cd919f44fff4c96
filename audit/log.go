// ABOUTME: Hash-chained append-only audit log persisted in the local store
// ABOUTME: Append sanitizes and chains entries; Verify recomputes every link
package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harperreed/studysync/canon"
	"github.com/harperreed/studysync/kvstore"
	"github.com/harperreed/studysync/logging"
	"github.com/harperreed/studysync/models"
)

const (
	// KeyLog holds the JSON array of surviving entries.
	KeyLog = "audit_log"
	// KeyAnchor holds the hash of the last evicted entry.
	KeyAnchor = "audit_anchor"
	// KeyQuarantine prefixes copies of stored logs that could not be parsed.
	KeyQuarantine = "audit_log_corrupt/"

	// DefaultCap bounds the number of retained entries.
	DefaultCap = 1000

	ActionExport  = "audit.export"
	ActionCorrupt = "audit.corrupt"
)

// Anchor records where the surviving chain starts after truncation.
type Anchor struct {
	Hash    string `json:"hash"`
	Dropped int    `json:"dropped"`
}

// Options configures a Log. Zero values select defaults.
type Options struct {
	Cap      int
	Hasher   Hasher
	Redactor *Redactor
	Now      func() time.Time
	NewID    func() string
	Logger   *zap.Logger
}

// Log is the audit log. One instance per store; safe for concurrent use.
type Log struct {
	mu       sync.Mutex
	store    kvstore.Store
	cap      int
	hasher   Hasher
	redactor *Redactor
	now      func() time.Time
	newID    func() string
	logger   *zap.Logger
}

// New creates a log over store.
func New(store kvstore.Store, opts Options) *Log {
	l := &Log{
		store:    store,
		cap:      opts.Cap,
		hasher:   opts.Hasher,
		redactor: opts.Redactor,
		now:      opts.Now,
		newID:    opts.NewID,
		logger:   logging.OrNop(opts.Logger),
	}
	if l.cap <= 0 {
		l.cap = DefaultCap
	}
	if l.hasher == nil {
		l.hasher = XXHash{}
	}
	if l.redactor == nil {
		l.redactor = DefaultRedactor()
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.newID == nil {
		l.newID = uuid.NewString
	}
	return l
}

// Hasher returns the chain hash in use.
func (l *Log) Hasher() Hasher {
	return l.hasher
}

// Append sanitizes details, chains a new entry onto the log and persists it.
// Persistence failures are logged, not returned; an error means details
// could not be serialized.
func (l *Log) Append(action, resourceType, resourceID, severity string, details map[string]any) (models.AuditLogEntry, error) {
	clean, err := l.prepareDetails(details)
	if err != nil {
		return models.AuditLogEntry{}, err
	}
	if severity == "" {
		severity = models.SeverityInfo
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entries, corrupt := l.read()
	anchor := l.loadAnchor()

	if corrupt != nil {
		marker, err := l.quarantine(corrupt, anchor.Hash)
		if err != nil {
			return models.AuditLogEntry{}, err
		}
		entries = []models.AuditLogEntry{marker}
	}

	prev := anchor.Hash
	if len(entries) > 0 {
		prev = entries[len(entries)-1].Hash
	}

	entry, err := l.chain(prev, action, resourceType, resourceID, severity, clean)
	if err != nil {
		return models.AuditLogEntry{}, err
	}

	entries = append(entries, entry)
	if over := len(entries) - l.cap; over > 0 {
		anchor.Hash = entries[over-1].Hash
		anchor.Dropped += over
		entries = append([]models.AuditLogEntry(nil), entries[over:]...)
		l.saveAnchor(anchor)
	}
	l.save(entries)

	return entry, nil
}

func (l *Log) chain(prev, action, resourceType, resourceID, severity string, details map[string]any) (models.AuditLogEntry, error) {
	entry := models.AuditLogEntry{
		ID:           l.newID(),
		Timestamp:    models.FormatTimestamp(l.now()),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Severity:     severity,
		Details:      details,
		PreviousHash: prev,
	}
	var err error
	entry.Hash, err = ComputeHash(l.hasher, prev, entry)
	return entry, err
}

// quarantine copies an unparseable stored log aside and returns the entry
// that opens the replacement chain and points at the copy.
func (l *Log) quarantine(raw []byte, prev string) (models.AuditLogEntry, error) {
	key := KeyQuarantine + l.newID()
	if err := l.store.Set(key, raw); err != nil {
		return models.AuditLogEntry{}, fmt.Errorf("failed to quarantine corrupt audit log: %w", err)
	}
	l.logger.Error("audit log is corrupt, moved aside", zap.String("key", key), zap.Int("bytes", len(raw)))
	return l.chain(prev, ActionCorrupt, "audit_log", key, models.SeverityCritical, map[string]any{
		"bytes": len(raw),
	})
}

// Verify walks the chain from the anchor and reports the first entry whose
// previous hash or own hash does not match. Broken chains are reported,
// never repaired. A stored log that cannot be parsed is broken at 0.
func (l *Log) Verify() models.VerifyResult {
	l.mu.Lock()
	entries, corrupt := l.read()
	anchor := l.loadAnchor()
	l.mu.Unlock()

	if corrupt != nil {
		return models.VerifyResult{
			OK:           false,
			BrokenAt:     0,
			ExpectedHash: anchor.Hash,
			Truncated:    anchor.Dropped,
			Corrupt:      true,
		}
	}
	return VerifyChain(l.hasher, entries, anchor)
}

// VerifyChain checks entries against h starting from anchor.
func VerifyChain(h Hasher, entries []models.AuditLogEntry, anchor Anchor) models.VerifyResult {
	result := models.VerifyResult{
		OK:        true,
		Total:     len(entries),
		BrokenAt:  -1,
		Truncated: anchor.Dropped,
	}

	if len(entries) == 0 && anchor.Dropped > 0 {
		result.OK = false
		result.BrokenAt = 0
		result.ExpectedHash = anchor.Hash
		return result
	}

	expectedPrev := anchor.Hash
	for i, e := range entries {
		if e.PreviousHash != expectedPrev {
			result.OK = false
			result.BrokenAt = i
			result.ExpectedHash = expectedPrev
			result.ObservedHash = e.PreviousHash
			return result
		}
		computed, err := ComputeHash(h, expectedPrev, e)
		if err != nil || computed != e.Hash {
			result.OK = false
			result.BrokenAt = i
			result.ExpectedHash = computed
			result.ObservedHash = e.Hash
			return result
		}
		expectedPrev = e.Hash
	}
	return result
}

// Entries returns a copy of the surviving entries, oldest first.
func (l *Log) Entries() []models.AuditLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

// Tail returns the newest n entries, oldest first.
func (l *Log) Tail(n int) []models.AuditLogEntry {
	entries := l.Entries()
	if n <= 0 || n >= len(entries) {
		return entries
	}
	return entries[len(entries)-n:]
}

// Anchor returns the truncation anchor.
func (l *Log) Anchor() Anchor {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadAnchor()
}

// Export serializes the log and records the export as its own entry.
func (l *Log) Export(format string) ([]byte, error) {
	entries := l.Entries()
	data, err := Encode(entries, format)
	if err != nil {
		return nil, err
	}

	if _, err := l.Append(ActionExport, "audit_log", "", models.SeverityInfo, map[string]any{
		"format":  format,
		"entries": len(entries),
	}); err != nil {
		l.logger.Warn("failed to record audit export", zap.Error(err))
	}
	return data, nil
}

func (l *Log) prepareDetails(details map[string]any) (map[string]any, error) {
	if details == nil {
		return map[string]any{}, nil
	}
	plain, err := canon.Normalize(details)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize audit details: %w", err)
	}
	m, ok := plain.(map[string]any)
	if !ok {
		return map[string]any{}, nil
	}
	return l.redactor.Sanitize(m), nil
}

// load returns the stored entries, or nil when the log is missing or corrupt.
func (l *Log) load() []models.AuditLogEntry {
	entries, _ := l.read()
	return entries
}

// read returns the stored entries. When the stored value cannot be parsed
// the raw bytes come back as corrupt.
func (l *Log) read() (entries []models.AuditLogEntry, corrupt []byte) {
	raw, err := l.store.Get(KeyLog)
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			l.logger.Warn("failed to read audit log", zap.Error(err))
		}
		return nil, nil
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		l.logger.Warn("audit log is corrupt", zap.Error(err))
		return nil, raw
	}
	return entries, nil
}

func (l *Log) save(entries []models.AuditLogEntry) {
	raw, err := json.Marshal(entries)
	if err != nil {
		l.logger.Warn("failed to encode audit log", zap.Error(err))
		return
	}
	if err := l.store.Set(KeyLog, raw); err != nil {
		l.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func (l *Log) loadAnchor() Anchor {
	var a Anchor
	raw, err := l.store.Get(KeyAnchor)
	if err != nil {
		return a
	}
	if err := json.Unmarshal(raw, &a); err != nil {
		l.logger.Warn("audit anchor is corrupt", zap.Error(err))
		return Anchor{}
	}
	return a
}

func (l *Log) saveAnchor(a Anchor) {
	raw, err := json.Marshal(a)
	if err != nil {
		return
	}
	if err := l.store.Set(KeyAnchor, raw); err != nil {
		l.logger.Warn("failed to persist audit anchor", zap.Error(err))
	}
}
