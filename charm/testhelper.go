// ABOUTME: Test utilities for creating isolated charm clients
// ABOUTME: Uses temporary directories with BadgerDB in place of the charm server

package charm

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v3"
)

// testKV wraps BadgerDB to provide the same interface as charm/kv.KV
// for testing without requiring server connectivity.
type testKV struct {
	db *badger.DB

	mu      sync.Mutex
	syncErr error
	syncs   int
}

func (t *testKV) Get(key []byte) ([]byte, error) {
	var result []byte
	err := t.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		result, err = item.ValueCopy(nil)
		return err
	})
	return result, err
}

func (t *testKV) Set(key, value []byte) error {
	return t.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (t *testKV) Delete(key []byte) error {
	return t.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

func (t *testKV) Keys() ([][]byte, error) {
	var keys [][]byte
	err := t.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	return keys, err
}

// Sync reports the configured failure, if any, and counts calls.
func (t *testKV) Sync() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.syncs++
	return t.syncErr
}

func (t *testKV) Reset() error {
	return t.db.DropAll()
}

// TestHandle lets tests steer a client created by NewTestClient.
type TestHandle struct {
	kv *testKV
	mu sync.Mutex
	id string
}

// SetOffline makes every Sync fail with a connection error.
func (h *TestHandle) SetOffline(offline bool) {
	h.kv.mu.Lock()
	defer h.kv.mu.Unlock()
	if offline {
		h.kv.syncErr = errors.New("dial tcp: connection refused")
	} else {
		h.kv.syncErr = nil
	}
}

// Syncs returns how many times Sync was called.
func (h *TestHandle) Syncs() int {
	h.kv.mu.Lock()
	defer h.kv.mu.Unlock()
	return h.kv.syncs
}

// SetID changes the account id the client reports; "" means unlinked.
func (h *TestHandle) SetID(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.id = id
}

func (h *TestHandle) currentID() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.id == "" {
		return "", errors.New("missing charm keys")
	}
	return h.id, nil
}

// NewTestClient creates a charm client using a temporary directory for testing.
// The returned cleanup function should be deferred to remove the temp directory.
// This implementation uses BadgerDB directly, avoiding the charm server dependency.
func NewTestClient(t *testing.T) (*Client, *TestHandle, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "studysync-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	dataDir := filepath.Join(tmpDir, AppName)
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		_ = os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create data dir: %v", err)
	}

	opts := badger.DefaultOptions(dataDir).
		WithLogger(nil) // Suppress badger logs in tests

	db, err := badger.Open(opts)
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		t.Fatalf("Failed to open badger: %v", err)
	}

	tkv := &testKV{db: db}
	handle := &TestHandle{kv: tkv, id: "charm-test-user"}

	c := &Client{
		kv:     tkv,
		config: &Config{Host: "localhost", KeyPrefix: DefaultKeyPrefix},
		idFunc: handle.currentID,
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: failed to close test database: %v", err)
		}
		if err := os.RemoveAll(tmpDir); err != nil {
			t.Logf("Warning: failed to remove temp directory %s: %v", tmpDir, err)
		}
	}

	return c, handle, cleanup
}
