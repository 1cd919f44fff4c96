// ABOUTME: Tests for CLI wiring and commands
// ABOUTME: Uses an in-memory local store and a temp sqlite remote
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/studysync/audit"
	"github.com/harperreed/studysync/db"
	"github.com/harperreed/studysync/kvstore"
	"github.com/harperreed/studysync/models"
	"github.com/harperreed/studysync/sync"
)

func sqliteConfig(t *testing.T) *sync.Config {
	t.Helper()
	cfg := sync.DefaultConfig()
	cfg.Remote = sync.RemoteSQLite
	cfg.RemoteDB = filepath.Join(t.TempDir(), "remote.db")
	cfg.DeviceID = "device-test"
	cfg.LogLevel = "error"
	return cfg
}

func seedUser(t *testing.T, path string) *db.User {
	t.Helper()
	database, err := db.OpenDatabase(path)
	require.NoError(t, err)
	defer func() { _ = database.Close() }()
	u, err := db.CreateUser(database, "learner@example.com", "secret")
	require.NoError(t, err)
	return u
}

func openTestApp(t *testing.T, cfg *sync.Config) *App {
	t.Helper()
	app, err := OpenApp(cfg, Options{Quiet: true, Store: kvstore.NewMemory()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func TestOpenAppWithoutRemote(t *testing.T) {
	cfg := sync.DefaultConfig()
	cfg.LogLevel = "error"
	app := openTestApp(t, cfg)

	assert.Nil(t, app.Remote)
	res := app.Orch.PushToRemote(context.Background(), sync.TriggerManual)
	assert.Equal(t, sync.StatusSkipped, res.Status)
	assert.Equal(t, sync.CodeNotConfigured, res.Reason)
}

func TestOpenAppRejectsUnknownHasher(t *testing.T) {
	cfg := sync.DefaultConfig()
	cfg.AuditHash = "md5"
	_, err := OpenApp(cfg, Options{Quiet: true, Store: kvstore.NewMemory()})
	assert.Error(t, err)
}

func TestSQLiteRemoteRoundTrip(t *testing.T) {
	cfg := sqliteConfig(t)
	u := seedUser(t, cfg.RemoteDB)
	cfg.UserID = u.ID

	app := openTestApp(t, cfg)
	_, ok := app.Remote.(*db.Remote)
	require.True(t, ok)

	ctx := context.Background()
	app.Orch.Local().SetField(models.FieldProgress, map[string]any{"lesson-1": true})

	require.NoError(t, PushCommand(ctx, app, nil))
	require.NoError(t, PullCommand(ctx, app, nil))
	assert.NotEmpty(t, app.Orch.Local().LastSyncedAt())

	// A second device signed in as the same user sees the row.
	other := sqliteConfig(t)
	other.RemoteDB = cfg.RemoteDB
	other.DeviceID = "device-other"
	other.UserID = u.ID
	app2 := openTestApp(t, other)
	require.NoError(t, PullCommand(ctx, app2, nil))
	got := app2.Orch.Local().Field(models.FieldProgress)
	assert.Equal(t, map[string]any{"lesson-1": true}, got.Data)
}

func TestFlushCommandEmptyQueue(t *testing.T) {
	cfg := sqliteConfig(t)
	u := seedUser(t, cfg.RemoteDB)
	cfg.UserID = u.ID
	app := openTestApp(t, cfg)

	assert.NoError(t, FlushCommand(context.Background(), app, nil))
	assert.Equal(t, 0, app.Orch.Queue().Len())
}

func TestStatusCommand(t *testing.T) {
	cfg := sqliteConfig(t)
	app := openTestApp(t, cfg)
	assert.NoError(t, StatusCommand(app, nil))
}

func TestParseDaemonInterval(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    time.Duration
		wantErr bool
	}{
		{name: "valid 2 minutes", value: "2m", want: 2 * time.Minute},
		{name: "valid 1 hour", value: "1h", want: time.Hour},
		{name: "minimum", value: "30s", want: 30 * time.Second},
		{name: "below minimum", value: "10s", wantErr: true},
		{name: "invalid format", value: "soon", wantErr: true},
		{name: "empty string", value: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDaemonInterval("interval", tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDaemonCommandValidatesBeforeStarting(t *testing.T) {
	app := openTestApp(t, sqliteConfig(t))
	err := DaemonCommand(context.Background(), app, []string{"--interval", "1s"})
	assert.ErrorContains(t, err, "at least")
}

func TestDaemonCommandStopsOnCancel(t *testing.T) {
	cfg := sqliteConfig(t)
	app := openTestApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- DaemonCommand(ctx, app, []string{"--interval", "1m"}) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
	assert.True(t, cfg.AutoSync)
	assert.Equal(t, "1m0s", cfg.SyncInterval)
}

func TestFormatTimeSince(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		time     time.Time
		expected string
	}{
		{name: "just now (30 seconds)", time: now.Add(-30 * time.Second), expected: "just now"},
		{name: "1 minute ago", time: now.Add(-1 * time.Minute), expected: "1 minute ago"},
		{name: "5 minutes ago", time: now.Add(-5 * time.Minute), expected: "5 minutes ago"},
		{name: "1 hour ago", time: now.Add(-1 * time.Hour), expected: "1 hour ago"},
		{name: "3 hours ago", time: now.Add(-3 * time.Hour), expected: "3 hours ago"},
		{name: "1 day ago", time: now.Add(-24 * time.Hour), expected: "1 day ago"},
		{name: "5 days ago", time: now.Add(-5 * 24 * time.Hour), expected: "5 days ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatTimeSince(models.FormatTimestamp(tt.time), now))
		})
	}
	assert.Equal(t, "garbage", formatTimeSince("garbage", now))
}

func TestDescribeResult(t *testing.T) {
	assert.Equal(t, "✓ push completed", describeResult(sync.SyncResult{Op: sync.OpPush, Status: sync.StatusOK, Trigger: sync.TriggerManual}))
	assert.Equal(t, "⟳ push (periodic) queued for retry: offline",
		describeResult(sync.SyncResult{Op: sync.OpPush, Status: sync.StatusQueued, Reason: sync.CodeOffline, Trigger: sync.TriggerPeriodic}))
	assert.Equal(t, "- flush skipped: queue_empty",
		describeResult(sync.SyncResult{Op: sync.OpFlush, Status: sync.StatusSkipped, Reason: sync.CodeQueueEmpty}))
	assert.Equal(t, "✗ pull failed: fetch_failed: boom",
		describeResult(sync.SyncResult{Op: sync.OpPull, Status: sync.StatusError, Error: &sync.SyncError{Code: sync.CodeFetchFailed, Message: "boom"}}))

	assert.Error(t, report(sync.SyncResult{Op: sync.OpPull, Status: sync.StatusError}))
	assert.NoError(t, report(sync.SyncResult{Op: sync.OpPull, Status: sync.StatusSkipped}))
}

func TestFieldCommands(t *testing.T) {
	app := openTestApp(t, sqliteConfig(t))
	local := app.Orch.Local()
	var out bytes.Buffer

	require.NoError(t, fieldSet(local, &out, []string{"plan", `{"goal":"daily"}`}))
	assert.Contains(t, out.String(), "✓ plan updated at")
	assert.Equal(t, map[string]any{"goal": "daily"}, local.Field("plan").Data)

	assert.Error(t, fieldSet(local, &out, []string{"notes", `"x"`}))
	require.NoError(t, fieldSet(local, &out, []string{"--force", "notes", `"x"`}))
	assert.Equal(t, "x", local.Field("notes").Data)

	assert.Error(t, fieldSet(local, &out, []string{"plan", `{broken`}))

	out.Reset()
	require.NoError(t, fieldGet(local, &out, []string{"plan"}))
	var f models.SyncField
	require.NoError(t, json.Unmarshal(out.Bytes(), &f))
	assert.NotEmpty(t, f.UpdatedAt)

	out.Reset()
	require.NoError(t, fieldList(local, &out))
	assert.Contains(t, out.String(), "progress")
	assert.Contains(t, out.String(), "never")
}

func TestMergeCommand(t *testing.T) {
	dir := t.TempDir()
	localPath := filepath.Join(dir, "local.json")
	remotePath := filepath.Join(dir, "remote.json")
	outPath := filepath.Join(dir, "merged.json")

	require.NoError(t, os.WriteFile(localPath, []byte(`{
		"fields": {"progress": {"data": {"a": true}, "updatedAt": "2026-01-01T00:00:00.000Z"}}
	}`), 0600))
	// Bare fields, one of them legacy raw data.
	require.NoError(t, os.WriteFile(remotePath, []byte(`{
		"progress": {"data": {"b": true}, "updatedAt": "2026-01-02T00:00:00.000Z"},
		"plan": {"goal": "weekly"}
	}`), 0600))

	require.NoError(t, MergeCommand([]string{"--output", outPath, localPath, remotePath}))

	raw, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var merged models.SyncSnapshot
	require.NoError(t, json.Unmarshal(raw, &merged))

	assert.Equal(t, map[string]any{"a": true, "b": true}, merged.Fields["progress"].Data)
	assert.Equal(t, "2026-01-02T00:00:00.000Z", merged.Fields["progress"].UpdatedAt)
	assert.Equal(t, map[string]any{"goal": "weekly"}, merged.Fields["plan"].Data)
	assert.Equal(t, "2026-01-02T00:00:00.000Z", merged.UpdatedAt)

	assert.Error(t, MergeCommand([]string{localPath}))
	assert.Error(t, MergeCommand([]string{localPath, filepath.Join(dir, "missing.json")}))
}

func TestAuditCommands(t *testing.T) {
	app := openTestApp(t, sqliteConfig(t))
	_, err := app.Audit.Append("sync.push", "progress", "user-1", models.SeverityInfo, nil)
	require.NoError(t, err)
	_, err = app.Audit.Append("auth.signed_in", "session", "user-1", models.SeverityInfo, nil)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, auditVerify(app.Audit, &out))
	assert.Contains(t, out.String(), "✓ Audit chain valid (2 entries, xxhash64)")

	out.Reset()
	require.NoError(t, auditTail(app.Audit, &out, []string{"--action", "auth."}))
	assert.Contains(t, out.String(), "auth.signed_in")
	assert.NotContains(t, out.String(), "sync.push")

	path := filepath.Join(t.TempDir(), "audit.csv")
	require.NoError(t, auditExport(context.Background(), app.Audit, &out, []string{"--format", audit.FormatCSV, "--output", path}))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(raw), "\n"), "header plus two rows")

	// The export itself is recorded.
	assert.Equal(t, audit.ActionExport, app.Audit.Tail(1)[0].Action)

	out.Reset()
	require.NoError(t, auditGraph(context.Background(), app.Audit, &out, nil))
	assert.Contains(t, out.String(), "digraph")

	assert.Error(t, auditExport(context.Background(), app.Audit, &out, []string{"--format", "xml"}))
}

func TestAuditVerifyReportsTampering(t *testing.T) {
	store := kvstore.NewMemory()
	cfg := sqliteConfig(t)
	app, err := OpenApp(cfg, Options{Quiet: true, Offline: true, Store: store})
	require.NoError(t, err)
	defer func() { _ = app.Close() }()

	_, err = app.Audit.Append("sync.push", "progress", "user-1", models.SeverityInfo, map[string]any{"n": 1})
	require.NoError(t, err)

	key := sync.DefaultKeyPrefix + audit.KeyLog
	raw, err := store.Get(key)
	require.NoError(t, err)
	require.NoError(t, store.Set(key, bytes.Replace(raw, []byte(`"n":1`), []byte(`"n":2`), 1)))

	var out bytes.Buffer
	assert.Error(t, auditVerify(app.Audit, &out))
	assert.Contains(t, out.String(), "broken at entry 0")
}

func TestServeUserAndToken(t *testing.T) {
	cfg := sqliteConfig(t)
	var out bytes.Buffer

	require.NoError(t, serveUserAdd(cfg, strings.NewReader("secret\n"), &out,
		[]string{"--email", "learner@example.com", "--password-stdin"}))
	assert.Contains(t, out.String(), "✓ Created user learner@example.com")

	out.Reset()
	require.NoError(t, serveToken(cfg, strings.NewReader("secret\n"), &out,
		[]string{"--email", "learner@example.com", "--password-stdin"}))
	assert.Contains(t, out.String(), "access_token:")

	assert.Error(t, serveToken(cfg, strings.NewReader("wrong\n"), &out,
		[]string{"--email", "learner@example.com", "--password-stdin"}))

	out.Reset()
	require.NoError(t, serveDevices(cfg, &out, nil))
	assert.Contains(t, out.String(), "No devices")
}

func TestCredentialsFrom(t *testing.T) {
	email, pw, err := credentialsFrom("", true, strings.NewReader("learner@example.com\nhunter2\n"))
	require.NoError(t, err)
	assert.Equal(t, "learner@example.com", email)
	assert.Equal(t, "hunter2", pw)

	_, _, err = credentialsFrom("", true, strings.NewReader("\n"))
	assert.Error(t, err)
}

func TestRemoteLabel(t *testing.T) {
	assert.Equal(t, "http https://study.example.com", remoteLabel(&sync.Config{Remote: sync.RemoteHTTP, Server: "https://study.example.com"}))
	assert.Equal(t, "charm", remoteLabel(&sync.Config{Remote: sync.RemoteCharm}))
	assert.Equal(t, "ftp (unknown)", remoteLabel(&sync.Config{Remote: "ftp"}))
}
