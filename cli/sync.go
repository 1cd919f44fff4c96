// ABOUTME: Sync CLI commands
// ABOUTME: status, push, pull, flush and the long-running daemon
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/harperreed/studysync/merge"
	"github.com/harperreed/studysync/sync"
)

// MinDaemonInterval is the shortest interval the daemon accepts.
const MinDaemonInterval = 30 * time.Second

// StatusCommand prints the sync state without contacting the remote.
func StatusCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := app.Config
	st := app.Orch.Status()

	fmt.Println("Sync Status:")
	fmt.Printf("  Config path:  %s\n", sync.ConfigPath())
	fmt.Printf("  Data dir:     %s\n", cfg.DataPath())
	fmt.Printf("  Remote:       %s\n", remoteLabel(cfg))
	fmt.Printf("  Device ID:    %s\n", cfg.DeviceID)

	if !st.Configured {
		fmt.Printf("  Configured:   ✗ No (run 'studysync init')\n")
		return nil
	}
	fmt.Printf("  Configured:   ✓ Yes\n")

	if st.LoggedIn && st.User != nil {
		fmt.Printf("  Signed in:    ✓ %s\n", userLabel(st.User.Email, st.User.ID))
	} else {
		fmt.Printf("  Signed in:    ✗ No (run 'studysync login')\n")
	}

	if cfg.Remote == sync.RemoteHTTP && cfg.TokenExpires != "" {
		if expiresAt, err := time.Parse(time.RFC3339, cfg.TokenExpires); err == nil {
			if time.Now().Before(expiresAt) {
				fmt.Printf("  Token valid:  ✓ Yes (expires %s)\n", expiresAt.Format(time.RFC3339))
			} else if cfg.RefreshToken != "" {
				fmt.Printf("  Token valid:  ⟳ Expired, will refresh\n")
			} else {
				fmt.Printf("  Token valid:  ✗ Expired (run 'studysync login')\n")
			}
		}
	}

	if st.LastSyncedAt == "" {
		fmt.Printf("  Last sync:    never\n")
	} else {
		fmt.Printf("  Last sync:    %s\n", formatTimeSince(st.LastSyncedAt, time.Now()))
	}
	fmt.Printf("  Retry queue:  %d pending\n", st.QueueDepth)
	if st.Audit.OK {
		fmt.Printf("  Audit chain:  ✓ valid (%d entries)\n", st.Audit.Total)
	} else {
		fmt.Printf("  Audit chain:  ✗ broken at entry %d\n", st.Audit.BrokenAt)
	}
	return nil
}

// PushCommand sends the local snapshot to the remote.
func PushCommand(ctx context.Context, app *App, args []string) error {
	fs := flag.NewFlagSet("push", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return report(app.Orch.PushToRemote(ctx, sync.TriggerManual))
}

// PullCommand merges the remote row into local state.
func PullCommand(ctx context.Context, app *App, args []string) error {
	fs := flag.NewFlagSet("pull", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return report(app.Orch.PullFromRemote(ctx))
}

// FlushCommand retries the queued push, if any.
func FlushCommand(ctx context.Context, app *App, args []string) error {
	fs := flag.NewFlagSet("flush", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return report(app.Orch.FlushRetryQueue(ctx))
}

// DaemonCommand runs periodic sync, retries and auth-triggered sync until
// interrupted.
func DaemonCommand(ctx context.Context, app *App, args []string) error {
	fs := flag.NewFlagSet("daemon", flag.ContinueOnError)
	interval := fs.String("interval", app.Config.SyncEvery().String(), "Periodic push interval (min 30s)")
	retryInterval := fs.String("retry-interval", app.Config.RetryEvery().String(), "Retry queue interval (min 30s)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	every, err := parseDaemonInterval("interval", *interval)
	if err != nil {
		return err
	}
	retryEvery, err := parseDaemonInterval("retry-interval", *retryInterval)
	if err != nil {
		return err
	}

	cfg := app.Config
	if !cfg.IsConfigured() {
		return fmt.Errorf("device not initialized. Run 'studysync init' first")
	}
	cfg.SyncInterval = every.String()
	cfg.RetryInterval = retryEvery.String()
	cfg.AutoSync = true

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Starting sync daemon (remote: %s, interval: %s, retry: %s)\n", remoteLabel(cfg), every, retryEvery)
	fmt.Println("Press Ctrl+C to stop")

	app.Orch.Start(ctx)
	<-ctx.Done()

	fmt.Println("\nStopping sync daemon...")
	app.Orch.Stop()
	fmt.Println("✓ Daemon stopped")
	return nil
}

func parseDaemonInterval(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid --%s %q: %w", name, value, err)
	}
	if d < MinDaemonInterval {
		return 0, fmt.Errorf("--%s must be at least %s, got %s", name, MinDaemonInterval, d)
	}
	return d, nil
}

// report prints a result and turns hard failures into an error exit.
func report(res sync.SyncResult) error {
	fmt.Println(describeResult(res))
	for _, w := range res.Warnings {
		fmt.Printf("  ⚠ %s\n", w)
	}
	if res.Status == sync.StatusError {
		return fmt.Errorf("%s failed", res.Op)
	}
	return nil
}

func describeResult(r sync.SyncResult) string {
	op := r.Op
	if r.Trigger != "" && r.Trigger != sync.TriggerManual {
		op = fmt.Sprintf("%s (%s)", r.Op, r.Trigger)
	}
	switch r.Status {
	case sync.StatusOK:
		return fmt.Sprintf("✓ %s completed", op)
	case sync.StatusSkipped:
		return fmt.Sprintf("- %s skipped: %s", op, r.Reason)
	case sync.StatusQueued:
		return fmt.Sprintf("⟳ %s queued for retry: %s", op, r.Reason)
	}
	if r.Error != nil {
		return fmt.Sprintf("✗ %s failed: %s", op, r.Error.Error())
	}
	return fmt.Sprintf("✗ %s failed", op)
}

func remoteLabel(cfg *sync.Config) string {
	switch cfg.Remote {
	case sync.RemoteHTTP:
		return "http " + cfg.Server
	case sync.RemoteSQLite:
		return "sqlite " + cfg.RemoteDB
	case sync.RemoteCharm:
		if cfg.CharmHost != "" {
			return "charm " + cfg.CharmHost
		}
		return "charm"
	}
	return strings.TrimSpace(cfg.Remote + " (unknown)")
}

func userLabel(email, id string) string {
	if email != "" {
		return email
	}
	return id
}

// formatTimeSince formats a stored timestamp in a human-readable way.
func formatTimeSince(ts string, now time.Time) string {
	ms := merge.ParseMillis(ts)
	if ms == 0 {
		return ts
	}
	duration := now.Sub(time.UnixMilli(ms))

	if duration < time.Minute {
		return "just now"
	} else if duration < time.Hour {
		minutes := int(duration.Minutes())
		if minutes == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	} else if duration < 24*time.Hour {
		hours := int(duration.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	}
	days := int(duration.Hours() / 24)
	if days == 1 {
		return "1 day ago"
	}
	return fmt.Sprintf("%d days ago", days)
}
