// ABOUTME: Self-hosted backend commands
// ABOUTME: Runs the REST server over a sqlite row store and manages its accounts
package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/harperreed/studysync/db"
	"github.com/harperreed/studysync/sync"
	"github.com/harperreed/studysync/web"
)

// ServeCommand runs the REST backend, or one of its admin subcommands.
func ServeCommand(ctx context.Context, cfg *sync.Config, logger *zap.Logger, args []string) error {
	if len(args) > 0 {
		switch args[0] {
		case "user":
			if len(args) < 2 || args[1] != "add" {
				return fmt.Errorf("usage: studysync serve user add --email <email> [--db path]")
			}
			return serveUserAdd(cfg, os.Stdin, os.Stdout, args[2:])
		case "token":
			return serveToken(cfg, os.Stdin, os.Stdout, args[1:])
		case "devices":
			return serveDevices(cfg, os.Stdout, args[1:])
		}
	}

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	dbPath := fs.String("db", cfg.RemoteDB, "Database path")
	addr := fs.String("addr", ":8420", "Listen address")
	ttl := fs.Duration("token-ttl", db.DefaultSessionTTL, "Access token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	database, err := openServeDB(cfg, *dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Serving studysync on %s (db: %s)\n", *addr, *dbPath)
	fmt.Println("Press Ctrl+C to stop")
	return web.NewServer(database, *ttl, logger).ListenAndServe(ctx, *addr)
}

func serveUserAdd(cfg *sync.Config, in io.Reader, w io.Writer, args []string) error {
	fs := flag.NewFlagSet("serve user add", flag.ContinueOnError)
	dbPath := fs.String("db", cfg.RemoteDB, "Database path")
	email := fs.String("email", "", "Account email")
	passwordStdin := fs.Bool("password-stdin", false, "Read the password from stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}

	database, err := openServeDB(cfg, *dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	addr, pw, err := credentialsFrom(*email, *passwordStdin, in)
	if err != nil {
		return err
	}
	u, err := db.CreateUser(database, addr, pw)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	_, _ = fmt.Fprintf(w, "✓ Created user %s (%s)\n", u.Email, u.ID)
	return nil
}

// serveToken issues a token pair directly, for scripting against the API.
func serveToken(cfg *sync.Config, in io.Reader, w io.Writer, args []string) error {
	fs := flag.NewFlagSet("serve token", flag.ContinueOnError)
	dbPath := fs.String("db", cfg.RemoteDB, "Database path")
	email := fs.String("email", "", "Account email")
	passwordStdin := fs.Bool("password-stdin", false, "Read the password from stdin")
	ttl := fs.Duration("ttl", db.DefaultSessionTTL, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	database, err := openServeDB(cfg, *dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	addr, pw, err := credentialsFrom(*email, *passwordStdin, in)
	if err != nil {
		return err
	}
	u, err := db.Authenticate(database, addr, pw)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	s, err := db.CreateSession(database, u.ID, *ttl)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	_, _ = fmt.Fprintf(w, "access_token:  %s\n", s.AccessToken)
	_, _ = fmt.Fprintf(w, "refresh_token: %s\n", s.RefreshToken)
	_, _ = fmt.Fprintf(w, "expires:       %s\n", s.ExpiresAt.UTC().Format(time.RFC3339))
	return nil
}

// serveDevices lists the push and pull history of every device.
func serveDevices(cfg *sync.Config, w io.Writer, args []string) error {
	fs := flag.NewFlagSet("serve devices", flag.ContinueOnError)
	dbPath := fs.String("db", cfg.RemoteDB, "Database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	database, err := openServeDB(cfg, *dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	states, err := db.GetAllSyncStates(database)
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}
	if len(states) == 0 {
		_, _ = fmt.Fprintln(w, "No devices have synced yet")
		return nil
	}
	for _, s := range states {
		user := "-"
		if s.UserID != nil {
			user = *s.UserID
		}
		_, _ = fmt.Fprintf(w, "%s  user=%s  push=%s  pull=%s  %s\n",
			s.DeviceID, user, stamp(s.LastPushTime), stamp(s.LastPullTime), s.Status)
	}
	return nil
}

func openServeDB(cfg *sync.Config, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("no database configured (pass --db)")
	}
	if path == cfg.RemoteDB {
		return OpenRemoteDB(cfg)
	}
	return db.OpenDatabase(path)
}

func stamp(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}
