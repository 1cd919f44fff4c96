// ABOUTME: Device setup and sign-in commands
// ABOUTME: init writes the config, login/logout drive the remote and the auth-triggered sync
package cli

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/harperreed/studysync/charm"
	"github.com/harperreed/studysync/db"
	"github.com/harperreed/studysync/models"
	"github.com/harperreed/studysync/sync"
)

// InitCommand selects a remote and gives this device an ID.
func InitCommand(cfg *sync.Config, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	remote := fs.String("remote", cfg.Remote, "Remote backend: http, sqlite or charm")
	server := fs.String("server", cfg.Server, "Server URL (http remote)")
	remoteDB := fs.String("db", cfg.RemoteDB, "Database path (sqlite remote)")
	charmHost := fs.String("charm-host", cfg.CharmHost, "Charm server host (charm remote)")
	autoSync := fs.Bool("auto-sync", cfg.AutoSync, "Push periodically while the daemon runs")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch *remote {
	case sync.RemoteHTTP, sync.RemoteSQLite, sync.RemoteCharm:
	default:
		return fmt.Errorf("unknown remote %q (want http, sqlite or charm)", *remote)
	}

	cfg.Remote = *remote
	cfg.Server = *server
	cfg.RemoteDB = *remoteDB
	cfg.CharmHost = *charmHost
	cfg.AutoSync = *autoSync

	if cfg.DeviceID == "" {
		cfg.DeviceID = sync.GenerateDeviceID()
		fmt.Printf("✓ Generated new device ID: %s\n", cfg.DeviceID)
	} else {
		fmt.Printf("✓ Device already initialized: %s\n", cfg.DeviceID)
	}

	if err := sync.SaveConfig(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	fmt.Printf("✓ Configuration saved to %s\n", sync.ConfigPath())

	if !cfg.IsConfigured() {
		fmt.Printf("\n⚠ The %s remote still needs settings (see 'studysync init --help')\n", cfg.Remote)
		return nil
	}
	fmt.Println("\nNext step: Run 'studysync login' to authenticate")
	return nil
}

// LoginCommand signs in against the configured remote, then runs the
// pull, push and flush that follow a sign-in.
func LoginCommand(ctx context.Context, app *App, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "Account email (prompted when empty)")
	passwordStdin := fs.Bool("password-stdin", false, "Read the password from stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := app.Config
	if !cfg.IsConfigured() {
		return fmt.Errorf("device not initialized. Run 'studysync init' first")
	}

	var (
		user *models.User
		err  error
	)
	switch r := app.Remote.(type) {
	case *sync.HTTPRemote:
		addr, pw, err := credentialsFrom(*email, *passwordStdin, os.Stdin)
		if err != nil {
			return err
		}
		tok, err := r.SignIn(ctx, addr, pw)
		if err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
		user = sync.UserFromToken(tok)
		if user == nil {
			if user, err = r.CurrentUser(ctx); err != nil {
				return fmt.Errorf("failed to fetch user: %w", err)
			}
		}
	case *db.Remote:
		addr, pw, err := credentialsFrom(*email, *passwordStdin, os.Stdin)
		if err != nil {
			return err
		}
		if user, err = r.SignIn(ctx, addr, pw); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
	case *charm.Remote:
		if user, err = r.Link(ctx); err != nil {
			return fmt.Errorf("failed to link charm account: %w", err)
		}
	default:
		return fmt.Errorf("remote %q does not support sign-in", cfg.Remote)
	}

	cfg.UserID = user.ID
	if user.Email != "" {
		cfg.Email = user.Email
	}
	if err := sync.SaveConfig(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println("\n✓ Authentication successful!")
	fmt.Printf("✓ User ID: %s\n", user.ID)

	for _, res := range app.Orch.HandleAuthEvent(ctx, models.AuthEvent{Kind: models.AuthSignedIn, User: user}) {
		fmt.Println(describeResult(res))
	}
	return nil
}

// LogoutCommand forgets the session locally and on the remote.
func LogoutCommand(ctx context.Context, app *App, args []string) error {
	fs := flag.NewFlagSet("logout", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch r := app.Remote.(type) {
	case *sync.HTTPRemote:
		if err := r.SignOut(ctx); err != nil {
			fmt.Printf("⚠ Server did not confirm sign-out: %v\n", err)
		}
	case *db.Remote:
		_ = r.SignOut(ctx)
	case *charm.Remote:
		r.Unlink(ctx)
	}
	app.Orch.HandleAuthEvent(ctx, models.AuthEvent{Kind: models.AuthSignedOut})

	cfg := app.Config
	sync.StoreToken(cfg, nil)
	cfg.UserID = ""
	cfg.Email = ""
	if err := sync.SaveConfig(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	fmt.Println("✓ Signed out")
	return nil
}

// credentialsFrom prompts for whatever the flags did not supply.
func credentialsFrom(email string, passwordStdin bool, in io.Reader) (string, string, error) {
	reader := bufio.NewReader(in)
	if email == "" {
		fmt.Print("Email: ")
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return "", "", fmt.Errorf("failed to read email: %w", err)
		}
		email = strings.TrimSpace(line)
	}
	if email == "" {
		return "", "", fmt.Errorf("email is required")
	}

	if passwordStdin {
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return "", "", fmt.Errorf("failed to read password: %w", err)
		}
		return email, strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Print("Password: ")
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", "", fmt.Errorf("failed to read password: %w", err)
	}
	return email, string(pw), nil
}
