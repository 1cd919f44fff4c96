// ABOUTME: Shared wiring for CLI commands
// ABOUTME: Builds the logger, local badger store, audit log, remote and orchestrator from config
package cli

import (
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/harperreed/studysync/audit"
	"github.com/harperreed/studysync/charm"
	"github.com/harperreed/studysync/db"
	"github.com/harperreed/studysync/kvstore"
	"github.com/harperreed/studysync/logging"
	"github.com/harperreed/studysync/sync"
)

// App is everything a command needs, opened from one config.
type App struct {
	Config *sync.Config
	Logger *zap.Logger
	Store  kvstore.Store
	Audit  *audit.Log
	Remote sync.Remote
	Orch   *sync.Orchestrator

	closers []func() error
}

// Options tweaks how an App is opened.
type Options struct {
	// Quiet keeps logs off stderr, for the MCP server and the TUI.
	Quiet bool
	// Offline skips building the remote.
	Offline bool
	// Store replaces the on-disk badger store, for tests.
	Store kvstore.Store
}

// OpenApp wires an App from cfg. Close releases the store and any remote
// database.
func OpenApp(cfg *sync.Config, opts Options) (*App, error) {
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Quiet: opts.Quiet})
	if err != nil {
		return nil, err
	}
	app := &App{Config: cfg, Logger: logger}

	store := opts.Store
	if store == nil {
		b, err := kvstore.OpenBadger(cfg.DataPath())
		if err != nil {
			return nil, fmt.Errorf("failed to open local store: %w", err)
		}
		store = b
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = sync.DefaultKeyPrefix
	}
	app.Store = kvstore.WithPrefix(store, prefix)
	app.closers = append(app.closers, app.Store.Close)

	hasher, err := audit.HasherByName(cfg.AuditHash)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Audit = audit.New(app.Store, audit.Options{Hasher: hasher, Logger: logger})

	var conn sync.Connectivity
	if !opts.Offline && cfg.IsConfigured() {
		remote, closer, err := NewRemote(cfg, logger)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		app.Remote = remote
		if closer != nil {
			app.closers = append(app.closers, closer)
		}
		if probe := probeFor(cfg, remote); probe != nil {
			conn = sync.NewNetworkMonitor(probe, 30*time.Second, logger)
		}
	}

	app.Orch = sync.New(sync.Options{
		Config:       cfg,
		Remote:       app.Remote,
		Store:        app.Store,
		Audit:        app.Audit,
		Connectivity: conn,
		Logger:       logger,
	})
	return app, nil
}

// Close releases resources in reverse order of opening.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	_ = a.Logger.Sync()
	return first
}

// NewRemote builds the backend selected by cfg.Remote.
func NewRemote(cfg *sync.Config, logger *zap.Logger) (sync.Remote, func() error, error) {
	switch cfg.Remote {
	case sync.RemoteHTTP:
		r := sync.NewHTTPRemote(cfg, logger)
		r.OnToken = func(tok *oauth2.Token) {
			sync.StoreToken(cfg, tok)
			if err := sync.SaveConfig(cfg); err != nil {
				logger.Warn("failed to persist refreshed token", zap.Error(err))
			}
		}
		return r, nil, nil

	case sync.RemoteSQLite:
		database, err := db.OpenDatabase(cfg.RemoteDB)
		if err != nil {
			return nil, nil, err
		}
		r := db.NewRemote(database, cfg.DeviceID)
		if cfg.UserID != "" {
			if err := r.Resume(cfg.UserID); err != nil {
				logger.Warn("stored user not found in remote database", zap.String("user_id", cfg.UserID), zap.Error(err))
			}
		}
		return r, database.Close, nil

	case sync.RemoteCharm:
		client, err := charm.NewClient(charm.NewConfig(cfg.CharmHost, cfg.KeyPrefix))
		if err != nil {
			return nil, nil, err
		}
		return charm.NewRemote(client), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown remote %q (want http, sqlite or charm)", cfg.Remote)
}

// OpenRemoteDB opens the sqlite row store named in cfg.
func OpenRemoteDB(cfg *sync.Config) (*sql.DB, error) {
	if cfg.RemoteDB == "" {
		return nil, fmt.Errorf("no remote database configured (set remote_db or --db)")
	}
	return db.OpenDatabase(cfg.RemoteDB)
}

// probeFor picks the connectivity probe for a remote.
func probeFor(cfg *sync.Config, remote sync.Remote) sync.ProbeFunc {
	if cfg.Remote == sync.RemoteHTTP && cfg.Server != "" {
		if u, err := url.Parse(cfg.Server); err == nil && u.Host != "" {
			host := u.Host
			if u.Port() == "" {
				port := "443"
				if u.Scheme == "http" {
					port = "80"
				}
				host = net.JoinHostPort(u.Hostname(), port)
			}
			return sync.TCPProbe(host)
		}
	}
	if p, ok := remote.(sync.Pinger); ok {
		return sync.PingProbe(p)
	}
	return nil
}
