// ABOUTME: Sync configuration storage and credential management
// ABOUTME: JSON config at XDG paths, STUDYSYNC_* environment overrides and ULID device ids
package sync

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/oklog/ulid/v2"
)

// AppName names the XDG data directory.
const AppName = "studysync"

// Remote kinds.
const (
	RemoteHTTP   = "http"
	RemoteSQLite = "sqlite"
	RemoteCharm  = "charm"
)

const (
	DefaultSyncInterval  = 2 * time.Minute
	DefaultRetryInterval = 5 * time.Minute
	DefaultKeyPrefix     = "studysync:"
)

// Config stores remote credentials and synchronization settings.
type Config struct {
	Remote        string `json:"remote"`
	Server        string `json:"server,omitempty"`
	Token         string `json:"token,omitempty"`
	RefreshToken  string `json:"refresh_token,omitempty"`
	TokenExpires  string `json:"token_expires,omitempty"`
	UserID        string `json:"user_id,omitempty"`
	Email         string `json:"email,omitempty"`
	DisplayName   string `json:"display_name,omitempty"`
	DeviceID      string `json:"device_id"`
	DataDir       string `json:"data_dir,omitempty"`
	RemoteDB      string `json:"remote_db,omitempty"`
	CharmHost     string `json:"charm_host,omitempty"`
	KeyPrefix     string `json:"key_prefix"`
	SyncInterval  string `json:"sync_interval,omitempty"`
	RetryInterval string `json:"retry_interval,omitempty"`
	AutoSync      bool   `json:"auto_sync"`
	AuditHash     string `json:"audit_hash,omitempty"`
	LogLevel      string `json:"log_level,omitempty"`
	LogFile       string `json:"log_file,omitempty"`
}

// ConfigDir returns the XDG-compliant directory for configuration and data.
func ConfigDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// ConfigPath returns the XDG-compliant config file path.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// DefaultConfig returns a config with every default filled in.
func DefaultConfig() *Config {
	return &Config{
		Remote:    RemoteHTTP,
		KeyPrefix: DefaultKeyPrefix,
		AutoSync:  true,
	}
}

// LoadConfig loads configuration from the XDG data directory.
// Returns defaults if the file is not found.
// Environment variables override file values:
// - STUDYSYNC_REMOTE
// - STUDYSYNC_SERVER
// - STUDYSYNC_TOKEN
// - STUDYSYNC_USER_ID
// - STUDYSYNC_DEVICE_ID
// - STUDYSYNC_DATA_DIR
// - STUDYSYNC_REMOTE_DB
// - STUDYSYNC_CHARM_HOST
// - STUDYSYNC_AUTO_SYNC.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := json.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrides := map[string]*string{
		"STUDYSYNC_REMOTE":     &cfg.Remote,
		"STUDYSYNC_SERVER":     &cfg.Server,
		"STUDYSYNC_TOKEN":      &cfg.Token,
		"STUDYSYNC_USER_ID":    &cfg.UserID,
		"STUDYSYNC_DEVICE_ID":  &cfg.DeviceID,
		"STUDYSYNC_DATA_DIR":   &cfg.DataDir,
		"STUDYSYNC_REMOTE_DB":  &cfg.RemoteDB,
		"STUDYSYNC_CHARM_HOST": &cfg.CharmHost,
	}
	for env, field := range overrides {
		if v := os.Getenv(env); v != "" {
			*field = v
		}
	}
	if autoSync := os.Getenv("STUDYSYNC_AUTO_SYNC"); autoSync != "" {
		cfg.AutoSync = autoSync == "true" || autoSync == "1"
	}
}

// SaveConfig writes configuration with restricted permissions.
func SaveConfig(cfg *Config) error {
	path := ConfigPath()

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// IsConfigured reports whether the selected remote has what it needs to connect.
func (c *Config) IsConfigured() bool {
	if c == nil || c.DeviceID == "" {
		return false
	}
	switch c.Remote {
	case RemoteHTTP:
		return c.Server != ""
	case RemoteSQLite:
		return c.RemoteDB != ""
	case RemoteCharm:
		return true
	default:
		return false
	}
}

// DataPath returns the local data directory, defaulting under ConfigDir.
func (c *Config) DataPath() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	return filepath.Join(ConfigDir(), "data")
}

// SyncEvery returns the periodic push interval.
func (c *Config) SyncEvery() time.Duration {
	return parseInterval(c.SyncInterval, DefaultSyncInterval)
}

// RetryEvery returns the retry queue poll interval.
func (c *Config) RetryEvery() time.Duration {
	return parseInterval(c.RetryInterval, DefaultRetryInterval)
}

func parseInterval(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// NewULID generates a time-ordered identifier.
func NewULID() string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// GenerateDeviceID generates a new ULID for device identification.
func GenerateDeviceID() string {
	return NewULID()
}
