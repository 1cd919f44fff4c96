// ABOUTME: Configuration for the Charm KV remote
// ABOUTME: Server host, key prefix and sync staleness settings

package charm

import (
	"os"
	"time"

	"github.com/charmbracelet/charm/kv"
)

const (
	// DefaultCharmHost is the self-hosted 2389 research server.
	DefaultCharmHost = "charm.2389.dev"

	// AppName is the application name for Charm KV database.
	AppName = "studysync"

	// DefaultKeyPrefix namespaces every row key.
	DefaultKeyPrefix = "studysync:"
)

// Config holds charm connection settings.
type Config struct {
	// Host is the charm server hostname (default: charm.2389.dev)
	Host string `json:"host,omitempty"`

	// KeyPrefix is prepended to every row key.
	KeyPrefix string `json:"key_prefix,omitempty"`

	// StaleThreshold is the duration before data is considered stale and needs a sync
	StaleThreshold time.Duration `json:"stale_threshold,omitempty"`
}

// DefaultConfig returns a new config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:           DefaultCharmHost,
		KeyPrefix:      DefaultKeyPrefix,
		StaleThreshold: kv.DefaultStaleThreshold,
	}
}

// NewConfig fills unset values with defaults. CHARM_HOST overrides an empty host.
func NewConfig(host, keyPrefix string) *Config {
	cfg := DefaultConfig()
	if host == "" {
		host = os.Getenv("CHARM_HOST")
	}
	if host != "" {
		cfg.Host = host
	}
	if keyPrefix != "" {
		cfg.KeyPrefix = keyPrefix
	}
	return cfg
}
