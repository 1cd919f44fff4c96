// ABOUTME: Tests for OAuth2 configuration and token persistence
// ABOUTME: Covers token endpoint wiring and config round trips of tokens
package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestOAuthConfigCreation(t *testing.T) {
	config := NewOAuthConfig("https://study.example.com/")

	require.NotNil(t, config)
	assert.Equal(t, "https://study.example.com/v1/auth/token", config.Endpoint.TokenURL)
	assert.Equal(t, oauth2.AuthStyleInParams, config.Endpoint.AuthStyle)
	assert.Equal(t, defaultClientID, config.ClientID)
}

func TestOAuthConfigClientIDOverride(t *testing.T) {
	t.Setenv("STUDYSYNC_CLIENT_ID", "custom-client")
	assert.Equal(t, "custom-client", NewOAuthConfig("http://x").ClientID)
}

func TestTokenConfigRoundTrip(t *testing.T) {
	expiry := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tok := (&oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expiry:       expiry,
	}).WithExtra(map[string]interface{}{"user_id": "u-1", "email": "a@example.com"})

	cfg := &Config{}
	StoreToken(cfg, tok)

	assert.Equal(t, "access", cfg.Token)
	assert.Equal(t, "refresh", cfg.RefreshToken)
	assert.Equal(t, "2026-03-01T12:00:00Z", cfg.TokenExpires)
	assert.Equal(t, "u-1", cfg.UserID)
	assert.Equal(t, "a@example.com", cfg.Email)

	back := TokenFromConfig(cfg)
	require.NotNil(t, back)
	assert.Equal(t, "access", back.AccessToken)
	assert.Equal(t, "refresh", back.RefreshToken)
	assert.True(t, expiry.Equal(back.Expiry))
}

func TestStoreTokenKeepsRefreshToken(t *testing.T) {
	cfg := &Config{RefreshToken: "old-refresh"}
	StoreToken(cfg, &oauth2.Token{AccessToken: "new"})
	assert.Equal(t, "old-refresh", cfg.RefreshToken)

	StoreToken(cfg, nil)
	assert.Empty(t, cfg.Token)
	assert.Empty(t, cfg.RefreshToken)
	assert.Nil(t, TokenFromConfig(cfg))
}

func TestUserFromToken(t *testing.T) {
	assert.Nil(t, UserFromToken(nil))
	assert.Nil(t, UserFromToken(&oauth2.Token{AccessToken: "x"}))

	tok := (&oauth2.Token{AccessToken: "x"}).WithExtra(map[string]interface{}{"user_id": "u-9"})
	u := UserFromToken(tok)
	require.NotNil(t, u)
	assert.Equal(t, "u-9", u.ID)
	assert.Empty(t, u.Email)
}
