// ABOUTME: OAuth2 configuration and token persistence for the HTTP remote
// ABOUTME: Password grant sign-in, refresh-token source and config-backed token storage
package sync

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Token endpoint path on the studysync backend.
const TokenPath = "/v1/auth/token"

// defaultClientID identifies this CLI to the backend token endpoint.
const defaultClientID = "studysync-cli"

// NewOAuthConfig creates the OAuth2 config for a studysync server.
// The client id can be overridden with STUDYSYNC_CLIENT_ID.
func NewOAuthConfig(server string) *oauth2.Config {
	clientID := os.Getenv("STUDYSYNC_CLIENT_ID")
	if clientID == "" {
		clientID = defaultClientID
	}

	return &oauth2.Config{
		ClientID: clientID,
		Endpoint: oauth2.Endpoint{
			TokenURL:  strings.TrimRight(server, "/") + TokenPath,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: []string{"progress", "profile"},
	}
}

// TokenFromConfig rebuilds the stored token, or nil when there is none.
func TokenFromConfig(cfg *Config) *oauth2.Token {
	if cfg == nil || cfg.Token == "" {
		return nil
	}
	tok := &oauth2.Token{
		AccessToken:  cfg.Token,
		RefreshToken: cfg.RefreshToken,
		TokenType:    "Bearer",
	}
	if cfg.TokenExpires != "" {
		if t, err := time.Parse(time.RFC3339, cfg.TokenExpires); err == nil {
			tok.Expiry = t
		}
	}
	return tok
}

// StoreToken copies a token and the identity it carries into cfg.
func StoreToken(cfg *Config, tok *oauth2.Token) {
	if tok == nil {
		cfg.Token = ""
		cfg.RefreshToken = ""
		cfg.TokenExpires = ""
		return
	}
	cfg.Token = tok.AccessToken
	if tok.RefreshToken != "" {
		cfg.RefreshToken = tok.RefreshToken
	}
	cfg.TokenExpires = ""
	if !tok.Expiry.IsZero() {
		cfg.TokenExpires = tok.Expiry.UTC().Format(time.RFC3339)
	}
	if u := UserFromToken(tok); u != nil {
		cfg.UserID = u.ID
		if u.Email != "" {
			cfg.Email = u.Email
		}
	}
}

// PasswordLogin exchanges an email and password for a token.
func PasswordLogin(ctx context.Context, client *http.Client, server, email, password string) (*oauth2.Token, error) {
	if client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, client)
	}
	tok, err := NewOAuthConfig(server).PasswordCredentialsToken(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange credentials: %w", classifyTokenError("sign in", err))
	}
	return tok, nil
}
