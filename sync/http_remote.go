// ABOUTME: REST client implementing Remote against a studysync server
// ABOUTME: Bearer tokens via oauth2 with refresh, status-based error classification
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	gosync "sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/harperreed/studysync/logging"
	"github.com/harperreed/studysync/models"
)

// DefaultHTTPTimeout bounds every remote call.
const DefaultHTTPTimeout = 15 * time.Second

// HTTPRemote talks to a studysync server over its REST API.
type HTTPRemote struct {
	base   string
	oauth  *oauth2.Config
	client *http.Client
	feed   *models.AuthFeed
	logger *zap.Logger

	mu      gosync.RWMutex
	source  oauth2.TokenSource
	current string
	user    *models.User

	// OnToken is called whenever a new token is issued or refreshed.
	OnToken func(*oauth2.Token)
}

// NewHTTPRemote creates a client for cfg.Server, resuming the stored token.
func NewHTTPRemote(cfg *Config, logger *zap.Logger) *HTTPRemote {
	r := &HTTPRemote{
		base:   strings.TrimRight(cfg.Server, "/"),
		oauth:  NewOAuthConfig(cfg.Server),
		client: &http.Client{Timeout: DefaultHTTPTimeout},
		feed:   models.NewAuthFeed(),
		logger: logging.OrNop(logger),
	}
	if tok := TokenFromConfig(cfg); tok != nil {
		var user *models.User
		if cfg.UserID != "" {
			user = &models.User{ID: cfg.UserID, Email: cfg.Email}
		}
		r.setToken(tok, user)
	}
	return r
}

// SetHTTPClient replaces the underlying client, e.g. for tests.
func (r *HTTPRemote) SetHTTPClient(c *http.Client) {
	r.client = c
}

// SubscribeAuth registers a listener for identity transitions.
func (r *HTTPRemote) SubscribeAuth(fn func(models.AuthEvent)) func() {
	return r.feed.Subscribe(fn)
}

// SignIn exchanges credentials for a token and announces the new identity.
func (r *HTTPRemote) SignIn(ctx context.Context, email, password string) (*oauth2.Token, error) {
	tok, err := PasswordLogin(ctx, r.client, r.base, email, password)
	if err != nil {
		return nil, err
	}
	user := UserFromToken(tok)
	if user == nil {
		user = &models.User{Email: email}
	}
	r.setToken(tok, user)

	if user.ID == "" {
		fetched, err := r.FetchUser(ctx)
		if err != nil {
			return nil, err
		}
		user = fetched
	}

	r.emitToken(tok)
	r.feed.Publish(models.AuthEvent{Kind: models.AuthSignedIn, User: user})
	return tok, nil
}

// SignOut revokes the session on the server, best effort, and forgets it.
func (r *HTTPRemote) SignOut(ctx context.Context) error {
	var revokeErr error
	if r.hasToken() {
		revokeErr = r.do(ctx, "sign out", http.MethodPost, "/v1/auth/logout", nil, nil)
	}
	r.mu.Lock()
	r.source = nil
	r.current = ""
	r.user = nil
	r.mu.Unlock()

	r.emitToken(nil)
	r.feed.Publish(models.AuthEvent{Kind: models.AuthSignedOut})
	if revokeErr != nil && !IsUnauthorized(revokeErr) {
		return revokeErr
	}
	return nil
}

// CurrentUser verifies the session with the server. It returns nil, nil when
// no token is held.
func (r *HTTPRemote) CurrentUser(ctx context.Context) (*models.User, error) {
	if !r.hasToken() {
		return nil, nil
	}
	return r.FetchUser(ctx)
}

// FetchUser asks the server who the token belongs to.
func (r *HTTPRemote) FetchUser(ctx context.Context) (*models.User, error) {
	var u models.User
	if err := r.do(ctx, "get user", http.MethodGet, "/v1/auth/user", nil, &u); err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.user = &u
	r.mu.Unlock()
	copied := u
	return &copied, nil
}

// Ping checks that the server answers its health endpoint.
func (r *HTTPRemote) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base+"/v1/health", nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return &models.RemoteError{Op: "ping", Kind: models.RemoteConnectivity, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &models.RemoteError{Op: "ping", Status: resp.StatusCode, Kind: ClassifyStatus(resp.StatusCode), Err: errors.New(resp.Status)}
	}
	return nil
}

func (r *HTTPRemote) UpsertProfile(ctx context.Context, p models.Profile) error {
	return r.do(ctx, "upsert profile", http.MethodPut, "/v1/profiles/"+url.PathEscape(p.ID), p, nil)
}

func (r *HTTPRemote) UpsertProgress(ctx context.Context, row models.ProgressRow) error {
	return r.do(ctx, "upsert progress", http.MethodPut, "/v1/progress/"+url.PathEscape(row.UserID), row, nil)
}

func (r *HTTPRemote) FetchProgress(ctx context.Context, userID string) (*models.ProgressRow, error) {
	var row models.ProgressRow
	err := r.do(ctx, "fetch progress", http.MethodGet, "/v1/progress/"+url.PathEscape(userID), nil, &row)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *HTTPRemote) UpsertLeaderboard(ctx context.Context, row models.LeaderboardRow) error {
	return r.do(ctx, "upsert leaderboard", http.MethodPost, "/v1/leaderboard", row, nil)
}

func (r *HTTPRemote) do(ctx context.Context, op, method, path string, in, out any) error {
	tok, err := r.token(op)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.base+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	tok.SetAuthHeader(req)

	resp, err := r.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return &models.RemoteError{Op: op, Kind: models.RemoteConnectivity, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return &models.RemoteError{
			Op:     op,
			Status: resp.StatusCode,
			Kind:   ClassifyStatus(resp.StatusCode),
			Err:    errors.New(errorMessage(resp)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

// token returns a valid token, refreshing through the oauth2 source when the
// current one has expired.
func (r *HTTPRemote) token(op string) (*oauth2.Token, error) {
	r.mu.RLock()
	src := r.source
	prev := r.current
	r.mu.RUnlock()

	if src == nil {
		return nil, &models.RemoteError{Op: op, Kind: models.RemoteUnauthorized, Err: models.ErrNotAuthenticated}
	}
	tok, err := src.Token()
	if err != nil {
		return nil, classifyTokenError(op, err)
	}

	if tok.AccessToken != prev {
		r.mu.Lock()
		r.current = tok.AccessToken
		user := r.user
		r.mu.Unlock()

		r.logger.Debug("access token refreshed")
		r.emitToken(tok)
		r.feed.Publish(models.AuthEvent{Kind: models.AuthTokenRefreshed, User: user})
	}
	return tok, nil
}

func (r *HTTPRemote) setToken(tok *oauth2.Token, user *models.User) {
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, r.client)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.source = r.oauth.TokenSource(ctx, tok)
	r.current = tok.AccessToken
	r.user = user
}

func (r *HTTPRemote) hasToken() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.source != nil
}

func (r *HTTPRemote) emitToken(tok *oauth2.Token) {
	if r.OnToken != nil {
		r.OnToken(tok)
	}
}

// ClassifyStatus maps an HTTP status onto a remote error kind.
func ClassifyStatus(code int) models.RemoteErrorKind {
	switch code {
	case http.StatusUnauthorized:
		return models.RemoteUnauthorized
	case http.StatusForbidden:
		return models.RemotePolicy
	case http.StatusNotFound:
		return models.RemoteNotFound
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return models.RemoteConnectivity
	}
	if code >= 400 && code < 500 {
		return models.RemoteInvalidRequest
	}
	return models.RemoteServer
}

// UserFromToken reads the identity the token endpoint returns alongside the
// access token.
func UserFromToken(tok *oauth2.Token) *models.User {
	if tok == nil {
		return nil
	}
	id, _ := tok.Extra("user_id").(string)
	if id == "" {
		return nil
	}
	email, _ := tok.Extra("email").(string)
	return &models.User{ID: id, Email: email}
}

func classifyTokenError(op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		kind := ClassifyStatus(re.Response.StatusCode)
		if re.Response.StatusCode == http.StatusBadRequest {
			// invalid_grant: the refresh token or credentials were rejected
			kind = models.RemoteUnauthorized
		}
		return &models.RemoteError{Op: op, Status: re.Response.StatusCode, Kind: kind, Err: err}
	}
	if strings.Contains(err.Error(), "refresh token is not set") {
		return &models.RemoteError{Op: op, Kind: models.RemoteUnauthorized, Err: err}
	}
	return &models.RemoteError{Op: op, Kind: models.RemoteConnectivity, Err: err}
}

func errorMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	if msg := strings.TrimSpace(string(raw)); msg != "" {
		return msg
	}
	return resp.Status
}
