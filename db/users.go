// ABOUTME: Account and session storage for the self-hosted backend
// ABOUTME: bcrypt password hashes, access/refresh token pairs and session lookup
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
)

// DefaultSessionTTL is how long an access token stays valid.
const DefaultSessionTTL = time.Hour

// User is an account row.
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// Session is an issued token pair.
type Session struct {
	AccessToken  string
	RefreshToken string
	UserID       string
	ExpiresAt    time.Time
}

// CreateUser registers an account.
func CreateUser(db *sql.DB, email, password string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{ID: uuid.New().String(), Email: email, CreatedAt: time.Now().UTC()}
	_, err = db.Exec(`
		INSERT INTO users (id, email, password_hash, created_at)
		VALUES (?, ?, ?, ?)
	`, user.ID, user.Email, string(hash), user.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetUser loads an account by id.
func GetUser(db *sql.DB, id string) (*User, error) {
	var u User
	err := db.QueryRow(`SELECT id, email, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Email, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// Authenticate checks a password and returns the account.
func Authenticate(db *sql.DB, email, password string) (*User, error) {
	var u User
	var hash string
	err := db.QueryRow(`
		SELECT id, email, password_hash, created_at FROM users WHERE email = ?
	`, strings.ToLower(strings.TrimSpace(email))).Scan(&u.ID, &u.Email, &hash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &u, nil
}

// CreateSession issues a token pair for userID.
func CreateSession(db *sql.DB, userID string, ttl time.Duration) (*Session, error) {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	s := &Session{
		AccessToken:  uuid.New().String(),
		RefreshToken: uuid.New().String(),
		UserID:       userID,
		ExpiresAt:    time.Now().UTC().Add(ttl),
	}
	_, err := db.Exec(`
		INSERT INTO sessions (access_token, refresh_token, user_id, expires_at)
		VALUES (?, ?, ?, ?)
	`, s.AccessToken, s.RefreshToken, s.UserID, s.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return s, nil
}

// LookupSession resolves an access token.
func LookupSession(db *sql.DB, accessToken string) (*Session, error) {
	s, err := scanSession(db.QueryRow(`
		SELECT access_token, refresh_token, user_id, expires_at FROM sessions WHERE access_token = ?
	`, accessToken))
	if err != nil {
		return nil, err
	}
	if time.Now().After(s.ExpiresAt) {
		return nil, ErrSessionExpired
	}
	return s, nil
}

// RefreshSession swaps a refresh token for a new token pair.
func RefreshSession(db *sql.DB, refreshToken string, ttl time.Duration) (*Session, error) {
	old, err := scanSession(db.QueryRow(`
		SELECT access_token, refresh_token, user_id, expires_at FROM sessions WHERE refresh_token = ?
	`, refreshToken))
	if err != nil {
		return nil, err
	}
	if err := DeleteSession(db, old.AccessToken); err != nil {
		return nil, err
	}
	return CreateSession(db, old.UserID, ttl)
}

// DeleteSession revokes an access token.
func DeleteSession(db *sql.DB, accessToken string) error {
	if _, err := db.Exec(`DELETE FROM sessions WHERE access_token = ?`, accessToken); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func scanSession(row *sql.Row) (*Session, error) {
	var s Session
	err := row.Scan(&s.AccessToken, &s.RefreshToken, &s.UserID, &s.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &s, nil
}
