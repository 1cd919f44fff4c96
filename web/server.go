// ABOUTME: REST backend serving the study row store over HTTP
// ABOUTME: Token endpoint, bearer auth and per-user row endpoints backed by the db package
package web

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/harperreed/studysync/db"
	"github.com/harperreed/studysync/logging"
	"github.com/harperreed/studysync/models"
)

type ctxKey struct{}

// Server exposes a db database with the API the HTTP remote speaks.
type Server struct {
	db     *sql.DB
	logger *zap.Logger
	ttl    time.Duration
	mux    *http.ServeMux
}

// NewServer wires the routes. A zero ttl uses db.DefaultSessionTTL.
func NewServer(database *sql.DB, ttl time.Duration, logger *zap.Logger) *Server {
	s := &Server{
		db:     database,
		logger: logging.OrNop(logger),
		ttl:    ttl,
		mux:    http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /v1/health", s.handleHealth)
	s.mux.HandleFunc("POST /v1/auth/token", s.handleToken)
	s.mux.HandleFunc("POST /v1/auth/logout", s.authed(s.handleLogout))
	s.mux.HandleFunc("GET /v1/auth/user", s.authed(s.handleUser))
	s.mux.HandleFunc("PUT /v1/profiles/{id}", s.authed(s.handlePutProfile))
	s.mux.HandleFunc("GET /v1/progress/{user}", s.authed(s.handleGetProgress))
	s.mux.HandleFunc("PUT /v1/progress/{user}", s.authed(s.handlePutProgress))
	s.mux.HandleFunc("POST /v1/leaderboard", s.authed(s.handlePostLeaderboard))
	s.mux.HandleFunc("GET /v1/leaderboard", s.handleListLeaderboard)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe runs until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting studysync server", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleToken implements the password and refresh_token grants.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	var (
		session *db.Session
		err     error
	)
	switch r.PostForm.Get("grant_type") {
	case "password":
		var u *db.User
		u, err = db.Authenticate(s.db, r.PostForm.Get("username"), r.PostForm.Get("password"))
		if err == nil {
			session, err = db.CreateSession(s.db, u.ID, s.ttl)
		}
	case "refresh_token":
		session, err = db.RefreshSession(s.db, r.PostForm.Get("refresh_token"), s.ttl)
	default:
		writeError(w, http.StatusBadRequest, "unsupported_grant_type")
		return
	}

	if errors.Is(err, db.ErrInvalidCredentials) || errors.Is(err, db.ErrSessionNotFound) {
		writeError(w, http.StatusBadRequest, "invalid_grant")
		return
	}
	if err != nil {
		s.fail(w, "token", err)
		return
	}

	u, err := db.GetUser(s.db, session.UserID)
	if err != nil {
		s.fail(w, "token", err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  session.AccessToken,
		"token_type":    "Bearer",
		"refresh_token": session.RefreshToken,
		"expires_in":    int(time.Until(session.ExpiresAt).Seconds()),
		"user_id":       u.ID,
		"email":         u.Email,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := db.DeleteSession(s.db, sessionFrom(r).AccessToken); err != nil {
		s.fail(w, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	u, err := db.GetUser(s.db, sessionFrom(r).UserID)
	if errors.Is(err, db.ErrUserNotFound) {
		writeError(w, http.StatusUnauthorized, "unknown user")
		return
	}
	if err != nil {
		s.fail(w, "get user", err)
		return
	}
	writeJSON(w, http.StatusOK, models.User{ID: u.ID, Email: u.Email})
}

func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.owns(w, r, id) {
		return
	}
	var p models.Profile
	if !readJSON(w, r, &p) {
		return
	}
	if p.ID != id {
		writeError(w, http.StatusBadRequest, "profile id does not match path")
		return
	}
	if err := db.UpsertProfile(s.db, p); err != nil {
		s.fail(w, "upsert profile", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user")
	if !s.owns(w, r, userID) {
		return
	}
	row, err := db.GetProgress(s.db, userID)
	if errors.Is(err, db.ErrProgressNotFound) {
		writeError(w, http.StatusNotFound, "no progress row")
		return
	}
	if err != nil {
		s.fail(w, "get progress", err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handlePutProgress(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user")
	if !s.owns(w, r, userID) {
		return
	}
	var row models.ProgressRow
	if !readJSON(w, r, &row) {
		return
	}
	if row.UserID != userID {
		writeError(w, http.StatusBadRequest, "user_id does not match path")
		return
	}
	if err := db.UpsertProgress(s.db, row); err != nil {
		s.fail(w, "upsert progress", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePostLeaderboard(w http.ResponseWriter, r *http.Request) {
	var row models.LeaderboardRow
	if !readJSON(w, r, &row) {
		return
	}
	if !s.owns(w, r, row.UserID) {
		return
	}
	if err := db.UpsertLeaderboard(s.db, row); err != nil {
		s.fail(w, "upsert leaderboard", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	rows, err := db.ListLeaderboard(s.db, limit)
	if err != nil {
		s.fail(w, "list leaderboard", err)
		return
	}
	if rows == nil {
		rows = []models.LeaderboardRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// authed resolves the bearer token into a session before calling next.
func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		session, err := db.LookupSession(s.db, token)
		if errors.Is(err, db.ErrSessionNotFound) || errors.Is(err, db.ErrSessionExpired) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		if err != nil {
			s.fail(w, "lookup session", err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, session)))
	}
}

// owns rejects requests touching another user's rows.
func (s *Server) owns(w http.ResponseWriter, r *http.Request, ownerID string) bool {
	session := sessionFrom(r)
	if ownerID != session.UserID {
		s.logger.Warn("rejected cross-user write",
			zap.String("user_id", session.UserID),
			zap.String("owner_id", ownerID),
			zap.String("path", r.URL.Path))
		writeError(w, http.StatusForbidden, "row belongs to another user")
		return false
	}
	return true
}

// fail maps storage errors onto status codes. Constraint failures are the
// caller's fault; everything else is ours.
func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		writeError(w, http.StatusConflict, "referenced row does not exist")
	case strings.Contains(msg, "database is locked"):
		writeError(w, http.StatusServiceUnavailable, "database busy")
	default:
		s.logger.Error("request failed", zap.String("op", op), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func sessionFrom(r *http.Request) *db.Session {
	s, _ := r.Context().Value(ctxKey{}).(*db.Session)
	return s
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
