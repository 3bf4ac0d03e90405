package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-session/oauthmodel"
	"github.com/jrsteele09/go-auth-session/token"
	"github.com/jrsteele09/go-auth-session/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"
)

const maxBodyBytes = 1 << 20

// Analysis is a record created by POST /analyze and listed by GET /history.
type Analysis struct {
	ID        string `json:"analysis_id"`
	Role      string `json:"role"`
	Level     string `json:"level,omitempty"`
	Timestamp string `json:"timestamp"`
}

// AnalyzeRequest is the body of POST /analyze.
type AnalyzeRequest struct {
	Role  string `json:"role" validate:"required"`
	Level string `json:"level"`
}

// History is the body of GET /history.
type History struct {
	Total    int        `json:"total"`
	Analyses []Analysis `json:"analyses"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// RootHandler describes the API.
func (s *Server) RootHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": "Session API",
			"status":  "Authentication Enabled",
		})
	}
}

// RegisterHandler creates an account. It never authenticates the caller.
func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req oauthmodel.CredentialsRequest
		if err := decodeJSON(r, &req); err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body")
			return
		}

		req.Email = strings.TrimSpace(req.Email)
		if err := s.validate.Var(req.Email, "required,email"); err != nil {
			writeDetail(w, http.StatusBadRequest, "Invalid email format")
			return
		}
		if _, err := s.users.GetByEmail(req.Email); err == nil {
			writeDetail(w, http.StatusBadRequest, "Email already registered")
			return
		}
		if err := users.ValidatePasswordStrength(req.Password); err != nil {
			writeDetail(w, http.StatusBadRequest, "%s", err.Error())
			return
		}

		hash, err := users.HashPassword(req.Password)
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, "Registration failed: %v", err)
			return
		}
		user := &users.User{
			Email:        req.Email,
			PasswordHash: hash,
			CreatedAt:    s.nowFunc(),
		}
		if err := s.users.Create(user); err != nil {
			if errors.Is(err, users.ErrAlreadyExists) {
				writeDetail(w, http.StatusBadRequest, "Email already registered")
				return
			}
			writeDetail(w, http.StatusInternalServerError, "Registration failed: %v", err)
			return
		}

		hlog.FromRequest(r).Info().Str("user_id", user.ID).Msg("user registered")
		writeJSON(w, http.StatusOK, users.Summary{
			Message: "Registration successful",
			Email:   user.Email,
			ID:      users.ID(user.ID),
		})
	}
}

// LoginHandler exchanges credentials for an access and refresh token pair.
// Failed attempts count towards the per-email login limit.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req oauthmodel.CredentialsRequest
		if err := decodeJSON(r, &req); err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body")
			return
		}
		req.Email = strings.TrimSpace(req.Email)

		now := s.nowFunc()
		if !s.attempts.allowed(req.Email, now) {
			writeDetail(w, http.StatusTooManyRequests, "Too many login attempts. Try again in %d minutes.", int(s.loginWindow/time.Minute))
			return
		}

		user, err := s.users.GetByEmail(req.Email)
		if err != nil || !users.CheckPasswordHash(req.Password, user.PasswordHash) {
			s.attempts.record(req.Email, now)
			writeDetail(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		s.attempts.clear(req.Email)

		tokens, err := s.tokens.Issue(user.ID)
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, "Login failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, tokens)
	}
}

// RefreshHandler mints a new access token from a refresh token.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req oauthmodel.RefreshRequest
		if err := decodeJSON(r, &req); err != nil || req.RefreshToken == "" {
			writeDetail(w, http.StatusUnauthorized, "Invalid refresh token")
			return
		}

		tokens, err := s.tokens.Refresh(req.RefreshToken)
		switch {
		case errors.Is(err, token.ErrRefreshTokenExpired):
			writeDetail(w, http.StatusUnauthorized, "Refresh token expired")
			return
		case errors.Is(err, token.ErrInvalidRefreshToken):
			writeDetail(w, http.StatusUnauthorized, "Invalid refresh token")
			return
		case err != nil:
			writeDetail(w, http.StatusInternalServerError, "Token refresh failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, tokens)
	}
}

// LogoutHandler deletes the caller's refresh token. The token is read from
// the refresh_token query parameter or, failing that, the JSON body.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFromContext(r.Context())

		rt := r.URL.Query().Get("refresh_token")
		if rt == "" {
			var req oauthmodel.LogoutRequest
			if err := decodeJSON(r, &req); err == nil {
				rt = req.RefreshToken
			}
		}
		if rt == "" {
			writeDetail(w, http.StatusUnprocessableEntity, "refresh_token is required")
			return
		}

		if err := s.tokens.RevokeRefreshToken(rt, user.ID); err != nil && !errors.Is(err, token.ErrInvalidRefreshToken) {
			writeDetail(w, http.StatusInternalServerError, "Logout failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, messageResponse{Message: "Logout successful"})
	}
}

// MeHandler returns the authenticated user's profile.
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFromContext(r.Context())
		writeJSON(w, http.StatusOK, user.Profile())
	}
}

// HistoryHandler lists the caller's analyses, newest first.
func (s *Server) HistoryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFromContext(r.Context())

		s.analysesLock.RLock()
		stored := s.analyses[user.ID]
		history := History{Total: len(stored), Analyses: make([]Analysis, 0, len(stored))}
		for i := len(stored) - 1; i >= 0; i-- {
			history.Analyses = append(history.Analyses, stored[i])
		}
		s.analysesLock.RUnlock()

		writeJSON(w, http.StatusOK, history)
	}
}

// AnalyzeHandler records an analysis for the caller.
func (s *Server) AnalyzeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFromContext(r.Context())

		var req AnalyzeRequest
		if err := decodeJSON(r, &req); err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body")
			return
		}
		if err := s.validate.Struct(req); err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, "role is required")
			return
		}

		analysis := Analysis{
			ID:        uuid.NewString(),
			Role:      req.Role,
			Level:     req.Level,
			Timestamp: s.nowFunc().UTC().Format(time.RFC3339),
		}
		s.analysesLock.Lock()
		s.analyses[user.ID] = append(s.analyses[user.ID], analysis)
		s.analysesLock.Unlock()

		writeJSON(w, http.StatusOK, analysis)
	}
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return io.EOF
	}
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, oauthmodel.NewErrorResponse(format, args...))
}
