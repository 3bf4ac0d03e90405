// Package server is an in-memory resource server speaking the session
// protocol the client expects: /register, /login, /refresh, /logout, /me and
// a couple of bearer protected business routes. It backs the integration
// tests and the sessionctl fake-backend command.
package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/jrsteele09/go-auth-session/token"
	"github.com/jrsteele09/go-auth-session/token/refresh"
	refreshrepofake "github.com/jrsteele09/go-auth-session/token/refresh/repofake"
	"github.com/jrsteele09/go-auth-session/users"
	fakeuserrepo "github.com/jrsteele09/go-auth-session/users/repofake"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultLoginAttempts      = 5
	defaultLoginAttemptWindow = 5 * time.Minute
	defaultRequestsPerMinute  = 1000
)

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	router   chi.Router
	logger   zerolog.Logger
	users    users.UserRepo
	tokens   *token.Manager
	validate *validator.Validate
	attempts *loginAttempts
	faults   *faults
	nowFunc  func() time.Time

	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	rotateRefresh      bool
	secret             string
	allowedOrigins     []string
	requestsPerMinute  int
	maxLoginAttempts   int
	loginWindow        time.Duration

	analysesLock sync.RWMutex
	analyses     map[string][]Analysis // user id to analyses, newest last
}

type Option func(*Server)

func WithEnv(env string) Option {
	return func(s *Server) {
		s.env = env
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(s *Server) {
		s.nowFunc = now
	}
}

func WithAccessTokenExpiry(expiry time.Duration) Option {
	return func(s *Server) {
		s.accessTokenExpiry = expiry
	}
}

func WithRefreshTokenExpiry(expiry time.Duration) Option {
	return func(s *Server) {
		s.refreshTokenExpiry = expiry
	}
}

// WithRefreshRotation makes /refresh return a new refresh token instead of
// echoing the presented one.
func WithRefreshRotation(rotate bool) Option {
	return func(s *Server) {
		s.rotateRefresh = rotate
	}
}

// WithSigningSecret sets the HMAC secret for access tokens. A random secret
// is used otherwise.
func WithSigningSecret(secret string) Option {
	return func(s *Server) {
		s.secret = secret
	}
}

func WithUserRepo(repo users.UserRepo) Option {
	return func(s *Server) {
		s.users = repo
	}
}

func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithRequestsPerMinute limits requests per client IP. Zero disables the limit.
func WithRequestsPerMinute(limit int) Option {
	return func(s *Server) {
		s.requestsPerMinute = limit
	}
}

// WithLoginAttemptLimit sets how many failed logins per email are accepted
// within window before /login answers 429.
func WithLoginAttemptLimit(attempts int, window time.Duration) Option {
	return func(s *Server) {
		s.maxLoginAttempts = attempts
		s.loginWindow = window
	}
}

func New(options ...Option) *Server {
	s := &Server{
		env:                "DEV",
		logger:             log.Logger,
		validate:           validator.New(),
		faults:             newFaults(),
		nowFunc:            time.Now,
		accessTokenExpiry:  config.DefaultAccessTokenLifetime,
		refreshTokenExpiry: refresh.DefaultExpiry,
		allowedOrigins:     []string{"http://localhost:3000"},
		requestsPerMinute:  defaultRequestsPerMinute,
		maxLoginAttempts:   defaultLoginAttempts,
		loginWindow:        defaultLoginAttemptWindow,
		analyses:           make(map[string][]Analysis),
	}
	for _, opt := range options {
		opt(s)
	}

	if s.users == nil {
		s.users = fakeuserrepo.NewFakeUserRepo()
	}
	if s.secret == "" {
		s.secret = uuid.NewString()
	}
	s.attempts = newLoginAttempts(s.maxLoginAttempts, s.loginWindow)

	refreshManager := refresh.NewManager(refreshrepofake.NewFakeRefreshTokenRepo(), s.refreshTokenExpiry, s.nowFunc)
	s.tokens = token.New(token.NewHMACSigner(s.secret), refreshManager,
		token.WithAccessTokenExpiry(s.accessTokenExpiry),
		token.WithRefreshRotation(s.rotateRefresh),
		token.WithNowFunc(s.nowFunc),
	)

	s.initRoutes()
	s.logRoutes()
	return s
}

// NewFromConfig builds a Server using the environment, token lifetime and
// rotation settings of cfg. Options are applied afterwards.
func NewFromConfig(cfg config.Config, options ...Option) *Server {
	opts := []Option{
		WithEnv(cfg.GetEnv()),
		WithAccessTokenExpiry(cfg.GetAccessTokenLifetime()),
		WithRefreshRotation(cfg.GetRotateRefreshTokens()),
	}
	return New(append(opts, options...)...)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Tokens exposes the token manager, e.g. to revoke an access token so the
// next request carrying it is rejected.
func (s *Server) Tokens() *token.Manager {
	return s.tokens
}

// RevokeAccessToken makes raw fail authentication from now on.
func (s *Server) RevokeAccessToken(raw string) error {
	return s.tokens.RevokeAccessToken(raw)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	_ = chi.Walk(s.router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		s.logger.Debug().Str("method", method).Str("path", route).Msg("route")
		return nil
	})
}
