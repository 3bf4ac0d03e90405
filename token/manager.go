// Package token issues and verifies the credentials handed out by the fake
// resource server: JWT access tokens and opaque refresh tokens.
package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-session/oauthmodel"
	"github.com/jrsteele09/go-auth-session/token/refresh"
	"github.com/pkg/errors"
)

var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrRefreshTokenUsed    = errors.New("refresh token used as access token")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)

const (
	accessTokenType = "access"
	issuer          = "go-auth-session"
)

// AccessClaims are the claims of an issued access token.
type AccessClaims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

type Manager struct {
	signer            Signer
	refresh           *refresh.Manager
	revoked           RevokedTokenCache
	accessTokenExpiry time.Duration
	rotateRefresh     bool
	nowFunc           func() time.Time
}

type ManagerOption func(*Manager)

func WithAccessTokenExpiry(expiry time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessTokenExpiry = expiry
	}
}

// WithRefreshRotation makes Refresh issue a new refresh token and retire the
// presented one.
func WithRefreshRotation(rotate bool) ManagerOption {
	return func(m *Manager) {
		m.rotateRefresh = rotate
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithRevokedTokenCache(cache RevokedTokenCache) ManagerOption {
	return func(m *Manager) {
		m.revoked = cache
	}
}

func New(signer Signer, refreshManager *refresh.Manager, options ...ManagerOption) *Manager {
	m := &Manager{
		signer:  signer,
		refresh: refreshManager,
		revoked: NewInMemoryRevokedTokenCache(),
	}

	for _, opt := range options {
		opt(m)
	}

	if m.accessTokenExpiry == 0 {
		m.accessTokenExpiry = time.Hour
	}
	if m.nowFunc == nil {
		m.nowFunc = time.Now
	}
	return m
}

// CreateAccessToken signs a new access token for userID.
func (m *Manager) CreateAccessToken(userID string) (string, error) {
	now := m.nowFunc()
	claims := jwt.MapClaims{
		"iss":  issuer,
		"sub":  userID,
		"type": accessTokenType,
		"iat":  now.Unix(),
		"exp":  now.Add(m.accessTokenExpiry).Unix(),
		"jti":  uuid.New().String(),
	}
	return m.signer.Sign(claims)
}

// Issue creates the token pair returned by a successful login.
func (m *Manager) Issue(userID string) (*oauthmodel.TokenResponse, error) {
	access, err := m.CreateAccessToken(userID)
	if err != nil {
		return nil, errors.Wrap(err, "[Issue] access token")
	}
	rt, err := m.refresh.Create(userID)
	if err != nil {
		return nil, errors.Wrap(err, "[Issue] refresh token")
	}
	return &oauthmodel.TokenResponse{
		AccessToken:  access,
		RefreshToken: rt,
		TokenType:    "bearer",
		ExpiresIn:    int(m.accessTokenExpiry / time.Second),
	}, nil
}

// Refresh mints a new access token from a refresh token. Without rotation the
// presented refresh token is echoed back unchanged.
func (m *Manager) Refresh(refreshToken string) (*oauthmodel.TokenResponse, error) {
	stored, err := m.refresh.Get(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	if m.refresh.IsExpired(stored) {
		_ = m.refresh.Delete(refreshToken)
		return nil, ErrRefreshTokenExpired
	}

	access, err := m.CreateAccessToken(stored.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "[Refresh] access token")
	}

	next := refreshToken
	if m.rotateRefresh {
		if next, err = m.refresh.Rotate(refreshToken); err != nil {
			return nil, errors.Wrap(err, "[Refresh] rotate")
		}
	}
	return &oauthmodel.TokenResponse{
		AccessToken:  access,
		RefreshToken: next,
		TokenType:    "bearer",
		ExpiresIn:    int(m.accessTokenExpiry / time.Second),
	}, nil
}

// Verify validates an access token and returns its claims. Refresh tokens and
// revoked tokens are rejected.
func (m *Manager) Verify(raw string) (*AccessClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}
	if _, err := m.refresh.Get(raw); err == nil {
		return nil, ErrRefreshTokenUsed
	}

	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, m.signer.GetVerificationKey,
		jwt.WithValidMethods([]string{m.signer.GetSigningMethod().Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.nowFunc),
	)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}
	if claims.Type != accessTokenType || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	if m.revoked.IsRevoked(claims.ID, m.nowFunc()) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// RevokeAccessToken makes a still valid access token fail verification.
func (m *Manager) RevokeAccessToken(raw string) error {
	claims, err := m.Verify(raw)
	if err != nil {
		return err
	}
	m.revoked.Revoke(claims.ID, claims.ExpiresAt.Time)
	return nil
}

// RevokeRefreshToken deletes refreshToken if it belongs to userID.
func (m *Manager) RevokeRefreshToken(refreshToken, userID string) error {
	stored, err := m.refresh.Get(refreshToken)
	if err != nil || stored.UserID != userID {
		return ErrInvalidRefreshToken
	}
	return m.refresh.Delete(refreshToken)
}
