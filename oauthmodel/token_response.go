package oauthmodel

import (
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// TokenResponse is the body returned by /login and /refresh.
type TokenResponse struct {
	// AccessToken is the bearer credential for individual requests.
	// Usage: Include in Authorization header: "Bearer <access_token>"
	// Lifespan: Short-lived (60 minutes on the reference server)
	AccessToken string `json:"access_token"`

	// RefreshToken mints new access tokens. /login always returns one.
	// /refresh may echo the current token back, return a rotated one, or omit it.
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType is "bearer" when present.
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the access token lifetime in seconds, when the server reports it.
	ExpiresIn int `json:"expires_in,omitempty"`
}

// Valid reports whether the response carries a usable bearer access token.
func (t *TokenResponse) Valid() bool {
	if t == nil || strings.TrimSpace(t.AccessToken) == "" {
		return false
	}
	return t.TokenType == "" || strings.EqualFold(t.TokenType, "bearer")
}

// Token converts the response to an oauth2.Token. When the server does not
// report expires_in, lifetime is used.
func (t *TokenResponse) Token(now time.Time, lifetime time.Duration) *oauth2.Token {
	expiry := time.Time{}
	switch {
	case t.ExpiresIn > 0:
		expiry = now.Add(time.Duration(t.ExpiresIn) * time.Second)
	case lifetime > 0:
		expiry = now.Add(lifetime)
	}
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       expiry,
	}
}
