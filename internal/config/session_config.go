package config

import "time"

const (
	accessTokenLifetimeVar = "ACCESS_TOKEN_LIFETIME_MINUTES"
	refreshMarginVar       = "REFRESH_MARGIN_MINUTES"
	rotateRefreshVar       = "ROTATE_REFRESH_TOKENS"
	useTokenExpiryVar      = "USE_TOKEN_EXPIRY"

	DefaultAccessTokenLifetime = 60 * time.Minute
	DefaultRefreshMargin       = 5 * time.Minute
)

type SessionConfig interface {
	GetAccessTokenLifetime() time.Duration
	GetRefreshMargin() time.Duration
	GetRotateRefreshTokens() bool
	GetUseTokenExpiry() bool
}

type Session struct {
	file *File
}

var _ SessionConfig = Session{}

func (s Session) GetAccessTokenLifetime() time.Duration {
	def := int(DefaultAccessTokenLifetime / time.Minute)
	if s.file != nil && s.file.AccessTokenLifetimeMinutes > 0 {
		def = s.file.AccessTokenLifetimeMinutes
	}
	return time.Duration(GetEnvInt(accessTokenLifetimeVar, def)) * time.Minute
}

// GetRefreshMargin is how long before the access token expires the
// proactive refresh fires (refreshMarginMinutes).
func (s Session) GetRefreshMargin() time.Duration {
	def := int(DefaultRefreshMargin / time.Minute)
	if s.file != nil && s.file.RefreshMarginMinutes != nil {
		def = *s.file.RefreshMarginMinutes
	}
	return time.Duration(GetEnvInt(refreshMarginVar, def)) * time.Minute
}

// GetRotateRefreshTokens reports whether a refresh token returned by /refresh
// replaces the stored one. The reference server never rotates.
func (s Session) GetRotateRefreshTokens() bool {
	def := false
	if s.file != nil {
		def = s.file.RotateRefreshTokens
	}
	return GetEnvBool(rotateRefreshVar, def)
}

// GetUseTokenExpiry schedules proactive refresh from the access token's exp
// claim when it is a readable JWT, instead of the fixed lifetime.
func (s Session) GetUseTokenExpiry() bool {
	def := false
	if s.file != nil {
		def = s.file.UseTokenExpiry
	}
	return GetEnvBool(useTokenExpiryVar, def)
}
