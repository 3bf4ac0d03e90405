package token

import (
	"sync"
	"time"
)

// RevokedTokenCache remembers revoked access tokens by jti until they would
// have expired anyway.
type RevokedTokenCache interface {
	Revoke(jti string, exp time.Time)
	IsRevoked(jti string, now time.Time) bool
}

// InMemoryRevokedTokenCache is a simple in-memory implementation
type InMemoryRevokedTokenCache struct {
	revoked map[string]time.Time
	mu      sync.Mutex
}

func NewInMemoryRevokedTokenCache() RevokedTokenCache {
	return &InMemoryRevokedTokenCache{
		revoked: make(map[string]time.Time),
	}
}

func (c *InMemoryRevokedTokenCache) Revoke(jti string, exp time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revoked[jti] = exp
}

// IsRevoked reports whether jti was revoked. Entries past their expiry are
// dropped on the way, since the token is rejected for expiry regardless.
func (c *InMemoryRevokedTokenCache) IsRevoked(jti string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	exp, ok := c.revoked[jti]
	if ok && now.After(exp) {
		delete(c.revoked, jti)
	}
	return ok
}
