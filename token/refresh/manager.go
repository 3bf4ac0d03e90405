package refresh

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	DefaultExpiry      = 7 * 24 * time.Hour
	defaultTokenLength = 32 // 32 bytes = 256 bits
)

// Manager handles refresh token creation, validation, and rotation
type Manager struct {
	repo    Repo
	expiry  time.Duration
	nowFunc func() time.Time
}

// NewManager creates a new refresh token manager. A zero expiry selects
// DefaultExpiry and a nil now selects time.Now.
func NewManager(repo Repo, expiry time.Duration, now func() time.Time) *Manager {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{
		repo:    repo,
		expiry:  expiry,
		nowFunc: now,
	}
}

// Create generates a new refresh token for userID and stores it
func (m *Manager) Create(userID string) (string, error) {
	tokenBytes := make([]byte, defaultTokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	now := m.nowFunc()
	tokenStr := hex.EncodeToString(tokenBytes)
	if err := m.repo.Upsert(&StoredRefreshToken{
		Token:     tokenStr,
		UserID:    userID,
		Iat:       now,
		ExpiresAt: now.Add(m.expiry),
	}); err != nil {
		return "", fmt.Errorf("failed to store refresh token: %w", err)
	}

	return tokenStr, nil
}

// Rotate replaces token with a new one for the same user.
func (m *Manager) Rotate(token string) (string, error) {
	stored, err := m.repo.Get(token)
	if err != nil {
		return "", err
	}
	next, err := m.Create(stored.UserID)
	if err != nil {
		return "", err
	}
	if err := m.repo.Delete(token); err != nil {
		return "", fmt.Errorf("failed to retire refresh token: %w", err)
	}
	return next, nil
}

// Get retrieves a refresh token from storage
func (m *Manager) Get(token string) (*StoredRefreshToken, error) {
	return m.repo.Get(token)
}

// Delete removes a refresh token from storage
func (m *Manager) Delete(token string) error {
	return m.repo.Delete(token)
}

// IsExpired checks if a refresh token has expired
func (m *Manager) IsExpired(rt *StoredRefreshToken) bool {
	return !m.nowFunc().Before(rt.ExpiresAt)
}
