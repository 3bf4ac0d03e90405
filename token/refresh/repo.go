package refresh

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("refresh token not found")

// StoredRefreshToken represents the server-side storage of refresh token metadata.
// The client only receives the Token field (a random string).
type StoredRefreshToken struct {
	Token     string    // The actual random token string (sent to client)
	UserID    string    // Owner of the token
	Iat       time.Time // Issued at time
	ExpiresAt time.Time // After this the token is rejected and deleted
}

// Repo manages server-side storage of refresh token metadata, keyed by the
// token string. A user may hold several tokens, one per login.
type Repo interface {
	Upsert(refreshToken *StoredRefreshToken) error
	Delete(token string) error
	Get(token string) (*StoredRefreshToken, error)
	CountByUserID(userID string) int
}
