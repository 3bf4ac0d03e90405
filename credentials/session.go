package credentials

import (
	"time"

	"github.com/jrsteele09/go-auth-session/users"
	"golang.org/x/oauth2"
)

// Session is a point-in-time copy of the credentials held by a Store.
// The zero value is the anonymous session.
type Session struct {
	Token      *oauth2.Token  // Access + refresh token pair and access token expiry
	User       *users.Profile // Profile fetched from /me at login
	Generation uint64         // Incremented by every login; 0 when anonymous
}

// Authenticated reports whether the session carries both an access token and
// a user profile. A session is never observed with only one of them.
func (s Session) Authenticated() bool {
	return s.Token != nil && s.Token.AccessToken != "" && s.User != nil
}

func (s Session) AccessToken() string {
	if s.Token == nil {
		return ""
	}
	return s.Token.AccessToken
}

func (s Session) RefreshToken() string {
	if s.Token == nil {
		return ""
	}
	return s.Token.RefreshToken
}

// Expiry is the known access token expiry, zero when unknown.
func (s Session) Expiry() time.Time {
	if s.Token == nil {
		return time.Time{}
	}
	return s.Token.Expiry
}

// EventType identifies a Store mutation.
type EventType int

const (
	EventLogin   EventType = iota + 1 // A new session replaced whatever was stored
	EventRefresh                      // The access token of the current session was replaced
	EventCleared                      // The session became anonymous
)

func (e EventType) String() string {
	switch e {
	case EventLogin:
		return "login"
	case EventRefresh:
		return "refresh"
	case EventCleared:
		return "cleared"
	}
	return "unknown"
}

// Event is delivered to subscribers after a mutation has been applied.
type Event struct {
	Type    EventType
	Session Session // State after the mutation
}
