// Package credentials holds the process-wide session: the current token pair
// and the authenticated user's profile.
package credentials

import (
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-session/users"
	"golang.org/x/oauth2"
)

// Store is the single source of truth for whether the process is
// authenticated. All reads observe the latest completed mutation.
type Store struct {
	lock       sync.RWMutex
	token      *oauth2.Token
	user       *users.Profile
	generation uint64
	nextGen    uint64

	listenerLock sync.Mutex
	listeners    map[int]func(Event)
	nextListener int
}

func NewStore() *Store {
	return &Store{listeners: make(map[int]func(Event))}
}

// Get returns a copy of the current session and whether it is authenticated.
func (s *Store) Get() (Session, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	sess := s.snapshot()
	return sess, sess.Authenticated()
}

// Authenticated reports whether an access token and user are present.
func (s *Store) Authenticated() bool {
	_, ok := s.Get()
	return ok
}

// Set atomically replaces the whole session. An empty access token or a nil
// user clears the store instead, so no partial session is ever stored.
func (s *Store) Set(accessToken, refreshToken string, expiry time.Time, user *users.Profile) Session {
	if accessToken == "" || user == nil {
		s.Clear()
		return Session{}
	}

	profile := *user
	s.lock.Lock()
	s.nextGen++
	s.generation = s.nextGen
	s.token = &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		Expiry:       expiry,
	}
	s.user = &profile
	sess := s.snapshot()
	s.lock.Unlock()

	s.notify(Event{Type: EventLogin, Session: sess})
	return sess
}

// SetAccessToken replaces only the access token of the current session. The
// refresh token and user are left as they are. It is a no-op returning false
// when the store is anonymous.
func (s *Store) SetAccessToken(accessToken string, expiry time.Time) bool {
	return s.update(0, accessToken, "", expiry)
}

// SetTokens replaces the access token and, when refreshToken is not empty,
// the refresh token as well. Used by servers that rotate refresh tokens.
func (s *Store) SetTokens(accessToken, refreshToken string, expiry time.Time) bool {
	return s.update(0, accessToken, refreshToken, expiry)
}

// CompareAndSetTokens behaves like SetTokens but only applies when the stored
// session is still generation gen. It stops a refresh that started before a
// logout or re-login from touching the newer state.
func (s *Store) CompareAndSetTokens(gen uint64, accessToken, refreshToken string, expiry time.Time) bool {
	if gen == 0 {
		return false
	}
	return s.update(gen, accessToken, refreshToken, expiry)
}

func (s *Store) update(gen uint64, accessToken, refreshToken string, expiry time.Time) bool {
	if accessToken == "" {
		return false
	}

	s.lock.Lock()
	if s.token == nil || s.user == nil || (gen != 0 && gen != s.generation) {
		s.lock.Unlock()
		return false
	}
	next := *s.token
	next.AccessToken = accessToken
	next.Expiry = expiry
	if refreshToken != "" {
		next.RefreshToken = refreshToken
	}
	s.token = &next
	sess := s.snapshot()
	s.lock.Unlock()

	s.notify(Event{Type: EventRefresh, Session: sess})
	return true
}

// Clear destroys the session. Clearing an anonymous store does nothing.
func (s *Store) Clear() bool {
	return s.clear(0)
}

// ClearIf clears the session only if it is still generation gen.
func (s *Store) ClearIf(gen uint64) bool {
	if gen == 0 {
		return false
	}
	return s.clear(gen)
}

func (s *Store) clear(gen uint64) bool {
	s.lock.Lock()
	if s.token == nil && s.user == nil {
		s.lock.Unlock()
		return false
	}
	if gen != 0 && gen != s.generation {
		s.lock.Unlock()
		return false
	}
	s.token = nil
	s.user = nil
	s.generation = 0
	s.lock.Unlock()

	s.notify(Event{Type: EventCleared})
	return true
}

// Subscribe registers fn to be called after every mutation. Callbacks run on
// the mutating goroutine after the store lock is released. The returned func
// removes the subscription.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.listenerLock.Lock()
	defer s.listenerLock.Unlock()

	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	return func() {
		s.listenerLock.Lock()
		defer s.listenerLock.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Store) notify(ev Event) {
	s.listenerLock.Lock()
	fns := make([]func(Event), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenerLock.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// snapshot must be called with s.lock held.
func (s *Store) snapshot() Session {
	if s.token == nil {
		return Session{}
	}
	tok := *s.token
	sess := Session{Token: &tok, Generation: s.generation}
	if s.user != nil {
		u := *s.user
		sess.User = &u
	}
	return sess
}
