package server

import (
	"strings"
	"sync"
	"time"
)

// loginAttempts tracks failed logins per email over a sliding window.
type loginAttempts struct {
	lock     sync.Mutex
	max      int
	window   time.Duration
	attempts map[string][]time.Time
}

func newLoginAttempts(limit int, window time.Duration) *loginAttempts {
	return &loginAttempts{
		max:      limit,
		window:   window,
		attempts: make(map[string][]time.Time),
	}
}

// allowed drops attempts older than the window and reports whether email may
// try again.
func (l *loginAttempts) allowed(email string, now time.Time) bool {
	if l.max <= 0 {
		return true
	}
	email = strings.ToLower(email)

	l.lock.Lock()
	defer l.lock.Unlock()

	recent := l.attempts[email][:0]
	for _, at := range l.attempts[email] {
		if now.Sub(at) < l.window {
			recent = append(recent, at)
		}
	}
	l.attempts[email] = recent
	return len(recent) < l.max
}

func (l *loginAttempts) record(email string, now time.Time) {
	email = strings.ToLower(email)
	l.lock.Lock()
	defer l.lock.Unlock()
	l.attempts[email] = append(l.attempts[email], now)
}

func (l *loginAttempts) clear(email string) {
	email = strings.ToLower(email)
	l.lock.Lock()
	defer l.lock.Unlock()
	delete(l.attempts, email)
}
