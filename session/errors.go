package session

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds matched with errors.Is. ErrRateLimited also matches ErrAuth, and
// a login that never reached the server matches ErrAuth and ErrNetwork.
var (
	ErrValidation     = errors.New("validation failed")          // Malformed input; never reached the network
	ErrAuth           = errors.New("authentication failed")      // Login/register rejected by the server
	ErrConflict       = errors.New("account already exists")     // Register for an existing account
	ErrRateLimited    = errors.New("too many attempts")          // Login throttled by the server
	ErrAuthExpired    = errors.New("authentication expired")     // A business request's bearer token was rejected
	ErrRefreshFailure = errors.New("session refresh failed")     // Terminal; the session has been cleared
	ErrNetwork        = errors.New("network error")              // Transport failure unrelated to auth
)

// Error describes a failed session operation.
type Error struct {
	Kind       error  // One of the Err* kinds above
	Op         string // "login", "register", "refresh", "logout", "me" or "request"
	StatusCode int    // HTTP status when the server answered, 0 otherwise
	Detail     string // Server supplied detail, or a local description
	Err        error  // Underlying cause, may be nil
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Detail != "":
		b.WriteString(e.Detail)
	case e.Kind != nil:
		b.WriteString(e.Kind.Error())
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	if e.Kind == nil {
		return false
	}
	if target == e.Kind {
		return true
	}
	return e.Kind == ErrRateLimited && target == ErrAuth
}

func newError(kind error, op string, statusCode int, detail string, cause error) *Error {
	return &Error{Kind: kind, Op: op, StatusCode: statusCode, Detail: detail, Err: cause}
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}
