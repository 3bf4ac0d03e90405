package errors

import (
	"errors"
	"fmt"
)

// Common error types shared by the session packages
var (
	// Input errors
	ErrInvalidEmail    = errors.New("invalid email address")
	ErrEmptyPassword   = errors.New("password is required")
	ErrWeakPassword    = errors.New("password does not meet strength requirements")
	ErrInvalidResponse = errors.New("invalid server response")

	// Token errors
	ErrNoRefreshToken = errors.New("no refresh token")
	ErrMissingToken   = errors.New("server response missing token")

	// Transport errors
	ErrBodyNotReplayable = errors.New("request body cannot be replayed")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
