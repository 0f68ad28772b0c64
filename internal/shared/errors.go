package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrSessionNotFound indicates the session token is absent, expired or malformed.
	ErrSessionNotFound = errors.New("session not found")
	// ErrUserNotFound indicates the referenced user account no longer exists.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDuplicateEmail indicates a registration against an existing address.
	ErrDuplicateEmail = errors.New("email already registered")
)
