package domain

import "errors"

// Authentication failures surfaced verbatim to the caller.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidCode        = errors.New("invalid verification code")
	ErrAccountLocked      = errors.New("account temporarily locked")
)

// Failures handled internally by the token layer. Consumers of the console
// core only ever observe ErrSessionExpired; the specific cause is logged,
// never shown.
var (
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrTimeout             = errors.New("request timed out")
	ErrMalformedToken      = errors.New("malformed token")
	ErrSessionExpired      = errors.New("session expired")
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)
