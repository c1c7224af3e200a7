// Package common defines shared constants and sentinel errors used across
// the AuthGate layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Registration errors.
	ErrValidation = errors.New("username, email, password and role are required")
	ErrConflict   = errors.New("username or email already exists")

	// Login errors. ErrInvalidCredentials is deliberately the same for an
	// unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountSuspended   = errors.New("account is suspended")

	// Refresh errors.
	ErrMissingRefreshToken = errors.New("refresh token is missing")
	ErrInvalidRefreshToken = errors.New("refresh token is invalid")
	ErrSessionExpired      = errors.New("session expired, please log in again")
	ErrAccountInvalid      = errors.New("account no longer valid")

	// Access token errors (signature, shape, expiry).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Authorization gate errors.
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")

	// Infrastructure failures, reported generically.
	ErrorInternal = errors.New("internal error")
	ErrStorage    = errors.New("storage error")
)
