// Package shared holds cross-cutting session, CSRF, and error primitives
// used by every HTTP module.
package shared

import "errors"

var (
	// ErrNotFound indicates a missing record.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates a failed login; callers must not
	// reveal which part of the credentials was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when no CSRF token accompanies a
	// mutating request.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when the supplied token does not match
	// the session token.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
