// Package auth implements credential checks and session login/logout.
package auth

import "time"

// User is an account that can sign in to the portal.
type User struct {
	ID           int64
	TenantID     int64
	Email        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
