package models

import (
	"time"
)

// Role identifiers referenced by permission grants.
const (
	RoleAdmin  = 1
	RoleMember = 2
)

type User struct {
	ID              string
	Email           string
	Username        string
	PasswordHash    string
	RoleID          int
	EmailVerifiedAt *time.Time // NULL until the email_verify challenge succeeds
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EmailVerified reports whether the user has completed email verification.
func (u *User) EmailVerified() bool {
	return u.EmailVerifiedAt != nil
}
