package models

import (
	"encoding/json"
	"time"
)

// Challenge purposes. Each (user, purpose) pair has at most one active record;
// issuing a new challenge supersedes prior active ones.
const (
	PurposeLogin       = "login"
	PurposeEmailVerify = "email_verify"
)

// PasswordResetRecord holds the hash of a server-generated reset token.
// The raw token is never persisted. Terminal once UsedAt is set or
// ExpiresAt passes.
type PasswordResetRecord struct {
	ID           string
	UserID       string
	TokenHash    string
	AttemptCount int
	ExpiresAt    time.Time
	UsedAt       *time.Time
	CreatedAt    time.Time
}

func (r *PasswordResetRecord) IsUsed() bool {
	return r.UsedAt != nil
}

func (r *PasswordResetRecord) IsExpired() bool {
	return time.Now().After(r.ExpiresAt)
}

// OneTimeCodeRecord holds the hash of a short numeric code scoped by
// (user, purpose). Meta is opaque JSON attached at issuance and returned
// to the caller on successful validation.
type OneTimeCodeRecord struct {
	ID           string
	UserID       string
	Purpose      string
	CodeHash     string
	Meta         json.RawMessage
	AttemptCount int
	ExpiresAt    time.Time
	ConsumedAt   *time.Time
	CreatedAt    time.Time
}

func (r *OneTimeCodeRecord) IsConsumed() bool {
	return r.ConsumedAt != nil
}

func (r *OneTimeCodeRecord) IsExpired() bool {
	return time.Now().After(r.ExpiresAt)
}
