package models

import "time"

// TOTPDevice stores an AES-GCM encrypted TOTP secret for a user. A device is
// usable for login step-up only after activation (one valid code confirmed).
type TOTPDevice struct {
	ID              string
	UserID          string
	SecretEncrypted []byte
	Nonce           []byte
	ActivatedAt     *time.Time
	LastUsedAt      *time.Time // replay window guard
	CreatedAt       time.Time
}

func (d *TOTPDevice) IsActivated() bool {
	return d.ActivatedAt != nil
}
