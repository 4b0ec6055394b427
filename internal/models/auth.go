package models

import (
	"github.com/golang-jwt/jwt/v5"
)

type TokenClaims struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	RoleID int    `json:"role_id"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}
