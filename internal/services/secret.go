package services

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
)

// generateToken returns a URL-safe random token of byteLen random bytes.
func generateToken(byteLen int) (string, error) {
	tokenBytes := make([]byte, byteLen)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return base64.URLEncoding.EncodeToString(tokenBytes), nil
}

// generateCode returns a random code of length characters drawn uniformly
// from charset.
func generateCode(length int, charset string) (string, error) {
	code := make([]byte, length)
	max := big.NewInt(int64(len(charset)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate random code: %w", err)
		}
		code[i] = charset[n.Int64()]
	}
	return string(code), nil
}

// hashSecret is the one hashing scheme for challenge secrets: SHA-256, hex
// encoded. Issuance and validation must agree on it.
func hashSecret(secret string) string {
	hash := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(hash[:])
}

// hashesEqual compares two hex-encoded hashes in constant time.
func hashesEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
