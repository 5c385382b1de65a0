// Package session provides session token storage backends.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// TokenData holds the data stored for each session token
type TokenData struct {
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	FirstName string    `json:"first_name"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrNotFound indicates the token is unknown or has expired.
var ErrNotFound = errors.New("session not found or expired")

// HashToken returns the hex SHA-256 digest of a raw token. Only digests are
// ever written to a backend.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
