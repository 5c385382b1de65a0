// Package util holds small shared helpers.
package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewToken returns a 32-byte random token as hex. Used for session tokens;
// only its hash is persisted.
func NewToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("util: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// NewRequestID returns a short random identifier for request tracing.
func NewRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		panic("util: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b)
}
