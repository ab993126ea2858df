// Package auth authenticates API requests with a shared API key.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// KeyPrefix starts every generated key.
const KeyPrefix = "ngx_"

// ErrNoKey is returned when authentication is required but no key is
// configured.
var ErrNoKey = errors.New("authentication required but no API key configured")

// Verifier checks presented keys against a configured plain key, a bcrypt
// hash of one, or both.
type Verifier struct {
	key  string
	hash string
}

// NewVerifier returns a Verifier. Either argument may be empty.
func NewVerifier(key, hash string) (*Verifier, error) {
	if key == "" && hash == "" {
		return nil, ErrNoKey
	}
	if hash != "" && !IsHash(hash) {
		return nil, fmt.Errorf("api key hash is not a bcrypt hash")
	}
	return &Verifier{key: key, hash: hash}, nil
}

// Verify reports whether presented matches the configured key.
func (v *Verifier) Verify(presented string) bool {
	if presented == "" {
		return false
	}
	if v.key != "" && subtle.ConstantTimeCompare([]byte(v.key), []byte(presented)) == 1 {
		return true
	}
	if v.hash != "" && bcrypt.CompareHashAndPassword([]byte(v.hash), []byte(presented)) == nil {
		return true
	}
	return false
}

// GenerateKey returns a new random key: the prefix followed by 64 hex chars.
func GenerateKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return KeyPrefix + hex.EncodeToString(b), nil
}

// HashKey returns the bcrypt hash of key for storage in the config file.
func HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash key: %w", err)
	}
	return string(hash), nil
}

// IsHash reports whether s looks like a bcrypt hash.
func IsHash(s string) bool {
	if _, err := bcrypt.Cost([]byte(s)); err != nil {
		return false
	}
	return strings.HasPrefix(s, "$2")
}

// Redact shortens a key for logs and audit records.
func Redact(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:8] + "…"
}
