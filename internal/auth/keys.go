// Package auth issues and verifies the bearer credentials used by the tracking service.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// KeyPrefix marks API keys issued by shipyard.
const KeyPrefix = "sy_"

// keyBytes is the amount of entropy in a generated key.
const keyBytes = 32

// NewKey returns a random API key. Only its hash is ever stored.
func NewKey() (string, error) {
	raw := make([]byte, keyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return KeyPrefix + hex.EncodeToString(raw), nil
}

// HashKey returns the hex SHA-256 digest stored for key. Surrounding whitespace is ignored
// so keys pasted from env files match.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// MatchSecret reports whether token equals secret in constant time.
// An empty secret never matches.
func MatchSecret(token, secret string) bool {
	if secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}

// Redact shortens key for log lines: the prefix and the first four characters after it.
func Redact(key string) string {
	key = strings.TrimSpace(key)
	rest := strings.TrimPrefix(key, KeyPrefix)
	prefix := key[:len(key)-len(rest)]
	if len(rest) <= 4 {
		return prefix + "****"
	}
	return prefix + rest[:4] + "****"
}
