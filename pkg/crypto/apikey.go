// Package crypto provides generation and hashing for device API keys.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// KeyPrefixLength is how many characters of the plaintext key are stored
// alongside the hash so the dashboard can display a recognizable fragment.
const KeyPrefixLength = 8

// NewAPIKey generates a new random device API key. It returns the plaintext
// key (64 hex characters, shown to the caller exactly once) and the SHA-256
// digest that is persisted. The plaintext is never stored.
func NewAPIKey() (plaintext, digest string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("failed to generate random key: %w", err)
	}
	plaintext = hex.EncodeToString(raw)
	return plaintext, HashAPIKey(plaintext), nil
}

// HashAPIKey returns the hex-encoded SHA-256 digest of a plaintext key.
// Validation looks keys up by digest, so the plaintext never touches the
// database or its logs.
func HashAPIKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// KeyPrefix returns the display fragment of a plaintext key.
func KeyPrefix(plaintext string) string {
	if len(plaintext) < KeyPrefixLength {
		return plaintext
	}
	return plaintext[:KeyPrefixLength]
}
