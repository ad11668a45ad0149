package models

import (
	"time"

	"github.com/google/uuid"
)

// API key lifecycle states. A key authenticates device-origin requests only
// while active and unexpired.
const (
	APIKeyStatusActive  = "active"
	APIKeyStatusRevoked = "revoked"
)

// APIKey is the bearer credential a device presents on every request.
// Only the SHA-256 digest of the key is stored; the plaintext is shown once
// at generation time. Each key belongs to exactly one device (hard FK with
// cascade on device delete).
type APIKey struct {
	ID         uuid.UUID  `json:"id"`
	OwnerID    uuid.UUID  `json:"owner_id"`
	DeviceID   uuid.UUID  `json:"device_id"`
	Name       string     `json:"name"`
	KeyHash    string     `json:"-"`
	KeyPrefix  string     `json:"key_prefix"`
	Status     string     `json:"status"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Usable reports whether the key may authenticate a request at instant now.
// All three lifecycle conditions are checked: status, revocation, expiry.
func (k *APIKey) Usable(now time.Time) bool {
	if k.Status != APIKeyStatusActive {
		return false
	}
	if k.ExpiresAt != nil && !now.Before(*k.ExpiresAt) {
		return false
	}
	return true
}

// GeneratedAPIKey is returned exactly once from key generation and carries
// the plaintext alongside the stored row.
type GeneratedAPIKey struct {
	APIKey
	Plaintext string `json:"api_key"`
}
