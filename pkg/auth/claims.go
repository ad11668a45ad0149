// Package auth provides JWT-based authentication for verdant-engine.
// It validates tokens issued by the hosted auth provider using JWKS endpoints.
package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// ClaimsKey is the context key for storing JWT claims.
	ClaimsKey contextKey = "claims"
	// TokenKey is the context key for storing the raw JWT token string.
	TokenKey contextKey = "token"
)

// Claims represents the JWT claims structure issued by the auth provider.
// It embeds RegisteredClaims for standard JWT fields (sub, iss, exp, etc.)
// and adds the owner claim every row-level check keys on.
type Claims struct {
	jwt.RegisteredClaims
	OwnerID string `json:"oid,omitempty"`   // Owning account UUID
	Email   string `json:"email,omitempty"` // User email address
}

// GetClaims retrieves JWT claims from the request context.
// Returns nil and false if claims are not present.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok
}

// GetToken retrieves the raw JWT token string from the request context.
func GetToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenKey).(string)
	return token, ok
}

// GetOwnerIDFromContext extracts the owner ID from JWT claims in the context.
// Returns uuid.Nil if not authenticated or claims are missing.
func GetOwnerIDFromContext(ctx context.Context) uuid.UUID {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil || claims.OwnerID == "" {
		return uuid.Nil
	}

	ownerID, err := uuid.Parse(claims.OwnerID)
	if err != nil {
		return uuid.Nil
	}
	return ownerID
}

// RequireOwnerIDFromContext extracts the owner ID from context and returns an
// error if not found. Use this when the owner is required for the operation.
func RequireOwnerIDFromContext(ctx context.Context) (uuid.UUID, error) {
	ownerID := GetOwnerIDFromContext(ctx)
	if ownerID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("owner ID not found in context")
	}
	return ownerID, nil
}
