// Package services contains the business logic layer of verdant-engine.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/verdant-inc/verdant-engine/pkg/apperrors"
	"github.com/verdant-inc/verdant-engine/pkg/crypto"
	"github.com/verdant-inc/verdant-engine/pkg/models"
	"github.com/verdant-inc/verdant-engine/pkg/repositories"
)

const (
	// apiKeyCacheTTL bounds how long a validated key is served from cache.
	// Revocation and regeneration invalidate eagerly; the TTL only caps the
	// window for out-of-band database changes.
	apiKeyCacheTTL = 30 * time.Second

	apiKeyCacheCleanup = 5 * time.Minute
)

// APIKeyService manages device API keys: generation, validation, revocation.
type APIKeyService interface {
	// Generate mints a key for a device. The returned value carries the
	// plaintext exactly once; only the digest is stored.
	Generate(ctx context.Context, ownerID, deviceID uuid.UUID, name string, expiresAt *time.Time) (*models.GeneratedAPIKey, error)

	// Validate resolves a plaintext key to its row. It enforces the full key
	// lifecycle (active status and expiry) and stamps last_used_at. Returns
	// apperrors.ErrInvalidAPIKey for unknown, revoked and expired keys alike.
	Validate(ctx context.Context, plaintext string) (*models.APIKey, error)

	List(ctx context.Context, ownerID uuid.UUID) ([]*models.APIKey, error)

	// Revoke permanently disables a key. Revocation is one-way.
	Revoke(ctx context.Context, ownerID, keyID uuid.UUID) error

	// Regenerate revokes an existing key and mints a replacement for the same
	// device in one step.
	Regenerate(ctx context.Context, ownerID, keyID uuid.UUID) (*models.GeneratedAPIKey, error)
}

type apiKeyService struct {
	keys    repositories.APIKeyRepository
	devices repositories.DeviceRepository
	cache   *gocache.Cache
	logger  *zap.Logger
}

func NewAPIKeyService(
	keys repositories.APIKeyRepository,
	devices repositories.DeviceRepository,
	logger *zap.Logger,
) APIKeyService {
	return &apiKeyService{
		keys:    keys,
		devices: devices,
		cache:   gocache.New(apiKeyCacheTTL, apiKeyCacheCleanup),
		logger:  logger,
	}
}

var _ APIKeyService = (*apiKeyService)(nil)

func (s *apiKeyService) Generate(ctx context.Context, ownerID, deviceID uuid.UUID, name string, expiresAt *time.Time) (*models.GeneratedAPIKey, error) {
	// The device must exist and belong to the owner before a key can point
	// at it. The FK would reject the insert anyway, but checking first gives
	// the caller a clean not-found instead of a constraint error.
	if _, err := s.devices.GetByID(ctx, ownerID, deviceID); err != nil {
		return nil, fmt.Errorf("failed to resolve device for key: %w", err)
	}

	if expiresAt != nil && !expiresAt.After(time.Now()) {
		return nil, fmt.Errorf("%w: expiry must be in the future", apperrors.ErrInvalidInput)
	}

	plaintext, digest, err := crypto.NewAPIKey()
	if err != nil {
		return nil, err
	}

	key := &models.APIKey{
		OwnerID:   ownerID,
		DeviceID:  deviceID,
		Name:      name,
		KeyHash:   digest,
		KeyPrefix: crypto.KeyPrefix(plaintext),
		Status:    models.APIKeyStatusActive,
		ExpiresAt: expiresAt,
	}
	if err := s.keys.Create(ctx, key); err != nil {
		return nil, err
	}

	s.logger.Info("Generated device API key",
		zap.String("key_id", key.ID.String()),
		zap.String("device_id", deviceID.String()),
		zap.String("key_prefix", key.KeyPrefix))

	return &models.GeneratedAPIKey{APIKey: *key, Plaintext: plaintext}, nil
}

func (s *apiKeyService) Validate(ctx context.Context, plaintext string) (*models.APIKey, error) {
	if plaintext == "" {
		return nil, apperrors.ErrInvalidAPIKey
	}
	digest := crypto.HashAPIKey(plaintext)

	if cached, ok := s.cache.Get(digest); ok {
		key := cached.(*models.APIKey)
		if !key.Usable(time.Now()) {
			return nil, apperrors.ErrInvalidAPIKey
		}
		return key, nil
	}

	key, err := s.keys.GetByHash(ctx, digest)
	if err != nil {
		return nil, err
	}
	if !key.Usable(time.Now()) {
		return nil, apperrors.ErrInvalidAPIKey
	}

	if err := s.keys.TouchLastUsed(ctx, key.ID); err != nil {
		// A failed usage stamp must not reject an otherwise valid request.
		s.logger.Warn("Failed to stamp API key usage",
			zap.String("key_id", key.ID.String()), zap.Error(err))
	}

	s.cache.Set(digest, key, gocache.DefaultExpiration)
	return key, nil
}

func (s *apiKeyService) List(ctx context.Context, ownerID uuid.UUID) ([]*models.APIKey, error) {
	return s.keys.ListForOwner(ctx, ownerID)
}

func (s *apiKeyService) Revoke(ctx context.Context, ownerID, keyID uuid.UUID) error {
	key, err := s.keys.GetByID(ctx, ownerID, keyID)
	if err != nil {
		return err
	}

	if err := s.keys.Revoke(ctx, ownerID, keyID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) && key.Status == models.APIKeyStatusRevoked {
			// Already revoked; revocation is idempotent from the caller's view.
			return nil
		}
		return err
	}

	s.cache.Delete(key.KeyHash)

	s.logger.Info("Revoked device API key",
		zap.String("key_id", keyID.String()),
		zap.String("key_prefix", key.KeyPrefix))
	return nil
}

func (s *apiKeyService) Regenerate(ctx context.Context, ownerID, keyID uuid.UUID) (*models.GeneratedAPIKey, error) {
	old, err := s.keys.GetByID(ctx, ownerID, keyID)
	if err != nil {
		return nil, err
	}

	// Mint the replacement before revoking; a failed mint leaves the old key
	// untouched and usable.
	fresh, err := s.Generate(ctx, ownerID, old.DeviceID, old.Name, nil)
	if err != nil {
		return nil, err
	}

	if err := s.Revoke(ctx, ownerID, keyID); err != nil {
		// The old key is still live; withdraw the replacement so the device
		// never holds two valid credentials.
		if rerr := s.keys.Revoke(ctx, ownerID, fresh.ID); rerr != nil {
			s.logger.Error("Failed to withdraw replacement API key",
				zap.String("key_id", fresh.ID.String()), zap.Error(rerr))
		}
		return nil, err
	}

	return fresh, nil
}
