package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/verdant-inc/verdant-engine/pkg/apperrors"
	"github.com/verdant-inc/verdant-engine/pkg/database"
	"github.com/verdant-inc/verdant-engine/pkg/models"
)

// APIKeyRepository provides data access for device API keys.
//
// GetByHash and TouchLastUsed run on an unscoped connection: the key digest
// IS the credential that resolves the owner, so no owner is known yet when
// they execute. Every other method is owner-scoped.
type APIKeyRepository interface {
	Create(ctx context.Context, key *models.APIKey) error
	GetByHash(ctx context.Context, keyHash string) (*models.APIKey, error)
	GetByID(ctx context.Context, ownerID, keyID uuid.UUID) (*models.APIKey, error)
	ListForOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.APIKey, error)
	Revoke(ctx context.Context, ownerID, keyID uuid.UUID) error
	TouchLastUsed(ctx context.Context, keyID uuid.UUID) error
}

type apiKeyRepository struct{}

func NewAPIKeyRepository() APIKeyRepository {
	return &apiKeyRepository{}
}

var _ APIKeyRepository = (*apiKeyRepository)(nil)

const apiKeyColumns = `id, owner_id, device_id, name, key_hash, key_prefix, status,
       expires_at, last_used_at, created_at`

func (r *apiKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return fmt.Errorf("no owner scope in context")
	}

	err := scope.Conn.QueryRow(ctx, `
		INSERT INTO garden_api_keys (owner_id, device_id, name, key_hash, key_prefix, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		key.OwnerID, key.DeviceID, key.Name, key.KeyHash, key.KeyPrefix, key.Status, key.ExpiresAt,
	).Scan(&key.ID, &key.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrConflict
		}
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("failed to create API key: %w", err)
	}
	return nil
}

func (r *apiKeyRepository) GetByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no owner scope in context")
	}

	row := scope.Conn.QueryRow(ctx, `
		SELECT `+apiKeyColumns+`
		FROM garden_api_keys
		WHERE key_hash = $1`, keyHash)

	key, err := scanAPIKey(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrInvalidAPIKey
		}
		return nil, fmt.Errorf("failed to look up API key: %w", err)
	}
	return key, nil
}

func (r *apiKeyRepository) GetByID(ctx context.Context, ownerID, keyID uuid.UUID) (*models.APIKey, error) {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no owner scope in context")
	}

	row := scope.Conn.QueryRow(ctx, `
		SELECT `+apiKeyColumns+`
		FROM garden_api_keys
		WHERE owner_id = $1 AND id = $2`, ownerID, keyID)

	key, err := scanAPIKey(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get API key: %w", err)
	}
	return key, nil
}

func (r *apiKeyRepository) ListForOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.APIKey, error) {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no owner scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT `+apiKeyColumns+`
		FROM garden_api_keys
		WHERE owner_id = $1
		ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan API key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating API keys: %w", err)
	}
	return keys, nil
}

func (r *apiKeyRepository) Revoke(ctx context.Context, ownerID, keyID uuid.UUID) error {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return fmt.Errorf("no owner scope in context")
	}

	tag, err := scope.Conn.Exec(ctx, `
		UPDATE garden_api_keys
		SET status = 'revoked'
		WHERE owner_id = $1 AND id = $2 AND status = 'active'`, ownerID, keyID)
	if err != nil {
		return fmt.Errorf("failed to revoke API key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// TouchLastUsed is best-effort; callers log failures rather than surfacing them.
func (r *apiKeyRepository) TouchLastUsed(ctx context.Context, keyID uuid.UUID) error {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return fmt.Errorf("no owner scope in context")
	}

	_, err := scope.Conn.Exec(ctx, `
		UPDATE garden_api_keys
		SET last_used_at = now()
		WHERE id = $1`, keyID)
	if err != nil {
		return fmt.Errorf("failed to touch API key: %w", err)
	}
	return nil
}

func scanAPIKey(row pgx.Row) (*models.APIKey, error) {
	key := &models.APIKey{}
	err := row.Scan(
		&key.ID, &key.OwnerID, &key.DeviceID, &key.Name, &key.KeyHash, &key.KeyPrefix,
		&key.Status, &key.ExpiresAt, &key.LastUsedAt, &key.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return key, nil
}
