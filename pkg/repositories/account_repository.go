package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/verdant-inc/verdant-engine/pkg/apperrors"
	"github.com/verdant-inc/verdant-engine/pkg/database"
	"github.com/verdant-inc/verdant-engine/pkg/models"
)

type AccountRepository interface {
	// Upsert creates the account row on first sight of an owner and refreshes
	// the email on subsequent calls. The display name is only written when the
	// row does not exist yet; later changes go through UpdateDisplayName.
	Upsert(ctx context.Context, account *models.Account) error
	Get(ctx context.Context, ownerID uuid.UUID) (*models.Account, error)
	UpdateDisplayName(ctx context.Context, ownerID uuid.UUID, displayName string) error
}

type accountRepository struct{}

func NewAccountRepository() AccountRepository {
	return &accountRepository{}
}

var _ AccountRepository = (*accountRepository)(nil)

func (r *accountRepository) Upsert(ctx context.Context, account *models.Account) error {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return fmt.Errorf("no owner scope in context")
	}

	err := scope.Conn.QueryRow(ctx, `
		INSERT INTO garden_accounts (id, display_name, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET email = EXCLUDED.email, updated_at = now()
		RETURNING display_name, created_at, updated_at`,
		account.ID, account.DisplayName, account.Email,
	).Scan(&account.DisplayName, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}

func (r *accountRepository) Get(ctx context.Context, ownerID uuid.UUID) (*models.Account, error) {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no owner scope in context")
	}

	account := &models.Account{}
	err := scope.Conn.QueryRow(ctx, `
		SELECT id, display_name, email, created_at, updated_at
		FROM garden_accounts
		WHERE id = $1`, ownerID,
	).Scan(&account.ID, &account.DisplayName, &account.Email, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

func (r *accountRepository) UpdateDisplayName(ctx context.Context, ownerID uuid.UUID, displayName string) error {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return fmt.Errorf("no owner scope in context")
	}

	tag, err := scope.Conn.Exec(ctx, `
		UPDATE garden_accounts
		SET display_name = $2, updated_at = now()
		WHERE id = $1`, ownerID, displayName)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
