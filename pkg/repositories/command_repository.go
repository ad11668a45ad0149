package repositories

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/verdant-inc/verdant-engine/pkg/apperrors"
	"github.com/verdant-inc/verdant-engine/pkg/database"
	"github.com/verdant-inc/verdant-engine/pkg/models"
)

// CommandRepository provides data access for the device command queue.
type CommandRepository interface {
	Insert(ctx context.Context, cmd *models.Command) error
	GetByID(ctx context.Context, ownerID, commandID uuid.UUID) (*models.Command, error)

	// ClaimPending atomically claims up to limit pending commands for a
	// device, oldest first, stamping claimed_at. Commands whose claim is
	// older than reclaimBefore are first returned to pending. Claimed rows
	// are invisible to concurrent pollers (FOR UPDATE SKIP LOCKED), so no
	// two pollers can claim the same command.
	ClaimPending(ctx context.Context, ownerID, deviceID uuid.UUID, limit int, reclaimBefore time.Time) ([]*models.Command, error)

	// Acknowledge transitions a pending or claimed command to executed or
	// failed. Terminal states are final: acknowledging an already-terminal
	// command returns ErrTerminalCommand.
	Acknowledge(ctx context.Context, ownerID, commandID uuid.UUID, status string, result *string) (*models.Command, error)

	ListForDevice(ctx context.Context, ownerID, deviceID uuid.UUID, limit int) ([]*models.Command, error)
	ListForOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]*models.Command, error)

	// ReapExpiredClaims returns commands claimed before the cutoff to
	// pending, across all owners. Covers devices that claimed work and never
	// came back; runs from the maintenance sweep on an unscoped connection.
	ReapExpiredClaims(ctx context.Context, cutoff time.Time) (int64, error)
}

type commandRepository struct{}

func NewCommandRepository() CommandRepository {
	return &commandRepository{}
}

var _ CommandRepository = (*commandRepository)(nil)

const commandColumns = `id, owner_id, device_id, command_type, parameters, status,
       created_at, claimed_at, executed_at, result`

func (r *commandRepository) Insert(ctx context.Context, cmd *models.Command) error {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return fmt.Errorf("no owner scope in context")
	}

	if cmd.Parameters == nil {
		cmd.Parameters = map[string]interface{}{}
	}
	cmd.Status = models.CommandStatusPending

	err := scope.Conn.QueryRow(ctx, `
		INSERT INTO garden_commands (owner_id, device_id, command_type, parameters, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING id, created_at`,
		cmd.OwnerID, cmd.DeviceID, cmd.CommandType, cmd.Parameters,
	).Scan(&cmd.ID, &cmd.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert command: %w", err)
	}
	return nil
}

func (r *commandRepository) GetByID(ctx context.Context, ownerID, commandID uuid.UUID) (*models.Command, error) {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no owner scope in context")
	}

	row := scope.Conn.QueryRow(ctx, `
		SELECT `+commandColumns+`
		FROM garden_commands
		WHERE owner_id = $1 AND id = $2`, ownerID, commandID)

	cmd, err := scanCommand(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get command: %w", err)
	}
	return cmd, nil
}

func (r *commandRepository) ClaimPending(ctx context.Context, ownerID, deviceID uuid.UUID, limit int, reclaimBefore time.Time) ([]*models.Command, error) {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no owner scope in context")
	}

	// Return expired claims to pending before handing anything out. A device
	// that crashed mid-execution gets its command re-delivered here.
	_, err := scope.Conn.Exec(ctx, `
		UPDATE garden_commands
		SET status = 'pending', claimed_at = NULL
		WHERE owner_id = $1 AND device_id = $2
		  AND status = 'claimed' AND claimed_at < $3`,
		ownerID, deviceID, reclaimBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to reclaim expired commands: %w", err)
	}

	rows, err := scope.Conn.Query(ctx, `
		UPDATE garden_commands
		SET status = 'claimed', claimed_at = now()
		WHERE id IN (
			SELECT id FROM garden_commands
			WHERE owner_id = $1 AND device_id = $2 AND status = 'pending'
			ORDER BY created_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+commandColumns,
		ownerID, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending commands: %w", err)
	}
	defer rows.Close()

	var commands []*models.Command
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan command: %w", err)
		}
		commands = append(commands, cmd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating claimed commands: %w", err)
	}

	// UPDATE ... RETURNING does not guarantee row order; restore FIFO.
	sortCommandsByCreation(commands)
	return commands, nil
}

func (r *commandRepository) Acknowledge(ctx context.Context, ownerID, commandID uuid.UUID, status string, result *string) (*models.Command, error) {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no owner scope in context")
	}

	row := scope.Conn.QueryRow(ctx, `
		UPDATE garden_commands
		SET status = $3, executed_at = now(), result = $4
		WHERE owner_id = $1 AND id = $2 AND status IN ('pending', 'claimed')
		RETURNING `+commandColumns,
		ownerID, commandID, status, result)

	cmd, err := scanCommand(row)
	if err == nil {
		return cmd, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to acknowledge command: %w", err)
	}

	// Distinguish "not yours / doesn't exist" from "already terminal".
	var existing string
	lookupErr := scope.Conn.QueryRow(ctx, `
		SELECT status FROM garden_commands
		WHERE owner_id = $1 AND id = $2`, ownerID, commandID).Scan(&existing)
	if lookupErr != nil {
		if errors.Is(lookupErr, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to check command status: %w", lookupErr)
	}
	if models.TerminalCommandStatus(existing) {
		return nil, apperrors.ErrTerminalCommand
	}
	return nil, apperrors.ErrNotFound
}

func (r *commandRepository) ReapExpiredClaims(ctx context.Context, cutoff time.Time) (int64, error) {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return 0, fmt.Errorf("no owner scope in context")
	}

	tag, err := scope.Conn.Exec(ctx, `
		UPDATE garden_commands
		SET status = 'pending', claimed_at = NULL
		WHERE status = 'claimed' AND claimed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reap expired claims: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *commandRepository) ListForDevice(ctx context.Context, ownerID, deviceID uuid.UUID, limit int) ([]*models.Command, error) {
	return r.list(ctx, `owner_id = $1 AND device_id = $2`, []any{ownerID, deviceID}, limit)
}

func (r *commandRepository) ListForOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]*models.Command, error) {
	return r.list(ctx, `owner_id = $1`, []any{ownerID}, limit)
}

func (r *commandRepository) list(ctx context.Context, where string, args []any, limit int) ([]*models.Command, error) {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no owner scope in context")
	}

	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := scope.Conn.Query(ctx, fmt.Sprintf(`
		SELECT `+commandColumns+`
		FROM garden_commands
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d`, where, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list commands: %w", err)
	}
	defer rows.Close()

	var commands []*models.Command
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan command: %w", err)
		}
		commands = append(commands, cmd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating commands: %w", err)
	}
	return commands, nil
}

func sortCommandsByCreation(commands []*models.Command) {
	sort.Slice(commands, func(i, j int) bool {
		return commands[i].CreatedAt.Before(commands[j].CreatedAt)
	})
}

func scanCommand(row pgx.Row) (*models.Command, error) {
	cmd := &models.Command{}
	err := row.Scan(
		&cmd.ID, &cmd.OwnerID, &cmd.DeviceID, &cmd.CommandType, &cmd.Parameters,
		&cmd.Status, &cmd.CreatedAt, &cmd.ClaimedAt, &cmd.ExecutedAt, &cmd.Result,
	)
	if err != nil {
		return nil, err
	}
	return cmd, nil
}
