package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/verdant-inc/verdant-engine/pkg/apperrors"
	"github.com/verdant-inc/verdant-engine/pkg/database"
	"github.com/verdant-inc/verdant-engine/pkg/models"
)

// AlertRepository provides data access for threshold alerts.
// Alerts are never deleted; the read flag is the only mutable field.
type AlertRepository interface {
	Create(ctx context.Context, alert *models.Alert) error
	List(ctx context.Context, ownerID uuid.UUID, filters models.AlertFilters) ([]*models.Alert, error)
	MarkRead(ctx context.Context, ownerID, alertID uuid.UUID) error
	MarkAllRead(ctx context.Context, ownerID uuid.UUID) (int64, error)
	CountUnread(ctx context.Context, ownerID uuid.UUID) (int, error)
}

type alertRepository struct{}

func NewAlertRepository() AlertRepository {
	return &alertRepository{}
}

var _ AlertRepository = (*alertRepository)(nil)

const alertColumns = `id, owner_id, zone_id, alert_type, message, read, created_at`

func (r *alertRepository) Create(ctx context.Context, alert *models.Alert) error {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return fmt.Errorf("no owner scope in context")
	}

	err := scope.Conn.QueryRow(ctx, `
		INSERT INTO garden_alerts (owner_id, zone_id, alert_type, message)
		VALUES ($1, $2, $3, $4)
		RETURNING id, read, created_at`,
		alert.OwnerID, alert.ZoneID, alert.AlertType, alert.Message,
	).Scan(&alert.ID, &alert.Read, &alert.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

func (r *alertRepository) List(ctx context.Context, ownerID uuid.UUID, filters models.AlertFilters) ([]*models.Alert, error) {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no owner scope in context")
	}

	conditions := []string{"owner_id = $1"}
	args := []any{ownerID}
	argIdx := 2

	if filters.ZoneID != nil {
		conditions = append(conditions, fmt.Sprintf("zone_id = $%d", argIdx))
		args = append(args, *filters.ZoneID)
		argIdx++
	}
	if filters.UnreadOnly {
		conditions = append(conditions, "read = FALSE")
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT `+alertColumns+`
		FROM garden_alerts
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d`, strings.Join(conditions, " AND "), argIdx)

	rows, err := scope.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alerts: %w", err)
	}
	return alerts, nil
}

func (r *alertRepository) MarkRead(ctx context.Context, ownerID, alertID uuid.UUID) error {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return fmt.Errorf("no owner scope in context")
	}

	tag, err := scope.Conn.Exec(ctx, `
		UPDATE garden_alerts
		SET read = TRUE
		WHERE owner_id = $1 AND id = $2`, ownerID, alertID)
	if err != nil {
		return fmt.Errorf("failed to mark alert read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *alertRepository) MarkAllRead(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return 0, fmt.Errorf("no owner scope in context")
	}

	tag, err := scope.Conn.Exec(ctx, `
		UPDATE garden_alerts
		SET read = TRUE
		WHERE owner_id = $1 AND read = FALSE`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark alerts read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *alertRepository) CountUnread(ctx context.Context, ownerID uuid.UUID) (int, error) {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return 0, fmt.Errorf("no owner scope in context")
	}

	var count int
	err := scope.Conn.QueryRow(ctx, `
		SELECT COUNT(*) FROM garden_alerts
		WHERE owner_id = $1 AND read = FALSE`, ownerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread alerts: %w", err)
	}
	return count, nil
}

func scanAlert(row pgx.Row) (*models.Alert, error) {
	alert := &models.Alert{}
	err := row.Scan(
		&alert.ID, &alert.OwnerID, &alert.ZoneID, &alert.AlertType,
		&alert.Message, &alert.Read, &alert.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return alert, nil
}
