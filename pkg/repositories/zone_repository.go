// Package repositories provides data access for verdant-engine. All
// owner-scoped methods expect an OwnerScope in the context; queries still
// filter by owner_id explicitly so behavior does not depend on RLS alone.
package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/verdant-inc/verdant-engine/pkg/apperrors"
	"github.com/verdant-inc/verdant-engine/pkg/database"
	"github.com/verdant-inc/verdant-engine/pkg/models"
)

// ZoneRepository provides data access for garden zones.
type ZoneRepository interface {
	Create(ctx context.Context, zone *models.Zone) error
	GetByID(ctx context.Context, ownerID, zoneID uuid.UUID) (*models.Zone, error)
	List(ctx context.Context, ownerID uuid.UUID) ([]*models.Zone, error)
	Update(ctx context.Context, zone *models.Zone) error
	SetPump(ctx context.Context, ownerID, zoneID uuid.UUID, on bool) error
	StampLastWatered(ctx context.Context, ownerID, zoneID uuid.UUID, at time.Time) error
	Delete(ctx context.Context, ownerID, zoneID uuid.UUID) error
}

type zoneRepository struct{}

func NewZoneRepository() ZoneRepository {
	return &zoneRepository{}
}

var _ ZoneRepository = (*zoneRepository)(nil)

const zoneColumns = `id, owner_id, name, description, soil_type, moisture_threshold,
       pump_on, last_watered, created_at, updated_at`

func (r *zoneRepository) Create(ctx context.Context, zone *models.Zone) error {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return fmt.Errorf("no owner scope in context")
	}

	err := scope.Conn.QueryRow(ctx, `
		INSERT INTO garden_zones (owner_id, name, description, soil_type, moisture_threshold, pump_on)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		zone.OwnerID, zone.Name, zone.Description, zone.SoilType, zone.MoistureThreshold, zone.PumpOn,
	).Scan(&zone.ID, &zone.CreatedAt, &zone.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create zone: %w", err)
	}
	return nil
}

func (r *zoneRepository) GetByID(ctx context.Context, ownerID, zoneID uuid.UUID) (*models.Zone, error) {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no owner scope in context")
	}

	row := scope.Conn.QueryRow(ctx, `
		SELECT `+zoneColumns+`
		FROM garden_zones
		WHERE owner_id = $1 AND id = $2`, ownerID, zoneID)

	zone, err := scanZone(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get zone: %w", err)
	}
	return zone, nil
}

func (r *zoneRepository) List(ctx context.Context, ownerID uuid.UUID) ([]*models.Zone, error) {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no owner scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT `+zoneColumns+`
		FROM garden_zones
		WHERE owner_id = $1
		ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list zones: %w", err)
	}
	defer rows.Close()

	var zones []*models.Zone
	for rows.Next() {
		zone, err := scanZone(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan zone: %w", err)
		}
		zones = append(zones, zone)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating zones: %w", err)
	}
	return zones, nil
}

func (r *zoneRepository) Update(ctx context.Context, zone *models.Zone) error {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return fmt.Errorf("no owner scope in context")
	}

	tag, err := scope.Conn.Exec(ctx, `
		UPDATE garden_zones
		SET name = $3, description = $4, soil_type = $5, moisture_threshold = $6, updated_at = now()
		WHERE owner_id = $1 AND id = $2`,
		zone.OwnerID, zone.ID, zone.Name, zone.Description, zone.SoilType, zone.MoistureThreshold)
	if err != nil {
		return fmt.Errorf("failed to update zone: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *zoneRepository) SetPump(ctx context.Context, ownerID, zoneID uuid.UUID, on bool) error {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return fmt.Errorf("no owner scope in context")
	}

	tag, err := scope.Conn.Exec(ctx, `
		UPDATE garden_zones
		SET pump_on = $3, updated_at = now()
		WHERE owner_id = $1 AND id = $2`, ownerID, zoneID, on)
	if err != nil {
		return fmt.Errorf("failed to set pump state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *zoneRepository) StampLastWatered(ctx context.Context, ownerID, zoneID uuid.UUID, at time.Time) error {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return fmt.Errorf("no owner scope in context")
	}

	tag, err := scope.Conn.Exec(ctx, `
		UPDATE garden_zones
		SET last_watered = $3, updated_at = now()
		WHERE owner_id = $1 AND id = $2`, ownerID, zoneID, at)
	if err != nil {
		return fmt.Errorf("failed to stamp last watered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *zoneRepository) Delete(ctx context.Context, ownerID, zoneID uuid.UUID) error {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return fmt.Errorf("no owner scope in context")
	}

	tag, err := scope.Conn.Exec(ctx, `
		DELETE FROM garden_zones
		WHERE owner_id = $1 AND id = $2`, ownerID, zoneID)
	if err != nil {
		return fmt.Errorf("failed to delete zone: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func scanZone(row pgx.Row) (*models.Zone, error) {
	zone := &models.Zone{}
	err := row.Scan(
		&zone.ID, &zone.OwnerID, &zone.Name, &zone.Description, &zone.SoilType,
		&zone.MoistureThreshold, &zone.PumpOn, &zone.LastWatered,
		&zone.CreatedAt, &zone.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return zone, nil
}
