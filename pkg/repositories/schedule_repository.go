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

// ScheduleRepository provides data access for watering schedules.
// ListAllActive runs on an unscoped connection for the dispatcher; everything
// else is owner-scoped.
type ScheduleRepository interface {
	Create(ctx context.Context, schedule *models.WateringSchedule) error
	GetByID(ctx context.Context, ownerID, scheduleID uuid.UUID) (*models.WateringSchedule, error)
	List(ctx context.Context, ownerID uuid.UUID) ([]*models.WateringSchedule, error)
	Update(ctx context.Context, schedule *models.WateringSchedule) error
	Delete(ctx context.Context, ownerID, scheduleID uuid.UUID) error
	ListAllActive(ctx context.Context) ([]*models.WateringSchedule, error)
	StampLastRun(ctx context.Context, scheduleID uuid.UUID, at time.Time) error
}

type scheduleRepository struct{}

func NewScheduleRepository() ScheduleRepository {
	return &scheduleRepository{}
}

var _ ScheduleRepository = (*scheduleRepository)(nil)

const scheduleColumns = `id, owner_id, zone_id, frequency, time_of_day, duration_seconds,
       status, last_run_at, created_at, updated_at`

func (r *scheduleRepository) Create(ctx context.Context, schedule *models.WateringSchedule) error {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return fmt.Errorf("no owner scope in context")
	}

	err := scope.Conn.QueryRow(ctx, `
		INSERT INTO garden_watering_schedules (owner_id, zone_id, frequency, time_of_day, duration_seconds, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		schedule.OwnerID, schedule.ZoneID, schedule.Frequency, schedule.TimeOfDay,
		schedule.DurationSeconds, schedule.Status,
	).Scan(&schedule.ID, &schedule.CreatedAt, &schedule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create schedule: %w", err)
	}
	return nil
}

func (r *scheduleRepository) GetByID(ctx context.Context, ownerID, scheduleID uuid.UUID) (*models.WateringSchedule, error) {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no owner scope in context")
	}

	row := scope.Conn.QueryRow(ctx, `
		SELECT `+scheduleColumns+`
		FROM garden_watering_schedules
		WHERE owner_id = $1 AND id = $2`, ownerID, scheduleID)

	schedule, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return schedule, nil
}

func (r *scheduleRepository) List(ctx context.Context, ownerID uuid.UUID) ([]*models.WateringSchedule, error) {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no owner scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM garden_watering_schedules
		WHERE owner_id = $1
		ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	return collectSchedules(rows)
}

func (r *scheduleRepository) Update(ctx context.Context, schedule *models.WateringSchedule) error {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return fmt.Errorf("no owner scope in context")
	}

	tag, err := scope.Conn.Exec(ctx, `
		UPDATE garden_watering_schedules
		SET frequency = $3, time_of_day = $4, duration_seconds = $5, status = $6, updated_at = now()
		WHERE owner_id = $1 AND id = $2`,
		schedule.OwnerID, schedule.ID, schedule.Frequency, schedule.TimeOfDay,
		schedule.DurationSeconds, schedule.Status)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *scheduleRepository) Delete(ctx context.Context, ownerID, scheduleID uuid.UUID) error {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return fmt.Errorf("no owner scope in context")
	}

	tag, err := scope.Conn.Exec(ctx, `
		DELETE FROM garden_watering_schedules
		WHERE owner_id = $1 AND id = $2`, ownerID, scheduleID)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *scheduleRepository) ListAllActive(ctx context.Context) ([]*models.WateringSchedule, error) {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no owner scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM garden_watering_schedules
		WHERE status = 'active'
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active schedules: %w", err)
	}
	defer rows.Close()

	return collectSchedules(rows)
}

func (r *scheduleRepository) StampLastRun(ctx context.Context, scheduleID uuid.UUID, at time.Time) error {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return fmt.Errorf("no owner scope in context")
	}

	_, err := scope.Conn.Exec(ctx, `
		UPDATE garden_watering_schedules
		SET last_run_at = $2
		WHERE id = $1`, scheduleID, at)
	if err != nil {
		return fmt.Errorf("failed to stamp schedule run: %w", err)
	}
	return nil
}

func collectSchedules(rows pgx.Rows) ([]*models.WateringSchedule, error) {
	var schedules []*models.WateringSchedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, schedule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedules: %w", err)
	}
	return schedules, nil
}

func scanSchedule(row pgx.Row) (*models.WateringSchedule, error) {
	schedule := &models.WateringSchedule{}
	err := row.Scan(
		&schedule.ID, &schedule.OwnerID, &schedule.ZoneID, &schedule.Frequency,
		&schedule.TimeOfDay, &schedule.DurationSeconds, &schedule.Status,
		&schedule.LastRunAt, &schedule.CreatedAt, &schedule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return schedule, nil
}
