package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/verdant-inc/verdant-engine/pkg/apperrors"
	"github.com/verdant-inc/verdant-engine/pkg/database"
	"github.com/verdant-inc/verdant-engine/pkg/models"
)

// DefaultReadingLimit caps unbounded dashboard reading queries.
const DefaultReadingLimit = 500

// ReadingRepository provides data access for sensor readings.
// Readings are append-only: there are no update or delete methods.
type ReadingRepository interface {
	Insert(ctx context.Context, reading *models.SensorReading) error
	List(ctx context.Context, ownerID uuid.UUID, filters models.ReadingFilters) ([]*models.SensorReading, error)
	LatestForZone(ctx context.Context, ownerID, zoneID uuid.UUID) (*models.SensorReading, error)
}

type readingRepository struct{}

func NewReadingRepository() ReadingRepository {
	return &readingRepository{}
}

var _ ReadingRepository = (*readingRepository)(nil)

const readingColumns = `id, owner_id, device_id, zone_id, temperature, humidity,
       soil_moisture, light_level, ph_level, recorded_at`

func (r *readingRepository) Insert(ctx context.Context, reading *models.SensorReading) error {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return fmt.Errorf("no owner scope in context")
	}

	// recorded_at is server-stamped by the column default.
	err := scope.Conn.QueryRow(ctx, `
		INSERT INTO garden_sensor_readings (owner_id, device_id, zone_id, temperature,
		                                    humidity, soil_moisture, light_level, ph_level)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, recorded_at`,
		reading.OwnerID, reading.DeviceID, reading.ZoneID, reading.Temperature,
		reading.Humidity, reading.SoilMoisture, reading.LightLevel, reading.PHLevel,
	).Scan(&reading.ID, &reading.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

func (r *readingRepository) List(ctx context.Context, ownerID uuid.UUID, filters models.ReadingFilters) ([]*models.SensorReading, error) {
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
	if filters.DeviceID != nil {
		conditions = append(conditions, fmt.Sprintf("device_id = $%d", argIdx))
		args = append(args, *filters.DeviceID)
		argIdx++
	}
	if filters.Since != nil {
		conditions = append(conditions, fmt.Sprintf("recorded_at >= $%d", argIdx))
		args = append(args, *filters.Since)
		argIdx++
	}
	if filters.Until != nil {
		conditions = append(conditions, fmt.Sprintf("recorded_at <= $%d", argIdx))
		args = append(args, *filters.Until)
		argIdx++
	}

	limit := filters.Limit
	if limit <= 0 || limit > DefaultReadingLimit {
		limit = DefaultReadingLimit
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT `+readingColumns+`
		FROM garden_sensor_readings
		WHERE %s
		ORDER BY recorded_at DESC
		LIMIT $%d`, strings.Join(conditions, " AND "), argIdx)

	rows, err := scope.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list readings: %w", err)
	}
	defer rows.Close()

	var readings []*models.SensorReading
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating readings: %w", err)
	}
	return readings, nil
}

func (r *readingRepository) LatestForZone(ctx context.Context, ownerID, zoneID uuid.UUID) (*models.SensorReading, error) {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no owner scope in context")
	}

	row := scope.Conn.QueryRow(ctx, `
		SELECT `+readingColumns+`
		FROM garden_sensor_readings
		WHERE owner_id = $1 AND zone_id = $2
		ORDER BY recorded_at DESC
		LIMIT 1`, ownerID, zoneID)

	reading, err := scanReading(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest reading: %w", err)
	}
	return reading, nil
}

func scanReading(row pgx.Row) (*models.SensorReading, error) {
	reading := &models.SensorReading{}
	err := row.Scan(
		&reading.ID, &reading.OwnerID, &reading.DeviceID, &reading.ZoneID,
		&reading.Temperature, &reading.Humidity, &reading.SoilMoisture,
		&reading.LightLevel, &reading.PHLevel, &reading.RecordedAt,
	)
	if err != nil {
		return nil, err
	}
	return reading, nil
}
