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

// DeviceRepository provides data access for registered devices.
type DeviceRepository interface {
	// Upsert inserts a device or, if one exists for (owner, external id),
	// updates its mutable attributes. Either way the device comes back
	// online with a fresh last_seen. Returns the resulting row.
	Upsert(ctx context.Context, ownerID uuid.UUID, externalID string, attrs models.DeviceAttrs) (*models.Device, error)

	GetByID(ctx context.Context, ownerID, deviceID uuid.UUID) (*models.Device, error)
	GetByExternalID(ctx context.Context, ownerID uuid.UUID, externalID string) (*models.Device, error)
	List(ctx context.Context, ownerID uuid.UUID) ([]*models.Device, error)

	// UpdateLiveness stamps status and last_seen. Returns ErrNotFound when no
	// row matched (unknown device or ownership mismatch).
	UpdateLiveness(ctx context.Context, ownerID uuid.UUID, externalID, status string, batteryLevel *int) error

	// SetZone assigns or, with nil, clears a device's zone.
	SetZone(ctx context.Context, ownerID, deviceID uuid.UUID, zoneID *uuid.UUID) error

	Delete(ctx context.Context, ownerID, deviceID uuid.UUID) error

	// MarkStaleOffline flips devices whose last_seen is older than the cutoff
	// to offline, across all owners. Runs on an unscoped connection from the
	// maintenance sweep. Returns the number of devices flipped.
	MarkStaleOffline(ctx context.Context, cutoff time.Time) (int64, error)
}

type deviceRepository struct{}

func NewDeviceRepository() DeviceRepository {
	return &deviceRepository{}
}

var _ DeviceRepository = (*deviceRepository)(nil)

const deviceColumns = `id, owner_id, device_id, name, device_type, status, ip_address,
       mac_address, firmware_version, zone_id, battery_level, last_seen, created_at, updated_at`

func (r *deviceRepository) Upsert(ctx context.Context, ownerID uuid.UUID, externalID string, attrs models.DeviceAttrs) (*models.Device, error) {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no owner scope in context")
	}

	// Second registration wins: COALESCE keeps the stored value only when the
	// incoming attribute is empty.
	row := scope.Conn.QueryRow(ctx, `
		INSERT INTO garden_devices (owner_id, device_id, name, device_type, ip_address,
		                            mac_address, firmware_version, zone_id, battery_level,
		                            status, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'online', now())
		ON CONFLICT (owner_id, device_id) DO UPDATE SET
			name             = CASE WHEN EXCLUDED.name = '' THEN garden_devices.name ELSE EXCLUDED.name END,
			device_type      = CASE WHEN EXCLUDED.device_type = '' THEN garden_devices.device_type ELSE EXCLUDED.device_type END,
			ip_address       = CASE WHEN EXCLUDED.ip_address = '' THEN garden_devices.ip_address ELSE EXCLUDED.ip_address END,
			mac_address      = CASE WHEN EXCLUDED.mac_address = '' THEN garden_devices.mac_address ELSE EXCLUDED.mac_address END,
			firmware_version = CASE WHEN EXCLUDED.firmware_version = '' THEN garden_devices.firmware_version ELSE EXCLUDED.firmware_version END,
			zone_id          = COALESCE(EXCLUDED.zone_id, garden_devices.zone_id),
			battery_level    = COALESCE(EXCLUDED.battery_level, garden_devices.battery_level),
			status           = 'online',
			last_seen        = now(),
			updated_at       = now()
		RETURNING `+deviceColumns,
		ownerID, externalID, attrs.Name, attrs.DeviceType, attrs.IPAddress,
		attrs.MACAddress, attrs.FirmwareVersion, attrs.ZoneID, attrs.BatteryLevel)

	device, err := scanDevice(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert device: %w", err)
	}
	return device, nil
}

func (r *deviceRepository) GetByID(ctx context.Context, ownerID, deviceID uuid.UUID) (*models.Device, error) {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no owner scope in context")
	}

	row := scope.Conn.QueryRow(ctx, `
		SELECT `+deviceColumns+`
		FROM garden_devices
		WHERE owner_id = $1 AND id = $2`, ownerID, deviceID)

	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return device, nil
}

func (r *deviceRepository) GetByExternalID(ctx context.Context, ownerID uuid.UUID, externalID string) (*models.Device, error) {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no owner scope in context")
	}

	row := scope.Conn.QueryRow(ctx, `
		SELECT `+deviceColumns+`
		FROM garden_devices
		WHERE owner_id = $1 AND device_id = $2`, ownerID, externalID)

	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return device, nil
}

func (r *deviceRepository) List(ctx context.Context, ownerID uuid.UUID) ([]*models.Device, error) {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no owner scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT `+deviceColumns+`
		FROM garden_devices
		WHERE owner_id = $1
		ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []*models.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating devices: %w", err)
	}
	return devices, nil
}

func (r *deviceRepository) UpdateLiveness(ctx context.Context, ownerID uuid.UUID, externalID, status string, batteryLevel *int) error {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return fmt.Errorf("no owner scope in context")
	}

	tag, err := scope.Conn.Exec(ctx, `
		UPDATE garden_devices
		SET status = $3, last_seen = now(),
		    battery_level = COALESCE($4, battery_level),
		    updated_at = now()
		WHERE owner_id = $1 AND device_id = $2`,
		ownerID, externalID, status, batteryLevel)
	if err != nil {
		return fmt.Errorf("failed to update device liveness: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *deviceRepository) SetZone(ctx context.Context, ownerID, deviceID uuid.UUID, zoneID *uuid.UUID) error {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return fmt.Errorf("no owner scope in context")
	}

	tag, err := scope.Conn.Exec(ctx, `
		UPDATE garden_devices
		SET zone_id = $3, updated_at = now()
		WHERE owner_id = $1 AND id = $2`, ownerID, deviceID, zoneID)
	if err != nil {
		return fmt.Errorf("failed to set device zone: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *deviceRepository) Delete(ctx context.Context, ownerID, deviceID uuid.UUID) error {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return fmt.Errorf("no owner scope in context")
	}

	// API keys cascade via FK.
	tag, err := scope.Conn.Exec(ctx, `
		DELETE FROM garden_devices
		WHERE owner_id = $1 AND id = $2`, ownerID, deviceID)
	if err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *deviceRepository) MarkStaleOffline(ctx context.Context, cutoff time.Time) (int64, error) {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return 0, fmt.Errorf("no owner scope in context")
	}

	tag, err := scope.Conn.Exec(ctx, `
		UPDATE garden_devices
		SET status = 'offline', updated_at = now()
		WHERE status = 'online' AND (last_seen IS NULL OR last_seen < $1)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to mark stale devices offline: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanDevice(row pgx.Row) (*models.Device, error) {
	device := &models.Device{}
	err := row.Scan(
		&device.ID, &device.OwnerID, &device.DeviceID, &device.Name, &device.DeviceType,
		&device.Status, &device.IPAddress, &device.MACAddress, &device.FirmwareVersion,
		&device.ZoneID, &device.BatteryLevel, &device.LastSeen,
		&device.CreatedAt, &device.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return device, nil
}
