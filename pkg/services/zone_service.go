package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verdant-inc/verdant-engine/pkg/apperrors"
	"github.com/verdant-inc/verdant-engine/pkg/models"
	"github.com/verdant-inc/verdant-engine/pkg/repositories"
)

// ZoneService manages garden zones and the dashboard pump toggle.
type ZoneService interface {
	Create(ctx context.Context, zone *models.Zone) (*models.Zone, error)
	Get(ctx context.Context, ownerID, zoneID uuid.UUID) (*models.Zone, error)
	List(ctx context.Context, ownerID uuid.UUID) ([]*models.Zone, error)
	Update(ctx context.Context, zone *models.Zone) (*models.Zone, error)
	Delete(ctx context.Context, ownerID, zoneID uuid.UUID) error

	// TogglePump flips the zone's pump state and, when a device is assigned
	// to the zone, enqueues the matching pump command for it.
	TogglePump(ctx context.Context, ownerID, zoneID uuid.UUID, on bool) (*models.Zone, error)
}

type zoneService struct {
	zones    repositories.ZoneRepository
	devices  repositories.DeviceRepository
	commands CommandService
	logger   *zap.Logger
}

func NewZoneService(
	zones repositories.ZoneRepository,
	devices repositories.DeviceRepository,
	commands CommandService,
	logger *zap.Logger,
) ZoneService {
	return &zoneService{zones: zones, devices: devices, commands: commands, logger: logger}
}

var _ ZoneService = (*zoneService)(nil)

func validateZone(zone *models.Zone) error {
	if zone.Name == "" {
		return fmt.Errorf("%w: zone name is required", apperrors.ErrInvalidInput)
	}
	if !models.ValidMoistureThreshold(zone.MoistureThreshold) {
		return fmt.Errorf("%w: moisture_threshold must be 0-100, got %v",
			apperrors.ErrInvalidInput, zone.MoistureThreshold)
	}
	return nil
}

func (s *zoneService) Create(ctx context.Context, zone *models.Zone) (*models.Zone, error) {
	if err := validateZone(zone); err != nil {
		return nil, err
	}
	if err := s.zones.Create(ctx, zone); err != nil {
		return nil, err
	}
	s.logger.Info("Zone created",
		zap.String("zone_id", zone.ID.String()),
		zap.String("name", zone.Name))
	return zone, nil
}

func (s *zoneService) Get(ctx context.Context, ownerID, zoneID uuid.UUID) (*models.Zone, error) {
	return s.zones.GetByID(ctx, ownerID, zoneID)
}

func (s *zoneService) List(ctx context.Context, ownerID uuid.UUID) ([]*models.Zone, error) {
	return s.zones.List(ctx, ownerID)
}

func (s *zoneService) Update(ctx context.Context, zone *models.Zone) (*models.Zone, error) {
	if err := validateZone(zone); err != nil {
		return nil, err
	}
	if err := s.zones.Update(ctx, zone); err != nil {
		return nil, err
	}
	return s.zones.GetByID(ctx, zone.OwnerID, zone.ID)
}

func (s *zoneService) Delete(ctx context.Context, ownerID, zoneID uuid.UUID) error {
	if err := s.zones.Delete(ctx, ownerID, zoneID); err != nil {
		return err
	}
	s.logger.Info("Zone deleted", zap.String("zone_id", zoneID.String()))
	return nil
}

func (s *zoneService) TogglePump(ctx context.Context, ownerID, zoneID uuid.UUID, on bool) (*models.Zone, error) {
	if err := s.zones.SetPump(ctx, ownerID, zoneID, on); err != nil {
		return nil, err
	}

	commandType := models.CommandTypePumpOff
	if on {
		commandType = models.CommandTypePumpOn
	}

	// Relay the toggle to the zone's device, if any. A zone with no device
	// still records the state for the dashboard.
	if device := s.zoneDevice(ctx, ownerID, zoneID); device != nil {
		if _, err := s.commands.Enqueue(ctx, ownerID, device.ID, commandType, nil); err != nil {
			s.logger.Warn("Failed to enqueue pump command",
				zap.String("zone_id", zoneID.String()),
				zap.String("device_id", device.ID.String()),
				zap.Error(err))
		}
	}

	return s.zones.GetByID(ctx, ownerID, zoneID)
}

// zoneDevice returns the first device assigned to the zone, or nil.
func (s *zoneService) zoneDevice(ctx context.Context, ownerID, zoneID uuid.UUID) *models.Device {
	devices, err := s.devices.List(ctx, ownerID)
	if err != nil {
		s.logger.Warn("Failed to list devices for pump relay",
			zap.String("zone_id", zoneID.String()), zap.Error(err))
		return nil
	}
	for _, d := range devices {
		if d.ZoneID != nil && *d.ZoneID == zoneID {
			return d
		}
	}
	return nil
}
