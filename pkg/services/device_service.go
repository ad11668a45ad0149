package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verdant-inc/verdant-engine/pkg/apperrors"
	"github.com/verdant-inc/verdant-engine/pkg/models"
	"github.com/verdant-inc/verdant-engine/pkg/repositories"
)

// DeviceService manages device registration and liveness.
type DeviceService interface {
	// RegisterOrUpdate upserts a device by its hardware identifier. Calling
	// it again with the same identifier updates attributes instead of
	// creating a duplicate; either way the device comes back online.
	RegisterOrUpdate(ctx context.Context, ownerID uuid.UUID, externalID string, attrs models.DeviceAttrs) (*models.Device, error)

	// Heartbeat stamps liveness for a device without changing attributes.
	Heartbeat(ctx context.Context, ownerID uuid.UUID, externalID string, batteryLevel *int) error

	Get(ctx context.Context, ownerID, deviceID uuid.UUID) (*models.Device, error)
	GetByExternalID(ctx context.Context, ownerID uuid.UUID, externalID string) (*models.Device, error)
	List(ctx context.Context, ownerID uuid.UUID) ([]*models.Device, error)
	AssignZone(ctx context.Context, ownerID, deviceID uuid.UUID, zoneID *uuid.UUID) (*models.Device, error)

	// Delete removes a device. Its API keys go with it (cascade); its
	// readings and commands remain as history.
	Delete(ctx context.Context, ownerID, deviceID uuid.UUID) error

	// MarkStaleOffline flips devices silent since the cutoff to offline.
	// System maintenance, runs across owners.
	MarkStaleOffline(ctx context.Context, cutoff time.Time) (int64, error)
}

type deviceService struct {
	devices repositories.DeviceRepository
	zones   repositories.ZoneRepository
	logger  *zap.Logger
}

func NewDeviceService(
	devices repositories.DeviceRepository,
	zones repositories.ZoneRepository,
	logger *zap.Logger,
) DeviceService {
	return &deviceService{devices: devices, zones: zones, logger: logger}
}

var _ DeviceService = (*deviceService)(nil)

func (s *deviceService) RegisterOrUpdate(ctx context.Context, ownerID uuid.UUID, externalID string, attrs models.DeviceAttrs) (*models.Device, error) {
	if externalID == "" {
		return nil, fmt.Errorf("%w: device_id is required", apperrors.ErrInvalidInput)
	}

	// A zone assignment at registration must point at one of the owner's
	// zones. The FK alone would allow any zone the RLS policy can see, which
	// is the same set, but resolving it here turns a bad id into a clean 404.
	if attrs.ZoneID != nil {
		if _, err := s.zones.GetByID(ctx, ownerID, *attrs.ZoneID); err != nil {
			return nil, fmt.Errorf("failed to resolve zone for device: %w", err)
		}
	}

	device, err := s.devices.Upsert(ctx, ownerID, externalID, attrs)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Device registered",
		zap.String("device_id", device.ID.String()),
		zap.String("hardware_id", externalID),
		zap.String("status", device.Status))
	return device, nil
}

func (s *deviceService) Heartbeat(ctx context.Context, ownerID uuid.UUID, externalID string, batteryLevel *int) error {
	return s.devices.UpdateLiveness(ctx, ownerID, externalID, models.DeviceStatusOnline, batteryLevel)
}

func (s *deviceService) Get(ctx context.Context, ownerID, deviceID uuid.UUID) (*models.Device, error) {
	return s.devices.GetByID(ctx, ownerID, deviceID)
}

func (s *deviceService) GetByExternalID(ctx context.Context, ownerID uuid.UUID, externalID string) (*models.Device, error) {
	return s.devices.GetByExternalID(ctx, ownerID, externalID)
}

func (s *deviceService) List(ctx context.Context, ownerID uuid.UUID) ([]*models.Device, error) {
	return s.devices.List(ctx, ownerID)
}

func (s *deviceService) AssignZone(ctx context.Context, ownerID, deviceID uuid.UUID, zoneID *uuid.UUID) (*models.Device, error) {
	if zoneID != nil {
		if _, err := s.zones.GetByID(ctx, ownerID, *zoneID); err != nil {
			return nil, fmt.Errorf("failed to resolve zone for device: %w", err)
		}
	}
	if err := s.devices.SetZone(ctx, ownerID, deviceID, zoneID); err != nil {
		return nil, err
	}
	return s.devices.GetByID(ctx, ownerID, deviceID)
}

func (s *deviceService) Delete(ctx context.Context, ownerID, deviceID uuid.UUID) error {
	if err := s.devices.Delete(ctx, ownerID, deviceID); err != nil {
		return err
	}
	s.logger.Info("Device deleted", zap.String("device_id", deviceID.String()))
	return nil
}

func (s *deviceService) MarkStaleOffline(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.devices.MarkStaleOffline(ctx, cutoff)
}
