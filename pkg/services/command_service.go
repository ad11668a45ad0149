package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verdant-inc/verdant-engine/pkg/apperrors"
	"github.com/verdant-inc/verdant-engine/pkg/config"
	"github.com/verdant-inc/verdant-engine/pkg/metrics"
	"github.com/verdant-inc/verdant-engine/pkg/models"
	"github.com/verdant-inc/verdant-engine/pkg/repositories"
)

// CommandService runs the device command queue. Commands move
// pending -> claimed -> executed | failed; a claimed command that is never
// acknowledged is returned to pending once its claim times out.
type CommandService interface {
	// Enqueue queues a command for a device the owner controls.
	Enqueue(ctx context.Context, ownerID, deviceID uuid.UUID, commandType string, parameters map[string]interface{}) (*models.Command, error)

	// Poll claims up to limit pending commands for a device, oldest first.
	// Claimed commands are invisible to concurrent polls. limit <= 0 uses the
	// configured default.
	Poll(ctx context.Context, ownerID, deviceID uuid.UUID, limit int) ([]*models.Command, error)

	// Acknowledge finishes a command with executed or failed. Terminal states
	// are final; a second acknowledgment returns ErrTerminalCommand.
	// Acknowledging a watering command stamps the target zone's last_watered.
	Acknowledge(ctx context.Context, ownerID, commandID uuid.UUID, status string, result *string) (*models.Command, error)

	Get(ctx context.Context, ownerID, commandID uuid.UUID) (*models.Command, error)
	ListForDevice(ctx context.Context, ownerID, deviceID uuid.UUID, limit int) ([]*models.Command, error)
	ListForOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]*models.Command, error)
}

type commandService struct {
	commands repositories.CommandRepository
	devices  repositories.DeviceRepository
	zones    repositories.ZoneRepository
	cfg      config.CommandConfig
	logger   *zap.Logger
}

func NewCommandService(
	commands repositories.CommandRepository,
	devices repositories.DeviceRepository,
	zones repositories.ZoneRepository,
	cfg config.CommandConfig,
	logger *zap.Logger,
) CommandService {
	return &commandService{
		commands: commands,
		devices:  devices,
		zones:    zones,
		cfg:      cfg,
		logger:   logger,
	}
}

var _ CommandService = (*commandService)(nil)

func validCommandType(t string) bool {
	switch t {
	case models.CommandTypePumpOn, models.CommandTypePumpOff,
		models.CommandTypeWater, models.CommandTypeReboot:
		return true
	}
	return false
}

func (s *commandService) Enqueue(ctx context.Context, ownerID, deviceID uuid.UUID, commandType string, parameters map[string]interface{}) (*models.Command, error) {
	if !validCommandType(commandType) {
		return nil, fmt.Errorf("%w: unknown command type %q", apperrors.ErrInvalidInput, commandType)
	}

	// Ownership check before insert: a command may only target a device the
	// caller owns.
	if _, err := s.devices.GetByID(ctx, ownerID, deviceID); err != nil {
		return nil, fmt.Errorf("failed to resolve command target: %w", err)
	}

	cmd := &models.Command{
		OwnerID:     ownerID,
		DeviceID:    deviceID,
		CommandType: commandType,
		Parameters:  parameters,
		Status:      models.CommandStatusPending,
	}
	if err := s.commands.Insert(ctx, cmd); err != nil {
		return nil, err
	}

	metrics.CommandsEnqueued.WithLabelValues(commandType).Inc()
	s.logger.Info("Command enqueued",
		zap.String("command_id", cmd.ID.String()),
		zap.String("device_id", deviceID.String()),
		zap.String("command_type", commandType))
	return cmd, nil
}

func (s *commandService) Poll(ctx context.Context, ownerID, deviceID uuid.UUID, limit int) ([]*models.Command, error) {
	if limit <= 0 {
		limit = s.cfg.DefaultPollLimit
	}

	reclaimBefore := time.Now().Add(-s.cfg.ClaimTimeout)
	claimed, err := s.commands.ClaimPending(ctx, ownerID, deviceID, limit, reclaimBefore)
	if err != nil {
		return nil, err
	}

	if len(claimed) > 0 {
		metrics.CommandsClaimed.Add(float64(len(claimed)))
		s.logger.Debug("Commands claimed",
			zap.String("device_id", deviceID.String()),
			zap.Int("count", len(claimed)))
	}
	return claimed, nil
}

func (s *commandService) Acknowledge(ctx context.Context, ownerID, commandID uuid.UUID, status string, result *string) (*models.Command, error) {
	if !models.ValidAckStatus(status) {
		return nil, fmt.Errorf("%w: acknowledgment status must be executed or failed, got %q",
			apperrors.ErrInvalidInput, status)
	}

	cmd, err := s.commands.Acknowledge(ctx, ownerID, commandID, status, result)
	if err != nil {
		return nil, err
	}

	metrics.CommandsAcknowledged.WithLabelValues(status).Inc()

	// A successfully executed watering command waters the device's zone.
	if status == models.CommandStatusExecuted && models.WateringCommand(cmd.CommandType) {
		s.stampWateredZone(ctx, cmd)
	}

	s.logger.Info("Command acknowledged",
		zap.String("command_id", commandID.String()),
		zap.String("status", status))
	return cmd, nil
}

func (s *commandService) stampWateredZone(ctx context.Context, cmd *models.Command) {
	device, err := s.devices.GetByID(ctx, cmd.OwnerID, cmd.DeviceID)
	if err != nil || device.ZoneID == nil {
		return
	}
	if err := s.zones.StampLastWatered(ctx, cmd.OwnerID, *device.ZoneID, time.Now()); err != nil {
		s.logger.Warn("Failed to stamp zone last_watered",
			zap.String("zone_id", device.ZoneID.String()), zap.Error(err))
	}
}

func (s *commandService) Get(ctx context.Context, ownerID, commandID uuid.UUID) (*models.Command, error) {
	return s.commands.GetByID(ctx, ownerID, commandID)
}

func (s *commandService) ListForDevice(ctx context.Context, ownerID, deviceID uuid.UUID, limit int) ([]*models.Command, error) {
	return s.commands.ListForDevice(ctx, ownerID, deviceID, limit)
}

func (s *commandService) ListForOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]*models.Command, error) {
	return s.commands.ListForOwner(ctx, ownerID, limit)
}
