package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/verdant-inc/verdant-engine/pkg/apperrors"
	"github.com/verdant-inc/verdant-engine/pkg/models"
	"github.com/verdant-inc/verdant-engine/pkg/repositories"
)

// cronParser accepts standard 5-field expressions plus descriptors like
// @daily, matching what the dispatcher runs.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ScheduleService manages recurring watering schedules. Mutations notify the
// registered listener so the dispatcher can rebuild its cron entries.
type ScheduleService interface {
	Create(ctx context.Context, schedule *models.WateringSchedule) (*models.WateringSchedule, error)
	Get(ctx context.Context, ownerID, scheduleID uuid.UUID) (*models.WateringSchedule, error)
	List(ctx context.Context, ownerID uuid.UUID) ([]*models.WateringSchedule, error)
	Update(ctx context.Context, schedule *models.WateringSchedule) (*models.WateringSchedule, error)
	SetStatus(ctx context.Context, ownerID, scheduleID uuid.UUID, status string) (*models.WateringSchedule, error)
	Delete(ctx context.Context, ownerID, scheduleID uuid.UUID) error

	// ListAllActive feeds the dispatcher. Runs unscoped, across owners.
	ListAllActive(ctx context.Context) ([]*models.WateringSchedule, error)
	StampLastRun(ctx context.Context, scheduleID uuid.UUID, at time.Time) error

	// SetChangeListener registers a callback fired after every schedule
	// mutation. At most one listener; nil clears it.
	SetChangeListener(fn func())
}

type scheduleService struct {
	schedules repositories.ScheduleRepository
	zones     repositories.ZoneRepository
	onChange  func()
	logger    *zap.Logger
}

func NewScheduleService(
	schedules repositories.ScheduleRepository,
	zones repositories.ZoneRepository,
	logger *zap.Logger,
) ScheduleService {
	return &scheduleService{schedules: schedules, zones: zones, logger: logger}
}

var _ ScheduleService = (*scheduleService)(nil)

func validateSchedule(schedule *models.WateringSchedule) error {
	if _, err := cronParser.Parse(schedule.Frequency); err != nil {
		return fmt.Errorf("%w: invalid frequency %q: %v",
			apperrors.ErrInvalidInput, schedule.Frequency, err)
	}
	if schedule.DurationSeconds <= 0 {
		return fmt.Errorf("%w: duration_seconds must be positive", apperrors.ErrInvalidInput)
	}
	if schedule.Status != "" && !models.ValidScheduleStatus(schedule.Status) {
		return fmt.Errorf("%w: unknown schedule status %q", apperrors.ErrInvalidInput, schedule.Status)
	}
	return nil
}

func (s *scheduleService) Create(ctx context.Context, schedule *models.WateringSchedule) (*models.WateringSchedule, error) {
	if err := validateSchedule(schedule); err != nil {
		return nil, err
	}
	if schedule.Status == "" {
		schedule.Status = models.ScheduleStatusActive
	}
	if _, err := s.zones.GetByID(ctx, schedule.OwnerID, schedule.ZoneID); err != nil {
		return nil, fmt.Errorf("failed to resolve zone for schedule: %w", err)
	}

	if err := s.schedules.Create(ctx, schedule); err != nil {
		return nil, err
	}

	s.logger.Info("Watering schedule created",
		zap.String("schedule_id", schedule.ID.String()),
		zap.String("zone_id", schedule.ZoneID.String()),
		zap.String("frequency", schedule.Frequency))
	s.notify()
	return schedule, nil
}

func (s *scheduleService) Get(ctx context.Context, ownerID, scheduleID uuid.UUID) (*models.WateringSchedule, error) {
	return s.schedules.GetByID(ctx, ownerID, scheduleID)
}

func (s *scheduleService) List(ctx context.Context, ownerID uuid.UUID) ([]*models.WateringSchedule, error) {
	return s.schedules.List(ctx, ownerID)
}

func (s *scheduleService) Update(ctx context.Context, schedule *models.WateringSchedule) (*models.WateringSchedule, error) {
	if err := validateSchedule(schedule); err != nil {
		return nil, err
	}
	if err := s.schedules.Update(ctx, schedule); err != nil {
		return nil, err
	}
	s.notify()
	return s.schedules.GetByID(ctx, schedule.OwnerID, schedule.ID)
}

func (s *scheduleService) SetStatus(ctx context.Context, ownerID, scheduleID uuid.UUID, status string) (*models.WateringSchedule, error) {
	if !models.ValidScheduleStatus(status) {
		return nil, fmt.Errorf("%w: unknown schedule status %q", apperrors.ErrInvalidInput, status)
	}
	schedule, err := s.schedules.GetByID(ctx, ownerID, scheduleID)
	if err != nil {
		return nil, err
	}
	schedule.Status = status
	if err := s.schedules.Update(ctx, schedule); err != nil {
		return nil, err
	}
	s.notify()
	return schedule, nil
}

func (s *scheduleService) Delete(ctx context.Context, ownerID, scheduleID uuid.UUID) error {
	if err := s.schedules.Delete(ctx, ownerID, scheduleID); err != nil {
		return err
	}
	s.logger.Info("Watering schedule deleted", zap.String("schedule_id", scheduleID.String()))
	s.notify()
	return nil
}

func (s *scheduleService) ListAllActive(ctx context.Context) ([]*models.WateringSchedule, error) {
	return s.schedules.ListAllActive(ctx)
}

func (s *scheduleService) StampLastRun(ctx context.Context, scheduleID uuid.UUID, at time.Time) error {
	return s.schedules.StampLastRun(ctx, scheduleID, at)
}

func (s *scheduleService) SetChangeListener(fn func()) {
	s.onChange = fn
}

func (s *scheduleService) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}
