package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verdant-inc/verdant-engine/pkg/models"
	"github.com/verdant-inc/verdant-engine/pkg/repositories"
)

// AlertService surfaces derived alerts to the dashboard. Alerts are created
// by the ingest pipeline; the only mutation here is the read flag.
type AlertService interface {
	List(ctx context.Context, ownerID uuid.UUID, filters models.AlertFilters) ([]*models.Alert, error)
	MarkRead(ctx context.Context, ownerID, alertID uuid.UUID) error
	MarkAllRead(ctx context.Context, ownerID uuid.UUID) (int64, error)
	CountUnread(ctx context.Context, ownerID uuid.UUID) (int, error)
}

type alertService struct {
	alerts repositories.AlertRepository
	logger *zap.Logger
}

func NewAlertService(alerts repositories.AlertRepository, logger *zap.Logger) AlertService {
	return &alertService{alerts: alerts, logger: logger}
}

var _ AlertService = (*alertService)(nil)

func (s *alertService) List(ctx context.Context, ownerID uuid.UUID, filters models.AlertFilters) ([]*models.Alert, error) {
	return s.alerts.List(ctx, ownerID, filters)
}

func (s *alertService) MarkRead(ctx context.Context, ownerID, alertID uuid.UUID) error {
	return s.alerts.MarkRead(ctx, ownerID, alertID)
}

func (s *alertService) MarkAllRead(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	n, err := s.alerts.MarkAllRead(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Debug("Marked alerts read", zap.Int64("count", n))
	}
	return n, nil
}

func (s *alertService) CountUnread(ctx context.Context, ownerID uuid.UUID) (int, error) {
	return s.alerts.CountUnread(ctx, ownerID)
}
