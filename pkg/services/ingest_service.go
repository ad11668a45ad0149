package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verdant-inc/verdant-engine/pkg/apperrors"
	"github.com/verdant-inc/verdant-engine/pkg/config"
	"github.com/verdant-inc/verdant-engine/pkg/metrics"
	"github.com/verdant-inc/verdant-engine/pkg/models"
	"github.com/verdant-inc/verdant-engine/pkg/repositories"
)

// IngestRequest is one telemetry submission from a device. The three core
// metrics are pointers so a missing field is distinguishable from zero.
type IngestRequest struct {
	DeviceID     string     `json:"device_id"`
	ZoneID       *uuid.UUID `json:"zone_id,omitempty"`
	Temperature  *float64   `json:"temperature"`
	Humidity     *float64   `json:"humidity"`
	SoilMoisture *float64   `json:"soil_moisture"`
	LightLevel   *float64   `json:"light_level,omitempty"`
	PHLevel      *float64   `json:"ph_level,omitempty"`
}

// IngestResult is returned to the device after a stored reading.
type IngestResult struct {
	Reading          *models.SensorReading `json:"reading"`
	IrrigationNeeded bool                  `json:"irrigation_needed"`
}

// IngestService runs the sensor ingestion pipeline: validate, resolve device
// and zone, store the reading, refresh device liveness, derive alerts.
type IngestService interface {
	Ingest(ctx context.Context, ownerID uuid.UUID, req IngestRequest) (*IngestResult, error)
}

type ingestService struct {
	readings repositories.ReadingRepository
	devices  repositories.DeviceRepository
	zones    repositories.ZoneRepository
	alerts   repositories.AlertRepository
	cfg      config.IngestConfig
	logger   *zap.Logger
}

func NewIngestService(
	readings repositories.ReadingRepository,
	devices repositories.DeviceRepository,
	zones repositories.ZoneRepository,
	alerts repositories.AlertRepository,
	cfg config.IngestConfig,
	logger *zap.Logger,
) IngestService {
	return &ingestService{
		readings: readings,
		devices:  devices,
		zones:    zones,
		alerts:   alerts,
		cfg:      cfg,
		logger:   logger,
	}
}

var _ IngestService = (*ingestService)(nil)

// EffectiveMoistureThreshold is the single source of truth for the moisture
// floor of a zone: the zone's own threshold when set, otherwise the
// configured default. Both alert derivation and the irrigation flag use it.
func EffectiveMoistureThreshold(zone *models.Zone, cfg config.IngestConfig) float64 {
	if zone.MoistureThreshold > 0 {
		return zone.MoistureThreshold
	}
	return cfg.DefaultMoistureThreshold
}

func (s *ingestService) Ingest(ctx context.Context, ownerID uuid.UUID, req IngestRequest) (*IngestResult, error) {
	if err := validateIngestRequest(req); err != nil {
		return nil, err
	}

	device, err := s.devices.GetByExternalID(ctx, ownerID, req.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("device not registered: %w", err)
	}

	// Explicit zone in the payload wins over the device's assignment.
	zoneID := req.ZoneID
	if zoneID == nil {
		zoneID = device.ZoneID
	}
	if zoneID == nil {
		return nil, fmt.Errorf("%w: no zone for reading (device unassigned and no zone_id in payload)", apperrors.ErrZoneRequired)
	}

	zone, err := s.zones.GetByID(ctx, ownerID, *zoneID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve zone: %w", err)
	}

	reading := &models.SensorReading{
		OwnerID:      ownerID,
		DeviceID:     &device.ID,
		ZoneID:       zone.ID,
		Temperature:  *req.Temperature,
		Humidity:     *req.Humidity,
		SoilMoisture: *req.SoilMoisture,
		LightLevel:   req.LightLevel,
		PHLevel:      req.PHLevel,
	}
	if err := s.readings.Insert(ctx, reading); err != nil {
		return nil, err
	}
	metrics.ReadingsIngested.Inc()

	// Liveness refresh is best-effort; a stored reading is never rejected
	// because the status stamp failed.
	if err := s.devices.UpdateLiveness(ctx, ownerID, device.DeviceID, models.DeviceStatusOnline, nil); err != nil {
		s.logger.Warn("Failed to refresh device liveness",
			zap.String("device_id", device.ID.String()), zap.Error(err))
	}

	threshold := EffectiveMoistureThreshold(zone, s.cfg)
	s.deriveAlerts(ctx, reading, zone, threshold)

	return &IngestResult{
		Reading:          reading,
		IrrigationNeeded: reading.SoilMoisture < threshold,
	}, nil
}

func validateIngestRequest(req IngestRequest) error {
	if req.DeviceID == "" {
		return fmt.Errorf("%w: device_id is required", apperrors.ErrInvalidInput)
	}
	if req.Temperature == nil {
		return fmt.Errorf("%w: temperature is required", apperrors.ErrInvalidInput)
	}
	if req.Humidity == nil {
		return fmt.Errorf("%w: humidity is required", apperrors.ErrInvalidInput)
	}
	if req.SoilMoisture == nil {
		return fmt.Errorf("%w: soil_moisture is required", apperrors.ErrInvalidInput)
	}
	return nil
}

// deriveAlerts evaluates the static thresholds and inserts one unread alert
// per triggered condition. There is deliberately no transaction spanning the
// reading and its alerts: telemetry tolerates a reading without alerts after
// a crash, so each insert is best-effort and failures are only logged.
func (s *ingestService) deriveAlerts(ctx context.Context, reading *models.SensorReading, zone *models.Zone, moistureThreshold float64) {
	type condition struct {
		triggered bool
		message   string
	}
	conditions := []condition{
		{reading.Temperature > s.cfg.HighTempThreshold,
			fmt.Sprintf("high temperature in %s: %.1f°C", zone.Name, reading.Temperature)},
		{reading.Temperature < s.cfg.LowTempThreshold,
			fmt.Sprintf("low temperature in %s: %.1f°C", zone.Name, reading.Temperature)},
		{reading.SoilMoisture < moistureThreshold,
			fmt.Sprintf("low soil moisture in %s: %.1f%%", zone.Name, reading.SoilMoisture)},
	}

	for _, c := range conditions {
		if !c.triggered {
			continue
		}
		alert := &models.Alert{
			OwnerID:   reading.OwnerID,
			ZoneID:    zone.ID,
			AlertType: models.AlertTypeWarning,
			Message:   c.message,
		}
		if err := s.alerts.Create(ctx, alert); err != nil {
			s.logger.Warn("Failed to create alert",
				zap.String("zone_id", zone.ID.String()),
				zap.String("message", c.message),
				zap.Error(err))
			continue
		}
		metrics.AlertsCreated.WithLabelValues(models.AlertTypeWarning).Inc()
	}
}
