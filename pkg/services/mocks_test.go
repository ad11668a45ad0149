package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/verdant-inc/verdant-engine/pkg/apperrors"
	"github.com/verdant-inc/verdant-engine/pkg/models"
)

// In-memory repository fakes shared by the service tests. They enforce the
// same owner filtering the real queries do so cross-owner tests behave.

type mockZoneRepo struct {
	zones     map[uuid.UUID]*models.Zone
	createErr error
	watered   map[uuid.UUID]time.Time
}

func newMockZoneRepo() *mockZoneRepo {
	return &mockZoneRepo{
		zones:   make(map[uuid.UUID]*models.Zone),
		watered: make(map[uuid.UUID]time.Time),
	}
}

func (m *mockZoneRepo) Create(_ context.Context, zone *models.Zone) error {
	if m.createErr != nil {
		return m.createErr
	}
	zone.ID = uuid.New()
	zone.CreatedAt = time.Now()
	zone.UpdatedAt = zone.CreatedAt
	m.zones[zone.ID] = zone
	return nil
}

func (m *mockZoneRepo) GetByID(_ context.Context, ownerID, zoneID uuid.UUID) (*models.Zone, error) {
	z, ok := m.zones[zoneID]
	if !ok || z.OwnerID != ownerID {
		return nil, apperrors.ErrNotFound
	}
	return z, nil
}

func (m *mockZoneRepo) List(_ context.Context, ownerID uuid.UUID) ([]*models.Zone, error) {
	var out []*models.Zone
	for _, z := range m.zones {
		if z.OwnerID == ownerID {
			out = append(out, z)
		}
	}
	return out, nil
}

func (m *mockZoneRepo) Update(_ context.Context, zone *models.Zone) error {
	existing, ok := m.zones[zone.ID]
	if !ok || existing.OwnerID != zone.OwnerID {
		return apperrors.ErrNotFound
	}
	m.zones[zone.ID] = zone
	return nil
}

func (m *mockZoneRepo) SetPump(_ context.Context, ownerID, zoneID uuid.UUID, on bool) error {
	z, ok := m.zones[zoneID]
	if !ok || z.OwnerID != ownerID {
		return apperrors.ErrNotFound
	}
	z.PumpOn = on
	return nil
}

func (m *mockZoneRepo) StampLastWatered(_ context.Context, ownerID, zoneID uuid.UUID, at time.Time) error {
	z, ok := m.zones[zoneID]
	if !ok || z.OwnerID != ownerID {
		return apperrors.ErrNotFound
	}
	z.LastWatered = &at
	m.watered[zoneID] = at
	return nil
}

func (m *mockZoneRepo) Delete(_ context.Context, ownerID, zoneID uuid.UUID) error {
	z, ok := m.zones[zoneID]
	if !ok || z.OwnerID != ownerID {
		return apperrors.ErrNotFound
	}
	delete(m.zones, zoneID)
	return nil
}

type mockDeviceRepo struct {
	devices     map[uuid.UUID]*models.Device
	livenessErr error
	upserts     int
}

func newMockDeviceRepo() *mockDeviceRepo {
	return &mockDeviceRepo{devices: make(map[uuid.UUID]*models.Device)}
}

func (m *mockDeviceRepo) add(d *models.Device) *models.Device {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Status == "" {
		d.Status = models.DeviceStatusOnline
	}
	m.devices[d.ID] = d
	return d
}

func (m *mockDeviceRepo) Upsert(_ context.Context, ownerID uuid.UUID, externalID string, attrs models.DeviceAttrs) (*models.Device, error) {
	m.upserts++
	now := time.Now()
	for _, d := range m.devices {
		if d.OwnerID == ownerID && d.DeviceID == externalID {
			if attrs.Name != "" {
				d.Name = attrs.Name
			}
			if attrs.DeviceType != "" {
				d.DeviceType = attrs.DeviceType
			}
			if attrs.FirmwareVersion != "" {
				d.FirmwareVersion = attrs.FirmwareVersion
			}
			if attrs.ZoneID != nil {
				d.ZoneID = attrs.ZoneID
			}
			if attrs.BatteryLevel != nil {
				d.BatteryLevel = attrs.BatteryLevel
			}
			d.Status = models.DeviceStatusOnline
			d.LastSeen = &now
			return d, nil
		}
	}
	d := &models.Device{
		ID:              uuid.New(),
		OwnerID:         ownerID,
		DeviceID:        externalID,
		Name:            attrs.Name,
		DeviceType:      attrs.DeviceType,
		FirmwareVersion: attrs.FirmwareVersion,
		ZoneID:          attrs.ZoneID,
		BatteryLevel:    attrs.BatteryLevel,
		Status:          models.DeviceStatusOnline,
		LastSeen:        &now,
	}
	m.devices[d.ID] = d
	return d, nil
}

func (m *mockDeviceRepo) GetByID(_ context.Context, ownerID, deviceID uuid.UUID) (*models.Device, error) {
	d, ok := m.devices[deviceID]
	if !ok || d.OwnerID != ownerID {
		return nil, apperrors.ErrNotFound
	}
	return d, nil
}

func (m *mockDeviceRepo) GetByExternalID(_ context.Context, ownerID uuid.UUID, externalID string) (*models.Device, error) {
	for _, d := range m.devices {
		if d.OwnerID == ownerID && d.DeviceID == externalID {
			return d, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockDeviceRepo) List(_ context.Context, ownerID uuid.UUID) ([]*models.Device, error) {
	var out []*models.Device
	for _, d := range m.devices {
		if d.OwnerID == ownerID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockDeviceRepo) UpdateLiveness(_ context.Context, ownerID uuid.UUID, externalID, status string, batteryLevel *int) error {
	if m.livenessErr != nil {
		return m.livenessErr
	}
	for _, d := range m.devices {
		if d.OwnerID == ownerID && d.DeviceID == externalID {
			now := time.Now()
			d.Status = status
			d.LastSeen = &now
			if batteryLevel != nil {
				d.BatteryLevel = batteryLevel
			}
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (m *mockDeviceRepo) SetZone(_ context.Context, ownerID, deviceID uuid.UUID, zoneID *uuid.UUID) error {
	d, ok := m.devices[deviceID]
	if !ok || d.OwnerID != ownerID {
		return apperrors.ErrNotFound
	}
	d.ZoneID = zoneID
	return nil
}

func (m *mockDeviceRepo) Delete(_ context.Context, ownerID, deviceID uuid.UUID) error {
	d, ok := m.devices[deviceID]
	if !ok || d.OwnerID != ownerID {
		return apperrors.ErrNotFound
	}
	delete(m.devices, deviceID)
	return nil
}

func (m *mockDeviceRepo) MarkStaleOffline(_ context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for _, d := range m.devices {
		if d.Status == models.DeviceStatusOnline && d.LastSeen != nil && d.LastSeen.Before(cutoff) {
			d.Status = models.DeviceStatusOffline
			n++
		}
	}
	return n, nil
}

type mockAPIKeyRepo struct {
	keys      map[uuid.UUID]*models.APIKey
	touched   int
	touchErr  error
	createErr error
}

func newMockAPIKeyRepo() *mockAPIKeyRepo {
	return &mockAPIKeyRepo{keys: make(map[uuid.UUID]*models.APIKey)}
}

func (m *mockAPIKeyRepo) Create(_ context.Context, key *models.APIKey) error {
	if m.createErr != nil {
		return m.createErr
	}
	key.ID = uuid.New()
	key.CreatedAt = time.Now()
	m.keys[key.ID] = key
	return nil
}

func (m *mockAPIKeyRepo) GetByHash(_ context.Context, keyHash string) (*models.APIKey, error) {
	for _, k := range m.keys {
		if k.KeyHash == keyHash {
			return k, nil
		}
	}
	return nil, apperrors.ErrInvalidAPIKey
}

func (m *mockAPIKeyRepo) GetByID(_ context.Context, ownerID, keyID uuid.UUID) (*models.APIKey, error) {
	k, ok := m.keys[keyID]
	if !ok || k.OwnerID != ownerID {
		return nil, apperrors.ErrNotFound
	}
	return k, nil
}

func (m *mockAPIKeyRepo) ListForOwner(_ context.Context, ownerID uuid.UUID) ([]*models.APIKey, error) {
	var out []*models.APIKey
	for _, k := range m.keys {
		if k.OwnerID == ownerID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *mockAPIKeyRepo) Revoke(_ context.Context, ownerID, keyID uuid.UUID) error {
	k, ok := m.keys[keyID]
	if !ok || k.OwnerID != ownerID || k.Status != models.APIKeyStatusActive {
		return apperrors.ErrNotFound
	}
	k.Status = models.APIKeyStatusRevoked
	return nil
}

func (m *mockAPIKeyRepo) TouchLastUsed(_ context.Context, keyID uuid.UUID) error {
	if m.touchErr != nil {
		return m.touchErr
	}
	if k, ok := m.keys[keyID]; ok {
		now := time.Now()
		k.LastUsedAt = &now
	}
	m.touched++
	return nil
}

type mockReadingRepo struct {
	readings  []*models.SensorReading
	insertErr error
}

func (m *mockReadingRepo) Insert(_ context.Context, reading *models.SensorReading) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	reading.ID = uuid.New()
	reading.RecordedAt = time.Now()
	m.readings = append(m.readings, reading)
	return nil
}

func (m *mockReadingRepo) List(_ context.Context, ownerID uuid.UUID, filters models.ReadingFilters) ([]*models.SensorReading, error) {
	var out []*models.SensorReading
	for _, r := range m.readings {
		if r.OwnerID != ownerID {
			continue
		}
		if filters.ZoneID != nil && r.ZoneID != *filters.ZoneID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *mockReadingRepo) LatestForZone(_ context.Context, ownerID, zoneID uuid.UUID) (*models.SensorReading, error) {
	for i := len(m.readings) - 1; i >= 0; i-- {
		r := m.readings[i]
		if r.OwnerID == ownerID && r.ZoneID == zoneID {
			return r, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

type mockCommandRepo struct {
	commands  []*models.Command
	insertErr error
}

func (m *mockCommandRepo) Insert(_ context.Context, cmd *models.Command) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	cmd.ID = uuid.New()
	cmd.CreatedAt = time.Now()
	cmd.Status = models.CommandStatusPending
	m.commands = append(m.commands, cmd)
	return nil
}

func (m *mockCommandRepo) GetByID(_ context.Context, ownerID, commandID uuid.UUID) (*models.Command, error) {
	for _, c := range m.commands {
		if c.OwnerID == ownerID && c.ID == commandID {
			return c, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockCommandRepo) ClaimPending(_ context.Context, ownerID, deviceID uuid.UUID, limit int, reclaimBefore time.Time) ([]*models.Command, error) {
	now := time.Now()
	for _, c := range m.commands {
		if c.Status == models.CommandStatusClaimed && c.ClaimedAt != nil && c.ClaimedAt.Before(reclaimBefore) {
			c.Status = models.CommandStatusPending
			c.ClaimedAt = nil
		}
	}
	var out []*models.Command
	for _, c := range m.commands {
		if len(out) >= limit {
			break
		}
		if c.OwnerID == ownerID && c.DeviceID == deviceID && c.Status == models.CommandStatusPending {
			c.Status = models.CommandStatusClaimed
			claimed := now
			c.ClaimedAt = &claimed
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockCommandRepo) Acknowledge(_ context.Context, ownerID, commandID uuid.UUID, status string, result *string) (*models.Command, error) {
	for _, c := range m.commands {
		if c.OwnerID != ownerID || c.ID != commandID {
			continue
		}
		if models.TerminalCommandStatus(c.Status) {
			return nil, apperrors.ErrTerminalCommand
		}
		now := time.Now()
		c.Status = status
		c.ExecutedAt = &now
		c.Result = result
		return c, nil
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockCommandRepo) ListForDevice(_ context.Context, ownerID, deviceID uuid.UUID, limit int) ([]*models.Command, error) {
	var out []*models.Command
	for _, c := range m.commands {
		if c.OwnerID == ownerID && c.DeviceID == deviceID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockCommandRepo) ListForOwner(_ context.Context, ownerID uuid.UUID, limit int) ([]*models.Command, error) {
	var out []*models.Command
	for _, c := range m.commands {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockCommandRepo) ReapExpiredClaims(_ context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for _, c := range m.commands {
		if c.Status == models.CommandStatusClaimed && c.ClaimedAt != nil && c.ClaimedAt.Before(cutoff) {
			c.Status = models.CommandStatusPending
			c.ClaimedAt = nil
			n++
		}
	}
	return n, nil
}

type mockAlertRepo struct {
	alerts    []*models.Alert
	createErr error
}

func (m *mockAlertRepo) Create(_ context.Context, alert *models.Alert) error {
	if m.createErr != nil {
		return m.createErr
	}
	alert.ID = uuid.New()
	alert.CreatedAt = time.Now()
	m.alerts = append(m.alerts, alert)
	return nil
}

func (m *mockAlertRepo) List(_ context.Context, ownerID uuid.UUID, filters models.AlertFilters) ([]*models.Alert, error) {
	var out []*models.Alert
	for _, a := range m.alerts {
		if a.OwnerID != ownerID {
			continue
		}
		if filters.UnreadOnly && a.Read {
			continue
		}
		if filters.ZoneID != nil && a.ZoneID != *filters.ZoneID {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *mockAlertRepo) MarkRead(_ context.Context, ownerID, alertID uuid.UUID) error {
	for _, a := range m.alerts {
		if a.OwnerID == ownerID && a.ID == alertID {
			a.Read = true
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (m *mockAlertRepo) MarkAllRead(_ context.Context, ownerID uuid.UUID) (int64, error) {
	var n int64
	for _, a := range m.alerts {
		if a.OwnerID == ownerID && !a.Read {
			a.Read = true
			n++
		}
	}
	return n, nil
}

func (m *mockAlertRepo) CountUnread(_ context.Context, ownerID uuid.UUID) (int, error) {
	n := 0
	for _, a := range m.alerts {
		if a.OwnerID == ownerID && !a.Read {
			n++
		}
	}
	return n, nil
}

type mockScheduleRepo struct {
	schedules map[uuid.UUID]*models.WateringSchedule
}

func newMockScheduleRepo() *mockScheduleRepo {
	return &mockScheduleRepo{schedules: make(map[uuid.UUID]*models.WateringSchedule)}
}

func (m *mockScheduleRepo) Create(_ context.Context, schedule *models.WateringSchedule) error {
	schedule.ID = uuid.New()
	schedule.CreatedAt = time.Now()
	schedule.UpdatedAt = schedule.CreatedAt
	m.schedules[schedule.ID] = schedule
	return nil
}

func (m *mockScheduleRepo) GetByID(_ context.Context, ownerID, scheduleID uuid.UUID) (*models.WateringSchedule, error) {
	s, ok := m.schedules[scheduleID]
	if !ok || s.OwnerID != ownerID {
		return nil, apperrors.ErrNotFound
	}
	return s, nil
}

func (m *mockScheduleRepo) List(_ context.Context, ownerID uuid.UUID) ([]*models.WateringSchedule, error) {
	var out []*models.WateringSchedule
	for _, s := range m.schedules {
		if s.OwnerID == ownerID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockScheduleRepo) Update(_ context.Context, schedule *models.WateringSchedule) error {
	existing, ok := m.schedules[schedule.ID]
	if !ok || existing.OwnerID != schedule.OwnerID {
		return apperrors.ErrNotFound
	}
	m.schedules[schedule.ID] = schedule
	return nil
}

func (m *mockScheduleRepo) Delete(_ context.Context, ownerID, scheduleID uuid.UUID) error {
	s, ok := m.schedules[scheduleID]
	if !ok || s.OwnerID != ownerID {
		return apperrors.ErrNotFound
	}
	delete(m.schedules, scheduleID)
	return nil
}

func (m *mockScheduleRepo) ListAllActive(_ context.Context) ([]*models.WateringSchedule, error) {
	var out []*models.WateringSchedule
	for _, s := range m.schedules {
		if s.Status == models.ScheduleStatusActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockScheduleRepo) StampLastRun(_ context.Context, scheduleID uuid.UUID, at time.Time) error {
	if s, ok := m.schedules[scheduleID]; ok {
		s.LastRunAt = &at
	}
	return nil
}
