package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/verdant-inc/verdant-engine/pkg/apperrors"
	"github.com/verdant-inc/verdant-engine/pkg/models"
)

type deviceFixture struct {
	service DeviceService
	devices *mockDeviceRepo
	zones   *mockZoneRepo
	ownerID uuid.UUID
	zone    *models.Zone
}

func newDeviceFixture(t *testing.T) *deviceFixture {
	t.Helper()
	f := &deviceFixture{
		devices: newMockDeviceRepo(),
		zones:   newMockZoneRepo(),
		ownerID: uuid.New(),
	}
	f.zone = &models.Zone{Name: "Beds", OwnerID: f.ownerID}
	require.NoError(t, f.zones.Create(context.Background(), f.zone))
	f.service = NewDeviceService(f.devices, f.zones, zap.NewNop())
	return f
}

func TestDeviceService_RegisterOrUpdate(t *testing.T) {
	f := newDeviceFixture(t)
	ctx := context.Background()

	device, err := f.service.RegisterOrUpdate(ctx, f.ownerID, "esp32-001", models.DeviceAttrs{
		Name:            "Bed sensor",
		DeviceType:      "esp32",
		FirmwareVersion: "1.2.0",
		ZoneID:          &f.zone.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusOnline, device.Status)
	assert.NotNil(t, device.LastSeen)
	require.NotNil(t, device.ZoneID)
	assert.Equal(t, f.zone.ID, *device.ZoneID)
}

func TestDeviceService_RegisterOrUpdate_Idempotent(t *testing.T) {
	f := newDeviceFixture(t)
	ctx := context.Background()

	first, err := f.service.RegisterOrUpdate(ctx, f.ownerID, "esp32-001", models.DeviceAttrs{Name: "Bed sensor"})
	require.NoError(t, err)

	second, err := f.service.RegisterOrUpdate(ctx, f.ownerID, "esp32-001", models.DeviceAttrs{
		Name:            "Bed sensor",
		FirmwareVersion: "1.3.0",
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "re-registration must not create a duplicate")
	assert.Equal(t, "1.3.0", second.FirmwareVersion)
	assert.Len(t, f.devices.devices, 1)
}

func TestDeviceService_RegisterOrUpdate_MissingExternalID(t *testing.T) {
	f := newDeviceFixture(t)

	_, err := f.service.RegisterOrUpdate(context.Background(), f.ownerID, "", models.DeviceAttrs{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestDeviceService_RegisterOrUpdate_ForeignZoneRejected(t *testing.T) {
	f := newDeviceFixture(t)
	foreign := &models.Zone{Name: "Not yours", OwnerID: uuid.New()}
	require.NoError(t, f.zones.Create(context.Background(), foreign))

	_, err := f.service.RegisterOrUpdate(context.Background(), f.ownerID, "esp32-001",
		models.DeviceAttrs{ZoneID: &foreign.ID})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Empty(t, f.devices.devices)
}

func TestDeviceService_AssignZone(t *testing.T) {
	f := newDeviceFixture(t)
	ctx := context.Background()

	device, err := f.service.RegisterOrUpdate(ctx, f.ownerID, "esp32-001", models.DeviceAttrs{Name: "Sensor"})
	require.NoError(t, err)
	require.Nil(t, device.ZoneID)

	assigned, err := f.service.AssignZone(ctx, f.ownerID, device.ID, &f.zone.ID)
	require.NoError(t, err)
	require.NotNil(t, assigned.ZoneID)
	assert.Equal(t, f.zone.ID, *assigned.ZoneID)

	// Nil clears the assignment.
	cleared, err := f.service.AssignZone(ctx, f.ownerID, device.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, cleared.ZoneID)
}

func TestDeviceService_Heartbeat(t *testing.T) {
	f := newDeviceFixture(t)
	ctx := context.Background()

	device, err := f.service.RegisterOrUpdate(ctx, f.ownerID, "esp32-001", models.DeviceAttrs{Name: "Sensor"})
	require.NoError(t, err)
	device.Status = models.DeviceStatusOffline

	battery := 72
	require.NoError(t, f.service.Heartbeat(ctx, f.ownerID, "esp32-001", &battery))

	assert.Equal(t, models.DeviceStatusOnline, device.Status)
	require.NotNil(t, device.BatteryLevel)
	assert.Equal(t, 72, *device.BatteryLevel)
}

func TestDeviceService_Heartbeat_UnknownDevice(t *testing.T) {
	f := newDeviceFixture(t)

	err := f.service.Heartbeat(context.Background(), f.ownerID, "esp32-ghost", nil)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDeviceService_MarkStaleOffline(t *testing.T) {
	f := newDeviceFixture(t)
	ctx := context.Background()

	stale := time.Now().Add(-time.Hour)
	f.devices.add(&models.Device{OwnerID: f.ownerID, DeviceID: "esp32-stale",
		Status: models.DeviceStatusOnline, LastSeen: &stale})
	fresh := time.Now()
	f.devices.add(&models.Device{OwnerID: f.ownerID, DeviceID: "esp32-fresh",
		Status: models.DeviceStatusOnline, LastSeen: &fresh})

	marked, err := f.service.MarkStaleOffline(ctx, time.Now().Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), marked)

	staleDevice, err := f.service.GetByExternalID(ctx, f.ownerID, "esp32-stale")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusOffline, staleDevice.Status)

	freshDevice, err := f.service.GetByExternalID(ctx, f.ownerID, "esp32-fresh")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusOnline, freshDevice.Status)
}
