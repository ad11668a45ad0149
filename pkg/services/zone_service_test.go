package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/verdant-inc/verdant-engine/pkg/apperrors"
	"github.com/verdant-inc/verdant-engine/pkg/models"
)

type zoneFixture struct {
	service  ZoneService
	zones    *mockZoneRepo
	devices  *mockDeviceRepo
	commands *mockCommandRepo
	ownerID  uuid.UUID
}

func newZoneFixture(t *testing.T) *zoneFixture {
	t.Helper()
	f := &zoneFixture{
		zones:    newMockZoneRepo(),
		devices:  newMockDeviceRepo(),
		commands: &mockCommandRepo{},
		ownerID:  uuid.New(),
	}
	commandService := NewCommandService(f.commands, f.devices, f.zones, testCommandConfig(), zap.NewNop())
	f.service = NewZoneService(f.zones, f.devices, commandService, zap.NewNop())
	return f
}

func TestZoneService_Create(t *testing.T) {
	f := newZoneFixture(t)

	zone, err := f.service.Create(context.Background(), &models.Zone{
		OwnerID:           f.ownerID,
		Name:              "Tomatoes",
		SoilType:          "loam",
		MoistureThreshold: 35,
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, zone.ID)
	assert.Len(t, f.zones.zones, 1)
}

func TestZoneService_Create_Invalid(t *testing.T) {
	f := newZoneFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, &models.Zone{OwnerID: f.ownerID})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = f.service.Create(ctx, &models.Zone{OwnerID: f.ownerID, Name: "Bad", MoistureThreshold: 150})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = f.service.Create(ctx, &models.Zone{OwnerID: f.ownerID, Name: "Bad", MoistureThreshold: -1})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	assert.Empty(t, f.zones.zones)
}

func TestZoneService_Get_ForeignOwner(t *testing.T) {
	f := newZoneFixture(t)

	zone, err := f.service.Create(context.Background(), &models.Zone{OwnerID: f.ownerID, Name: "Mine"})
	require.NoError(t, err)

	_, err = f.service.Get(context.Background(), uuid.New(), zone.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestZoneService_TogglePump_EnqueuesCommandForZoneDevice(t *testing.T) {
	f := newZoneFixture(t)
	ctx := context.Background()

	zone, err := f.service.Create(ctx, &models.Zone{OwnerID: f.ownerID, Name: "Beds"})
	require.NoError(t, err)
	device := f.devices.add(&models.Device{OwnerID: f.ownerID, DeviceID: "esp32-001", ZoneID: &zone.ID})

	updated, err := f.service.TogglePump(ctx, f.ownerID, zone.ID, true)
	require.NoError(t, err)
	assert.True(t, updated.PumpOn)

	require.Len(t, f.commands.commands, 1)
	cmd := f.commands.commands[0]
	assert.Equal(t, models.CommandTypePumpOn, cmd.CommandType)
	assert.Equal(t, device.ID, cmd.DeviceID)

	updated, err = f.service.TogglePump(ctx, f.ownerID, zone.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.PumpOn)
	require.Len(t, f.commands.commands, 2)
	assert.Equal(t, models.CommandTypePumpOff, f.commands.commands[1].CommandType)
}

func TestZoneService_TogglePump_NoDevice(t *testing.T) {
	f := newZoneFixture(t)
	ctx := context.Background()

	zone, err := f.service.Create(ctx, &models.Zone{OwnerID: f.ownerID, Name: "Empty bed"})
	require.NoError(t, err)

	updated, err := f.service.TogglePump(ctx, f.ownerID, zone.ID, true)
	require.NoError(t, err)
	assert.True(t, updated.PumpOn)
	assert.Empty(t, f.commands.commands)
}

func TestZoneService_TogglePump_UnknownZone(t *testing.T) {
	f := newZoneFixture(t)

	_, err := f.service.TogglePump(context.Background(), f.ownerID, uuid.New(), true)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestZoneService_Update(t *testing.T) {
	f := newZoneFixture(t)
	ctx := context.Background()

	zone, err := f.service.Create(ctx, &models.Zone{OwnerID: f.ownerID, Name: "Beds"})
	require.NoError(t, err)

	zone.Name = "Raised beds"
	zone.MoistureThreshold = 45
	updated, err := f.service.Update(ctx, zone)
	require.NoError(t, err)
	assert.Equal(t, "Raised beds", updated.Name)
	assert.Equal(t, 45.0, updated.MoistureThreshold)
}

func TestZoneService_Delete(t *testing.T) {
	f := newZoneFixture(t)
	ctx := context.Background()

	zone, err := f.service.Create(ctx, &models.Zone{OwnerID: f.ownerID, Name: "Beds"})
	require.NoError(t, err)

	require.NoError(t, f.service.Delete(ctx, f.ownerID, zone.ID))
	_, err = f.service.Get(ctx, f.ownerID, zone.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	err = f.service.Delete(ctx, f.ownerID, zone.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
