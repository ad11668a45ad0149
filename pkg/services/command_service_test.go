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
	"github.com/verdant-inc/verdant-engine/pkg/config"
	"github.com/verdant-inc/verdant-engine/pkg/models"
)

func testCommandConfig() config.CommandConfig {
	return config.CommandConfig{
		ClaimTimeout:     2 * time.Minute,
		DefaultPollLimit: 10,
	}
}

type commandFixture struct {
	service  CommandService
	commands *mockCommandRepo
	devices  *mockDeviceRepo
	zones    *mockZoneRepo
	ownerID  uuid.UUID
	zone     *models.Zone
	device   *models.Device
}

func newCommandFixture(t *testing.T) *commandFixture {
	t.Helper()
	f := &commandFixture{
		commands: &mockCommandRepo{},
		devices:  newMockDeviceRepo(),
		zones:    newMockZoneRepo(),
		ownerID:  uuid.New(),
	}
	f.zone = &models.Zone{Name: "Beds", OwnerID: f.ownerID}
	require.NoError(t, f.zones.Create(context.Background(), f.zone))
	f.device = f.devices.add(&models.Device{
		OwnerID:  f.ownerID,
		DeviceID: "esp32-001",
		ZoneID:   &f.zone.ID,
	})
	f.service = NewCommandService(f.commands, f.devices, f.zones, testCommandConfig(), zap.NewNop())
	return f
}

func TestCommandService_Enqueue(t *testing.T) {
	f := newCommandFixture(t)

	cmd, err := f.service.Enqueue(context.Background(), f.ownerID, f.device.ID,
		models.CommandTypePumpOn, map[string]interface{}{"duration_seconds": 120.0})
	require.NoError(t, err)

	assert.Equal(t, models.CommandStatusPending, cmd.Status)
	assert.Equal(t, f.device.ID, cmd.DeviceID)
	assert.Equal(t, 120.0, cmd.Parameters["duration_seconds"])
	assert.Len(t, f.commands.commands, 1)
}

func TestCommandService_Enqueue_UnknownType(t *testing.T) {
	f := newCommandFixture(t)

	_, err := f.service.Enqueue(context.Background(), f.ownerID, f.device.ID, "self_destruct", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Empty(t, f.commands.commands)
}

func TestCommandService_Enqueue_ForeignDeviceRejected(t *testing.T) {
	f := newCommandFixture(t)
	foreign := f.devices.add(&models.Device{OwnerID: uuid.New(), DeviceID: "esp32-other"})

	_, err := f.service.Enqueue(context.Background(), f.ownerID, foreign.ID, models.CommandTypeReboot, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Empty(t, f.commands.commands, "no command row may exist for a device the caller does not own")
}

func TestCommandService_Poll_ClaimsOnce(t *testing.T) {
	f := newCommandFixture(t)
	ctx := context.Background()

	_, err := f.service.Enqueue(ctx, f.ownerID, f.device.ID, models.CommandTypePumpOn, nil)
	require.NoError(t, err)
	_, err = f.service.Enqueue(ctx, f.ownerID, f.device.ID, models.CommandTypeReboot, nil)
	require.NoError(t, err)

	claimed, err := f.service.Poll(ctx, f.ownerID, f.device.ID, 0)
	require.NoError(t, err)
	assert.Len(t, claimed, 2)
	for _, c := range claimed {
		assert.Equal(t, models.CommandStatusClaimed, c.Status)
		assert.NotNil(t, c.ClaimedAt)
	}

	// A second poll sees nothing while the claims are fresh.
	again, err := f.service.Poll(ctx, f.ownerID, f.device.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestCommandService_Poll_ReclaimsExpiredClaims(t *testing.T) {
	f := newCommandFixture(t)
	ctx := context.Background()

	cmd, err := f.service.Enqueue(ctx, f.ownerID, f.device.ID, models.CommandTypeWater, nil)
	require.NoError(t, err)

	stale := time.Now().Add(-5 * time.Minute)
	cmd.Status = models.CommandStatusClaimed
	cmd.ClaimedAt = &stale

	claimed, err := f.service.Poll(ctx, f.ownerID, f.device.ID, 0)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, cmd.ID, claimed[0].ID)
}

func TestCommandService_Acknowledge_Executed(t *testing.T) {
	f := newCommandFixture(t)
	ctx := context.Background()

	cmd, err := f.service.Enqueue(ctx, f.ownerID, f.device.ID, models.CommandTypeReboot, nil)
	require.NoError(t, err)

	result := "ok"
	acked, err := f.service.Acknowledge(ctx, f.ownerID, cmd.ID, models.CommandStatusExecuted, &result)
	require.NoError(t, err)
	assert.Equal(t, models.CommandStatusExecuted, acked.Status)
	assert.NotNil(t, acked.ExecutedAt)
	require.NotNil(t, acked.Result)
	assert.Equal(t, "ok", *acked.Result)
}

func TestCommandService_Acknowledge_TerminalIsFinal(t *testing.T) {
	f := newCommandFixture(t)
	ctx := context.Background()

	cmd, err := f.service.Enqueue(ctx, f.ownerID, f.device.ID, models.CommandTypeReboot, nil)
	require.NoError(t, err)

	_, err = f.service.Acknowledge(ctx, f.ownerID, cmd.ID, models.CommandStatusFailed, nil)
	require.NoError(t, err)

	_, err = f.service.Acknowledge(ctx, f.ownerID, cmd.ID, models.CommandStatusExecuted, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTerminalCommand)
	assert.Equal(t, models.CommandStatusFailed, cmd.Status, "failed must stay failed")
}

func TestCommandService_Acknowledge_InvalidStatus(t *testing.T) {
	f := newCommandFixture(t)
	ctx := context.Background()

	cmd, err := f.service.Enqueue(ctx, f.ownerID, f.device.ID, models.CommandTypeReboot, nil)
	require.NoError(t, err)

	_, err = f.service.Acknowledge(ctx, f.ownerID, cmd.ID, "pending", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestCommandService_Acknowledge_WateringStampsZone(t *testing.T) {
	f := newCommandFixture(t)
	ctx := context.Background()

	cmd, err := f.service.Enqueue(ctx, f.ownerID, f.device.ID, models.CommandTypePumpOn, nil)
	require.NoError(t, err)

	before := time.Now()
	_, err = f.service.Acknowledge(ctx, f.ownerID, cmd.ID, models.CommandStatusExecuted, nil)
	require.NoError(t, err)

	require.NotNil(t, f.zone.LastWatered)
	assert.False(t, f.zone.LastWatered.Before(before))
}

func TestCommandService_Acknowledge_RebootDoesNotStampZone(t *testing.T) {
	f := newCommandFixture(t)
	ctx := context.Background()

	cmd, err := f.service.Enqueue(ctx, f.ownerID, f.device.ID, models.CommandTypeReboot, nil)
	require.NoError(t, err)

	_, err = f.service.Acknowledge(ctx, f.ownerID, cmd.ID, models.CommandStatusExecuted, nil)
	require.NoError(t, err)
	assert.Nil(t, f.zone.LastWatered)
}

func TestCommandService_Acknowledge_FailedWateringDoesNotStampZone(t *testing.T) {
	f := newCommandFixture(t)
	ctx := context.Background()

	cmd, err := f.service.Enqueue(ctx, f.ownerID, f.device.ID, models.CommandTypeWater, nil)
	require.NoError(t, err)

	_, err = f.service.Acknowledge(ctx, f.ownerID, cmd.ID, models.CommandStatusFailed, nil)
	require.NoError(t, err)
	assert.Nil(t, f.zone.LastWatered)
}
