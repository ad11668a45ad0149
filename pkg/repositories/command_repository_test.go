//go:build integration

package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/verdant-inc/verdant-engine/pkg/apperrors"
	"github.com/verdant-inc/verdant-engine/pkg/database"
	"github.com/verdant-inc/verdant-engine/pkg/models"
	"github.com/verdant-inc/verdant-engine/pkg/testhelpers"
)

// commandTestContext holds test dependencies for command repository tests.
type commandTestContext struct {
	t          *testing.T
	engineDB   *testhelpers.EngineDB
	repo       CommandRepository
	deviceRepo DeviceRepository
	ownerID    uuid.UUID
}

func setupCommandTest(t *testing.T) *commandTestContext {
	engineDB := testhelpers.GetEngineDB(t)
	return &commandTestContext{
		t:          t,
		engineDB:   engineDB,
		repo:       NewCommandRepository(),
		deviceRepo: NewDeviceRepository(),
		ownerID:    uuid.MustParse("00000000-0000-0000-0000-000000000040"),
	}
}

// cleanup removes commands and devices for the test owner. Commands first,
// devices carry the FK.
func (tc *commandTestContext) cleanup() {
	tc.t.Helper()
	ctx := context.Background()
	scope, err := tc.engineDB.DB.WithoutOwner(ctx)
	if err != nil {
		tc.t.Fatalf("failed to create scope for cleanup: %v", err)
	}
	defer scope.Close()

	_, _ = scope.Conn.Exec(ctx, "DELETE FROM garden_commands WHERE owner_id = $1", tc.ownerID)
	_, _ = scope.Conn.Exec(ctx, "DELETE FROM garden_devices WHERE owner_id = $1", tc.ownerID)
}

func (tc *commandTestContext) scopedContext() (context.Context, func()) {
	tc.t.Helper()
	ctx := context.Background()
	scope, err := tc.engineDB.DB.WithOwner(ctx, tc.ownerID)
	if err != nil {
		tc.t.Fatalf("failed to create owner scope: %v", err)
	}
	ctx = database.SetOwnerScope(ctx, scope)
	return ctx, func() { scope.Close() }
}

// createTestDevice registers a device the commands can target.
func (tc *commandTestContext) createTestDevice(ctx context.Context, externalID string) *models.Device {
	tc.t.Helper()
	device, err := tc.deviceRepo.Upsert(ctx, tc.ownerID, externalID, models.DeviceAttrs{
		Name:       "Patio Controller",
		DeviceType: "esp32",
	})
	if err != nil {
		tc.t.Fatalf("failed to create test device: %v", err)
	}
	return device
}

// enqueue inserts a pending command and returns it.
func (tc *commandTestContext) enqueue(ctx context.Context, deviceID uuid.UUID, commandType string) *models.Command {
	tc.t.Helper()
	cmd := &models.Command{
		OwnerID:     tc.ownerID,
		DeviceID:    deviceID,
		CommandType: commandType,
	}
	if err := tc.repo.Insert(ctx, cmd); err != nil {
		tc.t.Fatalf("failed to insert command: %v", err)
	}
	return cmd
}

func TestCommandRepository_Insert_DefaultsPending(t *testing.T) {
	tc := setupCommandTest(t)
	tc.cleanup()

	ctx, cleanup := tc.scopedContext()
	defer cleanup()
	device := tc.createTestDevice(ctx, "esp32-cmd-01")

	cmd := &models.Command{
		OwnerID:     tc.ownerID,
		DeviceID:    device.ID,
		CommandType: models.CommandTypeWater,
		Parameters:  map[string]interface{}{"duration": float64(120)},
	}
	if err := tc.repo.Insert(ctx, cmd); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if cmd.ID == uuid.Nil {
		t.Error("expected ID to be generated")
	}
	if cmd.Status != models.CommandStatusPending {
		t.Errorf("expected status pending, got %q", cmd.Status)
	}

	retrieved, err := tc.repo.GetByID(ctx, tc.ownerID, cmd.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if retrieved.Parameters["duration"] != float64(120) {
		t.Errorf("expected duration parameter 120, got %v", retrieved.Parameters["duration"])
	}
	if retrieved.ClaimedAt != nil || retrieved.ExecutedAt != nil {
		t.Error("expected no claim or execution timestamps on a fresh command")
	}
}

func TestCommandRepository_ClaimPending_FIFOAndOnce(t *testing.T) {
	tc := setupCommandTest(t)
	tc.cleanup()

	ctx, cleanup := tc.scopedContext()
	defer cleanup()
	device := tc.createTestDevice(ctx, "esp32-cmd-02")

	first := tc.enqueue(ctx, device.ID, models.CommandTypePumpOn)
	time.Sleep(5 * time.Millisecond)
	second := tc.enqueue(ctx, device.ID, models.CommandTypePumpOff)

	reclaimBefore := time.Now().Add(-2 * time.Minute)
	claimed, err := tc.repo.ClaimPending(ctx, tc.ownerID, device.ID, 10, reclaimBefore)
	if err != nil {
		t.Fatalf("ClaimPending failed: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("expected 2 claimed commands, got %d", len(claimed))
	}
	if claimed[0].ID != first.ID || claimed[1].ID != second.ID {
		t.Error("expected oldest command first")
	}
	for _, c := range claimed {
		if c.Status != models.CommandStatusClaimed {
			t.Errorf("expected status claimed, got %q", c.Status)
		}
		if c.ClaimedAt == nil {
			t.Error("expected claimed_at to be set")
		}
	}

	// A second poll within the visibility timeout delivers nothing.
	again, err := tc.repo.ClaimPending(ctx, tc.ownerID, device.ID, 10, reclaimBefore)
	if err != nil {
		t.Fatalf("second ClaimPending failed: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("expected no commands on second poll, got %d", len(again))
	}
}

func TestCommandRepository_ClaimPending_ReclaimsExpired(t *testing.T) {
	tc := setupCommandTest(t)
	tc.cleanup()

	ctx, cleanup := tc.scopedContext()
	defer cleanup()
	device := tc.createTestDevice(ctx, "esp32-cmd-03")
	cmd := tc.enqueue(ctx, device.ID, models.CommandTypeReboot)

	claimed, err := tc.repo.ClaimPending(ctx, tc.ownerID, device.ID, 10, time.Now().Add(-2*time.Minute))
	if err != nil {
		t.Fatalf("ClaimPending failed: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("expected 1 claimed command, got %d", len(claimed))
	}

	// With the cutoff in the future every outstanding claim counts as
	// expired, so the same command is delivered again.
	reclaimed, err := tc.repo.ClaimPending(ctx, tc.ownerID, device.ID, 10, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("reclaim ClaimPending failed: %v", err)
	}
	if len(reclaimed) != 1 || reclaimed[0].ID != cmd.ID {
		t.Fatalf("expected the expired claim to be re-delivered, got %d commands", len(reclaimed))
	}
}

func TestCommandRepository_Acknowledge(t *testing.T) {
	tc := setupCommandTest(t)
	tc.cleanup()

	ctx, cleanup := tc.scopedContext()
	defer cleanup()
	device := tc.createTestDevice(ctx, "esp32-cmd-04")
	cmd := tc.enqueue(ctx, device.ID, models.CommandTypePumpOn)

	if _, err := tc.repo.ClaimPending(ctx, tc.ownerID, device.ID, 10, time.Now().Add(-2*time.Minute)); err != nil {
		t.Fatalf("ClaimPending failed: %v", err)
	}

	result := "pump engaged"
	acked, err := tc.repo.Acknowledge(ctx, tc.ownerID, cmd.ID, models.CommandStatusExecuted, &result)
	if err != nil {
		t.Fatalf("Acknowledge failed: %v", err)
	}
	if acked.Status != models.CommandStatusExecuted {
		t.Errorf("expected status executed, got %q", acked.Status)
	}
	if acked.ExecutedAt == nil {
		t.Error("expected executed_at to be set")
	}
	if acked.Result == nil || *acked.Result != "pump engaged" {
		t.Errorf("expected result to round-trip, got %v", acked.Result)
	}

	// Terminal commands reject further acknowledgments.
	_, err = tc.repo.Acknowledge(ctx, tc.ownerID, cmd.ID, models.CommandStatusFailed, nil)
	if !errors.Is(err, apperrors.ErrTerminalCommand) {
		t.Errorf("expected ErrTerminalCommand, got %v", err)
	}

	_, err = tc.repo.Acknowledge(ctx, tc.ownerID, uuid.New(), models.CommandStatusExecuted, nil)
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown command, got %v", err)
	}
}

func TestCommandRepository_ReapExpiredClaims(t *testing.T) {
	tc := setupCommandTest(t)
	tc.cleanup()

	ctx, cleanup := tc.scopedContext()
	defer cleanup()
	device := tc.createTestDevice(ctx, "esp32-cmd-05")
	cmd := tc.enqueue(ctx, device.ID, models.CommandTypeWater)

	if _, err := tc.repo.ClaimPending(ctx, tc.ownerID, device.ID, 10, time.Now().Add(-2*time.Minute)); err != nil {
		t.Fatalf("ClaimPending failed: %v", err)
	}

	reaped, err := tc.repo.ReapExpiredClaims(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("ReapExpiredClaims failed: %v", err)
	}
	if reaped != 1 {
		t.Errorf("expected 1 reaped claim, got %d", reaped)
	}

	retrieved, err := tc.repo.GetByID(ctx, tc.ownerID, cmd.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if retrieved.Status != models.CommandStatusPending {
		t.Errorf("expected reaped command back to pending, got %q", retrieved.Status)
	}
	if retrieved.ClaimedAt != nil {
		t.Error("expected claimed_at cleared after reap")
	}
}
