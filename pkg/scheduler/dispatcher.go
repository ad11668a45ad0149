// Package scheduler runs the watering schedule dispatcher and periodic
// maintenance on top of robfig/cron.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/verdant-inc/verdant-engine/pkg/config"
	"github.com/verdant-inc/verdant-engine/pkg/database"
	"github.com/verdant-inc/verdant-engine/pkg/metrics"
	"github.com/verdant-inc/verdant-engine/pkg/models"
	"github.com/verdant-inc/verdant-engine/pkg/repositories"
	"github.com/verdant-inc/verdant-engine/pkg/services"
)

const (
	// maintenanceSchedule drives the stale-device sweep and the claim reaper.
	maintenanceSchedule = "@every 5m"

	// fireTimeout bounds one schedule firing end to end.
	fireTimeout = 30 * time.Second
)

// Dispatcher turns active watering schedules into cron entries. Each firing
// enqueues a pump_on command for the schedule's zone; schedule mutations
// rebuild the entry set.
type Dispatcher struct {
	cron        *cron.Cron
	scopes      *database.OwnerScopeProvider
	schedules   services.ScheduleService
	commands    services.CommandService
	commandRepo repositories.CommandRepository
	devices     repositories.DeviceRepository
	cfg         config.SchedulerConfig
	claimAge    time.Duration
	logger      *zap.Logger

	mu      sync.Mutex
	entries []cron.EntryID
}

func NewDispatcher(
	scopes *database.OwnerScopeProvider,
	schedules services.ScheduleService,
	commands services.CommandService,
	commandRepo repositories.CommandRepository,
	devices repositories.DeviceRepository,
	cfg config.SchedulerConfig,
	commandCfg config.CommandConfig,
	logger *zap.Logger,
) *Dispatcher {
	c := cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))
	return &Dispatcher{
		cron:        c,
		scopes:      scopes,
		schedules:   schedules,
		commands:    commands,
		commandRepo: commandRepo,
		devices:     devices,
		cfg:         cfg,
		claimAge:    commandCfg.ClaimTimeout,
		logger:      logger,
	}
}

// Start loads the active schedules, registers maintenance tasks and starts
// the cron loop. It also hooks schedule mutations to Reload.
func (d *Dispatcher) Start(ctx context.Context) error {
	if err := d.Reload(); err != nil {
		return err
	}

	if _, err := d.cron.AddFunc(maintenanceSchedule, d.runMaintenance); err != nil {
		return err
	}

	d.schedules.SetChangeListener(func() {
		if err := d.Reload(); err != nil {
			d.logger.Error("Failed to reload watering schedules", zap.Error(err))
		}
	})

	d.cron.Start()
	d.logger.Info("Watering dispatcher started")
	return nil
}

// Stop halts the cron loop, waiting for running jobs to finish.
func (d *Dispatcher) Stop() {
	<-d.cron.Stop().Done()
	d.logger.Info("Watering dispatcher stopped")
}

// Reload replaces the cron entries with the current set of active schedules.
func (d *Dispatcher) Reload() error {
	ctx, cancel := context.WithTimeout(context.Background(), fireTimeout)
	defer cancel()

	sysCtx, cleanup, err := d.scopes.WithSystemScope(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	active, err := d.schedules.ListAllActive(sysCtx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, id := range d.entries {
		d.cron.Remove(id)
	}
	d.entries = d.entries[:0]

	for _, schedule := range active {
		schedule := schedule
		id, err := d.cron.AddFunc(schedule.Frequency, func() { d.fire(schedule) })
		if err != nil {
			// A row with an unparsable expression is skipped, not fatal;
			// validation at create time makes this unlikely.
			d.logger.Warn("Skipping schedule with invalid frequency",
				zap.String("schedule_id", schedule.ID.String()),
				zap.String("frequency", schedule.Frequency),
				zap.Error(err))
			continue
		}
		d.entries = append(d.entries, id)
	}

	d.logger.Info("Watering schedules loaded", zap.Int("count", len(d.entries)))
	return nil
}

// fire enqueues the watering command for one schedule firing.
func (d *Dispatcher) fire(schedule *models.WateringSchedule) {
	ctx, cancel := context.WithTimeout(context.Background(), fireTimeout)
	defer cancel()

	ownerCtx, cleanup, err := d.scopes.WithOwnerScope(ctx, schedule.OwnerID)
	if err != nil {
		d.logger.Error("Failed to acquire owner scope for schedule firing",
			zap.String("schedule_id", schedule.ID.String()), zap.Error(err))
		return
	}
	defer cleanup()

	device := d.zoneDevice(ownerCtx, schedule.OwnerID, schedule.ZoneID)
	if device == nil {
		d.logger.Warn("Schedule fired for zone with no device",
			zap.String("schedule_id", schedule.ID.String()),
			zap.String("zone_id", schedule.ZoneID.String()))
		return
	}

	_, err = d.commands.Enqueue(ownerCtx, schedule.OwnerID, device.ID,
		models.CommandTypePumpOn, map[string]interface{}{
			"duration_seconds": float64(schedule.DurationSeconds),
			"zone_id":          schedule.ZoneID.String(),
			"schedule_id":      schedule.ID.String(),
		})
	if err != nil {
		d.logger.Error("Failed to enqueue scheduled watering",
			zap.String("schedule_id", schedule.ID.String()), zap.Error(err))
		return
	}

	if err := d.schedules.StampLastRun(ownerCtx, schedule.ID, time.Now()); err != nil {
		d.logger.Warn("Failed to stamp schedule run",
			zap.String("schedule_id", schedule.ID.String()), zap.Error(err))
	}

	metrics.ScheduleDispatches.Inc()
	d.logger.Info("Scheduled watering dispatched",
		zap.String("schedule_id", schedule.ID.String()),
		zap.String("device_id", device.ID.String()),
		zap.Int("duration_seconds", schedule.DurationSeconds))
}

func (d *Dispatcher) zoneDevice(ctx context.Context, ownerID, zoneID uuid.UUID) *models.Device {
	devices, err := d.devices.List(ctx, ownerID)
	if err != nil {
		d.logger.Error("Failed to list devices for schedule",
			zap.String("zone_id", zoneID.String()), zap.Error(err))
		return nil
	}
	for _, dev := range devices {
		if dev.ZoneID != nil && *dev.ZoneID == zoneID {
			return dev
		}
	}
	return nil
}

// runMaintenance flips silent devices offline and returns abandoned command
// claims to pending.
func (d *Dispatcher) runMaintenance() {
	ctx, cancel := context.WithTimeout(context.Background(), fireTimeout)
	defer cancel()

	sysCtx, cleanup, err := d.scopes.WithSystemScope(ctx)
	if err != nil {
		d.logger.Error("Failed to acquire system scope for maintenance", zap.Error(err))
		return
	}
	defer cleanup()

	cutoff := time.Now().Add(-d.cfg.StaleDeviceAfter)
	flipped, err := d.devices.MarkStaleOffline(sysCtx, cutoff)
	if err != nil {
		d.logger.Error("Stale device sweep failed", zap.Error(err))
	} else if flipped > 0 {
		metrics.StaleDevicesMarked.Add(float64(flipped))
		d.logger.Info("Marked stale devices offline", zap.Int64("count", flipped))
	}

	reaped, err := d.commandRepo.ReapExpiredClaims(sysCtx, time.Now().Add(-d.claimAge))
	if err != nil {
		d.logger.Error("Claim reaper failed", zap.Error(err))
	} else if reaped > 0 {
		d.logger.Info("Returned expired claims to pending", zap.Int64("count", reaped))
	}
}
