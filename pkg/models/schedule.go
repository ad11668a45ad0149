package models

import (
	"time"

	"github.com/google/uuid"
)

// Watering schedule status values.
const (
	ScheduleStatusActive = "active"
	ScheduleStatusPaused = "paused"
)

// WateringSchedule describes a recurring watering of a zone. Frequency is a
// cron expression ("0 6 * * *") or a cron descriptor ("@daily"); TimeOfDay is
// kept for display alongside the expression. The dispatcher turns each firing
// into a pump_on command for the zone's device.
type WateringSchedule struct {
	ID              uuid.UUID  `json:"id"`
	OwnerID         uuid.UUID  `json:"owner_id"`
	ZoneID          uuid.UUID  `json:"zone_id"`
	Frequency       string     `json:"frequency"`
	TimeOfDay       string     `json:"time_of_day,omitempty"`
	DurationSeconds int        `json:"duration_seconds"`
	Status          string     `json:"status"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ValidScheduleStatus reports whether s is a known schedule status.
func ValidScheduleStatus(s string) bool {
	return s == ScheduleStatusActive || s == ScheduleStatusPaused
}
