package models

import (
	"time"

	"github.com/google/uuid"
)

// SensorReading is one telemetry sample from a device. Readings are
// append-only: never mutated, never deleted by any normal flow. RecordedAt is
// server-stamped at insert time, not taken from the device clock.
type SensorReading struct {
	ID           uuid.UUID  `json:"id"`
	OwnerID      uuid.UUID  `json:"owner_id"`
	DeviceID     *uuid.UUID `json:"device_id,omitempty"`
	ZoneID       uuid.UUID  `json:"zone_id"`
	Temperature  float64    `json:"temperature"`
	Humidity     float64    `json:"humidity"`
	SoilMoisture float64    `json:"soil_moisture"`
	LightLevel   *float64   `json:"light_level,omitempty"`
	PHLevel      *float64   `json:"ph_level,omitempty"`
	RecordedAt   time.Time  `json:"recorded_at"`
}

// ReadingFilters narrows dashboard reading queries.
type ReadingFilters struct {
	ZoneID   *uuid.UUID
	DeviceID *uuid.UUID
	Since    *time.Time
	Until    *time.Time
	Limit    int
}
