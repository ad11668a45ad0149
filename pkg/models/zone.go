// Package models contains domain types for verdant-engine.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Zone represents a logical garden area. A zone may have no devices; that is
// a valid empty state. MoistureThreshold is a percentage (0-100); zero means
// "use the server default".
type Zone struct {
	ID                uuid.UUID  `json:"id"`
	OwnerID           uuid.UUID  `json:"owner_id"`
	Name              string     `json:"name"`
	Description       string     `json:"description,omitempty"`
	SoilType          string     `json:"soil_type,omitempty"`
	MoistureThreshold float64    `json:"moisture_threshold"`
	PumpOn            bool       `json:"pump_on"`
	LastWatered       *time.Time `json:"last_watered,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// ValidMoistureThreshold reports whether t is a usable percentage.
func ValidMoistureThreshold(t float64) bool {
	return t >= 0 && t <= 100
}
