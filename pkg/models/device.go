package models

import (
	"time"

	"github.com/google/uuid"
)

// Device status values.
const (
	DeviceStatusOnline  = "online"
	DeviceStatusOffline = "offline"
)

// Device represents a physical sensor/actuator unit (typically an ESP32).
// DeviceID is the external identifier the hardware reports; it is unique per
// owner, not globally.
type Device struct {
	ID              uuid.UUID  `json:"id"`
	OwnerID         uuid.UUID  `json:"owner_id"`
	DeviceID        string     `json:"device_id"`
	Name            string     `json:"name"`
	DeviceType      string     `json:"device_type,omitempty"`
	Status          string     `json:"status"`
	IPAddress       string     `json:"ip_address,omitempty"`
	MACAddress      string     `json:"mac_address,omitempty"`
	FirmwareVersion string     `json:"firmware_version,omitempty"`
	ZoneID          *uuid.UUID `json:"zone_id,omitempty"`
	BatteryLevel    *int       `json:"battery_level,omitempty"`
	LastSeen        *time.Time `json:"last_seen,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// DeviceAttrs carries the mutable fields a device may report during
// registration or re-registration. Nil pointers mean "leave unchanged".
type DeviceAttrs struct {
	Name            string     `json:"name"`
	DeviceType      string     `json:"device_type,omitempty"`
	IPAddress       string     `json:"ip_address,omitempty"`
	MACAddress      string     `json:"mac_address,omitempty"`
	FirmwareVersion string     `json:"firmware_version,omitempty"`
	ZoneID          *uuid.UUID `json:"zone_id,omitempty"`
	BatteryLevel    *int       `json:"battery_level,omitempty"`
}

// ValidDeviceStatus reports whether s is a known device status.
func ValidDeviceStatus(s string) bool {
	return s == DeviceStatusOnline || s == DeviceStatusOffline
}
