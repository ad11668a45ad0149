package models

import (
	"time"

	"github.com/google/uuid"
)

// Command status values. The lifecycle is
// pending -> claimed -> executed | failed; executed and failed are terminal.
// A claimed command that is not acknowledged within the visibility timeout is
// returned to pending by the reaper.
const (
	CommandStatusPending  = "pending"
	CommandStatusClaimed  = "claimed"
	CommandStatusExecuted = "executed"
	CommandStatusFailed   = "failed"
)

// Command types with server-side effects.
const (
	CommandTypePumpOn  = "pump_on"
	CommandTypePumpOff = "pump_off"
	CommandTypeWater   = "water"
	CommandTypeReboot  = "reboot"
)

// Command is a queued instruction addressed to a device. Commands are never
// deleted; terminal rows remain as history.
type Command struct {
	ID          uuid.UUID              `json:"id"`
	OwnerID     uuid.UUID              `json:"owner_id"`
	DeviceID    uuid.UUID              `json:"device_id"`
	CommandType string                 `json:"command_type"`
	Parameters  map[string]interface{} `json:"parameters"`
	Status      string                 `json:"status"`
	CreatedAt   time.Time              `json:"created_at"`
	ClaimedAt   *time.Time             `json:"claimed_at,omitempty"`
	ExecutedAt  *time.Time             `json:"executed_at,omitempty"`
	Result      *string                `json:"result,omitempty"`
}

// TerminalCommandStatus reports whether s is a final state.
func TerminalCommandStatus(s string) bool {
	return s == CommandStatusExecuted || s == CommandStatusFailed
}

// ValidAckStatus reports whether s is an acceptable acknowledgment outcome.
func ValidAckStatus(s string) bool {
	return s == CommandStatusExecuted || s == CommandStatusFailed
}

// WateringCommand reports whether executing this command type waters a zone,
// which stamps the zone's last_watered field on acknowledgment.
func WateringCommand(commandType string) bool {
	return commandType == CommandTypePumpOn || commandType == CommandTypeWater
}
