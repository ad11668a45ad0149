package models

import (
	"time"

	"github.com/google/uuid"
)

// Alert type values.
const (
	AlertTypeWarning = "warning"
	AlertTypeError   = "error"
	AlertTypeInfo    = "info"
)

// Alert is a derived, user-visible notification generated from threshold
// evaluation during ingestion. Alerts are soft-dismissed only: the read flag
// is the single mutable field, rows are never deleted.
type Alert struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	ZoneID    uuid.UUID `json:"zone_id"`
	AlertType string    `json:"alert_type"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// AlertFilters narrows dashboard alert queries.
type AlertFilters struct {
	ZoneID     *uuid.UUID
	UnreadOnly bool
	Limit      int
}
