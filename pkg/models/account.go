package models

import (
	"time"

	"github.com/google/uuid"
)

// Account is the owning identity every other row hangs off. Accounts are
// created by the hosted auth provider; this service only mirrors the row and
// lets the user change the display name.
type Account struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
