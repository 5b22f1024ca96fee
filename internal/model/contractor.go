package model

import "time"

// Contractor carries the identity and routing data the engine needs to
// address notifications. The full contractor profile lives in the host
// application.
type Contractor struct {
	ID             string    `json:"id"`
	DisplayName    string    `json:"display_name"`
	UserID         string    `json:"user_id"`
	AccountOwnerID string    `json:"account_owner_id"`
	CreatedAt      time.Time `json:"created_at"`
}
