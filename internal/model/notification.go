package model

import "time"

// NotificationType identifies the kind of notification event the engine
// emits. Delivery and read/unread tracking belong to the host.
type NotificationType string

const (
	NotifyClassificationRiskChange   NotificationType = "classification_risk_change"
	NotifyDocumentExpiring           NotificationType = "document_expiring"
	NotifyDocumentExpired            NotificationType = "document_expired"
	NotifyDocumentUploaded           NotificationType = "document_uploaded"
	NotifyDocumentMissing            NotificationType = "document_missing"
	NotifyOnboardingCompleted        NotificationType = "onboarding_completed"
	NotifyOffboardingInitiated       NotificationType = "offboarding_initiated"
	NotifyOffboardingActionRequired  NotificationType = "offboarding_action_required"
	NotifyOffboardingCompleted       NotificationType = "offboarding_completed"
	NotifyContractStatusChange       NotificationType = "contract_status_change"
)

// NotificationEvent is a derived record produced by the engine for a
// notification-worthy transition. Produced once, never mutated. CausedBy
// references the state change that triggered it and doubles as the
// deduplication key together with Type and ContractorID.
type NotificationEvent struct {
	ID           string           `json:"id"`
	ContractorID string           `json:"contractor_id"`
	UserID       string           `json:"user_id"`
	Type         NotificationType `json:"type"`
	Payload      map[string]any   `json:"payload,omitempty"`
	CausedBy     string           `json:"caused_by"`
	CreatedAt    time.Time        `json:"created_at"`
}
