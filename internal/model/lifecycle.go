// Package model defines the core domain types shared by the lifecycle engine,
// its stores, and the CLI.
package model

import "time"

// ItemKind identifies which lifecycle machine an item belongs to.
type ItemKind string

const (
	KindOnboardingStep  ItemKind = "onboarding_step"
	KindOffboardingTask ItemKind = "offboarding_task"
	KindDocumentSlot    ItemKind = "document_slot"
)

// ItemStatus is the stored state of a lifecycle item. Completed and skipped
// are terminal.
type ItemStatus string

const (
	StatusPending   ItemStatus = "pending"
	StatusCompleted ItemStatus = "completed"
	StatusSkipped   ItemStatus = "skipped"
)

// Terminal reports whether no further transition is permitted out of s.
func (s ItemStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusSkipped
}

// Default onboarding step types. The active set comes from the lifecycle
// policy; these are the built-in values.
const (
	StepInviteAccepted       = "invite_accepted"
	StepTaxFormSubmitted     = "tax_form_submitted"
	StepContractSigned       = "contract_signed"
	StepBankDetailsSubmitted = "bank_details_submitted"
)

// Default offboarding task types.
const (
	TaskRevokeAccess        = "revoke_access"
	TaskRetrieveEquipment   = "retrieve_equipment"
	TaskProcessFinalPayment = "process_final_payment"
	TaskArchiveRecords      = "archive_records"
)

// LifecycleItem is one unit of a lifecycle machine: an onboarding step, an
// offboarding checklist task, or a required-document slot. At most one item
// exists per (contractor, kind, item type).
type LifecycleItem struct {
	ContractorID string         `json:"contractor_id"`
	Kind         ItemKind       `json:"kind"`
	ItemType     string         `json:"item_type"`
	Status       ItemStatus     `json:"status"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

// Progress summarizes one machine's items. The "stage" a contractor is shown
// at is derived from these counts, never stored.
type Progress struct {
	Kind      ItemKind `json:"kind"`
	Total     int      `json:"total"`
	Completed int      `json:"completed"`
	Skipped   int      `json:"skipped"`
	Pending   []string `json:"pending,omitempty"`
}

// ProgressFor derives completion counts for one machine from its items.
func ProgressFor(kind ItemKind, items []LifecycleItem) Progress {
	p := Progress{Kind: kind}
	for _, it := range items {
		if it.Kind != kind {
			continue
		}
		p.Total++
		switch it.Status {
		case StatusCompleted:
			p.Completed++
		case StatusSkipped:
			p.Skipped++
		default:
			p.Pending = append(p.Pending, it.ItemType)
		}
	}
	return p
}

// Finished reports whether every item in the machine is terminal. An empty
// machine is not finished.
func (p Progress) Finished() bool {
	return p.Total > 0 && len(p.Pending) == 0
}
