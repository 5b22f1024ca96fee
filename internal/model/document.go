package model

import "time"

// DocumentRecord is one version of an uploaded compliance document. At most
// one record per (contractor, document type) carries IsCurrent=true; a new
// upload inserts the next version and flips the prior current record in the
// same store transaction.
type DocumentRecord struct {
	ID           string     `json:"id"`
	ContractorID string     `json:"contractor_id"`
	DocumentType string     `json:"document_type"`
	IsCurrent    bool       `json:"is_current"`
	Version      int        `json:"version"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	SizeBytes    int64      `json:"size_bytes"`
	MimeType     string     `json:"mime_type"`
	UploadedAt   time.Time  `json:"uploaded_at"`
}

// DocumentCondition is the derived currency state of a document slot. It is
// computed at read time from (IsCurrent, ExpiresAt), never stored.
type DocumentCondition string

const (
	DocumentMissing  DocumentCondition = "missing"
	DocumentCurrent  DocumentCondition = "current"
	DocumentExpiring DocumentCondition = "expiring"
	DocumentExpired  DocumentCondition = "expired"
)

// ConditionFor derives the currency condition of a document slot. rec is the
// current record for the slot, or nil if none exists. warn is the warning
// window before expiry during which the slot reads as expiring.
func ConditionFor(rec *DocumentRecord, now time.Time, warn time.Duration) DocumentCondition {
	if rec == nil || !rec.IsCurrent {
		return DocumentMissing
	}
	if rec.ExpiresAt == nil {
		return DocumentCurrent
	}
	switch {
	case !rec.ExpiresAt.After(now):
		return DocumentExpired
	case rec.ExpiresAt.Before(now.Add(warn)):
		return DocumentExpiring
	default:
		return DocumentCurrent
	}
}
