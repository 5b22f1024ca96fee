package model

import "time"

// FactKind discriminates the closed set of fact shapes the engine accepts.
type FactKind string

const (
	FactStepCompleted      FactKind = "step_completed"
	FactStepSkipped        FactKind = "step_skipped"
	FactDocumentUploaded   FactKind = "document_uploaded"
	FactRiskFactorsUpdated FactKind = "risk_factors_updated"
)

// Fact is one externally observed event about a contractor. Shape validation
// happens at the transport boundary; the engine trusts Kind and reads only
// the fields that belong to it.
type Fact struct {
	Kind FactKind `json:"kind"`

	// Step facts.
	ItemKind ItemKind `json:"item_kind,omitempty"`
	ItemType string   `json:"item_type,omitempty"`

	// Document facts.
	DocumentType string     `json:"document_type,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	SizeBytes    int64      `json:"size_bytes,omitempty"`
	MimeType     string     `json:"mime_type,omitempty"`

	// Risk facts.
	Factors []FactorInput `json:"factors,omitempty"`
}

// StepCompleted builds a completion fact for an onboarding step or
// offboarding task.
func StepCompleted(kind ItemKind, itemType string) Fact {
	return Fact{Kind: FactStepCompleted, ItemKind: kind, ItemType: itemType}
}

// StepSkipped builds a skip fact for an onboarding step or offboarding task.
func StepSkipped(kind ItemKind, itemType string) Fact {
	return Fact{Kind: FactStepSkipped, ItemKind: kind, ItemType: itemType}
}

// DocumentUploaded builds an upload fact for a document type.
func DocumentUploaded(docType string, expiresAt *time.Time, sizeBytes int64, mimeType string) Fact {
	return Fact{
		Kind:         FactDocumentUploaded,
		DocumentType: docType,
		ExpiresAt:    expiresAt,
		SizeBytes:    sizeBytes,
		MimeType:     mimeType,
	}
}

// RiskFactorsUpdated builds a rescoring fact from fresh factor inputs.
func RiskFactorsUpdated(factors []FactorInput) Fact {
	return Fact{Kind: FactRiskFactorsUpdated, Factors: factors}
}
