package model

import "time"

// RiskLevel classifies a worker-misclassification risk score.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// LevelForScore maps a 0-100 score to its risk level. Bands are inclusive on
// the lower bound and exclusive on the upper, except critical which is
// unbounded above.
func LevelForScore(score float64) RiskLevel {
	switch {
	case score < 25:
		return RiskLevelLow
	case score < 50:
		return RiskLevelMedium
	case score < 75:
		return RiskLevelHigh
	default:
		return RiskLevelCritical
	}
}

// FactorInput is a raw classification signal supplied by the caller.
// Boolean signals are carried as 0 or 1.
type FactorInput struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

// RiskFactor is a single weighted component of an assessment. Immutable once
// computed.
type RiskFactor struct {
	Key          string  `json:"key"`
	RawValue     float64 `json:"raw_value"`
	Normalized   float64 `json:"normalized"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

// RiskAssessment is one append-only scoring of a contractor. Exactly one
// assessment per contractor carries IsCurrent=true; appending a new one flips
// the prior current record in the same store transaction.
type RiskAssessment struct {
	ID           string       `json:"id"`
	ContractorID string       `json:"contractor_id"`
	OverallScore float64      `json:"overall_score"`
	OverallLevel RiskLevel    `json:"overall_level"`
	Factors      []RiskFactor `json:"factors"`
	AssessedAt   time.Time    `json:"assessed_at"`
	IsCurrent    bool         `json:"is_current"`
}
