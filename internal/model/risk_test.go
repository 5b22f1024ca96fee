package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelForScore_Boundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		score float64
		want  RiskLevel
	}{
		{"zero", 0, RiskLevelLow},
		{"just below medium", 24.999, RiskLevelLow},
		{"medium lower bound", 25, RiskLevelMedium},
		{"mid medium", 40, RiskLevelMedium},
		{"just below high", 49.999, RiskLevelMedium},
		{"high lower bound", 50, RiskLevelHigh},
		{"just below critical", 74.999, RiskLevelHigh},
		{"critical lower bound", 75, RiskLevelCritical},
		{"max", 100, RiskLevelCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, LevelForScore(tt.score))
		})
	}
}

func TestRiskLevelValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level RiskLevel
		want  string
	}{
		{RiskLevelLow, "low"},
		{RiskLevelMedium, "medium"},
		{RiskLevelHigh, "high"},
		{RiskLevelCritical, "critical"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.level))
		})
	}
}
