package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewbase/lifecycle-engine/internal/model"
)

func TestParseFactorFlags(t *testing.T) {
	inputs, err := parseFactorFlags([]string{"weekly_hours=32", "sole_client_dependency=1", "tenure_months=18.5"})
	require.NoError(t, err)
	require.Len(t, inputs, 3)
	assert.Equal(t, "weekly_hours", inputs[0].Key)
	assert.InDelta(t, 32.0, inputs[0].Value, 0.001)
	assert.InDelta(t, 18.5, inputs[2].Value, 0.001)
}

func TestParseFactorFlags_Errors(t *testing.T) {
	cases := []struct {
		name  string
		flags []string
	}{
		{"empty", nil},
		{"no equals", []string{"weekly_hours"}},
		{"empty key", []string{"=5"}},
		{"bad number", []string{"weekly_hours=lots"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseFactorFlags(tc.flags)
			assert.Error(t, err)
		})
	}
}

func TestBuildFact_Step(t *testing.T) {
	recordKind = string(model.FactStepCompleted)
	recordItemKind = string(model.KindOffboardingTask)
	recordItemType = model.TaskRevokeAccess
	t.Cleanup(resetRecordFlags)

	fact, err := buildFact()
	require.NoError(t, err)
	assert.Equal(t, model.FactStepCompleted, fact.Kind)
	assert.Equal(t, model.KindOffboardingTask, fact.ItemKind)
	assert.Equal(t, model.TaskRevokeAccess, fact.ItemType)
}

func TestBuildFact_Document(t *testing.T) {
	recordKind = string(model.FactDocumentUploaded)
	recordDocument = "tax_form"
	recordExpires = "2027-01-01T00:00:00Z"
	recordSizeBytes = 2048
	recordMimeType = "application/pdf"
	t.Cleanup(resetRecordFlags)

	fact, err := buildFact()
	require.NoError(t, err)
	assert.Equal(t, model.FactDocumentUploaded, fact.Kind)
	assert.Equal(t, "tax_form", fact.DocumentType)
	require.NotNil(t, fact.ExpiresAt)
	assert.Equal(t, 2027, fact.ExpiresAt.Year())
}

func TestBuildFact_Errors(t *testing.T) {
	t.Cleanup(resetRecordFlags)

	resetRecordFlags()
	recordKind = "unknown_kind"
	_, err := buildFact()
	assert.Error(t, err)

	resetRecordFlags()
	recordKind = string(model.FactStepCompleted)
	_, err = buildFact()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--item-type")

	resetRecordFlags()
	recordKind = string(model.FactDocumentUploaded)
	recordExpires = "not-a-date"
	recordDocument = "tax_form"
	_, err = buildFact()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--expires")
}

func resetRecordFlags() {
	recordContractor = ""
	recordKind = ""
	recordItemKind = string(model.KindOnboardingStep)
	recordItemType = ""
	recordDocument = ""
	recordExpires = ""
	recordSizeBytes = 0
	recordMimeType = "application/pdf"
	recordFactors = nil
}
