package main

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewbase/lifecycle-engine/internal/model"
)

func TestReadBatchFacts(t *testing.T) {
	input := strings.Join([]string{
		`{"contractor_id":"ctr-1","fact":{"kind":"step_completed","item_kind":"onboarding_step","item_type":"invite_accepted"}}`,
		``,
		`{"contractor_id":"ctr-2","fact":{"kind":"risk_factors_updated","factors":[{"key":"weekly_hours","value":30}]}}`,
	}, "\n")

	facts, err := readBatchFacts(strings.NewReader(input), 0)
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, "ctr-1", facts[0].ContractorID)
	assert.Equal(t, model.FactStepCompleted, facts[0].Fact.Kind)
	assert.Equal(t, model.FactRiskFactorsUpdated, facts[1].Fact.Kind)
	require.Len(t, facts[1].Fact.Factors, 1)
	assert.InDelta(t, 30.0, facts[1].Fact.Factors[0].Value, 0.001)
}

func TestReadBatchFacts_Limit(t *testing.T) {
	input := strings.Repeat(`{"contractor_id":"ctr-1","fact":{"kind":"step_completed","item_kind":"onboarding_step","item_type":"invite_accepted"}}`+"\n", 5)

	facts, err := readBatchFacts(strings.NewReader(input), 2)
	require.NoError(t, err)
	assert.Len(t, facts, 2)
}

func TestReadBatchFacts_Malformed(t *testing.T) {
	_, err := readBatchFacts(strings.NewReader(`not json`), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")

	_, err = readBatchFacts(strings.NewReader(`{"fact":{"kind":"step_completed"}}`), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contractor_id is required")
}

func TestProcessBatch_AppliesAndCountsNoops(t *testing.T) {
	env := newTestEnv(t)
	onboardTestContractor(t, env, "ctr-1")

	step := func(itemType string) batchFact {
		return batchFact{
			ContractorID: "ctr-1",
			Fact:         model.StepCompleted(model.KindOnboardingStep, itemType),
		}
	}
	facts := []batchFact{
		step(model.StepInviteAccepted),
		step(model.StepInviteAccepted), // duplicate, counted as no-op
		step(model.StepContractSigned),
	}

	require.NoError(t, processBatch(context.Background(), env, facts, 2))

	item, err := env.Store.GetLifecycleItem(context.Background(), "ctr-1", model.KindOnboardingStep, model.StepInviteAccepted)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, model.StatusCompleted, item.Status)
}

func TestProcessBatch_IndividualFailuresReported(t *testing.T) {
	env := newTestEnv(t)
	// Contractor never onboarded: every fact fails.
	facts := []batchFact{
		{ContractorID: "ctr-ghost", Fact: model.StepCompleted(model.KindOnboardingStep, model.StepInviteAccepted)},
	}

	err := processBatch(context.Background(), env, facts, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 facts failed")
}

func TestProcessBatch_Empty(t *testing.T) {
	env := newTestEnv(t)
	assert.NoError(t, processBatch(context.Background(), env, nil, 1))
}
