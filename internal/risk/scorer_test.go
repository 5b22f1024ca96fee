package risk

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewbase/lifecycle-engine/internal/model"
)

func allHighInputs() []model.FactorInput {
	return []model.FactorInput{
		{Key: "sole_client_dependency", Value: 1},
		{Key: "tenure_months", Value: 36},
		{Key: "weekly_hours", Value: 40},
		{Key: "sets_own_schedule", Value: 0},
		{Key: "uses_own_equipment", Value: 0},
		{Key: "exclusive_contract", Value: 1},
		{Key: "paid_fixed_salary", Value: 1},
		{Key: "performs_core_business", Value: 1},
	}
}

func TestScore_AllFactorsMaxed(t *testing.T) {
	t.Parallel()

	a, err := Score(DefaultConfig(), allHighInputs())
	require.NoError(t, err)
	assert.InDelta(t, 100, a.OverallScore, 0.001)
	assert.Equal(t, model.RiskLevelCritical, a.OverallLevel)
	assert.Len(t, a.Factors, 8)
}

func TestScore_AllFactorsProtective(t *testing.T) {
	t.Parallel()

	inputs := []model.FactorInput{
		{Key: "sole_client_dependency", Value: 0},
		{Key: "tenure_months", Value: 0},
		{Key: "weekly_hours", Value: 0},
		{Key: "sets_own_schedule", Value: 1},
		{Key: "uses_own_equipment", Value: 1},
		{Key: "exclusive_contract", Value: 0},
		{Key: "paid_fixed_salary", Value: 0},
		{Key: "performs_core_business", Value: 0},
	}

	a, err := Score(DefaultConfig(), inputs)
	require.NoError(t, err)
	assert.InDelta(t, 0, a.OverallScore, 0.001)
	assert.Equal(t, model.RiskLevelLow, a.OverallLevel)
}

func TestScore_Deterministic(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	first, err := Score(cfg, allHighInputs())
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		a, err := Score(cfg, allHighInputs())
		require.NoError(t, err)
		assert.Equal(t, first.OverallScore, a.OverallScore)
		assert.Equal(t, first.OverallLevel, a.OverallLevel)
		assert.Equal(t, first.Factors, a.Factors)
	}
}

func TestScore_RangeInvariant(t *testing.T) {
	t.Parallel()

	// Out-of-range raw values clamp; score must stay in [0,100].
	inputs := []model.FactorInput{
		{Key: "tenure_months", Value: 500},
		{Key: "weekly_hours", Value: -20},
		{Key: "exclusive_contract", Value: 7},
	}

	a, err := Score(DefaultConfig(), inputs)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, a.OverallScore, 0.0)
	assert.LessOrEqual(t, a.OverallScore, 100.0)
}

func TestScore_PartialFactorSet(t *testing.T) {
	t.Parallel()

	// Only two factors supplied: exclusive_contract (10, maxed) and
	// sets_own_schedule (10, inverted boolean, protective). Expect 50.
	inputs := []model.FactorInput{
		{Key: "exclusive_contract", Value: 1},
		{Key: "sets_own_schedule", Value: 1},
	}

	a, err := Score(DefaultConfig(), inputs)
	require.NoError(t, err)
	assert.InDelta(t, 50, a.OverallScore, 0.001)
	assert.Equal(t, model.RiskLevelHigh, a.OverallLevel)
}

func TestScore_ContributionIsNormalizedTimesWeight(t *testing.T) {
	t.Parallel()

	inputs := []model.FactorInput{{Key: "tenure_months", Value: 18}}
	a, err := Score(DefaultConfig(), inputs)
	require.NoError(t, err)

	require.Len(t, a.Factors, 1)
	f := a.Factors[0]
	assert.InDelta(t, 0.5, f.Normalized, 0.001)
	assert.InDelta(t, 7.5, f.Contribution, 0.001)
	assert.InDelta(t, 50, a.OverallScore, 0.001)
}

func TestScore_UnknownFactor(t *testing.T) {
	t.Parallel()

	_, err := Score(DefaultConfig(), []model.FactorInput{{Key: "astrology_sign", Value: 1}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownFactor))
}

func TestScore_DuplicateFactor(t *testing.T) {
	t.Parallel()

	_, err := Score(DefaultConfig(), []model.FactorInput{
		{Key: "exclusive_contract", Value: 1},
		{Key: "exclusive_contract", Value: 0},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate factor")
}

func TestScore_EmptyInputs(t *testing.T) {
	t.Parallel()

	_, err := Score(DefaultConfig(), nil)
	require.Error(t, err)
}
