package risk

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/crewbase/lifecycle-engine/internal/model"
)

// ErrUnknownFactor is returned when an input references a factor key with no
// configured weight. This is a configuration error and is never defaulted.
var ErrUnknownFactor = eris.New("risk: unknown factor key")

// Score computes an unpersisted assessment from raw factor inputs. Pure:
// identical inputs always yield an identical score and level. The caller
// stamps identity, timestamp, and currency before persisting.
func Score(cfg Config, inputs []model.FactorInput) (*model.RiskAssessment, error) {
	if len(inputs) == 0 {
		return nil, eris.New("risk: no factor inputs")
	}

	seen := make(map[string]bool, len(inputs))
	factors := make([]model.RiskFactor, 0, len(inputs))
	var weighted, weightSum float64

	for _, in := range inputs {
		spec, ok := cfg.Factors[in.Key]
		if !ok {
			return nil, eris.Wrapf(ErrUnknownFactor, "risk: score factor %q", in.Key)
		}
		if seen[in.Key] {
			return nil, eris.Errorf("risk: duplicate factor %q", in.Key)
		}
		seen[in.Key] = true

		norm := normalize(spec, in.Value)
		factors = append(factors, model.RiskFactor{
			Key:          in.Key,
			RawValue:     in.Value,
			Normalized:   norm,
			Weight:       spec.Weight,
			Contribution: norm * spec.Weight,
		})
		weighted += norm * spec.Weight
		weightSum += spec.Weight
	}

	if weightSum <= 0 {
		return nil, eris.New("risk: factor weights sum to zero")
	}

	score := math.Round(100*weighted/weightSum*100) / 100

	return &model.RiskAssessment{
		OverallScore: score,
		OverallLevel: model.LevelForScore(score),
		Factors:      factors,
	}, nil
}

func normalize(spec FactorSpec, raw float64) float64 {
	var norm float64
	switch spec.Normalizer {
	case NormalizerBoolean:
		if raw != 0 {
			norm = 1
		}
	default:
		norm = (raw - spec.Min) / (spec.Max - spec.Min)
		norm = math.Max(0, math.Min(1, norm))
	}
	if spec.Inverted {
		norm = 1 - norm
	}
	return norm
}
