// Package risk implements the worker-misclassification scoring model:
// weighted factor normalization producing a 0-100 score and risk level.
package risk

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// Normalizer selects how a raw factor value maps into [0,1].
type Normalizer string

const (
	// NormalizerBoolean maps nonzero to 1 and zero to 0.
	NormalizerBoolean Normalizer = "boolean"
	// NormalizerScale clamps the raw value to [Min,Max] and scales linearly.
	NormalizerScale Normalizer = "scale"
)

// FactorSpec configures one factor key: its weight and normalizer. Inverted
// factors are protective signals; their normalized value is flipped so that
// higher always means riskier.
type FactorSpec struct {
	Weight     float64    `yaml:"weight"`
	Normalizer Normalizer `yaml:"normalizer"`
	Min        float64    `yaml:"min,omitempty"`
	Max        float64    `yaml:"max,omitempty"`
	Inverted   bool       `yaml:"inverted,omitempty"`
}

// Config is the full weight table, keyed by factor key. It is passed
// explicitly into Score so the model stays a pure function.
type Config struct {
	Factors map[string]FactorSpec `yaml:"factors"`
}

// DefaultConfig returns the built-in factor table. Weights sum to 100.
func DefaultConfig() Config {
	return Config{
		Factors: map[string]FactorSpec{
			"sole_client_dependency": {Weight: 20, Normalizer: NormalizerScale, Min: 0, Max: 1},
			"tenure_months":          {Weight: 15, Normalizer: NormalizerScale, Min: 0, Max: 36},
			"weekly_hours":           {Weight: 15, Normalizer: NormalizerScale, Min: 0, Max: 40},
			"sets_own_schedule":      {Weight: 10, Normalizer: NormalizerBoolean, Inverted: true},
			"uses_own_equipment":     {Weight: 10, Normalizer: NormalizerBoolean, Inverted: true},
			"exclusive_contract":     {Weight: 10, Normalizer: NormalizerBoolean},
			"paid_fixed_salary":      {Weight: 10, Normalizer: NormalizerBoolean},
			"performs_core_business": {Weight: 10, Normalizer: NormalizerBoolean},
		},
	}
}

// WeightSum returns the sum of all configured factor weights.
func WeightSum(c Config) float64 {
	var sum float64
	for _, spec := range c.Factors {
		sum += spec.Weight
	}
	return sum
}

// ValidateConfig checks that a Config is internally consistent.
func ValidateConfig(c Config) error {
	var errs []string

	if len(c.Factors) == 0 {
		errs = append(errs, "no factors configured")
	}

	// Deterministic error ordering for stable messages.
	keys := make([]string, 0, len(c.Factors))
	for k := range c.Factors {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		spec := c.Factors[key]
		if spec.Weight < 0 {
			errs = append(errs, fmt.Sprintf("%s: weight must be >= 0", key))
		}
		switch spec.Normalizer {
		case NormalizerBoolean:
		case NormalizerScale:
			if spec.Max <= spec.Min {
				errs = append(errs, fmt.Sprintf("%s: max must be > min", key))
			}
		default:
			errs = append(errs, fmt.Sprintf("%s: unknown normalizer %q", key, spec.Normalizer))
		}
	}

	if sum := WeightSum(c); len(c.Factors) > 0 && sum <= 0 {
		errs = append(errs, "weight sum must be > 0")
	} else if len(c.Factors) > 0 && math.Abs(sum-100) > 1 {
		errs = append(errs, fmt.Sprintf("weights should sum to 100, got %.1f", sum))
	}

	if len(errs) > 0 {
		return eris.Errorf("risk: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
