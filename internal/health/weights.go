package health

import (
	"fmt"
	"math"
)

// weightTolerance bounds floating-point drift when checking that weights sum to 1.
const weightTolerance = 1e-9

// Weights is the per-category contribution to the overall score.
type Weights struct {
	Performance    float64 `json:"performance" yaml:"performance"`
	Infrastructure float64 `json:"infrastructure" yaml:"infrastructure"`
	Platform       float64 `json:"platform" yaml:"platform"`
	Trend          float64 `json:"trend" yaml:"trend"`
}

// DefaultWeights returns the standard weight table.
func DefaultWeights() Weights {
	return Weights{
		Performance:    0.30,
		Infrastructure: 0.25,
		Platform:       0.25,
		Trend:          0.20,
	}
}

// For returns the weight of cat, or 0 for an unknown category.
func (w Weights) For(cat Category) float64 {
	switch cat {
	case CategoryPerformance:
		return w.Performance
	case CategoryInfrastructure:
		return w.Infrastructure
	case CategoryPlatform:
		return w.Platform
	case CategoryTrend:
		return w.Trend
	}
	return 0
}

// Sum returns the total of all four weights.
func (w Weights) Sum() float64 {
	return w.Performance + w.Infrastructure + w.Platform + w.Trend
}

// Validate checks every weight is within [0,1] and that they sum to 1.0.
func (w Weights) Validate() error {
	for _, c := range Categories() {
		v := w.For(c)
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("weight for %s must be within [0,1], got %v", c, v)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("weights must sum to 1.0, got %.6f", sum)
	}
	return nil
}
