// Package scoring folds category assessments into one health score and an
// issue count.
package scoring

import (
	"fmt"
	"math"
	"strconv"

	"github.com/kubilitics/kubilitics-gate/internal/health"
)

// Grade buckets.
const (
	GradeHealthy  = "healthy"
	GradeDegraded = "degraded"
	GradeCritical = "critical"
)

// Aggregator applies a validated weight set.
type Aggregator struct {
	weights health.Weights
}

// NewAggregator returns an error when the weights are invalid.
func NewAggregator(w health.Weights) (*Aggregator, error) {
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("invalid weights: %w", err)
	}
	return &Aggregator{weights: w}, nil
}

// Aggregate is Aggregate with the aggregator's weights.
func (a *Aggregator) Aggregate(assessments []health.CategoryAssessment) (float64, int) {
	return Aggregate(assessments, a.weights)
}

// Aggregate returns the weighted score, clamped to [0,100], and the summed
// issue count. A category missing from assessments counts as the
// conservative default; when a category appears more than once the first
// entry wins. Negative issue counts count as zero.
func Aggregate(assessments []health.CategoryAssessment, w health.Weights) (float64, int) {
	byCat := make(map[health.Category]health.CategoryAssessment, len(assessments))
	for _, a := range assessments {
		if _, seen := byCat[a.Category]; !seen {
			byCat[a.Category] = a
		}
	}

	score, issues := 0.0, 0
	for _, c := range health.Categories() {
		a, ok := byCat[c]
		if !ok {
			a = health.ConservativeDefault(c, "missing assessment")
		}
		sub := a.SubScore
		if math.IsNaN(sub) {
			sub = 0
		}
		score += w.For(c) * sub
		if a.IssuesFound > 0 {
			issues += a.IssuesFound
		}
	}

	return Clamp(score), issues
}

// Clamp bounds a score to [0,100]. The value is not rounded: the policy
// compares the exact weighted sum against the threshold.
func Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}

// FormatScore renders a score with two decimals, truncating instead of
// rounding so a score just below the threshold never prints as equal to it.
func FormatScore(v float64) string {
	return strconv.FormatFloat(math.Floor(v*100+1e-6)/100, 'f', 2, 64)
}

// Grade labels a score for human-readable summaries.
func Grade(score float64) string {
	switch {
	case score >= 90:
		return GradeHealthy
	case score >= 70:
		return GradeDegraded
	default:
		return GradeCritical
	}
}
