// Package rollback compares the initial and final reports of a two-phase
// validation and decides whether a rollback should be suggested.
package rollback

import (
	"fmt"
	"math"

	"github.com/kubilitics/kubilitics-gate/internal/health"
	"github.com/kubilitics/kubilitics-gate/internal/scoring"
)

// Direction of the score between two reports.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
	Flat Direction = "flat"
)

// epsilon absorbs float noise when comparing scores.
const epsilon = 0.00001

// ScoreTrend describes how the overall score moved.
type ScoreTrend struct {
	DeltaScore   float64   `json:"delta_score" yaml:"delta_score"`
	DeltaPercent float64   `json:"delta_percent" yaml:"delta_percent"`
	Direction    Direction `json:"direction" yaml:"direction"`
	From         float64   `json:"from" yaml:"from"`
	To           float64   `json:"to" yaml:"to"`
}

// Advice is the outcome of comparing two reports.
type Advice struct {
	Suggested  bool       `json:"rollback_suggested" yaml:"rollback_suggested"`
	Reasons    []string   `json:"reasons,omitempty" yaml:"reasons,omitempty"`
	ScoreTrend ScoreTrend `json:"score_trend" yaml:"score_trend"`
	IssuesFrom int        `json:"issues_from" yaml:"issues_from"`
	IssuesTo   int        `json:"issues_to" yaml:"issues_to"`
	// Regressed lists categories whose sub-score dropped.
	Regressed []health.Category `json:"regressed_categories,omitempty" yaml:"regressed_categories,omitempty"`
}

// ComputeTrend returns the score movement from prev to curr.
func ComputeTrend(prev, curr float64) ScoreTrend {
	d := curr - prev

	dir := Flat
	if d > epsilon {
		dir = Up
	} else if d < -epsilon {
		dir = Down
	}

	dp := 0.0
	if math.Abs(prev) > epsilon {
		dp = (d / prev) * 100.0
	}

	return ScoreTrend{
		DeltaScore:   round(d, 2),
		DeltaPercent: round(dp, 2),
		Direction:    dir,
		From:         round(prev, 2),
		To:           round(curr, 2),
	}
}

// Compare suggests a rollback when the score dropped or critical issues
// appeared where there were none. Neither report is modified.
func Compare(initial, final *health.HealthReport) Advice {
	if initial == nil || final == nil {
		return Advice{}
	}

	adv := Advice{
		ScoreTrend: ComputeTrend(initial.OverallScore, final.OverallScore),
		IssuesFrom: initial.CriticalIssues,
		IssuesTo:   final.CriticalIssues,
	}

	if adv.ScoreTrend.Direction == Down {
		adv.Suggested = true
		adv.Reasons = append(adv.Reasons, fmt.Sprintf("health score dropped from %s to %s (%+.2f%%)",
			scoring.FormatScore(initial.OverallScore), scoring.FormatScore(final.OverallScore), adv.ScoreTrend.DeltaPercent))
	}
	if initial.CriticalIssues == 0 && final.CriticalIssues > 0 {
		adv.Suggested = true
		adv.Reasons = append(adv.Reasons, fmt.Sprintf("critical issues rose from 0 to %d", final.CriticalIssues))
	}

	for _, c := range health.Categories() {
		before, ok1 := initial.Assessment(c)
		after, ok2 := final.Assessment(c)
		if ok1 && ok2 && after.SubScore < before.SubScore-epsilon {
			adv.Regressed = append(adv.Regressed, c)
		}
	}

	return adv
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
