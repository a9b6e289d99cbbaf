package analyzer

import (
	"fmt"
	"strings"

	"github.com/kubilitics/kubilitics-gate/internal/health"
)

// Advice thresholds.
const (
	correlationErrorRatio = 0.01
	criticalScoreBand     = 50.0
	watchScoreBand        = 80.0
	risingTrendPercent    = 20.0
)

// Correlate links signals across categories. It only reads available
// readings, so an unavailable category never produces a correlation.
func Correlate(snap health.Snapshot) []string {
	perf := snap.Get(health.CategoryPerformance)
	plat := snap.Get(health.CategoryPlatform)
	trend := snap.Get(health.CategoryTrend)

	var out []string
	if plat.Available && perf.Available && perf.Has("error_ratio") {
		warnings := plat.Metric("warning_events")
		ratio := perf.Metric("error_ratio")
		if warnings > 0 && ratio > correlationErrorRatio {
			out = append(out, fmt.Sprintf("%.0f recent warning event(s) coincide with a %.2f%% error ratio", warnings, ratio*100))
		}
	}
	if plat.Available && trend.Available && trend.Has("error_change_percent") {
		crashing := plat.Metric("pods_crashlooping")
		change := trend.Metric("error_change_percent")
		if crashing > 0 && change > risingTrendPercent {
			out = append(out, fmt.Sprintf("%.0f crash-looping pod(s) coincide with errors rising %.1f%% over the trend window", crashing, change))
		}
	}
	return out
}

// RecommendActions derives follow-up actions from the overall score, the
// per-category assessments, the trend reading and any correlations. The
// result is ordered by priority and never affects the recommendation.
func RecommendActions(score float64, assessments []health.CategoryAssessment, snap health.Snapshot, correlations []string) []health.Action {
	var critical, high, medium []health.Action

	switch {
	case score < criticalScoreBand:
		critical = append(critical, health.Action{
			Priority:    health.PriorityCritical,
			Name:        "immediate_investigation",
			Description: "Health score below 50: investigate failing pods, cluster resources and the recent deployment before proceeding",
		})
	case score < watchScoreBand:
		medium = append(medium, health.Action{
			Priority:    health.PriorityMedium,
			Name:        "proactive_monitoring",
			Description: "Health score below 80: increase monitoring frequency for this release",
		})
	}

	var defaulted []string
	for _, a := range assessments {
		if a.Defaulted {
			defaulted = append(defaulted, string(a.Category))
		}
	}
	if len(defaulted) > 0 {
		high = append(high, health.Action{
			Priority:    health.PriorityHigh,
			Name:        "restore_telemetry",
			Description: fmt.Sprintf("No usable assessment for %s: fix the telemetry or model path before trusting the score", strings.Join(defaulted, ", ")),
		})
	}

	if len(correlations) > 0 {
		high = append(high, health.Action{
			Priority:    health.PriorityHigh,
			Name:        "investigate_warning_events",
			Description: "Warning events line up with error signals: inspect them first, they are the likeliest root cause",
		})
	}

	if trend := snap.Get(health.CategoryTrend); trend.Available {
		if c := trend.Metric("memory_change_percent"); c > risingTrendPercent {
			high = append(high, health.Action{
				Priority:    health.PriorityHigh,
				Name:        "investigate_memory_leak",
				Description: fmt.Sprintf("Memory usage up %.1f%% over the trend window: check for memory leaks", c),
			})
		}
		if c := trend.Metric("error_change_percent"); c > risingTrendPercent {
			high = append(high, health.Action{
				Priority:    health.PriorityHigh,
				Name:        "investigate_error_rate",
				Description: fmt.Sprintf("Error rate up %.1f%% over the trend window: review recent changes and logs", c),
			})
		}
		if c := trend.Metric("cpu_change_percent"); c > risingTrendPercent {
			medium = append(medium, health.Action{
				Priority:    health.PriorityMedium,
				Name:        "scale_up_cpu",
				Description: fmt.Sprintf("CPU usage up %.1f%% over the trend window: consider horizontal pod autoscaling", c),
			})
		}
	}

	out := append(critical, high...)
	return append(out, medium...)
}
