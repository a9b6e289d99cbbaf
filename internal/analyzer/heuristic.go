package analyzer

import (
	"fmt"
	"math"

	"github.com/kubilitics/kubilitics-gate/internal/health"
)

// Heuristic thresholds.
const (
	errorRatioIssue      = 0.05
	latencyP95Issue      = 2.0
	latencyP95Budget     = 0.5
	cpuPressure          = 70.0
	memoryPressure       = 75.0
	resourceIssue        = 90.0
	trendTolerance       = 20.0
	trendIssuePercent    = 50.0
	platformRiskPenalty  = 0.3
	pressurePenaltyScale = 1.5
	missingSignalPenalty = 25.0
	warningEventPenalty  = 3.0
	warningEventCap      = 15.0
)

// Heuristic scores a reading without any external call. The result depends
// only on the reading's metrics. Every core signal the source could not
// capture costs missingSignalPenalty points and counts as one issue.
func Heuristic(r health.Reading) health.CategoryAssessment {
	if !r.Available {
		return health.ConservativeDefault(r.Category, unavailableReason(r))
	}

	var a health.CategoryAssessment
	switch r.Category {
	case health.CategoryPerformance:
		a = assessPerformance(r)
	case health.CategoryInfrastructure:
		a = assessInfrastructure(r)
	case health.CategoryPlatform:
		a = assessPlatform(r)
	case health.CategoryTrend:
		a = assessTrend(r)
	default:
		return health.ConservativeDefault(r.Category, fmt.Sprintf("unknown category %q", r.Category))
	}

	if n := r.Metric(health.MetricMissing); n > 0 {
		a.SubScore -= n * missingSignalPenalty
		a.IssuesFound += int(n)
		a.Narrative += fmt.Sprintf("; %.0f core metric(s) missing", n)
	}

	a.Category = r.Category
	a.SubScore = clampScore(a.SubScore)
	return a
}

func assessPerformance(r health.Reading) health.CategoryAssessment {
	ratio := r.Metric("error_ratio")
	p95 := r.Metric("latency_p95_seconds")

	score := 100 - math.Min(60, ratio*1000) - math.Min(30, math.Max(0, p95-latencyP95Budget)*60)

	issues := 0
	if ratio > errorRatioIssue {
		issues++
	}
	if p95 > latencyP95Issue {
		issues++
	}

	narrative := fmt.Sprintf("error ratio %s, p95 latency %s",
		metricText(r, "error_ratio", "%.2f%%", 100), metricText(r, "latency_p95_seconds", "%.0fms", 1000))
	return health.CategoryAssessment{
		SubScore:    score,
		IssuesFound: issues,
		Narrative:   narrative,
	}
}

func assessInfrastructure(r health.Reading) health.CategoryAssessment {
	cpu := r.Metric("cpu_usage_percent")
	mem := r.Metric("memory_usage_percent")
	total := r.Metric("nodes_total")
	notReady := r.Metric("nodes_not_ready")

	score := 100 - math.Max(0, cpu-cpuPressure)*pressurePenaltyScale - math.Max(0, mem-memoryPressure)*pressurePenaltyScale
	if total > 0 {
		score -= notReady / total * 50
	}

	issues := 0
	if cpu > resourceIssue {
		issues++
	}
	if mem > resourceIssue {
		issues++
	}
	if notReady > 0 {
		issues++
	}

	narrative := fmt.Sprintf("cpu %s, memory %s, %.0f/%.0f nodes not ready",
		metricText(r, "cpu_usage_percent", "%.1f%%", 1), metricText(r, "memory_usage_percent", "%.1f%%", 1), notReady, total)
	return health.CategoryAssessment{
		SubScore:    score,
		IssuesFound: issues,
		Narrative:   narrative,
	}
}

func assessPlatform(r health.Reading) health.CategoryAssessment {
	total := r.Metric("pods_total")
	ready := r.Metric("pods_ready")
	avgRisk := r.Metric("avg_risk_score")
	notReady := r.Metric("pods_not_ready")
	highRisk := r.Metric("high_risk_pods")

	warnings := r.Metric("warning_events")

	score := 100.0
	if total > 0 {
		score = ready/total*100 - avgRisk*platformRiskPenalty
	}
	score -= math.Min(warningEventCap, warnings*warningEventPenalty)

	return health.CategoryAssessment{
		SubScore:    score,
		IssuesFound: int(notReady + highRisk),
		Narrative: fmt.Sprintf("%.0f/%.0f pods ready, avg risk %.1f, %.0f high-risk, %.0f recent warning events",
			ready, total, avgRisk, highRisk, warnings),
	}
}

func assessTrend(r health.Reading) health.CategoryAssessment {
	cpu := r.Metric("cpu_change_percent")
	mem := r.Metric("memory_change_percent")
	errs := r.Metric("error_change_percent")

	score := 100.0
	for _, change := range []float64{cpu, mem, errs} {
		score -= math.Max(0, change-trendTolerance) * 0.5
	}

	issues := 0
	if errs > trendIssuePercent {
		issues++
	}
	if mem > trendIssuePercent {
		issues++
	}

	return health.CategoryAssessment{
		SubScore:    score,
		IssuesFound: issues,
		Narrative:   fmt.Sprintf("cpu %+.1f%%, memory %+.1f%%, errors %+.1f%% over the trend window", cpu, mem, errs),
	}
}

// metricText formats a scaled metric, or "n/a" when it was not captured.
func metricText(r health.Reading, name, format string, scale float64) string {
	if !r.Has(name) {
		return "n/a"
	}
	return fmt.Sprintf(format, r.Metric(name)*scale)
}

func unavailableReason(r health.Reading) string {
	if r.Error != "" {
		return "telemetry unavailable: " + r.Error
	}
	return "telemetry unavailable"
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}
