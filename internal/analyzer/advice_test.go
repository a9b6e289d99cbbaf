package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-gate/internal/health"
)

func adviceSnapshot(perf, plat, trend map[string]float64) health.Snapshot {
	return health.NewSnapshot(
		reading(health.CategoryPerformance, perf),
		reading(health.CategoryInfrastructure, map[string]float64{"nodes_total": 3}),
		reading(health.CategoryPlatform, plat),
		reading(health.CategoryTrend, trend),
	)
}

func TestCorrelate(t *testing.T) {
	tests := []struct {
		name  string
		perf  map[string]float64
		plat  map[string]float64
		trend map[string]float64
		want  []string
	}{
		{
			name:  "quiet namespace",
			perf:  map[string]float64{"error_ratio": 0.002},
			plat:  map[string]float64{"warning_events": 0},
			trend: map[string]float64{"error_change_percent": 5},
		},
		{
			name:  "warnings with raised error ratio",
			perf:  map[string]float64{"error_ratio": 0.04},
			plat:  map[string]float64{"warning_events": 3},
			trend: map[string]float64{"error_change_percent": 5},
			want:  []string{"3 recent warning event(s) coincide with a 4.00% error ratio"},
		},
		{
			name:  "warnings without errors",
			perf:  map[string]float64{"error_ratio": 0.005},
			plat:  map[string]float64{"warning_events": 3},
			trend: map[string]float64{},
		},
		{
			name:  "missing error ratio never correlates",
			perf:  map[string]float64{"request_rate": 100, health.MetricMissing: 1},
			plat:  map[string]float64{"warning_events": 3},
			trend: map[string]float64{},
		},
		{
			name:  "crash loops with rising errors",
			perf:  map[string]float64{"error_ratio": 0},
			plat:  map[string]float64{"pods_crashlooping": 1},
			trend: map[string]float64{"error_change_percent": 85},
			want:  []string{"1 crash-looping pod(s) coincide with errors rising 85.0% over the trend window"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Correlate(adviceSnapshot(tt.perf, tt.plat, tt.trend)))
		})
	}
}

func TestCorrelateIgnoresUnavailableReadings(t *testing.T) {
	snap := health.NewSnapshot(
		reading(health.CategoryPlatform, map[string]float64{"warning_events": 5}),
	)
	assert.Empty(t, Correlate(snap))
}

func actionNames(actions []health.Action) []string {
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		out = append(out, a.Name)
	}
	return out
}

func TestRecommendActions(t *testing.T) {
	healthy := adviceSnapshot(
		map[string]float64{"error_ratio": 0.001},
		map[string]float64{},
		map[string]float64{"cpu_change_percent": 2, "memory_change_percent": 1, "error_change_percent": 0},
	)
	ok := assessmentsAt(90)

	assert.Empty(t, RecommendActions(92, ok, healthy, nil))
	assert.Equal(t, []string{"proactive_monitoring"}, actionNames(RecommendActions(75, ok, healthy, nil)))

	rising := adviceSnapshot(
		map[string]float64{"error_ratio": 0.001},
		map[string]float64{},
		map[string]float64{"cpu_change_percent": 35, "memory_change_percent": 60, "error_change_percent": 90},
	)
	defaulted := assessmentsAt(20)
	defaulted[0] = health.ConservativeDefault(health.CategoryPerformance, "prometheus down")

	got := RecommendActions(35, defaulted, rising, []string{"warnings coincide"})
	assert.Equal(t, []string{
		"immediate_investigation",
		"restore_telemetry",
		"investigate_warning_events",
		"investigate_memory_leak",
		"investigate_error_rate",
		"scale_up_cpu",
	}, actionNames(got))
	require.Len(t, got, 6)
	assert.Equal(t, health.PriorityCritical, got[0].Priority)
	assert.Contains(t, got[1].Description, "performance")
	assert.Equal(t, health.PriorityMedium, got[5].Priority)
}

func TestRecommendActionsSkipsUnavailableTrend(t *testing.T) {
	snap := health.NewSnapshot(
		reading(health.CategoryPerformance, map[string]float64{"error_ratio": 0}),
	)
	got := RecommendActions(95, assessmentsAt(95), snap, nil)
	assert.Empty(t, got)
}

func assessmentsAt(score float64) []health.CategoryAssessment {
	out := make([]health.CategoryAssessment, 0, 4)
	for _, c := range health.Categories() {
		out = append(out, health.CategoryAssessment{Category: c, SubScore: score})
	}
	return out
}

func TestBuildPromptShowsGapsAndCorrelations(t *testing.T) {
	snap := adviceSnapshot(
		map[string]float64{"error_ratio": 0.05, "request_rate": 10, health.MetricMissing: 1},
		map[string]float64{"warning_events": 2},
		map[string]float64{},
	)
	msgs := BuildPrompt(snap, health.RunContext{PipelineID: "p", CommitSHA: "abc", Namespace: "shop"})
	require.Len(t, msgs, 2)

	assert.Contains(t, msgs[0].Content, "missing_metrics")
	assert.Contains(t, msgs[1].Content, "missing_metrics=1")
	assert.Contains(t, msgs[1].Content, "Correlations:")
	assert.Contains(t, msgs[1].Content, "2 recent warning event(s) coincide with a 5.00% error ratio")
}
