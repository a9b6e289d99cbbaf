package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Registry holds every gate metric and is what Push sends.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

// Gate metrics for pipeline dashboards
var (
	// Run metrics
	RunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_gate_runs_total",
			Help: "Total number of gate evaluations",
		},
		[]string{"mode", "recommendation"},
	)

	RunDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kubilitics_gate_run_duration_seconds",
			Help:    "Gate evaluation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 500ms to ~4min
		},
	)

	HealthScore = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "kubilitics_gate_health_score",
			Help: "Overall health score of the latest evaluation",
		},
	)

	CategoryScore = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kubilitics_gate_category_score",
			Help: "Per-category sub-score of the latest evaluation",
		},
		[]string{"category"},
	)

	CriticalIssues = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "kubilitics_gate_critical_issues",
			Help: "Critical issues found by the latest evaluation",
		},
	)

	DefaultedAssessments = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_gate_defaulted_assessments_total",
			Help: "Category assessments that fell back to the conservative default",
		},
		[]string{"category"},
	)

	// LLM metrics
	LLMRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_gate_llm_requests_total",
			Help: "Total number of LLM API requests",
		},
		[]string{"provider", "model", "status"},
	)

	LLMRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kubilitics_gate_llm_request_duration_seconds",
			Help:    "LLM request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		},
		[]string{"provider", "model"},
	)

	// Telemetry metrics
	TelemetryCaptureDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kubilitics_gate_telemetry_capture_duration_seconds",
			Help:    "Telemetry capture duration per category",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"category", "status"},
	)

	// Sink metrics
	SinkDeliveriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_gate_sink_deliveries_total",
			Help: "Report deliveries per sink",
		},
		[]string{"sink", "status"},
	)
)

func init() {
	Registry.MustRegister(collectors.NewBuildInfoCollector())
}

// Push sends the registry to a Prometheus Pushgateway. Empty grouping values
// are skipped.
func Push(ctx context.Context, url, job string, grouping map[string]string) error {
	pusher := push.New(url, job).Gatherer(Registry)
	for k, v := range grouping {
		if v == "" {
			continue
		}
		pusher = pusher.Grouping(k, v)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
