package telemetry

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kubilitics/kubilitics-gate/internal/health"
)

// SignificantChangePercent is the magnitude above which a series change
// counts as a significant trend.
const SignificantChangePercent = 20.0

// minTrendPoints is the shortest series that yields a change figure.
const minTrendPoints = 3

// coreTrendSeries are the series the trend heuristic scores on. The request
// series is context only.
var coreTrendSeries = map[string]bool{"cpu": true, "memory": true, "error": true}

// TrendChange compares the mean of the last three points with the mean of
// the earlier ones and returns the change in percent. ok is false when the
// series is too short. Exactly three points, or an older mean <= 0, yield a
// change of 0.
func TrendChange(values []float64) (change float64, ok bool) {
	if len(values) < minTrendPoints {
		return 0, false
	}
	recent := mean(values[len(values)-minTrendPoints:])
	if len(values) == minTrendPoints {
		return 0, true
	}
	older := mean(values[:len(values)-minTrendPoints])
	if older <= 0 {
		return 0, true
	}
	return math.Round((recent-older)/older*100*100) / 100, true
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func countSignificant(changes ...float64) int {
	n := 0
	for _, c := range changes {
		if math.Abs(c) > SignificantChangePercent {
			n++
		}
	}
	return n
}

// TrendSource measures how key series moved over the trend window.
type TrendSource struct {
	prom      *PromClient
	namespace string
	window    time.Duration
	step      time.Duration
}

// NewTrendSource returns the trend source.
func NewTrendSource(prom *PromClient, namespace string, window, step time.Duration) *TrendSource {
	return &TrendSource{prom: prom, namespace: namespace, window: window, step: step}
}

func (s *TrendSource) Category() health.Category { return health.CategoryTrend }

func (s *TrendSource) Name() string { return "prometheus" }

// Queries returns the range query per series name.
func (s *TrendSource) Queries() map[string]string {
	ns := nsSelector(s.namespace)
	return map[string]string{
		"cpu":     fmt.Sprintf(`avg(rate(container_cpu_usage_seconds_total{%s}[5m]))`, ns),
		"memory":  fmt.Sprintf(`avg(container_memory_usage_bytes{%s})`, ns),
		"error":   fmt.Sprintf(`sum(rate(http_requests_total{status=~"5..",%s}[5m]))`, ns),
		"request": fmt.Sprintf(`sum(rate(http_requests_total{%s}[5m]))`, ns),
	}
}

func (s *TrendSource) Capture(ctx context.Context) (health.Reading, error) {
	queries := s.Queries()
	m := make(map[string]float64, 5)
	var (
		changes []float64
		notes   []string
		missing int
	)
	for _, name := range []string{"cpu", "memory", "error", "request"} {
		values, err := s.prom.Series(ctx, queries[name], s.window, s.step)
		if err != nil {
			notes = append(notes, fmt.Sprintf("%s series failed: %v", name, err))
		} else if change, ok := TrendChange(values); ok {
			m[name+"_change_percent"] = change
			changes = append(changes, change)
			continue
		} else {
			notes = append(notes, fmt.Sprintf("%s series has %d points, need %d", name, len(values), minTrendPoints))
		}
		if coreTrendSeries[name] {
			missing++
		}
	}
	if len(changes) == 0 {
		return health.Reading{}, fmt.Errorf("no trend series qualified: %s", strings.Join(notes, "; "))
	}
	m["significant_trends"] = float64(countSignificant(changes...))
	if missing > 0 {
		m[health.MetricMissing] = float64(missing)
	}
	return health.Reading{Source: s.Name(), Metrics: m, Notes: notes}, nil
}
