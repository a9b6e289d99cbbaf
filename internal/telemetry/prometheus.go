package telemetry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kubilitics/kubilitics-gate/internal/health"
	"github.com/kubilitics/kubilitics-gate/internal/tracing"
)

// PromClient wraps the Prometheus HTTP API with client-side pacing shared by
// the performance and trend sources.
type PromClient struct {
	api     v1.API
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewPromClient connects to the Prometheus server at address. qps <= 0
// disables pacing.
func NewPromClient(address string, qps float64, logger *zap.Logger) (*PromClient, error) {
	if address == "" {
		return nil, errors.New("prometheus address is required")
	}
	client, err := api.NewClient(api.Config{Address: address, RoundTripper: tracing.Transport(api.DefaultRoundTripper)})
	if err != nil {
		return nil, fmt.Errorf("create prometheus client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	burst := 1
	if qps > 0 {
		limit = rate.Limit(qps)
		burst = int(math.Max(1, math.Ceil(qps)))
	}
	return &PromClient{
		api:     v1.NewAPI(client),
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.Named("prometheus"),
	}, nil
}

// Scalar runs an instant query and returns the first sample, or 0 for an
// empty vector.
func (c *PromClient) Scalar(ctx context.Context, query string) (float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	result, warnings, err := c.api.Query(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("query %q: %w", query, err)
	}
	c.logWarnings(query, warnings)

	switch v := result.(type) {
	case model.Vector:
		if len(v) == 0 {
			return 0, nil
		}
		return sampleValue(v[0].Value), nil
	case *model.Scalar:
		return sampleValue(v.Value), nil
	default:
		return 0, fmt.Errorf("query %q: unexpected result type %s", query, result.Type())
	}
}

// Series runs a range query and returns the values of the first series.
func (c *PromClient) Series(ctx context.Context, query string, window, step time.Duration) ([]float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	end := time.Now()
	result, warnings, err := c.api.QueryRange(ctx, query, v1.Range{
		Start: end.Add(-window),
		End:   end,
		Step:  step,
	})
	if err != nil {
		return nil, fmt.Errorf("query range %q: %w", query, err)
	}
	c.logWarnings(query, warnings)

	matrix, ok := result.(model.Matrix)
	if !ok {
		return nil, fmt.Errorf("query range %q: unexpected result type %s", query, result.Type())
	}
	if len(matrix) == 0 {
		return nil, nil
	}
	values := make([]float64, 0, len(matrix[0].Values))
	for _, p := range matrix[0].Values {
		values = append(values, sampleValue(p.Value))
	}
	return values, nil
}

func (c *PromClient) logWarnings(query string, warnings v1.Warnings) {
	if len(warnings) > 0 {
		c.logger.Warn("prometheus query warnings",
			zap.String("query", query),
			zap.Strings("warnings", warnings),
		)
	}
}

// sampleValue maps NaN and Inf (division by zero in PromQL) to 0.
func sampleValue(v model.SampleValue) float64 {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func nsSelector(namespace string) string {
	return fmt.Sprintf(`namespace=%q`, namespace)
}

// PerformanceSource reads request rate, error ratio and p95 latency. Error
// ratio and latency are its core signals.
type PerformanceSource struct {
	prom      *PromClient
	namespace string
}

// NewPerformanceSource returns the performance source.
func NewPerformanceSource(prom *PromClient, namespace string) *PerformanceSource {
	return &PerformanceSource{prom: prom, namespace: namespace}
}

func (s *PerformanceSource) Category() health.Category { return health.CategoryPerformance }

func (s *PerformanceSource) Name() string { return "prometheus" }

func (s *PerformanceSource) Queries() map[string]string {
	ns := nsSelector(s.namespace)
	return map[string]string{
		"error_rate":          fmt.Sprintf(`sum(rate(http_requests_total{status=~"5..",%s}[5m]))`, ns),
		"request_rate":        fmt.Sprintf(`sum(rate(http_requests_total{%s}[5m]))`, ns),
		"latency_p95_seconds": fmt.Sprintf(`histogram_quantile(0.95, sum by (le) (rate(http_request_duration_seconds_bucket{%s}[5m])))`, ns),
	}
}

func (s *PerformanceSource) Capture(ctx context.Context) (health.Reading, error) {
	queries := s.Queries()
	m := make(map[string]float64, 4)
	var errs []string
	for _, name := range []string{"error_rate", "request_rate", "latency_p95_seconds"} {
		v, err := s.prom.Scalar(ctx, queries[name])
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		m[name] = v
	}
	if len(m) == 0 {
		return health.Reading{}, fmt.Errorf("all performance queries failed: %s", strings.Join(errs, "; "))
	}

	// A failed query leaves its signal out instead of reading as zero.
	missing := 0
	_, hasErrors := m["error_rate"]
	_, hasRequests := m["request_rate"]
	if hasErrors && hasRequests {
		m["error_ratio"] = 0
		if rr := m["request_rate"]; rr > 0 {
			m["error_ratio"] = m["error_rate"] / rr
		}
	} else {
		missing++
	}
	if _, ok := m["latency_p95_seconds"]; !ok {
		missing++
	}
	if missing > 0 {
		m[health.MetricMissing] = float64(missing)
	}

	var notes []string
	for _, e := range errs {
		notes = append(notes, "partial: "+e)
	}
	return health.Reading{Source: s.Name(), Metrics: m, Notes: notes}, nil
}
