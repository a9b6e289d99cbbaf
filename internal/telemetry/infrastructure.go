package telemetry

import (
	"context"
	"errors"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	metricsclient "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/kubilitics/kubilitics-gate/internal/health"
)

// NodeSource reads node readiness from the Kubernetes API and resource usage
// from metrics-server.
type NodeSource struct {
	client  kubernetes.Interface
	metrics metricsclient.Interface
}

// NewNodeSource returns the infrastructure source. metrics may be nil, in
// which case only node readiness is reported and usage counts as missing.
func NewNodeSource(client kubernetes.Interface, metrics metricsclient.Interface) *NodeSource {
	return &NodeSource{client: client, metrics: metrics}
}

func (s *NodeSource) Category() health.Category { return health.CategoryInfrastructure }

func (s *NodeSource) Name() string { return "metrics-server" }

func (s *NodeSource) Capture(ctx context.Context) (health.Reading, error) {
	nodes, err := s.client.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return health.Reading{}, fmt.Errorf("list nodes: %w", err)
	}
	if len(nodes.Items) == 0 {
		return health.Reading{}, errors.New("no nodes visible to the gate")
	}

	type capacity struct{ cpu, mem float64 }
	alloc := make(map[string]capacity, len(nodes.Items))
	notReady := 0
	var notes []string
	for _, n := range nodes.Items {
		if !nodeReady(&n) {
			notReady++
			notes = append(notes, fmt.Sprintf("node %s not ready", n.Name))
		}
		alloc[n.Name] = capacity{
			cpu: n.Status.Allocatable.Cpu().AsApproximateFloat64(),
			mem: n.Status.Allocatable.Memory().AsApproximateFloat64(),
		}
	}

	m := map[string]float64{
		"nodes_total":     float64(len(nodes.Items)),
		"nodes_not_ready": float64(notReady),
	}

	// Without usage samples cpu and memory are left out and counted as
	// missing core signals.
	if s.metrics == nil {
		notes = append(notes, "metrics-server client not configured")
		m[health.MetricMissing] = 2
		return health.Reading{Source: s.Name(), Metrics: m, Notes: notes}, nil
	}

	usage, err := s.metrics.MetricsV1beta1().NodeMetricses().List(ctx, metav1.ListOptions{})
	if err != nil {
		notes = append(notes, fmt.Sprintf("metrics-server unavailable: %v", err))
		m[health.MetricMissing] = 2
		return health.Reading{Source: s.Name(), Metrics: m, Notes: notes}, nil
	}

	var cpuSum, memSum float64
	var sampled int
	for _, nm := range usage.Items {
		c, ok := alloc[nm.Name]
		if !ok || c.cpu <= 0 || c.mem <= 0 {
			continue
		}
		cpuSum += nm.Usage.Cpu().AsApproximateFloat64() / c.cpu * 100
		memSum += nm.Usage.Memory().AsApproximateFloat64() / c.mem * 100
		sampled++
	}
	if sampled > 0 {
		m["cpu_usage_percent"] = round4(cpuSum / float64(sampled))
		m["memory_usage_percent"] = round4(memSum / float64(sampled))
	} else {
		notes = append(notes, "no node usage samples")
		m[health.MetricMissing] = 2
	}

	return health.Reading{Source: s.Name(), Metrics: m, Notes: notes}, nil
}

func nodeReady(n *corev1.Node) bool {
	for _, cond := range n.Status.Conditions {
		if cond.Type == corev1.NodeReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}
