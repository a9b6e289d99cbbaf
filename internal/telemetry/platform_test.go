package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
	metricsfake "k8s.io/metrics/pkg/client/clientset/versioned/fake"

	"github.com/kubilitics/kubilitics-gate/internal/health"
)

func TestPodRiskScore(t *testing.T) {
	tests := []struct {
		name string
		pod  PodRisk
		want float64
	}{
		{"healthy", PodRisk{Phase: "Running", Ready: true}, 0},
		{"two restarts", PodRisk{Phase: "Running", Ready: true, Restarts: 2}, 40},
		{"restart cap", PodRisk{Phase: "Running", Ready: true, Restarts: 9}, 60},
		{"pending", PodRisk{Phase: "Pending", NotReadyContainers: 1}, 60},
		{"crashloop", PodRisk{Phase: "Running", Restarts: 1, NotReadyContainers: 1, BadWaiting: 1}, 70},
		{"capped at 100", PodRisk{Phase: "Failed", Restarts: 5, NotReadyContainers: 2, BadWaiting: 2}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pod.Score())
		})
	}
}

func TestPlatformMetricsEmpty(t *testing.T) {
	m := platformMetrics(nil)
	assert.Equal(t, 0.0, m["pods_total"])
	assert.Equal(t, 0.0, m["avg_risk_score"])
}

func readyPod(name string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "shop"},
		Status: corev1.PodStatus{
			Phase:      corev1.PodRunning,
			Conditions: []corev1.PodCondition{{Type: corev1.PodReady, Status: corev1.ConditionTrue}},
			ContainerStatuses: []corev1.ContainerStatus{
				{Name: "app", Ready: true},
			},
		},
	}
}

func TestPodSourceCapture(t *testing.T) {
	crashing := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "api-1", Namespace: "shop"},
		Status: corev1.PodStatus{
			Phase: corev1.PodRunning,
			ContainerStatuses: []corev1.ContainerStatus{{
				Name:         "api",
				Ready:        false,
				RestartCount: 4,
				State: corev1.ContainerState{
					Waiting: &corev1.ContainerStateWaiting{Reason: "CrashLoopBackOff"},
				},
			}},
		},
	}
	completed := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "migrate", Namespace: "shop"},
		Status:     corev1.PodStatus{Phase: corev1.PodSucceeded},
	}
	otherNS := readyPod("elsewhere")
	otherNS.Namespace = "other"

	client := fake.NewSimpleClientset(readyPod("web-1"), readyPod("web-2"), crashing, completed, otherNS)
	src := NewPodSource(client, "shop")

	r, err := src.Capture(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3.0, r.Metric("pods_total"))
	assert.Equal(t, 2.0, r.Metric("pods_ready"))
	assert.Equal(t, 1.0, r.Metric("pods_not_ready"))
	assert.Equal(t, 4.0, r.Metric("restarts_total"))
	// 60 restarts + 20 not ready + 30 crashloop, capped at 100
	assert.Equal(t, 100.0, r.Metric("max_risk_score"))
	assert.InDelta(t, 33.3333, r.Metric("avg_risk_score"), 1e-3)
	assert.Equal(t, 1.0, r.Metric("high_risk_pods"))
	assert.Equal(t, 1.0, r.Metric("pods_crashlooping"))
	assert.Equal(t, []string{"pod api-1 not ready: CrashLoopBackOff"}, r.Notes)
}

func TestPodSourceListError(t *testing.T) {
	client := fake.NewSimpleClientset()
	client.PrependReactor("list", "pods", func(action k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, errors.New("forbidden")
	})

	_, err := NewPodSource(client, "shop").Capture(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forbidden")
}

func node(name string, ready bool) *corev1.Node {
	status := corev1.ConditionFalse
	if ready {
		status = corev1.ConditionTrue
	}
	return &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Status: corev1.NodeStatus{
			Conditions: []corev1.NodeCondition{{Type: corev1.NodeReady, Status: status}},
			Allocatable: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse("4"),
				corev1.ResourceMemory: resource.MustParse("8Gi"),
			},
		},
	}
}

func nodeUsage(name, cpu, mem string) metricsv1beta1.NodeMetrics {
	return metricsv1beta1.NodeMetrics{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Usage: corev1.ResourceList{
			corev1.ResourceCPU:    resource.MustParse(cpu),
			corev1.ResourceMemory: resource.MustParse(mem),
		},
	}
}

func TestNodeSourceCapture(t *testing.T) {
	client := fake.NewSimpleClientset(node("n1", true), node("n2", false))

	mc := metricsfake.NewSimpleClientset()
	mc.PrependReactor("list", "nodes", func(action k8stesting.Action) (bool, runtime.Object, error) {
		return true, &metricsv1beta1.NodeMetricsList{Items: []metricsv1beta1.NodeMetrics{
			nodeUsage("n1", "2", "4Gi"),
			nodeUsage("n2", "1", "2Gi"),
		}}, nil
	})

	r, err := NewNodeSource(client, mc).Capture(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2.0, r.Metric("nodes_total"))
	assert.Equal(t, 1.0, r.Metric("nodes_not_ready"))
	// (50% + 25%) / 2
	assert.InDelta(t, 37.5, r.Metric("cpu_usage_percent"), 1e-6)
	assert.InDelta(t, 37.5, r.Metric("memory_usage_percent"), 1e-6)
	assert.Contains(t, r.Notes, "node n2 not ready")
}

func TestNodeSourceWithoutMetricsServer(t *testing.T) {
	client := fake.NewSimpleClientset(node("n1", true))

	mc := metricsfake.NewSimpleClientset()
	mc.PrependReactor("list", "nodes", func(action k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, errors.New("the server could not find the requested resource")
	})

	r, err := NewNodeSource(client, mc).Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, r.Metric("nodes_total"))
	_, has := r.Metrics["cpu_usage_percent"]
	assert.False(t, has)
	assert.Equal(t, 2.0, r.Metric(health.MetricMissing))
	require.NotEmpty(t, r.Notes)
	assert.Contains(t, r.Notes[0], "metrics-server unavailable")
}

func TestNodeSourceWithoutMetricsClient(t *testing.T) {
	r, err := NewNodeSource(fake.NewSimpleClientset(node("n1", true)), nil).Capture(context.Background())
	require.NoError(t, err)
	assert.False(t, r.Has("memory_usage_percent"))
	assert.Equal(t, 2.0, r.Metric(health.MetricMissing))
}

func TestNodeSourceNoNodes(t *testing.T) {
	_, err := NewNodeSource(fake.NewSimpleClientset(), metricsfake.NewSimpleClientset()).Capture(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no nodes")
}

func warningEvent(name, reason string, at time.Time) *corev1.Event {
	return &corev1.Event{
		ObjectMeta:     metav1.ObjectMeta{Name: name, Namespace: "shop"},
		InvolvedObject: corev1.ObjectReference{Kind: "Pod", Name: "api-1"},
		Reason:         reason,
		Message:        reason + " happened",
		Type:           corev1.EventTypeWarning,
		LastTimestamp:  metav1.NewTime(at),
	}
}

func TestPodSourceRecentWarningEvents(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	normal := warningEvent("scheduled", "Scheduled", now.Add(-time.Minute))
	normal.Type = corev1.EventTypeNormal
	otherNS := warningEvent("elsewhere", "BackOff", now.Add(-time.Minute))
	otherNS.Namespace = "other"

	client := fake.NewSimpleClientset(
		readyPod("web-1"),
		warningEvent("backoff", "BackOff", now.Add(-time.Minute)),
		warningEvent("unhealthy", "Unhealthy", now.Add(-4*time.Minute)),
		warningEvent("stale", "FailedMount", now.Add(-10*time.Minute)),
		normal,
		otherNS,
	)
	src := NewPodSource(client, "shop")
	src.now = func() time.Time { return now }

	r, err := src.Capture(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2.0, r.Metric("warning_events"))
	assert.Contains(t, r.Notes, "warning BackOff on Pod/api-1: BackOff happened")
	assert.Contains(t, r.Notes, "warning Unhealthy on Pod/api-1: Unhealthy happened")
	assert.Len(t, r.Notes, 2)
}

func TestPodSourceEventsForbidden(t *testing.T) {
	client := fake.NewSimpleClientset(readyPod("web-1"))
	client.PrependReactor("list", "events", func(action k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, errors.New("events is forbidden")
	})

	r, err := NewPodSource(client, "shop").Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, r.Metric("pods_total"))
	assert.False(t, r.Has("warning_events"))
	require.Len(t, r.Notes, 1)
	assert.Contains(t, r.Notes[0], "events unavailable")
}
