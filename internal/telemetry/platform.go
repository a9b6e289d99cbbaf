package telemetry

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/kubilitics/kubilitics-gate/internal/health"
)

// HighRiskThreshold is the pod risk score above which a pod counts as a
// critical finding.
const HighRiskThreshold = 80

// PodRisk is the per-pod input to the risk score.
type PodRisk struct {
	Name               string
	Phase              string
	Ready              bool
	Restarts           int32
	NotReadyContainers int
	// BadWaiting counts containers waiting in CrashLoopBackOff or ImagePullBackOff.
	BadWaiting int
	Reason     string
}

// Score returns the pod risk in [0,100]: up to 60 from restarts, 40 when the
// pod is not Running, 20 per not-ready container and 30 per container stuck
// in a crash or image pull back-off.
func (p PodRisk) Score() float64 {
	risk := float64(min(int(p.Restarts)*20, 60))
	if p.Phase != string(corev1.PodRunning) {
		risk += 40
	}
	risk += float64(p.NotReadyContainers) * 20
	risk += float64(p.BadWaiting) * 30
	return min(risk, 100)
}

// Note describes a not-ready pod for the reading notes.
func (p PodRisk) Note() string {
	reason := p.Reason
	if reason == "" {
		reason = p.Phase
	}
	return fmt.Sprintf("pod %s not ready: %s", p.Name, reason)
}

func platformMetrics(pods []PodRisk) map[string]float64 {
	m := map[string]float64{
		"pods_total":        float64(len(pods)),
		"pods_ready":        0,
		"pods_not_ready":    0,
		"restarts_total":    0,
		"avg_risk_score":    0,
		"max_risk_score":    0,
		"high_risk_pods":    0,
		"pods_crashlooping": 0,
	}
	if len(pods) == 0 {
		return m
	}

	var riskSum float64
	for _, p := range pods {
		if p.Ready {
			m["pods_ready"]++
		} else {
			m["pods_not_ready"]++
		}
		m["restarts_total"] += float64(p.Restarts)
		risk := p.Score()
		riskSum += risk
		if risk > m["max_risk_score"] {
			m["max_risk_score"] = risk
		}
		if risk > HighRiskThreshold {
			m["high_risk_pods"]++
		}
		if p.BadWaiting > 0 {
			m["pods_crashlooping"]++
		}
	}
	m["avg_risk_score"] = round4(riskSum / float64(len(pods)))
	return m
}

// RecentEventWindow is how far back Warning events count toward the
// platform reading.
const RecentEventWindow = 5 * time.Minute

const maxEventNotes = 5

// PodSource reads pod health and recent Warning events in one namespace from
// the Kubernetes API.
type PodSource struct {
	client    kubernetes.Interface
	namespace string
	now       func() time.Time
}

// NewPodSource returns the platform source.
func NewPodSource(client kubernetes.Interface, namespace string) *PodSource {
	return &PodSource{client: client, namespace: namespace, now: time.Now}
}

func (s *PodSource) Category() health.Category { return health.CategoryPlatform }

func (s *PodSource) Name() string { return "kubernetes" }

func (s *PodSource) Capture(ctx context.Context) (health.Reading, error) {
	list, err := s.client.CoreV1().Pods(s.namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return health.Reading{}, fmt.Errorf("list pods in %s: %w", s.namespace, err)
	}

	pods := make([]PodRisk, 0, len(list.Items))
	var notes []string
	for i := range list.Items {
		pod := &list.Items[i]
		// Completed pods (jobs) are not a health signal.
		if pod.Status.Phase == corev1.PodSucceeded {
			continue
		}
		risk := podRisk(pod)
		if !risk.Ready {
			notes = append(notes, risk.Note())
		}
		pods = append(pods, risk)
	}

	m := platformMetrics(pods)
	warnings, eventNotes, err := s.recentWarnings(ctx)
	if err != nil {
		notes = append(notes, fmt.Sprintf("events unavailable: %v", err))
	} else {
		m["warning_events"] = float64(warnings)
		notes = append(notes, eventNotes...)
	}

	return health.Reading{
		Source:  s.Name(),
		Metrics: m,
		Notes:   notes,
	}, nil
}

// recentWarnings counts Warning events seen within RecentEventWindow and
// describes the first few of them.
func (s *PodSource) recentWarnings(ctx context.Context) (int, []string, error) {
	list, err := s.client.CoreV1().Events(s.namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return 0, nil, fmt.Errorf("list events in %s: %w", s.namespace, err)
	}

	cutoff := s.now().Add(-RecentEventWindow)
	count := 0
	var notes []string
	for i := range list.Items {
		ev := &list.Items[i]
		if ev.Type != corev1.EventTypeWarning || !eventTime(ev).After(cutoff) {
			continue
		}
		count++
		if len(notes) < maxEventNotes {
			notes = append(notes, fmt.Sprintf("warning %s on %s/%s: %s",
				ev.Reason, ev.InvolvedObject.Kind, ev.InvolvedObject.Name, ev.Message))
		}
	}
	return count, notes, nil
}

// eventTime is the last time the event was observed.
func eventTime(ev *corev1.Event) time.Time {
	switch {
	case !ev.LastTimestamp.IsZero():
		return ev.LastTimestamp.Time
	case ev.Series != nil && !ev.Series.LastObservedTime.IsZero():
		return ev.Series.LastObservedTime.Time
	case !ev.EventTime.IsZero():
		return ev.EventTime.Time
	default:
		return ev.CreationTimestamp.Time
	}
}

func podRisk(pod *corev1.Pod) PodRisk {
	r := PodRisk{
		Name:  pod.Name,
		Phase: string(pod.Status.Phase),
	}
	if r.Phase == "" {
		r.Phase = "Unknown"
	}
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady && cond.Status == corev1.ConditionTrue {
			r.Ready = true
			break
		}
	}
	for _, cs := range pod.Status.ContainerStatuses {
		r.Restarts += cs.RestartCount
		if !cs.Ready {
			r.NotReadyContainers++
		}
		if w := cs.State.Waiting; w != nil {
			if r.Reason == "" {
				r.Reason = w.Reason
			}
			if w.Reason == "CrashLoopBackOff" || w.Reason == "ImagePullBackOff" {
				r.BadWaiting++
			}
		}
	}
	if r.Reason == "" && pod.Status.Reason != "" {
		r.Reason = pod.Status.Reason
	}
	return r
}
