package telemetry

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/kubilitics/kubilitics-gate/internal/health"
)

// SimulatorName is the source label on simulated readings.
const SimulatorName = "simulator"

// Simulator generates plausible readings without touching any backend. Each
// category draws from its own PCG stream derived from the seed, so output does
// not depend on capture order.
type Simulator struct {
	seed    int64
	degrade health.Category
}

// NewSimulator returns a simulator. degrade, when non-empty, makes that
// category report unhealthy values.
func NewSimulator(seed int64, degrade health.Category) *Simulator {
	return &Simulator{seed: seed, degrade: degrade}
}

// Sources returns one Source per category backed by the simulator.
func (s *Simulator) Sources() []Source {
	out := make([]Source, 0, 4)
	for i, cat := range health.Categories() {
		out = append(out, &simulatedSource{sim: s, cat: cat, stream: uint64(i + 1)})
	}
	return out
}

type simulatedSource struct {
	sim    *Simulator
	cat    health.Category
	stream uint64
}

func (s *simulatedSource) Category() health.Category { return s.cat }

func (s *simulatedSource) Name() string { return SimulatorName }

func (s *simulatedSource) Capture(ctx context.Context) (health.Reading, error) {
	if err := ctx.Err(); err != nil {
		return health.Reading{}, err
	}
	rng := rand.New(rand.NewPCG(uint64(s.sim.seed), s.stream))
	bad := s.sim.degrade == s.cat

	var (
		m     map[string]float64
		notes []string
	)
	switch s.cat {
	case health.CategoryPerformance:
		m = simulatePerformance(rng, bad)
	case health.CategoryInfrastructure:
		m = simulateInfrastructure(rng, bad)
	case health.CategoryPlatform:
		m, notes = simulatePlatform(rng, bad)
	case health.CategoryTrend:
		m = simulateTrend(rng, bad)
	default:
		return health.Reading{}, fmt.Errorf("unknown category %q", s.cat)
	}

	return health.Reading{
		Category:  s.cat,
		Available: true,
		Source:    SimulatorName,
		Metrics:   m,
		Notes:     notes,
	}, nil
}

func between(rng *rand.Rand, lo, hi float64) float64 {
	return round4(lo + rng.Float64()*(hi-lo))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func simulatePerformance(rng *rand.Rand, bad bool) map[string]float64 {
	requestRate := between(rng, 40, 120)
	ratio := between(rng, 0.001, 0.01)
	p95 := between(rng, 0.15, 0.45)
	if bad {
		ratio = between(rng, 0.08, 0.15)
		p95 = between(rng, 2.2, 3.5)
	}
	return map[string]float64{
		"request_rate":        requestRate,
		"error_rate":          round4(requestRate * ratio),
		"error_ratio":         ratio,
		"latency_p95_seconds": p95,
	}
}

func simulateInfrastructure(rng *rand.Rand, bad bool) map[string]float64 {
	cpu := between(rng, 30, 65)
	mem := between(rng, 40, 70)
	notReady := 0.0
	if bad {
		cpu = between(rng, 92, 98)
		mem = between(rng, 91, 97)
		notReady = 1
	}
	return map[string]float64{
		"cpu_usage_percent":    cpu,
		"memory_usage_percent": mem,
		"nodes_total":          3,
		"nodes_not_ready":      notReady,
	}
}

func simulatePlatform(rng *rand.Rand, bad bool) (map[string]float64, []string) {
	total := 4 + rng.IntN(5)
	restarts := int32(rng.IntN(2))

	pods := make([]PodRisk, total)
	for i := range pods {
		pods[i] = PodRisk{Name: fmt.Sprintf("app-%d", i), Phase: "Running", Ready: true}
	}
	pods[0].Restarts = restarts

	var notes []string
	warnings := 0
	if bad {
		pods[0] = PodRisk{Name: "api-7c9f", Phase: "Running", Restarts: 6, NotReadyContainers: 1, BadWaiting: 1, Reason: "CrashLoopBackOff"}
		pods[1] = PodRisk{Name: "worker-5d2a", Phase: "Pending", NotReadyContainers: 1, Reason: "Pending"}
		notes = []string{
			pods[0].Note(),
			pods[1].Note(),
			"warning BackOff on Pod/api-7c9f: Back-off restarting failed container",
			"warning FailedScheduling on Pod/worker-5d2a: 0/3 nodes are available: insufficient memory",
		}
		warnings = 4
	}
	m := platformMetrics(pods)
	m["warning_events"] = float64(warnings)
	return m, notes
}

func simulateTrend(rng *rand.Rand, bad bool) map[string]float64 {
	cpu := between(rng, -10, 15)
	mem := between(rng, -10, 15)
	errs := between(rng, -15, 15)
	reqs := between(rng, -10, 20)
	if bad {
		mem = between(rng, 60, 90)
		errs = between(rng, 70, 120)
	}
	m := map[string]float64{
		"cpu_change_percent":     cpu,
		"memory_change_percent":  mem,
		"error_change_percent":   errs,
		"request_change_percent": reqs,
	}
	m["significant_trends"] = float64(countSignificant(cpu, mem, errs, reqs))
	return m
}
