// Package health defines the data model shared by every stage of a gate run.
//
// A run captures one Snapshot (four category Readings), turns it into exactly
// four CategoryAssessments, and folds those into a single HealthReport. All of
// these values are created and discarded within one run; the only thing that
// outlives a run is an archived HealthReport.
package health

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Category is one of the four fixed telemetry categories.
type Category string

const (
	CategoryPerformance    Category = "performance"
	CategoryInfrastructure Category = "infrastructure"
	CategoryPlatform       Category = "platform"
	CategoryTrend          Category = "trend"
)

// Categories returns the categories in their canonical order. Every ordered
// collection in a report follows this order.
func Categories() []Category {
	return []Category{
		CategoryPerformance,
		CategoryInfrastructure,
		CategoryPlatform,
		CategoryTrend,
	}
}

// Valid reports whether c is one of the four known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryPerformance, CategoryInfrastructure, CategoryPlatform, CategoryTrend:
		return true
	}
	return false
}

// Mode selects live backends or the deterministic simulator.
type Mode string

const (
	ModeSimulation Mode = "simulation"
	ModeReal       Mode = "real"
)

// Recommendation is the terminal outcome of the policy engine.
type Recommendation string

const (
	RecommendationDeploy Recommendation = "deploy"
	RecommendationBlock  Recommendation = "block"
)

// Phase identifies which check of a run produced a report.
type Phase string

const (
	PhaseSingle  Phase = "single"
	PhaseInitial Phase = "initial"
	PhaseFinal   Phase = "final"
)

// Reading is the captured telemetry for one category. Its metric set is
// defined by the source that produced it.
type Reading struct {
	Category   Category           `json:"category" yaml:"category"`
	Available  bool               `json:"available" yaml:"available"`
	Source     string             `json:"source" yaml:"source"`
	Metrics    map[string]float64 `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Notes      []string           `json:"notes,omitempty" yaml:"notes,omitempty"`
	Error      string             `json:"error,omitempty" yaml:"error,omitempty"`
	CapturedAt time.Time          `json:"captured_at" yaml:"captured_at"`
}

// Unavailable builds the placeholder reading used when a backend errors or
// times out.
func Unavailable(cat Category, source string, err error) Reading {
	r := Reading{
		Category:   cat,
		Available:  false,
		Source:     source,
		CapturedAt: time.Now().UTC(),
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// MetricMissing is set by sources that answered only in part. Its value is
// the number of core signals the backend did not return.
const MetricMissing = "missing_metrics"

// Metric returns the named metric, or 0 when absent.
func (r Reading) Metric(name string) float64 {
	if r.Metrics == nil {
		return 0
	}
	return r.Metrics[name]
}

// Has reports whether the named metric was captured.
func (r Reading) Has(name string) bool {
	_, ok := r.Metrics[name]
	return ok
}

// Summary renders the reading on a single line, metrics sorted by name.
func (r Reading) Summary() string {
	if !r.Available {
		msg := "unavailable"
		if r.Error != "" {
			msg += ": " + r.Error
		}
		return fmt.Sprintf("%s [%s] %s", r.Category, r.Source, msg)
	}

	keys := make([]string, 0, len(r.Metrics))
	for k := range r.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%.4g", k, r.Metrics[k]))
	}

	line := fmt.Sprintf("%s [%s] %s", r.Category, r.Source, strings.Join(parts, " "))
	if len(r.Notes) > 0 {
		line += " | " + strings.Join(r.Notes, "; ")
	}
	return line
}

// Snapshot holds one reading per category.
type Snapshot struct {
	readings map[Category]Reading
	taken    time.Time
}

// NewSnapshot builds a snapshot from the given readings. Categories that are
// missing get an unavailable placeholder, so consumers never see partial data.
// When a category appears twice the last reading wins.
func NewSnapshot(readings ...Reading) Snapshot {
	s := Snapshot{
		readings: make(map[Category]Reading, 4),
		taken:    time.Now().UTC(),
	}
	for _, r := range readings {
		if !r.Category.Valid() {
			continue
		}
		s.readings[r.Category] = r
	}
	for _, c := range Categories() {
		if _, ok := s.readings[c]; !ok {
			s.readings[c] = Unavailable(c, "none", fmt.Errorf("no reading captured"))
		}
	}
	return s
}

// Get returns the reading for cat.
func (s Snapshot) Get(cat Category) Reading {
	if r, ok := s.readings[cat]; ok {
		return r
	}
	return Unavailable(cat, "none", fmt.Errorf("no reading captured"))
}

// Readings returns the readings in canonical category order.
func (s Snapshot) Readings() []Reading {
	out := make([]Reading, 0, 4)
	for _, c := range Categories() {
		out = append(out, s.Get(c))
	}
	return out
}

// AvailableCount returns how many categories carry live data.
func (s Snapshot) AvailableCount() int {
	n := 0
	for _, r := range s.readings {
		if r.Available {
			n++
		}
	}
	return n
}

// TakenAt returns when the snapshot was assembled.
func (s Snapshot) TakenAt() time.Time { return s.taken }

// CategoryAssessment is the analyzer's verdict on one category.
type CategoryAssessment struct {
	Category    Category `json:"category" yaml:"category"`
	SubScore    float64  `json:"sub_score" yaml:"sub_score"`
	IssuesFound int      `json:"issues_found" yaml:"issues_found"`
	Narrative   string   `json:"narrative" yaml:"narrative"`
	// Defaulted marks assessments that fell back to the conservative default.
	Defaulted bool `json:"defaulted,omitempty" yaml:"defaulted,omitempty"`
}

// Conservative default values applied to unavailable or unparseable categories.
const (
	DefaultSubScore    = 0.0
	DefaultIssuesFound = 1
)

// ConservativeDefault returns the fail-safe assessment for cat.
func ConservativeDefault(cat Category, reason string) CategoryAssessment {
	return CategoryAssessment{
		Category:    cat,
		SubScore:    DefaultSubScore,
		IssuesFound: DefaultIssuesFound,
		Narrative:   reason,
		Defaulted:   true,
	}
}

// RunContext carries pipeline metadata attached to every report.
type RunContext struct {
	PipelineID  string `json:"pipeline_id" yaml:"pipeline_id"`
	CommitSHA   string `json:"commit_sha" yaml:"commit_sha"`
	Environment string `json:"environment" yaml:"environment"`
	Namespace   string `json:"namespace" yaml:"namespace"`
	// DetectedEnv is the runtime environment type (github_actions, aws_eks, ...).
	DetectedEnv string `json:"detected_env" yaml:"detected_env"`
}

// ShortSHA returns the first 8 characters of the commit sha.
func (c RunContext) ShortSHA() string {
	if len(c.CommitSHA) > 8 {
		return c.CommitSHA[:8]
	}
	return c.CommitSHA
}

// HealthReport is the immutable result of one gate evaluation.
type HealthReport struct {
	RunID          string               `json:"run_id" yaml:"run_id"`
	Phase          Phase                `json:"phase" yaml:"phase"`
	OverallScore   float64              `json:"overall_score" yaml:"overall_score"`
	Assessments    []CategoryAssessment `json:"category_assessments" yaml:"category_assessments"`
	CriticalIssues int                  `json:"critical_issues" yaml:"critical_issues"`
	Mode           Mode                 `json:"mode" yaml:"mode"`
	Recommendation Recommendation       `json:"recommendation" yaml:"recommendation"`
	Threshold      float64              `json:"health_threshold" yaml:"health_threshold"`
	BlockingMode   bool                 `json:"blocking_mode" yaml:"blocking_mode"`
	Timestamp      time.Time            `json:"timestamp" yaml:"timestamp"`
	Context        RunContext           `json:"context" yaml:"context"`
	// Summary is the model's (or heuristic's) free-text digest, if any.
	Summary string `json:"summary,omitempty" yaml:"summary,omitempty"`
	// Correlations link signals across categories, e.g. warning events
	// alongside a raised error ratio.
	Correlations []string `json:"correlations,omitempty" yaml:"correlations,omitempty"`
	Actions      []Action `json:"recommended_actions,omitempty" yaml:"recommended_actions,omitempty"`
}

// Action priorities, most urgent first.
const (
	PriorityCritical = "critical"
	PriorityHigh     = "high"
	PriorityMedium   = "medium"
)

// Action is a follow-up suggested alongside the recommendation. Actions never
// influence the deploy or block decision.
type Action struct {
	Priority    string `json:"priority" yaml:"priority"`
	Name        string `json:"action" yaml:"action"`
	Description string `json:"description" yaml:"description"`
}

// Assessment returns the assessment for cat, if present.
func (r *HealthReport) Assessment(cat Category) (CategoryAssessment, bool) {
	for _, a := range r.Assessments {
		if a.Category == cat {
			return a, true
		}
	}
	return CategoryAssessment{}, false
}
