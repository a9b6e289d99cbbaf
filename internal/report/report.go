// Package report renders health reports for people and pipelines.
//
// The pipeline contract is a flat, ordered list of outputs (health_score,
// critical_issues, recommendation, analysis_summary). Everything else, the
// text table and the JSON and YAML documents, is for humans and archives.
package report

import (
	"fmt"
	"strconv"

	"github.com/kubilitics/kubilitics-gate/internal/health"
	"github.com/kubilitics/kubilitics-gate/internal/rollback"
	"github.com/kubilitics/kubilitics-gate/internal/scoring"
)

// Output names.
const (
	OutputHealthScore        = "health_score"
	OutputCriticalIssues     = "critical_issues"
	OutputRecommendation     = "recommendation"
	OutputAnalysisSummary    = "analysis_summary"
	OutputRollbackSuggested  = "rollback_suggested"
	OutputInitialHealthScore = "initial_health_score"
)

// Output is one name/value pair emitted to the pipeline.
type Output struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// Outputs returns the pipeline outputs for r in fixed order.
func Outputs(r *health.HealthReport) []Output {
	return []Output{
		{Name: OutputHealthScore, Value: scoring.FormatScore(r.OverallScore)},
		{Name: OutputCriticalIssues, Value: strconv.Itoa(r.CriticalIssues)},
		{Name: OutputRecommendation, Value: string(r.Recommendation)},
		{Name: OutputAnalysisSummary, Value: AnalysisSummary(r)},
	}
}

// ValidationOutputs extends the final report's outputs with the two-phase
// comparison.
func ValidationOutputs(initial, final *health.HealthReport, adv rollback.Advice) []Output {
	out := Outputs(final)
	return append(out,
		Output{Name: OutputRollbackSuggested, Value: strconv.FormatBool(adv.Suggested)},
		Output{Name: OutputInitialHealthScore, Value: scoring.FormatScore(initial.OverallScore)},
	)
}

// AnalysisSummary renders the one-line verdict, e.g.
// "Health score 88.65/100 (degraded), 0 critical issues: deploy [simulation mode]".
func AnalysisSummary(r *health.HealthReport) string {
	return fmt.Sprintf("Health score %s/100 (%s), %d critical issues: %s [%s mode]",
		scoring.FormatScore(r.OverallScore), scoring.Grade(r.OverallScore), r.CriticalIssues, r.Recommendation, r.Mode)
}

// Document is the machine-readable rendering of a run.
type Document struct {
	Report   *health.HealthReport `json:"report" yaml:"report"`
	Outputs  []Output             `json:"outputs" yaml:"outputs"`
	Initial  *health.HealthReport `json:"initial_report,omitempty" yaml:"initial_report,omitempty"`
	Rollback *rollback.Advice     `json:"rollback,omitempty" yaml:"rollback,omitempty"`
}

// NewDocument wraps a single-phase report.
func NewDocument(r *health.HealthReport) Document {
	return Document{Report: r, Outputs: Outputs(r)}
}

// NewValidationDocument wraps a two-phase validation.
func NewValidationDocument(initial, final *health.HealthReport, adv rollback.Advice) Document {
	return Document{
		Report:   final,
		Outputs:  ValidationOutputs(initial, final, adv),
		Initial:  initial,
		Rollback: &adv,
	}
}
