// Package analyzer turns a telemetry snapshot into exactly one assessment per
// category.
//
// In simulation mode every category is scored by Heuristic. In real mode a
// single model call covers all categories; anything the model does not
// return, or any category whose telemetry was unavailable, gets the
// conservative default. The analyzer never fails a run.
package analyzer

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-gate/internal/audit"
	"github.com/kubilitics/kubilitics-gate/internal/health"
	"github.com/kubilitics/kubilitics-gate/internal/metrics"
	"github.com/kubilitics/kubilitics-gate/internal/tracing"
)

// Result is the analyzer output for one snapshot.
type Result struct {
	// Assessments holds one entry per category in canonical order.
	Assessments []health.CategoryAssessment
	Summary     string
}

// Analyzer assesses snapshots.
type Analyzer struct {
	model  *ModelAssessor
	runCtx health.RunContext
	audit  audit.Logger
	logger *zap.Logger
}

// New creates an analyzer. model may be nil, in which case real mode
// defaults every category.
func New(model *ModelAssessor, rc health.RunContext, auditLogger audit.Logger, logger *zap.Logger) *Analyzer {
	if auditLogger == nil {
		auditLogger = audit.NewNopLogger()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		model:  model,
		runCtx: rc,
		audit:  auditLogger,
		logger: logger.Named("analyzer"),
	}
}

// Assess returns four assessments in canonical order.
func (a *Analyzer) Assess(ctx context.Context, snap health.Snapshot, mode health.Mode) Result {
	ctx, span := tracing.StartSpan(ctx, "analyzer.assess",
		attribute.String("mode", string(mode)),
		attribute.Int("available_categories", snap.AvailableCount()),
	)
	defer span.End()

	var res Result
	if mode == health.ModeReal {
		res = a.assessWithModel(ctx, snap)
	} else {
		res = a.assessHeuristic(snap)
	}

	for _, as := range res.Assessments {
		if as.Defaulted {
			metrics.DefaultedAssessments.WithLabelValues(string(as.Category)).Inc()
			_ = a.audit.Log(ctx, audit.NewEvent(audit.EventAssessmentDefaulted).
				WithAction(string(as.Category)).
				WithDescription(as.Narrative).
				WithResult(audit.ResultFailure))
		}
	}
	return res
}

func (a *Analyzer) assessHeuristic(snap health.Snapshot) Result {
	out := make([]health.CategoryAssessment, 0, 4)
	issues, healthy := 0, 0
	for _, c := range health.Categories() {
		as := Heuristic(snap.Get(c))
		issues += as.IssuesFound
		if !as.Defaulted && as.IssuesFound == 0 {
			healthy++
		}
		out = append(out, as)
	}
	return Result{
		Assessments: out,
		Summary:     fmt.Sprintf("heuristic assessment: %d of 4 categories clear, %d issue(s) found", healthy, issues),
	}
}

func (a *Analyzer) assessWithModel(ctx context.Context, snap health.Snapshot) Result {
	if a.model == nil {
		return defaultAll(snap, "no model configured")
	}
	if snap.AvailableCount() == 0 {
		return defaultAll(snap, "")
	}

	verdict, err := a.model.Assess(ctx, snap, a.runCtx)
	if err != nil {
		reason := "model unavailable: " + err.Error()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
			reason = "run budget exhausted before the model answered"
		}
		a.logger.Warn("Model assessment failed, applying conservative defaults", zap.Error(err))
		return defaultAll(snap, reason)
	}

	out := make([]health.CategoryAssessment, 0, 4)
	for _, c := range health.Categories() {
		r := snap.Get(c)
		if !r.Available {
			out = append(out, health.ConservativeDefault(c, unavailableReason(r)))
			continue
		}
		ex, ok := verdict.Categories[c]
		if !ok {
			a.logger.Warn("Model reply missing category, applying conservative default",
				zap.String("category", string(c)),
				zap.Int("attempts", verdict.Attempts),
			)
			out = append(out, health.ConservativeDefault(c, "model reply did not cover "+string(c)))
			continue
		}
		out = append(out, health.CategoryAssessment{
			Category:    c,
			SubScore:    ex.Score,
			IssuesFound: ex.Issues,
			Narrative:   ex.Note,
		})
	}
	return Result{Assessments: out, Summary: verdict.Summary}
}

// defaultAll defaults every category. An empty reason uses each reading's
// own unavailability reason.
func defaultAll(snap health.Snapshot, reason string) Result {
	out := make([]health.CategoryAssessment, 0, 4)
	for _, c := range health.Categories() {
		r := snap.Get(c)
		why := reason
		if !r.Available {
			why = unavailableReason(r)
		}
		out = append(out, health.ConservativeDefault(c, why))
	}
	return Result{Assessments: out}
}
