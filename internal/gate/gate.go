// Package gate orchestrates one evaluation: capture telemetry, assess it,
// aggregate a score and decide whether the deployment may proceed.
//
// A run always yields a report. Backend failures, model failures and an
// exhausted run budget all degrade to conservative defaults, which can only
// push the decision towards block.
package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-gate/internal/analyzer"
	"github.com/kubilitics/kubilitics-gate/internal/audit"
	"github.com/kubilitics/kubilitics-gate/internal/envdetect"
	"github.com/kubilitics/kubilitics-gate/internal/health"
	"github.com/kubilitics/kubilitics-gate/internal/metrics"
	"github.com/kubilitics/kubilitics-gate/internal/policy"
	"github.com/kubilitics/kubilitics-gate/internal/rollback"
	"github.com/kubilitics/kubilitics-gate/internal/scoring"
	"github.com/kubilitics/kubilitics-gate/internal/tracing"
)

// Capturer produces the telemetry snapshot for a run.
type Capturer interface {
	Capture(ctx context.Context) health.Snapshot
}

// Assessor turns a snapshot into one assessment per category.
type Assessor interface {
	Assess(ctx context.Context, snap health.Snapshot, mode health.Mode) analyzer.Result
}

// PhaseHook observes each report as soon as it is decided. validationID is
// empty for single runs.
type PhaseHook func(ctx context.Context, validationID string, r *health.HealthReport)

// Options are the per-gate decision parameters.
type Options struct {
	Mode        health.Mode
	Policy      policy.PolicyConfig
	Weights     health.Weights
	Budget      time.Duration // 0 disables the run budget
	RunContext  health.RunContext
	Environment envdetect.Environment
}

// Gate evaluates deployments.
type Gate struct {
	opts       Options
	capturer   Capturer
	assessor   Assessor
	aggregator *scoring.Aggregator
	audit      audit.Logger
	logger     *zap.Logger
	hook       PhaseHook

	now   func() time.Time
	newID func() string
	sleep func(ctx context.Context, d time.Duration) error
}

// New validates opts and wires a gate.
func New(opts Options, capturer Capturer, assessor Assessor, auditLogger audit.Logger, logger *zap.Logger) (*Gate, error) {
	if capturer == nil || assessor == nil {
		return nil, errors.New("gate: capturer and assessor are required")
	}
	if opts.Mode != health.ModeSimulation && opts.Mode != health.ModeReal {
		return nil, fmt.Errorf("gate: unresolved mode %q", opts.Mode)
	}
	if err := opts.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("gate: %w", err)
	}
	agg, err := scoring.NewAggregator(opts.Weights)
	if err != nil {
		return nil, fmt.Errorf("gate: %w", err)
	}
	if auditLogger == nil {
		auditLogger = audit.NewNopLogger()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		opts:       opts,
		capturer:   capturer,
		assessor:   assessor,
		aggregator: agg,
		audit:      auditLogger,
		logger:     logger.Named("gate"),
		now:        time.Now,
		newID:      uuid.NewString,
		sleep:      sleepContext,
	}, nil
}

// Mode returns the resolved evaluation mode.
func (g *Gate) Mode() health.Mode { return g.opts.Mode }

// Environment returns the environment detected when the gate was built.
func (g *Gate) Environment() envdetect.Environment { return g.opts.Environment }

// OnPhase registers a hook called after every decided report.
func (g *Gate) OnPhase(h PhaseHook) { g.hook = h }

// Run performs a single evaluation.
func (g *Gate) Run(ctx context.Context) *health.HealthReport {
	r := g.evaluate(ctx, health.PhaseSingle)
	g.fire(ctx, "", r)
	return r
}

// Validation is the outcome of a two-phase run. Final is authoritative.
type Validation struct {
	ID      string
	Initial *health.HealthReport
	Final   *health.HealthReport
	Advice  rollback.Advice
}

// Validate evaluates, waits for the observation window and evaluates again,
// then compares the two reports. When ctx ends during the window the
// initial report is returned together with the error.
func (g *Gate) Validate(ctx context.Context, wait time.Duration) (*Validation, error) {
	v := &Validation{ID: g.newID()}

	v.Initial = g.evaluate(ctx, health.PhaseInitial)
	g.fire(ctx, v.ID, v.Initial)

	g.logger.Info("Waiting for the observation window",
		zap.String("validation_id", v.ID),
		zap.Duration("wait", wait),
	)
	if err := g.sleep(ctx, wait); err != nil {
		return v, fmt.Errorf("validation window interrupted: %w", err)
	}

	v.Final = g.evaluate(ctx, health.PhaseFinal)
	g.fire(ctx, v.ID, v.Final)

	v.Advice = rollback.Compare(v.Initial, v.Final)
	if v.Advice.Suggested {
		_ = g.audit.LogRollbackSuggested(ctx, v.Final.RunID, v.Initial.OverallScore, v.Final.OverallScore)
		g.logger.Warn("Rollback suggested",
			zap.String("validation_id", v.ID),
			zap.Float64("initial_score", v.Initial.OverallScore),
			zap.Float64("final_score", v.Final.OverallScore),
			zap.Strings("reasons", v.Advice.Reasons),
		)
	}
	return v, nil
}

// ExitCode maps a report to the process exit status.
func ExitCode(r *health.HealthReport) int {
	if r == nil {
		return policy.ExitInternal
	}
	return policy.ExitCode(r.Recommendation, r.BlockingMode)
}

func (g *Gate) fire(ctx context.Context, validationID string, r *health.HealthReport) {
	if g.hook != nil {
		g.hook(ctx, validationID, r)
	}
}

func (g *Gate) evaluate(ctx context.Context, phase health.Phase) *health.HealthReport {
	runID := g.newID()
	start := g.now()
	mode := g.opts.Mode
	rc := g.opts.RunContext

	ctx = audit.WithRun(ctx, runID, rc.PipelineID, rc.CommitSHA, rc.Environment, rc.Namespace)
	ctx, span := tracing.StartSpan(ctx, "gate.run",
		attribute.String("run_id", runID),
		attribute.String("phase", string(phase)),
		attribute.String("mode", string(mode)),
	)
	defer span.End()

	_ = g.audit.LogRunStarted(ctx, runID, string(mode))
	log := g.logger.With(zap.String("run_id", runID), zap.String("phase", string(phase)))
	log.Info("Gate run started", zap.String("mode", string(mode)), zap.Duration("budget", g.opts.Budget))

	runCtx := ctx
	if g.opts.Budget > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, g.opts.Budget)
		defer cancel()
	}

	snap := g.capturer.Capture(runCtx)
	res := g.assessor.Assess(runCtx, snap, mode)
	if runCtx.Err() != nil && ctx.Err() == nil {
		log.Warn("Run budget exhausted, unanswered categories were defaulted")
	}

	assessments := complete(res.Assessments)
	score, issues := g.aggregator.Aggregate(assessments)
	rec := policy.Decide(score, issues, g.opts.Policy)
	correlations := analyzer.Correlate(snap)

	report := &health.HealthReport{
		RunID:          runID,
		Phase:          phase,
		OverallScore:   score,
		Assessments:    assessments,
		CriticalIssues: issues,
		Mode:           mode,
		Recommendation: rec,
		Threshold:      g.opts.Policy.HealthThreshold,
		BlockingMode:   g.opts.Policy.BlockingMode,
		Timestamp:      g.now().UTC(),
		Context:        rc,
		Summary:        res.Summary,
		Correlations:   correlations,
		Actions:        analyzer.RecommendActions(score, assessments, snap, correlations),
	}

	g.record(report, g.now().Sub(start))
	span.SetAttributes(
		attribute.Float64("health_score", score),
		attribute.Int("critical_issues", issues),
		attribute.String("recommendation", string(rec)),
	)
	_ = g.audit.LogDecision(ctx, runID, string(rec), score, issues)
	_ = g.audit.LogRunCompleted(ctx, runID, g.now().Sub(start))

	log.Info("Gate decision",
		zap.Float64("health_score", score),
		zap.Int("critical_issues", issues),
		zap.String("recommendation", string(rec)),
		zap.Int("available_categories", snap.AvailableCount()),
	)
	return report
}

func (g *Gate) record(r *health.HealthReport, elapsed time.Duration) {
	metrics.RunsTotal.WithLabelValues(string(r.Mode), string(r.Recommendation)).Inc()
	metrics.RunDuration.Observe(elapsed.Seconds())
	metrics.HealthScore.Set(r.OverallScore)
	metrics.CriticalIssues.Set(float64(r.CriticalIssues))
	for _, a := range r.Assessments {
		metrics.CategoryScore.WithLabelValues(string(a.Category)).Set(a.SubScore)
	}
}

// complete returns exactly one assessment per category in canonical order.
// The first entry for a category wins and a missing one gets the default.
func complete(in []health.CategoryAssessment) []health.CategoryAssessment {
	byCat := make(map[health.Category]health.CategoryAssessment, len(in))
	for _, a := range in {
		if _, seen := byCat[a.Category]; !seen && a.Category.Valid() {
			byCat[a.Category] = a
		}
	}
	out := make([]health.CategoryAssessment, 0, 4)
	for _, c := range health.Categories() {
		a, ok := byCat[c]
		if !ok {
			a = health.ConservativeDefault(c, "no assessment produced")
		}
		out = append(out, a)
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
