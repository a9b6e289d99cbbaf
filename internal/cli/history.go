package cli

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-gate/internal/db"
	"github.com/kubilitics/kubilitics-gate/internal/report"
	"github.com/kubilitics/kubilitics-gate/internal/rollback"
	"github.com/kubilitics/kubilitics-gate/internal/scoring"
)

// historyRow is the machine-readable form of one archived report.
type historyRow struct {
	RunID          string    `json:"run_id" yaml:"run_id"`
	ValidationID   string    `json:"validation_id,omitempty" yaml:"validation_id,omitempty"`
	Phase          string    `json:"phase" yaml:"phase"`
	Score          float64   `json:"health_score" yaml:"health_score"`
	CriticalIssues int       `json:"critical_issues" yaml:"critical_issues"`
	Recommendation string    `json:"recommendation" yaml:"recommendation"`
	Mode           string    `json:"mode" yaml:"mode"`
	PipelineID     string    `json:"pipeline_id" yaml:"pipeline_id"`
	CommitSHA      string    `json:"commit_sha" yaml:"commit_sha"`
	Environment    string    `json:"environment" yaml:"environment"`
	CreatedAt      time.Time `json:"created_at" yaml:"created_at"`
}

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit          int
		pipeline       string
		environment    string
		recommendation string
		pruneOlderThan time.Duration
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived gate reports, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 1 {
				return failed(fmt.Errorf("--limit must be positive, got %d", limit))
			}
			rt, err := a.requireStore(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()
			ctx := cmd.Context()

			if pruneOlderThan > 0 {
				n, err := rt.store.PruneReports(ctx, time.Now().Add(-pruneOlderThan))
				if err != nil {
					return failed(fmt.Errorf("failed to prune reports: %w", err))
				}
				rt.logger.Info("Pruned archived reports", zap.Int64("deleted", n), zap.Duration("older_than", pruneOlderThan))
			}

			recs, err := rt.store.ListReports(ctx, db.ReportQuery{
				PipelineID:     pipeline,
				Environment:    environment,
				Recommendation: recommendation,
				Limit:          limit,
			})
			if err != nil {
				return failed(fmt.Errorf("failed to list reports: %w", err))
			}

			rows := make([]historyRow, 0, len(recs))
			for _, r := range recs {
				rows = append(rows, historyRow{
					RunID:          r.RunID,
					ValidationID:   r.ValidationID,
					Phase:          r.Phase,
					Score:          r.Score,
					CriticalIssues: r.CriticalIssues,
					Recommendation: r.Recommendation,
					Mode:           r.Mode,
					PipelineID:     r.PipelineID,
					CommitSHA:      r.CommitSHA,
					Environment:    r.Environment,
					CreatedAt:      r.CreatedAt,
				})
			}
			return a.printHistory(rt, rows)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of reports to list")
	cmd.Flags().StringVar(&pipeline, "pipeline", "", "only list reports of this pipeline id")
	cmd.Flags().StringVar(&environment, "environment", "", "only list reports of this CI environment")
	cmd.Flags().StringVar(&recommendation, "recommendation", "", "only list deploy or block reports")
	cmd.Flags().DurationVar(&pruneOlderThan, "prune-older-than", 0, "delete reports older than this age before listing")
	return cmd
}

func (a *app) printHistory(rt *runtime, rows []historyRow) error {
	p := report.NewPrinter(a.stdout)
	format, err := report.ParseFormat(rt.cfg.Report.Format)
	if err != nil {
		return failed(err)
	}
	switch format {
	case report.FormatJSON:
		return p.JSON(rows)
	case report.FormatYAML:
		return p.YAML(rows)
	}

	if len(rows) == 0 {
		p.Println("No archived reports.")
		return nil
	}
	table := make([][]string, 0, len(rows))
	for _, r := range rows {
		sha := r.CommitSHA
		if len(sha) > 8 {
			sha = sha[:8]
		}
		table = append(table, []string{
			r.RunID,
			r.Phase,
			scoring.FormatScore(r.Score),
			strconv.Itoa(r.CriticalIssues),
			r.Recommendation,
			r.Mode,
			r.PipelineID,
			sha,
			r.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	p.Table([]string{"RUN", "PHASE", "SCORE", "ISSUES", "RECOMMENDATION", "MODE", "PIPELINE", "COMMIT", "CREATED"}, table)
	return nil
}

func newCompareCmd(a *app) *cobra.Command {
	var validationID string
	cmd := &cobra.Command{
		Use:   "compare [<initial-run> <final-run>]",
		Short: "Compare two archived reports and show whether a rollback is suggested",
		Long: "compare loads two archived reports by run id, or the two phases of a validate run with " +
			"--validation, and applies the rollback comparison to them.",
		Args: func(cmd *cobra.Command, args []string) error {
			if validationID != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.requireStore(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()
			ctx := cmd.Context()

			var initial, final *db.ReportRecord
			if validationID != "" {
				initial, final, err = rt.store.ValidationPair(ctx, validationID)
				if errors.Is(err, db.ErrNotFound) {
					return failed(fmt.Errorf("validation %s not found in the archive", validationID))
				}
				if err != nil {
					return failed(fmt.Errorf("failed to load validation %s: %w", validationID, err))
				}
				if final == nil {
					return failed(fmt.Errorf("validation %s has no final report", validationID))
				}
			} else {
				if initial, err = loadReport(cmd, rt, args[0]); err != nil {
					return err
				}
				if final, err = loadReport(cmd, rt, args[1]); err != nil {
					return err
				}
			}

			adv := rollback.Compare(initial.Report, final.Report)
			return a.render(rt, report.NewValidationDocument(initial.Report, final.Report, adv))
		},
	}
	cmd.Flags().StringVar(&validationID, "validation", "", "compare the initial and final reports of this validation id")
	return cmd
}

func loadReport(cmd *cobra.Command, rt *runtime, runID string) (*db.ReportRecord, error) {
	rec, err := rt.store.GetReport(cmd.Context(), runID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, failed(fmt.Errorf("report %s not found in the archive", runID))
	}
	if err != nil {
		return nil, failed(fmt.Errorf("failed to load report %s: %w", runID, err))
	}
	return rec, nil
}
