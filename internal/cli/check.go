package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-gate/internal/db"
	"github.com/kubilitics/kubilitics-gate/internal/gate"
	"github.com/kubilitics/kubilitics-gate/internal/health"
	"github.com/kubilitics/kubilitics-gate/internal/report"
	"github.com/kubilitics/kubilitics-gate/internal/sink"
)

const defaultValidationWait = 2 * time.Minute

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Evaluate deployment health once and decide deploy or block",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := a.setup(cmd, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := cmd.Context()
			g, err := a.buildGate(ctx, rt)
			if err != nil {
				return err
			}

			r := g.Run(ctx)
			if err := a.publish(ctx, rt, sink.NewDelivery(r)); err != nil {
				return err
			}
			return exitWith(gate.ExitCode(r))
		},
	}
}

func newValidateCmd(a *app) *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Evaluate twice around an observation window and suggest a rollback on regression",
		Long: "validate runs an initial check, waits for the observation window, runs a final check and " +
			"compares the two. The final report decides the exit code.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if wait < 0 {
				return failed(fmt.Errorf("--wait must not be negative, got %s", wait))
			}
			rt, err := a.setup(cmd, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := cmd.Context()
			g, err := a.buildGate(ctx, rt)
			if err != nil {
				return err
			}

			// The initial report is archived before the wait so an interrupted
			// validation still leaves a record behind.
			if rt.store != nil {
				g.OnPhase(func(ctx context.Context, validationID string, r *health.HealthReport) {
					if r.Phase != health.PhaseInitial {
						return
					}
					if err := rt.store.SaveReport(ctx, db.NewReportRecord(r, validationID)); err != nil {
						rt.logger.Warn("Failed to archive initial report", zap.String("run_id", r.RunID), zap.Error(err))
					}
				})
			}

			v, err := g.Validate(ctx, wait)
			if err != nil {
				if v != nil && v.Initial != nil {
					_ = a.render(rt, report.NewDocument(v.Initial))
				}
				return failed(err)
			}

			d := sink.NewValidationDelivery(v.ID, v.Initial, v.Final, v.Advice)
			if err := a.publish(ctx, rt, d); err != nil {
				return err
			}
			return exitWith(gate.ExitCode(v.Final))
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", defaultValidationWait, "observation window between the initial and final checks")
	return cmd
}

func (a *app) buildGate(ctx context.Context, rt *runtime) (*gate.Gate, error) {
	g, err := gate.Build(ctx, rt.cfg, gate.Deps{
		Logger:   rt.logger,
		Audit:    rt.audit,
		Detector: a.deps.Detector,
		Kube:     a.deps.Kube,
		LLM:      a.deps.LLM,
	})
	if err != nil {
		return nil, failed(err)
	}
	return g, nil
}

// publish renders the delivery on stdout and hands it to the configured
// sinks. Sink failures are logged and never change the outcome.
func (a *app) publish(ctx context.Context, rt *runtime, d sink.Delivery) error {
	doc := d.Document()
	if err := a.render(rt, doc); err != nil {
		return err
	}

	if path := rt.cfg.Report.OutputFile; path != "" {
		if err := writeReportFile(path, doc); err != nil {
			rt.logger.Warn("Failed to write report file", zap.String("path", path), zap.Error(err))
		}
	}

	dispatcher := sink.NewDispatcher(rt.logger, sink.DefaultTimeout, sink.FromConfig(ctx, rt.cfg, rt.store, rt.logger)...)
	defer dispatcher.Close()
	if err := dispatcher.Deliver(ctx, d); err != nil {
		rt.logger.Warn("Some report sinks failed", zap.Error(err))
	}
	return nil
}

func (a *app) render(rt *runtime, doc report.Document) error {
	format, err := report.ParseFormat(rt.cfg.Report.Format)
	if err != nil {
		return failed(err)
	}
	if err := report.Render(a.stdout, doc, format); err != nil {
		return failed(fmt.Errorf("failed to render report: %w", err))
	}
	return nil
}

// writeReportFile stores the JSON document, the archival format regardless
// of what stdout shows.
func writeReportFile(path string, doc report.Document) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := report.Render(f, doc, report.FormatJSON); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
