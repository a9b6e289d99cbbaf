// Package sink delivers finished gate reports to the outside world: the CI
// outputs file, the local archive, chat notifications, NATS and S3.
//
// Delivery is best effort. A failing sink is logged and counted, and never
// changes the gate's recommendation or exit code.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kubilitics/kubilitics-gate/internal/health"
	"github.com/kubilitics/kubilitics-gate/internal/metrics"
	"github.com/kubilitics/kubilitics-gate/internal/report"
	"github.com/kubilitics/kubilitics-gate/internal/rollback"
)

// DefaultTimeout bounds a single sink delivery.
const DefaultTimeout = 10 * time.Second

// Delivery is what every sink receives once a run is decided.
type Delivery struct {
	Report *health.HealthReport
	// Initial and Advice are set for two-phase validation runs only.
	Initial      *health.HealthReport
	Advice       *rollback.Advice
	ValidationID string
	Outputs      []report.Output
}

// NewDelivery wraps a single-phase report.
func NewDelivery(r *health.HealthReport) Delivery {
	return Delivery{Report: r, Outputs: report.Outputs(r)}
}

// NewValidationDelivery wraps both phases of a validation run.
func NewValidationDelivery(validationID string, initial, final *health.HealthReport, adv rollback.Advice) Delivery {
	return Delivery{
		Report:       final,
		Initial:      initial,
		Advice:       &adv,
		ValidationID: validationID,
		Outputs:      report.ValidationOutputs(initial, final, adv),
	}
}

// Document returns the machine-readable rendering of the delivery.
func (d Delivery) Document() report.Document {
	if d.Initial != nil && d.Advice != nil {
		return report.NewValidationDocument(d.Initial, d.Report, *d.Advice)
	}
	return report.NewDocument(d.Report)
}

// Blocked reports whether the run ended in a block.
func (d Delivery) Blocked() bool {
	return d.Report != nil && d.Report.Recommendation == health.RecommendationBlock
}

// RollbackSuggested reports whether a validation run asks for a rollback.
func (d Delivery) RollbackSuggested() bool {
	return d.Advice != nil && d.Advice.Suggested
}

// Sink receives finished reports.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, d Delivery) error
}

// Dispatcher fans a delivery out to every configured sink.
type Dispatcher struct {
	sinks   []Sink
	timeout time.Duration
	logger  *zap.Logger
}

// NewDispatcher creates a dispatcher. A nil logger discards logs.
func NewDispatcher(logger *zap.Logger, timeout time.Duration, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{sinks: sinks, timeout: timeout, logger: logger.Named("sink")}
}

// Sinks returns the configured sinks in registration order.
func (d *Dispatcher) Sinks() []Sink { return d.sinks }

// Deliver sends d to all sinks concurrently and returns the joined failures.
// Callers log the result; it never affects the gate decision.
func (d *Dispatcher) Deliver(ctx context.Context, delivery Delivery) error {
	if delivery.Report == nil {
		return fmt.Errorf("deliver: report is nil")
	}

	errs := make([]error, len(d.sinks))
	var g errgroup.Group
	for i, s := range d.sinks {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()

			start := time.Now()
			err := s.Deliver(sctx, delivery)
			status := "success"
			if errors.Is(err, ErrSkipped) {
				status = "skipped"
				err = nil
			} else if err != nil {
				status = "error"
				errs[i] = fmt.Errorf("%s: %w", s.Name(), err)
				d.logger.Warn("Report delivery failed",
					zap.String("sink", s.Name()),
					zap.String("run_id", delivery.Report.RunID),
					zap.Error(err),
				)
			} else {
				d.logger.Debug("Report delivered",
					zap.String("sink", s.Name()),
					zap.Duration("duration", time.Since(start)),
				)
			}
			metrics.SinkDeliveriesTotal.WithLabelValues(s.Name(), status).Inc()
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Close closes every sink holding a connection.
func (d *Dispatcher) Close() error {
	var errs []error
	for _, s := range d.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", s.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// ErrSkipped is returned by sinks whose filter rejected the delivery.
var ErrSkipped = errors.New("delivery skipped")
