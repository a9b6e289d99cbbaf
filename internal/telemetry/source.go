// Package telemetry captures the four category readings that feed a gate run.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kubilitics/kubilitics-gate/internal/health"
	"github.com/kubilitics/kubilitics-gate/internal/metrics"
	"github.com/kubilitics/kubilitics-gate/internal/tracing"
)

// Source produces the reading for a single category.
type Source interface {
	Category() health.Category
	Name() string
	Capture(ctx context.Context) (health.Reading, error)
}

// Capturer runs one source per category concurrently and assembles a
// snapshot. Failures never abort a capture; they become unavailable readings.
type Capturer struct {
	sources map[health.Category]Source
	timeout time.Duration
	logger  *zap.Logger
}

// NewCapturer registers sources by category. A later source for the same
// category replaces an earlier one. timeout bounds each source; 0 means only
// the parent context applies.
func NewCapturer(timeout time.Duration, logger *zap.Logger, sources ...Source) *Capturer {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Capturer{
		sources: make(map[health.Category]Source, len(sources)),
		timeout: timeout,
		logger:  logger.Named("telemetry"),
	}
	for _, s := range sources {
		if s == nil || !s.Category().Valid() {
			continue
		}
		c.sources[s.Category()] = s
	}
	return c
}

// Capture collects all four categories.
func (c *Capturer) Capture(ctx context.Context) health.Snapshot {
	ctx, span := tracing.StartSpan(ctx, "telemetry.capture")
	defer span.End()

	cats := health.Categories()
	readings := make([]health.Reading, len(cats))

	g, gctx := errgroup.WithContext(ctx)
	for i, cat := range cats {
		src, ok := c.sources[cat]
		if !ok {
			readings[i] = health.Unavailable(cat, "none", errors.New("no source configured"))
			continue
		}
		g.Go(func() error {
			readings[i] = c.captureOne(gctx, src)
			return nil
		})
	}
	_ = g.Wait()

	snap := health.NewSnapshot(readings...)
	span.SetAttributes(attribute.Int("telemetry.available", snap.AvailableCount()))
	return snap
}

func (c *Capturer) captureOne(ctx context.Context, src Source) health.Reading {
	cat := src.Category()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	reading, err := safeCapture(ctx, src)
	elapsed := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
		c.logger.Warn("telemetry source unavailable",
			zap.String("category", string(cat)),
			zap.String("source", src.Name()),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		reading = health.Unavailable(cat, src.Name(), err)
	} else {
		reading.Category = cat
		reading.Available = true
		if reading.Source == "" {
			reading.Source = src.Name()
		}
		if reading.CapturedAt.IsZero() {
			reading.CapturedAt = time.Now().UTC()
		}
		c.logger.Debug("telemetry captured",
			zap.String("category", string(cat)),
			zap.String("source", src.Name()),
			zap.Int("metrics", len(reading.Metrics)),
			zap.Duration("elapsed", elapsed),
		)
	}
	metrics.TelemetryCaptureDuration.WithLabelValues(string(cat), status).Observe(elapsed.Seconds())
	return reading
}

// safeCapture turns a panicking source into an error so one bad adapter cannot
// take the run down.
func safeCapture(ctx context.Context, src Source) (r health.Reading, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("source %s panicked: %v", src.Name(), p)
		}
	}()
	return src.Capture(ctx)
}
