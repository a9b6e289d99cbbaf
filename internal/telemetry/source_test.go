package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/kubilitics/kubilitics-gate/internal/health"
)

type fakeSource struct {
	cat     health.Category
	reading health.Reading
	err     error
	delay   time.Duration
	panics  bool
}

func (f *fakeSource) Category() health.Category { return f.cat }

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Capture(ctx context.Context) (health.Reading, error) {
	if f.panics {
		panic("boom")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return health.Reading{}, ctx.Err()
		}
	}
	return f.reading, f.err
}

func TestCapturerAllCategoriesPresent(t *testing.T) {
	c := NewCapturer(time.Second, zaptest.NewLogger(t), NewSimulator(1, "").Sources()...)
	snap := c.Capture(context.Background())

	assert.Equal(t, 4, snap.AvailableCount())
	for _, r := range snap.Readings() {
		assert.True(t, r.Available, r.Category)
		assert.False(t, r.CapturedAt.IsZero())
	}
}

func TestCapturerDegradesFailures(t *testing.T) {
	c := NewCapturer(50*time.Millisecond, zaptest.NewLogger(t),
		&fakeSource{cat: health.CategoryPerformance, reading: health.Reading{Metrics: map[string]float64{"error_ratio": 0.01}}},
		&fakeSource{cat: health.CategoryInfrastructure, err: errors.New("connection refused")},
		&fakeSource{cat: health.CategoryPlatform, delay: time.Second},
		&fakeSource{cat: health.CategoryTrend, panics: true},
	)

	start := time.Now()
	snap := c.Capture(context.Background())
	assert.Less(t, time.Since(start), 900*time.Millisecond, "slow source must be cut off by its timeout")

	perf := snap.Get(health.CategoryPerformance)
	assert.True(t, perf.Available)
	assert.Equal(t, health.CategoryPerformance, perf.Category)
	assert.Equal(t, "fake", perf.Source)

	infra := snap.Get(health.CategoryInfrastructure)
	assert.False(t, infra.Available)
	assert.Contains(t, infra.Error, "connection refused")

	assert.False(t, snap.Get(health.CategoryPlatform).Available)
	assert.Contains(t, snap.Get(health.CategoryPlatform).Error, "deadline exceeded")

	assert.False(t, snap.Get(health.CategoryTrend).Available)
	assert.Contains(t, snap.Get(health.CategoryTrend).Error, "panicked")
}

func TestCapturerMissingSource(t *testing.T) {
	c := NewCapturer(0, nil, &fakeSource{cat: health.CategoryTrend})
	snap := c.Capture(context.Background())

	assert.Equal(t, 1, snap.AvailableCount())
	assert.Contains(t, snap.Get(health.CategoryPerformance).Error, "no source configured")
}

func TestCapturerParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewCapturer(time.Second, nil, &fakeSource{cat: health.CategoryPlatform, delay: time.Second})
	snap := c.Capture(ctx)
	assert.Equal(t, 0, snap.AvailableCount())
}
