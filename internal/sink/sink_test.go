package sink

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-gate/internal/config"
	"github.com/kubilitics/kubilitics-gate/internal/db"
	"github.com/kubilitics/kubilitics-gate/internal/health"
	"github.com/kubilitics/kubilitics-gate/internal/metrics"
	"github.com/kubilitics/kubilitics-gate/internal/rollback"
)

func testReport(runID string, score float64, issues int) *health.HealthReport {
	rec := health.RecommendationDeploy
	if issues > 0 {
		rec = health.RecommendationBlock
	}
	var assessments []health.CategoryAssessment
	for _, c := range health.Categories() {
		a := health.CategoryAssessment{Category: c, SubScore: score, Narrative: "steady"}
		if c == health.CategoryPlatform {
			a.IssuesFound = issues
		}
		assessments = append(assessments, a)
	}
	return &health.HealthReport{
		RunID:          runID,
		Phase:          health.PhaseSingle,
		OverallScore:   score,
		Assessments:    assessments,
		CriticalIssues: issues,
		Mode:           health.ModeSimulation,
		Recommendation: rec,
		Threshold:      80,
		BlockingMode:   true,
		Timestamp:      time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC),
		Context: health.RunContext{
			PipelineID:  "pipeline-42",
			CommitSHA:   "deadbeefcafebabe",
			Environment: "staging",
			Namespace:   "payments",
		},
	}
}

type fakeSink struct {
	name  string
	err   error
	calls atomic.Int32
	delay time.Duration
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Deliver(ctx context.Context, d Delivery) error {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

type closingSink struct {
	fakeSink
	closed bool
}

func (c *closingSink) Close() error {
	c.closed = true
	return nil
}

func TestDispatcherDeliversToAllSinks(t *testing.T) {
	ok := &fakeSink{name: "test_ok"}
	bad := &fakeSink{name: "test_bad", err: errors.New("boom")}
	skipped := &fakeSink{name: "test_skipped", err: ErrSkipped}

	beforeOK := testutil.ToFloat64(metrics.SinkDeliveriesTotal.WithLabelValues("test_ok", "success"))
	beforeBad := testutil.ToFloat64(metrics.SinkDeliveriesTotal.WithLabelValues("test_bad", "error"))
	beforeSkip := testutil.ToFloat64(metrics.SinkDeliveriesTotal.WithLabelValues("test_skipped", "skipped"))

	d := NewDispatcher(nil, time.Second, ok, bad, skipped)
	err := d.Deliver(context.Background(), NewDelivery(testReport("run-1", 90, 0)))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "test_bad: boom")
	assert.NotContains(t, err.Error(), "test_skipped")
	assert.Equal(t, int32(1), ok.calls.Load())
	assert.Equal(t, int32(1), bad.calls.Load())
	assert.Equal(t, int32(1), skipped.calls.Load())

	assert.Equal(t, beforeOK+1, testutil.ToFloat64(metrics.SinkDeliveriesTotal.WithLabelValues("test_ok", "success")))
	assert.Equal(t, beforeBad+1, testutil.ToFloat64(metrics.SinkDeliveriesTotal.WithLabelValues("test_bad", "error")))
	assert.Equal(t, beforeSkip+1, testutil.ToFloat64(metrics.SinkDeliveriesTotal.WithLabelValues("test_skipped", "skipped")))
}

func TestDispatcherTimeoutBoundsSlowSink(t *testing.T) {
	slow := &fakeSink{name: "test_slow", delay: time.Minute}
	d := NewDispatcher(nil, 20*time.Millisecond, slow)

	start := time.Now()
	err := d.Deliver(context.Background(), NewDelivery(testReport("run-2", 90, 0)))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDispatcherRejectsNilReport(t *testing.T) {
	d := NewDispatcher(nil, time.Second)
	assert.Error(t, d.Deliver(context.Background(), Delivery{}))
}

func TestDispatcherClose(t *testing.T) {
	c := &closingSink{fakeSink: fakeSink{name: "test_closer"}}
	d := NewDispatcher(nil, time.Second, c, &fakeSink{name: "test_plain"})
	require.NoError(t, d.Close())
	assert.True(t, c.closed)
}

func TestValidationDelivery(t *testing.T) {
	initial := testReport("run-init", 90, 0)
	initial.Phase = health.PhaseInitial
	final := testReport("run-final", 70, 1)
	final.Phase = health.PhaseFinal
	adv := rollback.Compare(initial, final)

	d := NewValidationDelivery("val-1", initial, final, adv)
	assert.True(t, d.Blocked())
	assert.True(t, d.RollbackSuggested())
	assert.Equal(t, "gate.rollback_suggested", EventName(d))
	assert.Equal(t, "🔄", Emoji(d))

	doc := d.Document()
	assert.Equal(t, final, doc.Report)
	assert.Equal(t, initial, doc.Initial)
	require.NotNil(t, doc.Rollback)
	assert.Len(t, d.Outputs, 6)
}

func TestEmojiAndEventName(t *testing.T) {
	deploy := NewDelivery(testReport("r", 90, 0))
	assert.Equal(t, "🚀", Emoji(deploy))
	assert.Equal(t, "gate.deploy", EventName(deploy))

	block := NewDelivery(testReport("r", 60, 2))
	assert.Equal(t, "🚨", Emoji(block))
	assert.Equal(t, "gate.block", EventName(block))

	advisory := testReport("r", 60, 2)
	advisory.BlockingMode = false
	assert.Equal(t, "⚠️", Emoji(NewDelivery(advisory)))
}

func TestGitHubOutputSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "github_output")
	s := NewGitHubOutputSink(path)

	require.NoError(t, s.Deliver(context.Background(), NewDelivery(testReport("run-gh", 88.65, 0))))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "health_score=88.65\n")
	assert.Contains(t, out, "critical_issues=0\n")
	assert.Contains(t, out, "recommendation=deploy\n")
	assert.True(t, strings.Contains(out, "analysis_summary=Health score 88.65/100"))
}

func TestArchiveSinkStoresBothPhases(t *testing.T) {
	store, err := db.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	initial := testReport("run-init", 92, 0)
	initial.Phase = health.PhaseInitial
	final := testReport("run-final", 91, 0)
	final.Phase = health.PhaseFinal
	final.Timestamp = initial.Timestamp.Add(2 * time.Minute)
	adv := rollback.Compare(initial, final)

	s := NewArchiveSink(store)
	require.NoError(t, s.Deliver(context.Background(), NewValidationDelivery("val-9", initial, final, adv)))

	gotInit, gotFinal, err := store.ValidationPair(context.Background(), "val-9")
	require.NoError(t, err)
	assert.Equal(t, "run-init", gotInit.RunID)
	require.NotNil(t, gotFinal)
	assert.Equal(t, "run-final", gotFinal.RunID)
}

func TestFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.Empty(t, FromConfig(context.Background(), cfg, nil, nil))

	cfg.Report.GitHubOutput = filepath.Join(t.TempDir(), "out")
	cfg.Notify.TelegramBotToken = "123:abc"
	cfg.Notify.TelegramChatID = "-100"
	cfg.Notify.SlackWebhookURL = "https://hooks.slack.example/T000"
	cfg.Notify.WebhookURL = "https://hooks.example/gate"
	cfg.Metrics.PushgatewayURL = "http://pushgateway:9091"

	store, err := db.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	var names []string
	for _, s := range FromConfig(context.Background(), cfg, store, nil) {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{
		"github_output", "archive", "notify_telegram", "notify_slack", "notify_webhook", "pushgateway",
	}, names)
}

func TestFromConfigSkipsUnreachableNATS(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Publish.NATSURL = "nats://127.0.0.1:1"

	assert.Empty(t, FromConfig(context.Background(), cfg, nil, nil))
}
