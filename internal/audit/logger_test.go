package audit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestLogger(t *testing.T) (Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.log")
	logger, err := NewLogger(&Config{AuditLogPath: path, MaxSize: 10, MaxBackups: 3}, nil)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	t.Cleanup(func() { _ = logger.Close() })
	return logger, path
}

func readLog(t *testing.T, logger Logger, path string) string {
	t.Helper()
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}
	return string(content)
}

func TestNewLoggerRequiresPath(t *testing.T) {
	_, err := NewLogger(&Config{}, nil)
	if err == nil {
		t.Fatal("Expected error for empty audit log path")
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.AuditLogPath != ".kubilitics-gate/audit.log" {
		t.Errorf("Expected default audit log path, got %s", config.AuditLogPath)
	}

	if config.MaxSize != 50 {
		t.Errorf("Expected max size 50, got %d", config.MaxSize)
	}
}

func TestLogRunLifecycle(t *testing.T) {
	logger, path := newTestLogger(t)
	ctx := context.Background()

	if err := logger.LogRunStarted(ctx, "run-456", "simulation"); err != nil {
		t.Fatalf("LogRunStarted failed: %v", err)
	}
	if err := logger.LogRunCompleted(ctx, "run-456", 2*time.Second); err != nil {
		t.Fatalf("LogRunCompleted failed: %v", err)
	}

	logContent := readLog(t, logger, path)
	for _, want := range []string{"run-456", "run.started", "run.completed", "simulation"} {
		if !strings.Contains(logContent, want) {
			t.Errorf("Log does not contain %q", want)
		}
	}
}

func TestLogRunFailed(t *testing.T) {
	logger, path := newTestLogger(t)

	if err := logger.LogRunFailed(context.Background(), "run-9", errors.New("budget exceeded")); err != nil {
		t.Fatalf("LogRunFailed failed: %v", err)
	}

	logContent := readLog(t, logger, path)
	if !strings.Contains(logContent, "budget exceeded") {
		t.Error("Log does not contain error text")
	}
	if !strings.Contains(logContent, "failure") {
		t.Error("Log does not contain failure result")
	}
}

func TestLogDecisionAndRollback(t *testing.T) {
	logger, path := newTestLogger(t)
	ctx := context.Background()

	if err := logger.LogDecision(ctx, "run-1", "block", 42.5, 3); err != nil {
		t.Fatalf("LogDecision failed: %v", err)
	}
	if err := logger.LogRollbackSuggested(ctx, "run-1", 88.65, 60.1); err != nil {
		t.Fatalf("LogRollbackSuggested failed: %v", err)
	}

	logContent := readLog(t, logger, path)
	for _, want := range []string{"decision.made", "denied", "rollback.suggested", "88.65"} {
		if !strings.Contains(logContent, want) {
			t.Errorf("Log does not contain %q", want)
		}
	}
}

func TestLogModelCall(t *testing.T) {
	logger, path := newTestLogger(t)
	ctx := WithRun(context.Background(), "run-ctx", "pipe-7", "abc123", "staging", "payments")

	if err := logger.LogModelCall(ctx, "bedrock", "claude", 2, 300*time.Millisecond, errors.New("HTTP 503")); err != nil {
		t.Fatalf("LogModelCall failed: %v", err)
	}

	logContent := readLog(t, logger, path)
	for _, want := range []string{"model.call", "run-ctx", "pipe-7", "payments", "HTTP 503"} {
		if !strings.Contains(logContent, want) {
			t.Errorf("Log does not contain %q", want)
		}
	}
}

func TestBufferAutoFlush(t *testing.T) {
	logger, path := newTestLogger(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		event := NewEvent(EventConfigLoaded).
			WithRunID("test").
			WithResult(ResultSuccess)

		if err := logger.Log(ctx, event); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	// Wait for auto-flush (1 second ticker)
	time.Sleep(1500 * time.Millisecond)

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}

	if len(content) == 0 {
		t.Error("Audit log is empty after auto-flush")
	}
}

func TestBufferFullFlush(t *testing.T) {
	logger, path := newTestLogger(t)
	ctx := context.Background()

	for i := 0; i < 105; i++ {
		event := NewEvent(EventModelCall).
			WithRunID("test").
			WithResult(ResultSuccess)

		if err := logger.Log(ctx, event); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	lines := strings.Split(readLog(t, logger, path), "\n")
	eventCount := 0
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			eventCount++
		}
	}

	if eventCount < 105 {
		t.Errorf("Expected at least 105 events, got %d", eventCount)
	}
}

func TestRunContext(t *testing.T) {
	ctx := context.Background()

	if id := RunID(ctx); id != "" {
		t.Errorf("Expected empty run ID, got %s", id)
	}

	ctx = WithRun(ctx, "run-abc", "", "", "", "")
	if id := RunID(ctx); id != "run-abc" {
		t.Errorf("Expected 'run-abc', got %s", id)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	logger, _ := newTestLogger(t)
	if err := logger.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestEventBuilderChain(t *testing.T) {
	event := NewEvent(EventDecisionMade).
		WithRunID("run-123").
		WithPipeline("pipe", "deadbeef", "prod").
		WithNamespace("default").
		WithAction("deploy").
		WithDescription("Deploy approved").
		WithResult(ResultSuccess).
		WithDuration(3 * time.Second).
		WithMetadata("health_score", 91.2)

	if event.RunID != "run-123" {
		t.Errorf("Expected run ID 'run-123', got %s", event.RunID)
	}

	if event.CommitSHA != "deadbeef" {
		t.Errorf("Expected commit 'deadbeef', got %s", event.CommitSHA)
	}

	if event.DurationMs != 3000 {
		t.Errorf("Expected duration 3000ms, got %d", event.DurationMs)
	}

	if score, ok := event.Metadata["health_score"].(float64); !ok || score != 91.2 {
		t.Errorf("Expected metadata health_score 91.2, got %v", event.Metadata["health_score"])
	}
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	ctx := context.Background()
	if err := logger.LogRunStarted(ctx, "x", "real"); err != nil {
		t.Fatalf("nop logger returned error: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("nop logger returned error: %v", err)
	}
}
