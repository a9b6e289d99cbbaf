package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kubilitics/kubilitics-gate/internal/scoring"
)

// Logger defines the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *Event) error

	// Run lifecycle
	LogRunStarted(ctx context.Context, runID, mode string) error
	LogRunCompleted(ctx context.Context, runID string, duration time.Duration) error
	LogRunFailed(ctx context.Context, runID string, err error) error

	// LogModelCall records one model invocation attempt.
	LogModelCall(ctx context.Context, provider, model string, attempt int, duration time.Duration, err error) error

	// LogDecision records the policy outcome of a run.
	LogDecision(ctx context.Context, runID, recommendation string, score float64, issues int) error

	// LogRollbackSuggested records a post-deploy regression.
	LogRollbackSuggested(ctx context.Context, runID string, initial, final float64) error

	// LogConfigLoaded records the effective config source.
	LogConfigLoaded(ctx context.Context, path string) error

	// Sync flushes buffered log entries
	Sync() error

	// Close closes the audit logger
	Close() error
}

// Config represents audit logger configuration
type Config struct {
	// AuditLogPath is the path to the audit log file
	AuditLogPath string

	// MaxSize is the maximum size in megabytes before rotation
	MaxSize int

	// MaxBackups is the maximum number of old log files to retain
	MaxBackups int

	// MaxAge is the maximum number of days to retain old log files
	MaxAge int

	// Compress determines if rotated files should be compressed
	Compress bool
}

// DefaultConfig returns default audit logger configuration
func DefaultConfig() *Config {
	return &Config{
		AuditLogPath: ".kubilitics-gate/audit.log",
		MaxSize:      50, // megabytes
		MaxBackups:   5,
		MaxAge:       30, // days
		Compress:     true,
	}
}

// auditLogger implements the Logger interface
type auditLogger struct {
	appLogger   *zap.Logger
	auditLogger *zap.Logger
	rotator     *lumberjack.Logger
	mu          sync.Mutex
	buffer      []*Event
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closeOnce   sync.Once
}

// NewLogger creates a new audit logger. Marshal failures are reported on
// appLogger, which may be nil.
func NewLogger(config *Config, appLogger *zap.Logger) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.AuditLogPath == "" {
		return nil, fmt.Errorf("audit log path is required")
	}
	if appLogger == nil {
		appLogger = zap.NewNop()
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "message",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
	}

	// Audit log is append-only and always INFO level
	rotator := &lumberjack.Logger{
		Filename:   config.AuditLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	auditCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(rotator),
		zapcore.InfoLevel,
	)

	logger := &auditLogger{
		appLogger:   appLogger.Named("audit"),
		auditLogger: zap.New(auditCore),
		rotator:     rotator,
		buffer:      make([]*Event, 0, 100),
		flushTicker: time.NewTicker(1 * time.Second),
		stopCh:      make(chan struct{}),
	}

	go logger.autoFlush()

	return logger, nil
}

// Log logs an audit event. Run metadata stored on ctx fills empty fields.
func (l *auditLogger) Log(ctx context.Context, event *Event) error {
	if rc, ok := runFromContext(ctx); ok {
		if event.RunID == "" {
			event.RunID = rc.runID
		}
		if event.PipelineID == "" {
			event.WithPipeline(rc.pipelineID, rc.commitSHA, rc.environment)
		}
		if event.Namespace == "" {
			event.Namespace = rc.namespace
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.buffer = append(l.buffer, event)

	if len(l.buffer) >= 100 {
		return l.flushLocked()
	}

	return nil
}

// flushLocked flushes the buffer (caller must hold lock)
func (l *auditLogger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}

	for _, event := range l.buffer {
		eventJSON, err := json.Marshal(event)
		if err != nil {
			l.appLogger.Error("failed to marshal audit event",
				zap.Error(err),
				zap.String("event_type", string(event.EventType)),
			)
			continue
		}

		l.auditLogger.Info(string(eventJSON),
			zap.String("run_id", event.RunID),
			zap.String("event_type", string(event.EventType)),
			zap.String("result", string(event.Result)),
		)
	}

	l.buffer = l.buffer[:0]

	return nil
}

// autoFlush periodically flushes the buffer
func (l *auditLogger) autoFlush() {
	for {
		select {
		case <-l.flushTicker.C:
			l.mu.Lock()
			_ = l.flushLocked()
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

func (l *auditLogger) LogRunStarted(ctx context.Context, runID, mode string) error {
	event := NewEvent(EventRunStarted).
		WithRunID(runID).
		WithResult(ResultSuccess).
		WithMetadata("mode", mode).
		WithDescription(fmt.Sprintf("Run %s started in %s mode", runID, mode))

	return l.Log(ctx, event)
}

func (l *auditLogger) LogRunCompleted(ctx context.Context, runID string, duration time.Duration) error {
	event := NewEvent(EventRunCompleted).
		WithRunID(runID).
		WithResult(ResultSuccess).
		WithDuration(duration).
		WithDescription(fmt.Sprintf("Run %s completed", runID))

	return l.Log(ctx, event)
}

func (l *auditLogger) LogRunFailed(ctx context.Context, runID string, err error) error {
	event := NewEvent(EventRunFailed).
		WithRunID(runID).
		WithError(err, "run_error").
		WithDescription(fmt.Sprintf("Run %s failed", runID))

	return l.Log(ctx, event)
}

func (l *auditLogger) LogModelCall(ctx context.Context, provider, model string, attempt int, duration time.Duration, err error) error {
	event := NewEvent(EventModelCall).
		WithAction("complete").
		WithResult(ResultSuccess).
		WithDuration(duration).
		WithMetadata("provider", provider).
		WithMetadata("model", model).
		WithMetadata("attempt", attempt).
		WithError(err, "model_error").
		WithDescription(fmt.Sprintf("Model call %d to %s/%s", attempt, provider, model))

	return l.Log(ctx, event)
}

func (l *auditLogger) LogDecision(ctx context.Context, runID, recommendation string, score float64, issues int) error {
	result := ResultSuccess
	if recommendation != "deploy" {
		result = ResultDenied
	}
	event := NewEvent(EventDecisionMade).
		WithRunID(runID).
		WithAction(recommendation).
		WithResult(result).
		WithMetadata("health_score", score).
		WithMetadata("critical_issues", issues).
		WithDescription(fmt.Sprintf("Recommendation %s at score %s with %d critical issues", recommendation, scoring.FormatScore(score), issues))

	return l.Log(ctx, event)
}

func (l *auditLogger) LogRollbackSuggested(ctx context.Context, runID string, initial, final float64) error {
	event := NewEvent(EventRollbackSuggested).
		WithRunID(runID).
		WithAction("rollback").
		WithResult(ResultPending).
		WithMetadata("initial_health_score", initial).
		WithMetadata("final_health_score", final).
		WithDescription(fmt.Sprintf("Health dropped from %s to %s after deployment", scoring.FormatScore(initial), scoring.FormatScore(final)))

	return l.Log(ctx, event)
}

func (l *auditLogger) LogConfigLoaded(ctx context.Context, path string) error {
	event := NewEvent(EventConfigLoaded).
		WithResult(ResultSuccess).
		WithMetadata("path", path).
		WithDescription(fmt.Sprintf("Configuration loaded from %s", path))

	return l.Log(ctx, event)
}

// Sync flushes buffered log entries
func (l *auditLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.flushLocked(); err != nil {
		return err
	}

	return l.auditLogger.Sync()
}

// Close closes the audit logger
func (l *auditLogger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.stopCh)
		l.flushTicker.Stop()

		if err = l.Sync(); err != nil {
			return
		}
		err = l.rotator.Close()
	})
	return err
}
