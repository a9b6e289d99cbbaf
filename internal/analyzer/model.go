package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-gate/internal/audit"
	"github.com/kubilitics/kubilitics-gate/internal/health"
	"github.com/kubilitics/kubilitics-gate/internal/llm/adapter"
	"github.com/kubilitics/kubilitics-gate/internal/llm/types"
)

// errUnparseable marks a reply in which no category could be extracted.
var errUnparseable = errors.New("model reply contained no parseable category")

// RetryPolicy bounds the model call.
type RetryPolicy struct {
	AttemptTimeout time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy matches the configuration defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		AttemptTimeout: 30 * time.Second,
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     8 * time.Second,
	}
}

// Verdict is a successfully parsed model reply.
type Verdict struct {
	Categories map[health.Category]Extraction
	Summary    string
	Attempts   int
}

// ModelAssessor obtains category verdicts from a language model.
type ModelAssessor struct {
	llm    adapter.LLMAdapter
	policy RetryPolicy
	audit  audit.Logger
	logger *zap.Logger
}

// NewModelAssessor creates a model assessor. A nil audit logger disables the
// audit trail.
func NewModelAssessor(llm adapter.LLMAdapter, policy RetryPolicy, auditLogger audit.Logger, logger *zap.Logger) *ModelAssessor {
	if auditLogger == nil {
		auditLogger = audit.NewNopLogger()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelAssessor{
		llm:    llm,
		policy: policy,
		audit:  auditLogger,
		logger: logger.Named("model"),
	}
}

// Assess sends one prompt and retries transient failures with exponential
// backoff. Attempts never exceed MaxRetries+1. The returned verdict holds
// only the categories that could be extracted.
func (m *ModelAssessor) Assess(ctx context.Context, snap health.Snapshot, rc health.RunContext) (*Verdict, error) {
	messages := BuildPrompt(snap, rc)
	attempt := 0

	op := func() (*Verdict, error) {
		attempt++
		attemptCtx := ctx
		if m.policy.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, m.policy.AttemptTimeout)
			defer cancel()
		}

		start := time.Now()
		text, err := m.llm.Complete(attemptCtx, messages)
		var v *Verdict
		if err == nil {
			v = parseVerdict(text)
			if len(v.Categories) == 0 {
				err = errUnparseable
			}
		}
		_ = m.audit.LogModelCall(ctx, m.llm.Provider(), m.llm.Model(), attempt, time.Since(start), err)

		if err != nil {
			return nil, m.classify(ctx, err)
		}
		v.Attempts = attempt
		return v, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.policy.InitialBackoff
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = m.policy.MaxBackoff

	maxRetries := m.policy.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	v, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(maxRetries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			m.logger.Warn("Model call failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", next),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("model assessment failed after %d attempt(s): %w", attempt, err)
	}
	return v, nil
}

// classify wraps errors that must not be retried in backoff.Permanent.
func (m *ModelAssessor) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return backoff.Permanent(err)
	}
	if errors.Is(err, adapter.ErrProviderNotConfigured) || errors.Is(err, types.ErrMissingCredentials) {
		return backoff.Permanent(err)
	}
	var apiErr *types.APIError
	if errors.As(err, &apiErr) && !apiErr.Retryable() {
		return backoff.Permanent(err)
	}
	return err
}

func parseVerdict(text string) *Verdict {
	v := &Verdict{Categories: make(map[health.Category]Extraction, 4)}
	if strings.TrimSpace(text) == "" {
		return v
	}
	for _, c := range health.Categories() {
		if ex, ok := Extract(text, c); ok {
			v.Categories[c] = ex
		}
	}
	v.Summary = ExtractSummary(text)
	return v
}
