package config

import (
	"time"

	"github.com/kubilitics/kubilitics-gate/internal/health"
)

// Weights returns the configured category weights.
func (c *Config) Weights() health.Weights {
	return health.Weights{
		Performance:    c.Gate.Weights.Performance,
		Infrastructure: c.Gate.Weights.Infrastructure,
		Platform:       c.Gate.Weights.Platform,
		Trend:          c.Gate.Weights.Trend,
	}
}

// RunBudget is the wall-clock limit for a single evaluation.
func (c *Config) RunBudget() time.Duration {
	return time.Duration(c.Gate.RunBudgetSeconds) * time.Second
}

// QueryTimeout bounds each telemetry backend call.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.Telemetry.QueryTimeoutSeconds) * time.Second
}

// TrendWindow is the look-back range for trend queries.
func (c *Config) TrendWindow() time.Duration {
	return time.Duration(c.Telemetry.TrendWindowMinutes) * time.Minute
}

// TrendStep is the resolution of trend queries.
func (c *Config) TrendStep() time.Duration {
	return time.Duration(c.Telemetry.TrendStepSeconds) * time.Second
}

// LLMTimeout bounds a single model call attempt.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// InitialBackoff is the wait before the first retry of a model call.
func (c *Config) InitialBackoff() time.Duration {
	return time.Duration(c.LLM.InitialBackoffMs) * time.Millisecond
}

// MaxBackoff caps the wait between model call retries.
func (c *Config) MaxBackoff() time.Duration {
	return time.Duration(c.LLM.MaxBackoffMs) * time.Millisecond
}

// RunContext returns the CI metadata attached to reports.
func (c *Config) RunContext() health.RunContext {
	return health.RunContext{
		PipelineID:  c.CI.PipelineID,
		CommitSHA:   c.CI.CommitSHA,
		Environment: c.CI.Environment,
		Namespace:   c.Telemetry.Namespace,
	}
}
