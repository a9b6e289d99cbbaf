package config

import (
	"fmt"
	"math"
	"net/url"

	"github.com/kubilitics/kubilitics-gate/internal/health"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	// Validate gate configuration
	switch c.Gate.Mode {
	case "simulation", "real", "auto":
	default:
		errs = append(errs, &ValidationError{
			Field:   "gate.mode",
			Message: fmt.Sprintf("must be one of: simulation, real, auto (got %q)", c.Gate.Mode),
		})
	}

	if math.IsNaN(c.Gate.HealthThreshold) || c.Gate.HealthThreshold < 0 || c.Gate.HealthThreshold > 100 {
		errs = append(errs, &ValidationError{
			Field:   "gate.health_threshold",
			Message: fmt.Sprintf("threshold must be between 0 and 100, got %v", c.Gate.HealthThreshold),
		})
	}

	if c.Gate.RunBudgetSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "gate.run_budget_seconds",
			Message: fmt.Sprintf("run budget must be at least 1 second, got %d", c.Gate.RunBudgetSeconds),
		})
	}

	if err := c.Weights().Validate(); err != nil {
		errs = append(errs, &ValidationError{
			Field:   "gate.weights",
			Message: err.Error(),
		})
	}

	// Validate telemetry configuration
	if c.Telemetry.Namespace == "" {
		errs = append(errs, &ValidationError{
			Field:   "telemetry.namespace",
			Message: "namespace is required",
		})
	}

	if c.Telemetry.PrometheusURL != "" {
		if err := validateURL(c.Telemetry.PrometheusURL); err != nil {
			errs = append(errs, &ValidationError{
				Field:   "telemetry.prometheus_url",
				Message: err.Error(),
			})
		}
	}

	if c.Telemetry.QueryTimeoutSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "telemetry.query_timeout_seconds",
			Message: fmt.Sprintf("query timeout must be at least 1 second, got %d", c.Telemetry.QueryTimeoutSeconds),
		})
	}

	if c.Telemetry.TrendStepSeconds < 1 || c.Telemetry.TrendWindowMinutes*60 < c.Telemetry.TrendStepSeconds*3 {
		errs = append(errs, &ValidationError{
			Field:   "telemetry.trend_window_minutes",
			Message: "trend window must cover at least 3 steps",
		})
	}

	if c.Telemetry.QueriesPerSecond <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "telemetry.queries_per_second",
			Message: fmt.Sprintf("must be positive, got %v", c.Telemetry.QueriesPerSecond),
		})
	}

	if c.Telemetry.SimulationDegrade != "" && !health.Category(c.Telemetry.SimulationDegrade).Valid() {
		errs = append(errs, &ValidationError{
			Field:   "telemetry.simulation_degrade",
			Message: fmt.Sprintf("unknown category %q", c.Telemetry.SimulationDegrade),
		})
	}

	// Validate LLM configuration
	errs = append(errs, c.validateLLM()...)

	// Validate report configuration
	switch c.Report.Format {
	case "text", "json", "yaml":
	default:
		errs = append(errs, &ValidationError{
			Field:   "report.format",
			Message: fmt.Sprintf("must be one of: text, json, yaml (got %q)", c.Report.Format),
		})
	}

	if c.Archive.Enabled && c.Archive.SQLitePath == "" {
		errs = append(errs, &ValidationError{
			Field:   "archive.sqlite_path",
			Message: "sqlite_path is required when the archive is enabled",
		})
	}

	// Validate notification configuration
	switch c.Notify.NotifyOn {
	case "always", "block":
	default:
		errs = append(errs, &ValidationError{
			Field:   "notify.notify_on",
			Message: fmt.Sprintf("must be one of: always, block (got %q)", c.Notify.NotifyOn),
		})
	}

	if (c.Notify.TelegramBotToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, &ValidationError{
			Field:   "notify.telegram_chat_id",
			Message: "telegram_bot_token and telegram_chat_id must be set together",
		})
	}

	for field, raw := range map[string]string{
		"notify.slack_webhook_url": c.Notify.SlackWebhookURL,
		"notify.webhook_url":       c.Notify.WebhookURL,
		"metrics.pushgateway_url":  c.Metrics.PushgatewayURL,
	} {
		if raw == "" {
			continue
		}
		if err := validateURL(raw); err != nil {
			errs = append(errs, &ValidationError{Field: field, Message: err.Error()})
		}
	}

	// Validate publish configuration
	if c.Publish.NATSURL != "" && c.Publish.NATSSubject == "" {
		errs = append(errs, &ValidationError{
			Field:   "publish.nats_subject",
			Message: "nats_subject is required when nats_url is set",
		})
	}

	if c.Publish.S3Bucket != "" && c.Publish.S3Region == "" {
		errs = append(errs, &ValidationError{
			Field:   "publish.s3_region",
			Message: "s3_region is required when s3_bucket is set",
		})
	}

	// Validate logging configuration
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("must be one of: debug, info, warn, error (got %q)", c.Logging.Level),
		})
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("must be one of: console, json (got %q)", c.Logging.Format),
		})
	}

	if c.Audit.Enabled && c.Audit.LogPath == "" {
		errs = append(errs, &ValidationError{
			Field:   "audit.log_path",
			Message: "log_path is required when audit is enabled",
		})
	}

	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		errs = append(errs, &ValidationError{
			Field:   "tracing.sampling_rate",
			Message: fmt.Sprintf("sampling rate must be between 0 and 1, got %v", c.Tracing.SamplingRate),
		})
	}

	return errs
}

// validateLLM checks provider settings. Credentials are not required here:
// auto mode falls back to simulation when they are missing, and real mode
// reports the missing credential when the adapter is built.
func (c *Config) validateLLM() []error {
	var errs []error

	switch c.LLM.Provider {
	case "bedrock":
		if c.LLM.Region == "" {
			errs = append(errs, &ValidationError{
				Field:   "llm.region",
				Message: "region is required for the bedrock provider",
			})
		}
	case "anthropic", "openai":
	default:
		errs = append(errs, &ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("must be one of: bedrock, anthropic, openai (got %q)", c.LLM.Provider),
		})
	}

	if c.LLM.Model == "" {
		errs = append(errs, &ValidationError{
			Field:   "llm.model",
			Message: "model is required",
		})
	}

	if c.LLM.BaseURL != "" {
		if err := validateURL(c.LLM.BaseURL); err != nil {
			errs = append(errs, &ValidationError{Field: "llm.base_url", Message: err.Error()})
		}
	}

	if c.LLM.MaxTokens < 1 {
		errs = append(errs, &ValidationError{
			Field:   "llm.max_tokens",
			Message: fmt.Sprintf("max_tokens must be positive, got %d", c.LLM.MaxTokens),
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
		errs = append(errs, &ValidationError{
			Field:   "llm.temperature",
			Message: fmt.Sprintf("temperature must be between 0 and 1, got %v", c.LLM.Temperature),
		})
	}

	if c.LLM.TimeoutSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "llm.timeout_seconds",
			Message: fmt.Sprintf("timeout must be at least 1 second, got %d", c.LLM.TimeoutSeconds),
		})
	}

	if c.LLM.MaxRetries < 0 || c.LLM.MaxRetries > 10 {
		errs = append(errs, &ValidationError{
			Field:   "llm.max_retries",
			Message: fmt.Sprintf("max_retries must be between 0 and 10, got %d", c.LLM.MaxRetries),
		})
	}

	if c.LLM.InitialBackoffMs < 1 || c.LLM.MaxBackoffMs < c.LLM.InitialBackoffMs {
		errs = append(errs, &ValidationError{
			Field:   "llm.initial_backoff_ms",
			Message: "initial backoff must be positive and not exceed max_backoff_ms",
		})
	}

	return errs
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %v", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("URL %q has no host", raw)
	}
	return nil
}
