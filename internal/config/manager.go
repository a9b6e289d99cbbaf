package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// viperConfigManager implements ConfigManager using Viper.
type viperConfigManager struct {
	configPath string
	envFile    string
	config     *Config
	viper      *viper.Viper
}

// Load loads configuration from all sources.
func (m *viperConfigManager) Load(ctx context.Context) error {
	// .env values become plain environment variables; existing ones win.
	if m.envFile != "" {
		if err := godotenv.Load(m.envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("error reading env file %s: %w", m.envFile, err)
		}
	}

	m.viper = viper.New()

	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	m.viper.SetEnvPrefix("KUBILITICS_GATE")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	// A missing config file is fine: defaults + env vars apply.
	if err := m.viper.ReadInConfig(); err != nil && !isNotFound(err) {
		return fmt.Errorf("error reading config file: %w", err)
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := m.applyEnvOverrides(); err != nil {
		return fmt.Errorf("error applying environment overrides: %w", err)
	}

	return nil
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	return JoinValidationErrors(m.config.Validate())
}

// isNotFound checks both the viper and the os flavour of "file not found".
func isNotFound(err error) bool {
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return true
	}
	return os.IsNotExist(err)
}

// JoinValidationErrors folds a list of validation errors into one error, or
// nil when the list is empty.
func JoinValidationErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	var errMsgs []string
	for _, err := range errs {
		errMsgs = append(errMsgs, err.Error())
	}
	return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
}

// setDefaults sets default values in viper.
func (m *viperConfigManager) setDefaults() {
	defaults := DefaultConfig()

	// Gate defaults
	m.viper.SetDefault("gate.mode", defaults.Gate.Mode)
	m.viper.SetDefault("gate.blocking_mode", defaults.Gate.BlockingMode)
	m.viper.SetDefault("gate.health_threshold", defaults.Gate.HealthThreshold)
	m.viper.SetDefault("gate.run_budget_seconds", defaults.Gate.RunBudgetSeconds)
	m.viper.SetDefault("gate.weights.performance", defaults.Gate.Weights.Performance)
	m.viper.SetDefault("gate.weights.infrastructure", defaults.Gate.Weights.Infrastructure)
	m.viper.SetDefault("gate.weights.platform", defaults.Gate.Weights.Platform)
	m.viper.SetDefault("gate.weights.trend", defaults.Gate.Weights.Trend)

	// Telemetry defaults
	m.viper.SetDefault("telemetry.namespace", defaults.Telemetry.Namespace)
	m.viper.SetDefault("telemetry.prometheus_url", defaults.Telemetry.PrometheusURL)
	m.viper.SetDefault("telemetry.kubeconfig", defaults.Telemetry.Kubeconfig)
	m.viper.SetDefault("telemetry.query_timeout_seconds", defaults.Telemetry.QueryTimeoutSeconds)
	m.viper.SetDefault("telemetry.trend_window_minutes", defaults.Telemetry.TrendWindowMinutes)
	m.viper.SetDefault("telemetry.trend_step_seconds", defaults.Telemetry.TrendStepSeconds)
	m.viper.SetDefault("telemetry.queries_per_second", defaults.Telemetry.QueriesPerSecond)
	m.viper.SetDefault("telemetry.simulation_seed", defaults.Telemetry.SimulationSeed)
	m.viper.SetDefault("telemetry.simulation_degrade", defaults.Telemetry.SimulationDegrade)

	// LLM defaults
	m.viper.SetDefault("llm.provider", defaults.LLM.Provider)
	m.viper.SetDefault("llm.model", defaults.LLM.Model)
	m.viper.SetDefault("llm.api_key", defaults.LLM.APIKey)
	m.viper.SetDefault("llm.base_url", defaults.LLM.BaseURL)
	m.viper.SetDefault("llm.region", defaults.LLM.Region)
	m.viper.SetDefault("llm.max_tokens", defaults.LLM.MaxTokens)
	m.viper.SetDefault("llm.temperature", defaults.LLM.Temperature)
	m.viper.SetDefault("llm.timeout_seconds", defaults.LLM.TimeoutSeconds)
	m.viper.SetDefault("llm.max_retries", defaults.LLM.MaxRetries)
	m.viper.SetDefault("llm.initial_backoff_ms", defaults.LLM.InitialBackoffMs)
	m.viper.SetDefault("llm.max_backoff_ms", defaults.LLM.MaxBackoffMs)

	// Report defaults
	m.viper.SetDefault("report.format", defaults.Report.Format)
	m.viper.SetDefault("report.github_output", defaults.Report.GitHubOutput)
	m.viper.SetDefault("report.output_file", defaults.Report.OutputFile)

	// Archive defaults
	m.viper.SetDefault("archive.enabled", defaults.Archive.Enabled)
	m.viper.SetDefault("archive.sqlite_path", defaults.Archive.SQLitePath)

	// Notify defaults
	m.viper.SetDefault("notify.telegram_bot_token", defaults.Notify.TelegramBotToken)
	m.viper.SetDefault("notify.telegram_chat_id", defaults.Notify.TelegramChatID)
	m.viper.SetDefault("notify.slack_webhook_url", defaults.Notify.SlackWebhookURL)
	m.viper.SetDefault("notify.webhook_url", defaults.Notify.WebhookURL)
	m.viper.SetDefault("notify.notify_on", defaults.Notify.NotifyOn)

	// Publish defaults
	m.viper.SetDefault("publish.nats_url", defaults.Publish.NATSURL)
	m.viper.SetDefault("publish.nats_subject", defaults.Publish.NATSSubject)
	m.viper.SetDefault("publish.s3_bucket", defaults.Publish.S3Bucket)
	m.viper.SetDefault("publish.s3_region", defaults.Publish.S3Region)
	m.viper.SetDefault("publish.s3_endpoint", defaults.Publish.S3Endpoint)
	m.viper.SetDefault("publish.s3_prefix", defaults.Publish.S3Prefix)
	m.viper.SetDefault("publish.s3_access_key_id", defaults.Publish.S3AccessKeyID)
	m.viper.SetDefault("publish.s3_secret_access_key", defaults.Publish.S3SecretAccessKey)
	m.viper.SetDefault("publish.s3_use_path_style", defaults.Publish.S3UsePathStyle)

	// Logging defaults
	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.format", defaults.Logging.Format)
	m.viper.SetDefault("logging.file", defaults.Logging.File)
	m.viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	m.viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	m.viper.SetDefault("logging.max_age_days", defaults.Logging.MaxAgeDays)

	// Audit defaults
	m.viper.SetDefault("audit.enabled", defaults.Audit.Enabled)
	m.viper.SetDefault("audit.log_path", defaults.Audit.LogPath)

	// Metrics defaults
	m.viper.SetDefault("metrics.pushgateway_url", defaults.Metrics.PushgatewayURL)
	m.viper.SetDefault("metrics.job", defaults.Metrics.Job)

	// Tracing defaults
	m.viper.SetDefault("tracing.endpoint", defaults.Tracing.Endpoint)
	m.viper.SetDefault("tracing.sampling_rate", defaults.Tracing.SamplingRate)

	// CI defaults
	m.viper.SetDefault("ci.pipeline_id", defaults.CI.PipelineID)
	m.viper.SetDefault("ci.commit_sha", defaults.CI.CommitSHA)
	m.viper.SetDefault("ci.environment", defaults.CI.Environment)
}

// unmarshalConfig unmarshals viper config into Config struct.
func (m *viperConfigManager) unmarshalConfig() error {
	cfg := &Config{}

	// Gate
	cfg.Gate.Mode = strings.ToLower(m.viper.GetString("gate.mode"))
	cfg.Gate.BlockingMode = m.viper.GetBool("gate.blocking_mode")
	cfg.Gate.HealthThreshold = m.viper.GetFloat64("gate.health_threshold")
	cfg.Gate.RunBudgetSeconds = m.viper.GetInt("gate.run_budget_seconds")
	cfg.Gate.Weights.Performance = m.viper.GetFloat64("gate.weights.performance")
	cfg.Gate.Weights.Infrastructure = m.viper.GetFloat64("gate.weights.infrastructure")
	cfg.Gate.Weights.Platform = m.viper.GetFloat64("gate.weights.platform")
	cfg.Gate.Weights.Trend = m.viper.GetFloat64("gate.weights.trend")

	// Telemetry
	cfg.Telemetry.Namespace = m.viper.GetString("telemetry.namespace")
	cfg.Telemetry.PrometheusURL = m.viper.GetString("telemetry.prometheus_url")
	cfg.Telemetry.Kubeconfig = m.viper.GetString("telemetry.kubeconfig")
	cfg.Telemetry.QueryTimeoutSeconds = m.viper.GetInt("telemetry.query_timeout_seconds")
	cfg.Telemetry.TrendWindowMinutes = m.viper.GetInt("telemetry.trend_window_minutes")
	cfg.Telemetry.TrendStepSeconds = m.viper.GetInt("telemetry.trend_step_seconds")
	cfg.Telemetry.QueriesPerSecond = m.viper.GetFloat64("telemetry.queries_per_second")
	cfg.Telemetry.SimulationSeed = m.viper.GetInt64("telemetry.simulation_seed")
	cfg.Telemetry.SimulationDegrade = strings.ToLower(m.viper.GetString("telemetry.simulation_degrade"))

	// LLM
	cfg.LLM.Provider = strings.ToLower(m.viper.GetString("llm.provider"))
	cfg.LLM.Model = m.viper.GetString("llm.model")
	cfg.LLM.APIKey = m.viper.GetString("llm.api_key")
	cfg.LLM.BaseURL = m.viper.GetString("llm.base_url")
	cfg.LLM.Region = m.viper.GetString("llm.region")
	cfg.LLM.MaxTokens = m.viper.GetInt("llm.max_tokens")
	cfg.LLM.Temperature = m.viper.GetFloat64("llm.temperature")
	cfg.LLM.TimeoutSeconds = m.viper.GetInt("llm.timeout_seconds")
	cfg.LLM.MaxRetries = m.viper.GetInt("llm.max_retries")
	cfg.LLM.InitialBackoffMs = m.viper.GetInt("llm.initial_backoff_ms")
	cfg.LLM.MaxBackoffMs = m.viper.GetInt("llm.max_backoff_ms")

	// Report
	cfg.Report.Format = strings.ToLower(m.viper.GetString("report.format"))
	cfg.Report.GitHubOutput = m.viper.GetString("report.github_output")
	cfg.Report.OutputFile = m.viper.GetString("report.output_file")

	// Archive
	cfg.Archive.Enabled = m.viper.GetBool("archive.enabled")
	cfg.Archive.SQLitePath = m.viper.GetString("archive.sqlite_path")

	// Notify
	cfg.Notify.TelegramBotToken = m.viper.GetString("notify.telegram_bot_token")
	cfg.Notify.TelegramChatID = m.viper.GetString("notify.telegram_chat_id")
	cfg.Notify.SlackWebhookURL = m.viper.GetString("notify.slack_webhook_url")
	cfg.Notify.WebhookURL = m.viper.GetString("notify.webhook_url")
	cfg.Notify.NotifyOn = strings.ToLower(m.viper.GetString("notify.notify_on"))

	// Publish
	cfg.Publish.NATSURL = m.viper.GetString("publish.nats_url")
	cfg.Publish.NATSSubject = m.viper.GetString("publish.nats_subject")
	cfg.Publish.S3Bucket = m.viper.GetString("publish.s3_bucket")
	cfg.Publish.S3Region = m.viper.GetString("publish.s3_region")
	cfg.Publish.S3Endpoint = m.viper.GetString("publish.s3_endpoint")
	cfg.Publish.S3Prefix = m.viper.GetString("publish.s3_prefix")
	cfg.Publish.S3AccessKeyID = m.viper.GetString("publish.s3_access_key_id")
	cfg.Publish.S3SecretAccessKey = m.viper.GetString("publish.s3_secret_access_key")
	cfg.Publish.S3UsePathStyle = m.viper.GetBool("publish.s3_use_path_style")

	// Logging
	cfg.Logging.Level = strings.ToLower(m.viper.GetString("logging.level"))
	cfg.Logging.Format = strings.ToLower(m.viper.GetString("logging.format"))
	cfg.Logging.File = m.viper.GetString("logging.file")
	cfg.Logging.MaxSizeMB = m.viper.GetInt("logging.max_size_mb")
	cfg.Logging.MaxBackups = m.viper.GetInt("logging.max_backups")
	cfg.Logging.MaxAgeDays = m.viper.GetInt("logging.max_age_days")

	// Audit
	cfg.Audit.Enabled = m.viper.GetBool("audit.enabled")
	cfg.Audit.LogPath = m.viper.GetString("audit.log_path")

	// Metrics
	cfg.Metrics.PushgatewayURL = m.viper.GetString("metrics.pushgateway_url")
	cfg.Metrics.Job = m.viper.GetString("metrics.job")

	// Tracing
	cfg.Tracing.Endpoint = m.viper.GetString("tracing.endpoint")
	cfg.Tracing.SamplingRate = m.viper.GetFloat64("tracing.sampling_rate")

	// CI
	cfg.CI.PipelineID = m.viper.GetString("ci.pipeline_id")
	cfg.CI.CommitSHA = m.viper.GetString("ci.commit_sha")
	cfg.CI.Environment = m.viper.GetString("ci.environment")

	m.config = cfg
	return nil
}

// applyEnvOverrides maps the variables used by the original observability agent
// and the common provider variables onto the loaded configuration.
func (m *viperConfigManager) applyEnvOverrides() error {
	if v := os.Getenv("AI_OBSERVABILITY_SIMULATION"); strings.EqualFold(v, "true") {
		m.config.Gate.Mode = "simulation"
	}

	if v := os.Getenv("BLOCKING_MODE"); v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("BLOCKING_MODE: %w", err)
		}
		m.config.Gate.BlockingMode = b
	}

	if v := os.Getenv("HEALTH_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("HEALTH_THRESHOLD: %w", err)
		}
		m.config.Gate.HealthThreshold = f
	}

	if v := os.Getenv("PROM_URL"); v != "" {
		m.config.Telemetry.PrometheusURL = v
	}
	if v := os.Getenv("NAMESPACE"); v != "" {
		m.config.Telemetry.Namespace = v
	}

	// Bedrock settings only apply when the provider is bedrock.
	if m.config.LLM.Provider == "bedrock" {
		if v := os.Getenv("BEDROCK_MODEL_ID"); v != "" {
			m.config.LLM.Model = v
		}
		if v := os.Getenv("BEDROCK_REGION"); v != "" {
			m.config.LLM.Region = v
		}
	}

	if m.config.LLM.APIKey == "" {
		switch m.config.LLM.Provider {
		case "anthropic":
			m.config.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case "openai":
			m.config.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}

	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		m.config.Notify.TelegramBotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		m.config.Notify.TelegramChatID = v
	}

	if v := os.Getenv("CI_PIPELINE_ID"); v != "" {
		m.config.CI.PipelineID = v
	}
	if v := os.Getenv("CI_COMMIT_SHA"); v != "" {
		m.config.CI.CommitSHA = v
	}
	if v := os.Getenv("CI_ENVIRONMENT"); v != "" {
		m.config.CI.Environment = v
	}

	if m.config.Report.GitHubOutput == "" {
		m.config.Report.GitHubOutput = os.Getenv("GITHUB_OUTPUT")
	}

	return nil
}
