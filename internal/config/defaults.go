package config

import "github.com/kubilitics/kubilitics-gate/internal/health"

// DefaultConfigPath is used when no --config flag is given.
const DefaultConfigPath = "kubilitics-gate.yaml"

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Gate defaults
	cfg.Gate.Mode = "auto"
	cfg.Gate.BlockingMode = true
	cfg.Gate.HealthThreshold = 70
	cfg.Gate.RunBudgetSeconds = 120
	w := health.DefaultWeights()
	cfg.Gate.Weights.Performance = w.Performance
	cfg.Gate.Weights.Infrastructure = w.Infrastructure
	cfg.Gate.Weights.Platform = w.Platform
	cfg.Gate.Weights.Trend = w.Trend

	// Telemetry defaults
	cfg.Telemetry.Namespace = "default"
	cfg.Telemetry.PrometheusURL = ""
	cfg.Telemetry.Kubeconfig = ""
	cfg.Telemetry.QueryTimeoutSeconds = 10
	cfg.Telemetry.TrendWindowMinutes = 60
	cfg.Telemetry.TrendStepSeconds = 300
	cfg.Telemetry.QueriesPerSecond = 10
	cfg.Telemetry.SimulationSeed = 2025
	cfg.Telemetry.SimulationDegrade = ""

	// LLM defaults
	cfg.LLM.Provider = "bedrock"
	cfg.LLM.Model = "us.anthropic.claude-sonnet-4-20250514-v1:0"
	cfg.LLM.Region = "us-east-1"
	cfg.LLM.MaxTokens = 1024
	cfg.LLM.Temperature = 0.1
	cfg.LLM.TimeoutSeconds = 30
	cfg.LLM.MaxRetries = 3
	cfg.LLM.InitialBackoffMs = 500
	cfg.LLM.MaxBackoffMs = 8000

	// Report defaults
	cfg.Report.Format = "text"
	cfg.Report.GitHubOutput = ""
	cfg.Report.OutputFile = ""

	// Archive defaults
	cfg.Archive.Enabled = true
	cfg.Archive.SQLitePath = ".kubilitics-gate/reports.db"

	// Notify defaults
	cfg.Notify.NotifyOn = "block"

	// Publish defaults
	cfg.Publish.NATSSubject = "kubilitics.gate.reports"
	cfg.Publish.S3Region = "us-east-1"
	cfg.Publish.S3Prefix = "kubilitics-gate/reports"

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "console"
	cfg.Logging.MaxSizeMB = 50
	cfg.Logging.MaxBackups = 5
	cfg.Logging.MaxAgeDays = 14

	// Audit defaults
	cfg.Audit.Enabled = true
	cfg.Audit.LogPath = ".kubilitics-gate/audit.log"

	// Metrics defaults
	cfg.Metrics.Job = "kubilitics_gate"

	// Tracing defaults
	cfg.Tracing.SamplingRate = 1.0

	// CI defaults
	cfg.CI.PipelineID = "manual-execution"
	cfg.CI.CommitSHA = "unknown"
	cfg.CI.Environment = "development"

	return cfg
}
